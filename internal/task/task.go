// Package task defines the Step, the atomic unit of bake work.
package task

import (
	"fmt"

	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/udim"
)

// Output describes the image a step writes.
type Output struct {
	Path       string
	Width      int
	Height     int
	Tile       int
	Format     model.Format
	Depth      int
	ColorSpace string
	Margin     int
	// Composite is set when several steps write into the same image, as in
	// multi-object and UDIM bakes. Commits merge into the existing content.
	Composite bool
}

// Step is one (object, channel[, material][, tile]) unit of work. It is
// produced by the task builder and only read by the executor.
type Step struct {
	Index int
	Job   string
	// Object is the bake target whose UVs receive the result.
	Object string
	// Sources are the high-poly objects projected onto Object in active mode.
	Sources []string
	// Material restricts the bake to one material slot in split mode.
	Material string
	// Materials are the materials whose graphs receive a capture point.
	Materials []string
	Tile      int
	Offset    udim.Offset
	// Frame is the animation frame; zero for static bakes.
	Frame     model.Frame
	Channel   model.Channel
	Output    Output
}

// ChannelID is a shortcut for the step's channel id.
func (s Step) ChannelID() string {
	return s.Channel.ID
}

// Definition returns the catalog entry for the step's channel.
func (s Step) Definition() model.Definition {
	return s.Channel.Definition()
}

// NeedsWorkLayer reports whether the step bakes through a temporary UV
// layer: UDIM steps always do, other steps only when the object moves.
func (s Step) NeedsWorkLayer() bool {
	return s.Tile != 0 || !s.Offset.IsZero()
}

func (s Step) String() string {
	out := fmt.Sprintf("#%d %s/%s", s.Index, s.Object, s.Channel.ID)
	if s.Material != "" {
		out += "@" + s.Material
	}
	if s.Tile != 0 {
		out += fmt.Sprintf("[%d]", s.Tile)
	}
	if s.Frame.Animated() {
		out += fmt.Sprintf(" f%d", s.Frame.Number)
	}
	return out
}
