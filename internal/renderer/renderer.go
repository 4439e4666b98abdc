// Package renderer defines the boundary to whatever produces raw channel
// pixels and ships a deterministic synthetic implementation.
//
// The executor describes each capture with a Descriptor and hands it to a
// Renderer together with the scene. The renderer only reads the scene: every
// mutation a capture needs (capture nodes, working UV layers, ID attributes,
// protection images) has already been made by the executor under guard.
package renderer

import (
	"context"
	"fmt"

	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/pixel"
	"github.com/specialistvlad/bakegridgo/internal/scene"
)

// Descriptor is everything a renderer needs to produce one channel.
type Descriptor struct {
	Step   int
	Object string
	// Sources are the high-poly objects projected onto Object.
	Sources []string
	// Material restricts the capture to one material slot.
	Material string
	// Materials are the materials that carry a capture node.
	Materials []string
	Channel   model.Channel
	Pass      string
	Socket    string
	// Capture is set when the channel is read through a capture node.
	Capture bool
	Width   int
	Height  int
	Tile    int
	// UVLayer is the layer to read. Empty means the object's bake layer or
	// its active layer.
	UVLayer string
	Margin  int
	Samples int
	// Frame is the scene frame to evaluate; zero for static bakes.
	Frame   int
}

// Renderer produces the raw pixels of one channel.
type Renderer interface {
	Render(ctx context.Context, sc *scene.Scene, d Descriptor) (*pixel.Buffer, error)
}

// RenderError is returned when a capture cannot be produced.
type RenderError struct {
	Object  string
	Channel string
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s/%s: %v", e.Object, e.Channel, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Func adapts a function to the Renderer interface.
type Func func(ctx context.Context, sc *scene.Scene, d Descriptor) (*pixel.Buffer, error)

// Render calls f.
func (f Func) Render(ctx context.Context, sc *scene.Scene, d Descriptor) (*pixel.Buffer, error) {
	return f(ctx, sc, d)
}
