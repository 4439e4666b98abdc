// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Job structure, the root of a bake description.
package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Mode selects how targets map to output images.
type Mode string

const (
	// ModeSingle bakes every target into its own images.
	ModeSingle Mode = "single"
	// ModeMulti bakes every target into one shared set of images.
	ModeMulti Mode = "multi"
	// ModeActive bakes the other targets onto the designated low-poly.
	ModeActive Mode = "active"
	// ModeSplit bakes each material slot of every target separately.
	ModeSplit Mode = "split"
	// ModeUDIM bakes every target into a shared tiled image set.
	ModeUDIM Mode = "udim"
)

// BakeType picks the primary channel group.
type BakeType string

const (
	BakeBSDF  BakeType = "bsdf"
	BakeBasic BakeType = "basic"
)

// Format is an output image encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatTIFF:
		return "tif"
	case FormatBMP:
		return "bmp"
	default:
		return "png"
	}
}

// TilePolicy selects how UDIM tiles are assigned.
type TilePolicy string

const (
	TileDetect   TilePolicy = "detect"
	TileRepack   TilePolicy = "repack"
	TileExplicit TilePolicy = "explicit"
)

// DefaultTemplate is the output path template used when a job sets none.
const DefaultTemplate = "${prefix}${base}${suffix}"

// Sets is the set of enabled channel groups.
type Sets struct {
	BakeType  BakeType `hcl:"bake_type,optional" validate:"oneof=bsdf basic"`
	Light     bool     `hcl:"light,optional"`
	Mesh      bool     `hcl:"mesh,optional"`
	Extension bool     `hcl:"extension,optional"`
	Custom    bool     `hcl:"custom,optional"`
}

// Has reports whether a group is enabled.
func (s Sets) Has(g Group) bool {
	switch g {
	case GroupBSDF:
		return s.BakeType == BakeBSDF
	case GroupBasic:
		return s.BakeType == BakeBasic
	case GroupLight:
		return s.Light
	case GroupMesh:
		return s.Mesh
	case GroupExtension:
		return s.Extension
	case GroupCustom:
		return s.Custom
	}
	return false
}

// UDIMSettings configures tile assignment for ModeUDIM.
type UDIMSettings struct {
	Policy TilePolicy `validate:"oneof=detect repack explicit"`
	// Tiles assigns an explicit tile per object. Range and sharing are
	// checked by the tile packer.
	Tiles map[string]int
}

// Output describes where and how results are written.
type Output struct {
	Root string `validate:"required"`
	// Template is HCL template source evaluated per step, for example
	// "${base}_${channel}".
	Template string
	Width    int    `validate:"gt=0,lte=16384"`
	Height   int    `validate:"gt=0,lte=16384"`
	Format   Format `validate:"oneof=png jpeg tiff bmp"`
	Depth    int    `validate:"oneof=8 16"`
	Margin   int    `validate:"gte=0"`
}

// Job is a complete bake description.
type Job struct {
	Name    string   `validate:"required"`
	Mode    Mode     `validate:"oneof=single multi active split udim"`
	Targets []string `validate:"dive,required"`
	// Active names the low-poly target in ModeActive.
	Active   string
	Sets     Sets
	UDIM     UDIMSettings
	Output   Output
	Channels []*Channel `validate:"dive"`
	// Animation, when set, bakes every channel once per frame.
	Animation *Animation
}

// NewJob creates a job with default settings and a synced channel list.
func NewJob(name string) *Job {
	j := &Job{
		Name: name,
		Mode: ModeSingle,
		Sets: Sets{BakeType: BakeBSDF},
		UDIM: UDIMSettings{Policy: TileDetect},
		Output: Output{
			Root:     "bakes",
			Template: DefaultTemplate,
			Width:    1024,
			Height:   1024,
			Format:   FormatPNG,
			Depth:    8,
			Margin:   8,
		},
	}
	j.SyncChannels()
	return j
}

// SetMode changes the bake mode and resyncs channel validity.
func (j *Job) SetMode(m Mode) {
	j.Mode = m
	j.SyncChannels()
}

// SetSets changes the enabled channel groups and resyncs channel validity.
func (j *Job) SetSets(s Sets) {
	j.Sets = s
	j.SyncChannels()
}

// SyncChannels appends catalog channels of the enabled groups that the job
// does not have yet and recomputes ValidForMode on every channel. It never
// removes a channel or touches its parameters.
func (j *Job) SyncChannels() {
	have := make(map[string]bool, len(j.Channels))
	for _, c := range j.Channels {
		have[c.ID] = true
	}
	for _, def := range catalog {
		if have[def.ID] || !def.InGroups(j.Sets) {
			continue
		}
		j.Channels = append(j.Channels, NewChannel(def))
		have[def.ID] = true
	}
	j.refreshValidity()
}

func (j *Job) refreshValidity() {
	for _, c := range j.Channels {
		def, ok := c.lookup()
		c.ValidForMode = ok && def.InGroups(j.Sets) && def.AvailableIn(j.Mode)
	}
}

// AddCustomChannel appends a user-defined channel and resyncs validity.
// Custom channels are never added by SyncChannels.
func (j *Job) AddCustomChannel(c *Channel) {
	j.Channels = append(j.Channels, c)
	j.refreshValidity()
}

// Channel returns the job's channel with the given id, or nil.
func (j *Job) Channel(id string) *Channel {
	for _, c := range j.Channels {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Eligible reports whether a channel will produce steps: it must be enabled
// and valid for the job's mode and groups.
func (j *Job) Eligible(c *Channel) bool {
	if c == nil || !c.Enabled || !c.ValidForMode {
		return false
	}
	def, ok := c.lookup()
	return ok && def.InGroups(j.Sets) && def.AvailableIn(j.Mode)
}

// EligibleChannels returns the channels that will produce steps, in job order.
func (j *Job) EligibleChannels() []*Channel {
	var out []*Channel
	for _, c := range j.Channels {
		if j.Eligible(c) {
			out = append(out, c)
		}
	}
	return out
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the job's document-level constraints. Target existence
// and mode rules that depend on the scene are checked by the task builder.
func (j *Job) Validate() error {
	v := structValidator()
	if err := v.Struct(j); err != nil {
		return fmt.Errorf("job %q: %w", j.Name, err)
	}

	var errs []error
	seen := make(map[string]bool, len(j.Channels))
	for _, c := range j.Channels {
		if seen[c.ID] {
			errs = append(errs, fmt.Errorf("channel %q: declared more than once", c.ID))
			continue
		}
		seen[c.ID] = true
		if err := c.checkParams(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := v.Struct(c.Params); err != nil {
			errs = append(errs, fmt.Errorf("channel %q: %w", c.ID, err))
		}
	}
	if j.Mode == ModeActive && j.Active == "" {
		errs = append(errs, errors.New("active mode requires a designated low-poly target"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("job %q: %w", j.Name, err)
	}
	return nil
}
