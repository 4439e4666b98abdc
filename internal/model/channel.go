// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Channel structure and its closed set of parameter
// variants.
package model

import "fmt"

// Channel is one output map of a Job.
type Channel struct {
	ID           string `validate:"required"`
	Name         string
	Enabled      bool
	ValidForMode bool
	Prefix       string
	Suffix       string
	Params       Params
}

// NewChannel creates a channel from its catalog definition.
func NewChannel(def Definition) *Channel {
	return &Channel{
		ID:      def.ID,
		Name:    def.Name,
		Enabled: def.Enabled,
		Suffix:  def.Suffix,
		Params:  def.DefaultParams(),
	}
}

// Definition returns the catalog entry for the channel, or the definition a
// custom channel describes itself. Unknown ids yield a zero Definition;
// Job.Validate rejects them.
func (c *Channel) Definition() Definition {
	def, _ := c.lookup()
	return def
}

func (c *Channel) lookup() (Definition, bool) {
	if IsCustomID(c.ID) {
		return customDefinition(c), true
	}
	return Lookup(c.ID)
}

// Kind is a shortcut for Definition().Kind.
func (c *Channel) Kind() Kind {
	return c.Definition().Kind
}

// Clone returns an independent copy. Params variants are plain values, so a
// shallow copy is enough.
func (c *Channel) Clone() Channel {
	return *c
}

// Params is the closed set of per-kind channel parameters. Only the variants
// declared in this package implement it.
type Params interface {
	kind() Kind
}

// PBRParams configures shader-input captures.
type PBRParams struct {
	Invert bool `hcl:"invert,optional"`
}

// LightParams configures rendered lighting passes.
type LightParams struct {
	Direct   bool    `hcl:"direct,optional"`
	Indirect bool    `hcl:"indirect,optional"`
	Color    bool    `hcl:"color,optional"`
	Samples  int     `hcl:"samples,optional" validate:"gte=0"`
	Distance float64 `hcl:"distance,optional" validate:"gte=0"`
}

// MeshParams configures geometry-derived maps such as curvature and bevel.
type MeshParams struct {
	Radius   float64 `hcl:"radius,optional" validate:"gte=0"`
	Contrast float64 `hcl:"contrast,optional"`
	Samples  int     `hcl:"samples,optional" validate:"gte=0"`
}

// IDMapParams configures ID map palettes.
type IDMapParams struct {
	Seed        int    `hcl:"seed,optional"`
	StartColor  string `hcl:"start_color,optional" validate:"omitempty,hexcolor"`
	ManualStart bool   `hcl:"manual_start,optional"`
}

// ConversionParams configures in-process conversions. Threshold is used by
// the specular-to-metallic conversions; the pack sources by channel packing.
type ConversionParams struct {
	Threshold float64 `hcl:"threshold,optional" validate:"gte=0,lt=1"`
	Red       string  `hcl:"red,optional"`
	Green     string  `hcl:"green,optional"`
	Blue      string  `hcl:"blue,optional"`
	Alpha     string  `hcl:"alpha,optional"`
}

// PackSources returns the source channel ids in R, G, B, A order. Empty
// entries are left at their fill value.
func (p ConversionParams) PackSources() [4]string {
	return [4]string{p.Red, p.Green, p.Blue, p.Alpha}
}

func (PBRParams) kind() Kind        { return KindPBR }
func (LightParams) kind() Kind      { return KindLight }
func (MeshParams) kind() Kind       { return KindMesh }
func (IDMapParams) kind() Kind      { return KindMesh }
func (ConversionParams) kind() Kind { return KindConversion }
func (CustomParams) kind() Kind     { return KindCustom }

// checkParams reports a mismatch between a channel's kind and its params.
func (c *Channel) checkParams() error {
	def, ok := c.lookup()
	if !ok {
		return fmt.Errorf("channel %q: unknown channel id", c.ID)
	}
	if c.Params == nil {
		return fmt.Errorf("channel %q: missing parameters", c.ID)
	}
	if c.Params.kind() != def.Kind {
		return fmt.Errorf("channel %q: %s parameters on a %s channel", c.ID, c.Params.kind(), def.Kind)
	}
	if _, isID := c.Params.(IDMapParams); isID != def.IsIDMap() {
		return fmt.Errorf("channel %q: id map parameters must be used by id map channels only", c.ID)
	}
	return nil
}
