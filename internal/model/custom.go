// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines user-defined channels. They bypass the catalog and
// describe their own definition from their parameters.
package model

import (
	"slices"
	"strings"
)

// CustomPrefix starts the id of every user-defined channel.
const CustomPrefix = "custom_"

// IsCustomID reports whether id names a user-defined channel.
func IsCustomID(id string) bool {
	return strings.HasPrefix(id, CustomPrefix) && len(id) > len(CustomPrefix)
}

// CustomComponent fills one component of a custom channel. With Source set it
// copies Component of that channel's result; otherwise it writes Value.
type CustomComponent struct {
	Value     float64 `hcl:"value,optional" validate:"gte=0,lte=1"`
	Source    string  `hcl:"source,optional"`
	Component string  `hcl:"component,optional" validate:"omitempty,oneof=r g b a"`
	Invert    bool    `hcl:"invert,optional"`
}

// Index returns the RGBA index of Component. Red is the default.
func (c CustomComponent) Index() int {
	if c.Component == "" {
		return 0
	}
	return strings.Index("rgba", c.Component)
}

// CustomParams configures a user-defined channel.
type CustomParams struct {
	ColorSpace string `hcl:"color_space,optional" validate:"omitempty,oneof=sRGB Non-Color"`
	// Gray copies the red component into green and blue.
	Gray  bool             `hcl:"gray,optional"`
	Red   *CustomComponent `hcl:"red,block"`
	Green *CustomComponent `hcl:"green,block"`
	Blue  *CustomComponent `hcl:"blue,block"`
	Alpha *CustomComponent `hcl:"alpha,block"`
}

// Components returns the RGBA components with unset ones filled in as
// opaque black.
func (p CustomParams) Components() [4]CustomComponent {
	out := [4]CustomComponent{3: {Value: 1}}
	for i, c := range []*CustomComponent{p.Red, p.Green, p.Blue, p.Alpha} {
		if c != nil {
			out[i] = *c
		}
	}
	if p.Gray {
		out[1], out[2] = out[0], out[0]
	}
	return out
}

// Sources returns the distinct channels the components read, in RGBA order.
func (p CustomParams) Sources() []string {
	var out []string
	for _, c := range p.Components() {
		if c.Source != "" && !slices.Contains(out, c.Source) {
			out = append(out, c.Source)
		}
	}
	return out
}

// NewCustomChannel creates an enabled user-defined channel. The id gets the
// custom prefix when it lacks one and the suffix defaults to "_<name>".
func NewCustomChannel(id, name string, params CustomParams) *Channel {
	if !IsCustomID(id) {
		id = CustomPrefix + id
	}
	if name == "" {
		name = strings.TrimPrefix(id, CustomPrefix)
	}
	return &Channel{
		ID:      id,
		Name:    name,
		Enabled: true,
		Suffix:  "_" + strings.TrimPrefix(id, CustomPrefix),
		Params:  params,
	}
}

var custom = []Group{GroupCustom}

func customDefinition(c *Channel) Definition {
	p, _ := c.Params.(CustomParams)
	cs := p.ColorSpace
	if cs == "" {
		cs = ColorNonColor
	}
	return Definition{
		ID:         c.ID,
		Name:       c.Name,
		Kind:       KindCustom,
		Groups:     custom,
		Suffix:     c.Suffix,
		Enabled:    true,
		ColorSpace: cs,
		Pass:       "COMPOSE",
		Sources:    p.Sources(),
	}
}
