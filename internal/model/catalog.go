// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the channel catalog: every channel the engine can bake,
// with the defaults a freshly synced Job receives.
package model

import "strings"

// Kind classifies a channel by how it is produced.
type Kind string

const (
	// KindPBR channels capture a shader input as a data image.
	KindPBR Kind = "pbr"
	// KindLight channels are rendered lighting passes.
	KindLight Kind = "light"
	// KindMesh channels are derived from geometry or mesh attributes.
	KindMesh Kind = "mesh"
	// KindConversion channels are computed in-process from other baked channels.
	KindConversion Kind = "conversion"
	// KindCustom channels are user-defined and composed from other baked
	// channels and constants. They have no catalog entry.
	KindCustom Kind = "custom"
)

// Group is a user-toggleable set of catalog channels.
type Group string

const (
	GroupBSDF      Group = "bsdf"
	GroupBasic     Group = "basic"
	GroupLight     Group = "light"
	GroupMesh      Group = "mesh"
	GroupExtension Group = "extension"
	GroupCustom    Group = "custom"
)

// Color spaces written into output descriptors.
const (
	ColorSRGB     = "sRGB"
	ColorNonColor = "Non-Color"
)

// Definition describes one catalog channel.
type Definition struct {
	ID         string
	Name       string
	Kind       Kind
	Groups     []Group
	Suffix     string
	Enabled    bool
	ColorSpace string
	// Pass is the renderer pass used to produce the channel.
	Pass string
	// Socket is the shader input captured for PBR channels.
	Socket string
	// Sources lists channels a conversion reads. Packing reads its sources
	// from ConversionParams instead.
	Sources []string
	// Unavailable lists modes in which the channel cannot be produced.
	Unavailable []Mode
}

// IsIDMap reports whether the channel is an ID map. ID maps need a generated
// mesh attribute and are baked before anything else.
func (d Definition) IsIDMap() bool {
	return strings.HasPrefix(d.ID, "ID_")
}

// IsNormal reports whether the channel is a tangent-space normal pass.
func (d Definition) IsNormal() bool {
	return d.Pass == "NORMAL"
}

// InGroups reports whether any of the definition's groups is enabled in sets.
func (d Definition) InGroups(sets Sets) bool {
	for _, g := range d.Groups {
		if sets.Has(g) {
			return true
		}
	}
	return false
}

// AvailableIn reports whether the channel can be produced in the given mode.
func (d Definition) AvailableIn(mode Mode) bool {
	for _, m := range d.Unavailable {
		if m == mode {
			return false
		}
	}
	return true
}

// DefaultParams returns the parameter variant a new channel of this
// definition starts with.
func (d Definition) DefaultParams() Params {
	switch {
	case d.Kind == KindCustom:
		return CustomParams{}
	case d.Kind == KindConversion:
		return ConversionParams{Threshold: DefaultSpecularThreshold}
	case d.IsIDMap():
		return IDMapParams{Seed: 0, StartColor: "#e63333ff"}
	case d.Kind == KindMesh:
		return MeshParams{Radius: 0.05, Contrast: 1, Samples: 16}
	case d.Kind == KindLight:
		return LightParams{Direct: true, Indirect: true, Color: true, Samples: 64, Distance: 1}
	default:
		return PBRParams{}
	}
}

// DefaultSpecularThreshold is the F0 reflectance below which a surface is
// treated as a dielectric when converting specular to metallic.
const DefaultSpecularThreshold = 0.04

var (
	bsdf      = []Group{GroupBSDF}
	basic     = []Group{GroupBasic}
	bsdfBasic = []Group{GroupBSDF, GroupBasic}
	light     = []Group{GroupLight}
	mesh      = []Group{GroupMesh}
	extension = []Group{GroupExtension}

	// Channels built from the low-poly's own attributes make no sense when
	// baking a high-poly onto it.
	notActive = []Mode{ModeActive}
)

var catalog = []Definition{
	{ID: "color", Name: "Base Color", Kind: KindPBR, Groups: bsdfBasic, Suffix: "_color", Enabled: true, ColorSpace: ColorSRGB, Pass: "EMIT", Socket: "Base Color"},
	{ID: "subface", Name: "SSS", Kind: KindPBR, Groups: bsdf, Suffix: "_subface", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Subsurface Weight"},
	{ID: "subface_col", Name: "SSS Base Color", Kind: KindPBR, Groups: bsdf, Suffix: "_subfacecol", ColorSpace: ColorSRGB, Pass: "EMIT", Socket: "Subsurface Color"},
	{ID: "subface_ani", Name: "SSS Anisotropy", Kind: KindPBR, Groups: bsdf, Suffix: "_subfaceani", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Subsurface Anisotropy"},
	{ID: "metal", Name: "Metalness", Kind: KindPBR, Groups: bsdf, Suffix: "_metal", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Metallic"},
	{ID: "specular", Name: "Specular", Kind: KindPBR, Groups: bsdf, Suffix: "_spe", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Specular IOR Level"},
	{ID: "specular_tint", Name: "Specular Tint", Kind: KindPBR, Groups: bsdf, Suffix: "_spet", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Specular Tint"},
	{ID: "rough", Name: "Roughness", Kind: KindPBR, Groups: bsdfBasic, Suffix: "_rough", Enabled: true, ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Roughness"},
	{ID: "anisotropic", Name: "Anisotropy", Kind: KindPBR, Groups: bsdf, Suffix: "_aniso", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Anisotropic"},
	{ID: "anisotropic_rot", Name: "Anisotropy Rotating", Kind: KindPBR, Groups: bsdf, Suffix: "_anisorot", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Anisotropic Rotation"},
	{ID: "sheen", Name: "Sheen", Kind: KindPBR, Groups: bsdf, Suffix: "_sheen", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Sheen Weight"},
	{ID: "sheen_tint", Name: "Sheen Tint", Kind: KindPBR, Groups: bsdf, Suffix: "_sheentint", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Sheen Tint"},
	{ID: "sheen_rough", Name: "Sheen Roughness", Kind: KindPBR, Groups: bsdf, Suffix: "_sheenrough", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Sheen Roughness"},
	{ID: "clearcoat", Name: "Clearcoat", Kind: KindPBR, Groups: bsdf, Suffix: "_cc", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Coat Weight"},
	{ID: "clearcoat_rough", Name: "Clearcoat Roughness", Kind: KindPBR, Groups: bsdf, Suffix: "_ccr", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Coat Roughness"},
	{ID: "clearcoat_tint", Name: "Clearcoat Tint", Kind: KindPBR, Groups: bsdf, Suffix: "_cct", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Coat Tint"},
	{ID: "tran", Name: "Transmission", Kind: KindPBR, Groups: bsdf, Suffix: "_tran", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Transmission Weight"},
	{ID: "tran_rou", Name: "Transmission Roughness", Kind: KindPBR, Groups: bsdf, Suffix: "_tranr", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Transmission Roughness"},
	{ID: "emi", Name: "Emission", Kind: KindPBR, Groups: bsdfBasic, Suffix: "_emi", ColorSpace: ColorSRGB, Pass: "EMIT", Socket: "Emission Color"},
	{ID: "emi_str", Name: "Emission Strength", Kind: KindPBR, Groups: bsdf, Suffix: "_emistr", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Emission Strength"},
	{ID: "alpha", Name: "Alpha", Kind: KindPBR, Groups: bsdf, Suffix: "_alpha", ColorSpace: ColorNonColor, Pass: "EMIT", Socket: "Alpha"},
	{ID: "normal", Name: "Normal", Kind: KindPBR, Groups: bsdfBasic, Suffix: "_nor", Enabled: true, ColorSpace: ColorNonColor, Pass: "NORMAL", Socket: "Normal"},

	{ID: "diff", Name: "Diffuse", Kind: KindLight, Groups: basic, Suffix: "_diff", Enabled: true, ColorSpace: ColorSRGB, Pass: "DIFFUSE"},
	{ID: "gloss", Name: "Gloss", Kind: KindLight, Groups: basic, Suffix: "_gloss", ColorSpace: ColorSRGB, Pass: "GLOSSY"},
	{ID: "tranb", Name: "Transmission", Kind: KindLight, Groups: basic, Suffix: "_tranb", ColorSpace: ColorSRGB, Pass: "TRANSMISSION"},
	{ID: "combine", Name: "Combine", Kind: KindLight, Groups: basic, Suffix: "_com", ColorSpace: ColorSRGB, Pass: "COMBINED"},
	{ID: "ao", Name: "Ambient Occlusion", Kind: KindLight, Groups: light, Suffix: "_ao", ColorSpace: ColorNonColor, Pass: "AO"},
	{ID: "shadow", Name: "Shadow", Kind: KindLight, Groups: light, Suffix: "_sha", ColorSpace: ColorNonColor, Pass: "SHADOW"},
	{ID: "env", Name: "Environment", Kind: KindLight, Groups: light, Suffix: "_env", ColorSpace: ColorSRGB, Pass: "ENVIRONMENT"},

	{ID: "height", Name: "Height", Kind: KindMesh, Groups: mesh, Suffix: "_height", ColorSpace: ColorNonColor, Pass: "DISPLACEMENT"},
	{ID: "vertex", Name: "Vertex Color", Kind: KindMesh, Groups: mesh, Suffix: "_vertex", ColorSpace: ColorSRGB, Pass: "EMIT", Unavailable: notActive},
	{ID: "bevel", Name: "Bevel", Kind: KindMesh, Groups: mesh, Suffix: "_bv", ColorSpace: ColorNonColor, Pass: "EMIT"},
	{ID: "curvature", Name: "Curvature", Kind: KindMesh, Groups: mesh, Suffix: "_curv", ColorSpace: ColorNonColor, Pass: "EMIT"},
	{ID: "UV", Name: "UV", Kind: KindMesh, Groups: mesh, Suffix: "_UV", ColorSpace: ColorNonColor, Pass: "EMIT"},
	{ID: "wireframe", Name: "Wireframe", Kind: KindMesh, Groups: mesh, Suffix: "_wf", ColorSpace: ColorNonColor, Pass: "EMIT"},
	{ID: "bevnor", Name: "Bevel Normal", Kind: KindMesh, Groups: mesh, Suffix: "_bn", ColorSpace: ColorNonColor, Pass: "NORMAL"},
	{ID: "position", Name: "Position", Kind: KindMesh, Groups: mesh, Suffix: "_pos", ColorSpace: ColorNonColor, Pass: "EMIT"},
	{ID: "slope", Name: "Slope", Kind: KindMesh, Groups: mesh, Suffix: "_slope", ColorSpace: ColorNonColor, Pass: "EMIT"},
	{ID: "thickness", Name: "Thickness", Kind: KindMesh, Groups: mesh, Suffix: "_thick", ColorSpace: ColorNonColor, Pass: "EMIT"},
	{ID: "ID_mat", Name: "Material ID", Kind: KindMesh, Groups: mesh, Suffix: "_idmat", ColorSpace: ColorNonColor, Pass: "EMIT", Unavailable: notActive},
	{ID: "ID_ele", Name: "Element ID", Kind: KindMesh, Groups: mesh, Suffix: "_idele", ColorSpace: ColorNonColor, Pass: "EMIT", Unavailable: notActive},
	{ID: "ID_UVI", Name: "UV ID", Kind: KindMesh, Groups: mesh, Suffix: "_idUVI", ColorSpace: ColorNonColor, Pass: "EMIT", Unavailable: notActive},
	{ID: "ID_seam", Name: "Seam ID", Kind: KindMesh, Groups: mesh, Suffix: "_idseam", ColorSpace: ColorNonColor, Pass: "EMIT", Unavailable: notActive},
	{ID: "select", Name: "Select", Kind: KindMesh, Groups: mesh, Suffix: "_select", ColorSpace: ColorNonColor, Pass: "EMIT", Unavailable: notActive},

	{ID: "pbr_conv_base", Name: "Conv: Base Color", Kind: KindConversion, Groups: extension, Suffix: "_base_conv", ColorSpace: ColorSRGB, Pass: "CONVERT", Sources: []string{"color", "specular"}},
	{ID: "pbr_conv_metal", Name: "Conv: Metallic", Kind: KindConversion, Groups: extension, Suffix: "_metal_conv", ColorSpace: ColorNonColor, Pass: "CONVERT", Sources: []string{"specular"}},
	{ID: "pack", Name: "Channel Pack", Kind: KindConversion, Groups: extension, Suffix: "_pack", ColorSpace: ColorNonColor, Pass: "CONVERT"},
}

var catalogIndex = func() map[string]int {
	idx := make(map[string]int, len(catalog))
	for i, d := range catalog {
		idx[d.ID] = i
	}
	return idx
}()

// Catalog returns every known channel definition in display order.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog definition for a channel id.
func Lookup(id string) (Definition, bool) {
	i, ok := catalogIndex[id]
	if !ok {
		return Definition{}, false
	}
	return catalog[i], true
}
