package renderer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/guard"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/pixel"
	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/specialistvlad/bakegridgo/internal/udim"
)

var (
	// ErrNoUV is returned when the object has no UV layer to bake into.
	ErrNoUV = errors.New("object has no uv layer")
	// ErrMissingCapture is returned when a material lacks its capture node.
	ErrMissingCapture = errors.New("capture node missing")
	// ErrMissingAttribute is returned when an ID map has no source attribute.
	ErrMissingAttribute = errors.New("id attribute missing")
)

// socketDefaults are the values used when a material leaves an input unset.
var socketDefaults = map[string]float32{
	"Base Color":         0.8,
	"Roughness":          0.5,
	"Specular IOR Level": 0.5,
	"Alpha":              1,
	"Emission Strength":  1,
}

// passValues are the flat results of lighting and mesh passes.
var passValues = map[string]float32{
	"DIFFUSE":      0.8,
	"GLOSSY":       0.2,
	"TRANSMISSION": 0,
	"COMBINED":     0.6,
	"AO":           1,
	"SHADOW":       1,
	"ENVIRONMENT":  0.05,
	"DISPLACEMENT": 0.5,
}

// Synthetic is a deterministic Renderer. It fills the UV footprint of the
// object in the requested tile with values read from the scene, so results
// depend only on the scene and the descriptor.
type Synthetic struct{}

// NewSynthetic creates a synthetic renderer.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

// Render implements Renderer.
func (r *Synthetic) Render(ctx context.Context, sc *scene.Scene, d Descriptor) (*pixel.Buffer, error) {
	fail := func(err error) (*pixel.Buffer, error) {
		return nil, &RenderError{Object: d.Object, Channel: d.Channel.ID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return fail(fmt.Errorf("invalid size %dx%d", d.Width, d.Height))
	}

	obj, ok := sc.Object(d.Object)
	if !ok {
		return fail(fmt.Errorf("object %q: %w", d.Object, scene.ErrNotFound))
	}
	layer := r.layer(obj, d.UVLayer)
	if layer == nil {
		return fail(ErrNoUV)
	}
	for _, src := range d.Sources {
		if _, ok := sc.Object(src); !ok {
			return fail(fmt.Errorf("source %q: %w", src, scene.ErrNotFound))
		}
	}
	if d.Capture {
		for _, name := range d.Materials {
			m, ok := sc.Material(name)
			if !ok || !slices.Contains(m.Nodes, guard.CaptureNode(d.Channel.ID)) {
				return fail(fmt.Errorf("material %q: %w", name, ErrMissingCapture))
			}
		}
	}

	def := d.Channel.Definition()
	var palette []pixel.Color
	if def.IsIDMap() {
		if !slices.Contains(obj.Attributes, guard.AttributeName(d.Channel.ID)) {
			return fail(ErrMissingAttribute)
		}
		params, _ := d.Channel.Params.(model.IDMapParams)
		palette = Palette(max(len(obj.Materials), 1), params)
	}

	value := r.value(sc, d, def)
	x0, y0, x1, y1 := footprint(layer, d)
	ctxlog.FromContext(ctx).Debug("Rendering channel.",
		"object", d.Object, "channel", d.Channel.ID, "pass", d.Pass,
		"tile", d.Tile, "layer", layer.Name, "rect", []int{x0, y0, x1, y1})

	out := pixel.New(d.Width, d.Height)
	for y := y0; y < y1; y++ {
		if (y-y0)%64 == 0 {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
		}
		for x := x0; x < x1; x++ {
			c := value
			switch {
			case palette != nil:
				// One band per material slot.
				c = palette[(x-x0)*len(palette)/max(x1-x0, 1)]
			case d.Channel.ID == "UV":
				c = pixel.Color{float32(x) / float32(d.Width), 1 - float32(y)/float32(d.Height), 0, 1}
			}
			out.Set(x, y, c)
		}
	}
	return out, nil
}

func (r *Synthetic) layer(obj *scene.Object, name string) *scene.UVLayer {
	if name == "" {
		name = obj.BakeUV
	}
	for _, l := range obj.UVLayers {
		if name != "" && l.Name == name {
			return l
		}
	}
	return obj.ActiveLayer()
}

func (r *Synthetic) value(sc *scene.Scene, d Descriptor, def model.Definition) pixel.Color {
	if def.IsNormal() {
		return pixel.Color{0.5, 0.5, 1, 1}
	}
	if d.Socket != "" {
		v, ok := socketDefaults[d.Socket]
		mat := d.Material
		if mat == "" && len(d.Materials) > 0 {
			mat = d.Materials[0]
		}
		if m, found := sc.Material(mat); found {
			if in, set := m.Inputs[d.Socket]; set {
				v, ok = float32(in), true
			}
		}
		if !ok {
			v = 0
		}
		if pbr, isPBR := d.Channel.Params.(model.PBRParams); isPBR && pbr.Invert {
			v = 1 - v
		}
		return pixel.Color{v, v, v, 1}
	}
	v, ok := passValues[d.Pass]
	if !ok {
		v = 0.5
	}
	return pixel.Color{v, v, v, 1}
}

// footprint returns the pixel rectangle covered by the layer inside the
// descriptor's tile, grown by the margin.
func footprint(layer *scene.UVLayer, d Descriptor) (x0, y0, x1, y1 int) {
	if len(layer.Coords) == 0 {
		return 0, 0, 0, 0
	}
	u0, v0 := udim.Origin(d.Tile)
	umin, vmin := math.Inf(1), math.Inf(1)
	umax, vmax := math.Inf(-1), math.Inf(-1)
	for _, c := range layer.Coords {
		umin, umax = math.Min(umin, c.U-u0), math.Max(umax, c.U-u0)
		vmin, vmax = math.Min(vmin, c.V-v0), math.Max(vmax, c.V-v0)
	}
	umin, umax = math.Max(umin, 0), math.Min(umax, 1)
	vmin, vmax = math.Max(vmin, 0), math.Min(vmax, 1)
	if umin >= umax || vmin >= vmax {
		return 0, 0, 0, 0
	}
	w, h := float64(d.Width), float64(d.Height)
	x0 = max(int(math.Floor(umin*w))-d.Margin, 0)
	x1 = min(int(math.Ceil(umax*w))+d.Margin, d.Width)
	y0 = max(int(math.Floor((1-vmax)*h))-d.Margin, 0)
	y1 = min(int(math.Ceil((1-vmin)*h))+d.Margin, d.Height)
	return x0, y0, x1, y1
}
