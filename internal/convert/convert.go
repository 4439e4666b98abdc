// Package convert implements the in-process conversion channels: deriving
// metallic and base color maps from a specular workflow, and packing or
// composing several maps into the channels of one image.
//
// Every transform works row-parallel. Sources whose size differs from the
// requested output are resampled first.
package convert

import (
	"context"
	"errors"
	"math"
	"runtime"

	"github.com/specialistvlad/bakegridgo/internal/pixel"
	"golang.org/x/sync/errgroup"
)

// minRange keeps the metallic remap finite when the threshold reaches 1.
const minRange = 1e-5

// ErrNoSource is returned when a transform has nothing to read.
var ErrNoSource = errors.New("conversion has no source image")

// Metallic maps specular reflectance to a metallic value: reflectance at or
// below threshold is dielectric (0), full reflectance is metal (1).
func Metallic(spec pixel.Color, threshold float32) float32 {
	m := max(spec[0], spec[1], spec[2])
	den := float32(math.Max(minRange, float64(1-threshold)))
	return min(max((m-threshold)/den, 0), 1)
}

// MetalFromSpecular derives a metallic map from a specular color map.
func MetalFromSpecular(ctx context.Context, spec *pixel.Buffer, width, height int, threshold float64) (*pixel.Buffer, error) {
	if spec == nil {
		return nil, ErrNoSource
	}
	spec = fit(spec, width, height)
	out := pixel.New(width, height)
	thr := float32(threshold)
	err := rows(ctx, height, func(y int) {
		src, dst := spec.Row(y), out.Row(y)
		for i := 0; i < len(dst); i += 4 {
			m := Metallic(pixel.Color{src[i], src[i+1], src[i+2], src[i+3]}, thr)
			dst[i], dst[i+1], dst[i+2], dst[i+3] = m, m, m, 1
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BaseFromSpecular blends diffuse and specular color into a metallic
// workflow base color, weighting specular by the derived metallic value.
// Alpha is taken from the diffuse map.
func BaseFromSpecular(ctx context.Context, diffuse, spec *pixel.Buffer, width, height int, threshold float64) (*pixel.Buffer, error) {
	if diffuse == nil || spec == nil {
		return nil, ErrNoSource
	}
	diffuse, spec = fit(diffuse, width, height), fit(spec, width, height)
	out := pixel.New(width, height)
	thr := float32(threshold)
	err := rows(ctx, height, func(y int) {
		d, s, dst := diffuse.Row(y), spec.Row(y), out.Row(y)
		for i := 0; i < len(dst); i += 4 {
			m := Metallic(pixel.Color{s[i], s[i+1], s[i+2], s[i+3]}, thr)
			for c := 0; c < 3; c++ {
				dst[i+c] = d[i+c]*(1-m) + s[i+c]*m
			}
			dst[i+3] = d[i+3]
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Pack builds an image whose R, G, B and A channels come from the red
// channel of the respective source. Missing color sources leave 0, a missing
// alpha source leaves 1.
func Pack(ctx context.Context, sources [4]*pixel.Buffer, width, height int) (*pixel.Buffer, error) {
	found := false
	for i, s := range sources {
		if s != nil {
			sources[i] = fit(s, width, height)
			found = true
		}
	}
	if !found {
		return nil, ErrNoSource
	}
	out := pixel.New(width, height)
	err := rows(ctx, height, func(y int) {
		dst := out.Row(y)
		var src [4][]float32
		for c, s := range sources {
			if s != nil {
				src[c] = s.Row(y)
			}
		}
		for i := 0; i < len(dst); i += 4 {
			for c := 0; c < 4; c++ {
				switch {
				case src[c] != nil:
					dst[i+c] = src[c][i]
				case c == 3:
					dst[i+c] = 1
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Component fills one channel of a composed image. With Source set it copies
// channel Channel of the source, otherwise it writes Value. Invert replaces a
// value v by 1-v.
type Component struct {
	Source  *pixel.Buffer
	Channel int
	Value   float32
	Invert  bool
}

// Compose builds an image channel by channel from comps, in R, G, B, A
// order. Unlike Pack it needs no source: an all-constant image is valid.
func Compose(ctx context.Context, comps [4]Component, width, height int) (*pixel.Buffer, error) {
	for i := range comps {
		if comps[i].Source != nil {
			comps[i].Source = fit(comps[i].Source, width, height)
		}
	}
	out := pixel.New(width, height)
	err := rows(ctx, height, func(y int) {
		dst := out.Row(y)
		var src [4][]float32
		for c := range comps {
			if comps[c].Source != nil {
				src[c] = comps[c].Source.Row(y)
			}
		}
		for i := 0; i < len(dst); i += 4 {
			for c := range comps {
				v := comps[c].Value
				if src[c] != nil {
					v = src[c][i+comps[c].Channel]
				}
				if comps[c].Invert {
					v = 1 - v
				}
				dst[i+c] = v
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fit(b *pixel.Buffer, width, height int) *pixel.Buffer {
	if b.Width == width && b.Height == height {
		return b
	}
	return b.Resize(width, height)
}

// rows runs fn for every row index, split into one band per CPU. It stops
// early when ctx is cancelled.
func rows(ctx context.Context, height int, fn func(y int)) error {
	g, ctx := errgroup.WithContext(ctx)
	bands := runtime.GOMAXPROCS(0)
	if bands > height {
		bands = height
	}
	if bands < 1 {
		return nil
	}
	per := (height + bands - 1) / bands
	for start := 0; start < height; start += per {
		end := min(start+per, height)
		g.Go(func() error {
			for y := start; y < end; y++ {
				if (y-start)%64 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				fn(y)
			}
			return nil
		})
	}
	return g.Wait()
}
