package renderer

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/pixel"
)

const goldenRatio = 0.618033988749895

// Palette returns count distinct ID colors. Hues advance by the golden ratio
// from the start color (ManualStart) or from a seeded random hue, and the
// first color is the start color itself when ManualStart is set. The result
// depends only on count and params.
func Palette(count int, params model.IDMapParams) []pixel.Color {
	if count <= 0 {
		return nil
	}
	start, hasStart := parseHex(params.StartColor)
	if !hasStart {
		start = pixel.Color{1, 0, 0, 1}
	}
	rng := rand.New(rand.NewPCG(uint64(params.Seed), 0))
	h0 := hue(start)
	if !params.ManualStart {
		h0 = rng.Float64()
	}

	out := make([]pixel.Color, count)
	for i := range out {
		h := math.Mod(h0+float64(i)*goldenRatio, 1)
		s := 0.5 + rng.Float64()*0.3
		v := 0.8 + rng.Float64()*0.2
		r, g, b := hsvToRGB(h, s, v)
		out[i] = pixel.Color{float32(r), float32(g), float32(b), 1}
	}
	if params.ManualStart {
		out[0] = start
	}
	return out
}

// parseHex reads "#rgb", "#rgba", "#rrggbb" or "#rrggbbaa". Alpha is
// ignored: ID colors are always opaque.
func parseHex(s string) (pixel.Color, bool) {
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 3, 4:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 8:
		s = s[:6]
	}
	if len(s) != 6 {
		return pixel.Color{}, false
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return pixel.Color{}, false
	}
	return pixel.Color{
		float32(n>>16&0xff) / 255,
		float32(n>>8&0xff) / 255,
		float32(n&0xff) / 255,
		1,
	}, true
}

func hue(c pixel.Color) float64 {
	r, g, b := float64(c[0]), float64(c[1]), float64(c[2])
	mx, mn := math.Max(r, math.Max(g, b)), math.Min(r, math.Min(g, b))
	d := mx - mn
	if d == 0 {
		return 0
	}
	var h float64
	switch mx {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h /= 6
	if h < 0 {
		h++
	}
	return h
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	i := math.Floor(h * 6)
	f := h*6 - i
	p, q, t := v*(1-s), v*(1-f*s), v*(1-(1-f)*s)
	switch int(i) % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
