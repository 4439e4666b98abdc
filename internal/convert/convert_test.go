package convert

import (
	"context"
	"testing"

	"github.com/specialistvlad/bakegridgo/internal/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gray(v float32) pixel.Color {
	return pixel.Color{v, v, v, 1}
}

func TestMetallic(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		spec      pixel.Color
		threshold float32
		want      float32
	}{
		{name: "dielectric", spec: gray(0.04), threshold: 0.04, want: 0},
		{name: "below threshold", spec: gray(0.01), threshold: 0.04, want: 0},
		{name: "full metal", spec: gray(1), threshold: 0.04, want: 1},
		{name: "halfway", spec: gray(0.52), threshold: 0.04, want: 0.5},
		{name: "brightest component wins", spec: pixel.Color{0.1, 0.52, 0.2, 1}, threshold: 0.04, want: 0.5},
		{name: "threshold of one stays finite", spec: gray(1), threshold: 1, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, Metallic(tc.spec, tc.threshold), 1e-5)
		})
	}
}

func TestMetalFromSpecular(t *testing.T) {
	t.Parallel()
	spec := pixel.New(2, 1)
	spec.Set(0, 0, gray(0.04))
	spec.Set(1, 0, gray(1))

	out, err := MetalFromSpecular(context.Background(), spec, 2, 1, 0.04)

	require.NoError(t, err)
	assert.Equal(t, gray(0), out.At(0, 0))
	assert.Equal(t, gray(1), out.At(1, 0))
}

func TestBaseFromSpecular(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	diffuse := pixel.Filled(2, 1, pixel.Color{0.8, 0.2, 0.2, 0.5})
	spec := pixel.New(2, 1)
	spec.Set(0, 0, gray(0.04))
	spec.Set(1, 0, pixel.Color{1, 0.9, 0.3, 1})

	// --- Act ---
	out, err := BaseFromSpecular(context.Background(), diffuse, spec, 2, 1, 0.04)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, pixel.Color{0.8, 0.2, 0.2, 0.5}, out.At(0, 0), "dielectrics keep the diffuse color")
	assert.Equal(t, pixel.Color{1, 0.9, 0.3, 0.5}, out.At(1, 0), "metals take the specular color")
}

func TestPack(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	metal := pixel.Filled(2, 2, gray(1))
	rough := pixel.Filled(4, 4, gray(0.5))

	// --- Act ---
	out, err := Pack(context.Background(), [4]*pixel.Buffer{metal, rough, nil, nil}, 2, 2)

	// --- Assert ---
	require.NoError(t, err)
	c := out.At(1, 1)
	assert.Equal(t, float32(1), c[0])
	assert.InDelta(t, 0.5, c[1], 1.0/255, "sources of another size are resampled")
	assert.Equal(t, float32(0), c[2])
	assert.Equal(t, float32(1), c[3], "a missing alpha source is opaque")
}

func TestCompose(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	rough := pixel.Filled(2, 2, pixel.Color{0.25, 0.75, 0, 1})
	comps := [4]Component{
		{Value: 1},
		{Source: rough, Channel: 1},
		{Source: rough, Invert: true},
		{Value: 0.5},
	}

	// --- Act ---
	out, err := Compose(context.Background(), comps, 2, 2)
	constant, cerr := Compose(context.Background(), [4]Component{3: {Value: 1}}, 1, 1)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, pixel.Color{1, 0.75, 0.75, 0.5}, out.At(1, 0))
	require.NoError(t, cerr)
	assert.Equal(t, pixel.Color{0, 0, 0, 1}, constant.At(0, 0), "constants need no source")
}

func TestTransforms_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := Pack(ctx, [4]*pixel.Buffer{}, 2, 2)
	assert.ErrorIs(t, err, ErrNoSource)
	_, err = MetalFromSpecular(ctx, nil, 2, 2, 0.04)
	assert.ErrorIs(t, err, ErrNoSource)
	_, err = BaseFromSpecular(ctx, pixel.New(1, 1), nil, 2, 2, 0.04)
	assert.ErrorIs(t, err, ErrNoSource)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = MetalFromSpecular(cancelled, pixel.New(8, 8), 8, 8, 0.04)
	assert.ErrorIs(t, err, context.Canceled)
}
