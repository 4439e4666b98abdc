package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

func TestParseJobs(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	src := []byte(`
job "hero" {
  mode    = "udim"
  targets = ["Body", "Helmet"]

  sets {
    light = true
  }

  udim {
    policy = "explicit"
    tiles  = { Body = 1001, Helmet = 1002 }
  }

  output {
    root     = "out"
    template = "${object}/${base}${suffix}"
    format   = "TIFF"
    depth    = 16
  }

  channel "rough" {
    enabled = true
    pbr {
      invert = true
    }
  }

  channel "ao" {
    enabled = true
    light {
      samples = 8
    }
  }
}
`)

	// --- Act ---
	jobs, err := ParseJobs(src, "hero.hcl")

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	j := jobs[0]
	assert.Equal(t, ModeUDIM, j.Mode)
	assert.Equal(t, []string{"Body", "Helmet"}, j.Targets)
	assert.Equal(t, Sets{BakeType: BakeBSDF, Light: true}, j.Sets)
	assert.Equal(t, UDIMSettings{Policy: TileExplicit, Tiles: map[string]int{"Body": 1001, "Helmet": 1002}}, j.UDIM)
	assert.Equal(t, "${object}/${base}${suffix}", j.Output.Template, "template is kept unevaluated")
	assert.Equal(t, FormatTIFF, j.Output.Format)
	assert.Equal(t, 16, j.Output.Depth)
	assert.Equal(t, 1024, j.Output.Width, "absent attributes keep their defaults")

	require.Len(t, j.Channels, 2)
	assert.Equal(t, "Roughness", j.Channels[0].Name)
	assert.Equal(t, PBRParams{Invert: true}, j.Channels[0].Params)
	assert.Equal(t, LightParams{Samples: 8}, j.Channels[1].Params)
	assert.True(t, j.Channels[1].ValidForMode, "validity is recomputed on load")
}

func TestParseJobs_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "syntax error",
			src:     `job "a" {`,
			wantErr: "failed to parse",
		},
		{
			name:    "unknown channel",
			src: `job "a" {
  channel "nope" {}
}`,
			wantErr: "unknown channel id",
		},
		{
			name:    "two parameter blocks",
			src: `job "a" {
  channel "rough" {
    pbr {}
    light {}
  }
}`,
			wantErr: "only one parameter block",
		},
		{
			name:    "invalid mode",
			src:     `job "a" { mode = "sideways" }`,
			wantErr: "invalid job",
		},
		{
			name:    "template is not a string",
			src: `job "a" {
  output {
    template = 42 + 1
  }
}`,
			wantErr: "must be a quoted string",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseJobs([]byte(tc.src), "test.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	hero := NewJob("hero")
	hero.Targets = []string{"Body", "Helmet"}
	hero.SetSets(Sets{BakeType: BakeBSDF, Mesh: true, Extension: true})
	hero.SetMode(ModeUDIM)
	hero.UDIM = UDIMSettings{Policy: TileExplicit, Tiles: map[string]int{"Body": 1001, "Helmet": 1003}}
	hero.Output.Template = "${object}_${channel}"
	hero.Channel("ID_mat").Params = IDMapParams{Seed: 7, StartColor: "#ff0000", ManualStart: true}
	hero.Channel("pack").Params = ConversionParams{Threshold: 0.04, Red: "metal", Green: "rough"}
	hero.Channel("rough").Prefix = "T_"
	hero.Animation = &Animation{Start: 10, Count: 3, StartIndex: 1, Digits: 2}
	hero.SetSets(Sets{BakeType: BakeBSDF, Mesh: true, Extension: true, Custom: true})
	hero.AddCustomChannel(NewCustomChannel("orm", "ORM", CustomParams{
		ColorSpace: ColorNonColor,
		Red:        &CustomComponent{Value: 1},
		Green:      &CustomComponent{Source: "rough", Invert: true},
		Blue:       &CustomComponent{Source: "metal", Component: "g"},
	}))

	props := NewJob("props")
	props.Targets = []string{"Crate"}
	props.Active = "Crate"
	props.SetMode(ModeActive)

	// --- Act ---
	src := Encode(hero, props)
	got, err := ParseJobs(src, "roundtrip.hcl")

	// --- Assert ---
	require.NoError(t, err, string(src))
	if diff := cmp.Diff([]*Job{hero, props}, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseJobs_CustomChannelAndAnimation(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	src := []byte(`
job "hero" {
  targets = ["Body"]

  sets {
    custom = true
  }

  animation {
    start = 5
    count = 2
  }

  channel "custom_mask" {
    enabled = true
    suffix  = "_mask"
    custom {
      gray = true
      red {
        source = "rough"
        invert = true
      }
    }
  }
}
`)

	// --- Act ---
	jobs, err := ParseJobs(src, "hero.hcl")

	// --- Assert ---
	require.NoError(t, err)
	j := jobs[0]
	assert.Equal(t, &Animation{Start: 5, Count: 2, Digits: DefaultFrameDigits}, j.Animation, "digits default when absent")

	mask := j.Channel("custom_mask")
	require.NotNil(t, mask)
	assert.Equal(t, "mask", mask.Name, "the name defaults to the id without its prefix")
	assert.True(t, mask.ValidForMode)
	def := mask.Definition()
	assert.Equal(t, KindCustom, def.Kind)
	assert.Equal(t, "_mask", def.Suffix)
	assert.Equal(t, ColorNonColor, def.ColorSpace)
	assert.Equal(t, []string{"rough"}, def.Sources)
}

func TestParseJobs_TemplateEscapes(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	src := []byte(`
job "hero" {
  targets = ["Body"]

  output {
    template = "maps\\${object}_\"${upper("x")}\"$${kept}"
  }
}
`)

	// --- Act ---
	jobs, err := ParseJobs(src, "escapes.hcl")
	require.NoError(t, err)
	tmpl := jobs[0].Output.Template
	expr, diags := hclsyntax.ParseTemplate([]byte(tmpl), "template", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	rendered, diags := expr.Value(&hcl.EvalContext{
		Variables: map[string]cty.Value{"object": cty.StringVal("Body")},
		Functions: map[string]function.Function{"upper": stdlib.UpperFunc},
	})
	require.False(t, diags.HasErrors(), diags.Error())
	again, err := ParseJobs(Encode(jobs...), "again.hcl")

	// --- Assert ---
	assert.Equal(t, `maps\${object}_"${upper("x")}"$${kept}`, tmpl)
	assert.Equal(t, `maps\Body_"X"${kept}`, rendered.AsString())
	require.NoError(t, err, string(Encode(jobs...)))
	assert.Equal(t, tmpl, again[0].Output.Template)
}

func TestTemplateQuoting(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		bare   string
		quoted string
	}{
		{name: "plain", bare: "${object}_${base}", quoted: "${object}_${base}"},
		{name: "backslash", bare: `a\b`, quoted: `a\\b`},
		{name: "quote", bare: `say "hi"`, quoted: `say \"hi\"`},
		{name: "control characters", bare: "a\tb\nc", quoted: `a\tb\nc`},
		{name: "nested string in interpolation", bare: `${lower("A\\B")}\`, quoted: `${lower("A\\B")}\\`},
		{name: "escaped interpolation", bare: `$${object}\`, quoted: `$${object}\\`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.quoted, quoteTemplate(tc.bare))
			assert.Equal(t, tc.bare, unquoteTemplate(tc.quoted))
		})
	}
}

func TestSaveAndLoadJobs(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, SaveJobs(filepath.Join(dir, "b.hcl"), NewJob("second")))
	require.NoError(t, SaveJobs(filepath.Join(dir, "a.hcl"), NewJob("first")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	// --- Act ---
	jobs, err := LoadJobs(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "first", jobs[0].Name, "files are read in name order")
	assert.Equal(t, "second", jobs[1].Name)
}

func TestLoadJobs_NoFiles(t *testing.T) {
	t.Parallel()
	_, err := LoadJobs(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .hcl job files")
}
