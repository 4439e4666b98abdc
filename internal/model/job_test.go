package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob_Defaults(t *testing.T) {
	t.Parallel()
	j := NewJob("hero")

	assert.Equal(t, ModeSingle, j.Mode)
	assert.Equal(t, DefaultTemplate, j.Output.Template)
	assert.Equal(t, 1024, j.Output.Width)

	// Only the bsdf group is enabled by default.
	for _, c := range j.Channels {
		def, ok := Lookup(c.ID)
		require.True(t, ok)
		assert.True(t, def.InGroups(j.Sets), "channel %s outside the enabled groups", c.ID)
		assert.True(t, c.ValidForMode)
	}
	require.NotNil(t, j.Channel("color"))
	assert.True(t, j.Channel("color").Enabled)
	assert.Nil(t, j.Channel("diff"), "basic-only channels are not added for bsdf jobs")
}

func TestSyncChannels_IsNonDestructive(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	j := NewJob("hero")
	rough := j.Channel("rough")
	rough.Params = PBRParams{Invert: true}
	rough.Prefix = "T_"
	before := len(j.Channels)

	// --- Act ---
	// Enable mesh channels, switch to active mode and back.
	j.SetSets(Sets{BakeType: BakeBSDF, Mesh: true})
	j.SetMode(ModeActive)
	j.SetMode(ModeSingle)
	j.SetSets(Sets{BakeType: BakeBSDF})

	// --- Assert ---
	assert.Greater(t, len(j.Channels), before, "mesh channels were appended")
	assert.Equal(t, PBRParams{Invert: true}, j.Channel("rough").Params)
	assert.Equal(t, "T_", j.Channel("rough").Prefix)
	require.NotNil(t, j.Channel("bevel"))
	assert.False(t, j.Channel("bevel").ValidForMode, "mesh group is disabled again")
}

func TestSyncChannels_ModeAvailability(t *testing.T) {
	t.Parallel()
	j := NewJob("hero")
	j.SetSets(Sets{BakeType: BakeBSDF, Mesh: true})
	idmat := j.Channel("ID_mat")
	require.NotNil(t, idmat)
	idmat.Enabled = true

	j.SetMode(ModeActive)
	assert.False(t, idmat.ValidForMode)
	assert.False(t, j.Eligible(idmat))

	j.SetMode(ModeMulti)
	assert.True(t, idmat.ValidForMode)
	assert.True(t, j.Eligible(idmat))
}

func TestEligibleChannels_KeepsJobOrder(t *testing.T) {
	t.Parallel()
	j := NewJob("hero")
	var ids []string
	for _, c := range j.EligibleChannels() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"color", "rough", "normal"}, ids)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(j *Job)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(j *Job) {}},
		{
			name:    "bad format",
			mutate:  func(j *Job) { j.Output.Format = "gif" },
			wantErr: "Format",
		},
		{
			name:    "zero width",
			mutate:  func(j *Job) { j.Output.Width = 0 },
			wantErr: "Width",
		},
		{
			name:    "active without low-poly",
			mutate:  func(j *Job) { j.Mode = ModeActive },
			wantErr: "designated low-poly",
		},
		{
			name:    "duplicate channel",
			mutate:  func(j *Job) { j.Channels = append(j.Channels, NewChannel(j.Channels[0].Definition())) },
			wantErr: "declared more than once",
		},
		{
			name:    "params of the wrong kind",
			mutate:  func(j *Job) { j.Channel("rough").Params = LightParams{} },
			wantErr: "light parameters on a pbr channel",
		},
		{
			name: "negative samples",
			mutate: func(j *Job) {
				j.SetSets(Sets{BakeType: BakeBSDF, Light: true})
				j.Channel("ao").Params = LightParams{Samples: -1}
			},
			wantErr: "Samples",
		},
		{
			name:    "custom params on a catalog channel",
			mutate:  func(j *Job) { j.Channel("rough").Params = CustomParams{} },
			wantErr: "custom parameters on a pbr channel",
		},
		{
			name: "custom value out of range",
			mutate: func(j *Job) {
				j.AddCustomChannel(NewCustomChannel("mask", "", CustomParams{Red: &CustomComponent{Value: 2}}))
			},
			wantErr: "Value",
		},
		{
			name:    "animation without frames",
			mutate:  func(j *Job) { j.Animation = NewAnimation(1, 0) },
			wantErr: "Count",
		},
		{
			name:   "animated job is valid",
			mutate: func(j *Job) { j.Animation = NewAnimation(1, 24) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			j := NewJob("hero")
			tc.mutate(j)

			err := j.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestCatalog(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for _, def := range Catalog() {
		assert.False(t, seen[def.ID], "duplicate id %s", def.ID)
		seen[def.ID] = true
		assert.NotEmpty(t, def.Suffix, def.ID)
		assert.NotEmpty(t, def.Groups, def.ID)
	}

	base, ok := Lookup("pbr_conv_base")
	require.True(t, ok)
	assert.Equal(t, []string{"color", "specular"}, base.Sources)
	assert.True(t, mustLookup(t, "ID_seam").IsIDMap())
	assert.True(t, mustLookup(t, "normal").IsNormal())
	assert.False(t, mustLookup(t, "vertex").AvailableIn(ModeActive))

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func mustLookup(t *testing.T, id string) Definition {
	t.Helper()
	def, ok := Lookup(id)
	require.True(t, ok, id)
	return def
}
