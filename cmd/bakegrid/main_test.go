package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup writes a scene, one job and engine settings into a temp directory
// and returns the common flags pointing at them.
func setup(t *testing.T) (dir string, flags []string) {
	t.Helper()
	dir = t.TempDir()
	scenePath := filepath.Join(dir, "scene.json")
	sc := scene.New([]*scene.Object{{
		Name:      "Body",
		Materials: []string{"Skin"},
		UVLayers: []*scene.UVLayer{{
			Name:   "UVMap",
			Coords: []scene.UV{{U: 0.1, V: 0.1}, {U: 0.6, V: 0.1}, {U: 0.6, V: 0.6}},
		}},
	}}, []*scene.Material{{Name: "Skin"}}, nil)
	require.NoError(t, sc.Save(scenePath))

	job := `
job "hero" {
  targets = ["Body"]

  output {
    width  = 32
    height = 32
  }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.hcl"), []byte(job), 0o600))

	settings := fmt.Sprintf("journal:\n  dir: %q\ncleanup:\n  audit_log: %q\n",
		filepath.Join(dir, "journal"), filepath.Join(dir, "cleanup.log"))
	settingsPath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(settings), 0o600))

	return dir, []string{"-scene", scenePath, "-config", settingsPath, "-output", filepath.Join(dir, "out"), "-log-level", "error"}
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"run", "--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_BakeThenStatus(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	dir, flags := setup(t)
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, append(append([]string{"run"}, flags...), filepath.Join(dir, "hero.hcl")))

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), "COMPLETED (succeeded=3 failed=0 skipped=0)")
	assert.FileExists(t, filepath.Join(dir, "out", "Body_rough.png"))

	out.Reset()
	require.NoError(t, run(context.Background(), out, append([]string{"status"}, flags...)))
	assert.Contains(t, out.String(), `of job "hero": COMPLETED (committed=3 failed=0)`)
}

func TestRun_StatusWithoutSessions(t *testing.T) {
	t.Parallel()
	_, flags := setup(t)
	out := &bytes.Buffer{}

	err := run(context.Background(), out, append([]string{"status"}, flags...))

	require.NoError(t, err)
	assert.Contains(t, out.String(), "no sessions recorded")
}

func TestRun_CleanupWithNothingLeft(t *testing.T) {
	t.Parallel()
	_, flags := setup(t)
	out := &bytes.Buffer{}

	err := run(context.Background(), out, append([]string{"cleanup"}, flags...))

	require.NoError(t, err)
	assert.Contains(t, out.String(), "cleanup: nothing to clean")
}
