package app

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/specialistvlad/bakegridgo/internal/testutil"
	"github.com/stretchr/testify/require"
)

// workspace is a temp directory holding a scene, a job document and engine
// settings whose journal and audit log stay inside it.
type workspace struct {
	dir   string
	scene *scene.Scene
	cfg   *Config
}

const heroJobs = `
job "hero" {
  targets = ["Body", "Helmet"]

  output {
    width  = 64
    height = 64
  }
}

job "broken" {
  targets = ["Ghost"]
}
`

func newWorkspace(t *testing.T, jobs string) *workspace {
	t.Helper()
	dir := t.TempDir()
	settings := fmt.Sprintf(`
journal:
  dir: %q
  retain: 5
cleanup:
  audit_log: %q
render:
  samples: 4
`, filepath.Join(dir, "journal"), filepath.Join(dir, "cleanup.log"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "jobs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs", "hero.hcl"), []byte(jobs), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(settings), 0o644))

	sc := testutil.SavedScene(t, []*scene.Object{
		testutil.Quad("Body", 0.1, 0.1, 0.5, "Skin"),
		testutil.Quad("Helmet", 0.2, 0.2, 0.5, "Metal"),
	}, testutil.Materials("Skin", "Metal"))

	return &workspace{
		dir:   dir,
		scene: sc,
		cfg: &Config{
			JobPath:    filepath.Join(dir, "jobs"),
			ScenePath:  sc.Path(),
			OutputRoot: filepath.Join(dir, "out"),
			ConfigPath: filepath.Join(dir, "settings.yaml"),
			LogLevel:   "debug",
		},
	}
}

// newApp builds an app over the workspace, logging into a buffer.
func (w *workspace) newApp(t *testing.T, opts ...Option) (*App, *testutil.SafeBuffer) {
	t.Helper()
	logs := &testutil.SafeBuffer{}
	a, err := NewApp(logs, w.cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if testing.Verbose() && t.Failed() {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, logs
}
