package executor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/bakegridgo/internal/builder"
	"github.com/specialistvlad/bakegridgo/internal/filejournal"
	"github.com/specialistvlad/bakegridgo/internal/imagestore"
	"github.com/specialistvlad/bakegridgo/internal/journal"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/pixel"
	"github.com/specialistvlad/bakegridgo/internal/renderer"
	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/specialistvlad/bakegridgo/internal/task"
	"github.com/specialistvlad/bakegridgo/internal/testutil"
	"github.com/specialistvlad/bakegridgo/internal/udim"
	"github.com/stretchr/testify/require"
)

// fixture wires an executor against a saved scene, a file journal and a
// file image store in temp directories.
type fixture struct {
	job      string
	sc       *scene.Scene
	pristine string
	root     string
	journal  *filejournal.Journal
	steps    []task.Step
}

func newFixture(t *testing.T, job *model.Job) *fixture {
	t.Helper()
	mats := testutil.Materials("Skin", "Cloth", "Metal")
	mats[0].Inputs = map[string]float64{"Roughness": 0.25, "Specular IOR Level": 1}
	sc := testutil.SavedScene(t, []*scene.Object{
		testutil.Quad("Body", 0.1, 0.1, 0.5, "Skin", "Cloth"),
		testutil.Quad("Helmet", 0.2, 0.2, 0.5, "Metal"),
	}, mats)
	return fixtureFor(t, job, sc)
}

// fileFixture loads the scene from a file written with content verbatim.
func fileFixture(t *testing.T, job *model.Job, content string) *fixture {
	t.Helper()
	dir := testutil.WriteFiles(t, map[string]string{"scene.json": content})
	sc, err := scene.Load(filepath.Join(dir, "scene.json"))
	require.NoError(t, err)
	return fixtureFor(t, job, sc)
}

func fixtureFor(t *testing.T, job *model.Job, sc *scene.Scene) *fixture {
	t.Helper()
	ctx, _ := testutil.Context(t)
	steps, _, err := builder.Prepare(ctx, job, sc, udim.NewPacker(0, 0))
	require.NoError(t, err)

	return &fixture{
		job:      job.Name,
		sc:       sc,
		pristine: sc.Fingerprint(),
		root:     filepath.Join(t.TempDir(), "bakes"),
		journal:  filejournal.New(filepath.Join(t.TempDir(), "journal"), 0),
		steps:    steps,
	}
}

// defaultJob bakes color, rough and normal for Body and Helmet.
func defaultJob() *model.Job {
	job := model.NewJob("hero")
	job.Targets = []string{"Body", "Helmet"}
	return job
}

func (f *fixture) config(r renderer.Renderer) Config {
	return Config{
		Job:      f.job,
		Scene:    f.sc,
		Steps:    f.steps,
		Journal:  f.journal,
		Renderer: r,
		Images:   imagestore.NewFileStore(f.root),
		Samples:  16,
	}
}

func (f *fixture) executor(t *testing.T, r renderer.Renderer) *Executor {
	t.Helper()
	ex, err := New(f.config(r))
	require.NoError(t, err)
	return ex
}

// crashAt returns a renderer that, at the given step, copies the scene's
// recovery file next to crashed (what the host finds if the process dies
// there) and panics.
func crashAt(step int, crashed string) renderer.Renderer {
	return hooked(func(ctx context.Context, sc *scene.Scene, d renderer.Descriptor) error {
		if d.Step != step {
			return nil
		}
		raw, err := os.ReadFile(scene.RecoveryPath(sc.Path()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(scene.RecoveryPath(crashed), raw, 0o644); err != nil {
			return err
		}
		panic("renderer crashed")
	})
}

// hooked returns a renderer that calls hook before the synthetic renderer.
// A non-nil error from hook fails the capture.
func hooked(hook func(ctx context.Context, sc *scene.Scene, d renderer.Descriptor) error) renderer.Renderer {
	synthetic := renderer.NewSynthetic()
	return renderer.Func(func(ctx context.Context, sc *scene.Scene, d renderer.Descriptor) (*pixel.Buffer, error) {
		if err := hook(ctx, sc, d); err != nil {
			return nil, err
		}
		return synthetic.Render(ctx, sc, d)
	})
}

// memJournal keeps sessions in memory and can fail chosen records.
type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	state   string
	failOn  func(e journal.Entry) error
}

func (j *memJournal) Open(ctx context.Context, h journal.Header) (journal.Session, error) {
	return &memSession{j: j}, nil
}

func (j *memJournal) LastSession(ctx context.Context) (*journal.SessionSummary, error) {
	return nil, nil
}

type memSession struct {
	j *memJournal
}

func (s *memSession) ID() string { return "mem" }

func (s *memSession) Record(ctx context.Context, e journal.Entry) error {
	s.j.mu.Lock()
	defer s.j.mu.Unlock()
	if s.j.failOn != nil {
		if err := s.j.failOn(e); err != nil {
			return &journal.WriteError{Path: "mem", Err: err}
		}
	}
	s.j.entries = append(s.j.entries, e)
	return nil
}

func (s *memSession) Close(ctx context.Context, state string) error {
	s.j.mu.Lock()
	defer s.j.mu.Unlock()
	s.j.state = state
	return nil
}

// phases returns the recorded phases of one step in order.
func (j *memJournal) phases(step int) []journal.Phase {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.Phase
	for _, e := range j.entries {
		if e.Step == step {
			out = append(out, e.Phase)
		}
	}
	return out
}

// failingStore fails the commit of one step's output path.
type failingStore struct {
	*imagestore.FileStore
	path string
	err  error
}

func (s *failingStore) Commit(ctx context.Context, t *imagestore.Target, buf *pixel.Buffer) error {
	if filepath.Base(t.Path) == s.path {
		_ = s.FileStore.Discard(ctx, t)
		return s.err
	}
	return s.FileStore.Commit(ctx, t, buf)
}
