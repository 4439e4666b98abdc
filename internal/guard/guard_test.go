package guard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/specialistvlad/bakegridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder logs acquire and release calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) factory(name string, releaseErr error) AcquireFunc {
	return func(ctx context.Context) (func(context.Context) error, error) {
		r.add("+" + name)
		return func(context.Context) error {
			r.add("-" + name)
			return releaseErr
		}, nil
	}
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func TestScope_ReleaseAllIsLIFO(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	// --- Arrange ---
	rec := &recorder{}
	g := New(nil)
	scope := g.Open(ScopeStep, "step")
	for _, name := range []string{"a", "b", "c"} {
		_, err := scope.Acquire(ctx, name, rec.factory(name, nil))
		require.NoError(t, err)
	}
	require.Equal(t, 3, g.Outstanding())

	// --- Act ---
	err := scope.ReleaseAll(ctx)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"+a", "+b", "+c", "-c", "-b", "-a"}, rec.calls)
	assert.Zero(t, g.Outstanding())
}

func TestResource_ReleasedExactlyOnce(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	rec := &recorder{}
	g := New(nil)
	scope := g.Open(ScopeSession, "job")
	r, err := scope.Acquire(ctx, "a", rec.factory("a", nil))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Release(ctx, r)
		}()
	}
	wg.Wait()
	require.NoError(t, scope.ReleaseAll(ctx))
	require.NoError(t, scope.ReleaseAll(ctx))

	assert.Equal(t, []string{"+a", "-a"}, rec.calls)
	assert.Zero(t, g.Outstanding())
}

func TestScope_ReleaseErrorsAreJoined(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	rec := &recorder{}
	errA, errC := errors.New("a broke"), errors.New("c broke")
	scope := New(nil).Open(ScopeStep, "step")
	for name, rerr := range map[string]error{"a": errA, "c": errC} {
		_, err := scope.Acquire(ctx, name, rec.factory(name, rerr))
		require.NoError(t, err)
	}
	_, err := scope.Acquire(ctx, "b", rec.factory("b", nil))
	require.NoError(t, err)

	err = scope.ReleaseAll(ctx)

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Len(t, rec.calls, 6, "a failing release does not stop the others")
}

func TestScope_FailedAcquireRegistersNothing(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	g := New(nil)
	scope := g.Open(ScopeStep, "step")

	_, err := scope.Acquire(ctx, "a", func(context.Context) (func(context.Context) error, error) {
		return nil, errors.New("no room")
	})

	assert.ErrorContains(t, err, `acquire "a": no room`)
	assert.Zero(t, g.Outstanding())
	require.NoError(t, scope.ReleaseAll(ctx))
}

func TestGuard_OneStepScopeAtATime(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	g := New(nil)
	first := g.Open(ScopeStep, "first")
	g.Open(ScopeSession, "job")

	assert.Panics(t, func() { g.Open(ScopeStep, "second") })

	require.NoError(t, first.ReleaseAll(ctx))
	assert.NotPanics(t, func() { g.Open(ScopeStep, "third") })

	_, err := first.Acquire(ctx, "late", (&recorder{}).factory("late", nil))
	assert.ErrorContains(t, err, "is closed")
}

func TestGuard_ReleasesOnPanic(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	rec := &recorder{}
	g := New(nil)

	func() {
		defer func() { _ = recover() }()
		scope := g.Open(ScopeStep, "step")
		defer scope.ReleaseAll(context.WithoutCancel(ctx))
		_, err := scope.Acquire(ctx, "a", rec.factory("a", nil))
		require.NoError(t, err)
		panic("renderer crashed")
	}()

	assert.Equal(t, []string{"+a", "-a"}, rec.calls)
	assert.Zero(t, g.Outstanding())
}

func TestGuard_CheckpointsEveryChange(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	checkpoints := 0
	g := New(func() error {
		checkpoints++
		return errors.New("disk full")
	})
	scope := g.Open(ScopeStep, "step")

	_, err := scope.Acquire(ctx, "a", (&recorder{}).factory("a", nil))
	require.NoError(t, err, "checkpoint failures are only logged")
	require.NoError(t, scope.ReleaseAll(ctx))

	assert.Equal(t, 2, checkpoints)
}

func TestNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BT_ATTR_MAT", AttributeName("ID_mat"))
	assert.Equal(t, "BT_ATTR_SEAM", AttributeName("ID_seam"))
	assert.Equal(t, "BT_Capture_rough", CaptureNode("rough"))

	for _, name := range []string{WorkUVLayer, ProtectionImage, CaptureNode("x"), AttributeName("ID_ele")} {
		assert.True(t, IsArtifact(name), name)
	}
	assert.False(t, IsArtifact("UVMap"))
	assert.False(t, IsArtifact("bt_capture_x"))
}
