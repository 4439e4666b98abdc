package filejournal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/bakegridgo/internal/journal"
	"github.com/specialistvlad/bakegridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestJournal returns a journal whose clock advances one second per call,
// so session files sort in creation order.
func newTestJournal(t *testing.T, retain int) *Journal {
	t.Helper()
	j := New(filepath.Join(t.TempDir(), "journal"), retain)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return j
}

func TestSession_RecordAndSummarize(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	// --- Arrange ---
	j := newTestJournal(t, 0)
	s, err := j.Open(ctx, journal.Header{JobID: "job-1", Job: "hero", Steps: 2})
	require.NoError(t, err)

	// --- Act ---
	require.NoError(t, s.Record(ctx, journal.Entry{Step: 0, Phase: journal.PhaseStarted, Object: "Body", Channel: "color"}))
	require.NoError(t, s.Record(ctx, journal.Entry{Step: 0, Phase: journal.PhaseCommitted, Object: "Body", Channel: "color"}))
	require.NoError(t, s.Record(ctx, journal.Entry{Step: 1, Phase: journal.PhaseStarted, Object: "Body", Channel: "rough"}))
	require.NoError(t, s.Record(ctx, journal.Entry{Step: 1, Phase: journal.PhaseFailed, Object: "Body", Channel: "rough", Message: "boom"}))
	require.NoError(t, s.Close(ctx, "COMPLETED"))

	// --- Assert ---
	sum, err := j.LastSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, s.ID(), sum.SessionID)
	assert.Equal(t, "job-1", sum.JobID)
	assert.Equal(t, 2, sum.TotalSteps)
	assert.True(t, sum.Closed)
	assert.False(t, sum.Unclean())
	ref, _ := sum.Reached(1)
	assert.Equal(t, "boom", ref.Message)
}

func TestSession_RecordAfterClose(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	j := newTestJournal(t, 0)
	s, err := j.Open(ctx, journal.Header{Job: "hero"})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx, "COMPLETED"))
	require.NoError(t, s.Close(ctx, "COMPLETED"), "closing twice is a no-op")

	err = s.Record(ctx, journal.Entry{Step: 0, Phase: journal.PhaseStarted})

	var werr *journal.WriteError
	require.True(t, errors.As(err, &werr))
	assert.True(t, errors.Is(err, os.ErrClosed))
}

func TestLastSession_DetectsCrash(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	// --- Arrange ---
	j := newTestJournal(t, 0)
	first, err := j.Open(ctx, journal.Header{Job: "old", Steps: 1})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx, "COMPLETED"))

	s, err := j.Open(ctx, journal.Header{Job: "hero", Steps: 3})
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, journal.Entry{Step: 0, Phase: journal.PhaseStarted, Object: "Body", Channel: "color", Tile: 1002}))
	require.NoError(t, s.Record(ctx, journal.Entry{Step: 0, Phase: journal.PhaseInProgress, Object: "Body", Channel: "color", Tile: 1002}))

	// Simulate a crash in the middle of the next write.
	files, err := j.Sessions()
	require.NoError(t, err)
	f, err := os.OpenFile(files[len(files)-1], os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"step","step":0,"pha`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// --- Act ---
	sum, err := j.LastSession(ctx)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "hero", sum.Job)
	assert.True(t, sum.Unclean())
	require.NotNil(t, sum.Interrupted)
	assert.Equal(t, journal.StepRef{Step: 0, Phase: journal.PhaseInProgress, Object: "Body", Channel: "color", Tile: 1002}, *sum.Interrupted)
	assert.Contains(t, sum.Banner(), "(tile 1002)")
}

func TestLastSession_Empty(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	sum, err := newTestJournal(t, 0).LastSession(ctx)

	require.NoError(t, err)
	assert.Nil(t, sum)
}

func TestOpen_PrunesOldSessions(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	j := newTestJournal(t, 2)

	var last journal.Session
	for range 4 {
		s, err := j.Open(ctx, journal.Header{Job: "hero"})
		require.NoError(t, err)
		require.NoError(t, s.Close(ctx, "COMPLETED"))
		last = s
	}

	files, err := j.Sessions()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, filepath.Base(files[1]), last.ID())
}

func TestOpen_UnwritableDirectory(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := New(filepath.Join(blocker, "journal"), 0).Open(ctx, journal.Header{Job: "hero"})

	var werr *journal.WriteError
	assert.True(t, errors.As(err, &werr), "got %v", err)
}
