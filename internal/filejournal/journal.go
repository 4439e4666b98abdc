// Package filejournal provides a durable, file-backed implementation of the
// journal.Journal interface.
//
// # Layout
//
// Each session is one JSON-lines file in the journal directory, named
// `<UTC timestamp>-<uuid>.jsonl` so lexical order is chronological. The first
// line is the session header, then one line per step record, then a close
// line when the job finished.
//
// # Durability
//
// Every line is written with a single write call and fsynced before Record
// returns; the directory is fsynced when a session file is created. A line
// torn by a crash is skipped when the file is read back.
package filejournal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/fsutil"
	"github.com/specialistvlad/bakegridgo/internal/journal"
)

const (
	fileExt    = ".jsonl"
	timeLayout = "20060102T150405.000000000Z"
)

// Journal stores sessions in a directory.
type Journal struct {
	dir    string
	retain int
	now    func() time.Time
}

// New creates a journal in dir keeping at most retain session files. A
// non-positive retain keeps everything.
func New(dir string, retain int) *Journal {
	return &Journal{dir: dir, retain: retain, now: time.Now}
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// Open creates a new session file and writes its header.
func (j *Journal) Open(ctx context.Context, h journal.Header) (journal.Session, error) {
	logger := ctxlog.FromContext(ctx)
	if err := fsutil.EnsureDir(j.dir); err != nil {
		return nil, &journal.WriteError{Path: j.dir, Err: err}
	}

	id := uuid.New().String()
	now := j.now().UTC()
	path := filepath.Join(j.dir, now.Format(timeLayout)+"-"+id+fileExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &journal.WriteError{Path: path, Err: err}
	}
	if err := fsutil.SyncDir(j.dir); err != nil {
		f.Close()
		return nil, &journal.WriteError{Path: j.dir, Err: err}
	}

	s := &session{id: id, path: path, f: f, now: j.now}
	if err := s.write(journal.Record{
		Type:      journal.RecordSession,
		Time:      now,
		SessionID: id,
		JobID:     h.JobID,
		Job:       h.Job,
		Steps:     h.Steps,
	}); err != nil {
		f.Close()
		return nil, err
	}
	logger.Debug("Journal session opened.", "session", id, "path", path)

	if err := j.prune(path); err != nil {
		logger.Warn("Failed to prune old journal sessions.", "error", err)
	}
	return s, nil
}

// LastSession reads the newest session file.
func (j *Journal) LastSession(ctx context.Context) (*journal.SessionSummary, error) {
	files, err := j.Sessions()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	newest := files[len(files)-1]
	records, skipped, err := ReadRecords(newest)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		ctxlog.FromContext(ctx).Warn("Skipped unreadable journal lines.", "path", newest, "count", skipped)
	}
	return journal.Summarize(records), nil
}

// Sessions lists the session files oldest first.
func (j *Journal) Sessions() ([]string, error) {
	files, err := fsutil.FindFiles(j.dir, func(name string) bool {
		return strings.HasSuffix(name, fileExt) && !fsutil.IsTempFile(name)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list journal sessions in %s: %w", j.dir, err)
	}
	sort.Slice(files, func(a, b int) bool {
		return filepath.Base(files[a]) < filepath.Base(files[b])
	})
	return files, nil
}

func (j *Journal) prune(keep string) error {
	if j.retain <= 0 {
		return nil
	}
	files, err := j.Sessions()
	if err != nil {
		return err
	}
	for len(files) > j.retain {
		if files[0] != keep {
			if err := os.Remove(files[0]); err != nil {
				return err
			}
		}
		files = files[1:]
	}
	return nil
}

// ReadRecords parses a session file. Lines that are not valid JSON, such as
// a final line torn by a crash, are skipped and counted.
func ReadRecords(path string) ([]journal.Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	defer f.Close()

	var (
		records []journal.Record
		skipped int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r journal.Record
		if err := json.Unmarshal(line, &r); err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to read journal %s: %w", path, err)
	}
	return records, skipped, nil
}

type session struct {
	mu     sync.Mutex
	id     string
	path   string
	f      *os.File
	now    func() time.Time
	closed bool
}

func (s *session) ID() string {
	return s.id
}

func (s *session) Record(ctx context.Context, e journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &journal.WriteError{Path: s.path, Err: os.ErrClosed}
	}
	return s.write(journal.EntryRecord(e, s.now().UTC()))
}

func (s *session) Close(ctx context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	werr := s.write(journal.Record{Type: journal.RecordClose, Time: s.now().UTC(), State: state})
	s.closed = true
	if err := s.f.Close(); err != nil && werr == nil {
		return &journal.WriteError{Path: s.path, Err: err}
	}
	return werr
}

// write appends one line and fsyncs it. Callers hold mu or own s exclusively.
func (s *session) write(r journal.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return &journal.WriteError{Path: s.path, Err: err}
	}
	raw = append(raw, '\n')
	if _, err := s.f.Write(raw); err != nil {
		return &journal.WriteError{Path: s.path, Err: err}
	}
	if err := s.f.Sync(); err != nil {
		return &journal.WriteError{Path: s.path, Err: err}
	}
	return nil
}
