// Package imagestore defines where baked pixels are persisted and provides a
// file-backed implementation.
//
// A step allocates a target before it renders, then either commits pixels to
// it or discards it. A commit is atomic: the file at the target path holds
// either its previous content or the complete new image.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/specialistvlad/bakegridgo/internal/pixel"
	"github.com/specialistvlad/bakegridgo/internal/task"
)

// Store persists baked images.
type Store interface {
	// Allocate reserves a writable target for an output descriptor.
	Allocate(ctx context.Context, out task.Output) (*Target, error)

	// Commit writes pixels to the target. Composite targets merge the new
	// pixels over the existing file content.
	Commit(ctx context.Context, t *Target, buf *pixel.Buffer) error

	// Discard abandons a target without touching the file at its path.
	Discard(ctx context.Context, t *Target) error
}

// Target is an allocated output.
type Target struct {
	ID     uint64
	Path   string
	Output task.Output
}

// IOError is returned when the store cannot read or write a target. Fatal
// marks failures that no later step can avoid, such as a read-only or full
// output volume.
type IOError struct {
	Op    string
	Path  string
	Err   error
	Fatal bool
}

func (e *IOError) Error() string {
	return fmt.Sprintf("image store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func newIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err, Fatal: environmental(err)}
}

// environmental reports whether err comes from the output volume rather
// than from one image.
func environmental(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EROFS) ||
		errors.Is(err, syscall.ENOSPC)
}
