// Package bakestore defines where intermediate bake results are kept while a
// job runs.
//
// Conversion channels read the pixels that earlier steps of the same job
// produced. Those pixels are parked here, keyed by the unit and channel they
// came from, instead of being decoded back from the written files.
//
// # Lifecycle
//
// A store is created per job run and discarded with it. Entries are written by
// committing steps and read by conversion steps, which always run later in
// the same unit because channels are ordered ID maps first, regular channels
// next and conversions last.
package bakestore

import (
	"context"
	"fmt"

	"github.com/specialistvlad/bakegridgo/internal/pixel"
)

// Key identifies one baked channel of one unit.
type Key struct {
	Object   string
	Material string
	Tile     int
	// Frame is the scene frame of animated bakes.
	Frame    int
	Channel  string
}

// String renders the key as "object/material@tile:channel", with "#frame"
// appended when a frame is set.
func (k Key) String() string {
	s := fmt.Sprintf("%s/%s@%d:%s", k.Object, k.Material, k.Tile, k.Channel)
	if k.Frame != 0 {
		s += fmt.Sprintf("#%d", k.Frame)
	}
	return s
}

// WithChannel returns a copy of k addressing another channel of the same
// unit.
func (k Key) WithChannel(id string) Key {
	k.Channel = id
	return k
}

// Store holds baked pixel buffers.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put records the result of a channel, replacing any earlier value.
	Put(ctx context.Context, key Key, buf *pixel.Buffer) error

	// Get returns the recorded result. A missing key yields (nil, false, nil).
	Get(ctx context.Context, key Key) (*pixel.Buffer, bool, error)

	// Delete forgets a result. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// Len returns the number of recorded results.
	Len(ctx context.Context) (int, error)
}
