package inmemorystore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/bakegridgo/internal/bakestore"
	"github.com/specialistvlad/bakegridgo/internal/pixel"
)

// Store is an in-memory implementation of bakestore.Store.
//
// Steps of different units write independent keys, so a sync.Map is used
// instead of a single mutex.
type Store struct {
	results sync.Map // Key: bakestore.Key, Value: *pixel.Buffer
	count   atomic.Int64
}

// New creates a new, empty in-memory bake store.
func New() bakestore.Store {
	return &Store{}
}

// Put records the result of a channel.
func (s *Store) Put(ctx context.Context, key bakestore.Key, buf *pixel.Buffer) error {
	if _, loaded := s.results.Swap(key, buf); !loaded {
		s.count.Add(1)
	}
	return nil
}

// Get retrieves a recorded result.
func (s *Store) Get(ctx context.Context, key bakestore.Key) (*pixel.Buffer, bool, error) {
	v, ok := s.results.Load(key)
	if !ok {
		return nil, false, nil
	}
	return v.(*pixel.Buffer), true, nil
}

// Delete forgets a result.
func (s *Store) Delete(ctx context.Context, key bakestore.Key) error {
	if _, loaded := s.results.LoadAndDelete(key); loaded {
		s.count.Add(-1)
	}
	return nil
}

// Len returns the number of recorded results.
func (s *Store) Len(ctx context.Context) (int, error) {
	return int(s.count.Load()), nil
}
