package imagestore

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/fsutil"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/pixel"
	"github.com/specialistvlad/bakegridgo/internal/task"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// JPEGQuality is the quality used for JPEG outputs.
const JPEGQuality = 95

// FileStore writes images below a root directory.
type FileStore struct {
	root   string
	nextID atomic.Uint64
	mu     sync.Mutex
	open   map[uint64]*Target
	// composites serializes composite commits per path and tells the first
	// one apart.
	composites sync.Map
}

type composite struct {
	mu      sync.Mutex
	started bool
}

// NewFileStore creates a store rooted at root. The directory is created on
// the first commit. A store lives for one job: the first composite commit to
// a path starts from a blank image, so output left by an earlier run is
// replaced rather than merged into.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root, open: map[uint64]*Target{}}
}

// Root returns the output root.
func (s *FileStore) Root() string {
	return s.root
}

// CheckWritable verifies the output root can hold files at all. Failures are
// always fatal.
func (s *FileStore) CheckWritable(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return &IOError{Op: "check", Path: s.root, Err: err, Fatal: true}
	}
	probe := filepath.Join(s.root, ".write-probe")
	if err := fsutil.WriteFileAtomic(probe, []byte("ok"), 0o644); err != nil {
		return &IOError{Op: "check", Path: s.root, Err: err, Fatal: true}
	}
	if err := os.Remove(probe); err != nil {
		return &IOError{Op: "check", Path: s.root, Err: err, Fatal: true}
	}
	ctxlog.FromContext(ctx).Debug("Output root is writable.", "root", s.root)
	return nil
}

// Allocate reserves a target. Nothing is written until Commit.
func (s *FileStore) Allocate(ctx context.Context, out task.Output) (*Target, error) {
	if out.Width <= 0 || out.Height <= 0 {
		return nil, &IOError{Op: "allocate", Path: out.Path, Err: fmt.Errorf("invalid size %dx%d", out.Width, out.Height)}
	}
	path := filepath.Join(s.root, out.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, newIOError("allocate", path, err)
	}
	t := &Target{ID: s.nextID.Add(1), Path: path, Output: out}
	s.mu.Lock()
	s.open[t.ID] = t
	s.mu.Unlock()
	return t, nil
}

// Commit encodes buf and atomically replaces the file at the target path.
func (s *FileStore) Commit(ctx context.Context, t *Target, buf *pixel.Buffer) error {
	if !s.release(t) {
		return &IOError{Op: "commit", Path: t.Path, Err: fmt.Errorf("target %d is not allocated", t.ID)}
	}
	if buf == nil {
		return &IOError{Op: "commit", Path: t.Path, Err: fmt.Errorf("no pixels")}
	}
	if buf.Width != t.Output.Width || buf.Height != t.Output.Height {
		buf = buf.Resize(t.Output.Width, t.Output.Height)
	}

	var c *composite
	if t.Output.Composite {
		v, _ := s.composites.LoadOrStore(t.Path, &composite{})
		c = v.(*composite)
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.started {
			existing, err := readImage(t.Path)
			switch {
			case err == nil && existing.SameSize(buf):
				buf.Over(existing)
				buf = existing
			case err != nil && !os.IsNotExist(err):
				return newIOError("read", t.Path, err)
			}
		}
	}

	if err := fsutil.WriteAtomic(t.Path, 0o644, func(w io.Writer) error {
		return encode(w, buf, t.Output.Format, t.Output.Depth)
	}); err != nil {
		return newIOError("commit", t.Path, err)
	}
	if c != nil {
		c.started = true
	}
	ctxlog.FromContext(ctx).Debug("Image committed.", "path", t.Path, "composite", t.Output.Composite)
	return nil
}

// Discard abandons a target.
func (s *FileStore) Discard(ctx context.Context, t *Target) error {
	if t == nil {
		return nil
	}
	s.release(t)
	return nil
}

// Outstanding returns how many targets are allocated but neither committed
// nor discarded.
func (s *FileStore) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

func (s *FileStore) release(t *Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.open[t.ID]; !ok {
		return false
	}
	delete(s.open, t.ID)
	return true
}

func encode(w io.Writer, buf *pixel.Buffer, format model.Format, depth int) error {
	switch format {
	case model.FormatJPEG:
		return jpeg.Encode(w, buf.ToNRGBA(), &jpeg.Options{Quality: JPEGQuality})
	case model.FormatTIFF:
		var img image.Image = buf.ToNRGBA()
		if depth == 16 {
			img = buf.ToNRGBA64()
		}
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case model.FormatBMP:
		return bmp.Encode(w, buf.ToNRGBA())
	default:
		if depth == 16 {
			return png.Encode(w, buf.ToNRGBA64())
		}
		return png.Encode(w, buf.ToNRGBA())
	}
}

// readImage decodes an existing output. Decoders for every supported
// format are registered by this package's imports.
func readImage(path string) (*pixel.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return pixel.FromImage(img), nil
}

// ReadImage loads an image written by the store.
func ReadImage(path string) (*pixel.Buffer, error) {
	return readImage(path)
}
