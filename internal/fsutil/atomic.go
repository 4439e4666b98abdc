package fsutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TempMarker is embedded in the name of every temporary file created by
// WriteAtomic. Emergency cleanup uses it to find files orphaned by a crash.
const TempMarker = ".bt_tmp"

// IsTempFile reports whether name was produced by WriteAtomic.
func IsTempFile(name string) bool {
	return strings.Contains(filepath.Base(name), TempMarker)
}

// WriteFileAtomic writes data to path so that readers see either the old
// content or the new content, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, perm, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// WriteAtomic streams content produced by write into a temporary file next to
// path, syncs it, renames it over path and syncs the directory.
func WriteAtomic(path string, perm os.FileMode, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+TempMarker+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return SyncDir(dir)
}

// EnsureDir creates dir and its parents and syncs the parent so the new entry
// survives a crash.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return SyncDir(filepath.Dir(dir))
}

// SyncDir fsyncs a directory so renames and creates inside it are durable.
func SyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
