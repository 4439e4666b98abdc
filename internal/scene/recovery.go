package scene

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/specialistvlad/bakegridgo/internal/fsutil"
)

// RecoverySuffix is appended to the scene file name to form the recovery
// file a run checkpoints to.
const RecoverySuffix = ".bt_recovery"

// RecoveryPath returns the recovery file of the scene file at path.
func RecoveryPath(path string) string {
	return path + RecoverySuffix
}

// Checkpoint persists the live scene, reserved artifacts included, to the
// recovery file next to the scene file. It is a no-op for in-memory scenes.
func (s *Scene) Checkpoint() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	raw, err := s.marshal()
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(RecoveryPath(s.path), raw, 0o644)
}

// LoadRecovery reads the recovery file of the scene file at path. ok is
// false when there is none. The returned scene is in-memory only, so
// repairing it can never write over the scene file.
func LoadRecovery(path string) (sc *Scene, ok bool, err error) {
	raw, err := os.ReadFile(RecoveryPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read recovery file: %w", err)
	}
	sc, err = decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode recovery file %s: %w", RecoveryPath(path), err)
	}
	return sc, true, nil
}

// DiscardRecovery removes the recovery file of the scene file at path. A
// missing file or an empty path is not an error.
func DiscardRecovery(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(RecoveryPath(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove recovery file: %w", err)
	}
	return nil
}
