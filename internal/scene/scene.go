// Package scene holds the host asset the engine bakes from: objects with
// their UV layers, materials and mesh attributes, material node lists and
// images.
//
// The engine never reaches for global state. A *Scene is passed explicitly to
// the task builder, the tile packer and the executor, and only the step being
// executed mutates it. Every mutation the engine makes uses a reserved name
// prefix so emergency cleanup can find it without any record of the run.
package scene

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/specialistvlad/bakegridgo/internal/fsutil"
)

// UV is one texture coordinate.
type UV struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// UVLayer is a named set of texture coordinates.
type UVLayer struct {
	Name   string `json:"name"`
	Coords []UV   `json:"coords"`
}

// Object is a mesh object of the scene.
type Object struct {
	Name       string     `json:"name"`
	Materials  []string   `json:"materials,omitempty"`
	UVLayers   []*UVLayer `json:"uv_layers,omitempty"`
	ActiveUV   int        `json:"active_uv"`
	Attributes []string   `json:"attributes,omitempty"`
	// BakeUV names the layer the renderer reads instead of the active one.
	BakeUV string `json:"bake_uv,omitempty"`

	extra fields
}

// Material is a shading graph reduced to its node names and socket values.
type Material struct {
	Name   string             `json:"name"`
	Nodes  []string           `json:"nodes,omitempty"`
	Inputs map[string]float64 `json:"inputs,omitempty"`

	extra fields
}

// Image is an image data-block of the scene.
type Image struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	extra fields
}

// Scene is the explicit host context. Its exported methods are safe for
// concurrent use.
type Scene struct {
	mu        sync.RWMutex
	objects   []*Object
	materials []*Material
	images    []*Image
	// restore maps an object to the bake layer it had before a work layer
	// took over. It travels with the scene so cleanup can put it back.
	restore map[string]string
	extra   fields
	path    string
}

type sceneFile struct {
	Objects   []*Object         `json:"objects"`
	Materials []*Material       `json:"materials,omitempty"`
	Images    []*Image          `json:"images,omitempty"`
	Restore   map[string]string `json:"bt_bake_uv_restore,omitempty"`

	extra fields
}

// New creates an in-memory scene.
func New(objects []*Object, materials []*Material, images []*Image) *Scene {
	return &Scene{objects: objects, materials: materials, images: images}
}

// Load reads a scene file. The file is only read: a run checkpoints to the
// recovery file next to it and never writes the scene file itself.
func Load(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene %s: %w", path, err)
	}
	s, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode scene %s: %w", path, err)
	}
	s.path = path
	return s, nil
}

func decode(raw []byte) (*Scene, error) {
	var f sceneFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	s := New(f.Objects, f.Materials, f.Images)
	s.restore = f.Restore
	s.extra = f.extra
	return s, nil
}

// Path returns the file the scene was loaded from, or "".
func (s *Scene) Path() string {
	return s.path
}

// Save writes the scene to path atomically. Members of the file the scene
// does not model are written back unchanged.
func (s *Scene) Save(path string) error {
	s.mu.RLock()
	raw, err := s.marshal()
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, raw, 0o644)
}

func (s *Scene) file() sceneFile {
	return sceneFile{Objects: s.objects, Materials: s.materials, Images: s.images, Restore: s.restore, extra: s.extra}
}

func (s *Scene) marshal() ([]byte, error) {
	raw, err := json.MarshalIndent(s.file(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode scene: %w", err)
	}
	return append(raw, '\n'), nil
}

// Fingerprint is a digest of the full scene content. Two scenes with the
// same fingerprint are indistinguishable to the engine.
func (s *Scene) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := json.Marshal(s.file())
	if err != nil {
		panic(fmt.Sprintf("scene: fingerprint: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy that shares nothing with s. The clone is
// in-memory only.
func (s *Scene) Clone() *Scene {
	s.mu.RLock()
	raw, err := json.Marshal(s.file())
	s.mu.RUnlock()
	if err != nil {
		panic(fmt.Sprintf("scene: clone: %v", err))
	}
	cp, err := decode(raw)
	if err != nil {
		panic(fmt.Sprintf("scene: clone: %v", err))
	}
	return cp
}
