package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/stretchr/testify/require"
)

// Quad returns an object whose single UV layer is the square from (u, v)
// to (u+size, v+size).
func Quad(name string, u, v, size float64, materials ...string) *scene.Object {
	return &scene.Object{
		Name:      name,
		Materials: materials,
		UVLayers: []*scene.UVLayer{{
			Name: "UVMap",
			Coords: []scene.UV{
				{U: u, V: v},
				{U: u + size, V: v},
				{U: u + size, V: v + size},
				{U: u, V: v + size},
			},
		}},
	}
}

// Materials creates materials with the given names and no inputs.
func Materials(names ...string) []*scene.Material {
	out := make([]*scene.Material, len(names))
	for i, n := range names {
		out[i] = &scene.Material{Name: n}
	}
	return out
}

// SavedScene writes a scene built from objects and materials into a temp
// directory and loads it back, so checkpoints go to disk.
func SavedScene(t *testing.T, objects []*scene.Object, materials []*scene.Material) *scene.Scene {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.json")
	require.NoError(t, scene.New(objects, materials, nil).Save(path))
	sc, err := scene.Load(path)
	require.NoError(t, err)
	return sc
}

// WriteFiles writes files (relative path to content) under a new temp
// directory and returns it.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}
