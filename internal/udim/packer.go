// Package udim assigns UDIM tile indices to bake targets.
//
// A UDIM tile index encodes a unit square of UV space: tile 1001 covers
// u in [0,1), v in [0,1); each step in u adds 1 and each step in v adds 10,
// so the valid range is 1001 to 1099 (ten columns, ten rows).
package udim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/scene"
)

const (
	// FirstTile is the lowest valid tile index and the fallback for objects
	// without usable coordinates.
	FirstTile = 1001
	// LastTile is the highest valid tile index.
	LastTile = 1099
	// DefaultLayerLimit is the host's ceiling on UV layers per object.
	DefaultLayerLimit = 8
	// DefaultOutlierBound is the magnitude beyond which a UV coordinate is
	// treated as an unwrap artifact.
	DefaultOutlierBound = 100
)

// Policy selects how tiles are chosen.
type Policy string

const (
	// Detect keeps every object in the tile most of its coordinates fall in.
	Detect Policy = "detect"
	// Repack keeps objects already placed beyond the first tile and moves
	// everything else to the lowest free tiles.
	Repack Policy = "repack"
	// Explicit takes a caller-provided object to tile map verbatim.
	Explicit Policy = "explicit"
)

// TileConflictError is returned when two objects would share a tile under a
// policy that requires unique tiles, or an explicit tile is out of range.
type TileConflictError struct {
	Tile    int
	Objects []string
	Reason  string
}

func (e *TileConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("tile conflict on %d: %s", e.Tile, e.Reason)
	}
	return fmt.Sprintf("tile conflict on %d: objects %v share it", e.Tile, e.Objects)
}

// LayerLimitError is returned before any mutation when an object has no room
// for the working UV layer.
type LayerLimitError struct {
	Object string
	Layers int
	Limit  int
}

func (e *LayerLimitError) Error() string {
	return fmt.Sprintf("object %q already has %d of %d uv layers, no room for a working layer", e.Object, e.Layers, e.Limit)
}

// Offset is a whole-tile UV translation.
type Offset struct {
	DU int
	DV int
}

// IsZero reports whether the offset moves nothing.
func (o Offset) IsZero() bool {
	return o.DU == 0 && o.DV == 0
}

// Between returns the offset that moves UVs from tile a to tile b.
func Between(a, b int) Offset {
	ca, ra := (a-FirstTile)%10, (a-FirstTile)/10
	cb, rb := (b-FirstTile)%10, (b-FirstTile)/10
	return Offset{DU: cb - ca, DV: rb - ra}
}

// Origin returns the UV coordinates of the lower left corner of tile. Tile 0
// stands for the 0-1 square.
func Origin(tile int) (u, v float64) {
	if tile == 0 {
		return 0, 0
	}
	return float64((tile - FirstTile) % 10), float64((tile - FirstTile) / 10)
}

// Valid reports whether tile is in the UDIM range.
func Valid(tile int) bool {
	return tile >= FirstTile && tile <= LastTile
}

// Assignment maps objects to tiles. Objects that must move carry a non-zero
// offset.
type Assignment struct {
	tiles   map[string]int
	offsets map[string]Offset
	order   []string
}

func newAssignment() *Assignment {
	return &Assignment{tiles: map[string]int{}, offsets: map[string]Offset{}}
}

func (a *Assignment) set(object string, tile int, off Offset) {
	if _, ok := a.tiles[object]; !ok {
		a.order = append(a.order, object)
	}
	a.tiles[object] = tile
	a.offsets[object] = off
}

// Tile returns the tile assigned to object.
func (a *Assignment) Tile(object string) (int, bool) {
	t, ok := a.tiles[object]
	return t, ok
}

// Offset returns the translation object needs to land in its tile.
func (a *Assignment) Offset(object string) Offset {
	return a.offsets[object]
}

// Objects returns the assigned objects in input order.
func (a *Assignment) Objects() []string {
	return slices.Clone(a.order)
}

// Tiles returns the distinct assigned tiles in ascending order.
func (a *Assignment) Tiles() []int {
	seen := make(map[int]bool, len(a.tiles))
	var out []int
	for _, t := range a.tiles {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Ints(out)
	return out
}

// Map returns a copy of the object to tile mapping.
func (a *Assignment) Map() map[string]int {
	out := make(map[string]int, len(a.tiles))
	for k, v := range a.tiles {
		out[k] = v
	}
	return out
}

// Packer assigns tiles. The zero value is not usable; use NewPacker.
type Packer struct {
	outlierBound float64
	layerLimit   int
}

// NewPacker creates a packer. Non-positive arguments select the defaults.
func NewPacker(outlierBound float64, layerLimit int) *Packer {
	if outlierBound <= 0 {
		outlierBound = DefaultOutlierBound
	}
	if layerLimit <= 0 {
		layerLimit = DefaultLayerLimit
	}
	return &Packer{outlierBound: outlierBound, layerLimit: layerLimit}
}

// Assign resolves a tile for every object. Objects are given in the caller's
// order. explicit is only read by the Explicit policy.
func (p *Packer) Assign(ctx context.Context, objects []*scene.Object, policy Policy, explicit map[string]int) (*Assignment, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Assigning UDIM tiles", "policy", policy, "objects", len(objects))

	var (
		a   *Assignment
		err error
	)
	switch policy {
	case Detect:
		if err = p.checkLayers(objects, nil); err != nil {
			return nil, err
		}
		a = p.detectAll(objects)
	case Repack:
		if err = p.checkLayers(objects, nil); err != nil {
			return nil, err
		}
		a, err = p.repack(objects)
	case Explicit:
		a, err = p.explicit(objects, explicit)
	default:
		return nil, fmt.Errorf("unknown tile policy %q", policy)
	}
	if err != nil {
		return nil, err
	}

	for _, obj := range a.order {
		logger.Debug("Tile assigned", "object", obj, "tile", a.tiles[obj], "offset", a.offsets[obj])
	}
	return a, nil
}

// Detect returns the plurality tile of the object's active UV layer.
// Coordinates whose magnitude reaches the outlier bound, and coordinates that
// fall outside the tile range, do not vote. Ties go to the lowest
// tile. Objects without voting coordinates land in FirstTile.
func (p *Packer) Detect(obj *scene.Object) int {
	layer := obj.ActiveLayer()
	if layer == nil {
		return FirstTile
	}
	votes := make(map[int]int)
	for _, c := range layer.Coords {
		if math.IsNaN(c.U) || math.IsNaN(c.V) {
			continue
		}
		if math.Abs(c.U) >= p.outlierBound || math.Abs(c.V) >= p.outlierBound {
			continue
		}
		col, row := math.Floor(c.U), math.Floor(c.V)
		if col < 0 || col >= 10 || row < 0 || row >= 10 {
			continue
		}
		tile := FirstTile + int(col) + 10*int(row)
		if !Valid(tile) {
			continue
		}
		votes[tile]++
	}
	best, bestVotes := FirstTile, 0
	for tile, n := range votes {
		if n > bestVotes || (n == bestVotes && tile < best) {
			best, bestVotes = tile, n
		}
	}
	return best
}

func (p *Packer) detectAll(objects []*scene.Object) *Assignment {
	a := newAssignment()
	for _, o := range objects {
		a.set(o.Name, p.Detect(o), Offset{})
	}
	return a
}

func (p *Packer) repack(objects []*scene.Object) (*Assignment, error) {
	current := make(map[string]int, len(objects))
	owner := make(map[int]string)
	var movable []string
	for _, o := range objects {
		t := p.Detect(o)
		current[o.Name] = t
		if t == FirstTile {
			movable = append(movable, o.Name)
			continue
		}
		if other, taken := owner[t]; taken {
			return nil, &TileConflictError{Tile: t, Objects: []string{other, o.Name}}
		}
		owner[t] = o.Name
	}
	sort.Strings(movable)

	placed := make(map[string]int, len(objects))
	for obj := range current {
		if current[obj] != FirstTile {
			placed[obj] = current[obj]
		}
	}
	next := FirstTile
	for _, obj := range movable {
		for {
			if _, taken := owner[next]; !taken {
				break
			}
			next++
		}
		if !Valid(next) {
			return nil, &TileConflictError{Tile: next, Reason: fmt.Sprintf("no free tile left for %q", obj)}
		}
		owner[next] = obj
		placed[obj] = next
	}

	a := newAssignment()
	for _, o := range objects {
		a.set(o.Name, placed[o.Name], Between(current[o.Name], placed[o.Name]))
	}
	return a, nil
}

func (p *Packer) explicit(objects []*scene.Object, tiles map[string]int) (*Assignment, error) {
	owner := make(map[int]string)
	var errs []error
	moving := make(map[string]bool)
	current := make(map[string]int, len(objects))
	for _, o := range objects {
		t, ok := tiles[o.Name]
		if !ok {
			return nil, &TileConflictError{Tile: 0, Reason: fmt.Sprintf("no explicit tile for %q", o.Name)}
		}
		if !Valid(t) {
			return nil, &TileConflictError{Tile: t, Reason: fmt.Sprintf("tile for %q is outside %d-%d", o.Name, FirstTile, LastTile)}
		}
		if other, taken := owner[t]; taken {
			errs = append(errs, &TileConflictError{Tile: t, Objects: []string{other, o.Name}})
			continue
		}
		owner[t] = o.Name
		current[o.Name] = p.Detect(o)
		moving[o.Name] = current[o.Name] != t
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := p.checkLayers(objects, moving); err != nil {
		return nil, err
	}

	a := newAssignment()
	for _, o := range objects {
		a.set(o.Name, tiles[o.Name], Between(current[o.Name], tiles[o.Name]))
	}
	return a, nil
}

// checkLayers fails when an object that needs a working layer has none left.
// A nil filter means every object needs one.
func (p *Packer) checkLayers(objects []*scene.Object, needs map[string]bool) error {
	for _, o := range objects {
		if needs != nil && !needs[o.Name] {
			continue
		}
		if len(o.UVLayers) >= p.layerLimit {
			return &LayerLimitError{Object: o.Name, Layers: len(o.UVLayers), Limit: p.layerLimit}
		}
	}
	return nil
}

// LayerLimit returns the configured per-object UV layer ceiling.
func (p *Packer) LayerLimit() int {
	return p.layerLimit
}
