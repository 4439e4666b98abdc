// Package shading exposes the one capability the executor needs from a
// material graph: inserting a capture point for a channel and taking it out
// again.
//
// The executor never edits graphs directly. It asks a Graph for a guard
// factory per material, so every capture point is released by the step scope
// that created it.
package shading

import (
	"context"
	"fmt"

	"github.com/specialistvlad/bakegridgo/internal/guard"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/scene"
)

// Graph inserts and removes capture points in material graphs.
type Graph interface {
	// Inject adds the capture point for channel to material.
	Inject(ctx context.Context, material, channel string) error
	// Retract removes it.
	Retract(ctx context.Context, material, channel string) error
}

// NeedsCapture reports whether a channel is read through a capture point.
// Emission-routed channels are; native render passes and conversions are
// not.
func NeedsCapture(def model.Definition) bool {
	return def.Pass == "EMIT"
}

// Capture returns a guard factory that injects the capture point for channel
// into material and retracts it on release.
func Capture(g Graph, material, channel string) guard.AcquireFunc {
	return func(ctx context.Context) (func(context.Context) error, error) {
		if err := g.Inject(ctx, material, channel); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return g.Retract(ctx, material, channel)
		}, nil
	}
}

// SceneGraph is a Graph backed by the material node lists of a scene.
type SceneGraph struct {
	sc *scene.Scene
}

// NewSceneGraph creates a graph over sc.
func NewSceneGraph(sc *scene.Scene) *SceneGraph {
	return &SceneGraph{sc: sc}
}

// Inject adds a node named after the channel's capture prefix.
func (g *SceneGraph) Inject(ctx context.Context, material, channel string) error {
	if err := g.sc.AddNode(material, guard.CaptureNode(channel)); err != nil {
		return fmt.Errorf("inject capture for %s: %w", channel, err)
	}
	return nil
}

// Retract removes the capture node.
func (g *SceneGraph) Retract(ctx context.Context, material, channel string) error {
	if err := g.sc.RemoveNode(material, guard.CaptureNode(channel)); err != nil {
		return fmt.Errorf("retract capture for %s: %w", channel, err)
	}
	return nil
}
