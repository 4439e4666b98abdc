// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines animation baking: the same channels baked once per frame.
package model

import "fmt"

// DefaultFrameDigits is the zero padding of frame indices in output names.
const DefaultFrameDigits = 4

// Animation bakes Count consecutive scene frames starting at Start. Output
// names carry StartIndex, StartIndex+1, ... padded to Digits.
type Animation struct {
	Start      int `hcl:"start,optional"`
	Count      int `hcl:"count" validate:"gte=1,lte=100000"`
	StartIndex int `hcl:"start_index,optional" validate:"gte=0"`
	Digits     int `hcl:"digits,optional" validate:"gte=1,lte=9"`
}

// NewAnimation returns an animation of count frames from start with default
// index padding.
func NewAnimation(start, count int) *Animation {
	return &Animation{Start: start, Count: count, Digits: DefaultFrameDigits}
}

// Frame is one baked scene frame. The zero Frame means a static bake.
type Frame struct {
	// Number is the scene frame the renderer is set to.
	Number int
	// Index is the number written into output names.
	Index  int
	Digits int
}

// Animated reports whether the frame belongs to an animation.
func (f Frame) Animated() bool {
	return f.Digits > 0
}

// Label returns the zero-padded index, or "" for a static bake.
func (f Frame) Label() string {
	if !f.Animated() {
		return ""
	}
	return fmt.Sprintf("%0*d", f.Digits, f.Index)
}

// Frames returns the frames the job bakes: one zero Frame when the job is
// not animated.
func (j *Job) Frames() []Frame {
	a := j.Animation
	if a == nil {
		return []Frame{{}}
	}
	out := make([]Frame, a.Count)
	for i := range out {
		out[i] = Frame{Number: a.Start + i, Index: a.StartIndex + i, Digits: a.Digits}
	}
	return out
}
