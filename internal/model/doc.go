// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the Go representation of a bake job: the declarative
// description of which objects to bake, which channels to produce and where
// the results go.
//
// # Core Concepts
//
//   - Job: The root container. It names the bake targets, the bake mode, the
//     enabled channel groups and the output settings, and holds the ordered
//     list of Channels.
//
//   - Channel: One output map (base color, roughness, curvature, a metallic
//     conversion...). Its parameters are a closed set of variants, one per
//     channel kind, so a channel can never carry another kind's settings.
//
//   - Catalog: The fixed table of every channel the engine knows, with default
//     suffixes, color spaces and the groups and modes it belongs to.
//
// # Non-destructive channel sync
//
// Switching the bake mode or the enabled groups never deletes a Channel.
// SyncChannels only toggles ValidForMode and appends catalog channels that are
// missing, so a user who switches away and back finds their settings intact.
//
// # Documents
//
// Jobs are stored as HCL `job` blocks. LoadJobs and Encode round-trip a job
// losslessly, including the raw output path template, which is kept as source
// text and evaluated later by the task builder.
package model
