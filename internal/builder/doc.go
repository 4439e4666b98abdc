/*
Package builder turns a bake Job into the ordered, immutable queue of Steps the
executor consumes. It is the bridge between the declarative job model and the
pipeline executor, and it has no side effects.

Building is a multi-phase process:

 1. Validation: the job's document constraints, the target set (non-empty,
    present in the scene, no duplicates), mode rules (one designated low-poly
    in active mode, a tile assignment for UDIM jobs, UV data where tiles are
    detected), conversion sources and the output path template are checked.
    Every problem found is reported in one ValidationError.

 2. Channel ordering: eligible channels are stably sorted into three tiers.
    ID maps come first, so a cheap deterministic bake validates the setup
    before expensive passes run. Conversions come last, so the channels they
    read are already baked.

 3. Flattening: for each channel, targets are visited in the caller's order.
    Split mode expands a target into one step per material slot; UDIM jobs
    nest one step per tile of the job's tile set under each target.

 4. Output resolution: the output path template is evaluated per step with
    HCL template syntax, and paths shared by several steps are marked as
    composites.

Prepare runs the tile packer between validation and flattening for UDIM jobs,
so tile conflicts and UV layer limits fail the job before any step exists.
*/
package builder
