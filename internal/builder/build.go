package builder

import (
	"context"
	"slices"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/specialistvlad/bakegridgo/internal/task"
	"github.com/specialistvlad/bakegridgo/internal/udim"
)

// unit is one (object, material, tile) context a channel is baked in.
type unit struct {
	object    string
	sources   []string
	material  string
	materials []string
	tile      int
	offset    udim.Offset
}

// Prepare validates the job, assigns UDIM tiles when the job needs them and
// builds the step queue. Packer errors are returned unchanged.
func Prepare(ctx context.Context, job *model.Job, sc *scene.Scene, packer *udim.Packer) ([]task.Step, *udim.Assignment, error) {
	logger := ctxlog.FromContext(ctx).With("job", job.Name)
	if err := Validate(job, sc); err != nil {
		return nil, nil, err
	}

	var tiles *udim.Assignment
	if job.Mode == model.ModeUDIM {
		objects := make([]*scene.Object, 0, len(job.Targets))
		for _, name := range job.Targets {
			o, _ := sc.Object(name)
			objects = append(objects, o)
		}
		var err error
		tiles, err = packer.Assign(ctx, objects, udim.Policy(job.UDIM.Policy), job.UDIM.Tiles)
		if err != nil {
			logger.Error("Tile assignment failed.", "error", err)
			return nil, nil, err
		}
		logger.Debug("Tiles assigned.", "tiles", tiles.Tiles())
	}

	steps, err := Build(ctx, job, sc, tiles)
	if err != nil {
		return nil, nil, err
	}
	return steps, tiles, nil
}

// Validate checks everything about a job that does not depend on tile
// assignment.
func Validate(job *model.Job, sc *scene.Scene) error {
	if err := job.Validate(); err != nil {
		return &ValidationError{Job: job.Name, Problems: []string{err.Error()}, Cause: err}
	}
	p := &problems{job: job.Name}
	objects := resolveTargets(job, sc, p)
	checkUVs(job, objects, p)
	checkMode(job, objects, p)
	channels := job.EligibleChannels()
	if len(channels) == 0 {
		p.addf("no enabled channel is valid for mode %q", job.Mode)
	}
	checkDerived(job, channels, p)
	if _, err := compileTemplate(job.Output.Template); err != nil {
		p.addf("output template: %v", err)
	}
	return p.err()
}

// Build flattens a job into its ordered step queue. tiles must be non-nil
// for UDIM jobs and is ignored otherwise.
func Build(ctx context.Context, job *model.Job, sc *scene.Scene, tiles *udim.Assignment) ([]task.Step, error) {
	logger := ctxlog.FromContext(ctx).With("job", job.Name)
	logger.Debug("Build: Starting step construction.")

	if err := Validate(job, sc); err != nil {
		return nil, err
	}
	p := &problems{job: job.Name}
	objects := resolveTargets(job, sc, p)
	if job.Mode == model.ModeUDIM {
		checkTiles(job, tiles, p)
		if err := p.err(); err != nil {
			return nil, err
		}
	}

	channels := orderChannels(job.EligibleChannels())
	units := flatten(job, objects, tiles)
	logger.Debug("Build: Channels ordered.", "channels", len(channels), "units_per_channel", len(units))

	frames := job.Frames()
	tmpl, _ := compileTemplate(job.Output.Template)
	steps := make([]task.Step, 0, len(frames)*len(channels)*len(units))
	for _, frame := range frames {
		for _, ch := range channels {
			for _, u := range units {
				steps = append(steps, task.Step{
					Index:     len(steps),
					Job:       job.Name,
					Object:    u.object,
					Sources:   u.sources,
					Material:  u.material,
					Materials: u.materials,
					Tile:      u.tile,
					Offset:    u.offset,
					Frame:     frame,
					Channel:   ch.Clone(),
				})
			}
		}
	}

	resolveOutputs(job, tmpl, steps, p)
	if err := p.err(); err != nil {
		return nil, err
	}

	logger.Info("Build: Step queue ready.", "steps", len(steps))
	return steps, nil
}

// orderChannels sorts ID maps first and channels derived from other results
// last, keeping job order within each tier.
func orderChannels(channels []*model.Channel) []*model.Channel {
	out := slices.Clone(channels)
	sort.SliceStable(out, func(i, j int) bool {
		return tier(out[i]) < tier(out[j])
	})
	return out
}

func tier(c *model.Channel) int {
	def := c.Definition()
	switch {
	case def.IsIDMap():
		return 0
	case isDerived(def):
		return 2
	default:
		return 1
	}
}

func flatten(job *model.Job, objects map[string]*scene.Object, tiles *udim.Assignment) []unit {
	var units []unit
	switch job.Mode {
	case model.ModeActive:
		u := unit{object: job.Active}
		for _, t := range job.Targets {
			if t == job.Active {
				continue
			}
			u.sources = append(u.sources, t)
			u.materials = appendMaterials(u.materials, objects[t].Materials)
		}
		units = append(units, u)
	case model.ModeSplit:
		for _, t := range job.Targets {
			for _, m := range appendMaterials(nil, objects[t].Materials) {
				units = append(units, unit{object: t, material: m, materials: []string{m}})
			}
		}
	case model.ModeUDIM:
		for _, t := range job.Targets {
			for _, tile := range tiles.Tiles() {
				units = append(units, unit{
					object:    t,
					materials: appendMaterials(nil, objects[t].Materials),
					tile:      tile,
					offset:    tiles.Offset(t),
				})
			}
		}
	default:
		for _, t := range job.Targets {
			units = append(units, unit{object: t, materials: appendMaterials(nil, objects[t].Materials)})
		}
	}
	return units
}

// appendMaterials appends the distinct, non-empty materials of add to dst.
func appendMaterials(dst, add []string) []string {
	for _, m := range add {
		if m != "" && !slices.Contains(dst, m) {
			dst = append(dst, m)
		}
	}
	return dst
}

func resolveTargets(job *model.Job, sc *scene.Scene, p *problems) map[string]*scene.Object {
	objects := make(map[string]*scene.Object, len(job.Targets))
	if len(job.Targets) == 0 {
		p.addf("target set is empty")
	}
	for _, name := range job.Targets {
		if _, dup := objects[name]; dup {
			p.addf("target %q is listed more than once", name)
			continue
		}
		o, ok := sc.Object(name)
		if !ok {
			p.addf("target %q does not exist in the scene", name)
			continue
		}
		objects[name] = o
	}
	return objects
}

func checkMode(job *model.Job, objects map[string]*scene.Object, p *problems) {
	switch job.Mode {
	case model.ModeActive:
		if job.Active == "" {
			p.addf("active mode needs a designated low-poly target")
			return
		}
		if !slices.Contains(job.Targets, job.Active) {
			p.addf("designated low-poly %q is not one of the targets", job.Active)
			return
		}
		if len(job.Targets) < 2 {
			p.addf("active mode needs at least one source besides %q", job.Active)
		}
	case model.ModeSplit:
		for _, name := range job.Targets {
			if o := objects[name]; o != nil && len(appendMaterials(nil, o.Materials)) == 0 {
				p.addf("target %q has no material slots to split by", name)
			}
		}
	}
}

// checkUVs rejects targets without UV data in every mode: there is nothing to
// bake into, and in UDIM mode nothing to place on a tile.
func checkUVs(job *model.Job, objects map[string]*scene.Object, p *problems) {
	for _, name := range job.Targets {
		if o := objects[name]; o != nil && !o.HasUVs() {
			p.addf("target %q has no UV data", name)
		}
	}
}

func checkTiles(job *model.Job, tiles *udim.Assignment, p *problems) {
	if tiles == nil {
		p.addf("udim job has no tile assignment")
		return
	}
	for _, name := range job.Targets {
		if _, ok := tiles.Tile(name); !ok {
			p.addf("target %q has no tile", name)
		}
	}
}

func isDerived(def model.Definition) bool {
	return def.Kind == model.KindConversion || def.Kind == model.KindCustom
}

// checkDerived makes sure conversions and custom channels only read channels
// baked earlier in the same unit.
func checkDerived(job *model.Job, channels []*model.Channel, p *problems) {
	for _, c := range channels {
		def := c.Definition()
		if !isDerived(def) {
			continue
		}
		sources := def.Sources
		if params, ok := c.Params.(model.ConversionParams); ok && len(sources) == 0 {
			for _, s := range params.PackSources() {
				if s != "" {
					sources = append(sources, s)
				}
			}
		}
		if len(sources) == 0 && def.Kind == model.KindConversion {
			p.addf("channel %q has no source channels", c.ID)
		}
		for _, src := range sources {
			sc := job.Channel(src)
			switch {
			case sc == nil || !job.Eligible(sc):
				p.addf("channel %q reads %q, which is not enabled", c.ID, src)
			case sc.Kind() == model.KindConversion:
				p.addf("channel %q cannot read the conversion %q", c.ID, src)
			case sc.Kind() == model.KindCustom:
				p.addf("channel %q cannot read the custom channel %q", c.ID, src)
			}
		}
	}
}

func resolveOutputs(job *model.Job, tmpl hcl.Expression, steps []task.Step, p *problems) {
	composite := job.Mode == model.ModeMulti || job.Mode == model.ModeUDIM
	owners := make(map[string]int, len(steps))
	for i := range steps {
		st := &steps[i]
		def := st.Channel.Definition()
		n := names{
			job:      safeName(job.Name),
			object:   safeName(st.Object),
			material: safeName(st.Material),
			channel:  st.Channel.ID,
			prefix:   st.Channel.Prefix,
			suffix:   st.Channel.Suffix,
			base:     baseName(job, st.Object, st.Material),
			mode:     job.Mode,
			tile:     st.Tile,
			frame:    st.Frame.Label(),
		}
		rel, err := renderPath(tmpl, n, job.Output.Format)
		if err != nil {
			p.addf("output path for step %s: %v", st, err)
			continue
		}
		if prev, taken := owners[rel]; taken && !composite {
			p.addf("steps %s and %s both write %s", steps[prev], st, rel)
			continue
		}
		owners[rel] = i
		st.Output = task.Output{
			Path:       rel,
			Width:      job.Output.Width,
			Height:     job.Output.Height,
			Tile:       st.Tile,
			Format:     job.Output.Format,
			Depth:      job.Output.Depth,
			ColorSpace: def.ColorSpace,
			Margin:     job.Output.Margin,
			Composite:  composite,
		}
	}
}
