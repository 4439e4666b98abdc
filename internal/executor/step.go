package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/specialistvlad/bakegridgo/internal/bakestore"
	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/guard"
	"github.com/specialistvlad/bakegridgo/internal/imagestore"
	"github.com/specialistvlad/bakegridgo/internal/journal"
	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/specialistvlad/bakegridgo/internal/shading"
	"github.com/specialistvlad/bakegridgo/internal/task"
)

// runStep executes one step. Step-local failures are folded into the
// result; only an environment-fatal failure is returned.
func (e *Executor) runStep(ctx context.Context, st task.Step) (StepResult, error) {
	logger := ctxlog.FromContext(ctx).With("step", st.Index, "object", st.Object, "channel", st.ChannelID())
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("▶️ Starting step", "material", st.Material, "tile", st.Tile)

	res := newResult(st)
	if err := e.record(ctx, st, journal.PhaseStarted, ""); err != nil {
		logger.Error("Step failed before it started.", "error", err)
		res.Outcome, res.Message = OutcomeFailed, err.Error()
		return res, nil
	}

	scope := e.guard.Open(guard.ScopeStep, st.String())
	defer e.release(ctx, scope)

	path, err := e.process(ctx, st, scope)
	if err != nil {
		logger.Error("Step failed.", "error", err)
		res.Outcome, res.Message = OutcomeFailed, err.Error()
		if rerr := e.record(ctx, st, journal.PhaseFailed, err.Error()); rerr != nil {
			logger.Error("Failed to record step failure.", "error", rerr)
		}
		var ioErr *imagestore.IOError
		if errors.As(err, &ioErr) && ioErr.Fatal {
			return res, &EnvironmentFatalError{Err: err}
		}
		return res, nil
	}

	if err := e.record(ctx, st, journal.PhaseCommitted, ""); err != nil {
		// The image is on disk but the journal cannot vouch for it.
		logger.Error("Failed to record step commit.", "error", err)
		res.Outcome, res.Message, res.Path = OutcomeFailed, err.Error(), path
		return res, nil
	}

	logger.Info("✅ Finished step", "path", path)
	res.Outcome, res.Path = OutcomeSucceeded, path
	return res, nil
}

// process runs the PREPARING, EXECUTING and COMMITTING sub-states and
// returns the committed file path.
func (e *Executor) process(ctx context.Context, st task.Step, scope *guard.Scope) (string, error) {
	e.setStepState(StepPreparing)
	if err := e.acquire(ctx, st, scope); err != nil {
		return "", err
	}
	target, err := e.cfg.Images.Allocate(ctx, st.Output)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			if err := e.cfg.Images.Discard(ctx, target); err != nil {
				ctxlog.FromContext(ctx).Warn("Failed to discard image target.", "path", target.Path, "error", err)
			}
		}
	}()
	if err := e.record(ctx, st, journal.PhaseInProgress, ""); err != nil {
		return "", err
	}

	e.setStepState(StepExecuting)
	buf, err := e.dispatch(ctx, st)
	if err != nil {
		return "", err
	}

	e.setStepState(StepCommitting)
	if err := e.cfg.Images.Commit(ctx, target, buf); err != nil {
		return "", err
	}
	committed = true
	if err := e.results.Put(ctx, resultKey(st), buf); err != nil {
		return "", fmt.Errorf("keep result for conversions: %w", err)
	}
	return target.Path, nil
}

// release unwinds the step scope. It never writes to the journal.
func (e *Executor) release(ctx context.Context, scope *guard.Scope) {
	ctx = context.WithoutCancel(ctx)
	if err := scope.ReleaseAll(ctx); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to release step resources.", "error", err)
	}
	e.setStepState(StepCleaned)
}

// acquire makes every scene mutation the step needs under the step scope.
func (e *Executor) acquire(ctx context.Context, st task.Step, scope *guard.Scope) error {
	def := st.Definition()
	sc := e.cfg.Scene

	if shading.NeedsCapture(def) {
		for _, m := range st.Materials {
			if _, err := scope.Acquire(ctx, guard.CaptureNode(st.ChannelID()), shading.Capture(e.graph, m, st.ChannelID())); err != nil {
				return err
			}
		}
	}

	if st.NeedsWorkLayer() {
		du, dv := float64(st.Offset.DU), float64(st.Offset.DV)
		if _, err := scope.Acquire(ctx, guard.WorkUVLayer, func(ctx context.Context) (func(context.Context) error, error) {
			if err := sc.AddUVLayer(st.Object, guard.WorkUVLayer, du, dv, true); err != nil {
				return nil, err
			}
			return func(context.Context) error {
				return sc.RemoveUVLayer(st.Object, guard.WorkUVLayer)
			}, nil
		}); err != nil {
			return err
		}
	}

	if def.IsIDMap() {
		attr := guard.AttributeName(st.ChannelID())
		obj, ok := sc.Object(st.Object)
		if !ok {
			return fmt.Errorf("object %q: %w", st.Object, scene.ErrNotFound)
		}
		if !slices.Contains(obj.Attributes, attr) {
			if _, err := scope.Acquire(ctx, attr, func(ctx context.Context) (func(context.Context) error, error) {
				if err := sc.AddAttribute(st.Object, attr); err != nil {
					return nil, err
				}
				return func(context.Context) error {
					return sc.RemoveAttribute(st.Object, attr)
				}, nil
			}); err != nil {
				return err
			}
		}
	}

	if st.Material != "" {
		obj, ok := sc.Object(st.Object)
		if !ok {
			return fmt.Errorf("object %q: %w", st.Object, scene.ErrNotFound)
		}
		for _, m := range obj.Materials {
			if m == "" || m == st.Material {
				continue
			}
			if _, err := scope.Acquire(ctx, guard.ProtectionImage, protectMaterial(sc, m)); err != nil {
				return err
			}
		}
	}
	return nil
}

// needsProtection reports whether any step bakes a single material slot, so
// the other slots need a protection image.
func (e *Executor) needsProtection() bool {
	for _, st := range e.cfg.Steps {
		if st.Material != "" {
			return true
		}
	}
	return false
}

func (e *Executor) protectionImage() guard.AcquireFunc {
	sc := e.cfg.Scene
	return func(ctx context.Context) (func(context.Context) error, error) {
		if err := sc.AddImage(scene.Image{Name: guard.ProtectionImage, Width: 1, Height: 1}); err != nil {
			return nil, err
		}
		return func(context.Context) error {
			return sc.RemoveImage(guard.ProtectionImage)
		}, nil
	}
}

// protectMaterial points a material that is not being baked at the
// protection image.
func protectMaterial(sc *scene.Scene, material string) guard.AcquireFunc {
	return func(ctx context.Context) (func(context.Context) error, error) {
		if err := sc.AddNode(material, guard.ProtectionImage); err != nil {
			return nil, err
		}
		return func(context.Context) error {
			return sc.RemoveNode(material, guard.ProtectionImage)
		}, nil
	}
}

// record appends a journal entry for st.
func (e *Executor) record(ctx context.Context, st task.Step, phase journal.Phase, msg string) error {
	return e.session.Record(ctx, journal.Entry{
		Step:     st.Index,
		Phase:    phase,
		Object:   st.Object,
		Channel:  st.ChannelID(),
		Material: st.Material,
		Tile:     st.Tile,
		Message:  msg,
	})
}

func resultKey(st task.Step) bakestore.Key {
	return bakestore.Key{
		Object:   st.Object,
		Material: st.Material,
		Tile:     st.Tile,
		Frame:    st.Frame.Number,
		Channel:  st.ChannelID(),
	}
}
