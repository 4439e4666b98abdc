package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/specialistvlad/bakegridgo/internal/builder"
	"github.com/specialistvlad/bakegridgo/internal/executor"
	"github.com/specialistvlad/bakegridgo/internal/imagestore"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/specialistvlad/bakegridgo/internal/udim"
)

// Run loads the scene and the jobs and executes them in document order.
// A job that fails validation is reported and the next job still runs. The
// returned error joins every job-level failure; step failures are only in
// the reports.
func (a *App) Run(ctx context.Context) ([]*executor.Report, error) {
	ctx = a.context(ctx)
	a.logger.Debug("App.Run method started.")

	if _, err := a.CheckLastSession(ctx); err != nil {
		a.logger.Warn("Could not inspect the previous session.", "error", err)
	}

	sc, err := scene.Load(a.config.ScenePath)
	if err != nil {
		return nil, err
	}
	if _, leftover, err := scene.LoadRecovery(sc.Path()); err != nil || leftover {
		a.logger.Warn("🩺 A previous run left a scene recovery file. Run cleanup to audit it before it is overwritten.",
			"path", scene.RecoveryPath(sc.Path()), "error", err)
	}
	jobs, err := a.loadJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		a.logger.Warn("No jobs found, execution not required.", "path", a.config.JobPath)
		return nil, nil
	}

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
		defer a.closeHealthcheckServer(ctx)
	}

	packer := udim.NewPacker(a.settings.UDIM.OutlierBound, a.settings.UDIM.LayerLimit)
	var (
		reports []*executor.Report
		errs    []error
	)
	for _, job := range jobs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		rep, err := a.runJob(ctx, job, sc, packer)
		if rep != nil {
			reports = append(reports, rep)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("job %q: %w", job.Name, err))
		}
	}

	a.logger.Debug("App.Run method finished.")
	return reports, errors.Join(errs...)
}

func (a *App) loadJobs(ctx context.Context) ([]*model.Job, error) {
	jobs, err := model.LoadJobs(ctx, a.config.JobPath)
	if err != nil {
		return nil, err
	}
	if len(a.config.Jobs) == 0 {
		return jobs, nil
	}
	var picked []*model.Job
	for _, j := range jobs {
		if slices.Contains(a.config.Jobs, j.Name) {
			picked = append(picked, j)
		}
	}
	for _, name := range a.config.Jobs {
		if !slices.ContainsFunc(picked, func(j *model.Job) bool { return j.Name == name }) {
			return nil, fmt.Errorf("job %q not found in %s", name, a.config.JobPath)
		}
	}
	return picked, nil
}

func (a *App) runJob(ctx context.Context, job *model.Job, sc *scene.Scene, packer *udim.Packer) (*executor.Report, error) {
	logger := a.logger.With("job", job.Name)
	if a.config.OutputRoot != "" {
		job.Output.Root = a.config.OutputRoot
	}

	steps, _, err := builder.Prepare(ctx, job, sc, packer)
	if err != nil {
		logger.Error("Job rejected.", "error", err)
		return nil, err
	}

	ex, err := executor.New(executor.Config{
		Job:           job.Name,
		Scene:         sc,
		Steps:         steps,
		Journal:       a.journal,
		Renderer:      a.renderer,
		Images:        imagestore.NewFileStore(job.Output.Root),
		RenderTimeout: a.settings.Render.Timeout,
		Samples:       a.settings.Render.Samples,
	})
	if err != nil {
		return nil, err
	}
	a.setExecutor(ex)
	defer a.setExecutor(nil)

	stop := context.AfterFunc(ctx, ex.Cancel)
	defer stop()

	rep, err := ex.Run(ctx)
	logger.Info("Job report.",
		"state", rep.State,
		"succeeded", rep.Count(executor.OutcomeSucceeded),
		"failed", rep.Count(executor.OutcomeFailed),
		"skipped", rep.Count(executor.OutcomeSkipped),
	)
	return rep, err
}
