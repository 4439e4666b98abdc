package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/specialistvlad/bakegridgo/internal/cleanup"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/scene"
)

// Cleanup runs the emergency sweep. It needs no journal: the scene (when
// ScenePath is set) and every output root are scanned for reserved names.
// Output roots are OutputRoot, the roots of the jobs at JobPath, or the
// default job root when neither is given.
func (a *App) Cleanup(ctx context.Context) (*cleanup.Report, error) {
	ctx = a.context(ctx)

	var sc *scene.Scene
	if a.config.ScenePath != "" {
		loaded, err := scene.Load(a.config.ScenePath)
		if err != nil {
			return nil, err
		}
		sc = loaded
	}

	roots, err := a.outputRoots(ctx)
	if err != nil {
		return nil, err
	}

	audit, closeAudit, err := a.openAuditLog()
	if err != nil {
		return nil, err
	}
	defer closeAudit()

	report := &cleanup.Report{}
	var errs []error
	for i, root := range roots {
		target := sc
		if i > 0 {
			target = nil
		}
		rep, err := cleanup.Sweep(ctx, target, root, audit)
		if rep != nil {
			report.Entries = append(report.Entries, rep.Entries...)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}

func (a *App) outputRoots(ctx context.Context) ([]string, error) {
	if a.config.OutputRoot != "" {
		return []string{a.config.OutputRoot}, nil
	}
	if a.config.JobPath == "" {
		return []string{model.NewJob("").Output.Root}, nil
	}
	jobs, err := model.LoadJobs(ctx, a.config.JobPath)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var roots []string
	for _, j := range jobs {
		if !seen[j.Output.Root] {
			seen[j.Output.Root] = true
			roots = append(roots, j.Output.Root)
		}
	}
	return roots, nil
}

// openAuditLog opens the configured audit log for appending. Without one,
// audit lines are dropped.
func (a *App) openAuditLog() (io.Writer, func(), error) {
	path := a.settings.Cleanup.AuditLog
	if path == "" {
		return nil, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return f, func() {
		if err := f.Sync(); err != nil {
			a.logger.Warn("Failed to sync audit log.", "error", err)
		}
		f.Close()
	}, nil
}
