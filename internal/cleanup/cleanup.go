// Package cleanup implements the emergency sweep that repairs a scene after
// a crash.
//
// The sweep is stateless: it needs no journal, no process memory and no
// arguments beyond the scene and the output root. It finds every data-block
// carrying a reserved artifact name and every image store temporary file,
// removes them, and writes one audit line per removal. The artifacts a
// crashed run held live in the recovery file next to the scene file, since a
// run never writes the scene file itself.
package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/fsutil"
	"github.com/specialistvlad/bakegridgo/internal/guard"
	"github.com/specialistvlad/bakegridgo/internal/scene"
)

// KindTempFile marks image store temporary files in audit lines.
const KindTempFile = "temp_file"

// Audit is one line of the cleanup audit log.
type Audit struct {
	Time    time.Time `json:"ts"`
	Kind    string    `json:"kind"`
	Owner   string    `json:"owner,omitempty"`
	Name    string    `json:"name"`
	Removed bool      `json:"removed"`
	Error   string    `json:"error,omitempty"`
}

// Report summarizes a sweep.
type Report struct {
	Entries []Audit
}

// Removed returns how many artifacts of the given kind were removed. An
// empty kind counts every kind.
func (r *Report) Removed(kind string) int {
	n := 0
	for _, e := range r.Entries {
		if e.Removed && (kind == "" || e.Kind == kind) {
			n++
		}
	}
	return n
}

// Summary renders per-kind removal counts, for example
// "uv_layer=2 image=1".
func (r *Report) Summary() string {
	counts := map[string]int{}
	for _, e := range r.Entries {
		if e.Removed {
			counts[e.Kind]++
		}
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	out := ""
	for i, k := range kinds {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", k, counts[k])
	}
	if out == "" {
		return "nothing to clean"
	}
	return out
}

// Sweep removes every leftover artifact. sc may be nil to sweep files only
// and outputRoot may be "" to sweep the scene only. When sc was loaded from
// a file, the recovery file a crashed run left next to it is swept too and
// then deleted. Audit lines are written
// to audit when it is non-nil. Failures to remove individual artifacts are
// recorded and returned joined after the sweep finishes.
func Sweep(ctx context.Context, sc *scene.Scene, outputRoot string, audit io.Writer) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("▶️ Emergency cleanup started.", "output_root", outputRoot)

	report := &Report{}
	var errs []error
	record := func(a Audit, err error) {
		a.Time = time.Now().UTC()
		a.Removed = err == nil
		if err != nil {
			a.Error = err.Error()
			errs = append(errs, err)
			logger.Error("Failed to remove leftover.", "kind", a.Kind, "owner", a.Owner, "name", a.Name, "error", err)
		} else {
			logger.Info("Removed leftover.", "kind", a.Kind, "owner", a.Owner, "name", a.Name)
		}
		report.Entries = append(report.Entries, a)
		if audit != nil {
			if err := json.NewEncoder(audit).Encode(a); err != nil {
				errs = append(errs, fmt.Errorf("write audit line: %w", err))
			}
		}
	}

	if sc != nil {
		seen := map[scene.Artifact]bool{}
		removed := 0
		for _, a := range sc.Find(guard.IsArtifact) {
			err := sc.Remove(a)
			if err == nil {
				removed++
			}
			seen[a] = true
			record(Audit{Kind: string(a.Kind), Owner: a.Owner, Name: a.Name}, err)
		}
		// Only a scene file that itself carries leftovers is written back.
		if removed > 0 && sc.Path() != "" {
			if err := sc.Save(sc.Path()); err != nil {
				errs = append(errs, fmt.Errorf("save repaired scene: %w", err))
			}
		}
		if err := sweepRecovery(sc.Path(), seen, record); err != nil {
			errs = append(errs, err)
		}
	}

	if outputRoot != "" {
		files, err := fsutil.FindFiles(outputRoot, fsutil.IsTempFile)
		if err != nil {
			errs = append(errs, err)
		}
		for _, f := range files {
			record(Audit{Kind: KindTempFile, Name: f}, os.Remove(f))
		}
	}

	logger.Info("✅ Emergency cleanup finished.", "summary", report.Summary())
	return report, errors.Join(errs...)
}

// sweepRecovery audits the artifacts recorded in the recovery file of the
// scene file at path and deletes the file. Artifacts already found in the
// scene itself are not reported twice.
func sweepRecovery(path string, seen map[scene.Artifact]bool, record func(Audit, error)) error {
	if path == "" {
		return nil
	}
	trail, ok, err := scene.LoadRecovery(path)
	if err != nil || !ok {
		return err
	}
	failed := false
	for _, a := range trail.Find(guard.IsArtifact) {
		err := trail.Remove(a)
		failed = failed || err != nil
		if !seen[a] {
			record(Audit{Kind: string(a.Kind), Owner: a.Owner, Name: a.Name}, err)
		}
	}
	if failed {
		return fmt.Errorf("recovery file %s kept: not every artifact could be removed", scene.RecoveryPath(path))
	}
	return scene.DiscardRecovery(path)
}
