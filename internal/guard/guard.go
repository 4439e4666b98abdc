// Package guard gives every temporary mutation of the host scene a paired
// release action and runs it exactly once, whatever way the owning scope
// ends.
//
// Resources live in a scope: a Step scope is opened for each step and closed
// when the step ends, a Session scope lives for the whole job. Closing a
// scope releases its resources in reverse acquisition order. Every resource
// carries a reserved name (see IsArtifact), so a crash that skips the release
// can still be repaired by the stateless emergency cleanup.
package guard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
)

// Reserved artifact names. Anything the engine adds to a scene starts with
// one of these.
const (
	WorkUVLayer     = "BT_Bake_Temp_UV"
	ProtectionImage = "BT_Protection_Dummy"
	CapturePrefix   = "BT_Capture_"
	AttributePrefix = "BT_ATTR_"
)

var reservedPrefixes = []string{WorkUVLayer, ProtectionImage, CapturePrefix, AttributePrefix}

// IsArtifact reports whether name uses one of the reserved prefixes.
func IsArtifact(name string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// attributeTypes maps ID map channels to the attribute type they read.
var attributeTypes = map[string]string{
	"ID_mat":  "MAT",
	"ID_ele":  "ELEMENT",
	"ID_UVI":  "UVI",
	"ID_seam": "SEAM",
}

// AttributeName returns the reserved mesh attribute an ID map channel reads,
// for example "BT_ATTR_MAT" for "ID_mat".
func AttributeName(channelID string) string {
	t, ok := attributeTypes[channelID]
	if !ok {
		t = strings.ToUpper(strings.TrimPrefix(channelID, "ID_"))
	}
	return AttributePrefix + t
}

// CaptureNode returns the reserved node name used to capture a channel.
func CaptureNode(channelID string) string {
	return CapturePrefix + channelID
}

// ScopeKind distinguishes step scopes from the job-long session scope.
type ScopeKind int

const (
	ScopeStep ScopeKind = iota
	ScopeSession
)

func (k ScopeKind) String() string {
	if k == ScopeSession {
		return "session"
	}
	return "step"
}

// AcquireFunc performs a mutation and returns the action that undoes it.
type AcquireFunc func(ctx context.Context) (release func(ctx context.Context) error, err error)

// Guard tracks every outstanding resource. It is safe for concurrent use.
type Guard struct {
	mu          sync.Mutex
	stepOpen    bool
	outstanding atomic.Int64
	checkpoint  func() error
}

// New creates a guard. checkpoint, when non-nil, is called after every
// acquire and release so the host can persist its state.
func New(checkpoint func() error) *Guard {
	return &Guard{checkpoint: checkpoint}
}

// Open starts a scope. Only one step scope may be open at a time; opening a
// second one is a programming error and panics.
func (g *Guard) Open(kind ScopeKind, name string) *Scope {
	if kind == ScopeStep {
		g.mu.Lock()
		if g.stepOpen {
			g.mu.Unlock()
			panic(fmt.Sprintf("guard: step scope %q opened while another step scope is active", name))
		}
		g.stepOpen = true
		g.mu.Unlock()
	}
	return &Scope{guard: g, kind: kind, name: name}
}

// Outstanding returns the number of acquired resources not yet released.
func (g *Guard) Outstanding() int {
	return int(g.outstanding.Load())
}

// Release releases a single resource. Releasing twice is a no-op that
// returns the first result.
func (g *Guard) Release(ctx context.Context, r *Resource) error {
	return r.Release(ctx)
}

func (g *Guard) persist(ctx context.Context) {
	if g.checkpoint == nil {
		return
	}
	if err := g.checkpoint(); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to checkpoint scene.", "error", err)
	}
}

// Scope owns a set of resources released together.
type Scope struct {
	guard     *Guard
	kind      ScopeKind
	name      string
	mu        sync.Mutex
	resources []*Resource
	closed    bool
}

// Kind returns the scope kind.
func (s *Scope) Kind() ScopeKind {
	return s.kind
}

// Acquire runs acquire and registers the returned release action under
// name. If acquire fails nothing is registered.
func (s *Scope) Acquire(ctx context.Context, name string, acquire AcquireFunc) (*Resource, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("acquire %q: %s scope %q is closed", name, s.kind, s.name)
	}

	release, err := acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire %q: %w", name, err)
	}
	r := &Resource{name: name, scope: s, release: release}

	s.mu.Lock()
	s.resources = append(s.resources, r)
	s.mu.Unlock()
	s.guard.outstanding.Add(1)
	s.guard.persist(ctx)

	ctxlog.FromContext(ctx).Debug("Resource acquired.", "resource", name, "scope", s.kind.String())
	return r, nil
}

// ReleaseAll releases every resource of the scope, newest first, and closes
// it. All release errors are returned joined. Calling it again is a no-op.
func (s *Scope) ReleaseAll(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	resources := slices.Clone(s.resources)
	s.mu.Unlock()

	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		if err := resources[i].Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if s.kind == ScopeStep {
		s.guard.mu.Lock()
		s.guard.stepOpen = false
		s.guard.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Resource is a guarded temporary mutation.
type Resource struct {
	name    string
	scope   *Scope
	release func(ctx context.Context) error
	once    sync.Once
	err     error
}

// Name returns the reserved artifact name of the resource.
func (r *Resource) Name() string {
	return r.name
}

// Release runs the release action exactly once.
func (r *Resource) Release(ctx context.Context) error {
	r.once.Do(func() {
		logger := ctxlog.FromContext(ctx)
		logger.Debug("🔥 Releasing resource", "resource", r.name, "scope", r.scope.kind.String())
		if err := r.release(ctx); err != nil {
			r.err = fmt.Errorf("release %q: %w", r.name, err)
			logger.Error("Resource release failed.", "resource", r.name, "error", err)
		}
		r.scope.guard.outstanding.Add(-1)
		r.scope.guard.persist(ctx)
	})
	return r.err
}
