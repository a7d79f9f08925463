package lifecycle

import (
	"context"
	"runtime"
	"sync"
)

// Registry tracks which sessions a handle key has been attached to, the Go
// analogue of _TileableDataCleaner's WeakKeyDictionary. Supplemented
// relative to spec.md's summary: a handle may be attached to more than one
// session at once, matching _attach_session/_detach_session's list-based
// bookkeeping rather than a single-session shortcut.
type Registry struct {
	runner *Runner

	mu       sync.Mutex
	sessions map[string][]*ManagedSession // handle key -> attached sessions
}

// NewRegistry builds a Registry that enqueues decrefs onto runner.
func NewRegistry(runner *Runner) *Registry {
	return &Registry{
		runner:   runner,
		sessions: make(map[string][]*ManagedSession),
	}
}

// Attach records that the handle owning key has been executed against
// session and arms a GC cleanup on handle: once handle becomes
// unreachable, a decref for key fires against session, mirroring
// _ExecutableMixin._attach_session plus _TileableSession's weakref
// finalizer callback. handle is generic over its pointee type because
// runtime.AddCleanup must be called with the exact pointer type at the
// call site; callers pass whatever pointer-typed tileable/chunk handle
// they are tracking.
func Attach[T any](r *Registry, handle *T, key string, session *ManagedSession) {
	r.mu.Lock()
	for _, s := range r.sessions[key] {
		if s == session {
			r.mu.Unlock()
			return
		}
	}
	r.sessions[key] = append(r.sessions[key], session)
	r.mu.Unlock()

	runtime.AddCleanup(handle, func(k string) {
		if session.Closed() {
			return
		}
		<-r.runner.Put(context.Background(), k, session)
	}, key)
}

// Detach removes session from key's tracked set, the Go analogue of
// _detach_session. It does not cancel an already-armed cleanup (Go has no
// way to revoke a registered cleanup short of the object itself being
// collected first), but it does stop a later Attach from re-arming a
// duplicate for the same pair and keeps the bookkeeping map from growing
// unboundedly for long-lived handles that get detached and reattached
// across sessions.
func (r *Registry) Detach(key string, session *ManagedSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.sessions[key]
	for i, s := range sessions {
		if s == session {
			r.sessions[key] = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(r.sessions[key]) == 0 {
		delete(r.sessions, key)
	}
}

// AttachedSessions returns the sessions currently tracked for key.
func (r *Registry) AttachedSessions(key string) []*ManagedSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ManagedSession, len(r.sessions[key]))
	copy(out, r.sessions[key])
	return out
}
