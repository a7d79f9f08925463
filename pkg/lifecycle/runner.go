package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"
	"weak"

	"github.com/xorbits-io/xorbits/pkg/actorerr"
)

// decrefJob is one queued decref: a key plus a weak reference to the
// session it targets, so a session that has already been collected costs
// the runner nothing but an immediate no-op.
type decrefJob struct {
	key     string
	session weak.Pointer[ManagedSession]
	done    chan error
}

// Runner is the Go analogue of DecrefRunner: a single background goroutine
// draining a queue of decref jobs, started lazily on first use rather than
// requiring an explicit call before anything can enqueue work.
type Runner struct {
	once    sync.Once
	queue   chan decrefJob
	stop    chan struct{}
	stopped chan struct{}

	// swallowed classifies errors the background goroutine treats as
	// expected session-already-gone noise rather than a caller-visible
	// failure, mirroring the original's
	// (RuntimeError, ConnectionError, KeyError, ActorNotExist) catch.
	swallowed func(error) bool
}

// defaultSwallowed classifies decref-race and actor-missing errors as
// expected noise, matching the original's bare
// (RuntimeError, ConnectionError, KeyError, ActorNotExist) catch.
func defaultSwallowed(err error) bool { return actorerr.IsSwallowable(err) }

// NewRunner builds a Runner. swallowed classifies which decref errors are
// expected noise (session torn down mid-flight) and should resolve Put's
// future as nil rather than propagate; nil selects defaultSwallowed
// (actorerr.IsSwallowable).
func NewRunner(swallowed func(error) bool) *Runner {
	if swallowed == nil {
		swallowed = defaultSwallowed
	}
	return &Runner{
		queue:     make(chan decrefJob, 256),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		swallowed: swallowed,
	}
}

// Start launches the background goroutine. Safe to call multiple times;
// only the first call has effect.
func (r *Runner) Start() {
	r.once.Do(func() {
		go r.loop()
	})
}

func (r *Runner) loop() {
	defer close(r.stopped)
	for {
		select {
		case <-r.stop:
			return
		case job := <-r.queue:
			job.done <- r.process(job)
		}
	}
}

func (r *Runner) process(job decrefJob) error {
	sess := job.session.Value()
	if sess == nil {
		return nil
	}
	if sess.Closed() {
		return nil
	}
	err := sess.Decref(job.key)
	if err != nil && r.swallowed(err) {
		return nil
	}
	return err
}

// Put enqueues a decref for key against session, starting the runner on
// first use, mirroring DecrefRunner.put's lazy self.start().
func (r *Runner) Put(ctx context.Context, key string, session *ManagedSession) <-chan error {
	r.Start()
	done := make(chan error, 1)
	job := decrefJob{key: key, session: weak.Make(session), done: done}
	select {
	case r.queue <- job:
	case <-ctx.Done():
		done <- ctx.Err()
		return done
	}
	return done
}

// Stop signals the background goroutine to exit and waits up to one second
// for it, the Go analogue of DecrefRunner.stop's sentinel-then-join(1). A
// runner that was never started is started first so that it can exit. Stop
// is idempotent only via the caller never calling it twice; a second call
// would panic closing an already-closed channel, same as most single-shot
// shutdown primitives in this codebase.
func (r *Runner) Stop() {
	r.Start()
	close(r.stop)
	select {
	case <-r.stopped:
	case <-time.After(time.Second):
	}
}

// ErrRunnerStopped is returned by Put callers that observe the runner
// exiting before their job is processed.
var ErrRunnerStopped = errors.New("lifecycle: runner stopped")
