package lifecycle

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testHandle struct {
	key string
}

func TestRegistryAttachTracksMultipleSessions(t *testing.T) {
	runner := NewRunner(nil)
	t.Cleanup(runner.Stop)
	reg := NewRegistry(runner)

	sessA := NewManagedSession(&fakeSession{})
	sessB := NewManagedSession(&fakeSession{})
	handle := &testHandle{key: "chunk-1"}

	Attach(reg, handle, handle.key, sessA)
	Attach(reg, handle, handle.key, sessB)
	require.ElementsMatch(t, []*ManagedSession{sessA, sessB}, reg.AttachedSessions(handle.key))

	// attaching the same (key, session) pair twice must not duplicate it.
	Attach(reg, handle, handle.key, sessA)
	require.Len(t, reg.AttachedSessions(handle.key), 2)
}

func TestRegistryDetachRemovesSessionAndPrunesEmptyKeys(t *testing.T) {
	runner := NewRunner(nil)
	t.Cleanup(runner.Stop)
	reg := NewRegistry(runner)

	sess := NewManagedSession(&fakeSession{})
	handle := &testHandle{key: "chunk-1"}
	Attach(reg, handle, handle.key, sess)

	reg.Detach(handle.key, sess)
	require.Empty(t, reg.AttachedSessions(handle.key))
}

func TestRegistryCleanupFiresDecrefAfterHandleCollected(t *testing.T) {
	fs := &fakeSession{}
	sess := NewManagedSession(fs)
	runner := NewRunner(nil)
	t.Cleanup(runner.Stop)
	reg := NewRegistry(runner)

	func() {
		handle := &testHandle{key: "chunk-1"}
		Attach(reg, handle, handle.key, sess)
	}()

	// The cleanup runs on a GC worker goroutine asynchronously; poll for
	// it rather than asserting immediately after GC. This mirrors how
	// little control weakref-style finalizers give callers over timing
	// in the original implementation too.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if len(fs.decrefs) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, []string{"chunk-1"}, fs.decrefs)
}
