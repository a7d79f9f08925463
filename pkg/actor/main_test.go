package actor

import (
	"os"
	"testing"
)

// TestMain lets a subpool process re-exec this very test binary: when
// SubPool.Start spawns a child with XORBITS_SUBPOOL_WORKER_CONFIG set,
// ReexecIfWorker intercepts before go test's own flag parsing and runs the
// worker body instead, so package actor's tests exercise a real child
// process rather than a goroutine stand-in.
func TestMain(m *testing.M) {
	ReexecIfWorker()
	os.Exit(m.Run())
}
