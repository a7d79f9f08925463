package debug

import (
	"os"
	"testing"

	"github.com/xorbits-io/xorbits/pkg/actor"
)

// TestMain must intercept before go test's flag parsing: newTestPool starts
// real subpool processes by re-exec'ing this test binary, and a re-exec'd
// child carries the same env var a production xorbits binary would check
// in main().
func TestMain(m *testing.M) {
	actor.ReexecIfWorker()
	os.Exit(m.Run())
}
