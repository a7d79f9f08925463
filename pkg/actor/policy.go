package actor

import "fmt"

// StartMethod selects how a subpool's OS process is started, the Go
// analogue of multiprocessing's start-method family. Go has no real
// fork or forkserver primitive (no copy-on-write process image, no
// pre-warmed template process to fork from), so Forkserver and Fork both
// degrade to Spawn — a fresh os/exec re-launch — logging a one-line note
// every time that happens. RecoverSubPool always uses Spawn
// regardless of the configured method, mirroring the original's recovery
// path.
type StartMethod int

const (
	StartMethodSpawn StartMethod = iota
	StartMethodForkserver
	StartMethodFork
)

func (m StartMethod) String() string {
	switch m {
	case StartMethodSpawn:
		return "spawn"
	case StartMethodForkserver:
		return "forkserver"
	case StartMethodFork:
		return "fork"
	default:
		return "unknown"
	}
}

// ParseStartMethod parses the POOL_START_METHOD env var / config value.
func ParseStartMethod(s string) (StartMethod, error) {
	switch s {
	case "", "spawn":
		return StartMethodSpawn, nil
	case "forkserver":
		return StartMethodForkserver, nil
	case "fork":
		return StartMethodFork, nil
	default:
		return StartMethodSpawn, fmt.Errorf("actor: unknown start method %q", s)
	}
}

// effective resolves m to the method actually used to launch a process:
// always Spawn, since os/exec re-launch is the only start method Go can
// give a real implementation to.
func (m StartMethod) effective() StartMethod {
	if m != StartMethodSpawn {
		log.WithField("configured", m).Info("actor: start method has no fork/forkserver equivalent on this platform, using spawn")
	}
	return StartMethodSpawn
}

// KillMode selects how KillSubPool asks a subpool's process to stop.
// KillModeGraceful interrupts the process and waits up to a grace window for
// it to exit on its own before escalating; KillModeForced skips straight to a
// hard kill. Mirrors kill_sub_pool's SIGINT-then-terminate escalation,
// with Graceful/Forced as the two named points on that same scale instead
// of a single always-escalating path.
type KillMode int

const (
	KillModeGraceful KillMode = iota
	KillModeForced
)

func (m KillMode) String() string {
	if m == KillModeForced {
		return "forced"
	}
	return "graceful"
}
