package actor

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// GetExternalAddresses derives one external address per process (main pool
// first, then each subpool) from a base address and an optional explicit
// port list, mirroring MainActorPool.get_external_addresses.
func GetExternalAddresses(address string, nProcess int, ports []int) ([]string, error) {
	var host string
	var mainPort int
	var subPorts []int

	if idx := strings.LastIndex(address, ":"); idx >= 0 {
		host = address[:idx]
		p, err := strconv.Atoi(address[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("actor: invalid port in address %q: %w", address, err)
		}
		mainPort = p
		if len(ports) > 0 {
			if len(ports) != nProcess {
				return nil, fmt.Errorf("actor: ports count %d does not match n_process %d", len(ports), nProcess)
			}
			subPorts = ports
		} else {
			subPorts = make([]int, nProcess)
		}
	} else {
		host = address
		if len(ports) > 0 {
			if len(ports) != nProcess+1 {
				return nil, fmt.Errorf("actor: ports count %d does not match n_process+1 %d", len(ports), nProcess+1)
			}
		} else {
			ports = make([]int, nProcess+1)
		}
		mainPort = ports[0]
		subPorts = ports[1:]
	}

	out := make([]string, 0, nProcess+1)
	out = append(out, fmt.Sprintf("%s:%d", host, mainPort))
	for _, p := range subPorts {
		out = append(out, fmt.Sprintf("%s:%d", host, p))
	}
	return out, nil
}

// GenInternalAddress derives the address a subpool listens on for same-host
// traffic. Every platform this repo targets other than Windows gets a unix
// domain socket (the Go net package supports "unix" natively, so unlike the
// original there is no asyncio.start_unix_server capability check — the
// availability test simply becomes a GOOS check). On Windows there is no
// unix socket support, so the subpool falls back to its external TCP
// address, exactly as the original does.
func GenInternalAddress(processIndex int, externalAddress string) string {
	if runtime.GOOS == "windows" {
		return externalAddress
	}
	return fmt.Sprintf("unix:///tmp/xorbits-actor-pool-%d.sock", processIndex)
}
