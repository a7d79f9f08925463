// Command xorbits runs one node of a distributed dataframe/tensor
// execution cluster: a P2P-networked, Raft-coordinated actor pool that
// accepts chunk graphs, fuses and colors them into subtask graphs, and
// dispatches subtasks to its subpools for execution.
//
// Grounded on cmd/node/main.go's cobra root command + start/status/join
// subcommand layout, retargeted from an Ollama-serving node to a xorbits
// actor pool node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	xorbitsconfig "github.com/xorbits-io/xorbits/internal/config"
	"github.com/xorbits-io/xorbits/pkg/actor"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	// A subpool process is this same binary, re-executed with a worker
	// config in its environment. Intercept before cobra ever sees argv.
	actor.ReexecIfWorker()

	rootCmd := &cobra.Command{
		Use:     "xorbits",
		Short:   "Distributed dataframe/tensor execution node",
		Version: version,
		Long: `xorbits runs one node of a distributed execution cluster.

A node hosts an actor pool (a main pool supervising labeled subpools),
participates in Raft consensus for leader election and actor-pool-layout
replication, and optionally joins a libp2p swarm for cross-host transport.

Start a node:
  xorbits start --config config.yaml

Check a running node's pool health:
  xorbits status --debug-url http://localhost:18080`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default search path: ./config.yaml, $HOME/.xorbits, /etc/xorbits)")

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*xorbitsconfig.Config, error) {
	return xorbitsconfig.Load(cfgFile)
}
