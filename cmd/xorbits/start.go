package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	xorbitsconfig "github.com/xorbits-io/xorbits/internal/config"
	"github.com/xorbits-io/xorbits/pkg/actor"
	"github.com/xorbits-io/xorbits/pkg/consensus"
	"github.com/xorbits-io/xorbits/pkg/debug"
	"github.com/xorbits-io/xorbits/pkg/lifecycle"
	"github.com/xorbits-io/xorbits/pkg/metrics"
	"github.com/xorbits-io/xorbits/pkg/p2p"
)

func newStartCmd() *cobra.Command {
	var debugListen string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a xorbits node",
		Long:  "Start a xorbits node: P2P transport, Raft consensus, and an actor pool ready to accept subtask graphs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(debugListen)
		},
	}

	cmd.Flags().StringVar(&debugListen, "debug-listen", "127.0.0.1:18080", "introspection HTTP surface listen address")
	return cmd
}

func runStart(debugListen string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("%s starting node %s\n", color.CyanString("xorbits"), color.YellowString(cfg.Node.Name))

	p2pNode, err := p2p.NewNode(ctx, cfg.P2P)
	if err != nil {
		return fmt.Errorf("start p2p node: %w", err)
	}
	defer p2pNode.Close()
	fmt.Printf("  %s p2p node %s listening on %v\n", color.GreenString("✓"), p2pNode.ID(), p2pNode.Addrs())

	consensusEngine, err := consensus.NewEngine(&cfg.Consensus, p2pNode)
	if err != nil {
		return fmt.Errorf("build consensus engine: %w", err)
	}
	if err := consensusEngine.Start(); err != nil {
		return fmt.Errorf("start consensus engine: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = consensusEngine.Shutdown(shutdownCtx)
	}()
	fmt.Printf("  %s consensus engine started (bootstrap=%t)\n", color.GreenString("✓"), cfg.Consensus.Bootstrap)

	poolConfig, autoRecover, err := buildActorPoolConfig(cfg.ActorPool)
	if err != nil {
		return fmt.Errorf("build actor pool layout: %w", err)
	}

	mainPool := actor.NewMainPool(poolConfig, autoRecover)
	startMethod, err := actor.ParseStartMethod(os.Getenv("POOL_START_METHOD"))
	if err != nil {
		return fmt.Errorf("parse POOL_START_METHOD: %w", err)
	}
	mainPool.SetStartMethod(startMethod)
	if err := mainPool.Start(ctx); err != nil {
		return fmt.Errorf("start actor pool: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = mainPool.Stop(shutdownCtx)
	}()
	fmt.Printf("  %s actor pool started: %d subpool(s)\n", color.GreenString("✓"), poolConfig.NPool())

	if err := consensusEngine.PublishActorPoolConfig(poolConfig); err != nil {
		logrus.WithError(err).Warn("could not publish actor pool layout to consensus cluster")
	}

	runner := lifecycle.NewRunner(nil)
	runner.Start()
	defer runner.Stop()

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)
	go reportSubPoolGauge(ctx, mainPool, metricsRegistry)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.WithError(err).Warn("metrics server exited")
			}
		}()
		defer metricsServer.Close()
		fmt.Printf("  %s metrics exposed on http://%s%s\n", color.GreenString("✓"), cfg.Metrics.Listen, cfg.Metrics.Path)
	}

	graphs := debug.NewGraphRegistry()
	debugServer := debug.NewServer(mainPool, graphs.Lookup)
	debugHTTP := &http.Server{Addr: debugListen, Handler: debugServer.Router()}
	go func() {
		if err := debugHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Warn("debug server exited")
		}
	}()
	defer debugHTTP.Close()
	fmt.Printf("  %s introspection surface on http://%s/debug/pools\n", color.GreenString("✓"), debugListen)

	fmt.Printf("%s node ready\n", color.HiGreenString("✓"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println(color.YellowString("shutting down..."))
	return nil
}

// reportSubPoolGauge polls the main pool's subpool set and reports how
// many are alive, until ctx is cancelled.
func reportSubPoolGauge(ctx context.Context, pool *actor.MainPool, reg *metrics.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			alive := 0
			for _, sp := range pool.SubPools() {
				if sp.IsAlive() {
					alive++
				}
			}
			reg.SubPoolsAlive.Set(float64(alive))
		}
	}
}

// buildActorPoolConfig derives one PoolConfig per subpool from the config's
// flat listen-address/process-count/label layout: ports are allocated
// sequentially starting one above the configured base port (the base port,
// address slot 0, is reserved for the main pool's own identity, matching address.go's
// main-pool-first convention), via explicit ports so GetExternalAddresses
// does not fall back to ephemeral (":0") subpool ports.
func buildActorPoolConfig(cfg xorbitsconfig.ActorPoolConfig) (*actor.ActorPoolConfig, actor.AutoRecoverMode, error) {
	basePort, err := lastPort(cfg.ListenAddress)
	if err != nil {
		return nil, 0, fmt.Errorf("actor pool listen address %q: %w", cfg.ListenAddress, err)
	}

	ports := make([]int, cfg.NumProcess)
	for i := range ports {
		ports[i] = basePort + i + 1
	}
	addrs, err := actor.GetExternalAddresses(cfg.ListenAddress, cfg.NumProcess, ports)
	if err != nil {
		return nil, 0, err
	}

	poolConfig := actor.NewActorPoolConfig()
	for i := 0; i < cfg.NumProcess; i++ {
		externalAddress := addrs[i+1]
		poolConfig.AddPoolConfig(actor.PoolConfig{
			ProcessIndex:    i,
			Label:           cfg.Labels[i],
			InternalAddress: actor.GenInternalAddress(i, externalAddress),
			ExternalAddress: []string{externalAddress},
		})
	}

	var autoRecover actor.AutoRecoverMode
	switch cfg.AutoRecover {
	case "process":
		autoRecover = actor.AutoRecoverProcess
	case "actor":
		autoRecover = actor.AutoRecoverActor
	default:
		autoRecover = actor.AutoRecoverNone
	}

	return poolConfig, autoRecover, nil
}

// lastPort extracts the numeric port from a "host:port" address.
func lastPort(address string) (int, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
