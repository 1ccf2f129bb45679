package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flowmesh/routercore/internal/agent"
	"github.com/flowmesh/routercore/internal/config"
	"github.com/flowmesh/routercore/internal/metrics"
	"github.com/flowmesh/routercore/internal/policy"
	"github.com/flowmesh/routercore/internal/policy/ruleengine"
	"github.com/flowmesh/routercore/internal/router"
	"github.com/flowmesh/routercore/internal/routerlog"
	"github.com/flowmesh/routercore/internal/transport"
)

const shutdownGrace = 10 * time.Second

// defaultPolicyDoc is the fallback policy document used when no
// --config policy.document_path is set: one vhost, one group,
// unrestricted, matching an open/no-policy router deployment.
var defaultPolicyDoc = []byte(`
vhosts:
  "":
    rules:
      - hostPattern: "*"
        group: default
    groups:
      default:
        allowAnonymousSender: true
        allowDynamicSource: true
        allowUserIdProxy: true
`)

func main() {
	configPath, logLevelOverride := parseFlags(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevelOverride != "" {
		cfg.Logging.Level = logLevelOverride
	}

	logger, err := routerlog.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting routercore",
		zap.String("router_id", cfg.Router.ID),
		zap.String("listen", cfg.Listener.Address),
	)

	engine, err := loadPolicyEngine(cfg.Policy.DocumentPath)
	if err != nil {
		logger.Fatal("failed to load policy document", zap.Error(err))
	}
	gate := policy.NewGate(engine, cfg.Listener.MaxConnections, logger.Named("policy"))

	bridge := transport.NewBridge(logger.Named("transport"))
	core := router.NewCore(cfg.Router.ID, cfg.Router.MaskSize, bridge, logger.Named("core"))
	go core.Run()

	reg := prometheus.NewRegistry()
	metrics.NewRegistry(reg, core)

	// The management agent answers entity queries today only for
	// whatever calls agent.Query/agent.Stats in-process (tests, future
	// admin tooling); the transport stub does not yet speak the AMQP
	// $management request-response protocol that would expose it over
	// the wire.
	_ = agent.New(core, gate)

	metricsSrv := &http.Server{Addr: cfg.Metrics.Address, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	ln, err := transport.Listen(cfg.Listener.Address, core, gate, bridge, logger.Named("transport"), cfg.Router.Q2Lower, cfg.Router.Q2Upper)
	if err != nil {
		logger.Fatal("failed to bind listener", zap.Error(err))
	}
	go func() {
		if err := ln.Serve(); err != nil {
			logger.Info("listener stopped", zap.Error(err))
		}
	}()

	logger.Info("routercore ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	ln.Close()
	core.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	logger.Info("routercore stopped")
}

func loadPolicyEngine(path string) (policy.Engine, error) {
	if path == "" {
		return ruleengine.Load(defaultPolicyDoc, nil)
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy document %s: %w", path, err)
	}
	return ruleengine.Load(doc, nil)
}

func parseFlags(args []string) (configPath, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

