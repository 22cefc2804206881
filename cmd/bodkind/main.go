// bodkind serves a fixed-point model over HTTP: the inference API on one
// listener, health and Prometheus metrics on another.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/23skdu/longbow-bodkin/internal/config"
	"github.com/23skdu/longbow-bodkin/internal/engine"
	"github.com/23skdu/longbow-bodkin/internal/events"
	"github.com/23skdu/longbow-bodkin/internal/logger"
	"github.com/23skdu/longbow-bodkin/internal/modelfile"
	"github.com/23skdu/longbow-bodkin/internal/monitoring"
	"github.com/23skdu/longbow-bodkin/internal/server"
)

const version = "0.1.0"

var (
	modelPath      = flag.String("model", "", "Path to the model manifest (required)")
	listenAddr     = flag.String("listen", ":8080", "Address for the inference API")
	metricsAddr    = flag.String("metrics", ":9090", "Address for health and Prometheus metrics")
	apiKey         = flag.String("api-key", "", "API key for authentication (empty: auth off)")
	allowedOrigins = flag.String("allowed-origins", "", "Comma-separated list of allowed CORS origins")
	eventsAddr     = flag.String("events", "", "Arrow Flight address for result events (empty: off)")
	maxOps         = flag.Uint64("max-ops", 0, "Per-call signed-op budget (0: unlimited)")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn or error")
	logFormat      = flag.String("log-format", "console", "Log format: console or json")
)

func main() {
	flag.Parse()

	if *modelPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Config{
		ModelPath:      *modelPath,
		LogLevel:       *logLevel,
		LogFormat:      *logFormat,
		ListenAddr:     *listenAddr,
		MetricsAddr:    *metricsAddr,
		APIKey:         *apiKey,
		AllowedOrigins: config.ParseOrigins(*allowedOrigins),
		EventsAddr:     *eventsAddr,
		MaxOpsPerCall:  *maxOps,
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Log.WithComponent("bodkind")
	log.Info("starting", "version", version, "model", cfg.ModelPath)

	manifest, err := modelfile.Load(cfg.ModelPath)
	if err != nil {
		log.Error("load manifest", "error", err)
		os.Exit(1)
	}
	cfg.ModelName = manifest.Name
	g, err := manifest.Build()
	if err != nil {
		log.Error("build model graph", "error", err)
		os.Exit(1)
	}

	var sink events.Sink = events.NopSink{}
	if cfg.EventsEnabled() {
		fs, err := events.NewFlightSink(cfg.EventsAddr)
		if err != nil {
			log.Error("connect event sink", "addr", cfg.EventsAddr, "error", err)
			os.Exit(1)
		}
		sink = fs
		log.Info("event sink connected", "addr", cfg.EventsAddr)
	}

	eng, err := engine.New(g, &cfg, sink)
	if err != nil {
		log.Error("initialize engine", "error", err)
		os.Exit(1)
	}

	monitor := monitoring.NewMonitor(version)
	monitor.SetModelInfo(monitoring.ModelInfo{
		Loaded:       true,
		Name:         manifest.Name,
		Path:         cfg.ModelPath,
		Layers:       g.NumLayers(),
		Scale:        g.Scale(),
		InputDim:     g.InputDim(),
		OutputDim:    g.OutputDim(),
		Accumulators: len(eng.Accumulators()),
	})
	go func() {
		if err := monitor.Start(cfg.MetricsAddr); err != nil && err != http.ErrServerClosed {
			log.Error("monitoring server", "error", err)
		}
	}()

	srv := server.New(eng, &cfg)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			log.Error("stop api server", "error", err)
		}
		if err := monitor.Stop(ctx); err != nil {
			log.Error("stop monitoring", "error", err)
		}
		if err := sink.Close(); err != nil {
			log.Error("close event sink", "error", err)
		}
	}()

	monitor.SetReady(true)
	if err := srv.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
		log.Error("api server", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}
