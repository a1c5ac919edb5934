package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/orderflow/futures-core/internal/config"
	"github.com/orderflow/futures-core/internal/engine"
	"github.com/orderflow/futures-core/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Telemetry isn't configured yet at this point; a config load
		// failure is fatal on start per §7, so a bare stderr line is enough.
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString("invalid config: " + err.Error() + "\n")
		os.Exit(1)
	}

	telemetry.Init(cfg.Logging)
	log := telemetry.Get()
	log.Info().Str("symbol", cfg.Symbol).Msg("starting orderflow core")

	ctx, cancel := context.WithCancel(context.Background())

	eng := engine.New(cfg, *log)

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("engine exited unexpectedly")
			cancel()
			os.Exit(1)
		}
	}

	log.Info().Msg("orderflow core stopped")
}
