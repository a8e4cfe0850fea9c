package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"meshbridge/internal/app"
	"meshbridge/internal/config"
	"meshbridge/internal/logging"
)

func main() {
	configPath := flag.String("config", "meshbridge.json", "path to the bridge config file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	if err := run(*configPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "meshbridged: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logManager := logging.NewManager()
	if err := logManager.Configure(cfg.Logging); err != nil {
		return err
	}
	logger := logManager.Logger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime := app.NewRuntime(cfg, logManager)
	if err := runtime.Start(ctx); err != nil {
		runtime.Shutdown()
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	runtime.Shutdown()

	return nil
}
