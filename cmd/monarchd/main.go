// Command monarchd hosts a Monarch MicroKernel as a long-running daemon:
// it loads configuration, starts the kernel, blocks until an interrupt or
// terminate signal, and stops the kernel cleanly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/monarchkernel/monarch"
	"github.com/monarchkernel/monarch/config"
	"github.com/monarchkernel/monarch/kernel"
)

type daemonConfig struct {
	ModulePath      []string `yaml:"module_path" env:"MODULE_PATH"`
	MaxThreadCount  int      `yaml:"max_threads" env:"MAX_THREADS"`
	FiberOps        int      `yaml:"fiber_ops" env:"FIBER_OPS"`
	ServerAddr      string   `yaml:"server_addr" env:"SERVER_ADDR"`
	Housekeeping    string   `yaml:"housekeeping" env:"HOUSEKEEPING"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_seconds" env:"SHUTDOWN_TIMEOUT_SECONDS"`
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (optional)")
		envPrefix  = flag.String("env-prefix", "MONARCHD", "prefix for environment variable overrides")
		devLog     = flag.Bool("dev", false, "use the human-readable development logger instead of the production JSON logger")
	)
	flag.Parse()

	logger := monarch.NewLogger()
	if *devLog {
		logger = monarch.NewDevelopmentLogger()
	}

	cfg := &daemonConfig{
		MaxThreadCount:  4,
		ShutdownTimeout: 30,
	}

	feeders := []config.Feeder{config.EnvFeeder{Prefix: *envPrefix}}
	if *configPath != "" {
		feeders = append([]config.Feeder{config.YAMLFeeder{Path: *configPath}}, feeders...)
	}
	provider := config.NewProvider(cfg, feeders...)
	if err := provider.Reload(); err != nil {
		logger.Error("loading configuration failed", "error", err)
		os.Exit(1)
	}

	mk := kernel.NewMicroKernel(kernel.MicroKernelConfig{
		ModulePath:     cfg.ModulePath,
		MaxThreadCount: cfg.MaxThreadCount,
		FiberOps:       cfg.FiberOps,
		ConfigManager:  provider,
		ServerAddr:     cfg.ServerAddr,
		Housekeeping:   cfg.Housekeeping,
	}, logger)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()
	if err := mk.Start(startCtx); err != nil {
		logger.Error("starting MicroKernel failed", "error", err)
		os.Exit(1)
	}
	logger.Info("monarchd started", "max_threads", cfg.MaxThreadCount, "module_path", cfg.ModulePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("monarchd shutting down")

	timeout := time.Duration(cfg.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()
	if err := mk.Stop(stopCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
