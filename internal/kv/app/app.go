package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/guiyuanju/mossdb/internal/kv/adapter/inbound/repl"
	"github.com/guiyuanju/mossdb/internal/kv/adapter/outbound/bitcask"
	"github.com/guiyuanju/mossdb/internal/kv/config"
	"github.com/guiyuanju/mossdb/internal/kv/port"
	"github.com/guiyuanju/mossdb/internal/kv/service"
)

type App struct {
	cfg   *config.Config
	shell *repl.Shell
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Shell, with the engine constructor injected so `open` can be
	// issued at runtime.
	openFn := func(dir string) (port.KVService, error) {
		engineCfg := cfg.Engine
		engineCfg.DataDir = dir
		engine, err := bitcask.Open(engineCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		return service.NewKVService(engine), nil
	}
	shell := repl.New(openFn, os.Stdout)

	// 4. Auto-open when the data dir comes from configuration.
	if cfg.Engine.DataDir != "" {
		svc, err := openFn(cfg.Engine.DataDir)
		if err != nil {
			return nil, err
		}
		shell.Attach(svc)
	}

	return &App{cfg: cfg, shell: shell}, nil
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	shellErrCh := make(chan error, 1)
	go func() {
		shellErrCh <- a.shell.Run(ctx, os.Stdin)
	}()

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
		cancel()
	case err := <-shellErrCh:
		runErr = err
	}

	if svc := a.shell.Service(); svc != nil {
		if err := svc.Close(); err != nil {
			logger.Warnw("Engine close failed", "error", err.Error())
		}
	}

	return runErr
}
