package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"hopper/internal/config"
	"hopper/internal/editorial"
	"hopper/internal/logging"
	"hopper/internal/monitor"
	"hopper/internal/notify"
	"hopper/internal/store"
	"hopper/internal/wire"
)

func runDaemon(ctx context.Context, configPath string) error {
	cfg, resolvedPath, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewForDir(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		return err
	}
	logger.Info("hopperd starting", logging.String("config", resolvedPath))

	// Single daemon instance per work directory.
	lock := flock.New(cfg.LockFilePath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another hopperd instance holds %s", cfg.LockFilePath())
	}
	defer func() { _ = lock.Unlock() }()

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	notifier := notify.NewService(cfg, logger)

	var editorialClient editorial.Client
	if cfg.Editorial.BaseURL != "" {
		editorialClient = editorial.NewHTTPClient(
			cfg.Editorial.BaseURL,
			cfg.Editorial.APIKey,
			time.Duration(cfg.Editorial.RequestTimeout)*time.Second,
		)
	}

	var reporter *wire.Writer
	if cfg.Reporting.Secret != "" {
		streamPath := filepath.Join(cfg.Paths.WorkDir, "reports.stream")
		stream, err := os.OpenFile(streamPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open report stream: %w", err)
		}
		defer stream.Close()
		reporter = wire.NewWriter(stream, []byte(cfg.Reporting.Secret))
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(cfg, st, notifier, editorialClient, reporter, logger)
	if err := mon.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("hopperd shutting down")
	mon.Stop()
	return nil
}

func runConfigInit(args []string) error {
	target := ""
	if len(args) == 1 {
		target = args[0]
	} else {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		target = defaultPath
	}
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("config already exists at %s", target)
	}
	if err := config.CreateSample(target); err != nil {
		return err
	}
	fmt.Println("wrote sample config to", target)
	return nil
}
