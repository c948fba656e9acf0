package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/meigma/studycache"
	"github.com/meigma/studycache/archive"
	"github.com/meigma/studycache/budget"
	"github.com/meigma/studycache/config"
	"github.com/meigma/studycache/snapshot"
	"github.com/meigma/studycache/snapshot/redisstore"
)

// app holds the components a command runs against.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	manager *studycache.Manager

	// dispatcher is nil when no archive repository is configured.
	dispatcher *archive.Dispatcher

	closers []func() error
}

func newApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if cfg.Snapshot.Dir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.Snapshot.Dir = dir
	}

	logger, err := cfg.NewLogger(logOut)
	if err != nil {
		return nil, err
	}
	limits, err := cfg.PolicyLimits()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	probe, err := budget.NewDiskProbe(cfg.FreeSpacePath())
	if err != nil {
		return nil, err
	}

	a.manager, err = studycache.New(
		studycache.WithLimits(limits),
		studycache.WithStore(store),
		studycache.WithFreeSpaceReader(probe),
		studycache.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := a.manager.Load(ctx); err != nil {
		return nil, err
	}

	if cfg.Archive.Repository != "" {
		if err := a.startDispatcher(ctx); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

func (a *app) openStore() (studycache.Store, error) {
	s := a.cfg.Snapshot
	if s.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr, DB: s.RedisDB})
		a.closers = append(a.closers, client.Close)

		var opts []redisstore.Option
		if s.RedisKey != "" {
			opts = append(opts, redisstore.WithKey(s.RedisKey))
		}
		store, err := redisstore.New(client, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}

	store, err := snapshot.NewFileStore(s.Dir, snapshot.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *app) startDispatcher(ctx context.Context) error {
	ac := a.cfg.Archive
	var opts []archive.RemoteOption
	if ac.PlainHTTP {
		opts = append(opts, archive.WithPlainHTTP(true))
	}
	if ac.DockerConfig {
		opts = append(opts, archive.WithDockerConfig())
	}
	target, err := archive.NewRemoteTarget(ac.Repository, opts...)
	if err != nil {
		return err
	}
	uploader, err := archive.NewUploader(target, archive.WithUploaderLogger(a.logger))
	if err != nil {
		return err
	}
	src, err := archive.OpenDirSource(ac.ContentDir)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, src.Close)

	a.dispatcher = archive.NewDispatcher(ctx, uploader, src,
		archive.WithWorkers(ac.Workers),
		archive.WithQueueSize(ac.QueueSize),
		archive.WithDispatcherLogger(a.logger))
	// Closed first so uploads finish before the source is released.
	a.closers = append(a.closers, a.dispatcher.Close)
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close failed", slog.Any("error", err))
	}
}

func defaultDataDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache dir: %w", err)
	}
	return filepath.Join(base, "studycache"), nil
}
