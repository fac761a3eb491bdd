package cli

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/config"
	"github.com/example/leaf-check/internal/controller"
	"github.com/example/leaf-check/internal/logging"
	"github.com/example/leaf-check/internal/predict"
	"github.com/example/leaf-check/internal/preview"
	"github.com/example/leaf-check/internal/selection"
)

const cacheDialTimeout = 5 * time.Second

// app bundles the wired collaborators for one command invocation.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	client     *predict.Client
	cache      *predict.RedisCache
	controller *controller.Controller
}

// loadConfig applies the persistent flags over the loaded configuration.
func loadConfig(opts *rootOptions) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}
	if opts.apiURL != "" {
		cfg.API.URL = opts.apiURL
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

// newLogger builds the logger for cfg. quietByDefault discards logs unless a
// log file is configured, for commands that own the terminal.
func newLogger(cfg config.Config, quietByDefault bool) (*zap.Logger, error) {
	if quietByDefault && cfg.Log.Path == "" {
		return zap.NewNop(), nil
	}
	return logging.NewLogger(logging.Options{Level: cfg.Log.Level, Path: cfg.Log.Path})
}

// newApp wires config, logging, the prediction client with its optional
// cache, and an upload controller.
func newApp(ctx context.Context, opts *rootOptions, quietByDefault bool) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, quietByDefault)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	clientOpts := []predict.Option{predict.WithTimeout(cfg.API.Timeout)}
	if cfg.Cache.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, cacheDialTimeout)
		cache, err := predict.DialRedisCache(dialCtx, cfg.Cache.RedisAddr)
		cancel()
		if err != nil {
			logger.Warn("result cache disabled", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			a.cache = cache
			clientOpts = append(clientOpts, predict.WithCache(cache, cfg.Cache.TTL))
		}
	}

	a.client = predict.NewClient(cfg.API.URL, logger, clientOpts...)
	a.controller = controller.New(
		selection.NewStore(logger),
		preview.NewManager(preview.NewMemoryRegistry(), logger),
		a.client,
		logger,
	)
	logger.Info("uploader ready",
		zap.String("endpoint", a.client.Endpoint()),
		zap.Duration("timeout", cfg.API.Timeout),
		zap.Bool("cache", a.cache != nil),
	)
	return a, nil
}

func (a *app) close() {
	a.controller.Close()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing result cache", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
