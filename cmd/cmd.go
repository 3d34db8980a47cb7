package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/config"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/database"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/database/migration"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/engine"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/mqtt"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/notify"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/pricing"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/publisher"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/server"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/storage"
)

var errCron = errors.New("cron error")

// services are the parts run keeps alive. Nil members are skipped.
type services struct {
	handler  http.Handler
	notifier Runner
	hub      Runner
	cleaner  Cleaner
}

// ServeCommand starts the HTTP API, the live feed and the scheduled
// notifications.
func ServeCommand(c *cli.Context) error {
	cfg, logger, restore, err := setup(c, "stdout")
	if err != nil {
		return err
	}
	defer restore()

	errorChan := make(chan error, 1000)

	store, db, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	tariff := pricing.New(cfg.Pricing)
	eng := newEngine(cfg, store, tariff)

	pub := publisher.New()
	if err := pub.RegisterPublisher("log", publisher.NewLogSink(logger)); err != nil {
		return err
	}
	var live func(context.Context, model.Notification)
	if cfg.MQTT.Enabled() {
		sink := mqtt.New(mqtt.NewClient(cfg.MQTT), cfg.MQTT.Prefix)
		if err := sink.Connect(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		if err := pub.RegisterPublisher("mqtt", sink); err != nil {
			return err
		}
		live = func(ctx context.Context, n model.Notification) {
			if err := sink.Publish(ctx, n); err != nil {
				logger.Warn("failed to publish live state", zap.Error(err))
			}
		}
	}
	for _, d := range cfg.Devices {
		if err := pub.RegisterDevice(d); err != nil {
			return err
		}
	}

	state, err := notify.OpenState(cfg.Notify.StateFile)
	if err != nil {
		return err
	}
	notifier, err := notify.New(cfg.Notify, cfg.Alerts, eng, pub, state, cfg.Location(), errorChan)
	if err != nil {
		return err
	}

	hub := server.NewHub(eng, cfg.LiveInterval, live)
	svc := services{
		handler:  server.New(eng, notifier, tariff, hub).Router(),
		notifier: notifier,
		hub:      hub,
	}
	if db != nil && cfg.Retention > 0 {
		svc.cleaner = db
	}
	return run(c.Context, cfg, svc, errorChan, logger)
}

func run(ctx context.Context, cfg *config.Config, svc services, errorChan chan error, logger *zap.Logger) error {
	eg, ctx := errgroup.WithContext(ctx)

	if svc.cleaner != nil {
		eg.Go(func() error {
			return cronDbCleanup(ctx, svc.cleaner, cfg, errorChan)
		})
	}

	if svc.notifier != nil {
		eg.Go(func() error {
			return svc.notifier.Run(ctx)
		})
	}

	if svc.hub != nil {
		eg.Go(func() error {
			return svc.hub.Run(ctx)
		})
	}

	if svc.handler != nil {
		srv := &http.Server{
			Handler:      svc.handler,
			Addr:         cfg.HTTPAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		eg.Go(func() error {
			logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		// handle any async errors from the scheduled jobs
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Warn("background job failed", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

// cronDbCleanup prunes samples past the retention period once at startup and
// then every night at 03:00.
func cronDbCleanup(ctx context.Context, db Cleaner, cfg *config.Config, errChan chan error) error {
	cleanup := func() error {
		return db.Cleanup(ctx, time.Now().Add(-cfg.Retention))
	}
	if err := cleanup(); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("CRON_TZ=%s 0 3 * * *", cfg.Location()), func() {
		if err := cleanup(); err != nil {
			zap.L().Error("error cleaning up database", zap.Error(err))
			errChan <- fmt.Errorf("%w: %w", errCron, err)
			return
		}
		zap.L().Info("database cleanup finished")
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// setup loads the configuration and installs the global logger. Commands
// that print results log to stderr.
func setup(c *cli.Context, output string) (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	logger, err := newLogger(cfg.LogLevel, output)
	if err != nil {
		return nil, nil, nil, err
	}
	undo := zap.ReplaceGlobals(logger)
	return cfg, logger, func() {
		_ = logger.Sync() // flushes buffer, if any.
		undo()
	}, nil
}

func newLogger(level, output string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{output}
	logCfg.ErrorOutputPaths = []string{output}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// openStore returns the configured sample store. The database is returned
// as well when it backs the store so the caller can close it.
func openStore(ctx context.Context, cfg *config.Config) (engine.SampleStore, *database.Database, error) {
	if cfg.Backend != config.BackendPostgres {
		return storage.New(cfg.DataDir, cfg.Location(), cfg.Devices), nil, nil
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, db, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.Database, error) {
	if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return database.NewDatabase(pool, cfg.Devices), nil
}

func newEngine(cfg *config.Config, store engine.SampleStore, tariff *pricing.Tariff) *engine.Engine {
	return engine.New(store, cfg.Devices, tariff, cfg.Location(), engine.WithMaxGap(cfg.MaxSampleGap))
}
