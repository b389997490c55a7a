package cli

import (
	"context"
	"strings"

	"github.com/phuslu/log"
	"github.com/trogers1052/bwibbu-backfill/internal/api"
	"github.com/trogers1052/bwibbu-backfill/internal/backfill"
	"github.com/trogers1052/bwibbu-backfill/internal/cache"
	"github.com/trogers1052/bwibbu-backfill/internal/config"
	"github.com/trogers1052/bwibbu-backfill/internal/database"
	"github.com/trogers1052/bwibbu-backfill/internal/exchange"
	"github.com/trogers1052/bwibbu-backfill/internal/kafka"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
)

// app holds the long-lived collaborators one command invocation needs
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	stores   *database.Stores
	cache    *cache.Cache
	producer *kafka.Producer
}

func newApp(ctx context.Context, rc *RootConfig) (*app, error) {
	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	logger := logging.New(cfg.Log)

	a := &app{
		cfg:    cfg,
		logger: logger,
		stores: database.NewStores(cfg.Database, logger),
	}

	if cfg.Redis.Addr != "" {
		c, err := cache.New(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("fetch cache disabled")
		} else {
			a.cache = c
		}
	}

	return a, nil
}

// enableEvents turns on completion events when brokers are configured
func (a *app) enableEvents() {
	if len(a.cfg.Kafka.Brokers) == 0 || a.cfg.Kafka.EventsTopic == "" {
		return
	}
	a.producer = kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.EventsTopic)
	a.logger.Info().Str("brokers", strings.Join(a.cfg.Kafka.Brokers, ",")).Str("topic", a.cfg.Kafka.EventsTopic).Msg("publishing backfill events")
}

// sessions opens a fresh TWSE and TPEx session pair for one run
func (a *app) sessions(ctx context.Context) (exchange.Fetcher, exchange.Fetcher, error) {
	fc := a.cfg.Fetch

	twse := exchange.NewTWSE(fc.TWSEURL, fc.TWSEWarmup,
		exchange.WithTimeout(fc.TWSETimeout),
		exchange.WithRetries(fc.Retries, fc.RetryPause),
		exchange.WithLogger(a.logger),
	)
	twse.Warm(ctx)

	tpex := exchange.NewTPEx(fc.TPExURL,
		exchange.WithTimeout(fc.TPExTimeout),
		exchange.WithRetries(fc.Retries, fc.RetryPause),
		exchange.WithLogger(a.logger),
	)

	if a.cache != nil {
		return a.cache.Wrap(twse), a.cache.Wrap(tpex), nil
	}
	return twse, tpex, nil
}

func (a *app) store(ctx context.Context, local bool) (backfill.Store, error) {
	db, err := a.stores.Get(ctx, local)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (a *app) reader(ctx context.Context, local bool) (api.Reader, error) {
	db, err := a.stores.Get(ctx, local)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (a *app) service() *backfill.Service {
	opts := []backfill.ServiceOption{
		backfill.WithDayDelay(a.cfg.Fetch.DayDelay),
		backfill.WithLogger(a.logger),
	}
	if a.producer != nil {
		opts = append(opts, backfill.WithPublisher(a.producer))
	}
	return backfill.NewService(a.sessions, a.store, opts...)
}

func (a *app) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close kafka producer")
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if err := a.stores.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close database")
	}
}
