package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/phuslu/log"
	"github.com/trogers1052/bwibbu-backfill/internal/config"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
)

// Stores opens the remote and local stores on first use, migrates them,
// and keeps them open for reuse
type Stores struct {
	cfg    config.DatabaseConfig
	logger *log.Logger

	mu     sync.Mutex
	remote *DB
	local  *DB
}

// NewStores creates a lazy store registry
func NewStores(cfg config.DatabaseConfig, logger *log.Logger) *Stores {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Stores{cfg: cfg, logger: logger}
}

// Get returns the local store when local is true, otherwise the remote store
func (s *Stores) Get(ctx context.Context, local bool) (*DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, cfg, name := &s.remote, s.cfg.Remote, "remote"
	if local {
		slot, cfg, name = &s.local, s.cfg.Local, "local"
	}
	if *slot != nil {
		return *slot, nil
	}

	if !cfg.Configured() {
		return nil, fmt.Errorf("%s database is not configured", name)
	}

	db, err := Open(ctx, cfg)
	if err != nil {
		s.logger.Error().Str("store", name).Err(err).Msg("database connection failed")
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	db.SetLogger(s.logger)

	s.logger.Info().Str("store", name).Str("driver", db.Driver()).Msg("database connected")
	*slot = db
	return db, nil
}

// Close closes every store that was opened
func (s *Stores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, db := range []*DB{s.remote, s.local} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.remote, s.local = nil, nil
	return firstErr
}
