package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/caseguard/internal/auth"
	"github.com/wolfeidau/caseguard/internal/store/sqlstore"
)

// Config holds the record store configuration. Pool settings are embedded
// from PoolConfig.
type Config struct {
	PoolConfig

	// QueryTimeout bounds every statement issued by the executor.
	// Default: 10 seconds
	QueryTimeout time.Duration

	// AutoMigrate runs pending migrations when the store opens.
	AutoMigrate bool
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	c.PoolConfig.ApplyDefaults()
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

// Store is the PostgreSQL backed record store. It embeds the access checked
// executor and owns the connection pool behind it.
type Store struct {
	*sqlstore.Executor

	pool *pgxpool.Pool
	db   *sql.DB

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open connects to PostgreSQL, optionally migrates, and returns a store
// authorizing with table.
func Open(ctx context.Context, cfg *Config, table *auth.Table) (*Store, error) {
	cfg.ApplyDefaults()

	pool, err := NewPool(ctx, &cfg.PoolConfig)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("database", pool.Config().ConnConfig.Database).
		Str("host", pool.Config().ConnConfig.Host).
		Int32("max_conns", cfg.MaxConns).
		Msg("Connected to PostgreSQL")

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db := OpenDB(pool)

	return &Store{
		Executor: sqlstore.New(db, table,
			sqlstore.WithClassifier(ClassifyError),
			sqlstore.WithQueryTimeout(cfg.QueryTimeout),
		),
		pool:   pool,
		db:     db,
		stopCh: make(chan struct{}),
	}, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Start launches background pool monitoring.
func (s *Store) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorConnectionPool()
	}()
}

// Stop ends background tasks and closes connections.
func (s *Store) Stop() {
	log.Info().Msg("Stopping PostgreSQL record store")

	close(s.stopCh)
	s.wg.Wait()

	_ = s.db.Close()
	s.pool.Close()
}

// monitorConnectionPool logs connection pool statistics periodically.
func (s *Store) monitorConnectionPool() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.pool.Stat()
			log.Debug().
				Int32("total_conns", stats.TotalConns()).
				Int32("idle_conns", stats.IdleConns()).
				Int32("acquired_conns", stats.AcquiredConns()).
				Int64("acquire_count", stats.AcquireCount()).
				Dur("acquire_duration", stats.AcquireDuration()).
				Msg("Connection pool stats")
		case <-s.stopCh:
			return
		}
	}
}
