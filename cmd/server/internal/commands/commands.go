package commands

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wolfeidau/caseguard/internal/auth"
	"github.com/wolfeidau/caseguard/internal/catalog"
	postgresstore "github.com/wolfeidau/caseguard/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

// PostgresFlags configures the database connection shared by serve and
// migrate.
type PostgresFlags struct {
	ConnString       string        `help:"PostgreSQL connection string" env:"CASEGUARD_POSTGRES_CONNECTION_STRING"`
	MaxConns         int32         `help:"maximum number of connections in pool" default:"20" env:"CASEGUARD_POSTGRES_MAX_CONNS"`
	MinConns         int32         `help:"minimum number of connections in pool" default:"2" env:"CASEGUARD_POSTGRES_MIN_CONNS"`
	MaxConnLifetime  int32         `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime  int32         `help:"maximum connection idle time in seconds" default:"1800"`
	StatementTimeout int32         `help:"server side statement timeout in seconds" default:"30" env:"CASEGUARD_POSTGRES_STATEMENT_TIMEOUT"`
	ConnectRetry     time.Duration `help:"how long to retry the initial connection" default:"30s" env:"CASEGUARD_POSTGRES_CONNECT_RETRY"`
}

func (f *PostgresFlags) Validate() error {
	if f.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or CASEGUARD_POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (f *PostgresFlags) poolConfig() postgresstore.PoolConfig {
	return postgresstore.PoolConfig{
		ConnString:       f.ConnString,
		MaxConns:         f.MaxConns,
		MinConns:         f.MinConns,
		MaxConnLifetime:  f.MaxConnLifetime,
		MaxConnIdleTime:  f.MaxConnIdleTime,
		StatementTimeout: f.StatementTimeout,
		ConnectRetry:     f.ConnectRetry,
	}
}

// loadCapabilities returns the embedded table, or the one at path, checked
// against the entity catalog.
func loadCapabilities(path string) (*auth.Table, error) {
	var (
		table *auth.Table
		err   error
	)
	if path == "" {
		table, err = auth.DefaultTable()
	} else {
		table, err = auth.LoadTable(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load capabilities: %w", err)
	}

	if err := table.Check(catalog.Default().All()); err != nil {
		return nil, fmt.Errorf("capabilities do not match catalog: %w", err)
	}
	return table, nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
