package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/wolfeidau/caseguard/internal/auth"
	"github.com/wolfeidau/caseguard/internal/catalog"
	"github.com/wolfeidau/caseguard/internal/client"
	"github.com/wolfeidau/caseguard/internal/logger"
	"github.com/wolfeidau/caseguard/internal/server"
	postgresstore "github.com/wolfeidau/caseguard/internal/store/postgres"
	"github.com/wolfeidau/caseguard/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8443" env:"CASEGUARD_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"CASEGUARD_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"CASEGUARD_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"CASEGUARD_CORS_ORIGINS"`

	// Token verification
	JWTPublicKey string        `help:"PEM encoded ES256 public key for bearer tokens" env:"CASEGUARD_JWT_PUBLIC_KEY"`
	JWKSURL      string        `help:"JWKS URL to fetch token verification keys from" env:"CASEGUARD_JWKS_URL"`
	JWKSCacheDir string        `help:"directory for the JWKS HTTP cache, memory if empty" env:"CASEGUARD_JWKS_CACHE_DIR"`
	JWTIssuer    string        `help:"required token issuer" env:"CASEGUARD_JWT_ISSUER"`
	JWTAudience  string        `help:"required token audience" env:"CASEGUARD_JWT_AUDIENCE"`
	FetchTimeout time.Duration `help:"timeout for outbound key fetches" default:"10s" env:"CASEGUARD_FETCH_TIMEOUT"`

	// Access control
	CapabilitiesFile string `help:"YAML capability table, embedded default if empty" env:"CASEGUARD_CAPABILITIES_FILE"`

	// Store configuration
	Postgres     PostgresFlags `embed:"" prefix:"postgres-"`
	AutoMigrate  bool          `help:"run database migrations on startup" default:"false" env:"CASEGUARD_AUTO_MIGRATE"`
	QueryTimeout time.Duration `help:"per statement timeout" default:"10s" env:"CASEGUARD_QUERY_TIMEOUT"`
	MaxBodyBytes int64         `help:"maximum write payload size in bytes" default:"33554432" env:"CASEGUARD_MAX_BODY_BYTES"`

	// Operational modes
	Tracing         bool          `help:"enable tracing and metrics export" default:"false" env:"CASEGUARD_TRACING"`
	SampleRatio     float64       `help:"fraction of root traces sampled" default:"1" env:"CASEGUARD_TRACE_SAMPLE_RATIO"`
	ShutdownTimeout time.Duration `help:"graceful shutdown timeout" default:"15s" env:"CASEGUARD_SHUTDOWN_TIMEOUT"`
}

func (c *ServeCmd) Validate() error {
	if c.JWTPublicKey == "" && c.JWKSURL == "" {
		return errors.New("a token key is required (--jwt-public-key or --jwks-url)")
	}
	if c.JWTPublicKey != "" && c.JWKSURL != "" {
		return errors.New("--jwt-public-key and --jwks-url are mutually exclusive")
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}
	return c.Postgres.Validate()
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	table, err := loadCapabilities(c.CapabilitiesFile)
	if err != nil {
		return err
	}

	keys, err := c.keySource()
	if err != nil {
		return err
	}

	var verifierOpts []auth.VerifierOption
	if c.JWTIssuer != "" {
		verifierOpts = append(verifierOpts, auth.WithIssuer(c.JWTIssuer))
	}
	if c.JWTAudience != "" {
		verifierOpts = append(verifierOpts, auth.WithAudience(c.JWTAudience))
	}
	verifier := auth.NewVerifier(keys, table, verifierOpts...)

	storeCfg := &postgresstore.Config{
		PoolConfig:   c.Postgres.poolConfig(),
		QueryTimeout: c.QueryTimeout,
		AutoMigrate:  c.AutoMigrate,
	}
	records, err := postgresstore.Open(ctx, storeCfg, table)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	records.Start()
	defer records.Stop()

	srv := server.NewServer(records, catalog.Default(), verifier.Middleware(),
		server.WithPinger(records),
		server.WithMaxBodyBytes(c.MaxBodyBytes),
	)

	handler := otelhttp.NewHandler(withCORS(c.CORSOrigins, csrf.New().Handler(srv.Handler(log))), "caseguard",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/health")
		}),
	)

	httpServer := configureHTTPServer(c.Listen, handler)
	httpServer.BaseContext = func(_ net.Listener) context.Context { return ctx }

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		var err error
		if c.Cert != "" {
			err = httpServer.ListenAndServeTLS(c.Cert, c.Key)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (c *ServeCmd) keySource() (auth.KeySource, error) {
	if c.JWKSURL != "" {
		httpClient := client.NewCachingHTTPClient(c.JWKSCacheDir, c.FetchTimeout)
		return auth.NewJWKSKeySource(c.JWKSURL, httpClient), nil
	}

	key, err := auth.NewStaticKey(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT public key: %w", err)
	}
	return key, nil
}

// withCORS adds CORS support for browser clients calling the API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost,
			http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match", "X-Request-Id"},
		ExposedHeaders: []string{"ETag", "Location", "Retry-After", "X-Request-Id", "Content-Disposition"},
		MaxAge:         600,
	})
	return middleware.Handler(h)
}
