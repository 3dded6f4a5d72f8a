package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	app "github.com/R3E-Network/voice_metrics/internal/app"
	"github.com/R3E-Network/voice_metrics/internal/app/httpapi"
	"github.com/R3E-Network/voice_metrics/internal/app/storage"
	"github.com/R3E-Network/voice_metrics/internal/app/storage/memory"
	"github.com/R3E-Network/voice_metrics/internal/app/storage/postgres"
	"github.com/R3E-Network/voice_metrics/internal/app/storage/sqlite"
	"github.com/R3E-Network/voice_metrics/internal/config"
	"github.com/R3E-Network/voice_metrics/internal/middleware"
	"github.com/R3E-Network/voice_metrics/internal/platform/migrations"
	"github.com/R3E-Network/voice_metrics/pkg/logger"
)

const rateLimitCleanupInterval = 5 * time.Minute

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	handler    http.Handler
	httpServer *http.Server
	closer     io.Closer
	stop       chan struct{}
	listenAddr chan string
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.LoggingConfig) *logger.Logger {
	return logger.New(logger.LoggingConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		FilePrefix: cfg.FilePrefix,
	})
}

// NewApplication constructs a new application instance from cfg.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = NewLogger(cfg.Logging)
	}

	store, closer, err := OpenStore(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application := app.New(app.Stores{Trials: store}, log)

	stop := make(chan struct{})
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log.Named("ratelimit"))
		limiter.StartCleanup(rateLimitCleanupInterval, stop)
	}

	handler := httpapi.New(application, httpapi.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimiter:    limiter,
		Log:            log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
		IdleTimeout:  config.Duration(cfg.Server.IdleTimeout),
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		handler:    handler,
		httpServer: srv,
		closer:     closer,
		stop:       stop,
		listenAddr: make(chan string, 1),
	}, nil
}

// Handler exposes the HTTP stack, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// App returns the composed domain services.
func (a *Application) App() *app.Application {
	return a.app
}

// Addr blocks until the server is listening and returns its address.
func (a *Application) Addr(ctx context.Context) (string, error) {
	select {
	case addr := <-a.listenAddr:
		a.listenAddr <- addr
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.httpServer.Addr, err)
	}
	a.listenAddr <- ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", ln.Addr())
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server and releases the store.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := config.Duration(a.cfg.Server.ShutdownTimeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-a.stop:
	default:
		close(a.stop)
	}

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

// OpenStore returns the trial store selected by cfg.Driver together with a
// closer for its database handle, which is nil for the memory store.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (storage.TrialStore, io.Closer, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		if log != nil {
			log.Warn("using in-memory trial store; data is lost on restart")
		}
		return memory.New(), nil, nil
	case config.DriverPostgres:
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.Apply(ctx, db, migrations.Postgres); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.New(db), db, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.Duration(cfg.ConnMaxLifetime))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
