/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the vacation planner server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env into the environment (optional file)
  2. Load and validate configuration (config package)
  3. Build the zap logger
  4. Open the request store and identity backend for the configured driver
  5. Create the admission service, session manager and report scheduler
  6. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -config  YAML config file (default: ./config/config.yaml or ./config.yaml
           when present)

STORE DRIVERS:
  memory  Requests in process memory, roster from config
  sqlite  Requests and roster in SQLite; the employees table is replaced
          by the config roster on start and admin flags follow
          auth.admin_ids
  redis   Requests in a Redis hash, roster from config

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the report scheduler
  4. Close store connections

EXAMPLES:
  # Run with defaults (sqlite at ./data/planner.db)
  PLANNER_AUTH_JWT_SECRET=change-me-please-now ./server

  # Run in memory on a different port
  PLANNER_STORE_DRIVER=memory PLANNER_SERVER_PORT=3000 ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warp/vacation-planner/api"
	"github.com/warp/vacation-planner/calendar"
	"github.com/warp/vacation-planner/config"
	"github.com/warp/vacation-planner/directory"
	"github.com/warp/vacation-planner/leave"
	"github.com/warp/vacation-planner/logging"
	"github.com/warp/vacation-planner/metrics"
	"github.com/warp/vacation-planner/report"
	"github.com/warp/vacation-planner/session"
	"github.com/warp/vacation-planner/store/memory"
	redisstore "github.com/warp/vacation-planner/store/redis"
	"github.com/warp/vacation-planner/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// backends are the store and identity collaborators for one driver.
type backends struct {
	store     leave.Store
	directory leave.Directory
	admins    leave.AdminChecker
	redis     *goredis.Client
	checks    map[string]func(context.Context) error
	closers   []func() error
}

func (b *backends) close(logger *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

func openBackends(ctx context.Context, cfg *config.Config, employees []leave.Employee, logger *zap.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]func(context.Context) error)}
	admins := directory.NewAdmins(cfg.Auth.AdminIDs...)

	staticDirectory := func() error {
		dir, err := directory.NewStatic(employees)
		if err != nil {
			return err
		}
		b.directory, b.admins = dir, admins
		return nil
	}

	dialRedis := func() (*goredis.Client, error) {
		if b.redis != nil {
			return b.redis, nil
		}
		rdb, err := redisstore.Dial(ctx, redisstore.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, logger)
		if err != nil {
			return nil, err
		}
		b.redis = rdb
		b.closers = append(b.closers, rdb.Close)
		b.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return rdb, nil
	}

	switch cfg.Store.Driver {
	case "memory":
		b.store = memory.New()
		if err := staticDirectory(); err != nil {
			return b, err
		}

	case "sqlite":
		path := cfg.Store.SQLitePath
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return b, fmt.Errorf("create database directory: %w", err)
			}
		}
		st, err := sqlite.New(path)
		if err != nil {
			return b, fmt.Errorf("open sqlite: %w", err)
		}
		b.closers = append(b.closers, st.Close)
		isAdmin := func(id string) bool {
			ok, _ := admins.IsAdmin(ctx, id)
			return ok
		}
		if err := st.SyncEmployees(ctx, employees, isAdmin); err != nil {
			return b, fmt.Errorf("seed employees: %w", err)
		}
		b.store, b.directory, b.admins = st, st, st
		b.checks["sqlite"] = st.Ping

	case "redis":
		rdb, err := dialRedis()
		if err != nil {
			return b, err
		}
		b.store = redisstore.New(rdb, cfg.Store.Redis.Key)
		if err := staticDirectory(); err != nil {
			return b, err
		}

	default:
		return b, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Auth.Revocations == "redis" {
		if _, err := dialRedis(); err != nil {
			return b, err
		}
	}

	logger.Info("store opened", zap.String("driver", cfg.Store.Driver), zap.Int("employees", len(employees)))
	return b, nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	employees, err := cfg.Employees()
	if err != nil {
		return err
	}
	cal, err := calendar.NewCalendar(cfg.Planner.Region)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg, employees, logger)
	defer b.close(logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	svc, err := leave.NewService(leave.Config{
		Calendar:    cal,
		Policy:      cfg.Planner.Policy(),
		Store:       b.store,
		Directory:   b.directory,
		Admins:      b.admins,
		Logger:      logger,
		Metrics:     m,
		MaxRetries:  cfg.Planner.MaxRetries,
		DisplayYear: cfg.Planner.DisplayYear,
	})
	if err != nil {
		return err
	}

	var revocations session.Revocations = session.NewMemoryRevocations()
	if cfg.Auth.Revocations == "redis" {
		revocations = session.NewRedisRevocations(b.redis)
	}
	sessions := session.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, revocations)

	scheduler := report.NewScheduler(svc, report.DirSink{Dir: cfg.Report.Dir}, logger)
	scheduler.Interval = cfg.Report.Interval
	scheduler.Enabled = cfg.Report.Enabled
	scheduler.Metrics = m
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(svc, sessions, logger)
	handler.Reports = scheduler
	for name, check := range b.checks {
		handler.Checks[name] = check
	}

	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		LoginRate:   rate.Limit(cfg.Auth.LoginRate),
		LoginBurst:  cfg.Auth.LoginBurst,
		Metrics:     m,
		Logger:      logger,
		AccessLog:   cfg.Log.Format == "console",
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("region", string(cal.Region())),
			zap.Int("max_absent", cfg.Planner.MaxAbsent),
			zap.Int("min_supervisors", cfg.Planner.MinSupervisors))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
