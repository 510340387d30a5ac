// Package server wires the gateway together: database and migrations, the
// upstream session cache, the services, and the HTTP surface. It also owns
// graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/logging"
	"github.com/dmitrijs2005/nocgateway/internal/server/config"
	httpapi "github.com/dmitrijs2005/nocgateway/internal/server/http"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/nocgateway/internal/server/services"
	"github.com/dmitrijs2005/nocgateway/internal/server/upstream"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  redis.UniversalClient
	http   *httpapi.HTTPServer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.New(cfg.LogFormat, os.Stdout, slog.LevelInfo)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	app := &App{config: cfg, logger: logger, db: db}

	cache, err := app.sessionCache(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	proxy := upstream.NewProxy(
		m.Connections(db),
		upstream.NewVault(cfg.CredentialKey),
		upstream.NewClient(cfg.UpstreamTimeout),
		cache,
		cfg.UpstreamSessionTTL,
		logger.With("module", "upstream"),
	)
	printers := services.NewPrinterService(db, m, proxy, loc, logger.With("module", "printers"))

	app.http = httpapi.NewHTTPServer(cfg.HTTPAddr, logger, httpapi.Services{
		Auth:      services.NewAuthService(db, m, cfg),
		Rows:      services.NewRowService(db, m),
		RPC:       services.NewRPCService(db, m),
		Functions: services.NewFunctionService(proxy, printers),
		Storage:   services.NewStorageService(cfg),
		DB:        db,
	}, httpapi.Options{
		AuthRateRPS:    cfg.AuthRateRPS,
		AuthRateBurst:  cfg.AuthRateBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	return app, nil
}

// sessionCache picks Redis when an address is configured, process memory
// otherwise.
func (app *App) sessionCache(ctx context.Context) (upstream.SessionCache, error) {
	if app.config.RedisAddr == "" {
		return upstream.NewMemorySessionCache(time.Now), nil
	}

	client := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", app.config.RedisAddr, err)
	}
	app.redis = client
	app.logger.Info(ctx, "upstream sessions cached in redis", "address", app.config.RedisAddr)
	return upstream.NewRedisSessionCache(client), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(context.Background(), "redis close failed", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(context.Background(), "db close failed", "error", err)
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.close()

	app.logger.Info(context.Background(), "App stopped")
}
