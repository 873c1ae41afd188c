// Package server wires the auth backend together: storage, migrations,
// cache, mail delivery, the auth services and the HTTP server. It also
// handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/logging"
	"github.com/dmitrijs2005/ecomauth/internal/server/auth"
	"github.com/dmitrijs2005/ecomauth/internal/server/cache"
	"github.com/dmitrijs2005/ecomauth/internal/server/config"
	"github.com/dmitrijs2005/ecomauth/internal/server/httpapi"
	"github.com/dmitrijs2005/ecomauth/internal/server/mail"
	"github.com/dmitrijs2005/ecomauth/internal/server/passwords"
	"github.com/dmitrijs2005/ecomauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/ecomauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/ecomauth/internal/server/services"
)

const (
	mailTimeout          = 10 * time.Second
	limiterCleanupPeriod = time.Minute
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	cache       cache.Client
	dispatcher  *mail.Dispatcher
	limiter     *ratelimit.KeyedLimiter
	store       *services.CredentialStore
	authService *services.AuthService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogLevel)

	if c.GeneratedSecret {
		logger.Warn(ctx, "no APP_VALIDATION_KEY configured, using a random key; tokens will not survive a restart")
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	cc, err := cache.New(cache.Options{
		Type:    c.CacheType,
		Host:    c.CacheHost,
		Port:    c.CachePort,
		DB:      c.CacheDB,
		Secret:  c.CacheSecret,
		Timeout: c.CacheTimeout,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache init error: %w", err)
	}
	if r, ok := cc.(*cache.Redis); ok {
		if err := r.Ping(ctx); err != nil {
			logger.Warn(ctx, "redis is unreachable, cache calls will miss", "error", err)
		}
	}

	mailer, err := mail.New(mail.Options{
		Provider: c.MailProvider,
		APIKey:   c.EmailAPIKey,
		Sender:   c.EmailSender,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("mail init error: %w", err)
	}
	dispatcher := mail.NewDispatcher(mailer, logger, mailTimeout)

	hasher := passwords.NewHasher(int64(c.HashConcurrency), passwords.DefaultParams())
	limiter := ratelimit.NewPerMinute(c.LoginRatePerMinute, c.LoginBurst)

	store := services.NewCredentialStore(db, rm, hasher, cc, c.CacheTimeout, logger)
	issuer := auth.NewIssuer(store, hasher, []byte(c.SecretKey),
		c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	signer := auth.NewResetSigner([]byte(c.SecretKey))

	as := services.NewAuthService(store, issuer, signer, dispatcher, cc, limiter, logger, c)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		cache:       cc,
		dispatcher:  dispatcher,
		limiter:     limiter,
		store:       store,
		authService: as,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewHTTPServer(app.config.HTTPAddr, app.logger, app.authService, app.db)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if app.config.SeedOnStart {
		if err := services.Seed(ctx, app.store, services.DefaultRoles, services.DefaultUsers,
			app.config.DefaultPassword, app.logger); err != nil {
			app.logger.Error(ctx, "seeding failed", "error", err)
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.limiter.Run(limiterCleanupPeriod, ctx.Done())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.shutdown(ctx)
}

func (app *App) shutdown(ctx context.Context) {
	app.dispatcher.Wait()

	if r, ok := app.cache.(*cache.Redis); ok {
		if err := r.Close(); err != nil {
			app.logger.Warn(ctx, "closing redis", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "closing database", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
}
