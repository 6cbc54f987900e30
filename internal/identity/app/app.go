package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	httpapi "github.com/aussiebroadwan/selfie/internal/identity/http"
	"github.com/aussiebroadwan/selfie/internal/identity/mail"
	"github.com/aussiebroadwan/selfie/internal/identity/service"
	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/internal/identity/store/drivers/redis"
	"github.com/aussiebroadwan/selfie/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/selfie/pkg/cryptox"
	"github.com/aussiebroadwan/selfie/pkg/grpcx"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags "-X".
var BuildVersion = "v0.1.0"

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	users      *store.Users
	keyManager *jwtx.KeyManager

	// Services
	identity            *service.IdentityService
	housekeepingService *service.HousekeepingService
	housekeepingRunning bool

	// Servers
	server     *http.Server
	router     *httpapi.Router
	grpcServer *grpc.Server
	health     *health.Server
}

// New creates a new Application with all dependencies initialized. Nothing
// listens until Run or Serve is called.
func New(cfg Config) (*Application, error) {
	return NewWithLogger(cfg, slogx.New(slogx.Config{
		Service: "identity-service",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	}))
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &Application{cfg: cfg, logger: logger}

	ctx := context.Background()

	// The store comes first: persistent keys live in it.
	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	keyManager, err := InitKeys(ctx, app.cfg, app.db, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()
	app.initGRPC()

	return app, nil
}

// Handler returns the HTTP handler with every route and middleware applied.
func (app *Application) Handler() http.Handler { return app.router }

// GRPCServer returns the gRPC server so callers can register more services
// before Serve.
func (app *Application) GRPCServer() *grpc.Server { return app.grpcServer }

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Serve(ctx)
}

// Serve starts the housekeeper and both servers, and blocks until ctx is done
// or a server fails. Either way the application is shut down before Serve
// returns.
func (app *Application) Serve(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", fmt.Sprintf(":%d", app.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLn, err := net.Listen("tcp", fmt.Sprintf(":%d", app.cfg.GRPCPort))
	if err != nil {
		_ = httpLn.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	return app.ServeListeners(ctx, httpLn, grpcLn)
}

// ServeListeners is Serve on listeners the caller already opened.
func (app *Application) ServeListeners(ctx context.Context, httpLn, grpcLn net.Listener) error {
	app.housekeepingService.Start()
	app.housekeepingRunning = true

	app.logger.Info("identity service starting",
		"http_addr", httpLn.Addr().String(),
		"grpc_addr", grpcLn.Addr().String(),
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 2)
	go func() {
		if err := app.server.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("http server failed: %w", err)
		}
	}()
	go func() {
		if err := app.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serverErrors <- fmt.Errorf("grpc server failed: %w", err)
		}
	}()
	app.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case runErr = <-serverErrors:
	case <-ctx.Done():
		app.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}

	if err := app.Shutdown(); err != nil {
		return errors.Join(runErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	return runErr
}

// Shutdown drains both servers, stops the housekeeper and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	app.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		app.grpcServer.GracefulStop()
		close(stopped)
	}()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	select {
	case <-stopped:
	case <-ctx.Done():
		app.logger.Error("graceful grpc shutdown timed out")
		app.grpcServer.Stop()
		<-stopped
	}

	if app.housekeepingRunning {
		app.housekeepingService.Stop()
		app.housekeepingRunning = false
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// initStore opens the configured store and applies migrations.
func (app *Application) initStore(ctx context.Context) error {
	switch app.cfg.StoreDriver {
	case StoreRedis:
		db, err := redis.NewStore(ctx, redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
			Prefix:   app.cfg.RedisPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		app.db = db
		app.logger.Info("redis store connected", "addr", app.cfg.RedisAddr)

	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		app.db = db
	}

	if err := app.db.ApplyMigrations(); err != nil {
		_ = app.db.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}

	app.logger.Info("store migrations applied successfully", "driver", app.cfg.StoreDriver)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	pepper, err := cryptox.LoadPepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	deliverer, err := app.newDeliverer()
	if err != nil {
		return err
	}

	app.users = store.NewUsers(app.db)
	app.identity = &service.IdentityService{
		Users:  app.users,
		Hasher: cryptox.PasswordHasher{Pepper: pepper},
		Tokens: &service.TokenService{
			Keys:   app.keyManager,
			Issuer: app.cfg.Issuer,
		},
		TOTP: &service.TOTPService{Issuer: app.cfg.TOTPIssuer},
		Mail: deliverer,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.users,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

func (app *Application) newDeliverer() (mail.Deliverer, error) {
	if app.cfg.MailDriver != MailSMTP {
		app.logger.Warn("mail delivery disabled, links are written to the log")
		return mail.LogDeliverer{AppURL: app.cfg.AppURL}, nil
	}

	d, err := mail.NewSMTPDeliverer(mail.SMTPConfig{
		Host:     app.cfg.SMTPHost,
		Port:     app.cfg.SMTPPort,
		Username: app.cfg.SMTPUsername,
		Password: app.cfg.SMTPPassword,
		From:     app.cfg.SMTPFrom,
		AppName:  app.cfg.TOTPIssuer,
		AppURL:   app.cfg.AppURL,
		TLS:      mail.TLSMode(app.cfg.SMTPTLS),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure smtp: %w", err)
	}
	app.logger.Info("smtp delivery enabled", "host", app.cfg.SMTPHost, "tls", app.cfg.SMTPTLS)
	return d, nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.keyManager.Verifier,
		BuildVersion,
		app.db,
		app.identity,
		app.logger,
	)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// initGRPC builds the gRPC server with the health service behind the same
// access-token gate as HTTP. Health stays NOT_SERVING until Serve starts.
func (app *Application) initGRPC() {
	gate := grpcx.NewGate(app.keyManager.Verifier, grpcx.HealthMethods...)

	app.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryLogging(app.logger), gate.Unary()),
		grpc.ChainStreamInterceptor(grpcx.StreamLogging(app.logger), gate.Stream()),
	)

	app.health = health.NewServer()
	app.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(app.grpcServer, app.health)
}
