package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	rest "github.com/natours/tours-rest"
	"github.com/natours/tours-rest/auth"
	"github.com/natours/tours-rest/config"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/logger"
	"github.com/natours/tours-rest/mailer"
	"github.com/natours/tours-rest/metrics"
	"github.com/natours/tours-rest/models"
	"github.com/natours/tours-rest/tours"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(config.Options{EnvFiles: []string{".env", "config.env"}, ConfigFile: "config.yml"})
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("failed to load configuration", "err", err)
	}

	log := logger.Get(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.ConnectTimeout)
	connector, err := database.NewMongoConnector(ctx, database.MongoConnectorOpts{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	})
	cancel()
	if err != nil {
		log.Fatalw("failed to connect to MongoDB", "err", err)
	}
	log.Infow("connected to MongoDB", "database", connector.GetDatabaseName())

	ds := database.NewDatasource(connector)
	repoOpts := database.RepositoryOptions{Timestamps: true, Versioned: true}

	users, err := database.NewMongoRepository[models.User](ds, repoOpts)
	if err != nil {
		log.Fatalw("failed to create users repository", "err", err)
	}
	tourRepo, err := database.NewMongoRepository[models.Tour](ds, repoOpts)
	if err != nil {
		log.Fatalw("failed to create tours repository", "err", err)
	}
	reviews, err := database.NewMongoRepository[models.Review](ds, repoOpts)
	if err != nil {
		log.Fatalw("failed to create reviews repository", "err", err)
	}

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ds.EnsureIndexes(indexCtx); err != nil {
		log.Fatalw("failed to ensure indexes", "err", err)
	}
	cancelIndexes()

	var collector *metrics.Collector
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(reg)
		gatherer = reg
	}

	authService := auth.NewService(users, newMailer(cfg, log), collector, auth.Options{
		Secret:          cfg.JWT.Secret,
		ExpiresIn:       cfg.JWT.ExpiresIn,
		CookieExpiresIn: cfg.JWT.CookieExpiresIn,
		ResetTokenTTL:   cfg.ResetTokenTTL,
		BcryptCost:      cfg.BcryptCost,
	})

	app := rest.NewRestApp(rest.RestAppOptions{
		Name:        "tours-api",
		Port:        cfg.Port,
		Environment: cfg.Env,
		Datasource:  ds,
		Logger:      log.SugaredLogger,
		Authorizer:  authService.Authorizer(),
		RedisClient: newRedisClient(cfg, log),
		Metrics:     collector,
		AuditLogConfig: &rest.AuditLogConfig{
			Enabled: true,
			Handler: auditHandler,
		},
	})

	err = tours.Register(app, tours.Deps{
		Tours:   tourRepo,
		Users:   users,
		Reviews: reviews,
		Auth:    authService,
		Features: database.FeatureOptions{
			DefaultLimit: cfg.Pagination.DefaultLimit,
			MaxLimit:     cfg.Pagination.MaxLimit,
		},
		RateLimit: rest.RateLimit{Max: cfg.RateLimit.Max, Window: cfg.RateLimit.Window, Key: "api"},
		Gatherer:  gatherer,
	})
	if err != nil {
		log.Fatalw("failed to register routes", "err", err)
	}

	if cfg.PublicDir != "" {
		err = app.ServeStatic(rest.StaticConfig{Prefix: "/", Directory: cfg.PublicDir, MaxAge: 24 * time.Hour})
		if err != nil {
			log.Warnw("public files are not served", "dir", cfg.PublicDir, "err", err)
		}
	}

	go func() {
		log.Infow("server listening", "port", cfg.Port, "env", cfg.Env)
		if err := app.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server stopped", "err", err)
		}
	}()

	waitForShutdown(app, log)
}

func newMailer(cfg *config.Config, log *logger.Logger) *mailer.Mailer {
	if !cfg.Email.Enabled() {
		log.Warnw("EMAIL_HOST is not set, emails will only be logged")
		return mailer.New(mailer.NewLogTransport(log.SugaredLogger))
	}
	return mailer.New(mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	}))
}

// newRedisClient returns nil when Redis is not configured. Rate limits are
// then kept in memory.
func newRedisClient(cfg *config.Config, log *logger.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnw("redis is unreachable, using the in-memory rate limiter", "addr", cfg.Redis.Addr, "err", err)
		_ = client.Close()
		return nil
	}
	return client
}

func auditHandler(ctx *rest.EndpointContext, _ any, affectedModelId any) error {
	ctx.App.Logger().Infow("audit",
		"action", ctx.Endpoint.ActionType,
		"model", ctx.Endpoint.Model,
		"endpoint", ctx.Endpoint.Name,
		"principal", ctx.PrincipalID(),
		"affected", affectedModelId,
		"ip", ctx.IpAddress,
	)
	return nil
}

func waitForShutdown(app *rest.RestApp, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	if err := app.Destroy(ctx); err != nil {
		log.Errorw("failed to release resources", "err", err)
	}
}
