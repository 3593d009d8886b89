package rest

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-errors/errors"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type AuditLogConfig struct {
	Enabled bool
	Handler func(ctx *EndpointContext, response any, affectedModelId any) error
}

type RestAppOptions struct {
	Name        string
	Port        uint16
	Environment string // "development" answers errors verbosely, anything else tersely.
	Datasource  *database.Datasource
	Logger      *zap.SugaredLogger
	Authorizer  Authorizer
	// RedisClient backs the rate limiter. Without it limits are kept in memory.
	RedisClient    *redis.Client
	RateLimiter    Limiter
	Metrics        *metrics.Collector
	BodyLimit      string
	AuditLogConfig *AuditLogConfig
}

type RestApp struct {
	EchoApp           *echo.Echo
	Datasource        *database.Datasource
	ValidatorInstance *validator.Validate
	options           RestAppOptions
	logger            *zap.SugaredLogger
	limiter           Limiter
	environment       string
	authorizer        Authorizer
	auditLogConfig    AuditLogConfig
}

func (receiver *RestApp) GetEnvironment() string {
	return receiver.environment
}

func (receiver *RestApp) IsProduction() bool {
	return receiver.environment == EnvProduction
}

// Verbose reports whether error responses carry the stack trace.
func (receiver *RestApp) Verbose() bool {
	return receiver.environment == EnvDevelopment
}

func (receiver *RestApp) Logger() *zap.SugaredLogger {
	return receiver.logger
}

func (receiver *RestApp) Debugf(format string, args ...any) {
	receiver.logger.Debugf(format, args...)
}

func (receiver *RestApp) Infof(format string, args ...any) {
	receiver.logger.Infof(format, args...)
}

func (receiver *RestApp) Warnf(format string, args ...any) {
	receiver.logger.Warnf(format, args...)
}

func (receiver *RestApp) Errorf(format string, args ...any) {
	receiver.logger.Errorf(format, args...)
}

// Authorize runs the configured authorizer and attaches its principal and
// token to the context.
func (receiver *RestApp) Authorize(ctx *EndpointContext) error {
	if receiver.authorizer == nil {
		receiver.Errorf("No authorizer configured for protected endpoint %s", ctx.Endpoint.Name)
		return http_errors.UnexpectedError(errors.New("no authorizer configured"))
	}

	principal, token, err := receiver.authorizer(ctx)
	if err != nil {
		receiver.Debugf("Authorization failed for %s: %v", ctx.Endpoint.Name, err)
		return err
	}
	if principal == nil {
		return http_errors.UnauthorizedError("You are not logged in! Please log in to get access.")
	}

	ctx.Principal = principal
	ctx.Token = token
	return nil
}

func NewRestApp(appOptions RestAppOptions) *RestApp {
	validate := validator.New()

	// Field names in validation errors come from the json tags
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	logger := appOptions.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	environment := strings.ToLower(appOptions.Environment)
	if environment == "" {
		environment = EnvDevelopment
	}

	app := &RestApp{
		Datasource:        appOptions.Datasource,
		ValidatorInstance: validate,
		options:           appOptions,
		logger:            logger,
		environment:       environment,
		authorizer:        appOptions.Authorizer,
	}

	switch {
	case appOptions.RateLimiter != nil:
		app.limiter = appOptions.RateLimiter
	case appOptions.RedisClient != nil:
		app.limiter = NewRedisLimiter(appOptions.RedisClient)
	default:
		app.limiter = NewMemoryLimiter()
	}

	if sweeper, ok := app.limiter.(sweepingLimiter); ok {
		sweeper.Start(DefaultSweepInterval)
	}

	if appOptions.AuditLogConfig != nil {
		app.auditLogConfig = *appOptions.AuditLogConfig
	}

	app.EchoApp = newEchoApp(app)
	return app
}

func (receiver *RestApp) Destroy(ctx context.Context) error {
	if receiver == nil {
		return nil
	}
	receiver.stopLimiter()
	if receiver.Datasource != nil {
		receiver.Datasource.Destroy(ctx)
	}
	if receiver.options.RedisClient != nil {
		return receiver.options.RedisClient.Close()
	}
	return nil
}

func (receiver *RestApp) Start() error {
	return receiver.EchoApp.Start(fmt.Sprint(":", receiver.options.Port))
}

func (receiver *RestApp) Shutdown(ctx context.Context) error {
	receiver.stopLimiter()
	return receiver.EchoApp.Shutdown(ctx)
}

func (receiver *RestApp) stopLimiter() {
	if sweeper, ok := receiver.limiter.(sweepingLimiter); ok {
		sweeper.Stop()
	}
}

func (receiver *RestApp) Group(path string, m ...echo.MiddlewareFunc) *echo.Group {
	g := receiver.EchoApp.Group(path)
	for _, handler := range m {
		g.Use(handler)
	}
	return g
}

func (receiver *RestApp) RegisterEndpoint(ep *Endpoint, r *echo.Group) error {
	if ep == nil {
		return nil
	}

	var executor func(path string, handler echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	switch ep.Method {
	case MethodGET:
		executor = r.GET
	case MethodHEAD:
		executor = r.HEAD
	case MethodPOST:
		executor = r.POST
	case MethodPUT:
		executor = r.PUT
	case MethodPATCH:
		executor = r.PATCH
	case MethodDELETE:
		executor = r.DELETE
	}

	if executor == nil {
		return errors.Errorf("unsupported HTTP method %s for endpoint %s", ep.Method, ep.Name)
	}
	if ep.Handler == nil {
		return errors.Errorf("endpoint %s has no handler", ep.Name)
	}

	ep.app = receiver
	executor(ep.Path, ep.run)
	return nil
}

func (receiver *RestApp) RegisterEndpoints(endpoints []*Endpoint, r *echo.Group) error {
	for _, ep := range endpoints {
		if err := receiver.RegisterEndpoint(ep, r); err != nil {
			return err
		}
	}
	return nil
}
