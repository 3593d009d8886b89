package rest

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/natours/tours-rest/http_errors"
)

type RateLimit struct {
	Max    int
	Window time.Duration
	Key    string
}

type Param struct {
	in        ParamLocation
	name      string
	paramType string
	required  bool
	Parser    func(string) (any, error)
}

func NewQueryParam(name string, paramType QueryParamType, required ...bool) Param {
	requiredValue := false
	if len(required) > 0 {
		requiredValue = required[0]
	}
	return Param{
		in:        InQuery,
		name:      name,
		paramType: string(paramType),
		required:  requiredValue,
	}
}

// NewPathParam declares a path segment. Path params are always required.
func NewPathParam(name string, paramType PathParamType) Param {
	return Param{
		in:        InPath,
		name:      name,
		paramType: string(paramType),
		required:  true,
	}
}

func NewHeaderParam(name string, paramType HeaderParamType, required ...bool) Param {
	requiredValue := false
	if len(required) > 0 {
		requiredValue = required[0]
	}
	return Param{
		in:        InHeader,
		name:      name,
		paramType: string(paramType),
		required:  requiredValue,
	}
}

func (p Param) Name() string {
	return p.name
}

type Endpoint struct {
	Name          string
	Method        EndpointMethod
	Path          string
	Handler       func(c *EndpointContext) error
	Disabled      bool                             // Disabled endpoints answer 404.
	BodyParams    func() any                       // Returns a pointer the JSON body is bound to.
	RateLimiter   func(*EndpointContext) RateLimit // Per endpoint limit on top of the global one.
	Public        bool                             // Public endpoints skip the authorizer.
	Roles         []EndpointRole                   // Allowed roles. Empty means any logged in principal.
	ActionType    ActionType                       // Used for audit logging.
	Model         string                           // The affected model, used for audit logging.
	Accepts       []Param
	AuditDisabled bool
	MetaData      map[string]any
	app           *RestApp
}

func (ep *Endpoint) run(c echo.Context) error {
	if ep.Disabled {
		return http_errors.NotFoundError("Can't find " + c.Request().URL.Path + " on this server!")
	}

	ctx := &EndpointContext{
		EchoCtx:   c,
		Endpoint:  ep,
		App:       ep.app,
		IpAddress: c.RealIP(),
	}

	if err := parseAllParams(ep, ctx); err != nil {
		return err
	}

	if !ep.Public {
		if err := ep.app.Authorize(ctx); err != nil {
			return err
		}

		if !hasRole(ctx.Principal, ep.Roles) {
			return http_errors.ForbiddenError("You do not have permission to perform this action")
		}
	}

	if err := checkRateLimit(ctx); err != nil {
		return err
	}

	if err := parseBody(ep, ctx); err != nil {
		return err
	}

	return ep.Handler(ctx)
}
