package rest

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type EndpointContext struct {
	App          *RestApp
	EchoCtx      echo.Context
	Endpoint     *Endpoint
	ParsedBody   any
	ParsedQuery  map[string]any
	ParsedPath   map[string]any
	ParsedHeader map[string]any
	IpAddress    string
	Principal    Principal
	Token        AuthToken
}

// Context is the request context. It is cancelled when the client goes away.
func (eCtx *EndpointContext) Context() context.Context {
	if eCtx.EchoCtx == nil {
		return context.Background()
	}
	return eCtx.EchoCtx.Request().Context()
}

func (eCtx *EndpointContext) ValidateStruct(v any) error {
	if v == nil {
		return nil
	}
	return eCtx.App.ValidatorInstance.Struct(v)
}

// ValidatePartial validates only the named struct fields. It is used for
// partial updates where absent fields keep their stored value.
func (eCtx *EndpointContext) ValidatePartial(v any, fields ...string) error {
	if v == nil || len(fields) == 0 {
		return nil
	}
	return eCtx.App.ValidatorInstance.StructPartial(v, fields...)
}

func (eCtx *EndpointContext) SanitizeStruct(v any) error {
	if v == nil {
		return nil
	}
	return processStruct(v, "sanitize")
}

func (eCtx *EndpointContext) NormalizeStruct(v any) error {
	if v == nil {
		return nil
	}
	return processStruct(v, "normalize")
}

// Bind decodes the JSON body into v, then normalizes and sanitizes it.
// Validation is left to the caller.
func (eCtx *EndpointContext) Bind(v any) error {
	if err := (&echo.DefaultBinder{}).BindBody(eCtx.EchoCtx, v); err != nil {
		return bindError(err)
	}
	if err := normalizeStruct(eCtx, v); err != nil {
		return err
	}
	return sanitizeStruct(eCtx, v)
}

// GetFilterParam returns the builder parsed from a declared filter param.
func (eCtx *EndpointContext) GetFilterParam() (*database.FilterBuilder, error) {
	if filter, ok := eCtx.ParsedQuery["filter"]; ok {
		if filter == nil {
			return nil, nil
		}
		if filterBuilder, ok := filter.(*database.FilterBuilder); ok {
			return filterBuilder, nil
		}
		return nil, http_errors.BadRequestError("Invalid filter query parameter")
	}
	return nil, nil
}

// PathParam returns the parsed value of a declared path param, or the raw
// segment when the endpoint did not declare it.
func (eCtx *EndpointContext) PathParam(name string) any {
	if value, ok := eCtx.ParsedPath[name]; ok {
		return value
	}
	return eCtx.EchoCtx.Param(name)
}

// ObjectIDParam reads a path param as an ObjectID.
func (eCtx *EndpointContext) ObjectIDParam(name string) (bson.ObjectID, error) {
	switch value := eCtx.PathParam(name).(type) {
	case bson.ObjectID:
		return value, nil
	case string:
		oid, err := bson.ObjectIDFromHex(value)
		if err != nil {
			return bson.NilObjectID, http_errors.ValidationError("Invalid " + name + ": " + value + ".")
		}
		return oid, nil
	}
	return bson.NilObjectID, http_errors.ValidationError("Invalid " + name + ".")
}

func (eCtx *EndpointContext) QueryValues() url.Values {
	return eCtx.EchoCtx.QueryParams()
}

// PrincipalID returns the id of the logged in principal, or "".
func (eCtx *EndpointContext) PrincipalID() string {
	if eCtx.Principal == nil {
		return ""
	}
	return eCtx.Principal.GetPrincipalID()
}

// RespondAndLog sends the response and hands it to the audit handler when
// auditing is enabled for the app and the endpoint.
func (ctx *EndpointContext) RespondAndLog(response any, affectedModelId any, contentType ResponseType, statusCode ...int) error {
	if !ctx.Endpoint.AuditDisabled && ctx.App.auditLogConfig.Enabled && ctx.App.auditLogConfig.Handler != nil {
		if err := ctx.App.auditLogConfig.Handler(ctx, response, affectedModelId); err != nil {
			ctx.App.Errorf("Failed to log audit: %v", err)
		}
	}

	status := http.StatusOK
	if len(statusCode) > 0 {
		status = statusCode[0]
	}

	switch contentType {
	case ResponseTypeJSON:
		return ctx.EchoCtx.JSON(status, response)
	case ResponseTypeText:
		if str, ok := response.(string); ok {
			return ctx.EchoCtx.String(status, str)
		}
		return http_errors.UnexpectedError(errTextResponse)
	case ResponseTypeNoContent:
		return ctx.EchoCtx.NoContent(status)
	default:
		return http_errors.NewErrorResponse(http.StatusNotAcceptable, "unsupported content type")
	}
}

func (ctx *EndpointContext) JSON(response any, statusCode ...int) error {
	status := http.StatusOK
	if len(statusCode) > 0 {
		status = statusCode[0]
	}
	return ctx.EchoCtx.JSON(status, response)
}

func (ctx *EndpointContext) NoContent() error {
	return ctx.EchoCtx.NoContent(http.StatusNoContent)
}

// SetCookie writes an httpOnly cookie, secure in production.
func (ctx *EndpointContext) SetCookie(name, value string, ttl time.Duration) {
	ctx.EchoCtx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   ctx.App.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (ctx *EndpointContext) Get(key string) any {
	return ctx.EchoCtx.Get(key)
}

func (ctx *EndpointContext) Set(key string, value any) {
	ctx.EchoCtx.Set(key, value)
}

// ValidationDetails turns validator errors into a field to message map.
func ValidationDetails(err error) map[string]string {
	return getFriendlyValidationErrors(err)
}
