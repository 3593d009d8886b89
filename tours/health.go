package tours

import (
	"context"
	"net/http"
	"time"

	rest "github.com/natours/tours-rest"
	"github.com/natours/tours-rest/http_errors"
)

const healthTimeout = 2 * time.Second

func healthEndpoint() *rest.Endpoint {
	return &rest.Endpoint{
		Name:          "Health",
		Method:        rest.MethodGET,
		Path:          "/healthz",
		Public:        true,
		AuditDisabled: true,
		Handler: func(ctx *rest.EndpointContext) error {
			pingCtx, cancel := context.WithTimeout(ctx.Context(), healthTimeout)
			defer cancel()

			if err := ctx.App.Datasource.Ping(pingCtx); err != nil {
				return http_errors.NewErrorResponse(http.StatusServiceUnavailable, "Database unavailable").WithCause(err)
			}
			return ctx.JSON(rest.Envelope{
				Status: rest.StatusSuccess,
				Data:   map[string]string{"database": "up"},
			})
		},
	}
}
