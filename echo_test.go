package rest

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/natours/tours-rest/http_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func failingEndpoint(err error) *Endpoint {
	return &Endpoint{
		Name: "fail", Method: MethodGET, Path: "/fail", Public: true,
		Handler: func(*EndpointContext) error { return err },
	}
}

func TestErrorHandlerDevelopment(t *testing.T) {
	app := newTestApp(t, RestAppOptions{Environment: "Development"}, failingEndpoint(errors.New("boom")))
	require.True(t, app.Verbose())

	rec := doRequest(app, http.MethodGet, "/fail", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "boom", body["message"])
	assert.Equal(t, string(http_errors.KindInternal), body["name"])
	assert.NotEmpty(t, body["stack"])
}

func TestErrorHandlerProduction(t *testing.T) {
	app := newTestApp(t, RestAppOptions{Environment: EnvProduction},
		failingEndpoint(errors.New("boom")),
		&Endpoint{Name: "mail", Method: MethodGET, Path: "/mail", Public: true, Handler: func(*EndpointContext) error {
			return http_errors.InternalServerError("There was an error sending the email. Try again later!")
		}},
	)
	require.True(t, app.IsProduction())

	rec := doRequest(app, http.MethodGet, "/fail", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"status": "error", "message": "Something went wrong!"}, decodeBody(t, rec))

	rec = doRequest(app, http.MethodGet, "/mail", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "There was an error sending the email. Try again later!", body["message"])
	assert.NotContains(t, body, "stack")
}

func TestErrorHandlerUnknownRoute(t *testing.T) {
	app := newTestApp(t, RestAppOptions{Environment: EnvProduction})

	rec := doRequest(app, http.MethodGet, "/api/v1/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "fail", body["status"])
	assert.Equal(t, "Can't find /api/v1/nowhere on this server!", body["message"])
}

func TestErrorHandlerHeadHasNoBody(t *testing.T) {
	app := newTestApp(t, RestAppOptions{}, &Endpoint{
		Name: "head", Method: MethodHEAD, Path: "/fail", Public: true,
		Handler: func(*EndpointContext) error { return http_errors.NotFoundError("No document found with that ID") },
	})

	rec := doRequest(app, http.MethodHead, "/fail", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"error response", http_errors.ForbiddenError("nope"), http.StatusForbidden, "nope"},
		{"wrapped error response", fmt.Errorf("ctx: %w", http_errors.NotFoundError("missing")), http.StatusNotFound, "missing"},
		{"expired token", fmt.Errorf("parse: %w", jwt.ErrTokenExpired), http.StatusUnauthorized, "Your token has expired! Please log in again."},
		{"bad signature", jwt.ErrTokenSignatureInvalid, http.StatusUnauthorized, "Invalid token. Please log in again!"},
		{"malformed token", jwt.ErrTokenMalformed, http.StatusUnauthorized, "Invalid token. Please log in again!"},
		{"invalid hex", bson.ErrInvalidHex, http.StatusBadRequest, "Invalid id."},
		{"no documents", mongo.ErrNoDocuments, http.StatusNotFound, "No document found with that ID"},
		{"echo bad request", echo.NewHTTPError(http.StatusBadRequest, "bad things"), http.StatusBadRequest, "bad things"},
		{"echo method", echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"echo not found", echo.ErrNotFound, http.StatusNotFound, "Can't find /tours on this server!"},
		{"param errors", ParamErrors{http_errors.ValidationError("Invalid id: x.")}, http.StatusBadRequest, "Invalid id: x."},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "disk on fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errResponse := normalizeError(tt.err, "/tours")
			assert.Equal(t, tt.code, errResponse.Code)
			assert.Equal(t, tt.message, errResponse.Message)
		})
	}

	assert.False(t, normalizeError(errors.New("x"), "/").Operational)
	assert.True(t, normalizeError(jwt.ErrTokenExpired, "/").Operational)
	assert.Equal(t, http_errors.KindInvalidToken, normalizeError(jwt.ErrTokenExpired, "/").Kind)
}
