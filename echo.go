package rest

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/karagenc/fj4echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	DefaultBodyLimit    = "10K"
	genericErrorMessage = "Something went wrong!"
)

// ErrorBody is the JSON answered for every failed request.
type ErrorBody struct {
	Status  string `json:"status"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	Errors  any    `json:"errors,omitempty"`
	Stack   string `json:"stack,omitempty"`
} // @name ErrorBody

var jwtErrors = []error{
	jwt.ErrTokenMalformed,
	jwt.ErrTokenUnverifiable,
	jwt.ErrTokenSignatureInvalid,
	jwt.ErrTokenNotValidYet,
	jwt.ErrTokenUsedBeforeIssued,
	jwt.ErrTokenInvalidClaims,
	jwt.ErrTokenRequiredClaimMissing,
	jwt.ErrTokenInvalidIssuer,
	jwt.ErrTokenInvalidAudience,
	jwt.ErrTokenInvalidSubject,
	jwt.ErrTokenInvalidId,
}

func newEchoApp(app *RestApp) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = fj4echo.New()
	e.HTTPErrorHandler = app.handleError

	bodyLimit := app.options.BodyLimit
	if bodyLimit == "" {
		bodyLimit = DefaultBodyLimit
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	if app.options.Metrics != nil {
		e.Use(app.options.Metrics.Middleware())
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			app.logger.Infow("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond).String(),
				"ip", v.RemoteIP,
				"request_id", v.RequestID,
			)
			return nil
		},
	}))
	e.Use(middleware.Secure())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(bodyLimit))

	return e
}

func (receiver *RestApp) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	errResponse := normalizeError(err, c.Request().URL.Path)
	if !errResponse.Operational {
		receiver.logger.Errorw("unexpected error",
			"error", err.Error(),
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"stack", string(errResponse.Stack()),
		)
	}

	body := receiver.errorBody(errResponse)
	code := errResponse.Code
	if !receiver.Verbose() && !errResponse.Operational {
		code = http.StatusInternalServerError
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		receiver.logger.Errorf("failed to write error response: %v", err)
	}
}

// errorBody renders an error for the current mode. Verbose mode shows every
// detail. Terse mode hides non operational errors behind a generic message.
func (receiver *RestApp) errorBody(errResponse *http_errors.ErrorResponse) ErrorBody {
	if receiver.Verbose() {
		return ErrorBody{
			Status:  errResponse.Status(),
			Name:    string(errResponse.Kind),
			Message: errResponse.Message,
			Errors:  errResponse.Details,
			Stack:   string(errResponse.Stack()),
		}
	}

	if !errResponse.Operational {
		return ErrorBody{
			Status:  http_errors.StatusError,
			Message: genericErrorMessage,
		}
	}

	return ErrorBody{
		Status:  errResponse.Status(),
		Name:    string(errResponse.Kind),
		Message: errResponse.Message,
		Errors:  errResponse.Details,
	}
}

// normalizeError maps any error to the error taxonomy.
func normalizeError(err error, path string) *http_errors.ErrorResponse {
	if err == nil {
		return http_errors.UnexpectedError(errors.New("nil error"))
	}

	var errResponse *http_errors.ErrorResponse
	if errors.As(err, &errResponse) {
		return errResponse
	}

	var paramErrors ParamErrors
	if errors.As(err, &paramErrors) {
		return paramErrors.toErrorResponse()
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return validationError(err)
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return http_errors.InvalidTokenError("Your token has expired! Please log in again.").WithCause(err)
	}
	for _, target := range jwtErrors {
		if errors.Is(err, target) {
			return http_errors.InvalidTokenError("Invalid token. Please log in again!").WithCause(err)
		}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return fromHTTPError(httpErr, path)
	}

	if errors.Is(err, bson.ErrInvalidHex) {
		return http_errors.ValidationError("Invalid id.").WithCause(err)
	}

	if errors.As(database.MapStoreError(err), &errResponse) {
		return errResponse
	}
	return http_errors.UnexpectedError(err)
}

func fromHTTPError(httpErr *echo.HTTPError, path string) *http_errors.ErrorResponse {
	switch {
	case httpErr.Code == http.StatusNotFound:
		return http_errors.NotFoundError(fmt.Sprintf("Can't find %s on this server!", path)).WithCause(httpErr)
	case httpErr.Code >= http.StatusInternalServerError:
		return http_errors.UnexpectedError(httpErr)
	}

	message := http.StatusText(httpErr.Code)
	if m, ok := httpErr.Message.(string); ok && m != "" {
		message = m
	}
	return http_errors.NewErrorResponse(httpErr.Code, message).WithCause(httpErr)
}
