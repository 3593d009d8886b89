package rest

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/query"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var errTextResponse = errors.New("text response must be a string")

func sanitizeStruct(ctx *EndpointContext, v any) error {
	if v == nil {
		return nil
	}

	if sanitizable, ok := v.(Sanitizeable); ok {
		return sanitizable.Sanitize(ctx)
	}

	return processStruct(v, "sanitize")
}

func normalizeStruct(ctx *EndpointContext, v any) error {
	if v == nil {
		return nil
	}

	if normalizable, ok := v.(Normalizeable); ok {
		return normalizable.Normalize(ctx)
	}

	return processStruct(v, "normalize")
}

func parseBody(e *Endpoint, ec *EndpointContext) error {
	if e.Method != MethodPOST && e.Method != MethodPUT && e.Method != MethodPATCH {
		return nil
	}

	if e.BodyParams == nil {
		return nil
	}

	form := e.BodyParams()
	if form == nil {
		return http_errors.UnexpectedError(fmt.Errorf("endpoint %s returned a nil body", e.Name))
	}

	if err := (&echo.DefaultBinder{}).BindBody(ec.EchoCtx, form); err != nil {
		ec.App.Debugf("cannot bind body of %s: %v", e.Name, err)
		return bindError(err)
	}

	if err := sanitizeStruct(ec, form); err != nil {
		return asValidationError(err)
	}

	if err := normalizeStruct(ec, form); err != nil {
		return asValidationError(err)
	}

	if err := validateAny(ec, form); err != nil {
		return asValidationError(err)
	}

	ec.ParsedBody = form
	return nil
}

// bindError reports a body that could not be decoded.
func bindError(err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Code == http.StatusUnsupportedMediaType {
			return http_errors.NewErrorResponse(http.StatusUnsupportedMediaType, "Unsupported media type")
		}
		if httpErr.Code == http.StatusRequestEntityTooLarge {
			return http_errors.NewErrorResponse(http.StatusRequestEntityTooLarge, "Request body too large")
		}
		return http_errors.ValidationError("Invalid input data. Malformed request body.", fmt.Sprint(httpErr.Message)).WithCause(err)
	}
	return http_errors.ValidationError("Invalid input data. Malformed request body.").WithCause(err)
}

// asValidationError keeps ErrorResponse values and turns everything else into
// a ValidationError listing the offending fields.
func asValidationError(err error) error {
	var errResponse *http_errors.ErrorResponse
	if errors.As(err, &errResponse) {
		return errResponse
	}
	return validationError(err)
}

func validationError(err error) *http_errors.ErrorResponse {
	details := getFriendlyValidationErrors(err)

	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, field+": "+details[field])
	}

	return http_errors.ValidationError("Invalid input data. "+strings.Join(messages, ". "), details).WithCause(err)
}

type ParamErrors []*http_errors.ErrorResponse

func (pe ParamErrors) Error() string {
	var messages []string
	for _, err := range pe {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// toErrorResponse collapses parameter errors into one ValidationError.
func (pe ParamErrors) toErrorResponse() *http_errors.ErrorResponse {
	if len(pe) == 1 {
		return pe[0]
	}
	messages := make([]string, 0, len(pe))
	for _, err := range pe {
		messages = append(messages, err.Message)
	}
	return http_errors.ValidationError("Invalid parameters. "+strings.Join(messages, " "), messages).WithCause(pe)
}

func parseAllParams(e *Endpoint, ec *EndpointContext) error {
	ec.ParsedQuery = make(map[string]any)
	ec.ParsedPath = make(map[string]any)
	ec.ParsedHeader = make(map[string]any)

	var paramErrors ParamErrors

	for _, param := range e.Accepts {
		val, err := parseParam(ec, param)
		if err != nil {
			var errResponse *http_errors.ErrorResponse
			if !errors.As(err, &errResponse) {
				errResponse = http_errors.ValidationError(fmt.Sprintf("Invalid %s: %s.", param.name, err.Error()))
			}

			paramErrors = append(paramErrors, errResponse)
			continue
		}

		switch param.in {
		case InQuery:
			ec.ParsedQuery[param.name] = val
		case InPath:
			ec.ParsedPath[param.name] = val
		case InHeader:
			ec.ParsedHeader[param.name] = val
		}
	}

	if len(paramErrors) > 0 {
		return paramErrors.toErrorResponse()
	}

	return nil
}

func parseParam(ctx *EndpointContext, param Param) (any, error) {
	if ctx == nil || ctx.EchoCtx == nil {
		return nil, http_errors.UnexpectedError(errors.New("endpoint context is required to parse parameters"))
	}

	var raw string

	switch param.in {
	case InQuery:
		raw = ctx.EchoCtx.QueryParam(param.name)
	case InPath:
		raw = ctx.EchoCtx.Param(param.name)
	case InHeader:
		raw = ctx.EchoCtx.Request().Header.Get(param.name)
	}

	if param.required {
		if param.in == InQuery {
			if _, exists := ctx.EchoCtx.QueryParams()[param.name]; !exists {
				return nil, http_errors.ValidationError(fmt.Sprintf("Parameter %s is required.", param.name))
			}
		} else if raw == "" {
			return nil, http_errors.ValidationError(fmt.Sprintf("Parameter %s is required.", param.name))
		}
	}

	if param.Parser != nil {
		val, err := param.Parser(raw)
		if err != nil {
			return nil, http_errors.ValidationError(fmt.Sprintf("Invalid %s: %s.", param.name, raw)).WithCause(err)
		}
		return val, nil
	}

	if raw == "" && param.paramType != string(QueryParamTypeBool) {
		return nil, nil
	}

	invalid := func() error {
		return http_errors.ValidationError(fmt.Sprintf("Invalid %s: %s.", param.name, raw))
	}

	switch param.paramType {
	case string(PathParamTypeString):
		return raw, nil
	case string(PathParamTypeInt):
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, invalid()
		}
		return value, nil
	case string(PathParamTypeBool):
		// ?param without a value means true
		if param.in == InQuery && raw == "" {
			_, exists := ctx.EchoCtx.QueryParams()[param.name]
			return exists, nil
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, invalid()
		}
		return value, nil
	case string(PathParamTypeFloat):
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, invalid()
		}
		return value, nil
	case string(PathParamTypeDate):
		value, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, invalid()
		}
		return value, nil
	case string(PathParamTypeObjectID):
		oid, err := bson.ObjectIDFromHex(raw)
		if err != nil {
			return nil, invalid()
		}
		return oid, nil
	case string(QueryParamTypeFilter):
		filter, err := query.ParseFilter(raw)
		if err != nil {
			ctx.App.Debugf("Error parsing filter: %v", err)
			return nil, http_errors.ValidationError(fmt.Sprintf("Invalid filter: %v.", err))
		}

		filterBuilder := database.NewFilter()
		if filter != nil {
			filterBuilder = filterBuilder.FromQueryFilter(filter)
		}
		return filterBuilder, nil
	case string(QueryParamTypeWhere):
		where, err := query.ParseWhere(raw)
		if err != nil {
			return nil, http_errors.ValidationError(fmt.Sprintf("Invalid where: %v.", err))
		}
		return database.NewWhere().Raw(where), nil
	default:
		return nil, http_errors.UnexpectedError(fmt.Errorf("parameter %s has an invalid type %s", param.name, param.paramType))
	}
}

func getFriendlyValidationErrors(err error) map[string]string {
	friendlyErrors := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, e := range ve {
			message := getErrorMessage(e.Tag(), e.Kind().String(), e.Param())
			if message == "" {
				message = "This field is invalid"
			}
			friendlyErrors[fieldPath(e)] = message
		}
		return friendlyErrors
	}

	friendlyErrors["error"] = err.Error()
	return friendlyErrors
}

// fieldPath drops the struct name from the validator namespace, so nested
// fields read as startLocation.address.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok && rest != "" {
		return rest
	}
	return e.Field()
}

func getErrorMessage(tag string, kind string, param string) string {
	lengthKind := kind == "string" || kind == "slice" || kind == "array"
	switch tag {
	case "required":
		return "This field is required"
	case "max":
		if lengthKind {
			return "This field must have a maximum length of " + param
		}
		return "This field must be less than or equal to " + param
	case "min":
		if lengthKind {
			return "This field must have a minimum length of " + param
		}
		return "This field must be greater than or equal to " + param
	case "eq":
		return "This field must be equal to " + param
	case "eqfield":
		return "This field must match " + param
	case "lt":
		return "This field must be less than " + param
	case "lte":
		return "This field must be less than or equal to " + param
	case "gt":
		return "This field must be greater than " + param
	case "gte":
		return "This field must be greater than or equal to " + param
	case "ne":
		return "This field must not be equal to " + param
	case "email":
		return "This field must be a valid email"
	case "len":
		return "This field must have a length of " + param
	case "oneof":
		return "This field must be one of: " + param
	case "unique":
		return "This field must be unique"
	default:
		return ""
	}
}
