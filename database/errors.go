package database

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/natours/tours-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Machine error codes carried by store errors.
const (
	MONGO_CONNECTOR_TYPE_MISMATCH = "MONGO_CONNECTOR_TYPE_MISMATCH"
	MONGO_CLIENT_NOT_INITIALIZED  = "MONGO_CLIENT_NOT_INITIALIZED"
	MONGO_ID_CANNOT_BE_NIL        = "MONGO_ID_CANNOT_BE_NIL"
	MONGO_UPDATE_CANNOT_BE_NIL    = "MONGO_UPDATE_CANNOT_BE_NIL"
	MONGO_NO_DOCUMENTS_FOUND      = "MONGO_NO_DOCUMENTS_FOUND"
	MONGO_DUPLICATE_KEY           = "MONGO_DUPLICATE_KEY"
	MONGO_OPERATION_FAILED        = "MONGO_OPERATION_FAILED"
	MONGO_CONNECTION_ERROR        = "MONGO_CONNECTION_ERROR"
	MONGO_VALIDATION_ERROR        = "MONGO_VALIDATION_ERROR"
	INVALID_FILTER                = "INVALID_FILTER"
)

// dupKeyValue extracts the offending value from "dup key: { name: "x" }".
var dupKeyValue = regexp.MustCompile(`dup key: \{[^:]*: (.+?) ?\}`)

// MapStoreError turns driver errors into http_errors values. Errors that
// already are *http_errors.ErrorResponse pass through unchanged.
func MapStoreError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *http_errors.ErrorResponse
	if errors.As(err, &httpErr) {
		return httpErr
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return http_errors.NotFoundErrorWithCode(MONGO_NO_DOCUMENTS_FOUND, "No document found with that ID")
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, writeError := range writeErr.WriteErrors {
			return mapCodeError(writeError.Code, writeError.Message)
		}
	}

	var bulkWriteErr mongo.BulkWriteException
	if errors.As(err, &bulkWriteErr) {
		for _, writeError := range bulkWriteErr.WriteErrors {
			return mapCodeError(writeError.Code, writeError.Message)
		}
	}

	var commandErr mongo.CommandError
	if errors.As(err, &commandErr) {
		return mapCodeError(int(commandErr.Code), commandErr.Message)
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return http_errors.InternalServerErrorWithCode(MONGO_CONNECTION_ERROR, "database connection error").WithCause(err)
	}

	return http_errors.UnexpectedError(err)
}

func mapCodeError(code int, message string) error {
	switch code {
	case 11000, 11001:
		return http_errors.ConflictErrorWithCode(MONGO_DUPLICATE_KEY, duplicateMessage(message))
	case 121:
		return http_errors.ValidationError("Invalid input data. " + message)
	default:
		return http_errors.InternalServerErrorWithCode(MONGO_OPERATION_FAILED, "database operation failed: "+message)
	}
}

func duplicateMessage(driverMessage string) string {
	value := "value"
	if match := dupKeyValue.FindStringSubmatch(driverMessage); len(match) == 2 {
		value = match[1]
	}
	return fmt.Sprintf("Duplicate field value: %s. Please use another value!", value)
}

// filterError reports a malformed query as a 400.
func filterError(err error) error {
	var httpErr *http_errors.ErrorResponse
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return http_errors.BadRequestErrorWithCode(INVALID_FILTER, err.Error())
}
