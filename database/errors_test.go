package database

import (
	"net/http"
	"testing"

	"github.com/go-errors/errors"
	"github.com/natours/tours-rest/http_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestMapStoreError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		code        int
		kind        http_errors.Kind
		message     string
		operational bool
	}{
		{
			name:        "duplicate key",
			err:         mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: `E11000 duplicate key error collection: natours.tours index: name_1 dup key: { name: "The Forest Hiker" }`}}},
			code:        http.StatusBadRequest,
			kind:        http_errors.KindConflict,
			message:     `Duplicate field value: "The Forest Hiker". Please use another value!`,
			operational: true,
		},
		{
			name:        "document validation",
			err:         mongo.CommandError{Code: 121, Message: "Document failed validation"},
			code:        http.StatusBadRequest,
			kind:        http_errors.KindValidation,
			message:     "Invalid input data. Document failed validation",
			operational: true,
		},
		{
			name:        "no documents",
			err:         mongo.ErrNoDocuments,
			code:        http.StatusNotFound,
			kind:        http_errors.KindNotFound,
			message:     "No document found with that ID",
			operational: true,
		},
		{
			name:    "anything else",
			err:     errors.New("boom"),
			code:    http.StatusInternalServerError,
			kind:    http_errors.KindInternal,
			message: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var httpErr *http_errors.ErrorResponse
			require.ErrorAs(t, MapStoreError(tt.err), &httpErr)
			assert.Equal(t, tt.code, httpErr.Code)
			assert.Equal(t, tt.kind, httpErr.Kind)
			assert.Equal(t, tt.message, httpErr.Message)
			assert.Equal(t, tt.operational, httpErr.Operational)
		})
	}

	assert.Nil(t, MapStoreError(nil))
}
