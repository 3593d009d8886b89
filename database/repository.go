package database

import (
	"context"
)

type Repository[T IModel] interface {
	// GetSchema returns the schema of the model used by this repository.
	GetSchema() *Schema

	// GetConnector returns the connector used by this repository.
	GetConnector() Connector

	// Find retrieves all documents matching the filter.
	// If no documents match, it returns an empty slice.
	Find(ctx context.Context, filter *FilterBuilder) ([]T, error)

	// FindOne retrieves the first document matching the filter, or nil.
	FindOne(ctx context.Context, filter *FilterBuilder) (*T, error)

	// FindById retrieves a single document by its ID, or nil when absent.
	FindById(ctx context.Context, id any, filter *FilterBuilder) (*T, error)

	// Insert inserts a new document and returns its ID.
	Insert(ctx context.Context, doc T) (any, error)

	// Create inserts a new document and returns the stored document.
	Create(ctx context.Context, doc T) (*T, error)

	// UpdateById applies update to the document with the given ID.
	UpdateById(ctx context.Context, id any, update any) error

	// FindOneAndUpdate updates the first matching document and returns it
	// after the update, or nil when nothing matched.
	FindOneAndUpdate(ctx context.Context, filter *FilterBuilder, update any) (*T, error)

	// FindByIdAndUpdate is FindOneAndUpdate scoped to one ID.
	FindByIdAndUpdate(ctx context.Context, id any, update any) (*T, error)

	// FindByIdAndDelete removes the document and returns it, or nil when absent.
	FindByIdAndDelete(ctx context.Context, id any) (*T, error)

	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, filter *FilterBuilder) (int64, error)

	// Exists checks if a document with the given ID exists.
	Exists(ctx context.Context, id any) (bool, error)

	// DeleteMany deletes all documents matching the filter.
	DeleteMany(ctx context.Context, filter *FilterBuilder) (int64, error)
}

type RepositoryOptions struct {
	// Timestamps maintains createdAt and updatedAt.
	Timestamps bool
	// Versioned stores the __v version key on insert.
	Versioned bool
}

const (
	ID            = "id"
	SET           = "$set"
	UNSET         = "$unset"
	INC           = "$inc"
	CURRENT_DATE  = "$currentDate"
	SET_ON_INSERT = "$setOnInsert"
	CREATED_AT    = "createdAt"
	UPDATED_AT    = "updatedAt"

	COMMAND_PREFIX = "$"
	MIXED_UPDATE   = "the update has a mix between fields and commands"
)
