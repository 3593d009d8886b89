package database

import (
	"context"
)

type IModel interface {
	GetTableName() string
	GetModelName() string
	GetConnectorName() string
	GetId() any
}

type BeforeCreateHook interface {
	BeforeCreate() error
}

type BeforeUpdateHook interface {
	BeforeUpdate() error
}

// ModelRelation describes a referenced sub-resource that can be expanded on
// demand. Resolve loads it for the receiver the relation was built from and
// Set stores the loaded value on that receiver.
type ModelRelation struct {
	Name   string `json:"name"`
	IsList bool   `json:"isList"`

	Resolve func(ctx context.Context, ds *Datasource) (any, error)
	Set     func(value any) error
}

// IRelationalModel is implemented by pointer receivers of models that expose
// relations. Keys are the relation names used in include lists.
type IRelationalModel interface {
	Relations() map[string]ModelRelation
}
