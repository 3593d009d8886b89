package database

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryConnector is an in-process store used by tests and local runs
// without MongoDB. Collections are plain document slices.
type MemoryConnector struct {
	mu          sync.RWMutex
	name        string
	database    string
	collections map[string][]bson.M
}

func NewMemoryConnector(name string) *MemoryConnector {
	if name == "" {
		name = DefaultConnectorName
	}
	return &MemoryConnector{
		name:        name,
		database:    "memory",
		collections: map[string][]bson.M{},
	}
}

func (m *MemoryConnector) Ping(context.Context) error       { return nil }
func (m *MemoryConnector) Disconnect(context.Context) error { return nil }
func (m *MemoryConnector) GetName() string                  { return m.name }
func (m *MemoryConnector) GetDatabaseName() string          { return m.database }
func (m *MemoryConnector) GetDriver() any                   { return m }
