package database

import "time"

// MongoIndexDefinition adds the Mongo specific options to IndexDefinition.
type MongoIndexDefinition struct {
	IndexDefinition

	Sparse             bool
	ExpireAfterSeconds *int32
	PartialFilter      map[string]any
	Collation          *MongoCollation
}

type MongoCollation struct {
	Locale   string
	Strength int
}

// NewMongoSimpleIndex creates an ascending index on a single field.
func NewMongoSimpleIndex(fieldName string, unique bool) MongoIndexDefinition {
	return MongoIndexDefinition{
		IndexDefinition: IndexDefinition{
			Name:   fieldName + "_1",
			Fields: []IndexField{{Name: fieldName, Order: 1}},
			Unique: unique,
		},
	}
}

func NewMongoCompoundIndex(name string, fields []IndexField, unique bool) MongoIndexDefinition {
	return MongoIndexDefinition{
		IndexDefinition: IndexDefinition{
			Name:   name,
			Fields: fields,
			Unique: unique,
		},
	}
}

func (idx MongoIndexDefinition) WithSparse(sparse bool) MongoIndexDefinition {
	idx.Sparse = sparse
	return idx
}

// WithTTL expires documents expireAfter past the indexed date.
func (idx MongoIndexDefinition) WithTTL(expireAfter time.Duration) MongoIndexDefinition {
	seconds := int32(expireAfter.Seconds())
	idx.ExpireAfterSeconds = &seconds
	return idx
}

func (idx MongoIndexDefinition) WithPartialFilter(filter map[string]any) MongoIndexDefinition {
	idx.PartialFilter = filter
	return idx
}

func (idx MongoIndexDefinition) WithCollation(collation *MongoCollation) MongoIndexDefinition {
	idx.Collation = collation
	return idx
}
