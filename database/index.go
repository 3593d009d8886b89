package database

// IndexField is one key of an index. Order is 1 or -1.
type IndexField struct {
	Name  string
	Order int
}

// IndexDefinition is a store-agnostic index description. Field names are
// stored (BSON) names.
type IndexDefinition struct {
	Name   string
	Fields []IndexField
	Unique bool
}

// MongoIndexableModel is implemented by models that declare their indexes.
type MongoIndexableModel interface {
	DefineMongoIndexes() []MongoIndexDefinition
}

// IndexWarning reports a discrepancy between declared and existing indexes.
type IndexWarning struct {
	Type    IndexWarningType
	Message string
}

type IndexWarningType string

const (
	IndexWarningMissingInCode IndexWarningType = "missing_in_code"
	IndexWarningMissingInDB   IndexWarningType = "missing_in_db"
	IndexWarningDifferent     IndexWarningType = "different"
)
