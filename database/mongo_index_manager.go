package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// MongoIndexManager creates the indexes models declare and reports drift
// between the declarations and the database.
type MongoIndexManager struct {
	connector *MongoConnector
	logger    *zap.SugaredLogger
}

func NewMongoIndexManager(connector *MongoConnector) *MongoIndexManager {
	return &MongoIndexManager{
		connector: connector,
		logger:    zap.NewNop().Sugar(),
	}
}

func (m *MongoIndexManager) SetLogger(logger *zap.SugaredLogger) {
	if logger != nil {
		m.logger = logger
	}
}

func (m *MongoIndexManager) EnsureIndexes(ctx context.Context, model IModel) error {
	indexableModel, ok := model.(MongoIndexableModel)
	if !ok {
		return nil
	}

	indexes := indexableModel.DefineMongoIndexes()
	if len(indexes) == 0 {
		return nil
	}

	warnings, err := m.CompareIndexes(ctx, model)
	if err != nil {
		m.logger.Warnf("could not compare indexes for %s: %v", model.GetModelName(), err)
	}
	for _, warning := range warnings {
		m.logger.Warnf("index warning for %s [%s] %s", model.GetModelName(), warning.Type, warning.Message)
	}

	indexModels := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		indexModels = append(indexModels, convertToMongoIndexModel(idx))
	}

	names, err := m.collection(model).Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return errors.Errorf("failed to create indexes for %s: %v", model.GetModelName(), err)
	}

	m.logger.Infof("ensured %d indexes for %s: %v", len(names), model.GetModelName(), names)
	return nil
}

func (m *MongoIndexManager) ListIndexes(ctx context.Context, model IModel) (map[string]bson.M, error) {
	cursor, err := m.collection(model).Indexes().List(ctx)
	if err != nil {
		return nil, errors.Errorf("failed to list indexes: %v", err)
	}
	defer cursor.Close(ctx)

	indexes := map[string]bson.M{}
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			return nil, errors.Errorf("failed to decode index: %v", err)
		}
		if name, ok := index["name"].(string); ok {
			indexes[name] = index
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, errors.Errorf("cursor error: %v", err)
	}
	return indexes, nil
}

func (m *MongoIndexManager) CompareIndexes(ctx context.Context, model IModel) ([]IndexWarning, error) {
	indexableModel, ok := model.(MongoIndexableModel)
	if !ok {
		return nil, nil
	}

	existing, err := m.ListIndexes(ctx, model)
	if err != nil {
		return nil, err
	}

	return compareIndexes(indexableModel.DefineMongoIndexes(), existing), nil
}

func compareIndexes(defined []MongoIndexDefinition, existing map[string]bson.M) []IndexWarning {
	var warnings []IndexWarning

	definedByName := make(map[string]MongoIndexDefinition, len(defined))
	for _, idx := range defined {
		definedByName[idx.Name] = idx
	}

	for name := range existing {
		if name == "_id_" {
			continue
		}
		if _, ok := definedByName[name]; !ok {
			warnings = append(warnings, IndexWarning{
				Type:    IndexWarningMissingInCode,
				Message: fmt.Sprintf("index '%s' exists in database but is not defined in code", name),
			})
		}
	}

	for _, idx := range defined {
		dbIndex, ok := existing[idx.Name]
		if !ok {
			warnings = append(warnings, IndexWarning{
				Type:    IndexWarningMissingInDB,
				Message: fmt.Sprintf("index '%s' is defined in code but does not exist in database", idx.Name),
			})
			continue
		}
		if diff := compareIndexDetails(idx, dbIndex); diff != "" {
			warnings = append(warnings, IndexWarning{
				Type:    IndexWarningDifferent,
				Message: fmt.Sprintf("index '%s' differs: %s", idx.Name, diff),
			})
		}
	}

	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Message < warnings[j].Message })
	return warnings
}

func (m *MongoIndexManager) collection(model IModel) *mongo.Collection {
	return m.connector.collection(model.GetTableName())
}

func convertToMongoIndexModel(idx MongoIndexDefinition) mongo.IndexModel {
	keys := bson.D{}
	for _, field := range idx.Fields {
		keys = append(keys, bson.E{Key: field.Name, Value: field.Order})
	}

	opts := options.Index().SetName(idx.Name)
	if idx.Unique {
		opts.SetUnique(true)
	}
	if idx.Sparse {
		opts.SetSparse(true)
	}
	if idx.ExpireAfterSeconds != nil {
		opts.SetExpireAfterSeconds(*idx.ExpireAfterSeconds)
	}
	if idx.PartialFilter != nil {
		opts.SetPartialFilterExpression(idx.PartialFilter)
	}
	if idx.Collation != nil {
		opts.SetCollation(&options.Collation{
			Locale:   idx.Collation.Locale,
			Strength: idx.Collation.Strength,
		})
	}

	return mongo.IndexModel{Keys: keys, Options: opts}
}

func compareIndexDetails(defined MongoIndexDefinition, existing bson.M) string {
	var differences []string

	if existingKeys, ok := asMap(existing["key"]); ok {
		definedKeys := make(map[string]int, len(defined.Fields))
		for _, field := range defined.Fields {
			definedKeys[field.Name] = field.Order
		}

		if len(existingKeys) != len(definedKeys) {
			differences = append(differences, "different number of fields")
		} else {
			for key, val := range existingKeys {
				order, _ := toFloat(val)
				if definedOrder, ok := definedKeys[key]; !ok || float64(definedOrder) != order {
					differences = append(differences, fmt.Sprintf("field '%s' order mismatch", key))
				}
			}
		}
	}

	unique, _ := existing["unique"].(bool)
	if unique != defined.Unique {
		differences = append(differences, "unique constraint differs")
	}

	sparse, _ := existing["sparse"].(bool)
	if sparse != defined.Sparse {
		differences = append(differences, "sparse option differs")
	}

	if expireAfter, ok := toFloat(existing["expireAfterSeconds"]); ok {
		if defined.ExpireAfterSeconds == nil || float64(*defined.ExpireAfterSeconds) != expireAfter {
			differences = append(differences, "TTL differs")
		}
	} else if defined.ExpireAfterSeconds != nil {
		differences = append(differences, "TTL not set in DB")
	}

	sort.Strings(differences)
	return strings.Join(differences, ", ")
}
