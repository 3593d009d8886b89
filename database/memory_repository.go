package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/natours/tours-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MemoryRepository implements Repository on top of a MemoryConnector. It
// understands the same filters as MongoRepository and enforces the unique
// indexes the model declares, reporting violations as Mongo write errors.
type MemoryRepository[T IModel] struct {
	Options    RepositoryOptions
	schema     *Schema
	connector  *MemoryConnector
	datasource *Datasource
	table      string
	unique     []MongoIndexDefinition
}

func NewMemoryRepository[T IModel](ds *Datasource, options RepositoryOptions) (*MemoryRepository[T], error) {
	var instance T

	if err := ds.RegisterModel(instance); err != nil {
		return nil, err
	}

	tmp, err := ds.GetModelConnector(instance)
	if err != nil {
		return nil, err
	}

	connector, ok := tmp.(*MemoryConnector)
	if !ok || connector == nil {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_CONNECTOR_TYPE_MISMATCH, "the connector for model "+instance.GetModelName()+" is not a MemoryConnector")
	}

	repository := &MemoryRepository[T]{
		Options:    options,
		schema:     NewSchema(instance),
		connector:  connector,
		datasource: ds,
		table:      instance.GetTableName(),
	}

	if indexable, ok := any(instance).(MongoIndexableModel); ok {
		for _, idx := range indexable.DefineMongoIndexes() {
			if idx.Unique {
				repository.unique = append(repository.unique, idx)
			}
		}
	}

	if err := RegisterDatasourceRepository[T](ds, instance, repository); err != nil {
		return nil, err
	}

	return repository, nil
}

func (repository *MemoryRepository[T]) GetSchema() *Schema {
	return repository.schema
}

func (repository *MemoryRepository[T]) GetConnector() Connector {
	return repository.connector
}

func (repository *MemoryRepository[T]) Find(ctx context.Context, filterBuilder *FilterBuilder) ([]T, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return nil, err
	}

	docs := repository.query(parsed)

	result := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeDocument[T](applyProjection(doc, parsed.Projection))
		if err != nil {
			return nil, err
		}
		if err := resolveIncludes(ctx, repository.datasource, item, parsed.Include); err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	return result, nil
}

func (repository *MemoryRepository[T]) FindOne(ctx context.Context, filterBuilder *FilterBuilder) (*T, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return nil, err
	}
	parsed.Limit = 1

	docs := repository.query(parsed)
	if len(docs) == 0 {
		return nil, nil
	}

	item, err := decodeDocument[T](applyProjection(docs[0], parsed.Projection))
	if err != nil {
		return nil, err
	}
	if err := resolveIncludes(ctx, repository.datasource, item, parsed.Include); err != nil {
		return nil, err
	}
	return item, nil
}

func (repository *MemoryRepository[T]) FindById(ctx context.Context, id any, filterBuilder *FilterBuilder) (*T, error) {
	if id == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}
	return repository.FindOne(ctx, idFilter(filterBuilder, id))
}

func (repository *MemoryRepository[T]) Insert(ctx context.Context, doc T) (any, error) {
	if hook, ok := any(&doc).(BeforeCreateHook); ok {
		if err := hook.BeforeCreate(); err != nil {
			return nil, err
		}
	}

	document, err := prepareInsertDocument(repository.Options, doc)
	if err != nil {
		return nil, err
	}
	document = cloneDocument(document)

	repository.connector.mu.Lock()
	defer repository.connector.mu.Unlock()

	if err := repository.checkUnique(document); err != nil {
		return nil, MapStoreError(err)
	}

	repository.connector.collections[repository.table] = append(repository.connector.collections[repository.table], document)
	return document["_id"], nil
}

func (repository *MemoryRepository[T]) Create(ctx context.Context, doc T) (*T, error) {
	insertedID, err := repository.Insert(ctx, doc)
	if err != nil {
		return nil, err
	}
	return repository.FindById(ctx, insertedID, nil)
}

func (repository *MemoryRepository[T]) UpdateById(ctx context.Context, id any, update any) error {
	if id == nil {
		return http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}

	updated, err := repository.FindOneAndUpdate(ctx, idFilter(nil, id), update)
	if err != nil {
		return err
	}
	if updated == nil {
		return http_errors.NotFoundErrorWithCode(MONGO_NO_DOCUMENTS_FOUND, "No document found with that ID")
	}
	return nil
}

func (repository *MemoryRepository[T]) FindOneAndUpdate(ctx context.Context, filterBuilder *FilterBuilder, update any) (*T, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return nil, err
	}

	fixedUpdate, err := prepareUpdateDocument(repository.Options, update)
	if err != nil {
		return nil, err
	}

	repository.connector.mu.Lock()
	defer repository.connector.mu.Unlock()

	idx := repository.firstMatch(parsed)
	if idx < 0 {
		return nil, nil
	}

	collection := repository.connector.collections[repository.table]
	updated := cloneDocument(collection[idx])
	applyUpdate(updated, fixedUpdate)
	updated = cloneDocument(updated)

	if err := repository.checkUnique(updated); err != nil {
		return nil, MapStoreError(err)
	}
	collection[idx] = updated

	return decodeDocument[T](applyProjection(updated, parsed.Projection))
}

func (repository *MemoryRepository[T]) FindByIdAndUpdate(ctx context.Context, id any, update any) (*T, error) {
	if id == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}
	return repository.FindOneAndUpdate(ctx, idFilter(nil, id), update)
}

func (repository *MemoryRepository[T]) FindByIdAndDelete(ctx context.Context, id any) (*T, error) {
	if id == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}

	parsed, err := buildQuery(idFilter(nil, id), repository.schema)
	if err != nil {
		return nil, err
	}

	repository.connector.mu.Lock()
	defer repository.connector.mu.Unlock()

	idx := repository.firstMatch(parsed)
	if idx < 0 {
		return nil, nil
	}

	collection := repository.connector.collections[repository.table]
	removed := collection[idx]
	repository.connector.collections[repository.table] = append(collection[:idx:idx], collection[idx+1:]...)

	return decodeDocument[T](removed)
}

func (repository *MemoryRepository[T]) Count(ctx context.Context, filterBuilder *FilterBuilder) (int64, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return 0, err
	}
	parsed.Skip, parsed.Limit = 0, 0

	return int64(len(repository.query(parsed))), nil
}

func (repository *MemoryRepository[T]) Exists(ctx context.Context, id any) (bool, error) {
	if id == nil {
		return false, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}

	count, err := repository.Count(ctx, idFilter(nil, id))
	return count > 0, err
}

func (repository *MemoryRepository[T]) DeleteMany(ctx context.Context, filterBuilder *FilterBuilder) (int64, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return 0, err
	}

	repository.connector.mu.Lock()
	defer repository.connector.mu.Unlock()

	var kept []bson.M
	var deleted int64
	for _, doc := range repository.connector.collections[repository.table] {
		if matchDocument(doc, parsed.Where) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	repository.connector.collections[repository.table] = kept

	return deleted, nil
}

// query returns the matching documents sorted and paged. The returned
// documents must not be modified.
func (repository *MemoryRepository[T]) query(parsed MongoFilter) []bson.M {
	repository.connector.mu.RLock()
	defer repository.connector.mu.RUnlock()

	var matched []bson.M
	for _, doc := range repository.connector.collections[repository.table] {
		if matchDocument(doc, parsed.Where) {
			matched = append(matched, doc)
		}
	}

	sortDocuments(matched, parsed.Sort)

	if parsed.Skip > 0 {
		if int(parsed.Skip) >= len(matched) {
			return nil
		}
		matched = matched[parsed.Skip:]
	}
	if parsed.Limit > 0 && int(parsed.Limit) < len(matched) {
		matched = matched[:parsed.Limit]
	}
	return matched
}

// firstMatch must be called with the connector lock held.
func (repository *MemoryRepository[T]) firstMatch(parsed MongoFilter) int {
	collection := repository.connector.collections[repository.table]

	var indexes []int
	for i, doc := range collection {
		if matchDocument(doc, parsed.Where) {
			indexes = append(indexes, i)
		}
	}
	if len(indexes) == 0 {
		return -1
	}

	if len(parsed.Sort) > 0 {
		sort.SliceStable(indexes, func(a, b int) bool {
			return lessDocument(collection[indexes[a]], collection[indexes[b]], parsed.Sort)
		})
	}
	return indexes[0]
}

// checkUnique must be called with the connector lock held.
func (repository *MemoryRepository[T]) checkUnique(doc bson.M) error {
	for _, idx := range repository.unique {
		for _, other := range repository.connector.collections[repository.table] {
			if c, _ := compareValues(other["_id"], doc["_id"]); c == 0 {
				continue
			}
			if !sameKey(doc, other, idx.Fields) {
				continue
			}

			var parts []string
			for _, field := range idx.Fields {
				value, _ := getPath(doc, field.Name)
				parts = append(parts, fmt.Sprintf("%s: %s", field.Name, formatKeyValue(value)))
			}
			return mongo.WriteException{
				WriteErrors: mongo.WriteErrors{{
					Code: 11000,
					Message: fmt.Sprintf("E11000 duplicate key error collection: %s.%s index: %s dup key: { %s }",
						repository.connector.GetDatabaseName(), repository.table, idx.Name, strings.Join(parts, ", ")),
				}},
			}
		}
	}
	return nil
}

func sameKey(a, b bson.M, fields []IndexField) bool {
	for _, field := range fields {
		av, _ := getPath(a, field.Name)
		bv, _ := getPath(b, field.Name)
		if c, ok := compareValues(av, bv); !ok || c != 0 {
			return false
		}
	}
	return true
}

func formatKeyValue(value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case bson.ObjectID:
		return fmt.Sprintf("ObjectId('%s')", v.Hex())
	}
	return fmt.Sprint(value)
}

func sortDocuments(docs []bson.M, order bson.D) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return lessDocument(docs[i], docs[j], order)
	})
}

func lessDocument(a, b bson.M, order bson.D) bool {
	for _, key := range order {
		av, _ := getPath(a, key.Key)
		bv, _ := getPath(b, key.Key)
		c, ok := compareValues(av, bv)
		if !ok || c == 0 {
			continue
		}
		if direction, _ := toFloat(key.Value); direction < 0 {
			return c > 0
		}
		return c < 0
	}
	return false
}

func decodeDocument[T any](doc bson.M) (*T, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, http_errors.UnexpectedError(err)
	}

	receiver := new(T)
	if err := bson.Unmarshal(data, receiver); err != nil {
		return nil, http_errors.UnexpectedError(err)
	}
	return receiver, nil
}
