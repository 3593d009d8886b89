package database

import (
	"context"
	"errors"

	"github.com/natours/tours-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MongoRepository[T IModel] struct {
	Options    RepositoryOptions
	collection *mongo.Collection
	schema     *Schema
	connector  *MongoConnector
	datasource *Datasource
}

func NewMongoRepository[T IModel](ds *Datasource, options RepositoryOptions) (*MongoRepository[T], error) {
	var instance T

	if err := ds.RegisterModel(instance); err != nil {
		return nil, err
	}

	tmp, err := ds.GetModelConnector(instance)
	if err != nil {
		return nil, err
	}

	connector, ok := tmp.(*MongoConnector)
	if !ok || connector == nil {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_CONNECTOR_TYPE_MISMATCH, "the connector for model "+instance.GetModelName()+" is not a MongoConnector")
	}

	if connector.client == nil {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_CLIENT_NOT_INITIALIZED, "the MongoDB client is not initialized correctly")
	}

	repository := &MongoRepository[T]{
		Options:    options,
		collection: connector.collection(instance.GetTableName()),
		schema:     NewSchema(instance),
		connector:  connector,
		datasource: ds,
	}

	if err := RegisterDatasourceRepository[T](ds, instance, repository); err != nil {
		return nil, err
	}

	return repository, nil
}

func (repository *MongoRepository[T]) GetCollection() *mongo.Collection {
	return repository.collection
}

func (repository *MongoRepository[T]) GetSchema() *Schema {
	return repository.schema
}

func (repository *MongoRepository[T]) GetConnector() Connector {
	return repository.connector
}

func (repository *MongoRepository[T]) Find(ctx context.Context, filterBuilder *FilterBuilder) ([]T, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find()
	if len(parsed.Sort) > 0 {
		findOpts.SetSort(parsed.Sort)
	}
	if parsed.Limit > 0 {
		findOpts.SetLimit(parsed.Limit)
	}
	if parsed.Skip > 0 {
		findOpts.SetSkip(parsed.Skip)
	}
	if parsed.Projection != nil {
		findOpts.SetProjection(parsed.Projection)
	}

	cursor, err := repository.collection.Find(ctx, parsed.Where, findOpts)
	if err != nil {
		return nil, MapStoreError(err)
	}

	var receiver []T
	if err = cursor.All(ctx, &receiver); err != nil {
		return nil, MapStoreError(err)
	}

	for i := range receiver {
		if err := resolveIncludes(ctx, repository.datasource, &receiver[i], parsed.Include); err != nil {
			return nil, err
		}
	}

	if receiver == nil {
		return []T{}, nil
	}
	return receiver, nil
}

func (repository *MongoRepository[T]) FindOne(ctx context.Context, filterBuilder *FilterBuilder) (*T, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return nil, err
	}

	findOneOptions := options.FindOne()
	if len(parsed.Sort) > 0 {
		findOneOptions.SetSort(parsed.Sort)
	}
	if parsed.Skip > 0 {
		findOneOptions.SetSkip(parsed.Skip)
	}
	if parsed.Projection != nil {
		findOneOptions.SetProjection(parsed.Projection)
	}

	result := repository.collection.FindOne(ctx, parsed.Where, findOneOptions)
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, MapStoreError(err)
	}

	receiver := new(T)
	if err := result.Decode(receiver); err != nil {
		return nil, MapStoreError(err)
	}

	if err := resolveIncludes(ctx, repository.datasource, receiver, parsed.Include); err != nil {
		return nil, err
	}

	return receiver, nil
}

func (repository *MongoRepository[T]) FindById(ctx context.Context, id any, filterBuilder *FilterBuilder) (*T, error) {
	if id == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}
	return repository.FindOne(ctx, idFilter(filterBuilder, id))
}

func (repository *MongoRepository[T]) Insert(ctx context.Context, doc T) (any, error) {
	if hook, ok := any(&doc).(BeforeCreateHook); ok {
		if err := hook.BeforeCreate(); err != nil {
			return nil, err
		}
	}

	document, err := prepareInsertDocument(repository.Options, doc)
	if err != nil {
		return nil, err
	}

	inserted, err := repository.collection.InsertOne(ctx, document)
	if err != nil {
		return nil, MapStoreError(err)
	}

	return inserted.InsertedID, nil
}

func (repository *MongoRepository[T]) Create(ctx context.Context, doc T) (*T, error) {
	insertedID, err := repository.Insert(ctx, doc)
	if err != nil {
		return nil, err
	}

	return repository.FindById(ctx, insertedID, nil)
}

func (repository *MongoRepository[T]) UpdateById(ctx context.Context, id any, update any) error {
	if id == nil {
		return http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}

	parsed, err := buildQuery(idFilter(nil, id), repository.schema)
	if err != nil {
		return err
	}

	fixedUpdate, err := prepareUpdateDocument(repository.Options, update)
	if err != nil {
		return err
	}

	result, err := repository.collection.UpdateOne(ctx, parsed.Where, fixedUpdate)
	if err != nil {
		return MapStoreError(err)
	}
	if result.MatchedCount == 0 {
		return http_errors.NotFoundErrorWithCode(MONGO_NO_DOCUMENTS_FOUND, "No document found with that ID")
	}

	return nil
}

func (repository *MongoRepository[T]) FindOneAndUpdate(ctx context.Context, filterBuilder *FilterBuilder, update any) (*T, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return nil, err
	}

	fixedUpdate, err := prepareUpdateDocument(repository.Options, update)
	if err != nil {
		return nil, err
	}

	cmdOpts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if len(parsed.Sort) > 0 {
		cmdOpts.SetSort(parsed.Sort)
	}
	if parsed.Projection != nil {
		cmdOpts.SetProjection(parsed.Projection)
	}

	result := repository.collection.FindOneAndUpdate(ctx, parsed.Where, fixedUpdate, cmdOpts)
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, MapStoreError(err)
	}

	receiver := new(T)
	if err := result.Decode(receiver); err != nil {
		return nil, MapStoreError(err)
	}

	return receiver, nil
}

func (repository *MongoRepository[T]) FindByIdAndUpdate(ctx context.Context, id any, update any) (*T, error) {
	if id == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}
	return repository.FindOneAndUpdate(ctx, idFilter(nil, id), update)
}

func (repository *MongoRepository[T]) FindByIdAndDelete(ctx context.Context, id any) (*T, error) {
	if id == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}

	parsed, err := buildQuery(idFilter(nil, id), repository.schema)
	if err != nil {
		return nil, err
	}

	result := repository.collection.FindOneAndDelete(ctx, parsed.Where)
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, MapStoreError(err)
	}

	receiver := new(T)
	if err := result.Decode(receiver); err != nil {
		return nil, MapStoreError(err)
	}
	return receiver, nil
}

func (repository *MongoRepository[T]) Count(ctx context.Context, filterBuilder *FilterBuilder) (int64, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return 0, err
	}

	count, err := repository.collection.CountDocuments(ctx, parsed.Where)
	if err != nil {
		return 0, MapStoreError(err)
	}
	return count, nil
}

func (repository *MongoRepository[T]) Exists(ctx context.Context, id any) (bool, error) {
	if id == nil {
		return false, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}

	count, err := repository.Count(ctx, idFilter(nil, id))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (repository *MongoRepository[T]) DeleteMany(ctx context.Context, filterBuilder *FilterBuilder) (int64, error) {
	parsed, err := buildQuery(filterBuilder, repository.schema)
	if err != nil {
		return 0, err
	}

	result, err := repository.collection.DeleteMany(ctx, parsed.Where)
	if err != nil {
		return 0, MapStoreError(err)
	}

	return result.DeletedCount, nil
}

// Aggregate runs a raw pipeline and decodes every result into out.
func (repository *MongoRepository[T]) Aggregate(ctx context.Context, pipeline bson.A, out any) error {
	cursor, err := repository.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return MapStoreError(err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return MapStoreError(err)
	}
	return nil
}
