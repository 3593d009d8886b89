package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/query"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var now = func() time.Time { return time.Now().UTC() }

// buildQuery resolves a builder into a Mongo filter. Malformed filters are
// client errors.
func buildQuery(filterBuilder *FilterBuilder, schema *Schema) (MongoFilter, error) {
	if filterBuilder == nil {
		filterBuilder = NewFilter()
	}

	filter, err := filterBuilder.Build()
	if err != nil {
		return MongoFilter{}, filterError(err)
	}

	parsed, err := adaptFilter(filter, schema)
	if err != nil {
		return MongoFilter{}, filterError(err)
	}
	return parsed, nil
}

func idFilter(filterBuilder *FilterBuilder, id any) *FilterBuilder {
	var clone *FilterBuilder
	if filterBuilder == nil {
		clone = NewFilter()
	} else {
		clone = filterBuilder.Clone()
	}
	return clone.WithWhere(NewWhere().Eq(ID, id))
}

func prepareInsertDocument(options RepositoryOptions, doc any) (bson.M, error) {
	document, err := toBsonMap(doc)
	if err != nil {
		return nil, err
	}

	if id, ok := document["_id"]; !ok || id == nil || id == bson.NilObjectID {
		document["_id"] = bson.NewObjectID()
	}

	if options.Timestamps {
		ts := now()
		if isZeroDate(document[CREATED_AT]) {
			document[CREATED_AT] = ts
		}
		document[UPDATED_AT] = ts
	}

	if options.Versioned {
		document[VersionKey] = 0
	}

	return document, nil
}

// prepareUpdateDocument accepts either a plain document of fields, which is
// treated as $set, or a document of update operators. Fields owned by the
// repository are stripped from $set.
func prepareUpdateDocument(options RepositoryOptions, update any) (bson.M, error) {
	if update == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_UPDATE_CANNOT_BE_NIL, "update cannot be nil")
	}

	document, err := toBsonMap(update)
	if err != nil {
		return nil, err
	}

	hasFields, hasCommands := false, false
	for key := range document {
		if strings.HasPrefix(key, COMMAND_PREFIX) {
			hasCommands = true
		} else {
			hasFields = true
		}
	}

	if hasFields && hasCommands {
		return nil, errors.New(MIXED_UPDATE)
	}

	newUpdate := bson.M{}
	var set bson.M

	if hasCommands {
		for key, value := range document {
			newUpdate[key] = value
		}
		if raw, ok := document[SET]; ok {
			set, err = toBsonMap(raw)
			if err != nil {
				return nil, errors.New(fmt.Sprintf("invalid $set value: %T", raw))
			}
		}
	} else {
		set = document
	}

	if set == nil {
		set = bson.M{}
	}
	delete(set, "_id")
	delete(set, VersionKey)
	if options.Timestamps {
		delete(set, CREATED_AT)
		set[UPDATED_AT] = now()
	}

	if len(set) > 0 {
		newUpdate[SET] = set
	} else {
		delete(newUpdate, SET)
	}

	if len(newUpdate) == 0 {
		return nil, http_errors.ValidationError("the update document is empty")
	}

	return newUpdate, nil
}

func toBsonMap(v any) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}

	switch doc := v.(type) {
	case bson.M:
		return doc, nil
	case map[string]any:
		return doc, nil
	case bson.D:
		result := bson.M{}
		for _, elem := range doc {
			result[elem.Key] = elem.Value
		}
		return result, nil
	}

	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	err = bson.Unmarshal(data, &doc)
	return doc, err
}

func isZeroDate(v any) bool {
	switch d := v.(type) {
	case nil:
		return true
	case time.Time:
		return d.IsZero()
	case bson.DateTime:
		return d.Time().IsZero()
	}
	return false
}

// resolveIncludes expands the requested relations on doc through the model's
// Relations map.
func resolveIncludes[T IModel](ctx context.Context, ds *Datasource, doc *T, includes []query.Include) error {
	if doc == nil || len(includes) == 0 {
		return nil
	}

	relational, ok := any(doc).(IRelationalModel)
	if !ok {
		return http_errors.ValidationError(fmt.Sprintf("%s has no relations", (*doc).GetModelName()))
	}

	relations := relational.Relations()
	for _, include := range includes {
		relation, ok := relations[include.Relation]
		if !ok {
			return http_errors.ValidationError(fmt.Sprintf("Unknown relation %s.", include.Relation))
		}

		value, err := relation.Resolve(ctx, ds)
		if err != nil {
			return err
		}
		if err := relation.Set(value); err != nil {
			return err
		}
	}
	return nil
}
