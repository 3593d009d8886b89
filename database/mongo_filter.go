package database

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/query"
	"github.com/simplereach/timeutils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var Operators = map[string]string{
	"eq":     "$eq",
	"neq":    "$ne",
	"gt":     "$gt",
	"gte":    "$gte",
	"lt":     "$lt",
	"lte":    "$lte",
	"inq":    "$in",
	"nin":    "$nin",
	"and":    "$and",
	"or":     "$or",
	"exists": "$exists",
}

// VersionKey is stored on every document and never projected.
const VersionKey = "__v"

type MongoFilter struct {
	Where      bson.M
	Sort       bson.D
	Limit      int64
	Skip       int64
	Projection bson.M
	Include    []query.Include
}

// adaptFilter translates a store-agnostic filter to a Mongo query using the
// schema to map JSON names to BSON names and to cast values.
func adaptFilter(filter *query.Filter, schema *Schema) (MongoFilter, error) {
	result := MongoFilter{Include: filter.Include}

	where, err := buildWhere(filter.Where, schema)
	if err != nil {
		return result, err
	}
	result.Where = where

	sort, err := buildSort(filter.Order, schema)
	if err != nil {
		return result, err
	}
	result.Sort = sort

	result.Limit = int64(filter.Limit)
	result.Skip = int64(filter.Skip)

	projection, err := buildProjection(filter.Fields, filter.Hidden, schema)
	if err != nil {
		return result, err
	}
	result.Projection = projection

	return result, nil
}

func buildSort(order []query.Order, schema *Schema) (bson.D, error) {
	sort := bson.D{}
	for _, item := range order {
		name := item.Field
		if name != "_id" {
			field, ok := schema.Lookup(name)
			if !ok {
				return nil, http_errors.ValidationError(fmt.Sprintf("Invalid sort field: %s.", item.Field))
			}
			name = bsonPath(name, field)
		}

		direction := 1
		if item.Direction == query.Desc {
			direction = -1
		}
		sort = append(sort, bson.E{Key: name, Value: direction})
	}
	return sort, nil
}

// buildProjection keeps banned fields out unless hidden lists them, and keeps
// required fields in when the caller asked for an inclusion list.
func buildProjection(fields query.Fields, hidden []string, schema *Schema) (bson.M, error) {
	projection := bson.M{}
	inclusive := false

	for name, include := range fields {
		if name == "_id" || name == "id" {
			projection["_id"] = boolToInt(include)
			continue
		}
		field, ok := schema.Lookup(name)
		if !ok {
			continue
		}
		if include {
			inclusive = true
		}
		projection[bsonPath(name, field)] = boolToInt(include)
	}

	if inclusive {
		for _, field := range schema.RequiredFilterFields {
			projection[field.BsonName] = 1
		}
	}

	for _, field := range schema.BannedFields {
		if slices.Contains(hidden, field.JsonName) || slices.Contains(hidden, field.BsonName) {
			if inclusive {
				projection[field.BsonName] = 1
			}
			continue
		}
		if inclusive {
			delete(projection, field.BsonName)
		} else {
			projection[field.BsonName] = 0
		}
	}

	if inclusive && len(projection) == 0 {
		projection["_id"] = 1
	}
	if len(projection) == 0 {
		return nil, nil
	}
	return projection, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func buildWhere(where query.Where, schema *Schema) (bson.M, error) {
	result := bson.M{}
	if where == nil {
		return result, nil
	}

	for key, val := range where {
		if strings.HasPrefix(key, "$") {
			return nil, errors.Errorf("invalid where parameter. %s is not allowed", key)
		}

		if key == "and" || key == "or" {
			conditions, ok := toConditions(val)
			if !ok || len(conditions) == 0 {
				return nil, errors.Errorf("invalid %s condition", key)
			}

			arr := bson.A{}
			for _, cond := range conditions {
				built, err := buildWhere(cond, schema)
				if err != nil {
					return nil, err
				}
				if len(built) > 0 {
					arr = append(arr, built)
				}
			}
			// every branch named unknown fields
			if len(arr) == 0 {
				continue
			}
			result[Operators[key]] = arr
			continue
		}

		if query.IsOperator(key) {
			return nil, errors.Errorf("invalid where parameter. operator %s needs a field", key)
		}

		field, ok := schema.Lookup(key)
		if !ok {
			// Unknown fields are ignored like a strict schema would.
			continue
		}
		path := bsonPath(key, field)
		exact := isExact(key, field)

		switch v := val.(type) {
		case query.Where:
			cond, err := buildCondition(key, field, exact, v)
			if err != nil {
				return nil, err
			}
			if len(cond) > 0 {
				result[path] = cond
			}
		case map[string]any:
			cond, err := buildCondition(key, field, exact, query.Where(v))
			if err != nil {
				return nil, err
			}
			if len(cond) > 0 {
				result[path] = cond
			}
		default:
			casted, err := castFieldValue(key, field, exact, v)
			if err != nil {
				return nil, err
			}
			result[path] = casted
		}
	}

	return result, nil
}

func buildCondition(key string, field *Field, exact bool, cond query.Where) (bson.M, error) {
	result := bson.M{}

	if like, ok := cond["like"]; ok {
		result["$regex"] = like
		if opts, ok := cond["options"]; ok && opts != nil {
			result["$options"] = opts
		}
		return result, nil
	}

	if nlike, ok := cond["nlike"]; ok {
		regex := bson.M{"$regex": nlike}
		if opts, ok := cond["options"]; ok && opts != nil {
			regex["$options"] = opts
		}
		result["$not"] = regex
		return result, nil
	}

	for op, val := range cond {
		mongoOp, known := Operators[op]
		if !known || op == "and" || op == "or" {
			return nil, http_errors.ValidationError(fmt.Sprintf("Invalid operator %s for field %s.", op, key))
		}

		switch op {
		case "exists":
			b, ok := val.(bool)
			if !ok {
				return nil, errors.New("invalid where parameter. exists must be boolean")
			}
			result[mongoOp] = b
		case "inq", "nin":
			values, ok := toSlice(val)
			if !ok {
				return nil, errors.Errorf("invalid where parameter. %s must be an array", op)
			}
			casted := make(bson.A, 0, len(values))
			for _, item := range values {
				c, err := castFieldValue(key, field, exact, item)
				if err != nil {
					return nil, err
				}
				casted = append(casted, c)
			}
			result[mongoOp] = casted
		default:
			c, err := castFieldValue(key, field, exact, val)
			if err != nil {
				return nil, err
			}
			result[mongoOp] = c
		}
	}

	return result, nil
}

// castFieldValue converts a query value to the Go type of the field. Values
// addressing a sub-path of a known field are passed through unchanged.
func castFieldValue(key string, field *Field, exact bool, val any) (any, error) {
	if val == nil || !exact {
		return val, nil
	}

	invalid := func() error {
		return http_errors.ValidationError(fmt.Sprintf("Invalid %s: %v.", key, val))
	}

	switch field.DataType {
	case DtObjectID:
		oid, err := getObjectId(val)
		if err != nil {
			return nil, invalid()
		}
		return oid, nil
	case DtDate:
		date, err := getDate(val)
		if err != nil {
			return nil, invalid()
		}
		return date, nil
	}

	switch field.Kind { //nolint:exhaustive
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch v := val.(type) {
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, invalid()
			}
			return n, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, invalid()
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		}
		return nil, invalid()
	case reflect.Float32, reflect.Float64:
		switch v := val.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, invalid()
			}
			return f, nil
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return nil, invalid()
	case reflect.Bool:
		switch v := val.(type) {
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, invalid()
			}
			return b, nil
		case bool:
			return v, nil
		}
		return nil, invalid()
	case reflect.String:
		if s, ok := val.(string); ok {
			return s, nil
		}
		return fmt.Sprint(val), nil
	}

	return val, nil
}

func isExact(key string, field *Field) bool {
	return key == field.JsonName || key == field.BsonName
}

// bsonPath maps a JSON path to its BSON path. Sub-paths below a known field
// keep their remaining segments.
func bsonPath(key string, field *Field) string {
	switch {
	case key == field.JsonName || key == field.BsonName:
		return field.BsonName
	case field.JsonName != "" && strings.HasPrefix(key, field.JsonName+"."):
		return field.BsonName + strings.TrimPrefix(key, field.JsonName)
	}
	return key
}

func toConditions(val any) ([]query.Where, bool) {
	switch v := val.(type) {
	case query.AndOrCondition:
		return v, true
	case []query.Where:
		return v, true
	case []any:
		result := make([]query.Where, 0, len(v))
		for _, item := range v {
			switch w := item.(type) {
			case query.Where:
				result = append(result, w)
			case map[string]any:
				result = append(result, w)
			default:
				return nil, false
			}
		}
		return result, true
	}
	return nil, false
}

func toSlice(val any) ([]any, bool) {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	result := make([]any, rv.Len())
	for i := range rv.Len() {
		result[i] = rv.Index(i).Interface()
	}
	return result, true
}

func getObjectId(val any) (bson.ObjectID, error) {
	switch v := val.(type) {
	case string:
		return bson.ObjectIDFromHex(v)
	case *string:
		if v == nil {
			return bson.ObjectID{}, errors.New("invalid ObjectID")
		}
		return bson.ObjectIDFromHex(*v)
	case bson.ObjectID:
		return v, nil
	case *bson.ObjectID:
		if v == nil {
			return bson.ObjectID{}, errors.New("invalid ObjectID")
		}
		return *v, nil
	default:
		return bson.ObjectID{}, errors.New("invalid ObjectID")
	}
}

func getDate(val any) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, errors.New("invalid date")
		}
		return *v, nil
	case bson.DateTime:
		return v.Time(), nil
	case string:
		return timeutils.ParseDateString(v)
	case int64:
		return time.Unix(v, 0), nil
	case float64:
		return time.Unix(int64(v), 0), nil
	default:
		return time.Time{}, errors.New("invalid date format")
	}
}
