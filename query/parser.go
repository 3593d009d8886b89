package query

import (
	"strings"

	"github.com/go-errors/errors"
	"github.com/valyala/fastjson"
)

var (
	filterPool fastjson.ParserPool
	wherePool  fastjson.ParserPool
)

var (
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrInvalidWhere   = errors.New("invalid where filter")
	ErrInvalidOrder   = errors.New("invalid order param")
	ErrInvalidFields  = errors.New("invalid fields param")
	ErrInvalidInclude = errors.New("invalid include param")
)

// ParseFilter parses a JSON filter such as
// {"where":{"price":{"gte":500}},"order":"price DESC","limit":5}.
func ParseFilter(raw string) (*Filter, error) {
	parser := filterPool.Get()
	defer filterPool.Put(parser)

	parsed, err := parser.Parse(raw)
	if err != nil {
		return nil, errors.New("cannot parse filter")
	}

	return parseFilterValue(parsed)
}

// ParseWhere parses a bare JSON where clause.
func ParseWhere(raw string) (Where, error) {
	parser := wherePool.Get()
	defer wherePool.Put(parser)

	parsed, err := parser.Parse(raw)
	if err != nil {
		return nil, errors.New("cannot parse where query")
	}

	return parseWhereValue(parsed)
}

func parseFilterValue(v *fastjson.Value) (*Filter, error) {
	if v.Type() != fastjson.TypeObject {
		return nil, ErrInvalidFilter
	}

	filter := &Filter{}

	if where := v.Get("where"); where != nil {
		parsed, err := parseWhereValue(where)
		if err != nil {
			return nil, err
		}
		filter.Where = parsed
	}

	if order := v.Get("order"); order != nil {
		parsed, err := parseOrderValue(order)
		if err != nil {
			return nil, err
		}
		filter.Order = parsed
	}

	if fields := v.Get("fields"); fields != nil {
		parsed, err := parseFieldsValue(fields)
		if err != nil {
			return nil, err
		}
		filter.Fields = parsed
	}

	if limit := v.Get("limit"); limit != nil {
		filter.Limit = limit.GetUint()
	}

	if skip := v.Get("skip"); skip != nil {
		filter.Skip = skip.GetUint()
	}

	if include := v.Get("include"); include != nil {
		parsed, err := parseIncludeValue(include)
		if err != nil {
			return nil, err
		}
		filter.Include = parsed
	}

	return filter, nil
}

func parseWhereValue(v *fastjson.Value) (Where, error) {
	if v == nil {
		return nil, nil
	}

	obj, err := v.Object()
	if err != nil {
		return nil, ErrInvalidWhere
	}

	if like := obj.Get("like"); like != nil {
		return Where{"like": rawValue(like), "options": rawValue(obj.Get("options"))}, nil
	}

	if nlike := obj.Get("nlike"); nlike != nil {
		return Where{"nlike": rawValue(nlike), "options": rawValue(obj.Get("options"))}, nil
	}

	var visitErr error
	result := Where{}

	obj.Visit(func(k []byte, value *fastjson.Value) {
		if visitErr != nil {
			return
		}

		key := string(k)
		if strings.HasPrefix(key, "$") {
			visitErr = errors.Errorf("invalid use of operator or field: %s", key)
			return
		}

		switch {
		case key == "and" || key == "or":
			items, err := value.Array()
			if err != nil {
				visitErr = ErrInvalidWhere
				return
			}
			conditions := AndOrCondition{}
			for _, item := range items {
				cond, err := parseWhereValue(item)
				if err != nil {
					visitErr = err
					return
				}
				conditions = append(conditions, cond)
			}
			result[key] = conditions
		case value.Type() == fastjson.TypeObject:
			nested, err := parseWhereValue(value)
			if err != nil {
				visitErr = err
				return
			}
			result[key] = nested
		case IsOperator(key):
			if (key == "inq" || key == "nin") && value.Type() != fastjson.TypeArray {
				visitErr = ErrInvalidWhere
				return
			}
			result[key] = rawValue(value)
		default:
			result[key] = Where{"eq": rawValue(value)}
		}
	})

	return result, visitErr
}

func rawValue(v *fastjson.Value) any {
	if v == nil {
		return nil
	}

	switch v.Type() { //nolint:exhaustive
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeArray:
		items := v.GetArray()
		values := make([]any, 0, len(items))
		for _, item := range items {
			values = append(values, rawValue(item))
		}
		return values
	}

	return nil
}

func parseOrderValue(v *fastjson.Value) ([]Order, error) {
	switch v.Type() { //nolint:exhaustive
	case fastjson.TypeString:
		order, err := ParseOrderClause(string(v.GetStringBytes()))
		if err != nil {
			return nil, err
		}
		return []Order{order}, nil
	case fastjson.TypeArray:
		var result []Order
		for _, item := range v.GetArray() {
			if item.Type() != fastjson.TypeString {
				return nil, ErrInvalidOrder
			}
			order, err := ParseOrderClause(string(item.GetStringBytes()))
			if err != nil {
				return nil, err
			}
			result = append(result, order)
		}
		return result, nil
	}

	return nil, ErrInvalidOrder
}

// ParseOrderClause parses "field ASC" or "field DESC".
func ParseOrderClause(clause string) (Order, error) {
	parts := strings.Fields(clause)
	if len(parts) != 2 {
		return Order{}, ErrInvalidOrder
	}

	direction := strings.ToUpper(parts[1])
	if direction != Asc && direction != Desc {
		return Order{}, ErrInvalidOrder
	}

	return Order{Field: parts[0], Direction: direction}, nil
}

func parseFieldsValue(v *fastjson.Value) (Fields, error) {
	fields := Fields{}

	switch v.Type() { //nolint:exhaustive
	case fastjson.TypeArray:
		for _, item := range v.GetArray() {
			if item.Type() != fastjson.TypeString {
				return nil, ErrInvalidFields
			}
			fields[string(item.GetStringBytes())] = true
		}
	case fastjson.TypeObject:
		v.GetObject().Visit(func(key []byte, value *fastjson.Value) {
			switch value.Type() { //nolint:exhaustive
			case fastjson.TypeTrue:
				fields[string(key)] = true
			case fastjson.TypeFalse:
				fields[string(key)] = false
			}
		})
	default:
		return nil, ErrInvalidFields
	}

	return fields, nil
}

func parseIncludeValue(v *fastjson.Value) ([]Include, error) {
	switch v.Type() { //nolint:exhaustive
	case fastjson.TypeString:
		var result []Include
		for _, relation := range strings.Split(string(v.GetStringBytes()), ",") {
			if relation = strings.TrimSpace(relation); relation != "" {
				result = append(result, Include{Relation: relation})
			}
		}
		return result, nil
	case fastjson.TypeObject:
		relation := v.Get("relation")
		if relation == nil || relation.Type() != fastjson.TypeString {
			return nil, ErrInvalidInclude
		}
		include := Include{Relation: string(relation.GetStringBytes())}
		if scope := v.Get("scope"); scope != nil {
			parsed, err := parseFilterValue(scope)
			if err != nil {
				return nil, err
			}
			include.Scope = parsed
		}
		return []Include{include}, nil
	case fastjson.TypeArray:
		var result []Include
		for _, item := range v.GetArray() {
			includes, err := parseIncludeValue(item)
			if err != nil {
				return nil, err
			}
			result = append(result, includes...)
		}
		return result, nil
	}

	return nil, ErrInvalidInclude
}
