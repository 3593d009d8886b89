package database

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/query"
)

const (
	DefaultPageLimit = 100
	DefaultSort      = "-createdAt"
)

var reservedParams = map[string]bool{
	"page":   true,
	"sort":   true,
	"limit":  true,
	"fields": true,
	"filter": true,
}

var rangeOperators = map[string]bool{
	"gte": true,
	"gt":  true,
	"lte": true,
	"lt":  true,
}

var bracketParam = regexp.MustCompile(`^([^\[\]]+)\[([^\[\]]*)\]$`)

type FeatureOptions struct {
	DefaultLimit uint
	MaxLimit     uint
	DefaultSort  string
}

// APIFeatures refines a base filter from query string values. The steps are
// meant to be chained in order: Filter, Sort, LimitFields, Paginate.
type APIFeatures struct {
	builder *FilterBuilder
	values  url.Values
	options FeatureOptions
}

func NewAPIFeatures(base *FilterBuilder, values url.Values, opts FeatureOptions) *APIFeatures {
	if base == nil {
		base = NewFilter()
	}
	if opts.DefaultLimit == 0 {
		opts.DefaultLimit = DefaultPageLimit
	}
	if opts.MaxLimit > 0 && opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if opts.DefaultSort == "" {
		opts.DefaultSort = DefaultSort
	}

	return &APIFeatures{
		builder: base.Clone(),
		values:  values,
		options: opts,
	}
}

// Filter turns the non reserved params into conditions. A repeated param
// becomes a membership test and field[op]=value a range condition.
func (f *APIFeatures) Filter() *APIFeatures {
	keys := make([]string, 0, len(f.values))
	for key := range f.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	where := NewWhere()
	hasConditions := false

	for _, key := range keys {
		if reservedParams[key] {
			continue
		}
		values := f.values[key]
		if len(values) == 0 {
			continue
		}

		if match := bracketParam.FindStringSubmatch(key); match != nil {
			field, op := match[1], match[2]
			if !rangeOperators[op] {
				f.builder.Fail(http_errors.ValidationError(fmt.Sprintf("Invalid operator %s for field %s.", op, field)))
				return f
			}
			for _, value := range values {
				where.op(field, op, value)
			}
			hasConditions = true
			continue
		}

		if strings.ContainsAny(key, "[]") {
			f.builder.Fail(http_errors.ValidationError(fmt.Sprintf("Invalid query parameter %s.", key)))
			return f
		}

		if len(values) == 1 {
			where.Eq(key, values[0])
		} else {
			in := make([]any, len(values))
			for i, value := range values {
				in[i] = value
			}
			where.In(key, in)
		}
		hasConditions = true
	}

	if hasConditions {
		f.builder.WithWhere(where)
	}

	if raw := f.values.Get("filter"); raw != "" {
		parsed, err := query.ParseFilter(raw)
		if err != nil {
			f.builder.Fail(http_errors.ValidationError(fmt.Sprintf("Invalid filter: %v.", err)))
			return f
		}
		f.builder = f.builder.MergeWith(NewFilter().FromQueryFilter(parsed), MergeConfig{
			WhereOperator: "and",
			MaxLimit:      f.options.MaxLimit,
		})
	}

	return f
}

// Sort orders by the comma separated sort param, "-" meaning descending. An
// _id tiebreaker keeps pages stable.
func (f *APIFeatures) Sort() *APIFeatures {
	raw := strings.Join(f.values["sort"], ",")
	if strings.TrimSpace(raw) == "" {
		if len(f.builder.order) > 0 {
			return f
		}
		raw = f.options.DefaultSort
	}

	f.builder.order = nil
	lastDirection := query.Asc
	hasID := false

	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" || token == "-" {
			continue
		}

		if field, desc := strings.CutPrefix(token, "-"); desc {
			f.builder.OrderByDesc(field)
			lastDirection = query.Desc
			hasID = hasID || field == "_id" || field == ID
		} else {
			f.builder.OrderByAsc(token)
			lastDirection = query.Asc
			hasID = hasID || token == "_id" || token == ID
		}
	}

	if !hasID {
		f.builder.order = append(f.builder.order, query.Order{Field: "_id", Direction: lastDirection})
	}

	return f
}

// LimitFields projects the comma separated fields param. Entries prefixed
// with "-" are excluded.
func (f *APIFeatures) LimitFields() *APIFeatures {
	raw := strings.Join(f.values["fields"], ",")
	if strings.TrimSpace(raw) == "" {
		return f
	}

	fields := query.Fields{}
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if field, exclude := strings.CutPrefix(token, "-"); exclude {
			fields[field] = false
		} else {
			fields[token] = true
		}
	}

	if !isValidProjection(fields) {
		f.builder.Fail(http_errors.ValidationError("Cannot mix field inclusion and exclusion."))
		return f
	}

	f.builder.Fields(fields)
	return f
}

// Paginate applies page and limit. Bad values fall back to the defaults and
// the limit is capped to the configured maximum.
func (f *APIFeatures) Paginate() *APIFeatures {
	_, hasPage := f.values["page"]
	_, hasLimit := f.values["limit"]
	if !hasPage && !hasLimit && f.builder.limit != nil {
		return f
	}

	page := parsePositive(f.values.Get("page"), 1)
	limit := parsePositive(f.values.Get("limit"), f.options.DefaultLimit)
	if f.options.MaxLimit > 0 && limit > f.options.MaxLimit {
		limit = f.options.MaxLimit
	}

	f.builder.Page(page, limit)
	return f
}

// Query returns the refined builder. Errors surface when it is built.
func (f *APIFeatures) Query() *FilterBuilder {
	return f.builder
}

// Apply runs every step in order.
func (f *APIFeatures) Apply() *FilterBuilder {
	return f.Filter().Sort().LimitFields().Paginate().Query()
}

func parsePositive(raw string, fallback uint) uint {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return uint(n)
}
