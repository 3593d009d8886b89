package database

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/go-errors/errors"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/query"
)

const (
	FILTER_FIELD_EMPTY                    = "FILTER_FIELD_EMPTY"
	FILTER_INVALID_DIRECTION              = "FILTER_INVALID_DIRECTION"
	FILTER_WHERE_EMPTY                    = "FILTER_WHERE_EMPTY"
	FILTER_CANNOT_MIX_INCLUSION_EXCLUSION = "FILTER_CANNOT_MIX_INCLUSION_EXCLUSION"
	FILTER_WHERE_CANNOT_BE_NIL            = "FILTER_WHERE_CANNOT_BE_NIL"
)

// FilterBuilder is a lazy query description. Errors raised while chaining are
// kept and reported by Build, so a chain never has to be checked step by step.
type FilterBuilder struct {
	where   []query.Where
	fields  query.Fields
	limit   *uint
	skip    *uint
	order   []query.Order
	include []query.Include
	hidden  []string
	err     error
}

func NewFilter() *FilterBuilder {
	return &FilterBuilder{
		where:  []query.Where{},
		fields: query.Fields{},
		order:  []query.Order{},
	}
}

func (b *FilterBuilder) Fields(fields map[string]bool) *FilterBuilder {
	maps.Copy(b.fields, fields)
	return b
}

func (b *FilterBuilder) Limit(limit uint) *FilterBuilder {
	b.limit = &limit
	return b
}

func (b *FilterBuilder) Skip(skip uint) *FilterBuilder {
	b.skip = &skip
	return b
}

func (b *FilterBuilder) orderBy(field string, direction string) *FilterBuilder {
	if strings.TrimSpace(field) == "" {
		b.err = errors.New(FILTER_FIELD_EMPTY)
		return b
	}

	direction = strings.ToUpper(direction)
	if direction != query.Asc && direction != query.Desc {
		b.err = errors.New(FILTER_INVALID_DIRECTION)
		return b
	}

	b.order = append(b.order, query.Order{Field: field, Direction: direction})
	return b
}

func (b *FilterBuilder) OrderByAsc(field string) *FilterBuilder {
	return b.orderBy(field, query.Asc)
}

func (b *FilterBuilder) OrderByDesc(field string) *FilterBuilder {
	return b.orderBy(field, query.Desc)
}

// Include asks the repository to expand the named relation.
func (b *FilterBuilder) Include(relation string, scope *query.Filter) *FilterBuilder {
	b.include = append(b.include, query.Include{Relation: relation, Scope: scope})
	return b
}

// WithHidden lifts the projection ban on the given fields for this query only.
func (b *FilterBuilder) WithHidden(fields ...string) *FilterBuilder {
	b.hidden = append(b.hidden, fields...)
	return b
}

func (b *FilterBuilder) WithWhere(builder *WhereBuilder) *FilterBuilder {
	where, err := builder.Build()
	if err != nil {
		b.err = err
		return b
	}

	if len(where) == 0 {
		b.err = errors.New(FILTER_WHERE_EMPTY)
		return b
	}

	b.where = append(b.where, where)
	return b
}

// Fail records err so that Build reports it.
func (b *FilterBuilder) Fail(err error) *FilterBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *FilterBuilder) Err() error {
	return b.err
}

func (b *FilterBuilder) Build() (*query.Filter, error) {
	if b.err != nil {
		return nil, b.err
	}

	var where query.Where
	switch len(b.where) {
	case 0:
	case 1:
		where = b.where[0]
	default:
		where = query.Where{"and": query.AndOrCondition(b.where)}
	}

	if !isValidProjection(b.fields) {
		return nil, errors.New(FILTER_CANNOT_MIX_INCLUSION_EXCLUSION)
	}

	return &query.Filter{
		Where:   where,
		Fields:  b.fields,
		Order:   b.order,
		Limit:   derefUint(b.limit),
		Skip:    derefUint(b.skip),
		Include: b.include,
		Hidden:  b.hidden,
	}, nil
}

// FromQueryFilter loads a parsed JSON filter. Zero limit and skip are treated
// as absent.
func (b *FilterBuilder) FromQueryFilter(filter *query.Filter) *FilterBuilder {
	if filter == nil {
		return b
	}

	if len(filter.Where) > 0 {
		b.where = []query.Where{filter.Where}
	}
	if filter.Fields != nil {
		b.fields = maps.Clone(filter.Fields)
	}
	if filter.Limit > 0 {
		b.Limit(filter.Limit)
	}
	if filter.Skip > 0 {
		b.Skip(filter.Skip)
	}
	b.order = slices.Clone(filter.Order)
	b.include = slices.Clone(filter.Include)

	if !isValidProjection(b.fields) {
		b.err = errors.New(FILTER_CANNOT_MIX_INCLUSION_EXCLUSION)
	}

	return b
}

func (b *FilterBuilder) Clone() *FilterBuilder {
	clone := &FilterBuilder{
		where:   slices.Clone(b.where),
		fields:  maps.Clone(b.fields),
		order:   slices.Clone(b.order),
		include: slices.Clone(b.include),
		hidden:  slices.Clone(b.hidden),
		err:     b.err,
	}
	if clone.fields == nil {
		clone.fields = query.Fields{}
	}

	if b.limit != nil {
		clone.Limit(*b.limit)
	}
	if b.skip != nil {
		clone.Skip(*b.skip)
	}

	return clone
}

// Page sets skip and limit for a 1-based page of the given size. A page whose
// skip does not fit in an int64 fails the builder.
func (b *FilterBuilder) Page(page, size uint) *FilterBuilder {
	if page > 0 && size > 0 {
		if uint64(page-1) > math.MaxInt64/uint64(size) {
			return b.Fail(http_errors.ValidationError(fmt.Sprintf("Invalid page: %d.", page)))
		}
		b.Skip((page - 1) * size)
		b.Limit(size)
	}
	return b
}

type MergeConfig struct {
	// WhereOperator combines both where clauses: "and" (default) or "or".
	WhereOperator string
	// AllowFieldConflicts lets the other builder overwrite projected fields.
	AllowFieldConflicts bool
	// MaxLimit caps the merged limit when non-zero.
	MaxLimit uint
}

// MergeWith returns a new builder combining b and other. Where clauses are
// combined, order/skip/limit from other win, includes are concatenated.
func (b *FilterBuilder) MergeWith(other *FilterBuilder, config ...MergeConfig) *FilterBuilder {
	if b == nil && other == nil {
		return NewFilter()
	}
	if b == nil {
		return other.Clone()
	}
	if other == nil {
		return b.Clone()
	}

	if b.err != nil {
		return &FilterBuilder{err: b.err}
	}
	if other.err != nil {
		return &FilterBuilder{err: other.err}
	}

	cfg := MergeConfig{WhereOperator: "and"}
	if len(config) > 0 {
		cfg = config[0]
	}

	result := b.Clone()

	if len(other.where) > 0 {
		if len(result.where) == 0 {
			result.where = slices.Clone(other.where)
		} else {
			operator := "and"
			if cfg.WhereOperator == "or" {
				operator = "or"
			}
			result.where = []query.Where{{
				operator: query.AndOrCondition{collapseWhere(result.where), collapseWhere(other.where)},
			}}
		}
	}

	if len(other.fields) > 0 {
		if !cfg.AllowFieldConflicts {
			for field, otherValue := range other.fields {
				if current, exists := result.fields[field]; exists && current != otherValue {
					result.err = errors.Errorf("field projection conflict for '%s': current=%v, other=%v", field, current, otherValue)
					return result
				}
			}
		}

		maps.Copy(result.fields, other.fields)

		if !isValidProjection(result.fields) {
			result.err = errors.New(FILTER_CANNOT_MIX_INCLUSION_EXCLUSION)
			return result
		}
	}

	if other.limit != nil {
		limit := *other.limit
		if cfg.MaxLimit > 0 && limit > cfg.MaxLimit {
			limit = cfg.MaxLimit
		}
		result.Limit(limit)
	}

	if other.skip != nil {
		result.Skip(*other.skip)
	}

	if len(other.order) > 0 {
		result.order = slices.Clone(other.order)
	}

	result.include = append(result.include, other.include...)
	result.hidden = append(result.hidden, other.hidden...)

	return result
}

func collapseWhere(where []query.Where) query.Where {
	if len(where) == 1 {
		return where[0]
	}
	return query.Where{"and": query.AndOrCondition(where)}
}

/************************
 * Where Builder
 ************************/

type WhereBuilder struct {
	conditions []query.Where
	err        error
}

func NewWhere() *WhereBuilder {
	return &WhereBuilder{}
}

// Eq adds an equality condition. With strict set the operator is explicit,
// which matters when value is itself a document.
func (b *WhereBuilder) Eq(field string, value any, strict ...bool) *WhereBuilder {
	if len(strict) > 0 && strict[0] {
		return b.op(field, "eq", value)
	}
	if err := validateField(field); err != nil {
		b.err = err
		return b
	}
	return b.Raw(query.Where{field: value})
}

func (b *WhereBuilder) Neq(field string, value any) *WhereBuilder {
	return b.op(field, "neq", value)
}

func (b *WhereBuilder) In(field string, values any) *WhereBuilder {
	return b.op(field, "inq", values)
}

func (b *WhereBuilder) Nin(field string, values any) *WhereBuilder {
	return b.op(field, "nin", values)
}

func (b *WhereBuilder) Gt(field string, value any) *WhereBuilder {
	return b.op(field, "gt", value)
}

func (b *WhereBuilder) Gte(field string, value any) *WhereBuilder {
	return b.op(field, "gte", value)
}

func (b *WhereBuilder) Lt(field string, value any) *WhereBuilder {
	return b.op(field, "lt", value)
}

func (b *WhereBuilder) Lte(field string, value any) *WhereBuilder {
	return b.op(field, "lte", value)
}

func (b *WhereBuilder) Exists(field string, exists bool) *WhereBuilder {
	return b.op(field, "exists", exists)
}

func (b *WhereBuilder) Between(field string, min any, max any, exclusive bool) *WhereBuilder {
	low, high := "gte", "lte"
	if exclusive {
		low, high = "gt", "lt"
	}

	return b.Raw(query.Where{
		"and": query.AndOrCondition{
			{field: query.Where{low: min}},
			{field: query.Where{high: max}},
		},
	})
}

func (b *WhereBuilder) Like(field string, pattern string, options ...string) *WhereBuilder {
	if err := validateField(field); err != nil {
		b.err = err
		return b
	}

	where := query.Where{"like": pattern}
	if len(options) > 0 {
		where["options"] = options[0]
	}
	return b.Raw(query.Where{field: where})
}

func (b *WhereBuilder) op(field string, operator string, value any) *WhereBuilder {
	if err := validateField(field); err != nil {
		b.err = err
		return b
	}
	return b.Raw(query.Where{field: query.Where{operator: value}})
}

func (b *WhereBuilder) Raw(w query.Where) *WhereBuilder {
	if b.err != nil {
		return b
	}
	if len(w) == 0 {
		b.err = errors.New("raw where condition cannot be empty")
		return b
	}
	b.conditions = append(b.conditions, w)
	return b
}

func (b *WhereBuilder) Or(builders ...*WhereBuilder) *WhereBuilder {
	var ors []query.Where
	for _, sub := range builders {
		w, err := sub.Build()
		if err != nil {
			b.err = err
			return b
		}
		if len(w) > 0 {
			ors = append(ors, w)
		}
	}
	if len(ors) > 0 {
		b.conditions = append(b.conditions, query.Where{"or": query.AndOrCondition(ors)})
	}
	return b
}

func (b *WhereBuilder) And(builders ...*WhereBuilder) *WhereBuilder {
	var flat []query.Where
	for _, sub := range builders {
		w, err := sub.Build()
		if err != nil {
			b.err = err
			return b
		}

		if inner, ok := w["and"].(query.AndOrCondition); ok && len(w) == 1 {
			flat = append(flat, inner...)
			continue
		}
		if len(w) > 0 {
			flat = append(flat, w)
		}
	}
	if len(flat) > 0 {
		b.conditions = append(b.conditions, query.Where{"and": query.AndOrCondition(flat)})
	}
	return b
}

func (b *WhereBuilder) Build() (query.Where, error) {
	if b == nil {
		return nil, errors.New(FILTER_WHERE_CANNOT_BE_NIL)
	}
	if b.err != nil {
		return nil, b.err
	}

	switch len(b.conditions) {
	case 0:
		return query.Where{}, nil
	case 1:
		return b.conditions[0], nil
	default:
		return query.Where{"and": query.AndOrCondition(b.conditions)}, nil
	}
}

func derefUint(p *uint) uint {
	if p == nil {
		return 0
	}
	return *p
}

func isValidProjection(fields map[string]bool) bool {
	hasTrue, hasFalse := false, false
	for key, val := range fields {
		if key == "_id" || key == "id" {
			continue
		}
		if val {
			hasTrue = true
		} else {
			hasFalse = true
		}
	}
	return !(hasTrue && hasFalse)
}

func validateField(field string) error {
	if strings.TrimSpace(field) == "" {
		return errors.New(FILTER_FIELD_EMPTY)
	}
	return nil
}
