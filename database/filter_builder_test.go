package database

import (
	"testing"

	"github.com/natours/tours-rest/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterBuilder_MergeWith_BasicMerge(t *testing.T) {
	filter1 := NewFilter().
		WithWhere(NewWhere().Eq("difficulty", "easy")).
		Limit(10).
		OrderByAsc("name")

	filter2 := NewFilter().
		WithWhere(NewWhere().Eq("duration", 5)).
		Skip(5).
		OrderByDesc("createdAt")

	result, err := filter1.MergeWith(filter2).Build()
	require.NoError(t, err)

	expectedWhere := query.Where{
		"and": query.AndOrCondition{
			query.Where{"difficulty": "easy"},
			query.Where{"duration": 5},
		},
	}
	assert.Equal(t, expectedWhere, result.Where)
	assert.Equal(t, uint(10), result.Limit)
	assert.Equal(t, uint(5), result.Skip)

	require.Len(t, result.Order, 1)
	assert.Equal(t, "createdAt", result.Order[0].Field)
	assert.Equal(t, query.Desc, result.Order[0].Direction)
}

func TestFilterBuilder_MergeWith_OrOperator(t *testing.T) {
	filter1 := NewFilter().WithWhere(NewWhere().Eq("difficulty", "easy"))
	filter2 := NewFilter().WithWhere(NewWhere().Eq("difficulty", "medium"))

	result, err := filter1.MergeWith(filter2, MergeConfig{WhereOperator: "or"}).Build()
	require.NoError(t, err)

	expectedWhere := query.Where{
		"or": query.AndOrCondition{
			query.Where{"difficulty": "easy"},
			query.Where{"difficulty": "medium"},
		},
	}
	assert.Equal(t, expectedWhere, result.Where)
}

func TestFilterBuilder_MergeWith_FieldConflicts(t *testing.T) {
	filter1 := NewFilter().Fields(map[string]bool{"name": true, "price": true})
	filter2 := NewFilter().Fields(map[string]bool{"name": false, "summary": true})

	_, err := filter1.MergeWith(filter2).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field projection conflict")

	_, err = filter1.MergeWith(filter2, MergeConfig{AllowFieldConflicts: true}).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), FILTER_CANNOT_MIX_INCLUSION_EXCLUSION)

	filter3 := NewFilter().Fields(map[string]bool{"name": true, "price": true})
	filter4 := NewFilter().Fields(map[string]bool{"summary": true, "duration": true})

	result, err := filter3.MergeWith(filter4).Build()
	require.NoError(t, err)
	assert.Equal(t, query.Fields{"name": true, "price": true, "summary": true, "duration": true}, result.Fields)
}

func TestFilterBuilder_MergeWith_MaxLimit(t *testing.T) {
	filter1 := NewFilter().Limit(5)
	filter2 := NewFilter().Limit(500)

	result, err := filter1.MergeWith(filter2).Build()
	require.NoError(t, err)
	assert.Equal(t, uint(500), result.Limit)

	result, err = filter1.MergeWith(filter2, MergeConfig{MaxLimit: 100}).Build()
	require.NoError(t, err)
	assert.Equal(t, uint(100), result.Limit)
}

func TestFilterBuilder_MergeWith_Include(t *testing.T) {
	filter1 := NewFilter().Include("reviews", nil)
	filter2 := NewFilter().Include("author", nil).Include("tour", nil)

	result, err := filter1.MergeWith(filter2).Build()
	require.NoError(t, err)

	relations := make([]string, len(result.Include))
	for i, inc := range result.Include {
		relations[i] = inc.Relation
	}
	assert.Equal(t, []string{"reviews", "author", "tour"}, relations)
}

func TestFilterBuilder_MergeWith_WithErrors(t *testing.T) {
	filter1 := NewFilter().WithWhere(NewWhere().Eq("", "value"))
	filter2 := NewFilter().WithWhere(NewWhere().Eq("difficulty", "easy"))

	merged := filter1.MergeWith(filter2)
	_, err := merged.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), FILTER_FIELD_EMPTY)

	filter3 := NewFilter().WithWhere(NewWhere().Eq("difficulty", "easy"))
	filter4 := NewFilter().WithWhere(NewWhere().Eq("   ", "value"))
	assert.Error(t, filter3.MergeWith(filter4).Err())
}

func TestFilterBuilder_MergeWith_NilCases(t *testing.T) {
	filter1 := NewFilter().WithWhere(NewWhere().Eq("difficulty", "easy"))

	expected, err := filter1.Build()
	require.NoError(t, err)

	result, err := filter1.MergeWith(nil).Build()
	require.NoError(t, err)
	assert.Equal(t, expected.Where, result.Where)

	var nilFilter *FilterBuilder
	result, err = nilFilter.MergeWith(filter1).Build()
	require.NoError(t, err)
	assert.Equal(t, expected.Where, result.Where)
}

func TestFilterBuilder_FromQueryFilter(t *testing.T) {
	parsed, err := query.ParseFilter(`{"where":{"price":{"lt":500}},"fields":["name"],"order":"price DESC"}`)
	require.NoError(t, err)

	result, err := NewFilter().FromQueryFilter(parsed).Build()
	require.NoError(t, err)

	assert.Equal(t, query.Where{"price": query.Where{"lt": float64(500)}}, result.Where)
	assert.Zero(t, result.Limit, "absent limit must stay unset")
	assert.Zero(t, result.Skip)
	assert.Equal(t, query.Fields{"name": true}, result.Fields)
	assert.Equal(t, []query.Order{{Field: "price", Direction: query.Desc}}, result.Order)
}

func TestFilterBuilder_Page(t *testing.T) {
	result, err := NewFilter().Page(3, 10).Build()
	require.NoError(t, err)
	assert.Equal(t, uint(20), result.Skip)
	assert.Equal(t, uint(10), result.Limit)
}

func TestWhereBuilder(t *testing.T) {
	tests := []struct {
		name     string
		builder  *WhereBuilder
		expected query.Where
		wantErr  bool
	}{
		{
			name:     "between inclusive",
			builder:  NewWhere().Between("price", 100, 500, false),
			expected: query.Where{"and": query.AndOrCondition{{"price": query.Where{"gte": 100}}, {"price": query.Where{"lte": 500}}}},
		},
		{
			name:     "like with options",
			builder:  NewWhere().Like("name", "^the", "i"),
			expected: query.Where{"name": query.Where{"like": "^the", "options": "i"}},
		},
		{
			name:     "or of two builders",
			builder:  NewWhere().Or(NewWhere().Eq("difficulty", "easy"), NewWhere().Gte("ratingsAverage", 4.7)),
			expected: query.Where{"or": query.AndOrCondition{{"difficulty": "easy"}, {"ratingsAverage": query.Where{"gte": 4.7}}}},
		},
		{
			name:     "strict equality",
			builder:  NewWhere().Eq("role", "admin", true),
			expected: query.Where{"role": query.Where{"eq": "admin"}},
		},
		{
			name:    "empty field",
			builder: NewWhere().Gt(" ", 1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, err := tt.builder.Build()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, where)
		})
	}
}
