package database

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFeatures(t *testing.T, raw string, opts FeatureOptions) (*query.Filter, error) {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return NewAPIFeatures(NewFilter(), values, opts).Apply().Build()
}

func TestAPIFeatures_Filter(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected query.Where
	}{
		{
			name:     "exact match",
			raw:      "difficulty=easy",
			expected: query.Where{"difficulty": "easy"},
		},
		{
			name: "range operators",
			raw:  "price[gte]=500&duration[lt]=10",
			expected: query.Where{"and": query.AndOrCondition{
				{"duration": query.Where{"lt": "10"}},
				{"price": query.Where{"gte": "500"}},
			}},
		},
		{
			name:     "repeated key is membership",
			raw:      "difficulty=easy&difficulty=hard",
			expected: query.Where{"difficulty": query.Where{"inq": []any{"easy", "hard"}}},
		},
		{
			name:     "reserved keys are ignored",
			raw:      "page=2&sort=price&limit=5&fields=name",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := buildFeatures(t, tt.raw, FeatureOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, filter.Where)
		})
	}
}

func TestAPIFeatures_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "unsupported bracket operator", raw: "price[regex]=x"},
		{name: "malformed bracket", raw: "price[gte=1"},
		{name: "mixed projection", raw: "fields=name,-price"},
		{name: "malformed json filter", raw: "filter={bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildFeatures(t, tt.raw, FeatureOptions{})
			require.Error(t, err)

			var httpErr *http_errors.ErrorResponse
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http_errors.KindValidation, httpErr.Kind)
		})
	}
}

func TestAPIFeatures_Sort(t *testing.T) {
	filter, err := buildFeatures(t, "", FeatureOptions{})
	require.NoError(t, err)
	assert.Equal(t, []query.Order{
		{Field: "createdAt", Direction: query.Desc},
		{Field: "_id", Direction: query.Desc},
	}, filter.Order)

	filter, err = buildFeatures(t, "sort=price,-ratingsAverage", FeatureOptions{})
	require.NoError(t, err)
	assert.Equal(t, []query.Order{
		{Field: "price", Direction: query.Asc},
		{Field: "ratingsAverage", Direction: query.Desc},
		{Field: "_id", Direction: query.Desc},
	}, filter.Order)
}

func TestAPIFeatures_Fields(t *testing.T) {
	filter, err := buildFeatures(t, "fields=name,price", FeatureOptions{})
	require.NoError(t, err)
	assert.Equal(t, query.Fields{"name": true, "price": true}, filter.Fields)

	filter, err = buildFeatures(t, "fields=-summary", FeatureOptions{})
	require.NoError(t, err)
	assert.Equal(t, query.Fields{"summary": false}, filter.Fields)
}

func TestAPIFeatures_Paginate(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		opts  FeatureOptions
		skip  uint
		limit uint
	}{
		{name: "defaults", raw: "", skip: 0, limit: 100},
		{name: "second page", raw: "page=2&limit=10", skip: 10, limit: 10},
		{name: "bad values fall back", raw: "page=abc&limit=-3", skip: 0, limit: 100},
		{name: "limit is clamped", raw: "limit=1000", opts: FeatureOptions{MaxLimit: 50}, skip: 0, limit: 50},
		{name: "page with configured default", raw: "page=3", opts: FeatureOptions{DefaultLimit: 20}, skip: 40, limit: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := buildFeatures(t, tt.raw, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.skip, filter.Skip)
			assert.Equal(t, tt.limit, filter.Limit)
		})
	}
}

func TestAPIFeatures_PageOverflow(t *testing.T) {
	_, err := buildFeatures(t, "page=184467440737095517&limit=100", FeatureOptions{})
	var httpErr *http_errors.ErrorResponse
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http_errors.KindValidation, httpErr.Kind)
	assert.Equal(t, "Invalid page: 184467440737095517.", httpErr.Message)

	filter, err := buildFeatures(t, "page=92233720368547758&limit=100", FeatureOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint(9223372036854775700), filter.Skip)
}

func TestAPIFeatures_JSONFilter(t *testing.T) {
	filter, err := buildFeatures(t, `difficulty=easy&filter={"where":{"price":{"lt":500}},"limit":500}`, FeatureOptions{MaxLimit: 100})
	require.NoError(t, err)

	assert.Equal(t, query.Where{"and": query.AndOrCondition{
		{"difficulty": "easy"},
		{"price": query.Where{"lt": float64(500)}},
	}}, filter.Where)
	assert.Equal(t, uint(100), filter.Limit)
}

func TestAPIFeatures_PreservesBaseScope(t *testing.T) {
	base := NewFilter().WithWhere(NewWhere().Eq("tour", "5c88fa8cf4afda39709c2951"))
	values, _ := url.ParseQuery("rating[gte]=4")

	filter, err := NewAPIFeatures(base, values, FeatureOptions{}).Apply().Build()
	require.NoError(t, err)
	assert.Equal(t, query.Where{"and": query.AndOrCondition{
		{"tour": "5c88fa8cf4afda39709c2951"},
		{"rating": query.Where{"gte": "4"}},
	}}, filter.Where)

	// The base builder is not modified.
	baseFilter, err := base.Build()
	require.NoError(t, err)
	assert.Equal(t, query.Where{"tour": "5c88fa8cf4afda39709c2951"}, baseFilter.Where)
}

func TestAPIFeatures_AgainstMemoryRepository(t *testing.T) {
	repo := newTestTourRepository()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 30; i++ {
		difficulty := "easy"
		if i%2 == 0 {
			difficulty = "hard"
		}
		_, err := repo.Insert(ctx, testTour{
			Name:       fmt.Sprintf("Tour %02d", i),
			Price:      float64(i * 100),
			Duration:   i,
			Difficulty: difficulty,
			CreatedAt:  start.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	run := func(raw string) []testTour {
		values, err := url.ParseQuery(raw)
		require.NoError(t, err)
		docs, err := repo.Find(ctx, NewAPIFeatures(NewFilter(), values, FeatureOptions{MaxLimit: 100}).Apply())
		require.NoError(t, err)
		return docs
	}

	page := run("sort=price&page=2&limit=10")
	require.Len(t, page, 10)
	for i, doc := range page {
		assert.Equal(t, fmt.Sprintf("Tour %02d", i+11), doc.Name)
	}

	newest := run("limit=3")
	require.Len(t, newest, 3)
	assert.Equal(t, "Tour 30", newest[0].Name)

	filtered := run("difficulty=hard&price[gte]=2500&sort=-price")
	require.Len(t, filtered, 3)
	assert.Equal(t, []float64{3000, 2800, 2600}, []float64{filtered[0].Price, filtered[1].Price, filtered[2].Price})

	untracked := run("utm_source=x&utm_medium=y&limit=5")
	assert.Len(t, untracked, 5, "unknown params are ignored")

	easy := run("utm_source=x&difficulty=easy")
	assert.Len(t, easy, 15)

	projected := run("fields=name&limit=1&sort=name")
	require.Len(t, projected, 1)
	assert.Equal(t, "Tour 01", projected[0].Name)
	assert.Zero(t, projected[0].Price)

	_, err := repo.Find(ctx, NewAPIFeatures(NewFilter(), url.Values{"price": {"abc"}}, FeatureOptions{}).Apply())
	require.Error(t, err)
	assert.Equal(t, "Invalid price: abc.", err.Error())
}
