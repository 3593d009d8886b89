package database

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/natours/tours-rest/http_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMemoryRepository_CreateAndFind(t *testing.T) {
	repo := newTestTourRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, testTour{Name: "The Sea Explorer", Price: 497, Duration: 7, Secret: true})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.False(t, created.ID.IsZero())
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.False(t, created.Secret, "banned fields are not projected")

	found, err := repo.FindById(ctx, created.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "The Sea Explorer", found.Name)

	found, err = repo.FindById(ctx, created.ID.Hex(), NewFilter().WithHidden("secretTour"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Secret)

	missing, err := repo.FindById(ctx, bson.NewObjectID(), nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRepository_DuplicateKey(t *testing.T) {
	repo := newTestTourRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, testTour{Name: "The Forest Hiker"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, testTour{Name: "The Forest Hiker"})
	require.Error(t, err)

	var httpErr *http_errors.ErrorResponse
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	assert.Equal(t, http_errors.KindConflict, httpErr.Kind)
	assert.Equal(t, `Duplicate field value: "The Forest Hiker". Please use another value!`, httpErr.Message)

	count, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := newTestTourRepository()
	ctx := context.Background()

	first, err := repo.Create(ctx, testTour{Name: "The Snow Adventurer", Price: 997})
	require.NoError(t, err)
	_, err = repo.Create(ctx, testTour{Name: "The City Wanderer", Price: 1197})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	updated, err := repo.FindByIdAndUpdate(ctx, first.ID, bson.M{"price": 899.5, "createdAt": time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 899.5, updated.Price)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt, "createdAt is owned by the repository")
	assert.True(t, updated.UpdatedAt.After(first.UpdatedAt))

	_, err = repo.FindByIdAndUpdate(ctx, first.ID, bson.M{"name": "The City Wanderer"})
	var httpErr *http_errors.ErrorResponse
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http_errors.KindConflict, httpErr.Kind)

	missing, err := repo.FindByIdAndUpdate(ctx, bson.NewObjectID(), bson.M{"price": 1})
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.UpdateById(ctx, bson.NewObjectID(), bson.M{"price": 1})
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)

	require.NoError(t, repo.UpdateById(ctx, first.ID, bson.M{"$inc": bson.M{"duration": 2}}))
	reloaded, err := repo.FindById(ctx, first.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Duration)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := newTestTourRepository()
	ctx := context.Background()

	tour, err := repo.Create(ctx, testTour{Name: "The Park Camper", Difficulty: "medium"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, testTour{Name: "The Sports Lover", Difficulty: "difficult"})
	require.NoError(t, err)

	exists, err := repo.Exists(ctx, tour.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	removed, err := repo.FindByIdAndDelete(ctx, tour.ID)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, "The Park Camper", removed.Name)

	removed, err = repo.FindByIdAndDelete(ctx, tour.ID)
	require.NoError(t, err)
	assert.Nil(t, removed)

	deleted, err := repo.DeleteMany(ctx, NewFilter().WithWhere(NewWhere().Eq("difficulty", "difficult")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryRepository_Include(t *testing.T) {
	repo := newTestTourRepository()
	ctx := context.Background()

	tour, err := repo.Create(ctx, testTour{Name: "The Wine Taster"})
	require.NoError(t, err)

	found, err := repo.FindById(ctx, tour.ID, NewFilter().Include("guides", nil))
	require.NoError(t, err)
	require.Len(t, found.Guides, 1)
	assert.Equal(t, "The Wine Taster guide", found.Guides[0].Name)

	_, err = repo.FindById(ctx, tour.ID, NewFilter().Include("bookings", nil))
	assert.Error(t, err)
}

func TestMemoryRepository_InvalidId(t *testing.T) {
	repo := newTestTourRepository()

	_, err := repo.FindById(context.Background(), "not-an-id", nil)
	require.Error(t, err)
	assert.Equal(t, "Invalid id: not-an-id.", err.Error())
}

func TestDatasource_Registration(t *testing.T) {
	ds := NewDatasource(NewMemoryConnector(""))

	repo, err := NewMemoryRepository[testTour](ds, RepositoryOptions{})
	require.NoError(t, err)

	_, err = NewMemoryRepository[testTour](ds, RepositoryOptions{})
	assert.Error(t, err, "a model can only be registered once")

	found, err := GetDatasourceModelRepository(ds, testTour{})
	require.NoError(t, err)
	assert.Same(t, repo, found)

	require.NoError(t, ds.Ping(context.Background()))
	require.NoError(t, ds.EnsureIndexes(context.Background()))
}
