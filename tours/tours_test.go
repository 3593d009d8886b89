package tours

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	rest "github.com/natours/tours-rest"
	"github.com/natours/tours-rest/auth"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/mailer"
	"github.com/natours/tours-rest/metrics"
	"github.com/natours/tours-rest/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type apiEnv struct {
	app     *rest.RestApp
	auth    *auth.Service
	tours   *database.MemoryRepository[models.Tour]
	users   *database.MemoryRepository[models.User]
	reviews *database.MemoryRepository[models.Review]
}

func newAPIEnv(t *testing.T, limit rest.RateLimit) *apiEnv {
	t.Helper()

	ds := database.NewDatasource(database.NewMemoryConnector(""))
	opts := database.RepositoryOptions{Timestamps: true, Versioned: true}
	env := &apiEnv{}
	var err error
	env.users, err = database.NewMemoryRepository[models.User](ds, opts)
	require.NoError(t, err)
	env.tours, err = database.NewMemoryRepository[models.Tour](ds, opts)
	require.NoError(t, err)
	env.reviews, err = database.NewMemoryRepository[models.Review](ds, opts)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	env.auth = auth.NewService(env.users, mailer.New(mailer.NewLogTransport(nil)), collector, auth.Options{
		Secret:     "tours-test-secret",
		ExpiresIn:  time.Hour,
		BcryptCost: 4,
	})

	env.app = rest.NewRestApp(rest.RestAppOptions{
		Datasource: ds,
		Authorizer: env.auth.Authorizer(),
		Metrics:    collector,
	})
	require.NoError(t, Register(env.app, Deps{
		Tours:     env.tours,
		Users:     env.users,
		Reviews:   env.reviews,
		Auth:      env.auth,
		Features:  database.FeatureOptions{MaxLimit: 100},
		RateLimit: limit,
		Gatherer:  reg,
	}))
	return env
}

func (env *apiEnv) login(t *testing.T, name string, role models.Role) (models.User, string) {
	t.Helper()
	user, err := env.users.Create(context.Background(), models.User{
		Name:  name,
		Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Role:  role,
	})
	require.NoError(t, err)
	token, err := env.auth.SignToken(user.ID.Hex())
	require.NoError(t, err)
	return *user, token
}

func (env *apiEnv) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.app.EchoApp.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func dataDoc(body map[string]any) map[string]any {
	return body["data"].(map[string]any)["data"].(map[string]any)
}

const tourBody = `{"name":"The Forest Hiker","duration":5,"maxGroupSize":25,"difficulty":"easy","price":397,"summary":"Breathtaking hike through the Canadian Banff National Park","imageCover":"tour-1-cover.jpg"}`

func TestTourAdminRoutes(t *testing.T) {
	env := newAPIEnv(t, rest.RateLimit{})
	_, userToken := env.login(t, "Regular User", models.RoleUser)
	_, adminToken := env.login(t, "Admin User", models.RoleAdmin)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/tours", "", tourBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/v1/tours", userToken, tourBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You do not have permission to perform this action", body["message"])

	rec, body = env.do(t, http.MethodPost, "/api/v1/tours", adminToken, tourBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tour := dataDoc(body)
	assert.Equal(t, 4.5, tour["ratingsAverage"])

	rec, body = env.do(t, http.MethodPatch, "/api/v1/tours/"+tour["id"].(string), adminToken, `{"price":497,"ratingsQuantity":99}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 497.0, dataDoc(body)["price"])
	assert.Equal(t, 0.0, dataDoc(body)["ratingsQuantity"])

	rec, _ = env.do(t, http.MethodGet, "/api/v1/tours?difficulty=easy&price[lt]=500", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/api/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Can't find /api/v1/nope on this server!", body["message"])
}

func TestReviewsKeepTourRatingsInSync(t *testing.T) {
	env := newAPIEnv(t, rest.RateLimit{})
	ctx := context.Background()

	tour, err := env.tours.Create(ctx, models.Tour{Name: "The Sea Explorer", Price: 497})
	require.NoError(t, err)
	_, firstToken := env.login(t, "First Reviewer", models.RoleUser)
	second, secondToken := env.login(t, "Second Reviewer", models.RoleUser)
	_, adminToken := env.login(t, "Admin Reviewer", models.RoleAdmin)

	nested := "/api/v1/tours/" + tour.ID.Hex() + "/reviews"
	rec, body := env.do(t, http.MethodPost, nested, firstToken, `{"review":"Loved it","rating":4,"tour":"`+bson.NewObjectID().Hex()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, tour.ID.Hex(), dataDoc(body)["tour"], "the path wins over the body")

	rec, _ = env.do(t, http.MethodPost, nested, firstToken, `{"review":"Again","rating":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "one review per tour and user")

	rec, _ = env.do(t, http.MethodPost, nested, adminToken, `{"review":"Admin","rating":5}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/reviews", secondToken, `{"review":"Good","rating":5,"tour":"`+tour.ID.Hex()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	secondReview := dataDoc(body)
	assert.Equal(t, second.ID.Hex(), secondReview["user"])

	stored, err := env.tours.FindById(ctx, tour.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RatingsQuantity)
	assert.Equal(t, 4.5, stored.RatingsAverage)

	rec, body = env.do(t, http.MethodPatch, "/api/v1/reviews/"+secondReview["id"].(string), secondToken, `{"rating":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err = env.tours.FindById(ctx, tour.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.5, stored.RatingsAverage)

	rec, body = env.do(t, http.MethodGet, "/api/v1/tours/"+tour.ID.Hex(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	reviews := dataDoc(body)["reviews"].([]any)
	require.Len(t, reviews, 2)
	assert.NotNil(t, reviews[0].(map[string]any)["author"])

	rec, body = env.do(t, http.MethodGet, nested, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["results"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/tours/"+bson.NewObjectID().Hex()+"/reviews", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, body["results"])

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/reviews/"+secondReview["id"].(string), secondToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err = env.tours.FindById(ctx, tour.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RatingsQuantity)
	assert.Equal(t, 4.0, stored.RatingsAverage)
}

func TestListsIgnoreUnknownParams(t *testing.T) {
	env := newAPIEnv(t, rest.RateLimit{})
	ctx := context.Background()

	tour, err := env.tours.Create(ctx, models.Tour{Name: "The Snow Adventurer", Price: 997, Difficulty: "hard"})
	require.NoError(t, err)

	rec, body := env.do(t, http.MethodGet, "/api/v1/tours?utm_source=x", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1.0, body["results"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/tours?utm_source=x&utm_medium=y", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1.0, body["results"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/tours?utm_source=x&utm_medium=y&difficulty=easy", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0.0, body["results"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/tours/"+tour.ID.Hex()+"/reviews?foo=1&bar=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0.0, body["results"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/tours?page=184467440737095517&limit=100", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid page: 184467440737095517.", body["message"])
}

func TestRatingStatsWithoutReviews(t *testing.T) {
	env := newAPIEnv(t, rest.RateLimit{})
	calc := NewRatingCalculator(env.tours, env.reviews)

	stats, err := calc.Stats(context.Background(), bson.NewObjectID())
	require.NoError(t, err)
	assert.Equal(t, RatingStats{Average: models.DefaultRatingsAverage}, stats)

	assert.NoError(t, calc.Recalculate(context.Background(), bson.NewObjectID()), "a missing tour is skipped")
}

func TestMeEndpoints(t *testing.T) {
	env := newAPIEnv(t, rest.RateLimit{})
	user, token := env.login(t, "Jennifer Hardy", models.RoleUser)

	rec, body := env.do(t, http.MethodGet, "/api/v1/users/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, user.ID.Hex(), dataDoc(body)["id"])

	rec, body = env.do(t, http.MethodPatch, "/api/v1/users/updateMe", token, `{"password":"newpass123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgNotForPasswords, body["message"])

	rec, body = env.do(t, http.MethodPatch, "/api/v1/users/updateMe", token, `{"name":"Jen Hardy","role":"admin"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "Jen Hardy", updated["name"])
	assert.Equal(t, "user", updated["role"])

	rec, _ = env.do(t, http.MethodGet, "/api/v1/users", token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminUserRoutes(t *testing.T) {
	env := newAPIEnv(t, rest.RateLimit{})
	user, _ := env.login(t, "Managed User", models.RoleUser)
	_, adminToken := env.login(t, "Boss Admin", models.RoleAdmin)

	rec, body := env.do(t, http.MethodGet, "/api/v1/users?role=user", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1.0, body["results"])

	rec, body = env.do(t, http.MethodPatch, "/api/v1/users/"+user.ID.Hex(), adminToken, `{"role":"dba","password":"hacked"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "dba", dataDoc(body)["role"])

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/users/"+user.ID.Hex(), adminToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGlobalRateLimit(t *testing.T) {
	env := newAPIEnv(t, rest.RateLimit{Max: 2, Window: time.Hour})

	for i := 0; i < 2; i++ {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/tours", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := env.do(t, http.MethodGet, "/api/v1/tours", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests from this IP, please try again in an hour!", body["message"])

	rec, _ = env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "only /api is limited")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t, rest.RateLimit{})

	rec, body := env.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", body["data"].(map[string]any)["database"])

	env.do(t, http.MethodGet, "/api/v1/tours", "", "")
	rec, _ = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "natours_http_requests_total")
}
