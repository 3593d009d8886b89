// Package tours wires the tours, reviews and users routes of the API.
package tours

import (
	"github.com/labstack/echo/v4"
	rest "github.com/natours/tours-rest"
	"github.com/natours/tours-rest/auth"
	"github.com/natours/tours-rest/crud"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/metrics"
	"github.com/natours/tours-rest/models"
	"github.com/prometheus/client_golang/prometheus"
)

const APIPrefix = "/api/v1"

type Deps struct {
	Tours   database.Repository[models.Tour]
	Users   database.Repository[models.User]
	Reviews database.Repository[models.Review]
	Auth    *auth.Service

	Features database.FeatureOptions
	// RateLimit applies to every /api request per client IP.
	RateLimit rest.RateLimit
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

var (
	public     = &crud.Access{Public: true}
	adminsOnly = &crud.Access{Roles: []rest.EndpointRole{models.RoleAdmin}}
	usersOnly  = &crud.Access{Roles: []rest.EndpointRole{models.RoleUser}}
	reviewers  = &crud.Access{Roles: []rest.EndpointRole{models.RoleUser, models.RoleAdmin}}
)

// Register mounts every route on app.
func Register(app *rest.RestApp, deps Deps) error {
	ratings := NewRatingCalculator(deps.Tours, deps.Reviews)

	api := app.Group(APIPrefix, app.RateLimitMiddleware(deps.RateLimit))
	toursGroup := api.Group("/tours")
	reviewsGroup := api.Group("/reviews")
	usersGroup := api.Group("/users")

	tourHandlers := crud.New(deps.Tours, crud.Options[models.Tour]{
		Populate:  []string{"reviews"},
		Protected: []string{"ratingsQuantity", "ratingsAverage"},
		Features:  deps.Features,
	})

	reviewOpts := crud.Options[models.Review]{
		Populate:     []string{"author"},
		Protected:    []string{"tour", "user"},
		BeforeCreate: setReviewRefs,
		AfterWrite: func(ctx *rest.EndpointContext, _ crud.Event, review models.Review) error {
			return ratings.Recalculate(ctx.Context(), review.Tour)
		},
		Features: deps.Features,
	}
	reviewHandlers := crud.New(deps.Reviews, reviewOpts)

	nestedOpts := reviewOpts
	nestedOpts.ParentParam = "tourId"
	nestedOpts.ParentField = "tour"
	nestedReviewHandlers := crud.New(deps.Reviews, nestedOpts)

	userHandlers := crud.New(deps.Users, crud.Options[models.User]{
		Features: deps.Features,
	})

	groups := []struct {
		group     *echo.Group
		endpoints []*rest.Endpoint
	}{
		{toursGroup, tourHandlers.Endpoints("Tour", "", crud.Routes{
			List: public, Get: public, Create: adminsOnly, Update: adminsOnly, Delete: adminsOnly,
		})},
		{toursGroup, nestedReviewHandlers.Endpoints("Review", "/:tourId/reviews", crud.Routes{
			List: public, Create: usersOnly,
		})},
		{reviewsGroup, reviewHandlers.Endpoints("Review", "", crud.Routes{
			List: public, Get: public, Create: usersOnly, Update: reviewers, Delete: reviewers,
		})},
		{usersGroup, deps.Auth.Endpoints()},
		{usersGroup, meEndpoints(deps.Users)},
		{usersGroup, userHandlers.Endpoints("User", "", crud.Routes{
			List: adminsOnly, Get: adminsOnly, Update: adminsOnly, Delete: adminsOnly,
		})},
		{app.Group(""), []*rest.Endpoint{healthEndpoint()}},
	}

	for _, g := range groups {
		if err := app.RegisterEndpoints(g.endpoints, g.group); err != nil {
			return err
		}
	}

	if deps.Gatherer != nil {
		app.EchoApp.GET("/metrics", echo.WrapHandler(metrics.Handler(deps.Gatherer)))
	}
	return nil
}

// setReviewRefs takes the tour from the path when nested under a tour and
// the author from the logged in user.
func setReviewRefs(ctx *rest.EndpointContext, review *models.Review) error {
	if ctx.EchoCtx.Param("tourId") != "" {
		tourID, err := ctx.ObjectIDParam("tourId")
		if err != nil {
			return err
		}
		review.Tour = tourID
	}
	if user, ok := auth.UserFromContext(ctx); ok {
		review.User = user.ID
	}
	return nil
}
