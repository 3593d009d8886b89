package tours

import (
	"context"
	"math"

	"github.com/go-errors/errors"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// RatingStats summarizes the reviews of one tour.
type RatingStats struct {
	Quantity int     `bson:"nRating"`
	Average  float64 `bson:"avgRating"`
}

// aggregator is implemented by stores that can run a pipeline server side.
type aggregator interface {
	Aggregate(ctx context.Context, pipeline bson.A, out any) error
}

// RatingCalculator keeps ratingsAverage and ratingsQuantity of tours in sync
// with their reviews.
type RatingCalculator struct {
	tours   database.Repository[models.Tour]
	reviews database.Repository[models.Review]
}

func NewRatingCalculator(tours database.Repository[models.Tour], reviews database.Repository[models.Review]) *RatingCalculator {
	return &RatingCalculator{tours: tours, reviews: reviews}
}

// Stats computes the rating stats of a tour. A tour without reviews gets the
// default average.
func (r *RatingCalculator) Stats(ctx context.Context, tourID bson.ObjectID) (RatingStats, error) {
	var stats RatingStats
	var err error
	if agg, ok := r.reviews.(aggregator); ok {
		stats, err = r.aggregate(ctx, agg, tourID)
	} else {
		stats, err = r.scan(ctx, tourID)
	}
	if err != nil {
		return RatingStats{}, err
	}

	if stats.Quantity == 0 {
		return RatingStats{Average: models.DefaultRatingsAverage}, nil
	}
	stats.Average = math.Round(stats.Average*10) / 10
	return stats, nil
}

func (r *RatingCalculator) aggregate(ctx context.Context, agg aggregator, tourID bson.ObjectID) (RatingStats, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"tour": tourID}},
		bson.M{"$group": bson.M{
			"_id":       "$tour",
			"nRating":   bson.M{"$sum": 1},
			"avgRating": bson.M{"$avg": "$rating"},
		}},
	}

	var results []RatingStats
	if err := agg.Aggregate(ctx, pipeline, &results); err != nil {
		return RatingStats{}, err
	}
	if len(results) == 0 {
		return RatingStats{}, nil
	}
	return results[0], nil
}

func (r *RatingCalculator) scan(ctx context.Context, tourID bson.ObjectID) (RatingStats, error) {
	reviews, err := r.reviews.Find(ctx, database.NewFilter().
		WithWhere(database.NewWhere().Eq("tour", tourID)).
		Fields(map[string]bool{"rating": true}))
	if err != nil {
		return RatingStats{}, err
	}

	var stats RatingStats
	var sum float64
	for _, review := range reviews {
		sum += review.Rating
		stats.Quantity++
	}
	if stats.Quantity > 0 {
		stats.Average = sum / float64(stats.Quantity)
	}
	return stats, nil
}

// Recalculate stores fresh rating stats on the tour. A tour that no longer
// exists is skipped.
func (r *RatingCalculator) Recalculate(ctx context.Context, tourID bson.ObjectID) error {
	stats, err := r.Stats(ctx, tourID)
	if err != nil {
		return err
	}

	err = r.tours.UpdateById(ctx, tourID, bson.M{
		database.SET: bson.M{"ratingsQuantity": stats.Quantity, "ratingsAverage": stats.Average},
	})
	var httpErr *http_errors.ErrorResponse
	if errors.As(err, &httpErr) && httpErr.Kind == http_errors.KindNotFound {
		return nil
	}
	return err
}
