package models

import (
	"context"
	"time"

	"github.com/natours/tours-rest/database"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const DefaultRatingsAverage = 4.5

type Tour struct {
	ID              bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string        `bson:"name" json:"name" validate:"required,min=10,max=40" normalize:"trim,squash" sanitize:"strict"`
	Duration        int           `bson:"duration" json:"duration" validate:"required,gt=0"`
	MaxGroupSize    int           `bson:"maxGroupSize" json:"maxGroupSize" validate:"required,gt=0"`
	Difficulty      string        `bson:"difficulty" json:"difficulty" validate:"required,oneof=easy medium hard" normalize:"trim,lowercase"`
	RatingsAverage  float64       `bson:"ratingsAverage" json:"ratingsAverage" validate:"omitempty,min=1,max=5"`
	RatingsQuantity int           `bson:"ratingsQuantity" json:"ratingsQuantity" validate:"omitempty,min=0"`
	Price           float64       `bson:"price" json:"price" validate:"required,gt=0"`
	PriceDiscount   float64       `bson:"priceDiscount,omitempty" json:"priceDiscount,omitempty" validate:"omitempty,gt=0,ltfield=Price"`
	Summary         string        `bson:"summary" json:"summary" validate:"required" normalize:"trim" sanitize:"strict"`
	Description     string        `bson:"description" json:"description" normalize:"trim" sanitize:"html"`
	ImageCover      string        `bson:"imageCover" json:"imageCover" validate:"required" normalize:"trim"`
	Images          []string      `bson:"images" json:"images"`
	StartDates      []time.Time   `bson:"startDates" json:"startDates"`
	CreatedAt       time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt" json:"updatedAt"`
	Version         int           `bson:"__v" json:"-" filter:"fields=never"`

	Reviews []Review `bson:"-" json:"reviews,omitempty"`
}

func (Tour) GetTableName() string     { return "tours" }
func (Tour) GetModelName() string     { return "Tour" }
func (Tour) GetConnectorName() string { return database.DefaultConnectorName }
func (t Tour) GetId() any             { return t.ID }

func (t *Tour) BeforeCreate() error {
	if t.RatingsAverage == 0 {
		t.RatingsAverage = DefaultRatingsAverage
	}
	if t.Images == nil {
		t.Images = []string{}
	}
	if t.StartDates == nil {
		t.StartDates = []time.Time{}
	}
	return nil
}

func (Tour) DefineMongoIndexes() []database.MongoIndexDefinition {
	return []database.MongoIndexDefinition{
		database.NewMongoSimpleIndex("name", true),
		database.NewMongoCompoundIndex("price_1_ratingsAverage_-1", []database.IndexField{
			{Name: "price", Order: 1},
			{Name: "ratingsAverage", Order: -1},
		}, false),
	}
}

func (t *Tour) Relations() map[string]database.ModelRelation {
	return map[string]database.ModelRelation{
		"reviews": {
			Name:   "reviews",
			IsList: true,
			Resolve: func(ctx context.Context, ds *database.Datasource) (any, error) {
				repo, err := database.GetDatasourceModelRepository(ds, Review{})
				if err != nil {
					return nil, err
				}
				filter := database.NewFilter().
					WithWhere(database.NewWhere().Eq("tour", t.ID)).
					Include("author", nil)
				return repo.Find(ctx, filter)
			},
			Set: func(value any) error {
				t.Reviews = value.([]Review)
				return nil
			},
		},
	}
}
