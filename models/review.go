package models

import (
	"context"
	"time"

	"github.com/natours/tours-rest/database"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type Review struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Review    string        `bson:"review" json:"review" validate:"required" normalize:"trim" sanitize:"strict"`
	Rating    float64       `bson:"rating" json:"rating" validate:"required,min=1,max=5"`
	Tour      bson.ObjectID `bson:"tour" json:"tour" validate:"required"`
	User      bson.ObjectID `bson:"user" json:"user" validate:"required"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`
	Version   int           `bson:"__v" json:"-" filter:"fields=never"`

	Author *Author `bson:"-" json:"author,omitempty"`
}

// Author is the public part of the user who wrote a review.
type Author struct {
	ID    bson.ObjectID `json:"id"`
	Name  string        `json:"name"`
	Photo string        `json:"photo"`
}

func (Review) GetTableName() string     { return "reviews" }
func (Review) GetModelName() string     { return "Review" }
func (Review) GetConnectorName() string { return database.DefaultConnectorName }
func (r Review) GetId() any             { return r.ID }

// One review per user and tour.
func (Review) DefineMongoIndexes() []database.MongoIndexDefinition {
	return []database.MongoIndexDefinition{
		database.NewMongoCompoundIndex("tour_1_user_1", []database.IndexField{
			{Name: "tour", Order: 1},
			{Name: "user", Order: 1},
		}, true),
	}
}

func (r *Review) Relations() map[string]database.ModelRelation {
	return map[string]database.ModelRelation{
		"author": {
			Name: "author",
			Resolve: func(ctx context.Context, ds *database.Datasource) (any, error) {
				repo, err := database.GetDatasourceModelRepository(ds, User{})
				if err != nil {
					return nil, err
				}
				filter := database.NewFilter().Fields(map[string]bool{"name": true, "photo": true})
				user, err := repo.FindById(ctx, r.User, filter)
				if err != nil || user == nil {
					return (*Author)(nil), err
				}
				return &Author{ID: user.ID, Name: user.Name, Photo: user.Photo}, nil
			},
			Set: func(value any) error {
				r.Author = value.(*Author)
				return nil
			},
		},
	}
}
