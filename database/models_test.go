package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type testTour struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string        `bson:"name" json:"name"`
	Price          float64       `bson:"price" json:"price"`
	Duration       int           `bson:"duration" json:"duration"`
	Difficulty     string        `bson:"difficulty" json:"difficulty"`
	Secret         bool          `bson:"secretTour" json:"secretTour" filter:"fields=never"`
	StartDates     []time.Time   `bson:"startDates" json:"startDates"`
	Location       testLocation  `bson:"startLocation" json:"startLocation"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt" json:"updatedAt"`
	Version        int           `bson:"__v" json:"-" filter:"fields=never"`
	Guides         []testGuide   `bson:"-" json:"guides,omitempty"`
}

type testLocation struct {
	Description string `bson:"description" json:"description"`
}

type testGuide struct {
	ID   bson.ObjectID `bson:"_id" json:"id"`
	Name string        `bson:"name" json:"name"`
}

func (testTour) GetTableName() string     { return "tours" }
func (testTour) GetModelName() string     { return "Tour" }
func (testTour) GetConnectorName() string { return DefaultConnectorName }
func (t testTour) GetId() any             { return t.ID }

func (testTour) DefineMongoIndexes() []MongoIndexDefinition {
	return []MongoIndexDefinition{
		NewMongoSimpleIndex("name", true),
		NewMongoCompoundIndex("price_1_duration_-1", []IndexField{{Name: "price", Order: 1}, {Name: "duration", Order: -1}}, false),
	}
}

func (t *testTour) Relations() map[string]ModelRelation {
	return map[string]ModelRelation{
		"guides": {
			Name:   "guides",
			IsList: true,
			Resolve: func(ctx context.Context, ds *Datasource) (any, error) {
				return []testGuide{{ID: t.ID, Name: t.Name + " guide"}}, nil
			},
			Set: func(value any) error {
				t.Guides = value.([]testGuide)
				return nil
			},
		},
	}
}

func newTestTourRepository() *MemoryRepository[testTour] {
	ds := NewDatasource(NewMemoryConnector(""))
	repo, err := NewMemoryRepository[testTour](ds, RepositoryOptions{Timestamps: true, Versioned: true})
	if err != nil {
		panic(err)
	}
	return repo
}
