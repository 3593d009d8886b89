package database

import (
	"context"
	"time"

	"github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

const DefaultConnectorName = "mongodb"

type MongoConnectorOpts struct {
	URI            string
	Name           string
	Database       string
	ConnectTimeout time.Duration
}

type MongoConnector struct {
	client       *mongo.Client
	options      MongoConnectorOpts
	indexManager *MongoIndexManager
}

// NewMongoConnector connects to MongoDB and checks the connection. When no
// database is given, the one in the URI is used, then "natours".
func NewMongoConnector(ctx context.Context, opts MongoConnectorOpts) (*MongoConnector, error) {
	if opts.Name == "" {
		opts.Name = DefaultConnectorName
	}

	if opts.Database == "" {
		conn, err := connstring.Parse(opts.URI)
		if err != nil {
			return nil, errors.Errorf("invalid mongo uri: %v", err)
		}
		opts.Database = conn.Database
	}
	if opts.Database == "" {
		opts.Database = "natours"
	}

	clientOptions := options.Client().ApplyURI(opts.URI)
	if opts.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(opts.ConnectTimeout)
	}

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, err
	}

	connector := &MongoConnector{
		client:  client,
		options: opts,
	}
	connector.indexManager = NewMongoIndexManager(connector)

	if err := connector.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return connector, nil
}

func (receiver *MongoConnector) Ping(ctx context.Context) error {
	if receiver.client == nil {
		return errors.New(MONGO_CLIENT_NOT_INITIALIZED)
	}
	return receiver.client.Ping(ctx, nil)
}

func (receiver *MongoConnector) Disconnect(ctx context.Context) error {
	if receiver.client == nil {
		return errors.New(MONGO_CLIENT_NOT_INITIALIZED)
	}
	return receiver.client.Disconnect(ctx)
}

func (receiver *MongoConnector) GetDriver() any {
	return receiver.client
}

func (receiver *MongoConnector) GetName() string {
	return receiver.options.Name
}

func (receiver *MongoConnector) GetDatabaseName() string {
	return receiver.options.Database
}

func (receiver *MongoConnector) GetIndexManager() *MongoIndexManager {
	return receiver.indexManager
}

func (receiver *MongoConnector) collection(name string) *mongo.Collection {
	return receiver.client.Database(receiver.options.Database).Collection(name)
}
