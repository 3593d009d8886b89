package database

import (
	"context"
	"sync"

	"github.com/go-errors/errors"
)

// Connector is the contract every store connection fulfills.
type Connector interface {
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetName() string
	GetDatabaseName() string
	GetDriver() any
}

// Datasource keeps the registered connectors, models and repositories so that
// relations can reach the repository of another model.
type Datasource struct {
	mu                   sync.RWMutex
	connectors           map[string]Connector
	repositories         map[string]any
	models               map[string]IModel
	connectorByModelName map[string]Connector
}

func NewDatasource(connectors ...Connector) *Datasource {
	ds := &Datasource{
		connectors:           map[string]Connector{},
		repositories:         map[string]any{},
		models:               map[string]IModel{},
		connectorByModelName: map[string]Connector{},
	}
	for _, connector := range connectors {
		_ = ds.AddConnector(connector)
	}
	return ds
}

func (receiver *Datasource) AddConnector(connector Connector) error {
	if receiver == nil {
		return errors.New("datasource is nil")
	}
	if connector == nil {
		return errors.New("connector is nil")
	}

	receiver.mu.Lock()
	defer receiver.mu.Unlock()
	receiver.connectors[connector.GetName()] = connector
	return nil
}

// Ping checks every registered connector.
func (receiver *Datasource) Ping(ctx context.Context) error {
	receiver.mu.RLock()
	defer receiver.mu.RUnlock()

	for name, connector := range receiver.connectors {
		if err := connector.Ping(ctx); err != nil {
			return errors.Errorf("connector %s: %v", name, err)
		}
	}
	return nil
}

func (receiver *Datasource) Destroy(ctx context.Context) {
	receiver.mu.RLock()
	defer receiver.mu.RUnlock()

	for _, connector := range receiver.connectors {
		_ = connector.Disconnect(ctx)
	}
}

func (receiver *Datasource) RegisterModel(model IModel) error {
	if receiver == nil {
		return errors.New("datasource is nil")
	}

	connector, err := receiver.GetConnector(model.GetConnectorName())
	if err != nil {
		return err
	}

	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	modelName := model.GetModelName()
	if existing, ok := receiver.connectorByModelName[modelName]; ok {
		return errors.Errorf("the model %s is already registered with connector %s", modelName, existing.GetName())
	}

	receiver.models[modelName] = model
	receiver.connectorByModelName[modelName] = connector
	return nil
}

func (receiver *Datasource) GetModelConnector(model IModel) (Connector, error) {
	receiver.mu.RLock()
	defer receiver.mu.RUnlock()

	connector, ok := receiver.connectorByModelName[model.GetModelName()]
	if !ok {
		return nil, errors.Errorf("the model %s is not registered", model.GetModelName())
	}
	return connector, nil
}

func (receiver *Datasource) GetConnector(name string) (Connector, error) {
	if receiver == nil {
		return nil, errors.New("datasource is nil")
	}

	receiver.mu.RLock()
	defer receiver.mu.RUnlock()

	connector, ok := receiver.connectors[name]
	if !ok {
		return nil, errors.Errorf("the connector %s is not registered", name)
	}
	return connector, nil
}

func RegisterDatasourceRepository[T IModel](ds *Datasource, model T, repository Repository[T]) error {
	if ds == nil || repository == nil {
		return errors.New("datasource or repository cannot be nil")
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	modelName := model.GetModelName()
	if _, exists := ds.repositories[modelName]; exists {
		return errors.Errorf("a repository is already registered for model %s", modelName)
	}

	ds.repositories[modelName] = repository
	return nil
}

func GetDatasourceModelRepository[T IModel](ds *Datasource, model T) (Repository[T], error) {
	if ds == nil {
		return nil, errors.New("datasource is nil")
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	repository, ok := ds.repositories[model.GetModelName()]
	if !ok {
		return nil, errors.Errorf("no repository registered for model %s", model.GetModelName())
	}

	repo, ok := repository.(Repository[T])
	if !ok {
		return nil, errors.Errorf("the repository for model %s is not of the expected type", model.GetModelName())
	}
	return repo, nil
}

// EnsureIndexes creates the indexes declared by every model registered on a
// Mongo connector. Other connectors are skipped.
func (receiver *Datasource) EnsureIndexes(ctx context.Context) error {
	receiver.mu.RLock()
	models := make(map[string]IModel, len(receiver.models))
	for name, model := range receiver.models {
		models[name] = model
	}
	receiver.mu.RUnlock()

	for modelName, model := range models {
		connector, err := receiver.GetModelConnector(model)
		if err != nil {
			return err
		}

		mongoConnector, ok := connector.(*MongoConnector)
		if !ok {
			continue
		}

		if err := mongoConnector.GetIndexManager().EnsureIndexes(ctx, model); err != nil {
			return errors.Errorf("failed to ensure indexes for model %s: %v", modelName, err)
		}
	}

	return nil
}
