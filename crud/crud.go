// Package crud builds the list, get, create, update and delete handlers of a
// resource from its repository.
package crud

import (
	"context"
	"io"
	"net/http"
	"reflect"

	"github.com/bytedance/sonic"
	rest "github.com/natours/tours-rest"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	msgNotFound      = "No document found with that ID"
	msgNothingToSave = "Invalid input data. No updatable fields provided."
	msgMalformedBody = "Invalid input data. Malformed request body."
)

// Resource is what the handlers need from a store. database.Repository
// satisfies it.
type Resource[T database.IModel] interface {
	Create(ctx context.Context, doc T) (*T, error)
	Find(ctx context.Context, filter *database.FilterBuilder) ([]T, error)
	FindById(ctx context.Context, id any, filter *database.FilterBuilder) (*T, error)
	FindByIdAndUpdate(ctx context.Context, id any, update any) (*T, error)
	FindByIdAndDelete(ctx context.Context, id any) (*T, error)
}

type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

type Options[T database.IModel] struct {
	// Populate lists the relations expanded by the get handler.
	Populate []string
	// ParentParam scopes lists to the ParentField value taken from that path
	// param, e.g. tourId scoping reviews by tour.
	ParentParam string
	ParentField string
	// Protected names json fields that updates cannot change. The id,
	// timestamps and version key are always protected.
	Protected []string
	// BeforeCreate runs after binding and before validation.
	BeforeCreate func(ctx *rest.EndpointContext, doc *T) error
	// AfterWrite runs after a successful create, update or delete.
	AfterWrite func(ctx *rest.EndpointContext, event Event, doc T) error
	Features   database.FeatureOptions
}

type Handlers[T database.IModel] struct {
	resource  Resource[T]
	opts      Options[T]
	schema    *database.Schema
	protected map[string]bool
}

var alwaysProtected = []string{"id", "_id", database.CREATED_AT, database.UPDATED_AT, database.VersionKey}

func New[T database.IModel](resource Resource[T], opts Options[T]) *Handlers[T] {
	var instance T

	protected := map[string]bool{}
	for _, name := range append(alwaysProtected, opts.Protected...) {
		protected[name] = true
	}

	return &Handlers[T]{
		resource:  resource,
		opts:      opts,
		schema:    database.NewSchema(instance),
		protected: protected,
	}
}

func (h *Handlers[T]) Create(ctx *rest.EndpointContext) error {
	var doc T
	if err := ctx.Bind(&doc); err != nil {
		return err
	}
	h.clearProtected(&doc)

	if h.opts.BeforeCreate != nil {
		if err := h.opts.BeforeCreate(ctx, &doc); err != nil {
			return err
		}
	}
	if err := ctx.ValidateStruct(&doc); err != nil {
		return err
	}

	created, err := h.resource.Create(ctx.Context(), doc)
	if err != nil {
		return err
	}
	if err := h.afterWrite(ctx, EventCreate, *created); err != nil {
		return err
	}

	return ctx.RespondAndLog(rest.DocumentEnvelope(created), (*created).GetId(), rest.ResponseTypeJSON, http.StatusCreated)
}

func (h *Handlers[T]) List(ctx *rest.EndpointContext) error {
	base := database.NewFilter()
	if h.opts.ParentParam != "" {
		parentID, err := ctx.ObjectIDParam(h.opts.ParentParam)
		if err != nil {
			return err
		}
		base.WithWhere(database.NewWhere().Eq(h.opts.ParentField, parentID))
	}

	filter := database.NewAPIFeatures(base, ctx.QueryValues(), h.opts.Features).Apply()
	docs, err := h.resource.Find(ctx.Context(), filter)
	if err != nil {
		return err
	}

	return ctx.RespondAndLog(rest.ListEnvelope(docs), nil, rest.ResponseTypeJSON)
}

func (h *Handlers[T]) Get(ctx *rest.EndpointContext) error {
	id, err := ctx.ObjectIDParam("id")
	if err != nil {
		return err
	}

	filter := database.NewFilter()
	for _, relation := range h.opts.Populate {
		filter.Include(relation, nil)
	}

	doc, err := h.resource.FindById(ctx.Context(), id, filter)
	if err != nil {
		return err
	}
	if doc == nil {
		return http_errors.NotFoundError(msgNotFound)
	}

	return ctx.RespondAndLog(rest.DocumentEnvelope(doc), id, rest.ResponseTypeJSON)
}

// Update applies a partial update. Only the fields present in the body are
// validated and stored.
func (h *Handlers[T]) Update(ctx *rest.EndpointContext) error {
	id, err := ctx.ObjectIDParam("id")
	if err != nil {
		return err
	}

	set, err := h.partialUpdate(ctx)
	if err != nil {
		return err
	}

	updated, err := h.resource.FindByIdAndUpdate(ctx.Context(), id, bson.M{database.SET: set})
	if err != nil {
		return err
	}
	if updated == nil {
		return http_errors.NotFoundError(msgNotFound)
	}
	if err := h.afterWrite(ctx, EventUpdate, *updated); err != nil {
		return err
	}

	return ctx.RespondAndLog(rest.DocumentEnvelope(updated), id, rest.ResponseTypeJSON)
}

func (h *Handlers[T]) Delete(ctx *rest.EndpointContext) error {
	id, err := ctx.ObjectIDParam("id")
	if err != nil {
		return err
	}

	removed, err := h.resource.FindByIdAndDelete(ctx.Context(), id)
	if err != nil {
		return err
	}
	if removed == nil {
		return http_errors.NotFoundError(msgNotFound)
	}
	if err := h.afterWrite(ctx, EventDelete, *removed); err != nil {
		return err
	}

	return ctx.RespondAndLog(rest.EmptyEnvelope(), id, rest.ResponseTypeJSON)
}

func (h *Handlers[T]) afterWrite(ctx *rest.EndpointContext, event Event, doc T) error {
	if h.opts.AfterWrite == nil {
		return nil
	}
	return h.opts.AfterWrite(ctx, event, doc)
}

// partialUpdate decodes the body twice: into a map to learn which fields were
// sent, and into T to get typed, normalized values for them.
func (h *Handlers[T]) partialUpdate(ctx *rest.EndpointContext) (bson.M, error) {
	raw, err := io.ReadAll(ctx.EchoCtx.Request().Body)
	if err != nil {
		return nil, http_errors.ValidationError(msgMalformedBody).WithCause(err)
	}

	var provided map[string]any
	if err := sonic.Unmarshal(raw, &provided); err != nil {
		return nil, http_errors.ValidationError(msgMalformedBody).WithCause(err)
	}

	var doc T
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, http_errors.ValidationError(msgMalformedBody).WithCause(err)
	}
	if err := ctx.NormalizeStruct(&doc); err != nil {
		return nil, err
	}
	if err := ctx.SanitizeStruct(&doc); err != nil {
		return nil, err
	}

	value := reflect.ValueOf(doc)
	set := bson.M{}
	var fields []string
	for name := range provided {
		if h.protected[name] {
			continue
		}
		// Only json names are writable. Fields hidden from json cannot be set.
		field, ok := h.schema.JSONFields[name]
		if !ok || field.BsonName == "" {
			continue
		}
		set[field.BsonName] = value.FieldByName(field.FieldName).Interface()
		fields = append(fields, field.FieldName)
	}

	if len(set) == 0 {
		return nil, http_errors.ValidationError(msgNothingToSave)
	}
	if err := ctx.ValidatePartial(&doc, fields...); err != nil {
		return nil, err
	}
	return set, nil
}

// clearProtected zeroes the id, timestamps and version key sent on create.
// Route protected fields may still be set on create.
func (h *Handlers[T]) clearProtected(doc *T) {
	value := reflect.ValueOf(doc).Elem()
	for _, name := range alwaysProtected {
		field, ok := h.schema.JSONFields[name]
		if !ok {
			continue
		}
		target := value.FieldByName(field.FieldName)
		if target.IsValid() && target.CanSet() {
			target.Set(reflect.Zero(target.Type()))
		}
	}
}

// Access says who may call a generated endpoint.
type Access struct {
	Public bool
	Roles  []rest.EndpointRole
}

// Routes selects the endpoints to generate. A nil entry is not exposed.
type Routes struct {
	List   *Access
	Get    *Access
	Create *Access
	Update *Access
	Delete *Access
}

// Endpoints builds rest endpoints under basePath. Single document routes
// append /:id.
func (h *Handlers[T]) Endpoints(model, basePath string, routes Routes) []*rest.Endpoint {
	var endpoints []*rest.Endpoint
	idPath := basePath + "/:id"
	idParam := rest.NewPathParam("id", rest.PathParamTypeObjectID)

	var parent []rest.Param
	if h.opts.ParentParam != "" {
		parent = append(parent, rest.NewPathParam(h.opts.ParentParam, rest.PathParamTypeObjectID))
	}

	add := func(access *Access, name string, method rest.EndpointMethod, path string, action rest.ActionType, accepts []rest.Param, handler func(*rest.EndpointContext) error) {
		if access == nil {
			return
		}
		endpoints = append(endpoints, &rest.Endpoint{
			Name:       name + model,
			Method:     method,
			Path:       path,
			Public:     access.Public,
			Roles:      access.Roles,
			ActionType: action,
			Model:      model,
			Accepts:    accepts,
			Handler:    handler,
		})
	}

	withID := append(append([]rest.Param{}, parent...), idParam)
	add(routes.List, "List", rest.MethodGET, basePath, rest.ActionTypeRead, parent, h.List)
	add(routes.Create, "Create", rest.MethodPOST, basePath, rest.ActionTypeCreate, parent, h.Create)
	add(routes.Get, "Get", rest.MethodGET, idPath, rest.ActionTypeRead, withID, h.Get)
	add(routes.Update, "Update", rest.MethodPATCH, idPath, rest.ActionTypeUpdate, withID, h.Update)
	add(routes.Delete, "Delete", rest.MethodDELETE, idPath, rest.ActionTypeDelete, withID, h.Delete)

	return endpoints
}
