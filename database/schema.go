package database

import (
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	DtObjectID = "ObjectID"
	DtDate     = "Date"
)

type FieldsOptions string

const (
	FieldsAlways FieldsOptions = "always" // Always include the field
	FieldsNever  FieldsOptions = "never"  // Never include the field
)

type FilterTags struct {
	Fields FieldsOptions
}

type FieldTags struct {
	Name      string
	OmitEmpty bool
	Inline    bool
	Skip      bool
}

type Field struct {
	FieldName string
	BsonName  string
	JsonName  string
	// DataType is "ObjectID", "Date" or the Go type name of the (element) type.
	DataType string
	// Kind is the reflect kind of the value, or of the element for lists.
	Kind       reflect.Kind
	IsPointer  bool
	IsList     bool
	FieldType  reflect.Type
	FilterTags FilterTags
}

type Schema struct {
	Model                IModel
	Name                 string
	CollectionName       string
	Fields               map[string]*Field // by Go field name, top level only
	JSONFields           map[string]*Field
	BSONFields           map[string]*Field
	RequiredFilterFields map[string]*Field
	BannedFields         map[string]*Field
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	objectIDType = reflect.TypeOf(bson.ObjectID{})
)

func NewSchema(model IModel) *Schema {
	schema := &Schema{
		Model:                model,
		Name:                 model.GetModelName(),
		CollectionName:       model.GetTableName(),
		Fields:               map[string]*Field{},
		JSONFields:           map[string]*Field{},
		BSONFields:           map[string]*Field{},
		RequiredFilterFields: map[string]*Field{},
		BannedFields:         map[string]*Field{},
	}

	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema.initFields(t, relationNames(t), "", "")
	return schema
}

// Lookup resolves a field by JSON name, then by BSON name. Dotted paths fall
// back to their closest known parent.
func (s *Schema) Lookup(name string) (*Field, bool) {
	if field, ok := lookupPath(name, s.JSONFields); ok {
		return field, true
	}
	return lookupPath(name, s.BSONFields)
}

func (s *Schema) initFields(t reflect.Type, relations map[string]bool, jsonParent, bsonParent string) {
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		bsonTags := parseFieldTags(sf, "bson")
		jsonTags := parseFieldTags(sf, "json")

		if bsonTags.Skip {
			// bson:"-" fields are either relations or transient values.
			continue
		}
		if relations[jsonTags.Name] {
			continue
		}

		topLevel := jsonParent == "" && bsonParent == ""
		field := &Field{
			FieldName:  sf.Name,
			BsonName:   joinPath(bsonParent, bsonTags.Name),
			FieldType:  sf.Type,
			FilterTags: parseFilterTags(sf),
		}
		if !jsonTags.Skip {
			field.JsonName = joinPath(jsonParent, jsonTags.Name)
		}

		valueType := sf.Type
		if valueType.Kind() == reflect.Ptr {
			valueType = valueType.Elem()
			field.IsPointer = true
		}
		if valueType.Kind() == reflect.Slice && valueType != reflect.TypeOf([]byte(nil)) {
			valueType = valueType.Elem()
			field.IsList = true
		}

		field.Kind = valueType.Kind()
		switch {
		case valueType == objectIDType:
			field.DataType = DtObjectID
		case valueType == timeType:
			field.DataType = DtDate
		default:
			field.DataType = valueType.Name()
		}

		if valueType.Kind() == reflect.Struct && bsonTags.Inline {
			s.initFields(valueType, nil, jsonParent, bsonParent)
			continue
		}

		s.addField(field, topLevel)

		if valueType.Kind() == reflect.Struct && field.DataType != DtDate {
			s.initFields(valueType, nil, field.JsonName, field.BsonName)
		}
	}
}

func (s *Schema) addField(field *Field, topLevel bool) {
	if topLevel {
		s.Fields[field.FieldName] = field

		switch field.FilterTags.Fields {
		case FieldsNever:
			s.BannedFields[field.FieldName] = field
		case FieldsAlways:
			s.RequiredFilterFields[field.FieldName] = field
		}
	}

	if field.JsonName != "" {
		s.JSONFields[field.JsonName] = field
	}
	s.BSONFields[field.BsonName] = field
}

// relationNames collects the relation keys of models implementing
// IRelationalModel so that their transient fields stay out of the schema.
func relationNames(t reflect.Type) map[string]bool {
	names := map[string]bool{}
	relationalType := reflect.TypeOf((*IRelationalModel)(nil)).Elem()

	ptr := reflect.New(t)
	if !ptr.Type().Implements(relationalType) {
		return names
	}

	for name := range ptr.Interface().(IRelationalModel).Relations() {
		names[name] = true
	}
	return names
}

func parseFieldTags(sf reflect.StructField, tagName string) FieldTags {
	tag, ok := sf.Tag.Lookup(tagName)
	if !ok {
		return FieldTags{Name: strings.ToLower(sf.Name)}
	}
	if tag == "-" {
		return FieldTags{Skip: true}
	}

	tags := FieldTags{Name: strings.ToLower(sf.Name)}
	for idx, part := range strings.Split(tag, ",") {
		if idx == 0 {
			if part != "" {
				tags.Name = part
			}
			continue
		}
		switch part {
		case "omitempty":
			tags.OmitEmpty = true
		case "inline":
			tags.Inline = true
		}
	}
	return tags
}

func parseFilterTags(sf reflect.StructField) FilterTags {
	tag, ok := sf.Tag.Lookup("filter")
	if !ok {
		return FilterTags{}
	}

	tags := FilterTags{}
	for _, part := range strings.Split(tag, ",") {
		key, value, found := strings.Cut(part, "=")
		if found && key == "fields" {
			tags.Fields = FieldsOptions(value)
		}
	}
	return tags
}

func lookupPath(name string, fields map[string]*Field) (*Field, bool) {
	if field, ok := fields[name]; ok {
		return field, true
	}

	for parent := name; ; {
		idx := strings.LastIndex(parent, ".")
		if idx == -1 {
			return nil, false
		}
		parent = parent[:idx]
		if field, ok := fields[parent]; ok {
			return field, true
		}
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
