package rest

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"sync"
)

// Validable bodies validate themselves instead of relying on validate tags.
type Validable interface {
	Validate(ctx *EndpointContext) error
}

// Sanitizeable bodies sanitize themselves instead of relying on sanitize tags.
type Sanitizeable interface {
	Sanitize(ctx *EndpointContext) error
}

// Normalizeable bodies normalize themselves instead of relying on normalize tags.
type Normalizeable interface {
	Normalize(ctx *EndpointContext) error
}

var operatorsMu sync.RWMutex

func registerProcessor(kind, name string, fn fieldProcessorFunc) error {
	if fn == nil {
		return errors.New(kind + " function cannot be nil")
	}

	operatorsMu.Lock()
	defer operatorsMu.Unlock()

	if _, exists := operators[kind][name]; exists {
		return errors.New(kind + " " + name + " already exists")
	}
	operators[kind][name] = fn
	return nil
}

// RegisterBodyNormalizer adds a normalizer usable in normalize tags. It must
// be called before the first body using the tag is processed.
func RegisterBodyNormalizer(name string, fn fieldProcessorFunc) error {
	return registerProcessor("normalize", name, fn)
}

// RegisterBodySanitizer adds a sanitizer usable in sanitize tags.
func RegisterBodySanitizer(name string, fn fieldProcessorFunc) error {
	return registerProcessor("sanitize", name, fn)
}

func GetBodyNormalizers() map[string]fieldProcessorFunc {
	operatorsMu.RLock()
	defer operatorsMu.RUnlock()
	return maps.Clone(operators["normalize"])
}

func GetBodySanitizers() map[string]fieldProcessorFunc {
	operatorsMu.RLock()
	defer operatorsMu.RUnlock()
	return maps.Clone(operators["sanitize"])
}

func lookupProcessor(kind, name string) (fieldProcessorFunc, bool) {
	operatorsMu.RLock()
	defer operatorsMu.RUnlock()
	fn, ok := operators[kind][name]
	return fn, ok
}

func validateAny(ctx *EndpointContext, val any) error {
	if val == nil {
		return errors.New("cannot validate nil value")
	}

	if v, ok := val.(Validable); ok {
		return v.Validate(ctx)
	}

	if isValidable(val) {
		return ctx.ValidateStruct(val)
	}

	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := validateAny(ctx, rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("validation error at index %d: %w", i, err)
			}
		}
	case reflect.Map:
		for _, key := range rv.MapKeys() {
			if err := validateAny(ctx, rv.MapIndex(key).Interface()); err != nil {
				return fmt.Errorf("validation error at key %v: %w", key, err)
			}
		}
	}

	return nil
}

func isValidable(val any) bool {
	rt := reflect.TypeOf(val)
	if rt == nil {
		return false
	}
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return false
	}

	meta, err := structMetadata(rt)
	if err != nil {
		return false
	}
	return meta.hasValidate
}
