package rest

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// bodyStructFieldsCache holds the processors of every body type seen so far.
var bodyStructFieldsCache sync.Map

type fieldProcessorFunc func(reflect.Value)

type tagProcessors struct {
	funcs []fieldProcessorFunc
	dive  bool
}

type cachedStructField struct {
	index     []int
	name      string
	normalize *tagProcessors
	sanitize  *tagProcessors
}

type cachedBodyStructMetadata struct {
	fields      []cachedStructField
	hasValidate bool
}

var operators = map[string]map[string]fieldProcessorFunc{
	"normalize": {
		"trim":      trimNormalizer,
		"lowercase": lowercaseNormalizer,
		"uppercase": uppercaseNormalizer,
		"unaccent":  unaccentNormalizer,
		"unicode":   unicodeNormalizer,
		"squash":    squashNormalizer,
	},
	"sanitize": {
		"html":         htmlSanitizer,
		"strict":       strictSanitizer,
		"alphanumeric": alphanumericSanitizer,
		"numeric":      numericSanitizer,
	},
}

var (
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

func parseTag(tag string) []string {
	var result []string
	for _, part := range strings.Split(tag, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func buildTagProcessors(kind string, sf reflect.StructField) (*tagProcessors, error) {
	tag := sf.Tag.Get(kind)
	if tag == "" {
		return nil, nil
	}

	tags := parseTag(tag)
	processors := &tagProcessors{dive: slices.Contains(tags, "dive")}
	if processors.dive && !isDiveable(sf.Type) {
		return nil, fmt.Errorf("field %s is marked with 'dive' but is not diveable", sf.Name)
	}

	for _, name := range tags {
		if name == "dive" {
			continue
		}
		fn, ok := lookupProcessor(kind, name)
		if !ok {
			return nil, fmt.Errorf("field %s uses unknown %s %q", sf.Name, kind, name)
		}
		processors.funcs = append(processors.funcs, fn)
	}
	return processors, nil
}

func buildStructFields(t reflect.Type) (cachedBodyStructMetadata, error) {
	var meta cachedBodyStructMetadata

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}

		if sf.Tag.Get("validate") != "" {
			meta.hasValidate = true
		}

		normalize, err := buildTagProcessors("normalize", sf)
		if err != nil {
			return cachedBodyStructMetadata{}, err
		}
		sanitize, err := buildTagProcessors("sanitize", sf)
		if err != nil {
			return cachedBodyStructMetadata{}, err
		}

		// Embedded structs are processed with the fields of their parent.
		if normalize == nil && sanitize == nil && !(sf.Anonymous && isStruct(sf.Type)) {
			continue
		}

		meta.fields = append(meta.fields, cachedStructField{
			index:     []int{i},
			name:      sf.Name,
			normalize: normalize,
			sanitize:  sanitize,
		})
	}

	return meta, nil
}

func structMetadata(rt reflect.Type) (cachedBodyStructMetadata, error) {
	if cached, ok := bodyStructFieldsCache.Load(rt); ok {
		return cached.(cachedBodyStructMetadata), nil
	}

	meta, err := buildStructFields(rt)
	if err != nil {
		return cachedBodyStructMetadata{}, err
	}
	bodyStructFieldsCache.Store(rt, meta)
	return meta, nil
}

// processStruct applies the processors named in the operator tag (normalize
// or sanitize) to a pointer to a struct. Fields tagged with dive are walked
// element by element. Other values are left untouched.
func processStruct(v any, operator string) error {
	if v == nil {
		return nil
	}
	if _, ok := operators[operator]; !ok {
		return errors.New("invalid operator: " + operator)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("expected a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return errors.New("expected a struct, got: " + rv.Kind().String())
	}

	meta, err := structMetadata(rv.Type())
	if err != nil {
		return err
	}

	for _, fs := range meta.fields {
		fv := rv.FieldByIndex(fs.index)
		if !fv.IsValid() || !fv.CanSet() {
			continue
		}

		processors := fs.normalize
		if operator == "sanitize" {
			processors = fs.sanitize
		}

		if processors == nil {
			// embedded struct
			if err := applyProcessors(fv, nil, operator); err != nil {
				return fmt.Errorf("error processing field '%s': %w", fs.name, err)
			}
			continue
		}

		if !processors.dive {
			if err := applyProcessors(fv, processors.funcs, operator); err != nil {
				return fmt.Errorf("error processing field '%s': %w", fs.name, err)
			}
			continue
		}

		if err := diveInto(fv, processors.funcs, operator); err != nil {
			return fmt.Errorf("error processing field '%s': %w", fs.name, err)
		}
	}

	return nil
}

func diveInto(fv reflect.Value, funcs []fieldProcessorFunc, operator string) error {
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return nil
		}
		fv = fv.Elem()
	}

	switch fv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < fv.Len(); i++ {
			if err := applyProcessors(fv.Index(i), funcs, operator); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
	case reflect.Map:
		for _, key := range fv.MapKeys() {
			val := fv.MapIndex(key)
			if val.Kind() == reflect.Ptr {
				if err := applyProcessors(val, funcs, operator); err != nil {
					return fmt.Errorf("key %v: %w", key, err)
				}
				continue
			}
			// map values are not addressable
			valCopy := reflect.New(val.Type()).Elem()
			valCopy.Set(val)
			if err := applyProcessors(valCopy, funcs, operator); err != nil {
				return fmt.Errorf("key %v: %w", key, err)
			}
			fv.SetMapIndex(key, valCopy)
		}
	case reflect.Struct:
		return applyProcessors(fv, nil, operator)
	}
	return nil
}

func applyProcessors(v reflect.Value, funcs []fieldProcessorFunc, operator string) error {
	if !v.IsValid() {
		return nil
	}

	if v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Kind() == reflect.Struct {
		v = v.Elem()
	}

	if v.Kind() == reflect.Struct {
		if !v.CanAddr() {
			return nil
		}
		return processStruct(v.Addr().Interface(), operator)
	}

	for _, fn := range funcs {
		fn(v)
	}
	return nil
}

func processStringValue(v reflect.Value, transform func(string) string) {
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(transform(v.String()))
		}
	case reflect.Ptr:
		if !v.IsNil() && v.Elem().Kind() == reflect.String {
			v.Elem().SetString(transform(v.Elem().String()))
		}
	}
}

// htmlSanitizer keeps user generated content markup and drops the rest.
func htmlSanitizer(v reflect.Value) {
	processStringValue(v, ugcPolicy.Sanitize)
}

// strictSanitizer removes every tag.
func strictSanitizer(v reflect.Value) {
	processStringValue(v, strictPolicy.Sanitize)
}

func alphanumericSanitizer(v reflect.Value) {
	processStringValue(v, func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, s)
	})
}

func numericSanitizer(v reflect.Value) {
	processStringValue(v, func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, s)
	})
}

func trimNormalizer(v reflect.Value) {
	processStringValue(v, strings.TrimSpace)
}

// squashNormalizer collapses runs of whitespace into a single space.
func squashNormalizer(v reflect.Value) {
	processStringValue(v, func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	})
}

func lowercaseNormalizer(v reflect.Value) {
	processStringValue(v, strings.ToLower)
}

func uppercaseNormalizer(v reflect.Value) {
	processStringValue(v, strings.ToUpper)
}

func unaccentNormalizer(v reflect.Value) {
	processStringValue(v, removeDiacritics)
}

// unicodeNormalizer normalizes strings to NFC.
func unicodeNormalizer(v reflect.Value) {
	processStringValue(v, norm.NFC.String)
}

func removeDiacritics(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

func isStruct(v reflect.Type) bool {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v.Kind() == reflect.Struct
}

func isDiveable(v reflect.Type) bool {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}
