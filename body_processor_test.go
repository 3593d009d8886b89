package rest

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type guideBody struct {
	Name  string `json:"name" normalize:"trim,squash" sanitize:"strict" validate:"required,min=2"`
	Email string `json:"email" normalize:"trim,lowercase" validate:"omitempty,email"`
}

type tourBody struct {
	Name        string            `json:"name" normalize:"trim,squash" validate:"required"`
	Slug        string            `json:"slug" normalize:"trim,unaccent,lowercase" sanitize:"alphanumeric"`
	Description string            `json:"description" sanitize:"html"`
	Phone       string            `json:"phone" sanitize:"numeric"`
	Code        *string           `json:"code" normalize:"uppercase"`
	Lead        guideBody         `json:"lead" normalize:"dive"`
	Guides      []guideBody       `json:"guides" normalize:"dive" sanitize:"dive" validate:"dive"`
	Tags        []string          `json:"tags" normalize:"dive,trim,lowercase"`
	Labels      map[string]string `json:"labels" sanitize:"dive,strict"`
	secret      string
}

type selfProcessingBody struct {
	Name string `json:"name" normalize:"uppercase"`
}

func (b *selfProcessingBody) Normalize(*EndpointContext) error {
	b.Name = "normalized " + b.Name
	return nil
}

func (b *selfProcessingBody) Sanitize(*EndpointContext) error {
	b.Name = strings.ReplaceAll(b.Name, "<", "")
	return nil
}

func (b *selfProcessingBody) Validate(*EndpointContext) error {
	if b.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func newTestEndpointContext() *EndpointContext {
	return &EndpointContext{App: &RestApp{ValidatorInstance: validator.New()}}
}

func TestProcessStructNormalize(t *testing.T) {
	code := "abc"
	body := tourBody{
		Name:   "  The   Forest  Hiker ",
		Slug:   " Fórêt-Hiker ",
		Code:   &code,
		Lead:   guideBody{Name: "  Miyah   Myles ", Email: " Miyah@Example.COM "},
		Guides: []guideBody{{Name: " Lisa  Brown "}, {Name: "Max", Email: " MAX@x.io"}},
		Tags:   []string{" Hiking ", "NATURE"},
	}

	require.NoError(t, processStruct(&body, "normalize"))

	assert.Equal(t, "The Forest Hiker", body.Name)
	assert.Equal(t, "foret-hiker", body.Slug)
	assert.Equal(t, "ABC", *body.Code)
	assert.Equal(t, "Miyah Myles", body.Lead.Name, "nested structs are processed with dive")
	assert.Equal(t, "miyah@example.com", body.Lead.Email)
	assert.Equal(t, "Lisa Brown", body.Guides[0].Name)
	assert.Equal(t, "max@x.io", body.Guides[1].Email)
	assert.Equal(t, []string{"hiking", "nature"}, body.Tags)
}

func TestProcessStructSanitize(t *testing.T) {
	body := tourBody{
		Slug:        "forest-hiker!",
		Description: `<p onclick="x()">Great <b>tour</b></p><script>alert(1)</script>`,
		Phone:       "+1 (555) 010-99",
		Guides:      []guideBody{{Name: "<i>Lisa</i>"}},
		Labels:      map[string]string{"note": "<b>bold</b>"},
	}

	require.NoError(t, processStruct(&body, "sanitize"))

	assert.Equal(t, "foresthiker", body.Slug)
	assert.Equal(t, "<p>Great <b>tour</b></p>", body.Description)
	assert.Equal(t, "155501099", body.Phone)
	assert.Equal(t, "Lisa", body.Guides[0].Name)
	assert.Equal(t, "bold", body.Labels["note"])
}

func TestProcessStructRejectsBadInput(t *testing.T) {
	assert.NoError(t, processStruct(nil, "normalize"))
	assert.Error(t, processStruct(tourBody{}, "normalize"), "not a pointer")

	name := "x"
	assert.Error(t, processStruct(&name, "normalize"), "not a struct")
	assert.Error(t, processStruct(&tourBody{}, "translate"))

	type unknownProcessor struct {
		Name string `normalize:"capitalize"`
	}
	assert.ErrorContains(t, processStruct(&unknownProcessor{}, "normalize"), "unknown normalize")

	type badDive struct {
		Name string `normalize:"dive,trim"`
	}
	assert.ErrorContains(t, processStruct(&badDive{}, "normalize"), "not diveable")
}

func TestInterfacesTakePrecedenceOverTags(t *testing.T) {
	ctx := newTestEndpointContext()
	body := &selfProcessingBody{Name: "<tour>"}

	require.NoError(t, normalizeStruct(ctx, body))
	require.NoError(t, sanitizeStruct(ctx, body))
	assert.Equal(t, "normalized tour>", body.Name)

	assert.NoError(t, validateAny(ctx, body))
	assert.EqualError(t, validateAny(ctx, &selfProcessingBody{}), "name is required")
}

func TestValidateAny(t *testing.T) {
	ctx := newTestEndpointContext()

	assert.Error(t, validateAny(ctx, nil))
	assert.NoError(t, validateAny(ctx, &guideBody{Name: "Leo"}))

	err := validateAny(ctx, &guideBody{Name: "L", Email: "nope"})
	var ve validator.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve, 2)

	err = validateAny(ctx, []*guideBody{{Name: "Leo"}, {Name: ""}})
	assert.ErrorContains(t, err, "index 1")

	assert.NoError(t, validateAny(ctx, &struct{ Name string }{}), "structs without validate tags pass")
}

func TestRegisterBodyProcessors(t *testing.T) {
	require.NoError(t, RegisterBodyNormalizer("tour_prefix", func(v reflect.Value) {
		processStringValue(v, func(s string) string { return "tour-" + s })
	}))
	assert.Error(t, RegisterBodyNormalizer("tour_prefix", trimNormalizer), "duplicate names are rejected")
	assert.Error(t, RegisterBodySanitizer("nothing", nil))

	type prefixed struct {
		Code string `normalize:"tour_prefix"`
	}
	body := prefixed{Code: "42"}
	require.NoError(t, processStruct(&body, "normalize"))
	assert.Equal(t, "tour-42", body.Code)

	assert.Contains(t, GetBodyNormalizers(), "tour_prefix")
	assert.Contains(t, GetBodySanitizers(), "html")
	assert.NotContains(t, GetBodySanitizers(), "tour_prefix")
}

func TestRemoveDiacritics(t *testing.T) {
	assert.Equal(t, "Sao Paulo", removeDiacritics("São Paulo"))
	assert.Equal(t, "Zurich", removeDiacritics("Zürich"))
	assert.Equal(t, "plain", removeDiacritics("plain"))
}

func TestFriendlyValidationMessages(t *testing.T) {
	assert.Equal(t, "This field must have a minimum length of 8", getErrorMessage("min", "string", "8"))
	assert.Equal(t, "This field must be greater than or equal to 1", getErrorMessage("min", "float64", "1"))
	assert.Equal(t, "This field must match Password", getErrorMessage("eqfield", "string", "Password"))
	assert.Empty(t, getErrorMessage("custom", "string", ""))
}
