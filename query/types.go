// Package query holds the store-agnostic description of a read query and a
// parser for the JSON "filter" query parameter.
package query

// Where is a condition tree. Keys are field names or operators
// ("eq", "gte", "and", ...). Nested values are Where or AndOrCondition.
type Where map[string]any

type AndOrCondition []Where

// Fields is a projection. true includes, false excludes.
type Fields map[string]bool

type Order struct {
	Field     string `json:"field,omitempty"`
	Direction string `json:"direction,omitempty"`
}

const (
	Asc  = "ASC"
	Desc = "DESC"
)

type Include struct {
	Relation string  `json:"relation,omitempty"`
	Scope    *Filter `json:"scope,omitempty"`
}

type Filter struct {
	Fields  Fields    `json:"fields,omitempty"`
	Limit   uint      `json:"limit,omitempty"`
	Order   []Order   `json:"order,omitempty"`
	Skip    uint      `json:"skip,omitempty"`
	Where   Where     `json:"where,omitempty"`
	Include []Include `json:"include,omitempty"`

	// Hidden lists normally banned fields a trusted caller asked for,
	// e.g. the password hash during login.
	Hidden []string `json:"-"`
}

var operators = map[string]bool{
	"eq":     true,
	"neq":    true,
	"gt":     true,
	"gte":    true,
	"lt":     true,
	"lte":    true,
	"inq":    true,
	"nin":    true,
	"and":    true,
	"or":     true,
	"like":   true,
	"nlike":  true,
	"exists": true,
}

// IsOperator reports whether key is a condition operator rather than a field.
func IsOperator(key string) bool {
	return operators[key]
}
