package database

import (
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// The helpers below evaluate the subset of the Mongo query and update
// language produced by adaptFilter and prepareUpdateDocument.

func matchDocument(doc bson.M, where bson.M) bool {
	for key, cond := range where {
		switch key {
		case "$and":
			for _, sub := range asArray(cond) {
				if !matchDocument(doc, where2M(sub)) {
					return false
				}
			}
		case "$or":
			matched := false
			for _, sub := range asArray(cond) {
				if matchDocument(doc, where2M(sub)) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			value, exists := getPath(doc, key)
			if ops, ok := operatorDocument(cond); ok {
				if !matchOperators(value, exists, ops) {
					return false
				}
				continue
			}
			if !equalsAny(value, cond) {
				return false
			}
		}
	}
	return true
}

func where2M(v any) bson.M {
	m, _ := toBsonMap(v)
	return m
}

func operatorDocument(cond any) (bson.M, bool) {
	var m bson.M
	switch c := cond.(type) {
	case bson.M:
		m = c
	case map[string]any:
		m = c
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperators(value any, exists bool, ops bson.M) bool {
	for op, arg := range ops {
		switch op {
		case "$eq":
			if !equalsAny(value, arg) {
				return false
			}
		case "$ne":
			if equalsAny(value, arg) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !exists || !compareAny(value, arg, op) {
				return false
			}
		case "$in":
			found := false
			for _, item := range asArray(arg) {
				if equalsAny(value, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "$nin":
			for _, item := range asArray(arg) {
				if equalsAny(value, item) {
					return false
				}
			}
		case "$exists":
			if want, _ := arg.(bool); want != exists {
				return false
			}
		case "$regex":
			if !matchRegex(value, arg, ops["$options"]) {
				return false
			}
		case "$options":
		case "$not":
			sub, ok := operatorDocument(arg)
			if ok && matchOperators(value, exists, sub) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchRegex(value any, pattern any, options any) bool {
	expr, ok := pattern.(string)
	if !ok {
		return false
	}
	if opts, ok := options.(string); ok && strings.Contains(opts, "i") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}

	for _, candidate := range expand(value) {
		if s, ok := candidate.(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

// equalsAny follows Mongo array semantics: a list field matches when any of
// its elements does.
func equalsAny(value any, target any) bool {
	if _, isList := target.(bson.A); !isList {
		for _, candidate := range expand(value) {
			if c, ok := compareValues(candidate, target); ok && c == 0 {
				return true
			}
		}
		return false
	}

	c, ok := compareValues(value, target)
	return ok && c == 0
}

func compareAny(value any, target any, op string) bool {
	for _, candidate := range expand(value) {
		if candidate == nil {
			continue
		}
		c, ok := compareValues(candidate, target)
		if !ok {
			continue
		}
		switch op {
		case "$gt":
			if c > 0 {
				return true
			}
		case "$gte":
			if c >= 0 {
				return true
			}
		case "$lt":
			if c < 0 {
				return true
			}
		case "$lte":
			if c <= 0 {
				return true
			}
		}
	}
	return false
}

func expand(value any) []any {
	if arr, ok := value.(bson.A); ok {
		return append([]any{value}, arr...)
	}
	return []any{value}
}

// compareValues orders two BSON values of compatible types. ok is false when
// the values cannot be compared.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		if a == nil {
			return -1, true
		}
		return 1, true
	}

	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return cmpOrdered(af, bf), true
		}
		return 0, false
	}

	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt), true
		}
		return 0, false
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			}
			return 1, true
		}
	case bson.ObjectID:
		if bv, ok := b.(bson.ObjectID); ok {
			return strings.Compare(av.Hex(), bv.Hex()), true
		}
	case bson.A:
		if bv, ok := b.(bson.A); ok && len(av) == len(bv) {
			for i := range av {
				if c, ok := compareValues(av[i], bv[i]); !ok || c != 0 {
					return 1, ok
				}
			}
			return 0, true
		}
	}
	return 0, false
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case bson.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

func asArray(v any) []any {
	switch a := v.(type) {
	case bson.A:
		return a
	case []any:
		return a
	}
	if values, ok := toSlice(v); ok {
		return values
	}
	return nil
}

func asMap(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return m, true
	case bson.D:
		result := bson.M{}
		for _, e := range m {
			result[e.Key] = e.Value
		}
		return result, true
	}
	return nil, false
}

func getPath(doc bson.M, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(doc bson.M, path string, value any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(current[part])
		if !ok {
			next = bson.M{}
		}
		current[part] = next
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func deletePath(doc bson.M, path string) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(current[part])
		if !ok {
			return
		}
		current[part] = next
		current = next
	}
	delete(current, parts[len(parts)-1])
}

func applyUpdate(doc bson.M, update bson.M) {
	if set, ok := asMap(update[SET]); ok {
		for path, value := range set {
			setPath(doc, path, value)
		}
	}
	if unset, ok := asMap(update[UNSET]); ok {
		for path := range unset {
			deletePath(doc, path)
		}
	}
	if inc, ok := asMap(update[INC]); ok {
		for path, delta := range inc {
			current, _ := getPath(doc, path)
			ci, cInt := toInt(current)
			di, dInt := toInt(delta)
			if (cInt || current == nil) && dInt {
				setPath(doc, path, ci+di)
				continue
			}
			cf, _ := toFloat(current)
			df, _ := toFloat(delta)
			setPath(doc, path, cf+df)
		}
	}
	if dates, ok := asMap(update[CURRENT_DATE]); ok {
		for path := range dates {
			setPath(doc, path, now())
		}
	}
}

func applyProjection(doc bson.M, projection bson.M) bson.M {
	if len(projection) == 0 {
		return doc
	}

	inclusive := false
	for key, value := range projection {
		if key == "_id" {
			continue
		}
		if f, _ := toFloat(value); f == 1 {
			inclusive = true
		}
	}

	if !inclusive {
		result := cloneDocument(doc)
		for key := range projection {
			deletePath(result, key)
		}
		return result
	}

	result := bson.M{}
	if v, ok := projection["_id"]; !ok {
		result["_id"] = doc["_id"]
	} else if f, _ := toFloat(v); f != 0 {
		result["_id"] = doc["_id"]
	}
	for key, value := range projection {
		if f, _ := toFloat(value); f != 1 {
			continue
		}
		if v, ok := getPath(doc, key); ok {
			setPath(result, key, v)
		}
	}
	return result
}

func cloneDocument(doc bson.M) bson.M {
	data, err := bson.Marshal(doc)
	if err != nil {
		return doc
	}
	var clone bson.M
	if err := bson.Unmarshal(data, &clone); err != nil {
		return doc
	}
	return clone
}
