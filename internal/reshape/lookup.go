package reshape

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// Lookup is the result of probing decoded JSON for an optional value.
type Lookup struct {
	Value any
	OK    bool
}

// Path is a compiled field path into decoded JSON.
type Path struct {
	expr *jmespath.JMESPath
}

// Field compiles a dotted path of literal key names. Keys are quoted so
// names such as "x-forwarded-for" need no escaping by callers.
func Field(keys ...string) Path {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = strconv.Quote(k)
	}
	return Path{expr: jmespath.MustCompile(strings.Join(quoted, "."))}
}

// Find evaluates p against data. Non-mapping intermediates, nulls, empty
// strings and empty collections all report absence.
func (p Path) Find(data any) Lookup {
	v, err := p.expr.Search(data)
	if err != nil || isEmpty(v) {
		return Lookup{}
	}
	return Lookup{Value: v, OK: true}
}

// FirstOf returns the first present lookup of paths, left to right.
func FirstOf(data any, paths ...Path) Lookup {
	for _, p := range paths {
		if l := p.Find(data); l.OK {
			return l
		}
	}
	return Lookup{}
}

// Or returns l when present, otherwise the next lookup.
func (l Lookup) Or(next Lookup) Lookup {
	if l.OK {
		return l
	}
	return next
}

// OrDefault returns the found value or def.
func (l Lookup) OrDefault(def any) any {
	if l.OK {
		return l.Value
	}
	return def
}

// String returns the found value rendered as text, or def.
func (l Lookup) String(def string) string {
	if !l.OK {
		return def
	}
	return asString(l.Value)
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
