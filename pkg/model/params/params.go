package params

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Well known parameter keys understood by the finder and the query.
const (
	KeyLimit  string = "limit"
	KeyOffset string = "offset"
	KeyFrom   string = "from"
	KeyLinks  string = "links"
	KeyID     string = "id"
	KeyVoid   string = "void"
)

// Params is a JSON shaped parameter mapping. Values are scalars, slices or
// nested mappings (Params or map[string]any).
type Params map[string]any

type DecoratorFunc func(Params) Params

// New builds a parameter mapping by applying the decorators in order.
func New(decorators ...DecoratorFunc) Params {
	p := Params{}
	for _, decorate := range decorators {
		p = decorate(p)
	}
	return p
}

func Limit(n int) DecoratorFunc {
	return Set(KeyLimit, n)
}

func Offset(n int) DecoratorFunc {
	return Set(KeyOffset, n)
}

func From(path string) DecoratorFunc {
	return Set(KeyFrom, path)
}

func Links(names ...string) DecoratorFunc {
	return Set(KeyLinks, strings.Join(names, ","))
}

func Set(key string, value any) DecoratorFunc {
	return func(p Params) Params {
		p[key] = value
		return p
	}
}

// Nested deep merges nested under key, so that several Nested decorators
// for the same key accumulate.
func Nested(key string, nested Params) DecoratorFunc {
	return func(p Params) Params {
		return Merge(p, Params{key: nested})
	}
}

// Merge deep merges the layers from left to right into a new mapping. Keys of
// later layers win; when both sides hold a mapping the mappings are merged
// recursively. None of the arguments are modified.
func Merge(layers ...Params) Params {
	result := Params{}
	for _, layer := range layers {
		mergeInto(result, layer)
	}
	return result
}

func mergeInto(dst Params, src map[string]any) {
	for k, v := range src {
		incoming, incomingIsMap := asMap(v)
		if !incomingIsMap {
			dst[k] = cloneValue(v)
			continue
		}

		if existing, ok := asMap(dst[k]); ok {
			merged := Params(cloneMap(existing))
			mergeInto(merged, incoming)
			dst[k] = merged
			continue
		}

		dst[k] = Params(cloneMap(incoming))
	}
}

// Merge returns a new mapping with the layers deep merged on top of p.
func (p Params) Merge(layers ...Params) Params {
	return Merge(append([]Params{p}, layers...)...)
}

// Clone returns a deep copy of p. Nested mappings and slices are copied.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return Params(cloneMap(p))
}

// Without returns a copy of p without the given top level keys.
func (p Params) Without(keys ...string) Params {
	c := p.Clone()
	for _, k := range keys {
		delete(c, k)
	}
	return c
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Int returns the value of key coerced to an int. Absent, nil and
// unconvertible values report false.
func (p Params) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}

	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, false
	}

	return n, true
}

func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}

	return s, true
}

// LinkNames returns the association names listed under the links key. Both a
// comma separated string and a list of strings are accepted.
func (p Params) LinkNames() []string {
	v, ok := p[KeyLinks]
	if !ok || v == nil {
		return nil
	}

	var raw []string
	switch typed := v.(type) {
	case string:
		raw = strings.Split(typed, ",")
	default:
		raw = cast.ToStringSlice(typed)
	}

	names := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}

	return names
}

// IsMap reports whether v is a nested parameter mapping.
func IsMap(v any) bool {
	_, ok := asMap(v)
	return ok
}

// Values encodes p as url query values. Nested mappings use bracket notation
// (filter[name]=x) and slices are repeated with an empty bracket (id[]=1).
func (p Params) Values() url.Values {
	values := url.Values{}
	encode(values, "", p)
	return values
}

func encode(values url.Values, prefix string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = fmt.Sprintf("%s[%s]", prefix, k)
		}

		v := m[k]
		if nested, ok := asMap(v); ok {
			encode(values, name, nested)
			continue
		}

		switch typed := v.(type) {
		case nil:
			continue
		case []any, []string, []int, []int64, []float64:
			for _, item := range toSlice(typed) {
				values.Add(name+"[]", cast.ToString(item))
			}
		default:
			values.Add(name, cast.ToString(typed))
		}
	}
}

func toSlice(v any) []any {
	var items []any
	switch typed := v.(type) {
	case []any:
		items = typed
	case []string:
		for _, item := range typed {
			items = append(items, item)
		}
	case []int:
		for _, item := range typed {
			items = append(items, item)
		}
	case []int64:
		for _, item := range typed {
			items = append(items, item)
		}
	case []float64:
		for _, item := range typed {
			items = append(items, item)
		}
	}
	return items
}

func asMap(v any) (map[string]any, bool) {
	switch typed := v.(type) {
	case Params:
		return typed, true
	case map[string]any:
		return typed, true
	}
	return nil, false
}

func cloneMap(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case Params:
		return Params(cloneMap(typed))
	case map[string]any:
		return Params(cloneMap(typed))
	case []any:
		c := make([]any, len(typed))
		for i := range typed {
			c[i] = cloneValue(typed[i])
		}
		return c
	case []string:
		return append([]string(nil), typed...)
	}
	return v
}
