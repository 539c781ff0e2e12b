// Package model maps JSON envelopes returned by a REST API onto entities,
// resolves declared associations between entity types and offers a deferred,
// chainable query over each type.
//
// A Schema is declared once and then used:
//
//	s := model.NewSchema(client.New("https://api.example.com"))
//	post, _ := s.Define("Post")
//	_ = post.HasMany("comments")
//	_ = post.BelongsTo("author", model.ClassName("User"))
//
//	recent, err := post.Where(params.Params{"state": "published"}).Limit(10).All(ctx)
//
// Entities and queries are owned by the call chain that created them and are not
// safe for concurrent use. The schema itself may be shared once declared.
package model

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/inflect"
	"github.com/diwise/restmodel/pkg/model/params"
)

// Transport performs requests against the REST API and returns the decoded JSON
// body: map[string]any, []any or a scalar. A missing resource is reported with an
// error matching errors.ErrNotFound.
type Transport interface {
	Get(ctx context.Context, path string, p params.Params) (any, error)
	Post(ctx context.Context, path string, body params.Params) (any, error)
}

// InheritFunc decides which entries of an owner's query context are passed on to
// the queries that resolve its associations.
type InheritFunc func(key string, value any) bool

// Schema is the catalog of entity types. Association targets are looked up here
// by name when they are first needed, so declarations may refer to types that
// are defined later.
type Schema struct {
	transport   Transport
	site        string
	inflector   inflect.Inflector
	inheritable InheritFunc

	mu    sync.RWMutex
	types map[string]*Type
}

type SchemaOption func(*Schema)

// WithSite sets the root that relative association sources are mounted under.
func WithSite(site string) SchemaOption {
	return func(s *Schema) {
		s.site = strings.TrimSuffix(site, "/")
	}
}

func WithInflector(i inflect.Inflector) SchemaOption {
	return func(s *Schema) {
		s.inflector = i
	}
}

// InheritParams replaces the rule selecting which owner parameters propagate to
// nested association queries.
func InheritParams(fn InheritFunc) SchemaOption {
	return func(s *Schema) {
		s.inheritable = fn
	}
}

func NewSchema(transport Transport, options ...SchemaOption) *Schema {
	s := &Schema{
		transport:   transport,
		inflector:   inflect.Default,
		inheritable: NestedFilters,
		types:       make(map[string]*Type),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

var reservedKeys = map[string]bool{
	params.KeyLimit:  true,
	params.KeyOffset: true,
	params.KeyFrom:   true,
	params.KeyLinks:  true,
	params.KeyID:     true,
	params.KeyVoid:   true,
}

// NestedFilters is the default InheritFunc. Only nested mappings propagate, and
// never under a pagination, path or identity key.
func NestedFilters(key string, value any) bool {
	return !reservedKeys[key] && params.IsMap(value)
}

func (s *Schema) Site() string {
	return s.site
}

func (s *Schema) Inflector() inflect.Inflector {
	return s.inflector
}

// Define registers a concrete entity type.
func (s *Schema) Define(name string, options ...TypeOption) (*Type, error) {
	return s.define(name, false, options)
}

// Abstract registers a base type that can be extended and carry shared
// associations but has no path of its own.
func (s *Schema) Abstract(name string, options ...TypeOption) (*Type, error) {
	return s.define(name, true, options)
}

func (s *Schema) define(name string, abstract bool, options []TypeOption) (*Type, error) {
	if name == "" {
		return nil, errors.NewConfigurationError("entity types must have a name")
	}

	cfg := typeConfig{}
	for _, option := range options {
		option(&cfg)
	}

	if cfg.parent != nil && cfg.parent.schema != s {
		return nil, errors.NewConfigurationError(fmt.Sprintf("%s cannot extend %s from another schema", name, cfg.parent.name))
	}

	t := newType(s, name, abstract, cfg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.types[name]; exists {
		return nil, errors.NewConfigurationError(fmt.Sprintf("entity type %s is already defined", name))
	}

	s.types[name] = t

	return t, nil
}

// Lookup returns the type registered under name. Underscored names such as
// "blog_post" are also matched against their camelized form.
func (s *Schema) Lookup(name string) (*Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.types[name]; ok {
		return t, nil
	}

	if t, ok := s.types[s.inflector.Camelize(name)]; ok {
		return t, nil
	}

	return nil, errors.NewConfigurationError(fmt.Sprintf("no entity type named %q", name))
}

// Types returns the names of all registered types in lexical order.
func (s *Schema) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (s *Schema) inherited(p params.Params) params.Params {
	result := params.Params{}
	for k, v := range p {
		if s.inheritable(k, v) {
			result[k] = v
		}
	}
	return result.Clone()
}

func (s *Schema) sitePath(from string) string {
	if from == "" || isURL(from) {
		return from
	}

	if !strings.HasPrefix(from, "/") {
		from = "/" + from
	}

	return s.site + from
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
