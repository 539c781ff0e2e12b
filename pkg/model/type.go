package model

import (
	"context"
	"fmt"
	"maps"

	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

// Operation is a type level capability reachable through Query.Call. It
// receives the parameters accumulated by the calling query. Returning a *Query
// makes the caller merge it into its own chain.
type Operation func(ctx context.Context, t *Type, p params.Params) (any, error)

// Type is an entity type: its association registry, its paths and its
// operations. Finder and query entry points are methods on Type.
type Type struct {
	name     string
	schema   *Schema
	abstract bool

	path      string
	batchPath string
	countPath string

	registry   *Registry
	operations map[string]Operation
}

type typeConfig struct {
	parent    *Type
	path      string
	batchPath string
	countPath string
	preload   PreloadFunc
}

type TypeOption func(*typeConfig)

// Extends makes the new type start with a snapshot of the parent's
// associations, preload strategy and operations. Later declarations on the
// parent are not propagated.
func Extends(parent *Type) TypeOption {
	return func(c *typeConfig) {
		c.parent = parent
	}
}

func WithPath(path string) TypeOption {
	return func(c *typeConfig) {
		c.path = path
	}
}

func WithBatchPath(path string) TypeOption {
	return func(c *typeConfig) {
		c.batchPath = path
	}
}

func WithCountPath(path string) TypeOption {
	return func(c *typeConfig) {
		c.countPath = path
	}
}

func WithPreload(fn PreloadFunc) TypeOption {
	return func(c *typeConfig) {
		c.preload = fn
	}
}

func newType(s *Schema, name string, abstract bool, cfg typeConfig) *Type {
	t := &Type{
		name:       name,
		schema:     s,
		abstract:   abstract,
		path:       cfg.path,
		batchPath:  valueOr(cfg.batchPath, "batch"),
		countPath:  valueOr(cfg.countPath, "count"),
		registry:   NewRegistry(s.inflector),
		operations: make(map[string]Operation),
	}

	if cfg.preload != nil {
		t.registry.SetPreloadStrategy(cfg.preload)
	}

	if cfg.parent != nil {
		// a fresh registry cannot conflict with its parent
		_ = t.registry.Inherit(cfg.parent.registry)
		maps.Copy(t.operations, cfg.parent.operations)
	}

	return t
}

func (t *Type) Name() string {
	return t.name
}

func (t *Type) Schema() *Schema {
	return t.schema
}

func (t *Type) Registry() *Registry {
	return t.registry
}

func (t *Type) IsAbstract() bool {
	return t.abstract
}

func (t *Type) String() string {
	return t.name
}

// PreloadWith replaces the preload strategy of this type. Types extending it
// afterwards inherit the replacement.
func (t *Type) PreloadWith(fn PreloadFunc) {
	t.registry.SetPreloadStrategy(fn)
}

// DefineOperation registers a named operation callable through Query.Call.
func (t *Type) DefineOperation(name string, op Operation) error {
	if name == "" || op == nil {
		return errors.NewConfigurationError(fmt.Sprintf("invalid operation %q on %s", name, t.name))
	}

	t.operations[name] = op
	return nil
}

// Scope registers a named operation that narrows a query. The function gets
// the parameters accumulated so far and returns the refined query.
func (t *Type) Scope(name string, fn func(t *Type, p params.Params) *Query) error {
	if fn == nil {
		return errors.NewConfigurationError(fmt.Sprintf("invalid scope %q on %s", name, t.name))
	}

	return t.DefineOperation(name, func(_ context.Context, t *Type, p params.Params) (any, error) {
		return fn(t, p), nil
	})
}

func (t *Type) operation(name string) (Operation, bool) {
	op, ok := t.operations[name]
	return op, ok
}

// Query returns an unfiltered query over this type.
func (t *Type) Query() *Query {
	return newQuery(t, params.Params{})
}

func (t *Type) Where(p params.Params) *Query {
	return t.Query().Where(p)
}

func (t *Type) Limit(n int) *Query {
	return t.Query().Limit(n)
}

func (t *Type) Offset(n int) *Query {
	return t.Query().Offset(n)
}

// None returns a query known to match nothing. Its terminal operations never
// reach the transport.
func (t *Type) None() *Query {
	return t.Query().None()
}

// Call invokes a named operation without accumulated parameters.
func (t *Type) Call(ctx context.Context, name string, p ...params.Params) (any, error) {
	return t.Query().Call(ctx, name, p...)
}
