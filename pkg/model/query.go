package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

// Query is a deferred request for the entities of one type filtered by the
// parameters accumulated so far. Builder methods return new queries and never
// touch the network. A void query is known to match nothing and none of its
// terminal operations reach the transport.
type Query struct {
	typ    *Type
	params params.Params
	void   bool
	result *Collection
}

func newQuery(t *Type, p params.Params) *Query {
	return &Query{
		typ:    t,
		params: p.Clone(),
	}
}

func newVoidQuery(t *Type, p params.Params) *Query {
	q := newQuery(t, p)
	q.void = true
	q.params[params.KeyVoid] = true
	q.result = emptyCollection()
	return q
}

func (q *Query) fork(p params.Params) *Query {
	if q.void {
		return newVoidQuery(q.typ, p)
	}
	return newQuery(q.typ, p)
}

// Where returns a query with p deep merged on top of the current parameters.
func (q *Query) Where(p params.Params) *Query {
	return q.fork(q.params.Merge(p))
}

func (q *Query) Limit(n int) *Query {
	return q.Where(params.New(params.Limit(n)))
}

func (q *Query) Offset(n int) *Query {
	return q.Where(params.New(params.Offset(n)))
}

func (q *Query) From(path string) *Query {
	return q.Where(params.New(params.From(path)))
}

func (q *Query) Links(names ...string) *Query {
	return q.Where(params.New(params.Links(names...)))
}

// None returns the void variant of this query, keeping its parameters.
func (q *Query) None() *Query {
	return newVoidQuery(q.typ, q.params)
}

// Merge layers the parameters of other on top of this query. The result is
// void when either side is.
func (q *Query) Merge(other *Query) *Query {
	target := q
	if other.void && !q.void {
		target = q.None()
	}
	return target.Where(other.params)
}

func (q *Query) Type() *Type {
	return q.typ
}

func (q *Query) Params() params.Params {
	return q.params.Clone()
}

func (q *Query) IsVoid() bool {
	return q.void
}

// LimitValue is the accumulated limit, or zero when none was set.
func (q *Query) LimitValue() int {
	n, _ := q.params.Int(params.KeyLimit)
	return n
}

// OffsetValue is the accumulated offset, or zero when none was set.
func (q *Query) OffsetValue() int {
	n, _ := q.params.Int(params.KeyOffset)
	return n
}

// Find fetches one entity by id. A void query returns nil without a request.
func (q *Query) Find(ctx context.Context, id any, p ...params.Params) (*Entity, error) {
	if q.void {
		return nil, nil
	}
	return q.typ.Find(ctx, id, q.merged(p)...)
}

// FindMany fetches several entities in one batch request.
func (q *Query) FindMany(ctx context.Context, ids []any, p ...params.Params) (*Collection, error) {
	if q.void {
		return emptyCollection(), nil
	}
	return q.typ.FindMany(ctx, ids, q.merged(p)...)
}

// All runs the query. The first successful result is kept and returned by
// every later call on the same query, whatever parameters those calls pass.
func (q *Query) All(ctx context.Context, p ...params.Params) (*Collection, error) {
	if q.result != nil {
		return q.result, nil
	}

	c, err := q.typ.All(ctx, q.merged(p)...)
	if err != nil {
		return nil, err
	}

	q.result = c
	return c, nil
}

// First returns the head of the query's result with an implicit limit of one,
// or nil when nothing matches. An already materialized result is reused.
func (q *Query) First(ctx context.Context, p ...params.Params) (*Entity, error) {
	if q.result != nil && len(p) == 0 {
		return q.result.First(), nil
	}

	c, err := q.Limit(1).All(ctx, p...)
	if err != nil {
		return nil, err
	}

	return c.First(), nil
}

// RequireFirst is First failing with a not found error when nothing matches.
func (q *Query) RequireFirst(ctx context.Context, p ...params.Params) (*Entity, error) {
	e, err := q.First(ctx, p...)
	if err != nil {
		return nil, err
	}

	if e == nil {
		filter, _ := json.Marshal(params.Merge(p...))
		return nil, errors.NewNotFoundError(fmt.Sprintf("can't find %s with %s", q.typ.name, filter))
	}

	return e, nil
}

// Count returns the length of a materialized result, or asks the count path
// with p merged on top of the accumulated parameters.
func (q *Query) Count(ctx context.Context, p ...params.Params) (int, error) {
	if q.void {
		return 0, nil
	}

	if q.result != nil && len(p) == 0 {
		return q.result.Len(), nil
	}

	return q.typ.Count(ctx, q.merged(p)...)
}

// Each materializes the query and calls fn for every entity in order,
// stopping at the first error.
func (q *Query) Each(ctx context.Context, fn func(*Entity) error) error {
	c, err := q.All(ctx)
	if err != nil {
		return err
	}

	for _, e := range c.All() {
		if err := fn(e); err != nil {
			return err
		}
	}

	return nil
}

func (q *Query) Entities(ctx context.Context) ([]*Entity, error) {
	c, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	return c.Items(), nil
}

// Call invokes a named operation of the query's type. Without p the operation
// receives the accumulated parameters; otherwise p is deep merged on top of
// them. An operation returning a *Query is merged into this one.
func (q *Query) Call(ctx context.Context, name string, p ...params.Params) (any, error) {
	op, ok := q.typ.operation(name)
	if !ok {
		return nil, errors.NewConfigurationError(fmt.Sprintf("%s has no operation named %q", q.typ.name, name))
	}

	passed := q.params.Clone()
	if len(p) > 0 {
		passed = q.params.Merge(p...)
	}

	result, err := op(ctx, q.typ, passed)
	if err != nil {
		return nil, err
	}

	if other, ok := result.(*Query); ok && other != nil {
		return q.Merge(other), nil
	}

	return result, nil
}

func (q *Query) merged(p []params.Params) []params.Params {
	return []params.Params{q.params.Merge(p...)}
}

func (q *Query) String() string {
	filter, _ := json.Marshal(q.params)
	return fmt.Sprintf("%s%s", q.typ.name, filter)
}
