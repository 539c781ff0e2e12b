package model

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"maps"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"

	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

// SlotState is the resolution state of one association on one entity.
type SlotState int

const (
	Unresolved SlotState = iota
	ResolvedEntity
	ResolvedCollection
	ResolvedAbsent
)

func (s SlotState) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case ResolvedEntity:
		return "entity"
	case ResolvedCollection:
		return "collection"
	case ResolvedAbsent:
		return "absent"
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

type slot struct {
	state      SlotState
	entity     *Entity
	collection *Collection
}

// Entity is one record of an entity type. Association data embedded in the
// response is resolved when the entity is built; everything else is fetched
// on first access and memoized.
type Entity struct {
	typ        *Type
	attributes map[string]any
	params     params.Params
	slots      map[string]*slot
}

// New builds an entity from raw attributes. Embedded association data is
// consumed by the type's preload strategy and the associations listed in the
// links parameter are marked as resolved even when nothing was embedded. Any
// failure aborts the construction.
func (t *Type) New(attrs map[string]any, p params.Params) (*Entity, error) {
	e := &Entity{
		typ:        t,
		attributes: maps.Clone(attrs),
		params:     p.Clone(),
		slots:      make(map[string]*slot),
	}

	if e.attributes == nil {
		e.attributes = make(map[string]any)
	}

	if err := e.preload(); err != nil {
		return nil, err
	}

	if err := e.applyLinks(); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Entity) preload() error {
	preload := e.typ.registry.PreloadStrategy()

	for _, a := range e.typ.registry.Associations() {
		raw, ok := preload(e.attributes, a)
		if !ok {
			continue
		}

		s, err := e.instantiateEmbedded(a, raw)
		if err != nil {
			return fmt.Errorf("failed to preload %s.%s: %w", e.typ.name, a.Name, err)
		}

		e.slots[a.Name] = s
	}

	return nil
}

func (e *Entity) applyLinks() error {
	for _, name := range e.params.LinkNames() {
		a, err := e.typ.registry.Resolve(name)
		if err != nil {
			return fmt.Errorf("%s links: %w", e.typ.name, err)
		}

		if _, resolved := e.slots[a.Name]; resolved {
			continue
		}

		if a.Kind == HasMany {
			e.slots[a.Name] = &slot{state: ResolvedCollection, collection: emptyCollection()}
		} else {
			e.slots[a.Name] = &slot{state: ResolvedAbsent}
		}
	}

	return nil
}

func (e *Entity) instantiateEmbedded(a Association, raw any) (*slot, error) {
	target, err := e.embeddedTarget(a)
	if err != nil {
		return nil, err
	}

	nested := e.nestedParams()

	if a.Kind == HasMany {
		c, err := target.InstantiateMany(raw, nested)
		if err != nil {
			return nil, err
		}
		return &slot{state: ResolvedCollection, collection: c}, nil
	}

	if raw == nil {
		return &slot{state: ResolvedAbsent}, nil
	}

	if _, isList := raw.([]any); isList {
		c, err := target.InstantiateMany(raw, nested)
		if err != nil {
			return nil, err
		}
		if c.Len() == 0 {
			return &slot{state: ResolvedAbsent}, nil
		}
		return &slot{state: ResolvedEntity, entity: c.First()}, nil
	}

	one, err := target.InstantiateOne(raw, nested)
	if err != nil {
		return nil, err
	}

	return &slot{state: ResolvedEntity, entity: one}, nil
}

func (e *Entity) embeddedTarget(a Association) (*Type, error) {
	if a.Kind != BelongsToPoly {
		return e.typ.schema.Lookup(a.Target)
	}

	typeName, ok := e.truthy(a.TypeAttribute())
	if !ok {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("embedded %s has no %s attribute naming its type", a.Name, a.TypeAttribute()),
		)
	}

	return e.typ.schema.Lookup(fmt.Sprint(typeName))
}

func (e *Entity) Type() *Type {
	return e.typ
}

func (e *Entity) ID() any {
	return e.attributes[params.KeyID]
}

func (e *Entity) Attr(key string) (any, bool) {
	v, ok := e.attributes[key]
	return v, ok
}

// Attributes returns a copy of the plain attributes. Keys consumed as
// association data are not included.
func (e *Entity) Attributes() map[string]any {
	return maps.Clone(e.attributes)
}

// Params returns a copy of the parameters the entity was fetched with.
func (e *Entity) Params() params.Params {
	return e.params.Clone()
}

// SlotState reports the resolution state of the named association.
func (e *Entity) SlotState(name string) (SlotState, error) {
	a, err := e.typ.registry.Resolve(name)
	if err != nil {
		return Unresolved, err
	}

	if s, ok := e.slots[a.Name]; ok {
		return s.state, nil
	}

	return Unresolved, nil
}

// Get resolves the named association. It returns a *Collection for HasMany,
// and an *Entity or nil for the singular kinds.
func (e *Entity) Get(ctx context.Context, name string) (any, error) {
	a, s, err := e.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	switch {
	case a.Kind == HasMany:
		return s.collection, nil
	case s.state == ResolvedEntity:
		return s.entity, nil
	}

	return nil, nil
}

// Many resolves a HasMany association. It is never nil on success.
func (e *Entity) Many(ctx context.Context, name string) (*Collection, error) {
	a, err := e.typ.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	if a.Kind != HasMany {
		return nil, errors.NewConfigurationError(fmt.Sprintf("%s.%s is %s, not has_many", e.typ.name, a.Name, a.Kind))
	}

	_, s, err := e.resolve(ctx, a.Name)
	if err != nil {
		return nil, err
	}

	return s.collection, nil
}

// One resolves a singular association and returns nil when there is no
// related entity.
func (e *Entity) One(ctx context.Context, name string) (*Entity, error) {
	related, err := e.RequireOne(ctx, name)
	if goerrors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	return related, err
}

// RequireOne resolves a singular association and fails with a not found error
// when there is no related entity.
func (e *Entity) RequireOne(ctx context.Context, name string) (*Entity, error) {
	a, err := e.typ.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	if !a.Kind.Singular() {
		return nil, errors.NewConfigurationError(fmt.Sprintf("%s.%s is %s, not a singular association", e.typ.name, a.Name, a.Kind))
	}

	_, s, err := e.resolve(ctx, a.Name)
	if err != nil {
		return nil, err
	}

	if s.state != ResolvedEntity {
		return nil, errors.NewNotFoundError(fmt.Sprintf("%s %v has no %s", e.typ.name, e.ID(), a.Name))
	}

	return s.entity, nil
}

// Scope returns the query that resolves a HasMany or HasOne association,
// without running it.
func (e *Entity) Scope(name string) (*Query, error) {
	a, err := e.typ.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	if a.Kind != HasMany && a.Kind != HasOne {
		return nil, errors.NewConfigurationError(fmt.Sprintf("%s.%s is %s and cannot be scoped", e.typ.name, a.Name, a.Kind))
	}

	return e.ownerScope(a)
}

func (e *Entity) ownerScope(a Association) (*Query, error) {
	target, err := e.typ.schema.Lookup(a.Target)
	if err != nil {
		return nil, err
	}

	scope := params.Params{a.ForeignKey: e.ID()}
	if a.From != "" {
		scope[params.KeyFrom] = a.From
	}

	q := target.Where(e.nestedParams()).Where(a.extraParams(e)).Where(scope)

	// an owner without id has nothing referring to it
	if e.ID() == nil {
		return q.None(), nil
	}

	return q, nil
}

func (e *Entity) resolve(ctx context.Context, name string) (Association, *slot, error) {
	a, err := e.typ.registry.Resolve(name)
	if err != nil {
		return a, nil, err
	}

	if s, ok := e.slots[a.Name]; ok {
		return a, s, nil
	}

	logging.GetFromContext(ctx).Debug("resolving association", "type", e.typ.name, "id", e.ID(), "association", a.Name, "kind", a.Kind.String())

	s, err := e.fetch(ctx, a)
	if err != nil {
		return a, nil, err
	}

	e.slots[a.Name] = s
	return a, s, nil
}

func (e *Entity) fetch(ctx context.Context, a Association) (*slot, error) {
	switch a.Kind {
	case HasMany:
		q, err := e.ownerScope(a)
		if err != nil {
			return nil, err
		}

		c, err := q.All(ctx)
		if err != nil {
			return nil, err
		}

		return &slot{state: ResolvedCollection, collection: c}, nil

	case HasOne:
		q, err := e.ownerScope(a)
		if err != nil {
			return nil, err
		}

		return singular(q.RequireFirst(ctx))

	case BelongsToMono:
		id, ok := e.present(a.ForeignKey)
		if !ok {
			return &slot{state: ResolvedAbsent}, nil
		}

		target, err := e.typ.schema.Lookup(a.Target)
		if err != nil {
			return nil, err
		}

		return singular(target.Find(ctx, id, e.nestedParams(), a.extraParams(e)))

	case BelongsToPoly:
		typeName, ok := e.truthy(a.TypeAttribute())
		if !ok {
			return &slot{state: ResolvedAbsent}, nil
		}

		id, ok := e.truthy(a.ForeignKey)
		if !ok {
			return &slot{state: ResolvedAbsent}, nil
		}

		target, err := e.typ.schema.Lookup(fmt.Sprint(typeName))
		if err != nil {
			return nil, err
		}

		return singular(target.Find(ctx, id, e.nestedParams(), a.extraParams(e)))
	}

	return nil, errors.NewConfigurationError(fmt.Sprintf("%s.%s has unknown kind %s", e.typ.name, a.Name, a.Kind))
}

// singular memoizes a not found outcome as absent. Other failures are returned
// so that a later access can retry.
func singular(related *Entity, err error) (*slot, error) {
	if goerrors.Is(err, errors.ErrNotFound) {
		return &slot{state: ResolvedAbsent}, nil
	}

	if err != nil {
		return nil, err
	}

	if related == nil {
		return &slot{state: ResolvedAbsent}, nil
	}

	return &slot{state: ResolvedEntity, entity: related}, nil
}

func (e *Entity) nestedParams() params.Params {
	return e.typ.schema.inherited(e.params)
}

func (e *Entity) present(key string) (any, bool) {
	v, ok := e.attributes[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (e *Entity) truthy(key string) (any, bool) {
	v, ok := e.present(key)
	if !ok {
		return nil, false
	}

	switch typed := v.(type) {
	case bool:
		return v, typed
	case string:
		return v, typed != ""
	}

	return v, true
}

// MarshalJSON renders the plain attributes together with every association
// that has been resolved so far.
func (e *Entity) MarshalJSON() ([]byte, error) {
	doc := maps.Clone(e.attributes)

	for name, s := range e.slots {
		switch s.state {
		case ResolvedCollection:
			doc[name] = s.collection.items
		case ResolvedEntity:
			doc[name] = s.entity
		case ResolvedAbsent:
			doc[name] = nil
		}
	}

	return json.Marshal(doc)
}
