package model

import (
	"fmt"

	"github.com/diwise/restmodel/pkg/model/params"
)

// Kind tells how an association is resolved.
type Kind int

const (
	// HasMany resolves to a Collection of target entities whose foreign key
	// refers back to the owner.
	HasMany Kind = iota
	// HasOne resolves to the first target entity whose foreign key refers back
	// to the owner.
	HasOne
	// BelongsToMono resolves through a foreign key attribute on the owner.
	BelongsToMono
	// BelongsToPoly resolves through a foreign key attribute and a sibling
	// <alias>_type attribute naming the target type.
	BelongsToPoly
)

func (k Kind) String() string {
	switch k {
	case HasMany:
		return "has_many"
	case HasOne:
		return "has_one"
	case BelongsToMono:
		return "belongs_to"
	case BelongsToPoly:
		return "polymorphic_belongs_to"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Singular reports whether the association resolves to at most one entity.
func (k Kind) Singular() bool {
	return k != HasMany
}

// Association describes one declared relationship. Descriptors are copied by
// value into registries and never change after declaration.
type Association struct {
	Name string
	Kind Kind
	// Target names the related type. It is resolved through the schema when the
	// association is first used. Empty for BelongsToPoly.
	Target     string
	ForeignKey string
	// From mounts the association under another path than the target's own.
	From string
	// As is the attribute prefix of a polymorphic association.
	As string
	// ExtraParams returns parameters merged into the association query.
	ExtraParams func(*Entity) params.Params
}

// TypeAttribute is the discriminator attribute of a polymorphic association.
func (a Association) TypeAttribute() string {
	return a.As + "_type"
}

func (a Association) extraParams(owner *Entity) params.Params {
	if a.ExtraParams == nil {
		return params.Params{}
	}
	return a.ExtraParams(owner)
}

type associationConfig struct {
	className   string
	foreignKey  string
	from        string
	as          string
	polymorphic bool
	extra       func(*Entity) params.Params
}

type AssociationOption func(*associationConfig)

// ClassName overrides the target type derived from the association name.
func ClassName(name string) AssociationOption {
	return func(c *associationConfig) {
		c.className = name
	}
}

func ForeignKey(key string) AssociationOption {
	return func(c *associationConfig) {
		c.foreignKey = key
	}
}

// From mounts a HasMany association under path instead of the target's
// collection path. Relative paths are joined with the schema site.
func From(path string) AssociationOption {
	return func(c *associationConfig) {
		c.from = path
	}
}

// As sets the attribute prefix of a polymorphic belongs-to.
func As(alias string) AssociationOption {
	return func(c *associationConfig) {
		c.as = alias
	}
}

func Polymorphic() AssociationOption {
	return func(c *associationConfig) {
		c.polymorphic = true
	}
}

// WithParams merges static parameters into the association query.
func WithParams(p params.Params) AssociationOption {
	static := p.Clone()
	return func(c *associationConfig) {
		c.extra = func(*Entity) params.Params { return static.Clone() }
	}
}

// WithParamsFunc computes the parameters merged into the association query
// from the owning entity.
func WithParamsFunc(fn func(*Entity) params.Params) AssociationOption {
	return func(c *associationConfig) {
		c.extra = fn
	}
}

func newAssociationConfig(options []AssociationOption) associationConfig {
	cfg := associationConfig{}
	for _, option := range options {
		option(&cfg)
	}
	return cfg
}

// HasMany declares a one-to-many association. The name is expected in plural
// form; the target defaults to its camelized singular and the foreign key to
// <owner>_id.
func (t *Type) HasMany(name string, options ...AssociationOption) error {
	cfg := newAssociationConfig(options)
	inflector := t.schema.inflector

	a := Association{
		Name:        name,
		Kind:        HasMany,
		Target:      valueOr(cfg.className, inflector.Camelize(inflector.Singularize(name))),
		ForeignKey:  valueOr(cfg.foreignKey, inflector.Underscore(t.name)+"_id"),
		From:        t.schema.sitePath(cfg.from),
		ExtraParams: cfg.extra,
	}

	return t.registry.Declare(a)
}

// HasOne declares a one-to-one association stored under the singular name.
func (t *Type) HasOne(name string, options ...AssociationOption) error {
	cfg := newAssociationConfig(options)
	inflector := t.schema.inflector
	name = inflector.Singularize(name)

	a := Association{
		Name:        name,
		Kind:        HasOne,
		Target:      valueOr(cfg.className, inflector.Camelize(name)),
		ForeignKey:  valueOr(cfg.foreignKey, inflector.Underscore(t.name)+"_id"),
		From:        t.schema.sitePath(cfg.from),
		ExtraParams: cfg.extra,
	}

	return t.registry.Declare(a)
}

// BelongsTo declares an association resolved through a foreign key on the
// owner. With the Polymorphic option the target type is read from the
// <alias>_type attribute of each entity.
func (t *Type) BelongsTo(name string, options ...AssociationOption) error {
	cfg := newAssociationConfig(options)
	inflector := t.schema.inflector

	if cfg.polymorphic {
		alias := valueOr(cfg.as, name)
		return t.registry.Declare(Association{
			Name:        name,
			Kind:        BelongsToPoly,
			ForeignKey:  valueOr(cfg.foreignKey, alias+"_id"),
			As:          alias,
			ExtraParams: cfg.extra,
		})
	}

	return t.registry.Declare(Association{
		Name:        name,
		Kind:        BelongsToMono,
		Target:      valueOr(cfg.className, inflector.Camelize(name)),
		ForeignKey:  valueOr(cfg.foreignKey, name+"_id"),
		ExtraParams: cfg.extra,
	})
}

func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
