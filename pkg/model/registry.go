package model

import (
	"fmt"
	"maps"

	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/inflect"
)

// PreloadFunc extracts the embedded representation of association a from the
// raw attributes of an entity under construction. It reports false when the
// response carried nothing for a. Keys that were consumed must be removed from
// attrs so they do not surface as plain attributes.
type PreloadFunc func(attrs map[string]any, a Association) (any, bool)

// DefaultPreload consumes the attribute named after the association.
func DefaultPreload(attrs map[string]any, a Association) (any, bool) {
	raw, ok := attrs[a.Name]
	if !ok {
		return nil, false
	}

	delete(attrs, a.Name)
	return raw, true
}

// LinksEnvelope reads embedded associations from a nested "links" object, e.g.
// {"id": 1, "links": {"comments": [...]}}, and falls back to DefaultPreload.
// The links attribute is dropped once all of its entries have been consumed.
func LinksEnvelope(attrs map[string]any, a Association) (any, bool) {
	links, ok := attrs["links"].(map[string]any)
	if ok {
		if raw, found := links[a.Name]; found {
			links = maps.Clone(links)
			delete(links, a.Name)

			if len(links) == 0 {
				delete(attrs, "links")
			} else {
				attrs["links"] = links
			}

			return raw, true
		}
	}

	return DefaultPreload(attrs, a)
}

// Registry holds the associations declared on one entity type, in declaration
// order, together with the type's preload strategy.
type Registry struct {
	inflector  inflect.Inflector
	order      []string
	byName     map[string]Association
	preload    PreloadFunc
	preloadSet bool
}

func NewRegistry(inflector inflect.Inflector) *Registry {
	return &Registry{
		inflector: inflector,
		byName:    make(map[string]Association),
		preload:   DefaultPreload,
	}
}

// Declare registers a. Redeclaring a name with the same kind replaces the
// descriptor; redeclaring it with another kind is a configuration error.
func (r *Registry) Declare(a Association) error {
	if a.Name == "" {
		return errors.NewConfigurationError("associations must have a name")
	}

	if existing, ok := r.byName[a.Name]; ok {
		if existing.Kind != a.Kind {
			return errors.NewConfigurationError(
				fmt.Sprintf("association %s already declared as %s, cannot redeclare as %s", a.Name, existing.Kind, a.Kind),
			)
		}
	} else {
		r.order = append(r.order, a.Name)
	}

	r.byName[a.Name] = a
	return nil
}

// Inherit copies the descriptors of parent and, unless this registry already
// has its own, its preload strategy.
func (r *Registry) Inherit(parent *Registry) error {
	for _, a := range parent.Associations() {
		if err := r.Declare(a); err != nil {
			return err
		}
	}

	if !r.preloadSet {
		r.preload = parent.preload
	}

	return nil
}

// Resolve finds an association by its literal, pluralized or singularized name.
func (r *Registry) Resolve(name string) (Association, error) {
	candidates := []string{name, r.inflector.Pluralize(name), r.inflector.Singularize(name)}

	for _, candidate := range candidates {
		if a, ok := r.byName[candidate]; ok {
			return a, nil
		}
	}

	return Association{}, errors.NewUnhandledAssociationError(fmt.Sprintf("no association named %q", name))
}

// Associations returns a copy of the descriptors in declaration order.
func (r *Registry) Associations() []Association {
	result := make([]Association, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.byName[name])
	}
	return result
}

func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) PreloadStrategy() PreloadFunc {
	return r.preload
}

func (r *Registry) SetPreloadStrategy(fn PreloadFunc) {
	if fn == nil {
		fn = DefaultPreload
	}
	r.preload = fn
	r.preloadSet = true
}
