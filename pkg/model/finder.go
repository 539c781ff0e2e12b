package model

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cast"

	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

const TotalCountKey string = "total_count"

// Find fetches one entity with GET <path>/<id>.
func (t *Type) Find(ctx context.Context, id any, p ...params.Params) (*Entity, error) {
	transport, err := t.transport()
	if err != nil {
		return nil, err
	}

	path, rest, err := t.Path(formatID(id), params.Merge(p...))
	if err != nil {
		return nil, err
	}

	raw, err := transport.Get(ctx, path, rest)
	if err != nil {
		return nil, err
	}

	return t.InstantiateOne(raw, rest)
}

// FindMany fetches several entities at once by posting their ids to the batch
// path. Which of them come back is up to the server.
func (t *Type) FindMany(ctx context.Context, ids []any, p ...params.Params) (*Collection, error) {
	transport, err := t.transport()
	if err != nil {
		return nil, err
	}

	path, rest, err := t.Path(t.batchPath, params.Merge(p...))
	if err != nil {
		return nil, err
	}

	body := rest.Merge(params.Params{params.KeyID: append([]any(nil), ids...)})

	raw, err := transport.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	return t.InstantiateMany(raw, rest)
}

// All fetches the collection with GET <path>.
func (t *Type) All(ctx context.Context, p ...params.Params) (*Collection, error) {
	transport, err := t.transport()
	if err != nil {
		return nil, err
	}

	path, rest, err := t.Path("", params.Merge(p...))
	if err != nil {
		return nil, err
	}

	raw, err := transport.Get(ctx, path, rest)
	if err != nil {
		return nil, err
	}

	return t.InstantiateMany(raw, rest)
}

// Count asks the count path for the number of matching entities.
func (t *Type) Count(ctx context.Context, p ...params.Params) (int, error) {
	transport, err := t.transport()
	if err != nil {
		return 0, err
	}

	path, rest, err := t.Path(t.countPath, params.Merge(p...))
	if err != nil {
		return 0, err
	}

	raw, err := transport.Get(ctx, path, rest)
	if err != nil {
		return 0, err
	}

	m, ok := asAttributes(raw)
	if !ok {
		return 0, errors.NewBadResponseError(fmt.Sprintf("count of %s: expected an object, got %T", t.name, raw))
	}

	value, ok := m["count"]
	if !ok {
		return 0, errors.NewBadResponseError(fmt.Sprintf("count of %s: response has no count field", t.name))
	}

	count, err := cast.ToIntE(value)
	if err != nil {
		return 0, errors.NewBadResponseError(fmt.Sprintf("count of %s: %s", t.name, err.Error()))
	}

	return count, nil
}

// Path builds the request path for component and returns the parameters with
// the from key consumed. An absolute from replaces the model path, a relative
// one is appended to it.
func (t *Type) Path(component string, p params.Params) (string, params.Params, error) {
	rest := p.Without(params.KeyFrom)

	var base string
	from, _ := p.String(params.KeyFrom)

	if from != "" && (strings.HasPrefix(from, "/") || isURL(from)) {
		base = from
	} else {
		modelPath, err := t.ModelPath()
		if err != nil {
			return "", nil, err
		}

		base = modelPath
		if from != "" {
			base = modelPath + "/" + from
		}
	}

	if component != "" {
		base = base + "/" + component
	}

	return base, rest, nil
}

// ModelPath is the collection path of the type: the configured path or the
// pluralized, underscored type name. Abstract types have none.
func (t *Type) ModelPath() (string, error) {
	if t.abstract {
		return "", errors.NewConfigurationError(fmt.Sprintf("%s is abstract and does not have any path", t.name))
	}

	if t.path != "" {
		return t.path, nil
	}

	return t.CollectionKey(), nil
}

func (t *Type) BatchPath() string {
	return t.batchPath
}

func (t *Type) CountPath() string {
	return t.countPath
}

// InstanceKey is the envelope key of a single entity, e.g. "blog_post".
func (t *Type) InstanceKey() string {
	return t.schema.inflector.Underscore(t.name)
}

// CollectionKey is the envelope key of a list of entities, e.g. "blog_posts".
func (t *Type) CollectionKey() string {
	return t.schema.inflector.Pluralize(t.InstanceKey())
}

// InstantiateFrom builds a Collection from an array and an Entity otherwise.
func (t *Type) InstantiateFrom(raw any, p params.Params) (any, error) {
	if _, ok := raw.([]any); ok {
		return t.InstantiateMany(raw, p)
	}
	return t.InstantiateOne(raw, p)
}

// InstantiateMany accepts {"<collection key>": [...], "total_count": N} or a
// bare array. A missing collection key yields an empty collection.
func (t *Type) InstantiateMany(raw any, p params.Params) (*Collection, error) {
	var records []any
	var totalCount *int

	switch typed := raw.(type) {
	case []any:
		records = typed
	case nil:
		records = nil
	default:
		m, ok := asAttributes(typed)
		if !ok {
			return nil, errors.NewBadResponseError(fmt.Sprintf("%s: cannot read a collection from %T", t.name, raw))
		}

		if value, found := m[t.CollectionKey()]; found && value != nil {
			records, ok = value.([]any)
			if !ok {
				return nil, errors.NewBadResponseError(fmt.Sprintf("%s: %s is not a list", t.name, t.CollectionKey()))
			}
		}

		if value, found := m[TotalCountKey]; found && value != nil {
			n, err := cast.ToIntE(value)
			if err != nil {
				return nil, errors.NewBadResponseError(fmt.Sprintf("%s: %s: %s", t.name, TotalCountKey, err.Error()))
			}
			totalCount = &n
		}
	}

	items := make([]*Entity, 0, len(records))
	for _, record := range records {
		e, err := t.InstantiateOne(record, p)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}

	return NewCollection(items, intParam(p, params.KeyLimit), intParam(p, params.KeyOffset), totalCount), nil
}

// InstantiateOne accepts {"<instance key>": {...}} or a bare attribute object.
func (t *Type) InstantiateOne(raw any, p params.Params) (*Entity, error) {
	attrs, ok := asAttributes(raw)
	if !ok {
		return nil, errors.NewBadResponseError(fmt.Sprintf("%s: cannot read an entity from %T", t.name, raw))
	}

	if wrapped, found := attrs[t.InstanceKey()]; found {
		attrs, ok = asAttributes(wrapped)
		if !ok {
			return nil, errors.NewBadResponseError(fmt.Sprintf("%s: %s is not an object", t.name, t.InstanceKey()))
		}
	}

	return t.New(attrs, p)
}

func (t *Type) transport() (Transport, error) {
	if t.schema.transport == nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("schema of %s has no transport", t.name))
	}
	return t.schema.transport, nil
}

func asAttributes(raw any) (map[string]any, bool) {
	switch typed := raw.(type) {
	case map[string]any:
		return typed, true
	case params.Params:
		return typed, true
	}
	return nil, false
}

func intParam(p params.Params, key string) *int {
	if n, ok := p.Int(key); ok {
		return &n
	}
	return nil
}

func formatID(id any) string {
	return url.PathEscape(cast.ToString(id))
}
