// Package config declares entity schemas from YAML documents.
package config

import (
	"fmt"
	"io"

	yaml "gopkg.in/yaml.v2"

	"github.com/diwise/restmodel/pkg/model"
	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

type AssociationConfig struct {
	Name        string         `yaml:"name"`
	Kind        string         `yaml:"kind"`
	ClassName   string         `yaml:"className"`
	ForeignKey  string         `yaml:"foreignKey"`
	From        string         `yaml:"from"`
	As          string         `yaml:"as"`
	Polymorphic bool           `yaml:"polymorphic"`
	Params      map[string]any `yaml:"params"`
}

type TypeConfig struct {
	Name         string              `yaml:"name"`
	Abstract     bool                `yaml:"abstract"`
	Extends      string              `yaml:"extends"`
	Path         string              `yaml:"path"`
	BatchPath    string              `yaml:"batchPath"`
	CountPath    string              `yaml:"countPath"`
	Preload      string              `yaml:"preload"`
	Associations []AssociationConfig `yaml:"associations"`
}

type Config struct {
	Site  string       `yaml:"site"`
	Types []TypeConfig `yaml:"types"`
}

const (
	PreloadDefault string = "default"
	PreloadLinks   string = "links"
)

func Load(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)

	return cfg, err
}

// Build declares every configured type and its associations on a new schema.
// Parents are declared before the types extending them, so that each subtype
// starts from its parent's complete registry.
func Build(cfg *Config, transport model.Transport, options ...model.SchemaOption) (*model.Schema, error) {
	if cfg.Site != "" {
		options = append([]model.SchemaOption{model.WithSite(cfg.Site)}, options...)
	}

	s := model.NewSchema(transport, options...)

	byName := make(map[string]TypeConfig, len(cfg.Types))
	for _, tc := range cfg.Types {
		if _, exists := byName[tc.Name]; exists {
			return nil, errors.NewConfigurationError(fmt.Sprintf("type %s is configured more than once", tc.Name))
		}
		byName[tc.Name] = tc
	}

	b := &builder{schema: s, configs: byName, visiting: map[string]bool{}}

	for _, tc := range cfg.Types {
		if _, err := b.declare(tc.Name); err != nil {
			return nil, err
		}
	}

	return s, nil
}

type builder struct {
	schema   *model.Schema
	configs  map[string]TypeConfig
	visiting map[string]bool
}

func (b *builder) declare(name string) (*model.Type, error) {
	if t, err := b.schema.Lookup(name); err == nil {
		return t, nil
	}

	tc, ok := b.configs[name]
	if !ok {
		return nil, errors.NewConfigurationError(fmt.Sprintf("type %s is not configured", name))
	}

	if b.visiting[name] {
		return nil, errors.NewConfigurationError(fmt.Sprintf("type %s extends itself", name))
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	options, err := b.typeOptions(tc)
	if err != nil {
		return nil, err
	}

	var t *model.Type
	if tc.Abstract {
		t, err = b.schema.Abstract(tc.Name, options...)
	} else {
		t, err = b.schema.Define(tc.Name, options...)
	}
	if err != nil {
		return nil, err
	}

	for _, ac := range tc.Associations {
		if err := declareAssociation(t, ac); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", tc.Name, ac.Name, err)
		}
	}

	return t, nil
}

func (b *builder) typeOptions(tc TypeConfig) ([]model.TypeOption, error) {
	options := []model.TypeOption{
		model.WithPath(tc.Path),
		model.WithBatchPath(tc.BatchPath),
		model.WithCountPath(tc.CountPath),
	}

	switch tc.Preload {
	case "":
	case PreloadDefault:
		options = append(options, model.WithPreload(model.DefaultPreload))
	case PreloadLinks:
		options = append(options, model.WithPreload(model.LinksEnvelope))
	default:
		return nil, errors.NewConfigurationError(fmt.Sprintf("type %s has unknown preload strategy %q", tc.Name, tc.Preload))
	}

	if tc.Extends != "" {
		parent, err := b.declare(tc.Extends)
		if err != nil {
			return nil, err
		}
		options = append(options, model.Extends(parent))
	}

	return options, nil
}

func declareAssociation(t *model.Type, ac AssociationConfig) error {
	options := []model.AssociationOption{}

	if ac.ClassName != "" {
		options = append(options, model.ClassName(ac.ClassName))
	}
	if ac.ForeignKey != "" {
		options = append(options, model.ForeignKey(ac.ForeignKey))
	}
	if ac.From != "" {
		options = append(options, model.From(ac.From))
	}
	if ac.As != "" {
		options = append(options, model.As(ac.As))
	}
	if len(ac.Params) > 0 {
		options = append(options, model.WithParams(normalize(ac.Params)))
	}

	switch ac.Kind {
	case "has_many":
		return t.HasMany(ac.Name, options...)
	case "has_one":
		return t.HasOne(ac.Name, options...)
	case "belongs_to":
		if ac.Polymorphic {
			options = append(options, model.Polymorphic())
		}
		return t.BelongsTo(ac.Name, options...)
	case "polymorphic_belongs_to":
		return t.BelongsTo(ac.Name, append(options, model.Polymorphic())...)
	}

	return errors.NewConfigurationError(fmt.Sprintf("unknown association kind %q", ac.Kind))
}

// normalize converts the map[interface{}]interface{} values produced by the
// yaml decoder into parameter mappings.
func normalize(m map[string]any) params.Params {
	p := params.Params{}
	for k, v := range m {
		p[k] = normalizeValue(v)
	}
	return p
}

func normalizeValue(v any) any {
	switch typed := v.(type) {
	case map[any]any:
		p := params.Params{}
		for k, nested := range typed {
			p[fmt.Sprint(k)] = normalizeValue(nested)
		}
		return p
	case map[string]any:
		return normalize(typed)
	case []any:
		items := make([]any, len(typed))
		for i := range typed {
			items[i] = normalizeValue(typed[i])
		}
		return items
	}
	return v
}
