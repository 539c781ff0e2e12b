package config

import (
	"bytes"
	"context"
	goerrors "errors"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/restmodel/pkg/model"
	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

func TestLoadConfig(t *testing.T) {
	is, cfg := setupConfigTest(t)

	is.Equal(cfg.Site, "https://api.example.com")
	is.Equal(len(cfg.Types), 5) // should find five types
}

func TestLoadTypes(t *testing.T) {
	is, cfg := setupConfigTest(t)

	article := cfg.Types[0]
	is.Equal(article.Name, "Article")
	is.Equal(article.Extends, "Content")
	is.Equal(article.Path, "v1/articles")
	is.Equal(len(article.Associations), 2)

	content := cfg.Types[1]
	is.True(content.Abstract)
	is.Equal(content.Preload, PreloadLinks)
}

func TestBuildDeclaresParentsFirst(t *testing.T) {
	is, cfg := setupConfigTest(t)

	s, err := Build(cfg, nil)
	is.NoErr(err)
	is.Equal(s.Types(), []string{"Article", "Comment", "Content", "Image", "User"})

	article, err := s.Lookup("Article")
	is.NoErr(err)

	names := []string{}
	for _, a := range article.Registry().Associations() {
		names = append(names, a.Name)
	}
	is.Equal(names, []string{"author", "comments", "cover"})

	path, err := article.ModelPath()
	is.NoErr(err)
	is.Equal(path, "v1/articles")

	comments, err := article.Registry().Resolve("comment")
	is.NoErr(err)
	is.Equal(comments.From, "https://api.example.com/v1/comments")
	is.Equal(comments.ExtraParams(nil), params.Params{"filter": params.Params{"approved": true}})

	comment, err := s.Lookup("Comment")
	is.NoErr(err)
	owner, err := comment.Registry().Resolve("owner")
	is.NoErr(err)
	is.Equal(owner.Kind, model.BelongsToPoly)
	is.Equal(owner.TypeAttribute(), "commentable_type")
}

func TestBuiltSchemaUsesConfiguredPreload(t *testing.T) {
	is, cfg := setupConfigTest(t)

	s, err := Build(cfg, nil)
	is.NoErr(err)
	article, _ := s.Lookup("Article")

	e, err := article.New(map[string]any{
		"id":    1,
		"links": map[string]any{"author": map[string]any{"id": 2}},
	}, nil)
	is.NoErr(err)

	author, err := e.RequireOne(context.Background(), "author")
	is.NoErr(err)
	is.Equal(author.Type().Name(), "User")
}

func TestBuildRejectsInvalidConfigurations(t *testing.T) {
	testCases := map[string]string{
		"cycle": `
types:
  - name: A
    extends: B
  - name: B
    extends: A
`,
		"unknown parent": `
types:
  - name: A
    extends: Missing
`,
		"unknown kind": `
types:
  - name: A
    associations:
      - name: things
        kind: has_lots
`,
		"unknown preload": `
types:
  - name: A
    preload: magic
`,
		"duplicate": `
types:
  - name: A
  - name: A
`,
	}

	for name, doc := range testCases {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)

			cfg, err := Load(bytes.NewBufferString(doc))
			is.NoErr(err)

			_, err = Build(cfg, nil)
			is.True(goerrors.Is(err, errors.ErrConfiguration))
		})
	}
}

func setupConfigTest(t *testing.T) (*is.I, *Config) {
	is := is.New(t)
	cfgData := bytes.NewBuffer([]byte(configFile))
	cfg, err := Load(cfgData)
	is.NoErr(err)

	return is, cfg
}

var configFile string = `
site: https://api.example.com
types:
  - name: Article
    extends: Content
    path: v1/articles
    associations:
      - name: comments
        kind: has_many
        from: v1/comments
        params:
          filter:
            approved: true
      - name: cover
        kind: has_one
        className: Image
  - name: Content
    abstract: true
    preload: links
    associations:
      - name: author
        kind: belongs_to
        className: User
  - name: Comment
    associations:
      - name: owner
        kind: belongs_to
        polymorphic: true
        as: commentable
  - name: User
  - name: Image
`
