package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/restmodel/internal/pkg/fakeapi"
	"github.com/diwise/restmodel/pkg/model/params"
)

func TestCountCommand(t *testing.T) {
	is, url, schemaFile := setupTest(t)

	out, err := run(is, "--schema", schemaFile, "--url", url, "count", "Post", "--param", "state=published")

	is.NoErr(err)
	is.Equal(out, "{\n  \"count\": 2\n}\n")
}

func TestFindCommandEmbedsLinks(t *testing.T) {
	is, url, schemaFile := setupTest(t)

	out, err := run(is, "--schema", schemaFile, "--url", url, "find", "Post", "1", "--links", "comments")

	is.NoErr(err)
	is.True(strings.Contains(out, `"title": "First"`))
	is.True(strings.Contains(out, `"comments": [`))
}

func TestFindCommandWithSeveralIDsUsesBatch(t *testing.T) {
	is, url, schemaFile := setupTest(t)

	out, err := run(is, "--schema", schemaFile, "--url", url, "find", "Post", "1", "2")

	is.NoErr(err)
	is.True(strings.Contains(out, `"title": "First"`))
	is.True(strings.Contains(out, `"title": "Second"`))
}

func TestAllCommandFailsForUnknownType(t *testing.T) {
	is, url, schemaFile := setupTest(t)

	_, err := run(is, "--schema", schemaFile, "--url", url, "all", "Unknown")

	is.True(err != nil) // unknown types must be reported
}

func TestVersionCommand(t *testing.T) {
	is := is.New(t)

	out, err := run(is, "version")

	is.NoErr(err)
	is.Equal(out, "restmodel version: test\n")
}

func TestParseParams(t *testing.T) {
	is := is.New(t)

	p, err := parseParams([]string{"state=open", "filter.lang=sv", "filter.tag=go", "limit=5"})
	is.NoErr(err)
	is.Equal(p, params.Params{
		"state":  "open",
		"limit":  "5",
		"filter": params.Params{"lang": "sv", "tag": "go"},
	})

	_, err = parseParams([]string{"novalue"})
	is.True(err != nil)
}

func TestLoadAuthenticator(t *testing.T) {
	is := is.New(t)

	policyFile := filepath.Join(t.TempDir(), "authz.rego")
	is.NoErr(os.WriteFile(policyFile, []byte("package example.authz\n\ndefault allow := false\n"), 0o600))

	_, err := loadAuthenticator(context.Background(), policyFile)
	is.NoErr(err)

	_, err = loadAuthenticator(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	is.True(err != nil)
}

func run(is *is.I, args ...string) (string, error) {
	out := &bytes.Buffer{}

	cmd := newRootCmd("test")
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupTest(t *testing.T) (*is.I, string, string) {
	is := is.New(t)

	store, err := fakeapi.LoadStore(bytes.NewBufferString(fixtures))
	is.NoErr(err)

	ts := httptest.NewServer(fakeapi.New(store, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(ts.Close)

	schemaFile := filepath.Join(t.TempDir(), "schema.yaml")
	is.NoErr(os.WriteFile(schemaFile, []byte(schema), 0o600))

	return is, ts.URL, schemaFile
}

const schema string = `
types:
  - name: Post
    associations:
      - name: comments
        kind: has_many
  - name: Comment
`

const fixtures string = `{
	"posts": [
		{"id": 1, "title": "First", "state": "published"},
		{"id": 2, "title": "Second", "state": "published"},
		{"id": 3, "title": "Third", "state": "draft"}
	],
	"comments": [
		{"id": 10, "post_id": 1}
	]
}`
