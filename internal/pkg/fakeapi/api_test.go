package fakeapi

import (
	"bytes"
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/restmodel/pkg/client"
	"github.com/diwise/restmodel/pkg/model"
	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

func TestQueryReturnsEnvelopeWithTotalCount(t *testing.T) {
	is, ts := setupTest(t)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, http.MethodGet, "/posts?state=published&limit=1", nil)

	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(body, `{"posts":[{"author_id":1,"id":1,"state":"published","title":"First"}],"total_count":2}`)
}

func TestRetrieveWrapsRecordInInstanceKey(t *testing.T) {
	is, ts := setupTest(t)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, http.MethodGet, "/users/1", nil)

	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(body, `{"user":{"id":1,"name":"alice"}}`)
}

func TestRetrieveUnknownRecordIsNotFound(t *testing.T) {
	is, ts := setupTest(t)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, http.MethodGet, "/users/99", nil)

	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestCountAndBatch(t *testing.T) {
	is, ts := setupTest(t)
	defer ts.Close()

	_, body := newTestRequest(is, ts, http.MethodGet, "/comments/count?post_id=1", nil)
	is.Equal(body, `{"count":2}`)

	_, body = newTestRequest(is, ts, http.MethodPost, "/posts/batch", bytes.NewBufferString(`{"id":[3,1]}`))
	is.Equal(body, `{"posts":[{"author_id":1,"id":1,"state":"published","title":"First"},{"author_id":2,"id":3,"state":"draft","title":"Third"}]}`)
}

func TestSchemaEndToEnd(t *testing.T) {
	is, ts := setupTest(t)
	defer ts.Close()

	ctx := context.Background()
	s := blogSchema(is, client.New(ts.URL))
	post, _ := s.Lookup("Post")

	published := post.Where(params.Params{"state": "published"})

	count, err := published.Count(ctx)
	is.NoErr(err)
	is.Equal(count, 2)

	posts, err := published.Limit(10).All(ctx)
	is.NoErr(err)
	is.Equal(posts.Len(), 2)

	total, _ := posts.TotalCount()
	is.Equal(total, 2)

	first := posts.First()

	author, err := first.RequireOne(ctx, "author")
	is.NoErr(err)
	name, _ := author.Attr("name")
	is.Equal(name, "alice")

	comments, err := first.Many(ctx, "comments")
	is.NoErr(err)
	is.Equal(comments.Len(), 2)

	nested, err := first.Many(ctx, "replies")
	is.NoErr(err)
	is.Equal(nested.Len(), 2)

	owner, err := comments.First().One(ctx, "owner")
	is.NoErr(err)
	is.Equal(owner.Type().Name(), "User")

	orphan, err := comments.At(1).One(ctx, "owner")
	is.NoErr(err)
	is.True(orphan == nil)
}

func TestSchemaEndToEndWithLinks(t *testing.T) {
	is, ts := setupTest(t)
	defer ts.Close()

	ctx := context.Background()
	s := blogSchema(is, client.New(ts.URL))
	post, _ := s.Lookup("Post")

	e, err := post.Query().Links("comments").Find(ctx, 2)
	is.NoErr(err)

	state, _ := e.SlotState("comments")
	is.Equal(state, model.ResolvedCollection)

	comments, err := e.Many(ctx, "comments")
	is.NoErr(err)
	is.Equal(comments.Len(), 1)

	_, err = post.Find(ctx, 42)
	is.True(goerrors.Is(err, errors.ErrNotFound))

	none, err := post.Where(params.Params{"state": "archived"}).First(ctx)
	is.NoErr(err)
	is.True(none == nil)
}

func TestLoadStore(t *testing.T) {
	is := is.New(t)

	store, err := LoadStore(bytes.NewBufferString(fixtures))
	is.NoErr(err)
	is.Equal(store.Collections(), []string{"comments", "posts", "users"})

	_, err = LoadStore(bytes.NewBufferString(`[]`))
	is.True(err != nil)
}

func blogSchema(is *is.I, transport model.Transport) *model.Schema {
	s := model.NewSchema(transport)

	post, err := s.Define("Post")
	is.NoErr(err)
	is.NoErr(post.HasMany("comments"))
	is.NoErr(post.HasMany("replies", model.ClassName("Comment"), model.WithParamsFunc(func(e *model.Entity) params.Params {
		return params.Params{params.KeyFrom: fmt.Sprintf("/posts/%v/comments", e.ID())}
	})))
	is.NoErr(post.BelongsTo("author", model.ClassName("User")))

	comment, err := s.Define("Comment")
	is.NoErr(err)
	is.NoErr(comment.BelongsTo("owner", model.Polymorphic()))

	_, err = s.Define("User")
	is.NoErr(err)

	return s
}

func setupTest(t *testing.T) (*is.I, *httptest.Server) {
	is := is.New(t)

	store, err := LoadStore(bytes.NewBufferString(fixtures))
	is.NoErr(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(New(store, logger))

	return is, ts
}

func newTestRequest(is *is.I, ts *httptest.Server, method, path string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, ts.URL+path, body)
	req.Header.Add("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err) // http request failed
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	return resp, string(respBody)
}

const fixtures string = `{
	"users": [
		{"id": 1, "name": "alice"},
		{"id": 2, "name": "bob"}
	],
	"posts": [
		{"id": 1, "title": "First", "state": "published", "author_id": 1},
		{"id": 2, "title": "Second", "state": "published", "author_id": 2},
		{"id": 3, "title": "Third", "state": "draft", "author_id": 2}
	],
	"comments": [
		{"id": 10, "post_id": 1, "owner_type": "User", "owner_id": 2},
		{"id": 11, "post_id": 1, "owner_type": null, "owner_id": null},
		{"id": 12, "post_id": 2}
	]
}`
