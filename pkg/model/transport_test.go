package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/matryer/is"

	"github.com/diwise/restmodel/pkg/model/params"
)

type recordedRequest struct {
	method string
	path   string
	params params.Params
}

type responder func(p params.Params) (any, error)

// recordingTransport answers requests from canned responses keyed by method
// and path and remembers every request it was asked to perform.
type recordingTransport struct {
	responses map[string]responder
	requests  []recordedRequest
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{
		responses: make(map[string]responder),
	}
}

func (rt *recordingTransport) on(method, path string, r responder) *recordingTransport {
	rt.responses[method+" "+path] = r
	return rt
}

func (rt *recordingTransport) onJSON(method, path, body string) *recordingTransport {
	return rt.on(method, path, func(params.Params) (any, error) {
		return decode(body), nil
	})
}

func (rt *recordingTransport) Get(_ context.Context, path string, p params.Params) (any, error) {
	return rt.do(http.MethodGet, path, p)
}

func (rt *recordingTransport) Post(_ context.Context, path string, body params.Params) (any, error) {
	return rt.do(http.MethodPost, path, body)
}

func (rt *recordingTransport) do(method, path string, p params.Params) (any, error) {
	rt.requests = append(rt.requests, recordedRequest{method: method, path: path, params: p.Clone()})

	r, ok := rt.responses[method+" "+path]
	if !ok {
		return nil, fmt.Errorf("no response registered for %s %s", method, path)
	}

	return r(p)
}

func (rt *recordingTransport) RequestCount() int {
	return len(rt.requests)
}

func (rt *recordingTransport) last() recordedRequest {
	if len(rt.requests) == 0 {
		return recordedRequest{}
	}
	return rt.requests[len(rt.requests)-1]
}

func decode(body string) any {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		panic(err)
	}
	return v
}

// blogSchema declares Post, Comment, User, Image and Summary:
//
//	Post    has_many comments, belongs_to author (User), has_one summary
//	Comment belongs_to post, polymorphic belongs_to owner
func blogSchema(is *is.I, transport Transport, options ...SchemaOption) *Schema {
	s := NewSchema(transport, options...)

	post, err := s.Define("Post")
	is.NoErr(err)
	is.NoErr(post.HasMany("comments"))
	is.NoErr(post.BelongsTo("author", ClassName("User")))
	is.NoErr(post.HasOne("summary"))

	comment, err := s.Define("Comment")
	is.NoErr(err)
	is.NoErr(comment.BelongsTo("post"))
	is.NoErr(comment.BelongsTo("owner", Polymorphic()))

	_, err = s.Define("User")
	is.NoErr(err)

	_, err = s.Define("Image")
	is.NoErr(err)

	_, err = s.Define("Summary")
	is.NoErr(err)

	return s
}

func lookup(is *is.I, s *Schema, name string) *Type {
	t, err := s.Lookup(name)
	is.NoErr(err)
	return t
}

func attrs(body string) map[string]any {
	return decode(body).(map[string]any)
}
