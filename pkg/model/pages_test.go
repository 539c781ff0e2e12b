package model

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

func pagedPosts(total int) responder {
	return func(p params.Params) (any, error) {
		offset, _ := p.Int("offset")
		limit, _ := p.Int("limit")

		posts := []any{}
		for id := offset + 1; id <= total && id <= offset+limit; id++ {
			posts = append(posts, map[string]any{"id": id})
		}

		return map[string]any{"posts": posts}, nil
	}
}

func TestFindEachWalksAllPages(t *testing.T) {
	is := is.New(t)
	transport := newRecordingTransport().on(http.MethodGet, "posts", pagedPosts(5))
	post := lookup(is, blogSchema(is, transport), "Post")

	ids := []any{}
	count, err := post.Query().FindEach(context.Background(), 2, func(e *Entity) error {
		ids = append(ids, e.ID())
		return nil
	})

	is.NoErr(err)
	is.Equal(count, 5)
	is.Equal(ids, []any{1, 2, 3, 4, 5})
	is.Equal(transport.RequestCount(), 3)
	is.Equal(transport.last().params, params.Params{"offset": 4, "limit": 2})
}

func TestFindEachStopsOnCallbackError(t *testing.T) {
	is := is.New(t)
	transport := newRecordingTransport().on(http.MethodGet, "posts", pagedPosts(5))
	post := lookup(is, blogSchema(is, transport), "Post")

	count, err := post.Query().FindEach(context.Background(), 2, func(e *Entity) error {
		if e.ID() == 3 {
			return fmt.Errorf("stop")
		}
		return nil
	})

	is.True(err != nil)
	is.Equal(count, 2)
	is.Equal(transport.RequestCount(), 2)
}

func TestFindEachStopsWhenServerIgnoresOffset(t *testing.T) {
	is := is.New(t)
	transport := newRecordingTransport().on(http.MethodGet, "posts", func(p params.Params) (any, error) {
		return map[string]any{"posts": []any{
			map[string]any{"id": 1},
			map[string]any{"id": 2},
		}}, nil
	})
	post := lookup(is, blogSchema(is, transport), "Post")

	count, err := post.Query().FindEach(context.Background(), 2, func(*Entity) error { return nil })

	is.True(goerrors.Is(err, errors.ErrBadResponse))
	is.Equal(count, 2)
	is.Equal(transport.RequestCount(), 2)
}

func TestFindEachRejectsInvalidPageSize(t *testing.T) {
	is := is.New(t)
	post := lookup(is, blogSchema(is, newRecordingTransport()), "Post")

	_, err := post.Query().FindEach(context.Background(), 0, func(*Entity) error { return nil })
	is.True(goerrors.Is(err, errors.ErrConfiguration))
}
