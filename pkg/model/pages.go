package model

import (
	"context"
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"

	"github.com/diwise/restmodel/pkg/model/errors"
)

// FindEach walks the query result page by page, size entities per request,
// and calls fn for every entity. It stops after a short page, a reported
// total count or the first error, and returns the number of entities visited.
func (q *Query) FindEach(ctx context.Context, size int, fn func(*Entity) error) (count int, err error) {
	if size <= 0 {
		return 0, errors.NewConfigurationError(fmt.Sprintf("page size must be positive, got %d", size))
	}

	logger := logging.GetFromContext(ctx)
	offset := q.OffsetValue()

	var previous string

	for {
		var page *Collection

		page, err = q.Offset(offset).Limit(size).All(ctx)
		if err != nil {
			return
		}

		logger.Debug("fetched page", "type", q.typ.name, "offset", offset, "size", page.Len())

		// a server ignoring offset returns the same page over and over
		head := pageHead(page)
		if head != "" && head == previous {
			err = errors.NewBadResponseError(fmt.Sprintf("%s: page at offset %d repeats the previous page", q.typ.name, offset))
			return
		}
		previous = head

		for _, e := range page.All() {
			if err = fn(e); err != nil {
				return
			}
			count++
		}

		offset += page.Len()

		if page.Len() < size {
			return
		}

		if total, ok := page.TotalCount(); ok && offset >= total {
			return
		}
	}
}

func pageHead(page *Collection) string {
	first := page.First()
	if first == nil || first.ID() == nil {
		return ""
	}
	return fmt.Sprint(first.ID())
}
