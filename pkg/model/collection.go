package model

import (
	"encoding/json"
	"iter"
)

// Collection is an ordered page of entities. Limit and offset echo the request
// parameters that produced it, total count is whatever the server reported.
type Collection struct {
	items      []*Entity
	limit      *int
	offset     *int
	totalCount *int
}

func NewCollection(items []*Entity, limit, offset, totalCount *int) *Collection {
	return &Collection{
		items:      items,
		limit:      limit,
		offset:     offset,
		totalCount: totalCount,
	}
}

func emptyCollection() *Collection {
	return &Collection{items: []*Entity{}}
}

func (c *Collection) Len() int {
	return len(c.items)
}

func (c *Collection) Items() []*Entity {
	return append([]*Entity(nil), c.items...)
}

func (c *Collection) At(i int) *Entity {
	return c.items[i]
}

// First returns the head of the collection or nil when it is empty.
func (c *Collection) First() *Entity {
	if len(c.items) == 0 {
		return nil
	}
	return c.items[0]
}

// All iterates over the entities in order.
func (c *Collection) All() iter.Seq2[int, *Entity] {
	return func(yield func(int, *Entity) bool) {
		for i, e := range c.items {
			if !yield(i, e) {
				return
			}
		}
	}
}

func (c *Collection) Limit() (int, bool) {
	return deref(c.limit)
}

func (c *Collection) Offset() (int, bool) {
	return deref(c.offset)
}

func (c *Collection) TotalCount() (int, bool) {
	return deref(c.totalCount)
}

func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Items      []*Entity `json:"items"`
		Limit      *int      `json:"limit,omitempty"`
		Offset     *int      `json:"offset,omitempty"`
		TotalCount *int      `json:"total_count,omitempty"`
	}{
		Items:      c.items,
		Limit:      c.limit,
		Offset:     c.offset,
		TotalCount: c.totalCount,
	})
}

func deref(n *int) (int, bool) {
	if n == nil {
		return 0, false
	}
	return *n, true
}
