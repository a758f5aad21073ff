package core

import (
	"iter"
	"reflect"

	"github.com/coregx/relmap/internal/entity"
)

// Collection is the hydrated result of a query.
type Collection[T any] struct {
	items []*T
	meta  *entity.Meta
}

func hydrate[T any](meta *entity.Meta, rs *rowSet) (*Collection[T], error) {
	c := &Collection[T]{items: make([]*T, 0, len(rs.rows)), meta: meta}
	for _, row := range rs.rows {
		v := new(T)
		if err := meta.Hydrate(rs.columns, row, reflect.ValueOf(v).Elem()); err != nil {
			return nil, err
		}
		c.items = append(c.items, v)
	}
	return c, nil
}

// Len returns the number of entities.
func (c *Collection[T]) Len() int { return len(c.items) }

// First returns the first entity, or nil.
func (c *Collection[T]) First() *T {
	if len(c.items) == 0 {
		return nil
	}
	return c.items[0]
}

// Items returns the entities. The slice is a copy; the entities are not.
func (c *Collection[T]) Items() []*T {
	out := make([]*T, len(c.items))
	copy(out, c.items)
	return out
}

// All iterates over the entities with their position.
func (c *Collection[T]) All() iter.Seq2[int, *T] {
	return func(yield func(int, *T) bool) {
		for i, v := range c.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Map applies fn to every entity.
func (c *Collection[T]) Map(fn func(*T) any) []any {
	out := make([]any, len(c.items))
	for i, v := range c.items {
		out[i] = fn(v)
	}
	return out
}

// Filter returns the entities for which keep is true.
func (c *Collection[T]) Filter(keep func(*T) bool) *Collection[T] {
	out := &Collection[T]{meta: c.meta}
	for _, v := range c.items {
		if keep(v) {
			out.items = append(out.items, v)
		}
	}
	return out
}

// Identities returns the distinct, non-zero primary keys in result order.
func (c *Collection[T]) Identities() []any {
	if c.meta == nil || c.meta.PrimaryKey() == nil {
		return nil
	}
	seen := make(map[any]bool, len(c.items))
	var ids []any
	for _, v := range c.items {
		id, ok, err := c.meta.PrimaryValue(reflect.ValueOf(v))
		if err != nil || !ok {
			continue
		}
		if k := reflect.TypeOf(id); k != nil && k.Comparable() {
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		ids = append(ids, id)
	}
	return ids
}

// MapCollection applies fn to every entity of c.
func MapCollection[T, R any](c *Collection[T], fn func(*T) R) []R {
	out := make([]R, len(c.items))
	for i, v := range c.items {
		out[i] = fn(v)
	}
	return out
}
