package hostenv

import (
	"sync/atomic"

	"github.com/wippyai/asbridge/errors"
)

// Cell is a set-once slot: it starts Unset and moves to Set(value) exactly once.
// Reads and the single write may race; a reader sees either Unset or the
// fully published value.
type Cell[T any] struct {
	v    atomic.Pointer[T]
	name string
}

// NewCell returns an unset cell. name appears in errors.
func NewCell[T any](name string) *Cell[T] {
	return &Cell[T]{name: name}
}

// Set stores v. A second Set returns an already_set error and leaves the
// first value in place.
func (c *Cell[T]) Set(v T) error {
	if !c.v.CompareAndSwap(nil, &v) {
		return errors.AlreadySet(c.name)
	}
	return nil
}

// Get returns the stored value or a not_ready error.
func (c *Cell[T]) Get() (T, error) {
	p := c.v.Load()
	if p == nil {
		var zero T
		return zero, errors.NotReady(c.name)
	}
	return *p, nil
}

func (c *Cell[T]) IsSet() bool {
	return c.v.Load() != nil
}

func (c *Cell[T]) Name() string {
	return c.name
}
