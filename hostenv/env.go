package hostenv

import (
	"sync/atomic"

	"github.com/wippyai/asbridge"
	"github.com/wippyai/asbridge/errors"
)

// Export names of the guest runtime functions the environment tracks.
const (
	FieldMemory = "memory"
	FieldNew    = "__new"
	FieldPin    = "__pin"
	FieldUnpin  = "__unpin"
)

// Environment is shared by the host import functions and the call path of one
// guest instance. It is created empty before instantiation, filled from the
// instance's exports, then frozen with Bind.
//
// Import functions may run during instantiation, before anything is set;
// every accessor therefore returns a not_ready error instead of a value it
// does not have.
type Environment struct {
	memory *Cell[asbridge.Memory]
	newFn  *Cell[asbridge.Func]
	pinFn  *Cell[asbridge.Func]
	unpin  *Cell[asbridge.Func]
	bound  atomic.Pointer[Bound]
}

// New returns an empty environment.
func New() *Environment {
	return &Environment{
		memory: NewCell[asbridge.Memory](FieldMemory),
		newFn:  NewCell[asbridge.Func](FieldNew),
		pinFn:  NewCell[asbridge.Func](FieldPin),
		unpin:  NewCell[asbridge.Func](FieldUnpin),
	}
}

func (e *Environment) SetMemory(m asbridge.Memory) error { return e.memory.Set(m) }
func (e *Environment) SetNew(f asbridge.Func) error      { return e.newFn.Set(f) }
func (e *Environment) SetPin(f asbridge.Func) error      { return e.pinFn.Set(f) }
func (e *Environment) SetUnpin(f asbridge.Func) error    { return e.unpin.Set(f) }

// Memory returns the guest memory, or not_ready before SetMemory.
func (e *Environment) Memory() (asbridge.Memory, error) { return e.memory.Get() }

// MemoryView is Memory under the name callers use when they only need a
// short-lived view for one decode.
func (e *Environment) MemoryView() (asbridge.Memory, error) { return e.memory.Get() }

func (e *Environment) New() (asbridge.Func, error)   { return e.newFn.Get() }
func (e *Environment) Pin() (asbridge.Func, error)   { return e.pinFn.Get() }
func (e *Environment) Unpin() (asbridge.Func, error) { return e.unpin.Get() }

// Bind freezes the environment into a Bound value. memory, __new and __pin
// are required; __unpin is optional. Bind succeeds once; later calls return
// already_set.
func (e *Environment) Bind() (*Bound, error) {
	mem, err := e.memory.Get()
	if err != nil {
		return nil, err
	}
	newFn, err := e.newFn.Get()
	if err != nil {
		return nil, err
	}
	pinFn, err := e.pinFn.Get()
	if err != nil {
		return nil, err
	}
	b := &Bound{memory: mem, newFn: newFn, pinFn: pinFn}
	if f, err := e.unpin.Get(); err == nil {
		b.unpinFn = f
	}
	if !e.bound.CompareAndSwap(nil, b) {
		return nil, errors.AlreadySet("environment")
	}
	return b, nil
}

// Bound returns the frozen environment, or not_ready before Bind.
func (e *Environment) Bound() (*Bound, error) {
	b := e.bound.Load()
	if b == nil {
		return nil, errors.NotReady("environment")
	}
	return b, nil
}

// Bound is the immutable, fully populated environment.
type Bound struct {
	memory  asbridge.Memory
	newFn   asbridge.Func
	pinFn   asbridge.Func
	unpinFn asbridge.Func
}

func (b *Bound) Memory() asbridge.Memory { return b.memory }
func (b *Bound) New() asbridge.Func      { return b.newFn }
func (b *Bound) Pin() asbridge.Func      { return b.pinFn }

// Unpin returns the guest's __unpin export, if it has one.
func (b *Bound) Unpin() (asbridge.Func, bool) {
	return b.unpinFn, b.unpinFn != nil
}
