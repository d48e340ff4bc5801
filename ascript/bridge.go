package ascript

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/wippyai/asbridge"
	"github.com/wippyai/asbridge/errors"
	"github.com/wippyai/asbridge/hostenv"
)

// Bridge materializes host strings inside guest memory through the guest
// runtime's __new and __pin exports, in that order: allocate, write, pin.
type Bridge struct {
	env    *hostenv.Bound
	leaked atomic.Uint64
}

func NewBridge(env *hostenv.Bound) *Bridge {
	return &Bridge{env: env}
}

// NewString allocates text as a guest string and pins it. The caller owns
// the returned allocation and must Release it once the guest no longer needs
// it.
func (b *Bridge) NewString(ctx context.Context, text string) (*Pinned, error) {
	payload, err := Encode(text)
	if err != nil {
		return nil, err
	}
	if len(payload) > math.MaxInt32 {
		return nil, errors.InvalidInput(errors.PhaseEncode, "string exceeds guest i32 size range")
	}
	size := uint32(len(payload))

	results, err := b.env.New().Call(ctx, uint64(size), StringClassID)
	if err != nil {
		return nil, errors.AllocationFailed(size, err)
	}
	h, err := HandleFromResults(results)
	if err != nil {
		return nil, errors.AllocationFailed(size, err)
	}
	if h.IsNull() {
		return nil, errors.AllocationFailed(size, nil)
	}

	// Nothing may run in the guest between __new and __pin except the write.
	if err := b.env.Memory().Write(h.ptr, payload); err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write string payload")
	}
	if _, err := b.env.Pin().Call(ctx, h.Param()); err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindAllocation, err, "pin string")
	}

	return &Pinned{bridge: b, handle: h}, nil
}

// Memory returns the guest memory strings are written to.
func (b *Bridge) Memory() asbridge.Memory {
	return b.env.Memory()
}

// Leaked counts allocations released without an __unpin export to call.
func (b *Bridge) Leaked() uint64 {
	return b.leaked.Load()
}

// Pinned is a host-owned guest string protected from the guest collector.
type Pinned struct {
	bridge *Bridge
	handle Handle
	once   sync.Once
}

func (p *Pinned) Handle() Handle {
	return p.handle
}

// Release unpins the allocation. It is safe to call more than once. Guests
// without __unpin keep the object pinned for the life of the instance.
func (p *Pinned) Release(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		unpin, ok := p.bridge.env.Unpin()
		if !ok {
			p.bridge.leaked.Add(1)
			return
		}
		if _, callErr := unpin.Call(ctx, p.handle.Param()); callErr != nil {
			err = errors.Wrap(errors.PhaseCall, errors.KindAllocation, callErr, "unpin string")
		}
	})
	return err
}

// Scope collects pinned allocations so they can be released together on
// every exit path of a call.
type Scope struct {
	bridge *Bridge
	pinned []*Pinned
}

func (b *Bridge) Scope() *Scope {
	return &Scope{bridge: b, pinned: make([]*Pinned, 0, 4)}
}

// NewString allocates and pins text, recording it for Release.
func (s *Scope) NewString(ctx context.Context, text string) (Handle, error) {
	p, err := s.bridge.NewString(ctx, text)
	if err != nil {
		return Handle{}, err
	}
	s.pinned = append(s.pinned, p)
	return p.Handle(), nil
}

// Release unpins every allocation in reverse order and returns the first
// failure.
func (s *Scope) Release(ctx context.Context) error {
	var first error
	for i := len(s.pinned) - 1; i >= 0; i-- {
		if err := s.pinned[i].Release(ctx); err != nil && first == nil {
			first = err
		}
	}
	s.pinned = s.pinned[:0]
	return first
}

func (s *Scope) Count() int {
	return len(s.pinned)
}
