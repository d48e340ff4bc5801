package wasmtest

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/wippyai/asbridge"
	"github.com/wippyai/asbridge/errors"
)

// Memory is a byte-slice asbridge.Memory for codec tests.
type Memory struct {
	Data []byte
}

func NewMemory(size int) *Memory {
	return &Memory{Data: make([]byte, size)}
}

func (m *Memory) Size() uint32 { return uint32(len(m.Data)) }

func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m.Data)) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, uint64(offset), uint64(length), m.Size())
	}
	return m.Data[offset : offset+length], nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.Data)) {
		return errors.OutOfBounds(errors.PhaseEncode, uint64(offset), uint64(len(data)), m.Size())
	}
	copy(m.Data[offset:], data)
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *Memory) WriteU32(offset, value uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return m.Write(offset, b[:])
}

// Heap imitates the AssemblyScript runtime exports __new, __pin and __unpin
// over a Memory with a bump allocator. Objects get a 20 byte header whose
// last two words are the class id and the payload size.
type Heap struct {
	Mem      *Memory
	Pinned   map[uint32]bool
	Calls    []string
	next     uint32
	FailNew  error
	FailPin  error
	NoResult bool
}

func NewHeap(mem *Memory) *Heap {
	return &Heap{Mem: mem, Pinned: make(map[uint32]bool), next: 1024}
}

const headerSize = 20

func (h *Heap) NewFunc() asbridge.Func {
	return FuncOf(func(ctx context.Context, params ...uint64) ([]uint64, error) {
		h.Calls = append(h.Calls, "__new")
		if h.FailNew != nil {
			return nil, h.FailNew
		}
		if h.NoResult {
			return nil, nil
		}
		size, id := uint32(params[0]), uint32(params[1])
		ptr := h.next + headerSize
		if err := h.Mem.WriteU32(ptr-8, id); err != nil {
			return nil, err
		}
		if err := h.Mem.WriteU32(ptr-4, size); err != nil {
			return nil, err
		}
		h.next = (ptr + size + 3) &^ 3
		return []uint64{uint64(ptr)}, nil
	})
}

func (h *Heap) PinFunc() asbridge.Func {
	return FuncOf(func(ctx context.Context, params ...uint64) ([]uint64, error) {
		h.Calls = append(h.Calls, "__pin")
		if h.FailPin != nil {
			return nil, h.FailPin
		}
		ptr := uint32(params[0])
		if h.Pinned[ptr] {
			return nil, fmt.Errorf("object %d already pinned", ptr)
		}
		h.Pinned[ptr] = true
		return []uint64{uint64(ptr)}, nil
	})
}

func (h *Heap) UnpinFunc() asbridge.Func {
	return FuncOf(func(ctx context.Context, params ...uint64) ([]uint64, error) {
		h.Calls = append(h.Calls, "__unpin")
		ptr := uint32(params[0])
		if !h.Pinned[ptr] {
			return nil, fmt.Errorf("object %d not pinned", ptr)
		}
		delete(h.Pinned, ptr)
		return nil, nil
	})
}

// ClassID returns the class id recorded in the header of the object at ptr.
func (h *Heap) ClassID(ptr uint32) uint32 {
	id, _ := h.Mem.ReadU32(ptr - 8)
	return id
}

// FuncOf adapts a plain function to asbridge.Func.
type FuncOf func(ctx context.Context, params ...uint64) ([]uint64, error)

func (f FuncOf) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f(ctx, params...)
}
