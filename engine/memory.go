package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/asbridge"
	"github.com/wippyai/asbridge/errors"
)

var _ asbridge.Memory = (*WazeroMemory)(nil)

// WazeroMemory adapts wazero's api.Memory to asbridge.Memory with structured
// bounds errors. Slices returned by Read alias guest memory and are invalid
// once the guest runs again.
type WazeroMemory struct {
	mem api.Memory
}

// WrapMemory returns nil when mem is nil.
func WrapMemory(mem api.Memory) *WazeroMemory {
	if mem == nil {
		return nil
	}
	return &WazeroMemory{mem: mem}
}

func (m *WazeroMemory) Size() uint32 {
	return m.mem.Size()
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDecode, uint64(offset), uint64(length), m.mem.Size())
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseEncode, uint64(offset), uint64(len(data)), m.mem.Size())
	}
	return nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, uint64(offset), 4, m.mem.Size())
	}
	return val, nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseEncode, uint64(offset), 4, m.mem.Size())
	}
	return nil
}
