package asbridge

import "context"

// Memory is a bounded view over guest linear memory.
// Views must not be retained past the operation that obtained them.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	Size() uint32
}

// Func is a callable guest export. wazero's api.Function satisfies it.
type Func interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}
