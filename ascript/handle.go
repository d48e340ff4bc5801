package ascript

import (
	"strconv"

	"github.com/wippyai/asbridge/errors"
)

// Handle identifies a guest string by the address of its first payload byte.
// The address itself never leaves this package.
type Handle struct {
	ptr uint32
}

// HandleFromParam converts an i32 the guest passed to a host import.
func HandleFromParam(v uint64) Handle {
	return Handle{ptr: uint32(v)}
}

// HandleFromResults extracts the string handle a guest function returned.
// It fails with a decode error when the call produced no value.
func HandleFromResults(results []uint64) (Handle, error) {
	if len(results) == 0 {
		return Handle{}, errors.InvalidData(errors.PhaseDecode, "guest returned no string pointer")
	}
	if results[0] > 0xFFFFFFFF {
		return Handle{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Value(results[0]).
			Detail("guest returned %d, not an i32 pointer", results[0]).
			Build()
	}
	return Handle{ptr: uint32(results[0])}, nil
}

// Param returns the handle as a guest call argument.
func (h Handle) Param() uint64 {
	return uint64(h.ptr)
}

// IsNull reports the null string reference.
func (h Handle) IsNull() bool {
	return h.ptr == 0
}

func (h Handle) String() string {
	return "string@" + strconv.FormatUint(uint64(h.ptr), 10)
}
