package ascript

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/asbridge"
	"github.com/wippyai/asbridge/errors"
)

// StringClassID is the guest runtime's reserved class id for String.
const StringClassID = 1

// headerSize is the length of the byte-length word preceding the payload.
const headerSize = 4

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Decode reads the guest string at h. Unpaired surrogates decode to U+FFFD
// rather than failing. A payload extending past the memory view is an
// out_of_bounds decode error.
func Decode(mem asbridge.Memory, h Handle) (string, error) {
	if h.ptr < headerSize {
		return "", errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Value(h.ptr).
			Detail("string header for %s would start before address 0", h).
			Build()
	}
	byteLen, err := mem.ReadU32(h.ptr - headerSize)
	if err != nil {
		return "", errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read string header")
	}

	// The layout guarantees an even length; a trailing odd byte is not a code unit.
	units := byteLen / 2
	if uint64(h.ptr)+uint64(units)*2 > uint64(mem.Size()) {
		return "", errors.OutOfBounds(errors.PhaseDecode, uint64(h.ptr), uint64(units)*2, mem.Size())
	}
	if units == 0 {
		return "", nil
	}
	payload, err := mem.Read(h.ptr, units*2)
	if err != nil {
		return "", errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read string payload")
	}

	out, err := utf16le.NewDecoder().Bytes(payload)
	if err != nil {
		return "", errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode utf-16")
	}
	return string(out), nil
}

// Encode returns text as UTF-16LE payload bytes.
func Encode(text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	b, err := utf16le.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode utf-16")
	}
	return b, nil
}

// ByteLength is the payload size Encode produces for text: two bytes per
// UTF-16 code unit.
func ByteLength(text string) uint32 {
	var n uint32
	for _, r := range text {
		if r >= 0x10000 {
			n += 4
		} else {
			n += 2
		}
	}
	return n
}
