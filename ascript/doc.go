// Package ascript implements the AssemblyScript string ABI.
//
// A string handle points at the first payload byte. The payload is UTF-16LE
// and its byte length is stored as a little-endian u32 in the four bytes
// before the handle:
//
//	ptr-4        ptr
//	[ len u32 ] [ u16 u16 u16 ... ]
//
// Decode reads such a string out of a memory view. Bridge writes new strings
// into the guest: __new(len, StringClassID), copy the payload, __pin. The
// returned Pinned allocation is unpinned with Release; Scope groups the
// allocations of one call.
//
// Decoding is lossy for unpaired surrogates (they become U+FFFD), so a
// round trip is exact for every valid Go string.
package ascript
