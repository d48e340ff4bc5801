package wasmtest

import (
	"encoding/binary"
	"unicode/utf16"
)

// Addresses of the static strings in every guest. Each is preceded by its
// u32 byte length, the same layout the AssemblyScript compiler emits.
const (
	HelloPtr = 104 // "hello"
	BoomPtr  = 124 // "boom"
	FilePtr  = 144 // "guest.ts"

	// BadPtr is far outside the single page of guest memory.
	BadPtr = 0x7fff0000

	heapBase = 1024
)

// GuestOptions selects variations of the test guest.
type GuestOptions struct {
	NoPin    bool
	NoUnpin  bool
	NoMemory bool

	// StartLog logs "hello" from the start section, before the host has
	// seen any export.
	StartLog bool

	// DeferredStart exports a _start that logs "hello".
	DeferredStart bool

	// Trace and Seed import env.trace and env.seed.
	Trace bool
	Seed  bool

	// ExtraImport adds an import the host does not provide.
	ExtraImport string
}

// Guest builds an AssemblyScript-shaped module. It always imports env.abort
// and index.log and exports memory, __new, __pin, __unpin and these
// string -> string functions:
//
//	transform          ASCII upper-casing
//	transform_logged   logs "hello", then transform
//	transform_badlog   logs an out-of-range pointer, then transform
//	transform_abort    abort("boom", "guest.ts", 1, 2)
//	transform_trap     unreachable
//	transform_null     returns 0
//	transform_oob      returns BadPtr
//	transform_void     takes a string, returns nothing
//	pinned_count       () -> i32, live pins
//
// plus transform_traced and transform_seeded when Trace or Seed is set.
func Guest(opts GuestOptions) []byte {
	m := NewModule()

	abort := m.Import("env", "abort", []byte{I32, I32, I32, I32}, nil)
	log := m.Import("index", "log", []byte{I32}, nil)
	var trace, seed uint32
	if opts.Trace {
		trace = m.Import("env", "trace", []byte{I32, I32, F64, F64, F64, F64, F64}, nil)
	}
	if opts.Seed {
		seed = m.Import("env", "seed", nil, []byte{F64})
	}
	if opts.ExtraImport != "" {
		m.Import("env", opts.ExtraImport, nil, nil)
	}

	heap := m.Global(heapBase, true)
	pins := m.Global(0, true)

	m.Memory(1)
	if !opts.NoMemory {
		m.ExportMemory("memory")
	}
	m.Data(HelloPtr-4, asString("hello"))
	m.Data(BoomPtr-4, asString("boom"))
	m.Data(FilePtr-4, asString("guest.ts"))

	// __new(size, id): bump allocation with a 20 byte header, class id at
	// ptr-8 and payload size at ptr-4.
	newFn := m.Func([]byte{I32, I32}, []byte{I32}, []byte{I32}, NewCode().
		GlobalGet(heap).LocalGet(1).I32Store(12).
		GlobalGet(heap).LocalGet(0).I32Store(16).
		GlobalGet(heap).I32Const(20).I32Add().LocalSet(2).
		LocalGet(2).LocalGet(0).I32Add().I32Const(3).I32Add().I32Const(-4).I32And().GlobalSet(heap).
		LocalGet(2).
		Bytes())
	m.Export("__new", newFn)

	if !opts.NoPin {
		pin := m.Func([]byte{I32}, []byte{I32}, nil, NewCode().
			GlobalGet(pins).I32Const(1).I32Add().GlobalSet(pins).
			LocalGet(0).
			Bytes())
		m.Export("__pin", pin)
	}
	if !opts.NoUnpin {
		unpin := m.Func([]byte{I32}, nil, nil, NewCode().
			GlobalGet(pins).I32Const(1).I32Sub().GlobalSet(pins).
			Bytes())
		m.Export("__unpin", unpin)
	}
	m.Export("pinned_count", m.Func(nil, []byte{I32}, nil, NewCode().GlobalGet(pins).Bytes()))

	// transform(s): locals 1 len, 2 out, 3 i, 4 unit.
	transform := m.Func([]byte{I32}, []byte{I32}, []byte{I32, I32, I32, I32}, NewCode().
		LocalGet(0).I32Const(4).I32Sub().I32Load(0).LocalSet(1).
		LocalGet(1).I32Const(1).Call(newFn).LocalSet(2).
		I32Const(0).LocalSet(3).
		Block().Loop().
		LocalGet(3).LocalGet(1).I32GeU().BrIf(1).
		LocalGet(0).LocalGet(3).I32Add().I32Load16U(0).LocalSet(4).
		LocalGet(4).I32Const('a').I32GeU().
		LocalGet(4).I32Const('z').I32LeU().
		I32And().
		If().LocalGet(4).I32Const(32).I32Sub().LocalSet(4).End().
		LocalGet(2).LocalGet(3).I32Add().LocalGet(4).I32Store16(0).
		LocalGet(3).I32Const(2).I32Add().LocalSet(3).
		Br(0).
		End().End().
		LocalGet(2).
		Bytes())
	m.Export("transform", transform)

	str := []byte{I32}
	m.Export("transform_logged", m.Func(str, str, nil, NewCode().
		I32Const(HelloPtr).Call(log).
		LocalGet(0).Call(transform).
		Bytes()))
	m.Export("transform_badlog", m.Func(str, str, nil, NewCode().
		I32Const(BadPtr).Call(log).
		LocalGet(0).Call(transform).
		Bytes()))
	m.Export("transform_abort", m.Func(str, str, nil, NewCode().
		I32Const(BoomPtr).I32Const(FilePtr).I32Const(1).I32Const(2).Call(abort).
		Unreachable().
		Bytes()))
	m.Export("transform_trap", m.Func(str, str, nil, NewCode().Unreachable().Bytes()))
	m.Export("transform_null", m.Func(str, str, nil, NewCode().I32Const(0).Bytes()))
	m.Export("transform_oob", m.Func(str, str, nil, NewCode().I32Const(BadPtr).Bytes()))
	m.Export("transform_void", m.Func(str, nil, nil, nil))

	if opts.Trace {
		m.Export("transform_traced", m.Func(str, str, nil, NewCode().
			I32Const(HelloPtr).I32Const(2).
			F64Const(1.5).F64Const(-2).F64Const(0).F64Const(0).F64Const(0).
			Call(trace).
			LocalGet(0).Call(transform).
			Bytes()))
	}
	if opts.Seed {
		m.Export("transform_seeded", m.Func(str, str, nil, NewCode().
			Call(seed).Drop().
			LocalGet(0).Call(transform).
			Bytes()))
	}

	logHello := NewCode().I32Const(HelloPtr).Call(log).Bytes()
	if opts.StartLog {
		m.Start(m.Func(nil, nil, nil, logHello))
	}
	if opts.DeferredStart {
		m.Export("_start", m.Func(nil, nil, nil, logHello))
	}

	return m.Encode()
}

// asString lays out s as a static string: u32 byte length, then UTF-16LE.
func asString(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 4+2*len(units))
	binary.LittleEndian.PutUint32(out, uint32(2*len(units)))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[4+2*i:], u)
	}
	return out
}
