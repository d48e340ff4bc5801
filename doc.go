// Package asbridge lets a Go host call into AssemblyScript-style guest modules
// running on wazero, exchanging strings across the guest's UTF-16 string ABI.
//
// # Architecture Overview
//
//	asbridge/            Root package with core Memory and Func contracts
//	├── runtime/         Load, instantiate and call guests; host import table
//	├── engine/          wazero integration and guest memory views
//	├── hostenv/         Set-once shared environment bound after instantiation
//	├── ascript/         Guest string codec and pinning allocator bridge
//	├── errors/          Structured error types and fatal/trap/decode taxonomy
//	└── cmd/run/         CLI driver with an interactive mode
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Transform(ctx, `{"name":"John", "age":30}`)
//
// # String ABI
//
// A guest string handle points at UTF-16LE payload bytes. The four bytes
// immediately before the handle hold the payload byte length as a
// little-endian u32. Host-created strings are allocated with __new(size, 1),
// written, then pinned with __pin until the owning call returns.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Calls on one Instance are
// serialized; each Instance owns its own wazero runtime and guest memory.
package asbridge
