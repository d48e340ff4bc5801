// Package runtime runs AssemblyScript guests and exchanges strings with them.
//
// # Quick Start
//
//	ctx := context.Background()
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
//	out, err := inst.Transform(ctx, `{"name":"John"}`)
//
// # Guest Contract
//
// The guest must export memory, __new(size, id i32) i32, __pin(ptr i32) i32
// and the entrypoint (i32) i32. __unpin(ptr i32) is optional unless
// Config.RequireUnpin is set. Load rejects a guest that misses any of these,
// or that imports anything other than:
//
//	env.abort(msg, file, line, col i32)
//	env.trace(msg, n i32, a0..a4 f64)
//	env.seed() f64
//	index.log(msg i32)
//
// and, with Config.WASI, wasi_snapshot_preview1.
//
// # Lifecycle
//
// Each Instance has its own wazero runtime, import table and environment.
// Instantiate runs the wasm start section (imports called there decode
// through the guest's memory directly), resolves the exports, binds the
// environment, then calls an exported _start.
//
// # Faults
//
// A call that makes the guest abort returns *errors.AbortError; a trap
// returns a trap error. Either poisons the instance: later calls fail with a
// poisoned error and the instance must be replaced. Decode errors on a
// result leave the instance usable.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance serializes its
// calls; use one instance per goroutine for parallelism.
package runtime
