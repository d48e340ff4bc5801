// Package hostenv holds the per-instance environment shared between host
// import functions and the orchestrating call path.
//
// The guest's memory and runtime exports only exist after instantiation, but
// host imports are built before it and may even run during it. Each field is a
// set-once Cell; Bind freezes a complete set into an immutable Bound value.
//
//	env := hostenv.New()
//	// ... build imports capturing env, instantiate ...
//	env.SetMemory(mem)
//	env.SetNew(newFn)
//	env.SetPin(pinFn)
//	bound, err := env.Bind()
//
// Accessing a field before it is set returns a not_ready error and setting it
// twice returns already_set; neither panics.
package hostenv
