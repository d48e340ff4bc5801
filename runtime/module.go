package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/asbridge/ascript"
	"github.com/wippyai/asbridge/engine"
	"github.com/wippyai/asbridge/errors"
	"github.com/wippyai/asbridge/hostenv"
)

// Module is a compiled guest that passed the host contract checks. It can be
// instantiated any number of times; instances share compiled code but
// nothing else.
type Module struct {
	runtime *Runtime
	info    *engine.ModuleInfo
	wasm    []byte
}

var (
	sigNew   = engine.FuncSignature{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}}
	sigPin   = engine.FuncSignature{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}}
	sigUnpin = engine.FuncSignature{Params: []api.ValueType{i32}}
	sigEntry = engine.FuncSignature{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}}
)

// checkExports verifies the string ABI exports and the entrypoint.
// Absent exports are reported together; a present export of the wrong kind
// or signature is reported on its own.
func (r *Runtime) checkExports(info *engine.ModuleInfo) error {
	required := []struct {
		name string
		sig  *engine.FuncSignature
	}{
		{name: hostenv.FieldMemory},
		{name: hostenv.FieldNew, sig: &sigNew},
		{name: hostenv.FieldPin, sig: &sigPin},
		{name: r.cfg.Entrypoint, sig: &sigEntry},
	}
	if r.cfg.RequireUnpin {
		required = append(required, struct {
			name string
			sig  *engine.FuncSignature
		}{name: hostenv.FieldUnpin, sig: &sigUnpin})
	}

	var missing []string
	for _, req := range required {
		exp, ok := info.Exports[req.name]
		if !ok {
			missing = append(missing, req.name)
			continue
		}
		if err := checkExport(exp, req.sig); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return &errors.MissingExportsError{Exports: missing}
	}

	if exp, ok := info.Exports[hostenv.FieldUnpin]; ok {
		return checkExport(exp, &sigUnpin)
	}
	return nil
}

func checkExport(exp engine.Export, sig *engine.FuncSignature) error {
	if sig == nil {
		if exp.Kind != engine.ExportMemory {
			return errors.ExportType(exp.Name, string(engine.ExportMemory), string(exp.Kind))
		}
		return nil
	}
	if exp.Kind != engine.ExportFunc {
		return errors.ExportType(exp.Name, sig.String(), string(exp.Kind))
	}
	if !exp.Signature.Matches(sig.Params, sig.Results) {
		return errors.ExportType(exp.Name, sig.String(), exp.Signature.String())
	}
	return nil
}

// Exports lists the guest's exports sorted by name.
func (m *Module) Exports() []engine.Export {
	names := m.info.ExportNames()
	exports := make([]engine.Export, len(names))
	for i, name := range names {
		exports[i] = m.info.Exports[name]
	}
	return exports
}

// Imports lists the guest's function imports in declaration order.
func (m *Module) Imports() []engine.Import {
	return append([]engine.Import(nil), m.info.Imports...)
}

// Instantiate creates an isolated instance: its own wazero runtime, import
// table and environment. The guest's start section runs during this call;
// an exported _start runs after the environment is bound.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	cfg := m.runtime.cfg
	rt := m.runtime.engine.NewRuntime(ctx)

	env := hostenv.New()
	imports := newHostImports(env, cfg.Sink)
	inst := &Instance{
		module:  m,
		rt:      rt,
		imports: imports,
		funcs:   make(map[string]*guestFunc),
	}

	if err := inst.init(ctx, env); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	Logger().Debug("instance ready",
		zap.String("entrypoint", cfg.Entrypoint),
		zap.Bool("unpin", inst.hasUnpin()))

	return inst, nil
}

func (i *Instance) init(ctx context.Context, env *hostenv.Environment) error {
	cfg := i.module.runtime.cfg

	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, i.rt); err != nil {
			return errors.New(errors.PhaseInstantiate, errors.KindMissingImport).
				Field(wasiModule).
				Detail("instantiate WASI").
				Cause(err).
				Build()
		}
	}
	if err := i.imports.register(ctx, i.rt); err != nil {
		return err
	}

	compiled, err := i.rt.CompileModule(ctx, i.module.wasm)
	if err != nil {
		return errors.Load("compile module", err)
	}

	mod, err := i.rt.InstantiateModule(ctx, compiled, i.moduleConfig())
	if err != nil {
		if abort, ok := i.imports.recorded(); ok {
			return withCause(abort, err)
		}
		return errors.Instantiation(err)
	}
	i.mod = mod

	bound, err := i.resolve(env)
	if err != nil {
		return err
	}
	i.bridge = ascript.NewBridge(bound)

	if start := mod.ExportedFunction("_start"); start != nil {
		fn := i.wrap("_start", start)
		if _, err := fn.Call(ctx); err != nil {
			return i.failure(errors.Trap(errors.PhaseInstantiate, "_start", err))
		}
	}
	return nil
}

// resolve back-fills the environment from the instance's exports and
// freezes it.
func (i *Instance) resolve(env *hostenv.Environment) (*hostenv.Bound, error) {
	mem := i.mod.ExportedMemory(hostenv.FieldMemory)
	if mem == nil {
		return nil, &errors.MissingExportsError{Exports: []string{hostenv.FieldMemory}}
	}
	if err := env.SetMemory(engine.WrapMemory(mem)); err != nil {
		return nil, err
	}

	setters := []struct {
		name     string
		set      func(fn *guestFunc) error
		optional bool
	}{
		{name: hostenv.FieldNew, set: func(fn *guestFunc) error { return env.SetNew(fn) }},
		{name: hostenv.FieldPin, set: func(fn *guestFunc) error { return env.SetPin(fn) }},
		{name: hostenv.FieldUnpin, set: func(fn *guestFunc) error { return env.SetUnpin(fn) }, optional: true},
	}
	for _, s := range setters {
		fn := i.mod.ExportedFunction(s.name)
		if fn == nil {
			if s.optional {
				continue
			}
			return nil, &errors.MissingExportsError{Exports: []string{s.name}}
		}
		if err := s.set(i.wrap(s.name, fn)); err != nil {
			return nil, err
		}
	}

	return env.Bind()
}
