package runtime

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/asbridge"
	"github.com/wippyai/asbridge/ascript"
	"github.com/wippyai/asbridge/engine"
	"github.com/wippyai/asbridge/errors"
)

// Instance is one instantiated guest. Calls are serialized. After the guest
// aborts or traps the instance is poisoned and every further call fails.
type Instance struct {
	fault    error
	module   *Module
	rt       wazero.Runtime
	mod      api.Module
	imports  *hostImports
	bridge   *ascript.Bridge
	funcs    map[string]*guestFunc
	leakOnce sync.Once
	mu       sync.Mutex
	closed   bool
}

var _ asbridge.Func = (*guestFunc)(nil)

// guestFunc is a guest export whose failures poison the instance.
type guestFunc struct {
	inst *Instance
	fn   api.Function
	name string
}

func (f *guestFunc) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	results, err := f.fn.Call(ctx, params...)
	if err != nil {
		f.inst.trap(f.name, err)
	}
	return results, err
}

func (i *Instance) wrap(name string, fn api.Function) *guestFunc {
	return &guestFunc{inst: i, fn: fn, name: name}
}

func (i *Instance) moduleConfig() wazero.ModuleConfig {
	// Start functions run after the environment is bound; see init.
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	if i.module.runtime.cfg.WASI {
		cfg = cfg.WithSysWalltime().WithSysNanotime()
	}
	return cfg
}

// trap records the first guest fault. An abort recorded by the import table
// takes precedence over the exit error it produced.
func (i *Instance) trap(name string, err error) {
	if i.fault != nil {
		return
	}
	if abort, ok := i.imports.recorded(); ok {
		i.fault = withCause(abort, err)
	} else {
		i.fault = errors.Trap(errors.PhaseCall, name, err)
	}
	Logger().Debug("instance poisoned", zap.String("export", name), zap.Error(err))
}

func withCause(abort *errors.AbortError, cause error) *errors.AbortError {
	a := *abort
	a.Cause = cause
	return &a
}

// Transform calls the configured entrypoint.
func (i *Instance) Transform(ctx context.Context, input string) (string, error) {
	return i.Call(ctx, i.module.runtime.cfg.Entrypoint, input)
}

// Call passes input to a string -> string export and returns its result.
// The input string is pinned for the duration of the call and unpinned on
// every exit path when the guest exports __unpin.
func (i *Instance) Call(ctx context.Context, export, input string) (out string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return "", errors.Closed("instance")
	}
	if i.fault != nil {
		return "", errors.Poisoned(i.fault)
	}

	fn, err := i.function(export)
	if err != nil {
		return "", err
	}

	scope := i.bridge.Scope()
	defer func() {
		if i.fault != nil {
			return
		}
		if relErr := scope.Release(ctx); relErr != nil && err == nil {
			out, err = "", i.failure(relErr)
		}
		if i.bridge.Leaked() > 0 {
			i.leakOnce.Do(func() {
				Logger().Warn("guest does not export __unpin; host strings stay pinned",
					zap.String("export", export))
			})
		}
	}()

	arg, err := scope.NewString(ctx, input)
	if err != nil {
		return "", i.failure(err)
	}

	results, err := fn.Call(ctx, arg.Param())
	if err != nil {
		return "", i.failure(err)
	}

	h, err := ascript.HandleFromResults(results)
	if err != nil {
		return "", err
	}
	if h.IsNull() {
		return "", errors.InvalidData(errors.PhaseDecode, export+" returned a null string")
	}
	return ascript.Decode(i.bridge.Memory(), h)
}

// failure prefers the recorded guest fault over the error that surfaced it.
func (i *Instance) failure(err error) error {
	if i.fault != nil {
		return i.fault
	}
	return err
}

// function resolves a string -> string export, checking its signature once.
func (i *Instance) function(name string) (*guestFunc, error) {
	if fn, ok := i.funcs[name]; ok {
		return fn, nil
	}
	raw := i.mod.ExportedFunction(name)
	if raw == nil {
		return nil, &errors.MissingExportsError{Exports: []string{name}}
	}
	def := raw.Definition()
	if !sigEntry.Matches(def.ParamTypes(), def.ResultTypes()) {
		got := engine.FuncSignature{Params: def.ParamTypes(), Results: def.ResultTypes()}
		return nil, errors.ExportType(name, sigEntry.String(), got.String())
	}
	fn := i.wrap(name, raw)
	i.funcs[name] = fn
	return fn, nil
}

// ExportedFunction returns a raw guest export, or nil. Faults raised through
// it do not poison the instance.
func (i *Instance) ExportedFunction(name string) api.Function {
	return i.mod.ExportedFunction(name)
}

// Poisoned reports whether the guest has aborted or trapped.
func (i *Instance) Poisoned() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fault != nil
}

// Fault returns the abort or trap that poisoned the instance, or nil.
func (i *Instance) Fault() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fault
}

// Leaked counts host strings left pinned because the guest has no __unpin.
func (i *Instance) Leaked() uint64 {
	return i.bridge.Leaked()
}

func (i *Instance) hasUnpin() bool {
	return i.mod.ExportedFunction("__unpin") != nil
}

func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.rt.Close(ctx)
}
