package runtime

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/asbridge"
	"github.com/wippyai/asbridge/ascript"
	"github.com/wippyai/asbridge/engine"
	"github.com/wippyai/asbridge/errors"
	"github.com/wippyai/asbridge/hostenv"
)

const (
	envModule   = "env"
	indexModule = "index"
	wasiModule  = "wasi_snapshot_preview1"
)

type hostFunc struct {
	module  string
	name    string
	params  []api.ValueType
	results []api.ValueType
}

var (
	i32 = api.ValueTypeI32
	f64 = api.ValueTypeF64
)

// hostFuncs are the functions the host provides to every guest, in the
// order they are registered.
var hostFuncs = []hostFunc{
	{module: envModule, name: "abort", params: []api.ValueType{i32, i32, i32, i32}},
	{module: envModule, name: "trace", params: []api.ValueType{i32, i32, f64, f64, f64, f64, f64}},
	{module: envModule, name: "seed", results: []api.ValueType{f64}},
	{module: indexModule, name: "log", params: []api.ValueType{i32}},
}

// hostImports is the import table of one instance. Its functions capture
// the instance's environment while it is still being built, so every access
// goes through Bound and falls back to the calling module's own memory
// until the environment is frozen.
type hostImports struct {
	env     *hostenv.Environment
	sink    Sink
	seed    func() float64
	aborted atomic.Pointer[errors.AbortError]
}

func newHostImports(env *hostenv.Environment, sink Sink) *hostImports {
	return &hostImports{
		env:  env,
		sink: sink,
		seed: func() float64 { return float64(time.Now().UnixNano()) },
	}
}

func (h *hostImports) handler(f hostFunc) api.GoModuleFunc {
	switch f.module + "#" + f.name {
	case "env#abort":
		return h.abort
	case "env#trace":
		return h.trace
	case "env#seed":
		return h.seedFn
	case "index#log":
		return h.log
	}
	return nil
}

// register instantiates the env and index host modules in rt.
func (h *hostImports) register(ctx context.Context, rt wazero.Runtime) error {
	builders := make(map[string]wazero.HostModuleBuilder)
	var order []string
	for _, f := range hostFuncs {
		b, ok := builders[f.module]
		if !ok {
			b = rt.NewHostModuleBuilder(f.module)
			order = append(order, f.module)
		}
		builders[f.module] = b.NewFunctionBuilder().
			WithGoModuleFunction(h.handler(f), f.params, f.results).
			Export(f.name)
	}
	for _, name := range order {
		if _, err := builders[name].Instantiate(ctx); err != nil {
			return errors.New(errors.PhaseInstantiate, errors.KindMissingImport).
				Field(name).
				Detail("instantiate host module").
				Cause(err).
				Build()
		}
	}
	return nil
}

// memory returns the bound guest memory, or the caller's memory while the
// guest is still instantiating.
func (h *hostImports) memory(m api.Module) (asbridge.Memory, bool) {
	if b, err := h.env.Bound(); err == nil {
		return b.Memory(), true
	}
	if mem := m.Memory(); mem != nil {
		return engine.WrapMemory(mem), true
	}
	return nil, false
}

func (h *hostImports) decode(m api.Module, param uint64) (string, error) {
	mem, ok := h.memory(m)
	if !ok {
		return "", errors.NotReady(hostenv.FieldMemory)
	}
	return ascript.Decode(mem, ascript.HandleFromParam(param))
}

// abort records the guest's fault and unwinds it. The call that is running
// reports the recorded AbortError; the module is closed so the instance
// cannot run again.
func (h *hostImports) abort(ctx context.Context, m api.Module, stack []uint64) {
	abortErr := &errors.AbortError{
		Line:   api.DecodeU32(stack[2]),
		Column: api.DecodeU32(stack[3]),
	}
	abortErr.Message, _ = h.decode(m, stack[0])
	abortErr.File, _ = h.decode(m, stack[1])
	h.aborted.CompareAndSwap(nil, abortErr)

	Logger().Error("guest aborted",
		zap.String("message", abortErr.Message),
		zap.String("file", abortErr.File),
		zap.Uint32("line", abortErr.Line),
		zap.Uint32("column", abortErr.Column))

	_ = m.CloseWithExitCode(ctx, 1)
	panic(sys.NewExitError(1))
}

// recorded returns what the guest passed to env.abort, if it aborted.
func (h *hostImports) recorded() (*errors.AbortError, bool) {
	a := h.aborted.Load()
	return a, a != nil
}

func (h *hostImports) log(ctx context.Context, m api.Module, stack []uint64) {
	msg, err := h.decode(m, stack[0])
	if err != nil {
		Logger().Warn("undecodable guest log", zap.Error(err))
		return
	}
	h.sink.Log(ctx, msg)
}

// trace forwards the message followed by the first n of the five numeric
// arguments.
func (h *hostImports) trace(ctx context.Context, m api.Module, stack []uint64) {
	msg, err := h.decode(m, stack[0])
	if err != nil {
		Logger().Warn("undecodable guest trace", zap.Error(err))
		return
	}
	n := int(api.DecodeI32(stack[1]))
	n = max(0, min(n, 5))

	var b strings.Builder
	b.WriteString("trace: ")
	b.WriteString(msg)
	for i := 0; i < n; i++ {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(api.DecodeF64(stack[2+i]), 'g', -1, 64))
	}
	h.sink.Log(ctx, b.String())
}

func (h *hostImports) seedFn(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeF64(h.seed())
}

// missingImports lists guest imports the host cannot satisfy, as
// "module#name" keys. An import with the right name and the wrong
// signature counts as missing.
func (r *Runtime) missingImports(info *engine.ModuleInfo) []string {
	var missing []string
	for _, imp := range info.Imports {
		if imp.Module == wasiModule && r.cfg.WASI {
			continue
		}
		if !providesImport(imp) {
			missing = append(missing, imp.Key())
		}
	}
	return missing
}

func providesImport(imp engine.Import) bool {
	for _, f := range hostFuncs {
		if f.module == imp.Module && f.name == imp.Name {
			return imp.Signature.Matches(f.params, f.results)
		}
	}
	return false
}
