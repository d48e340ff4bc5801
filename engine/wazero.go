package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// WazeroEngine creates isolated wazero runtimes that share one compilation
// cache. Each guest instance gets its own runtime so its host import modules
// ("env", "index") can close over that instance's environment.
type WazeroEngine struct {
	runtimeCfg wazero.RuntimeConfig
	cache      wazero.CompilationCache
}

// Config holds configuration for engine creation
type Config struct {
	// CacheDir persists compiled code across processes. Empty means an
	// in-memory cache shared by all runtimes of this engine.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// NewWazeroEngine creates a new engine with default configuration
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	var cache wazero.CompilationCache
	if cfg != nil && cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("open compilation cache %s: %w", cfg.CacheDir, err)
		}
		cache = c
	} else {
		cache = wazero.NewCompilationCache()
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCompilationCache(cache)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	return &WazeroEngine{runtimeCfg: runtimeCfg, cache: cache}, nil
}

// NewRuntime returns a fresh wazero runtime backed by the shared cache.
// The caller closes it.
func (e *WazeroEngine) NewRuntime(ctx context.Context) wazero.Runtime {
	return wazero.NewRuntimeWithConfig(ctx, e.runtimeCfg)
}

// Close releases the compilation cache. Runtimes created by the engine must
// be closed first.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.cache.Close(ctx)
}

// ExportKind is the extern kind of a module export.
type ExportKind string

const (
	ExportFunc   ExportKind = "func"
	ExportMemory ExportKind = "memory"
)

// FuncSignature is a core function type.
type FuncSignature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (s FuncSignature) String() string {
	return fmt.Sprintf("func(%s) -> (%s)", valueTypes(s.Params), valueTypes(s.Results))
}

// Matches reports whether s has exactly the given params and results.
func (s FuncSignature) Matches(params, results []api.ValueType) bool {
	return sameTypes(s.Params, params) && sameTypes(s.Results, results)
}

// Export describes one export of a compiled module.
type Export struct {
	Name      string
	Kind      ExportKind
	Signature FuncSignature
}

// Import describes one function import of a compiled module.
type Import struct {
	Module    string
	Name      string
	Signature FuncSignature
}

// Key returns "module#name".
func (i Import) Key() string {
	return i.Module + "#" + i.Name
}

// ModuleInfo is what compilation learned about a module's interface.
type ModuleInfo struct {
	Exports        map[string]Export
	ExportedMemory string
	Imports        []Import
	ImportsMemory  bool
}

// ExportNames returns export names in sorted order.
func (m *ModuleInfo) ExportNames() []string {
	names := make([]string, 0, len(m.Exports))
	for name := range m.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile validates wasm and reports its imports and exports. The compiled
// code lands in the shared cache, so instances compile it again for free.
func (e *WazeroEngine) Compile(ctx context.Context, wasm []byte) (*ModuleInfo, error) {
	rt := e.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	defer compiled.Close(ctx)

	info := &ModuleInfo{Exports: make(map[string]Export)}
	for name, def := range compiled.ExportedFunctions() {
		info.Exports[name] = Export{
			Name: name,
			Kind: ExportFunc,
			Signature: FuncSignature{
				Params:  def.ParamTypes(),
				Results: def.ResultTypes(),
			},
		}
	}
	for name := range compiled.ExportedMemories() {
		info.Exports[name] = Export{Name: name, Kind: ExportMemory}
		if info.ExportedMemory == "" {
			info.ExportedMemory = name
		}
	}
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		info.Imports = append(info.Imports, Import{
			Module: mod,
			Name:   name,
			Signature: FuncSignature{
				Params:  def.ParamTypes(),
				Results: def.ResultTypes(),
			},
		})
	}
	info.ImportsMemory = len(compiled.ImportedMemories()) > 0

	Logger().Debug("module compiled",
		zap.Int("exports", len(info.Exports)),
		zap.Int("imports", len(info.Imports)))

	return info, nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func valueTypes(ts []api.ValueType) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s
}
