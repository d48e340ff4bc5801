package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/asbridge/engine"
	"github.com/wippyai/asbridge/errors"
)

type Runtime struct {
	engine *engine.WazeroEngine
	cfg    Config
}

func New(ctx context.Context, cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{
		CacheDir:         cfg.CacheDir,
		MemoryLimitPages: cfg.MemoryLimitPages,
	})
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	return &Runtime{engine: eng, cfg: cfg}, nil
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

func (r *Runtime) Config() Config {
	return r.cfg
}

// Load compiles an AssemblyScript guest and checks it against the host
// contract: every import must be one the host provides, and the string ABI
// exports plus the entrypoint must be present.
func (r *Runtime) Load(ctx context.Context, wasm []byte) (*Module, error) {
	info, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, errors.Load("load module", err)
	}

	if missing := r.missingImports(info); len(missing) > 0 {
		return nil, errors.NewMissingImportsError(missing)
	}
	if err := r.checkExports(info); err != nil {
		return nil, err
	}

	Logger().Debug("module loaded",
		zap.Int("size", len(wasm)),
		zap.Strings("exports", info.ExportNames()))

	return &Module{runtime: r, wasm: wasm, info: info}, nil
}
