package runtime_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/asbridge/errors"
	"github.com/wippyai/asbridge/internal/wasmtest"
	"github.com/wippyai/asbridge/runtime"
)

type recorder struct {
	msgs []string
	mu   sync.Mutex
}

func (r *recorder) Log(_ context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	runtime.SetLogger(zap.New(core))
	t.Cleanup(func() { runtime.SetLogger(zap.NewNop()) })
	return logs
}

func load(t *testing.T, cfg runtime.Config, opts wasmtest.GuestOptions) *runtime.Module {
	t.Helper()
	ctx := context.Background()
	rt, err := runtime.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	mod, err := rt.Load(ctx, wasmtest.Guest(opts))
	require.NoError(t, err)
	return mod
}

func instantiate(t *testing.T, cfg runtime.Config, opts wasmtest.GuestOptions) *runtime.Instance {
	t.Helper()
	ctx := context.Background()
	inst, err := load(t, cfg, opts).Instantiate(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return inst
}

func pinnedCount(t *testing.T, inst *runtime.Instance) uint32 {
	t.Helper()
	res, err := inst.ExportedFunction("pinned_count").Call(context.Background())
	require.NoError(t, err)
	return uint32(res[0])
}

func TestTransform(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{})

	tests := []struct {
		in   string
		want string
	}{
		{`{"name":"John", "age":30}`, `{"NAME":"JOHN", "AGE":30}`},
		{"", ""},
		{"hello world", "HELLO WORLD"},
		{"café 😀 ok", "CAFé 😀 OK"},
		{"日本語", "日本語"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			got, err := inst.Transform(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.False(t, inst.Poisoned())
}

func TestTransform_Entrypoint(t *testing.T) {
	rec := &recorder{}
	inst := instantiate(t, runtime.Config{Entrypoint: "transform_logged", Sink: rec}, wasmtest.GuestOptions{})

	got, err := inst.Transform(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", got)
	assert.Equal(t, []string{"hello"}, rec.Messages())
}

func TestLog(t *testing.T) {
	ctx := context.Background()

	t.Run("reaches sink", func(t *testing.T) {
		rec := &recorder{}
		inst := instantiate(t, runtime.Config{Sink: rec}, wasmtest.GuestOptions{})

		got, err := inst.Call(ctx, "transform_logged", "x")
		require.NoError(t, err)
		assert.Equal(t, "X", got)
		assert.Equal(t, []string{"hello"}, rec.Messages())
	})

	t.Run("default sink logs", func(t *testing.T) {
		logs := observe(t)
		inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{})

		_, err := inst.Call(ctx, "transform_logged", "x")
		require.NoError(t, err)

		entries := logs.FilterMessage("guest log").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "hello", entries[0].ContextMap()["message"])
	})

	t.Run("undecodable is reported not propagated", func(t *testing.T) {
		logs := observe(t)
		rec := &recorder{}
		inst := instantiate(t, runtime.Config{Sink: rec}, wasmtest.GuestOptions{})

		got, err := inst.Call(ctx, "transform_badlog", "ok")
		require.NoError(t, err)
		assert.Equal(t, "OK", got)
		assert.Empty(t, rec.Messages())
		assert.Equal(t, 1, logs.FilterMessage("undecodable guest log").Len())
		assert.False(t, inst.Poisoned())
	})
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	logs := observe(t)
	inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{})

	_, err := inst.Call(ctx, "transform_abort", "input")
	require.Error(t, err)

	var abort *errors.AbortError
	require.True(t, stderrors.As(err, &abort))
	assert.Equal(t, "boom", abort.Message)
	assert.Equal(t, "guest.ts", abort.File)
	assert.Equal(t, uint32(1), abort.Line)
	assert.Equal(t, uint32(2), abort.Column)
	assert.True(t, errors.IsTrap(err))
	assert.False(t, errors.IsDecode(err))
	assert.Contains(t, err.Error(), "boom at guest.ts:1:2")

	assert.Equal(t, 1, logs.FilterMessage("guest aborted").Len())
	assert.True(t, inst.Poisoned())

	_, err = inst.Transform(ctx, "again")
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindPoisoned})
	assert.ErrorIs(t, err, &errors.AbortError{})
	assert.True(t, errors.IsTrap(err))
}

func TestTrap(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{})

	_, err := inst.Call(ctx, "transform_trap", "input")
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindTrap})
	assert.True(t, errors.IsTrap(err))
	assert.ErrorIs(t, inst.Fault(), &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindTrap})

	_, err = inst.Transform(ctx, "again")
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindPoisoned})
}

func TestInstancesAreIsolated(t *testing.T) {
	ctx := context.Background()
	mod := load(t, runtime.Config{}, wasmtest.GuestOptions{})

	a, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	defer a.Close(ctx)
	b, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	defer b.Close(ctx)

	_, err = a.Call(ctx, "transform_abort", "x")
	require.Error(t, err)
	assert.True(t, a.Poisoned())

	got, err := b.Transform(ctx, "still fine")
	require.NoError(t, err)
	assert.Equal(t, "STILL FINE", got)
	assert.False(t, b.Poisoned())
}

func TestDecodeErrors(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{})

	t.Run("result out of bounds", func(t *testing.T) {
		_, err := inst.Call(ctx, "transform_oob", "x")
		require.Error(t, err)
		assert.True(t, errors.IsDecode(err))
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindOutOfBounds})
	})

	t.Run("null result", func(t *testing.T) {
		_, err := inst.Call(ctx, "transform_null", "x")
		require.Error(t, err)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData})
	})

	t.Run("instance stays usable", func(t *testing.T) {
		assert.False(t, inst.Poisoned())
		got, err := inst.Transform(ctx, "next")
		require.NoError(t, err)
		assert.Equal(t, "NEXT", got)
		assert.Equal(t, uint32(0), pinnedCount(t, inst))
	})
}

func TestCall_Exports(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{})

	_, err := inst.Call(ctx, "transform_void", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindExportType})
	assert.True(t, errors.IsFatal(err))

	_, err = inst.Call(ctx, "does_not_exist", "x")
	require.Error(t, err)
	var missing *errors.MissingExportsError
	require.True(t, stderrors.As(err, &missing))
	assert.Equal(t, []string{"does_not_exist"}, missing.Exports)

	assert.False(t, inst.Poisoned())
}

func TestUnpin(t *testing.T) {
	ctx := context.Background()

	t.Run("released after every call", func(t *testing.T) {
		inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{})
		for i := 0; i < 5; i++ {
			_, err := inst.Transform(ctx, "payload")
			require.NoError(t, err)
			assert.Equal(t, uint32(0), pinnedCount(t, inst))
		}
		assert.Equal(t, uint64(0), inst.Leaked())
	})

	t.Run("without __unpin strings stay pinned", func(t *testing.T) {
		logs := observe(t)
		inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{NoUnpin: true})
		for i := 0; i < 3; i++ {
			got, err := inst.Transform(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "A", got)
		}
		assert.Equal(t, uint64(3), inst.Leaked())
		assert.Equal(t, uint32(3), pinnedCount(t, inst))
		assert.Equal(t, 1, logs.FilterMessageSnippet("does not export __unpin").Len())
	})

	t.Run("required", func(t *testing.T) {
		ctx := context.Background()
		rt, err := runtime.New(ctx, runtime.Config{RequireUnpin: true})
		require.NoError(t, err)
		defer rt.Close(ctx)

		_, err = rt.Load(ctx, wasmtest.Guest(wasmtest.GuestOptions{NoUnpin: true}))
		var missing *errors.MissingExportsError
		require.True(t, stderrors.As(err, &missing))
		assert.Equal(t, []string{"__unpin"}, missing.Exports)
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	rt, err := runtime.New(ctx, runtime.Config{})
	require.NoError(t, err)
	defer rt.Close(ctx)

	t.Run("malformed", func(t *testing.T) {
		_, err := rt.Load(ctx, []byte("definitely not wasm"))
		require.Error(t, err)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindMalformed})
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("missing exports", func(t *testing.T) {
		_, err := rt.Load(ctx, wasmtest.Guest(wasmtest.GuestOptions{NoPin: true, NoMemory: true}))
		var missing *errors.MissingExportsError
		require.True(t, stderrors.As(err, &missing))
		assert.ElementsMatch(t, []string{"memory", "__pin"}, missing.Exports)
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("missing imports", func(t *testing.T) {
		_, err := rt.Load(ctx, wasmtest.Guest(wasmtest.GuestOptions{ExtraImport: "unknown"}))
		require.Error(t, err)
		assert.ErrorIs(t, err, &errors.MissingImportsError{})
		var missing *errors.MissingImportsError
		require.True(t, stderrors.As(err, &missing))
		require.Len(t, missing.Imports, 1)
		assert.Equal(t, errors.MissingImport{Namespace: "env", Function: "unknown"}, missing.Imports[0])
	})

	t.Run("exports and imports", func(t *testing.T) {
		mod, err := rt.Load(ctx, wasmtest.Guest(wasmtest.GuestOptions{}))
		require.NoError(t, err)

		names := make([]string, 0)
		for _, e := range mod.Exports() {
			names = append(names, e.Name)
		}
		assert.Contains(t, names, "memory")
		assert.Contains(t, names, "transform")
		assert.IsIncreasing(t, names)

		keys := make([]string, 0)
		for _, imp := range mod.Imports() {
			keys = append(keys, imp.Key())
		}
		assert.Equal(t, []string{"env#abort", "index#log"}, keys)
	})

	t.Run("entrypoint", func(t *testing.T) {
		rt, err := runtime.New(ctx, runtime.Config{Entrypoint: "run"})
		require.NoError(t, err)
		defer rt.Close(ctx)

		_, err = rt.Load(ctx, wasmtest.Guest(wasmtest.GuestOptions{}))
		var missing *errors.MissingExportsError
		require.True(t, stderrors.As(err, &missing))
		assert.Equal(t, []string{"run"}, missing.Exports)
	})
}

func TestStart(t *testing.T) {
	ctx := context.Background()

	t.Run("start section logs before binding", func(t *testing.T) {
		rec := &recorder{}
		mod := load(t, runtime.Config{Sink: rec}, wasmtest.GuestOptions{StartLog: true})
		inst, err := mod.Instantiate(ctx)
		require.NoError(t, err)
		defer inst.Close(ctx)
		assert.Equal(t, []string{"hello"}, rec.Messages())
	})

	t.Run("exported _start runs after binding", func(t *testing.T) {
		rec := &recorder{}
		inst := instantiate(t, runtime.Config{Sink: rec}, wasmtest.GuestOptions{DeferredStart: true})
		assert.Equal(t, []string{"hello"}, rec.Messages())

		got, err := inst.Transform(ctx, "ready")
		require.NoError(t, err)
		assert.Equal(t, "READY", got)
	})

	t.Run("both", func(t *testing.T) {
		rec := &recorder{}
		instantiate(t, runtime.Config{Sink: rec}, wasmtest.GuestOptions{StartLog: true, DeferredStart: true})
		assert.Equal(t, []string{"hello", "hello"}, rec.Messages())
	})
}

func TestTraceAndSeed(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	inst := instantiate(t, runtime.Config{Sink: rec}, wasmtest.GuestOptions{Trace: true, Seed: true})

	got, err := inst.Call(ctx, "transform_traced", "t")
	require.NoError(t, err)
	assert.Equal(t, "T", got)
	assert.Equal(t, []string{"trace: hello 1.5, -2"}, rec.Messages())

	got, err = inst.Call(ctx, "transform_seeded", "s")
	require.NoError(t, err)
	assert.Equal(t, "S", got)
}

func TestConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg   runtime.Config
		name  string
		valid bool
	}{
		{name: "zero", cfg: runtime.Config{}, valid: true},
		{name: "custom entrypoint", cfg: runtime.Config{Entrypoint: "run"}, valid: true},
		{name: "memory limit", cfg: runtime.Config{MemoryLimitPages: 16}, valid: true},
		{name: "memory limit too large", cfg: runtime.Config{MemoryLimitPages: 70000}},
		{name: "unprintable entrypoint", cfg: runtime.Config{Entrypoint: "bad\x01name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput})

			_, err = runtime.New(ctx, tt.cfg)
			assert.Error(t, err)
		})
	}

	rt, err := runtime.New(ctx, runtime.Config{})
	require.NoError(t, err)
	defer rt.Close(ctx)
	assert.Equal(t, runtime.DefaultEntrypoint, rt.Config().Entrypoint)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	mod := load(t, runtime.Config{}, wasmtest.GuestOptions{})
	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)

	require.NoError(t, inst.Close(ctx))
	require.NoError(t, inst.Close(ctx))

	_, err = inst.Transform(ctx, "x")
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindClosed})
}

func TestConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, runtime.Config{}, wasmtest.GuestOptions{})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := fmt.Sprintf("call-%d", i)
			got, err := inst.Transform(ctx, in)
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("CALL-%d", i); got != want {
				errs <- fmt.Errorf("got %q, want %q", got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, uint32(0), pinnedCount(t, inst))
}
