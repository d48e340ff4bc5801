package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/asbridge/engine"
	"github.com/wippyai/asbridge/runtime"
)

const sampleBody = `{"name":"John", "age":30}`

type options struct {
	wasmFile string
	funcName string
	body     string
	cacheDir string
	status   uint
	list     bool
	wasi     bool
}

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to AssemblyScript guest wasm file")
		funcName    = flag.String("func", runtime.DefaultEntrypoint, "Guest export to run the body through")
		body        = flag.String("arg", "", "Response body (default: stdin when piped, else a sample JSON document)")
		status      = flag.Uint("status", 200, "Status code of the mock response")
		cacheDir    = flag.String("cache", "", "Directory for the compilation cache")
		list        = flag.Bool("list", false, "List guest exports and imports and exit")
		wasi        = flag.Bool("wasi", false, "Provide wasi_snapshot_preview1 to the guest")
		verbose     = flag.Bool("v", false, "Log runtime events to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-arg body] [-status code]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			defer logger.Sync() //nolint:errcheck
			runtime.SetLogger(logger)
			engine.SetLogger(logger)
		}
	}

	opts := options{
		wasmFile: *wasmFile,
		funcName: *funcName,
		body:     *body,
		cacheDir: *cacheDir,
		status:   *status,
		list:     *list,
		wasi:     *wasi,
	}

	if *interactive {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if opts.body == "" {
		b, err := readBody(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: read stdin: %v\n", err)
			os.Exit(1)
		}
		opts.body = b
	}

	if err := run(context.Background(), opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readBody reads stdin when it is piped and falls back to the sample body
// on a terminal.
func readBody(f *os.File) (string, error) {
	if term.IsTerminal(int(f.Fd())) {
		return sampleBody, nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return sampleBody, nil
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func newRuntime(ctx context.Context, opts options, diag io.Writer) (*runtime.Runtime, error) {
	return runtime.New(ctx, runtime.Config{
		Entrypoint: opts.funcName,
		CacheDir:   opts.cacheDir,
		WASI:       opts.wasi,
		Sink: runtime.SinkFunc(func(_ context.Context, msg string) {
			fmt.Fprintf(diag, "guest: %s\n", msg)
		}),
	})
}

func run(ctx context.Context, opts options, out, diag io.Writer) error {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	rt, err := newRuntime(ctx, opts, diag)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	mod, err := rt.Load(ctx, data)
	if err != nil {
		return fmt.Errorf("load module: %w", err)
	}

	if opts.list {
		fmt.Fprintf(out, "Module: %s\n\nExports:\n", opts.wasmFile)
		for _, e := range mod.Exports() {
			if e.Kind == engine.ExportFunc {
				fmt.Fprintf(out, "  %s %s\n", e.Name, e.Signature)
			} else {
				fmt.Fprintf(out, "  %s (%s)\n", e.Name, e.Kind)
			}
		}
		fmt.Fprintf(out, "\nImports:\n")
		for _, imp := range mod.Imports() {
			fmt.Fprintf(out, "  %s.%s %s\n", imp.Module, imp.Name, imp.Signature)
		}
		return nil
	}

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	resp := &mockResponse{status: opts.status, body: []byte(opts.body)}
	fmt.Fprintf(out, "[0] response: %s\n", resp)

	result, err := inst.Transform(ctx, string(resp.body))
	if err != nil {
		return fmt.Errorf("call %s: %w", opts.funcName, err)
	}
	resp.body = []byte(result)

	fmt.Fprintf(out, "[1] response: %s\n", resp)
	return nil
}

// mockResponse stands in for an HTTP response whose body the guest rewrites.
type mockResponse struct {
	body   []byte
	status uint
}

func (r *mockResponse) String() string {
	return fmt.Sprintf("status: %d, body: %s", r.status, strings.ToValidUTF8(string(r.body), "�"))
}
