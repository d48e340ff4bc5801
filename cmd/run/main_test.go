package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/asbridge/internal/wasmtest"
)

func writeGuest(t *testing.T, opts wasmtest.GuestOptions) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, wasmtest.Guest(opts), 0o644))
	return path
}

func TestRun(t *testing.T) {
	var out, diag bytes.Buffer
	opts := options{
		wasmFile: writeGuest(t, wasmtest.GuestOptions{}),
		funcName: "transform_logged",
		body:     sampleBody,
		status:   200,
	}

	require.NoError(t, run(context.Background(), opts, &out, &diag))
	assert.Equal(t,
		"[0] response: status: 200, body: {\"name\":\"John\", \"age\":30}\n"+
			"[1] response: status: 200, body: {\"NAME\":\"JOHN\", \"AGE\":30}\n",
		out.String())
	assert.Equal(t, "guest: hello\n", diag.String())
}

func TestRun_List(t *testing.T) {
	var out bytes.Buffer
	opts := options{
		wasmFile: writeGuest(t, wasmtest.GuestOptions{}),
		funcName: "transform",
		list:     true,
	}

	require.NoError(t, run(context.Background(), opts, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "transform func(i32) -> (i32)")
	assert.Contains(t, out.String(), "memory (memory)")
	assert.Contains(t, out.String(), "env.abort func(i32, i32, i32, i32) -> ()")
}

func TestRun_Abort(t *testing.T) {
	var out bytes.Buffer
	opts := options{
		wasmFile: writeGuest(t, wasmtest.GuestOptions{}),
		funcName: "transform_abort",
		body:     "{}",
		status:   500,
	}

	err := run(context.Background(), opts, &out, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom at guest.ts:1:2")
	assert.Equal(t, "[0] response: status: 500, body: {}\n", out.String())
}

func TestRun_MissingFile(t *testing.T) {
	err := run(context.Background(), options{wasmFile: filepath.Join(t.TempDir(), "nope.wasm"), funcName: "transform"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestMockResponse(t *testing.T) {
	r := &mockResponse{status: 404, body: []byte{'o', 'k', 0xff}}
	assert.Equal(t, "status: 404, body: ok�", r.String())
}

func TestReadBody(t *testing.T) {
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()

	_, err = pw.WriteString("{\"a\":1}\n")
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	body, err := readBody(pr)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, body)
}

func TestReadBody_Empty(t *testing.T) {
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	require.NoError(t, pw.Close())

	body, err := readBody(pr)
	require.NoError(t, err)
	assert.Equal(t, sampleBody, body)
}
