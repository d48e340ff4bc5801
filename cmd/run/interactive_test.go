package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/asbridge/internal/wasmtest"
)

func TestInteractiveModel(t *testing.T) {
	m := newInteractiveModel(options{
		wasmFile: writeGuest(t, wasmtest.GuestOptions{}),
		funcName: "transform_logged",
	})
	defer m.close()
	assert.Equal(t, "Loading module...", m.View())

	msg := m.loadModule()
	loaded, ok := msg.(loadedMsg)
	require.True(t, ok)
	require.NoError(t, loaded.err)
	m.Update(msg)
	require.NotNil(t, m.module)

	res := m.transform("hi there")()
	m.Update(res)
	require.Len(t, m.history, 1)
	ex := m.history[0]
	require.NoError(t, ex.err)
	assert.Equal(t, "HI THERE", ex.output)
	assert.Equal(t, []string{"guest: hello"}, ex.logs)
	assert.Contains(t, m.View(), "HI THERE")
}

func TestInteractiveModel_ReplacesPoisonedInstance(t *testing.T) {
	m := newInteractiveModel(options{
		wasmFile: writeGuest(t, wasmtest.GuestOptions{}),
		funcName: "transform_abort",
	})
	defer m.close()
	m.Update(m.loadModule())

	m.Update(m.transform("x")())
	require.Len(t, m.history, 1)
	require.Error(t, m.history[0].err)
	first := m.instance
	require.True(t, first.Poisoned())

	m.Update(m.transform("y")())
	require.Len(t, m.history, 2)
	assert.NotSame(t, first, m.instance)
	assert.Contains(t, m.View(), "guest fault")
}

func TestInteractiveModel_LoadError(t *testing.T) {
	m := newInteractiveModel(options{wasmFile: "/nonexistent/guest.wasm", funcName: "transform"})
	m.Update(m.loadModule())
	assert.Contains(t, m.View(), "Error:")
}
