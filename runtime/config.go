package runtime

import (
	"github.com/go-playground/validator/v10"

	"github.com/wippyai/asbridge/errors"
)

// DefaultEntrypoint is the guest export Transform calls.
const DefaultEntrypoint = "transform"

var validate = validator.New()

// Config configures a Runtime. The zero value is usable.
type Config struct {
	// Sink receives the guest's log and trace output. Nil logs through the
	// package logger.
	Sink Sink `validate:"-"`

	// Entrypoint is the string -> string export used by Transform.
	Entrypoint string `validate:"required,printascii"`

	// CacheDir persists compiled code across processes.
	CacheDir string

	// MemoryLimitPages caps guest memory per instance in 64KiB pages.
	// 0 keeps the wazero default.
	MemoryLimitPages uint32 `validate:"lte=65536"`

	// RequireUnpin rejects guests that do not export __unpin instead of
	// letting their pinned strings accumulate.
	RequireUnpin bool

	// WASI instantiates wasi_snapshot_preview1 for guests built with a WASI
	// shim.
	WASI bool
}

func (c Config) withDefaults() Config {
	if c.Entrypoint == "" {
		c.Entrypoint = DefaultEntrypoint
	}
	if c.Sink == nil {
		c.Sink = LoggerSink{}
	}
	return c
}

// Validate checks c after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if err := validate.Struct(c); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("invalid runtime config").
			Cause(err).
			Build()
	}
	return nil
}
