package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig      Phase = "config"      // runtime configuration
	PhaseLoad        Phase = "load"        // module compilation
	PhaseBind        Phase = "bind"        // shared environment binding
	PhaseInstantiate Phase = "instantiate" // guest instantiation
	PhaseResolve     Phase = "resolve"     // export resolution
	PhaseEncode      Phase = "encode"      // Go to guest
	PhaseDecode      Phase = "decode"      // guest to Go
	PhaseCall        Phase = "call"        // guest function calls
	PhaseHost        Phase = "host"        // host import functions
)

// Kind categorizes the error
type Kind string

const (
	KindNotReady      Kind = "not_ready"
	KindAlreadySet    Kind = "already_set"
	KindMissingExport Kind = "missing_export"
	KindExportType    Kind = "export_type"
	KindMissingImport Kind = "missing_import"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindInvalidData   Kind = "invalid_data"
	KindAllocation    Kind = "allocation"
	KindTrap          Kind = "trap"
	KindAbort         Kind = "abort"
	KindPoisoned      Kind = "poisoned"
	KindInvalidInput  Kind = "invalid_input"
	KindClosed        Kind = "closed"
	KindMalformed     Kind = "malformed"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Field  string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Field != "" {
		b.WriteString(" at ")
		b.WriteString(e.Field)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Field names the environment field or export involved
func (b *Builder) Field(name string) *Builder {
	b.err.Field = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// NotReady reports access to an environment field before it was bound.
func NotReady(field string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindNotReady,
		Field:  field,
		Detail: "accessed before it was set",
	}
}

// AlreadySet reports a second write to a set-once field.
func AlreadySet(field string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindAlreadySet,
		Field:  field,
		Detail: "can only be set once",
	}
}

// ExportType reports an export of the wrong kind or signature.
func ExportType(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindExportType,
		Field:  name,
		Detail: fmt.Sprintf("want %s, got %s", want, got),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, offset, length uint64, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, offset+length, size),
		Value:  offset,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// Trap wraps a runtime fault raised while the guest was executing.
func Trap(phase Phase, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTrap,
		Field:  name,
		Detail: "guest trapped",
		Cause:  cause,
	}
}

// Poisoned reports a call against an instance that already trapped or aborted.
func Poisoned(cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindPoisoned,
		Detail: "instance is unusable after a guest fault; re-instantiate",
		Cause:  cause,
	}
}

// Closed reports use of a closed instance or runtime.
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMalformed,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindTrap,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// AbortError carries what the guest passed to env.abort. Message and File
// are best-effort: the guest may be inconsistent when it aborts.
type AbortError struct {
	Cause   error
	Message string
	File    string
	Line    uint32
	Column  uint32
}

func (e *AbortError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "<undecodable>"
	}
	file := e.File
	if file == "" {
		file = "<unknown>"
	}
	return fmt.Sprintf("[call] abort: guest aborted: %s at %s:%d:%d", msg, file, e.Line, e.Column)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// Is matches any *AbortError and the abort kind of *Error.
func (e *AbortError) Is(target error) bool {
	switch t := target.(type) {
	case *AbortError:
		return true
	case *Error:
		return t.Kind == KindAbort
	}
	return false
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Namespace string // e.g., "env"
	Function  string // e.g., "abort"
}

// MissingImportsError is returned when a guest imports functions the host does not provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "namespace#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[load] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	// Group by namespace for cleaner output
	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Function)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Kind == KindMissingImport
	}
	return false
}

// MissingExportsError lists required guest exports that were not found.
type MissingExportsError struct {
	Exports []string
}

func (e *MissingExportsError) Error() string {
	return fmt.Sprintf("[resolve] missing_export: guest does not export %s", strings.Join(e.Exports, ", "))
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingExportsError:
		return true
	case *Error:
		return t.Kind == KindMissingExport
	}
	return false
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	var abort *AbortError
	if errors.As(err, &abort) {
		return KindAbort, true
	}
	var exports *MissingExportsError
	if errors.As(err, &exports) {
		return KindMissingExport, true
	}
	var imports *MissingImportsError
	if errors.As(err, &imports) {
		return KindMissingImport, true
	}
	return "", false
}

// IsFatal reports sequencing and wiring bugs (environment fields used before
// binding or set twice) and guests the host cannot run: malformed binaries
// and missing or mistyped imports and exports.
func IsFatal(err error) bool {
	k, ok := kindOf(err)
	if !ok {
		return false
	}
	switch k {
	case KindNotReady, KindAlreadySet, KindMissingExport, KindExportType, KindMissingImport, KindMalformed:
		return true
	}
	return false
}

// IsTrap reports guest faults. The instance must not be reused after one.
func IsTrap(err error) bool {
	k, ok := kindOf(err)
	if !ok {
		return false
	}
	switch k {
	case KindTrap, KindAbort, KindPoisoned:
		return true
	}
	return false
}

// IsDecode reports recoverable decode and bounds errors.
func IsDecode(err error) bool {
	k, ok := kindOf(err)
	if !ok {
		return false
	}
	return k == KindOutOfBounds || k == KindInvalidData
}

// IsNotReady reports access to a shared environment field before it was set.
func IsNotReady(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotReady
}
