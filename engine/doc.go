// Package engine wraps wazero for the bridge.
//
// WazeroEngine owns a compilation cache and hands out one wazero runtime per
// guest instance. Compile validates a binary and returns its ModuleInfo
// (exports with kinds and signatures, function imports) without keeping an
// instance around. WazeroMemory adapts api.Memory to asbridge.Memory.
package engine
