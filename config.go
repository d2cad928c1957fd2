package bitzero

import (
	"io"
	"log/slog"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/internal/engine/interpreter"
	"github.com/tetratelabs/bitzero/internal/memory"
)

// RuntimeConfig controls runtime behavior, with the default implementation as
// NewRuntimeConfig.
//
// Note: RuntimeConfig is immutable. Each WithXXX function returns a new
// instance including the corresponding change.
type RuntimeConfig struct {
	memoryLimit      uint64
	callStackCeiling int
	logger           *slog.Logger
	liveness         bool
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// defaultRuntimeConfig helps avoid copy/pasting the wrong defaults.
var defaultRuntimeConfig = &RuntimeConfig{
	memoryLimit:      memory.DefaultLimit,
	callStackCeiling: interpreter.DefaultCallStackCeiling,
	logger:           discardLogger,
	liveness:         true,
}

// NewRuntimeConfig returns a RuntimeConfig with a 256 MiB native memory
// limit, a call stack ceiling of 2000 frames, last-use slot clearing and a
// logger that discards everything.
func NewRuntimeConfig() *RuntimeConfig {
	return defaultRuntimeConfig.clone()
}

// clone makes a deep copy of this runtime config.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithMemoryLimit bounds the native memory of each module instance, in
// bytes. Allocations beyond the limit fail with an out of memory fault.
//
// Note: Zero resets the limit to the default.
func (c *RuntimeConfig) WithMemoryLimit(bytes uint64) *RuntimeConfig {
	ret := c.clone()
	if bytes == 0 {
		bytes = memory.DefaultLimit
	}
	ret.memoryLimit = bytes
	return ret
}

// WithCallStackCeiling bounds the depth of nested calls. A call beyond the
// ceiling faults with "callstack overflow".
//
// Note: Values below one reset the ceiling to the default.
func (c *RuntimeConfig) WithCallStackCeiling(depth int) *RuntimeConfig {
	ret := c.clone()
	if depth < 1 {
		depth = interpreter.DefaultCallStackCeiling
	}
	ret.callStackCeiling = depth
	return ret
}

// WithLogger sets the logger the runtime reports decoding and instantiation
// to, at debug level. A nil logger discards. Executed code never logs: use
// experimental/logging to trace execution.
func (c *RuntimeConfig) WithLogger(logger *slog.Logger) *RuntimeConfig {
	ret := c.clone()
	if logger == nil {
		logger = discardLogger
	}
	ret.logger = logger
	return ret
}

// WithLiveness toggles clearing frame slots after the last use of a value.
// This defaults to true. Disabling it keeps every value of a frame alive
// until the function returns.
func (c *RuntimeConfig) WithLiveness(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.liveness = enabled
	return ret
}

// ModuleConfig configures resources needed by functions that have low-level
// interactions with the host, such as declared functions the module calls.
//
// Note: ModuleConfig is immutable. Each WithXXX function returns a new
// instance including the corresponding change.
type ModuleConfig struct {
	name          string
	hostFunctions map[string]api.GoFunction
}

// NewModuleConfig returns a ModuleConfig with no name and no host functions.
func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{}
}

// clone makes a deep copy of this module config.
func (c *ModuleConfig) clone() *ModuleConfig {
	ret := *c
	ret.hostFunctions = make(map[string]api.GoFunction, len(c.hostFunctions))
	for k, v := range c.hostFunctions {
		ret.hostFunctions[k] = v
	}
	return &ret
}

// WithName configures the module name. Defaults to the source file name
// recorded in the bitcode.
//
// Note: An empty name instantiates an anonymous module, which
// Runtime.Module cannot look up.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	ret := c.clone()
	ret.name = name
	return ret
}

// WithHostFunction implements the function the module declares as name with
// fn. Host functions take precedence over intrinsics of the same name.
//
// Ex. Satisfy a C declaration of "int putchar(int)":
//
//	config := bitzero.NewModuleConfig().WithHostFunction("putchar",
//		func(ctx context.Context, mod api.Module, params []api.Value) (api.Value, error) {
//			os.Stdout.Write([]byte{byte(params[0].I32())})
//			return params[0], nil
//		})
func (c *ModuleConfig) WithHostFunction(name string, fn api.GoFunction) *ModuleConfig {
	ret := c.clone()
	ret.hostFunctions[name] = fn
	return ret
}
