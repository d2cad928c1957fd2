package bitzero

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/internal/engine/interpreter"
	"github.com/tetratelabs/bitzero/internal/memory"
)

func TestRuntimeConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		with     func(*RuntimeConfig) *RuntimeConfig
		expected *RuntimeConfig
	}{
		{
			name:     "WithMemoryLimit",
			with:     func(c *RuntimeConfig) *RuntimeConfig { return c.WithMemoryLimit(1 << 20) },
			expected: &RuntimeConfig{memoryLimit: 1 << 20},
		},
		{
			name:     "WithMemoryLimit zero",
			with:     func(c *RuntimeConfig) *RuntimeConfig { return c.WithMemoryLimit(0) },
			expected: &RuntimeConfig{memoryLimit: memory.DefaultLimit},
		},
		{
			name:     "WithCallStackCeiling",
			with:     func(c *RuntimeConfig) *RuntimeConfig { return c.WithCallStackCeiling(10) },
			expected: &RuntimeConfig{callStackCeiling: 10},
		},
		{
			name:     "WithCallStackCeiling negative",
			with:     func(c *RuntimeConfig) *RuntimeConfig { return c.WithCallStackCeiling(-1) },
			expected: &RuntimeConfig{callStackCeiling: interpreter.DefaultCallStackCeiling},
		},
		{
			name:     "WithLogger",
			with:     func(c *RuntimeConfig) *RuntimeConfig { return c.WithLogger(logger) },
			expected: &RuntimeConfig{logger: logger},
		},
		{
			name:     "WithLogger nil",
			with:     func(c *RuntimeConfig) *RuntimeConfig { return c.WithLogger(nil) },
			expected: &RuntimeConfig{logger: discardLogger},
		},
		{
			name:     "WithLiveness",
			with:     func(c *RuntimeConfig) *RuntimeConfig { return c.WithLiveness(true) },
			expected: &RuntimeConfig{liveness: true},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			input := &RuntimeConfig{}
			rc := tc.with(input)
			require.Equal(t, tc.expected, rc)
			// The source wasn't modified
			require.Equal(t, &RuntimeConfig{}, input)
		})
	}
}

func TestNewRuntimeConfig(t *testing.T) {
	c := NewRuntimeConfig()
	require.Equal(t, defaultRuntimeConfig, c)
	require.NotSame(t, defaultRuntimeConfig, c)

	c.WithLiveness(false)
	require.True(t, c.liveness)
}

func TestModuleConfig(t *testing.T) {
	fn := func(context.Context, api.Module, []api.Value) (api.Value, error) { return api.I32(1), nil }

	t.Run("WithName", func(t *testing.T) {
		input := NewModuleConfig()
		mc := input.WithName("math")
		require.Equal(t, "math", mc.name)
		require.Equal(t, "", input.name)
	})

	t.Run("WithHostFunction", func(t *testing.T) {
		input := NewModuleConfig()
		mc := input.WithHostFunction("one", fn)
		require.Contains(t, mc.hostFunctions, "one")
		require.Empty(t, input.hostFunctions)

		mc2 := mc.WithHostFunction("two", fn)
		require.Equal(t, 2, len(mc2.hostFunctions))
		// The source wasn't modified
		require.Equal(t, 1, len(mc.hostFunctions))
	})
}
