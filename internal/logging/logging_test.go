package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/api"
)

// TestLogScopes tests the bitset works as expected
func TestLogScopes(t *testing.T) {
	tests := []struct {
		name   string
		scopes LogScopes
	}{
		{
			name:   "one is the smallest flag",
			scopes: 1,
		},
		{
			name:   "63 is the largest feature flag", // because uint64
			scopes: 1 << 63,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			f := LogScopes(0)

			// Defaults to false
			require.False(t, f.IsEnabled(tc.scopes))

			// Set true makes it true
			f = f | tc.scopes
			require.True(t, f.IsEnabled(tc.scopes))

			// Set false makes it false again
			f = f ^ tc.scopes
			require.False(t, f.IsEnabled(tc.scopes))
		})
	}
}

func TestLogScopes_String(t *testing.T) {
	tests := []struct {
		name     string
		scopes   LogScopes
		expected string
	}{
		{name: "none", scopes: LogScopeNone, expected: ""},
		{name: "any", scopes: LogScopeAll, expected: "all"},
		{name: "arithmetic", scopes: LogScopeArithmetic, expected: "arithmetic"},
		{name: "compare", scopes: LogScopeCompare, expected: "compare"},
		{name: "cast", scopes: LogScopeCast, expected: "cast"},
		{name: "memory", scopes: LogScopeMemory, expected: "memory"},
		{name: "vector", scopes: LogScopeVector, expected: "vector"},
		{name: "control", scopes: LogScopeControl, expected: "control"},
		{name: "lifetime", scopes: LogScopeLifetime, expected: "lifetime"},
		{name: "memory|control", scopes: LogScopeMemory | LogScopeControl, expected: "memory|control"},
		{name: "undefined", scopes: 1 << 14, expected: fmt.Sprintf("<unknown=%d>", 1<<14)},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.scopes.String())
		})
	}
}

func TestParseLogScopes(t *testing.T) {
	scopes, err := ParseLogScopes("memory", "cast")
	require.NoError(t, err)
	require.Equal(t, LogScopeMemory|LogScopeCast, scopes)

	scopes, err = ParseLogScopes("all")
	require.NoError(t, err)
	require.Equal(t, LogScopeAll, scopes)

	scopes, err = ParseLogScopes()
	require.NoError(t, err)
	require.False(t, scopes.Defined())

	_, err = ParseLogScopes("filesystem")
	require.EqualError(t, err, `unknown log scope: "filesystem"`)
}

func TestScopeOf(t *testing.T) {
	require.Equal(t, LogScopeArithmetic, ScopeOf(api.TagShr))
	require.Equal(t, LogScopeCompare, ScopeOf(api.TagFCmp))
	require.Equal(t, LogScopeMemory, ScopeOf(api.TagGetElementPtr))
	require.Equal(t, LogScopeVector, ScopeOf(api.TagInsertValue))
	require.Equal(t, LogScopeControl, ScopeOf(api.TagCall))
	require.Equal(t, LogScopeLifetime, ScopeOf(api.TagSSALifetimeEnd))
	require.Equal(t, LogScopeNone, ScopeOf(api.TagConstant))
}

func TestWriteValues(t *testing.T) {
	var buf bytes.Buffer
	WriteValues(&buf, []api.Value{api.I32(-1), api.Double(0.5)})
	require.Equal(t, "i32 -1, double 0.5", buf.String())
}
