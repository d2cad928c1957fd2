// Package logging includes utilities used to log node execution. This is in
// an independent package to avoid dependency cycles.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/tetratelabs/bitzero/api"
)

type LogScopes uint64

const (
	LogScopeNone                 = LogScopes(0)
	LogScopeArithmetic LogScopes = 1 << iota
	LogScopeCompare
	LogScopeCast
	LogScopeMemory
	LogScopeVector
	LogScopeControl
	LogScopeLifetime
	LogScopeAll = LogScopes(0xffffffffffffffff)
)

func scopeName(s LogScopes) string {
	switch s {
	case LogScopeArithmetic:
		return "arithmetic"
	case LogScopeCompare:
		return "compare"
	case LogScopeCast:
		return "cast"
	case LogScopeMemory:
		return "memory"
	case LogScopeVector:
		return "vector"
	case LogScopeControl:
		return "control"
	case LogScopeLifetime:
		return "lifetime"
	default:
		return fmt.Sprintf("<unknown=%d>", s)
	}
}

// IsEnabled returns true if the scope (or group of scopes) is enabled.
func (f LogScopes) IsEnabled(scope LogScopes) bool {
	return f&scope != 0
}

// Defined returns true if any scope is set.
func (f LogScopes) Defined() bool {
	return f != LogScopeNone
}

// String implements fmt.Stringer by returning each enabled log scope.
func (f LogScopes) String() string {
	if f == LogScopeAll {
		return "all"
	}
	var builder strings.Builder
	for i := 0; i <= 63; i++ { // cycle through all bits to reduce code and maintenance
		target := LogScopes(1 << i)
		if f.IsEnabled(target) {
			if name := scopeName(target); name != "" {
				if builder.Len() > 0 {
					builder.WriteByte('|')
				}
				builder.WriteString(name)
			}
		}
	}
	return builder.String()
}

// ParseLogScopes returns the union of the named scopes. "all" enables every
// scope.
func ParseLogScopes(names ...string) (LogScopes, error) {
	var ret LogScopes
	for _, name := range names {
		if name == "all" {
			ret |= LogScopeAll
			continue
		}
		found := false
		for i := 1; i <= 7; i++ {
			if s := LogScopes(1 << i); scopeName(s) == name {
				ret |= s
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown log scope: %q", name)
		}
	}
	return ret, nil
}

// ScopeOf returns the scope nodes with the given tag are logged under.
func ScopeOf(tag api.Tag) LogScopes {
	switch tag {
	case api.TagAdd, api.TagSub, api.TagMul, api.TagDiv, api.TagRem,
		api.TagShl, api.TagShr, api.TagAnd, api.TagOr, api.TagXor:
		return LogScopeArithmetic
	case api.TagICmp, api.TagFCmp, api.TagSelect:
		return LogScopeCompare
	case api.TagCast:
		return LogScopeCast
	case api.TagAlloca, api.TagLoad, api.TagStore, api.TagGetElementPtr:
		return LogScopeMemory
	case api.TagExtractElement, api.TagInsertElement, api.TagExtractValue, api.TagInsertValue:
		return LogScopeVector
	case api.TagPhi, api.TagCall, api.TagRet, api.TagBr, api.TagSwitch,
		api.TagUnreachable, api.TagBlock, api.TagSSAWrite:
		return LogScopeControl
	case api.TagSSALifetimeEnd:
		return LogScopeLifetime
	}
	return LogScopeNone
}

// LoggerKey is a context.Context Value key with a per-call logging state.
type LoggerKey struct{}

type Writer interface {
	io.Writer
	io.StringWriter
	io.ByteWriter
}

// WriteValues writes vals comma separated.
func WriteValues(w Writer, vals []api.Value) {
	for i, v := range vals {
		if i > 0 {
			w.WriteString(", ") //nolint
		}
		w.WriteString(v.String()) //nolint
	}
}
