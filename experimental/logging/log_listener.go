package logging

import (
	"bufio"
	"context"
	"io"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/experimental"
	"github.com/tetratelabs/bitzero/internal/logging"
)

type Writer interface {
	io.Writer
	io.StringWriter
}

// LogScopes is a bitset of node categories to log.
type LogScopes = logging.LogScopes

const (
	LogScopeNone       = logging.LogScopeNone
	LogScopeArithmetic = logging.LogScopeArithmetic
	LogScopeCompare    = logging.LogScopeCompare
	LogScopeCast       = logging.LogScopeCast
	LogScopeMemory     = logging.LogScopeMemory
	LogScopeVector     = logging.LogScopeVector
	LogScopeControl    = logging.LogScopeControl
	LogScopeLifetime   = logging.LogScopeLifetime
	LogScopeAll        = logging.LogScopeAll
)

// NewLoggingListenerFactory is an experimental.NodeListenerFactory that logs
// every executed node to the writer, one line per node.
//
// Calls are logged twice: a line prefixed with "-->" before the callee runs
// and one prefixed with "<--" with its result. Nodes executed by the callee
// are indented by one tab per call level.
func NewLoggingListenerFactory(w Writer) experimental.NodeListenerFactory {
	return &loggingListenerFactory{w: toInternalWriter(w), scopes: logging.LogScopeAll}
}

// NewScopedLoggingListenerFactory is an experimental.NodeListenerFactory
// that logs only the nodes in the given scopes.
//
// For example, LogScopeMemory logs allocas, loads, stores and address
// computations.
func NewScopedLoggingListenerFactory(w Writer, scopes logging.LogScopes) experimental.NodeListenerFactory {
	return &loggingListenerFactory{w: toInternalWriter(w), scopes: scopes}
}

func toInternalWriter(w Writer) logging.Writer {
	if w, ok := w.(logging.Writer); ok {
		return w
	}
	return bufio.NewWriter(w)
}

type loggingListenerFactory struct {
	w      logging.Writer
	scopes logging.LogScopes
}

type flusher interface {
	Flush() error
}

// NewNodeListener implements the same method as documented on
// experimental.NodeListenerFactory.
func (f *loggingListenerFactory) NewNodeListener(def api.NodeDefinition) experimental.NodeListener {
	if !f.scopes.IsEnabled(logging.ScopeOf(def.Tag())) {
		return nil
	}
	return &loggingListener{w: f.w, prefix: def.Function() + ": " + def.String(), call: def.Tag() == api.TagCall}
}

// logState saves a copy of the operands between Before and After, as well as
// the nesting level of the node.
type logState struct {
	nestLevel int
	operands  []api.Value
}

// loggingListener implements experimental.NodeListener to log each executed
// node.
type loggingListener struct {
	w      logging.Writer
	prefix string
	call   bool
}

// Before records the operands. Calls are logged immediately so that the
// nodes of the callee follow them.
func (l *loggingListener) Before(ctx context.Context, _ api.NodeDefinition, operands []api.Value) context.Context {
	var nestLevel int
	if ls, ok := ctx.Value(logging.LoggerKey{}).(*logState); ok {
		nestLevel = ls.nestLevel
	}

	ls := &logState{nestLevel: nestLevel}
	if oLen := len(operands); oLen > 0 {
		ls.operands = make([]api.Value, oLen)
		copy(ls.operands, operands) // safe copy
	}

	if l.call {
		l.logIndented(nestLevel, "--> ", ls.operands, true, api.Value{}, nil)
		// Increase the nesting level of the callee.
		ls = &logState{nestLevel: nestLevel + 1, operands: ls.operands}
	}
	return context.WithValue(ctx, logging.LoggerKey{}, ls)
}

// After logs the node with its operands and result.
func (l *loggingListener) After(ctx context.Context, _ api.NodeDefinition, result api.Value, err error) {
	ls, ok := ctx.Value(logging.LoggerKey{}).(*logState)
	if !ok {
		return
	}
	if l.call {
		l.logIndented(ls.nestLevel-1, "<-- ", nil, false, result, err)
		return
	}
	l.logIndented(ls.nestLevel, "", ls.operands, true, result, err)
}

// logIndented writes a line like this: "\t\t$prefix$function: $node($operands) = $result\n"
func (l *loggingListener) logIndented(nestLevel int, prefix string, operands []api.Value, withOperands bool, result api.Value, err error) {
	for i := 0; i < nestLevel; i++ {
		l.w.WriteByte('\t') //nolint
	}
	l.w.WriteString(prefix)   //nolint
	l.w.WriteString(l.prefix) //nolint
	if withOperands {
		l.w.WriteByte('(') //nolint
		logging.WriteValues(l.w, operands)
		l.w.WriteByte(')') //nolint
	}
	if err != nil {
		l.w.WriteString(" error: ")  //nolint
		l.w.WriteString(err.Error()) //nolint
	} else if result.Kind() != api.KindVoid {
		l.w.WriteString(" = ")           //nolint
		l.w.WriteString(result.String()) //nolint
	}
	l.w.WriteByte('\n') //nolint

	if f, ok := l.w.(flusher); ok {
		f.Flush() //nolint
	}
}
