package experimental

import (
	"context"

	"github.com/tetratelabs/bitzero/api"
)

// NodeListenerFactoryKey is a context.Context Value key. Its associated value should be a NodeListenerFactory.
type NodeListenerFactoryKey struct{}

// NodeListenerFactory returns NodeListeners to be notified when a node of a
// compiled function executes.
type NodeListenerFactory interface {
	// NewNodeListener returns a NodeListener for a compiled node. If nil is
	// returned, no listener will be notified.
	NewNodeListener(api.NodeDefinition) NodeListener
	// ^^ A single instance can be returned to avoid instantiating a listener
	// per node, especially as there may be millions of them. Shared listeners
	// use their NodeDefinition parameter to clarify.
}

// NodeListener can be registered for any node via NodeListenerFactory to be
// notified when the node executes.
type NodeListener interface {
	// Before is invoked before a node executes. The returned context will be
	// used as the context of this node, and of any function the node calls.
	//
	// # Params
	//
	//   - ctx: the context of the enclosing call which must be the same
	//     instance or parent of the result.
	//   - def: the node definition.
	//   - operands: the values the node reads. Do not retain the slice.
	Before(ctx context.Context, def api.NodeDefinition, operands []api.Value) context.Context

	// After is invoked after a node executed, including when it faulted.
	//
	// # Params
	//
	//   - ctx: the context returned by Before.
	//   - def: the node definition.
	//   - result: the value the node wrote, or void.
	//   - err: nil unless the node faulted.
	After(ctx context.Context, def api.NodeDefinition, result api.Value, err error)
}

// NodeListenerFunc is a function type implementing the NodeListener
// interface, making it possible to use regular functions and methods as
// listeners of node execution.
//
// The NodeListener interface declares two methods (Before and After), but
// this type invokes its value only when Before is called.
type NodeListenerFunc func(context.Context, api.NodeDefinition, []api.Value)

// Before satisfies the NodeListener interface, calls f.
func (f NodeListenerFunc) Before(ctx context.Context, def api.NodeDefinition, operands []api.Value) context.Context {
	f(ctx, def, operands)
	return ctx
}

// After is declared to satisfy the NodeListener interface, but it does
// nothing.
func (f NodeListenerFunc) After(context.Context, api.NodeDefinition, api.Value, error) {}

// NodeListenerFactoryFunc is a function type implementing the
// NodeListenerFactory interface, making it possible to use regular functions
// and methods as factory of node listeners.
type NodeListenerFactoryFunc func(api.NodeDefinition) NodeListener

// NewNodeListener satisfies the NodeListenerFactory interface, calls f.
func (f NodeListenerFactoryFunc) NewNodeListener(def api.NodeDefinition) NodeListener {
	return f(def)
}

// MultiNodeListenerFactory constructs a NodeListenerFactory which combines
// the listeners created by each of the factories passed as arguments.
//
// This function is useful when multiple listeners need to be hooked to a
// module because the propagation mechanism based on installing a listener
// factory in the context.Context used when instantiating modules allows for a
// single listener to be installed.
func MultiNodeListenerFactory(factories ...NodeListenerFactory) NodeListenerFactory {
	multi := make(multiNodeListenerFactory, len(factories))
	copy(multi, factories)
	return multi
}

type multiNodeListenerFactory []NodeListenerFactory

func (multi multiNodeListenerFactory) NewNodeListener(def api.NodeDefinition) NodeListener {
	var lstns []NodeListener
	for _, factory := range multi {
		if lstn := factory.NewNodeListener(def); lstn != nil {
			lstns = append(lstns, lstn)
		}
	}
	switch len(lstns) {
	case 0:
		return nil
	case 1:
		return lstns[0]
	default:
		return multiNodeListener(lstns)
	}
}

type multiNodeListener []NodeListener

func (multi multiNodeListener) Before(ctx context.Context, def api.NodeDefinition, operands []api.Value) context.Context {
	for _, lstn := range multi {
		ctx = lstn.Before(ctx, def, operands)
	}
	return ctx
}

func (multi multiNodeListener) After(ctx context.Context, def api.NodeDefinition, result api.Value, err error) {
	for _, lstn := range multi {
		lstn.After(ctx, def, result, err)
	}
}
