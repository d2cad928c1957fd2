package experimental_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/experimental"
)

type fakeDefinition struct{ tag api.Tag }

func (d fakeDefinition) Tag() api.Tag     { return d.tag }
func (d fakeDefinition) String() string   { return d.tag.String() }
func (d fakeDefinition) Function() string { return "main" }
func (d fakeDefinition) Slots() []string  { return nil }

type ctxKey struct{}

type recorder struct {
	name   string
	events *[]string
}

func (r recorder) Before(ctx context.Context, def api.NodeDefinition, _ []api.Value) context.Context {
	*r.events = append(*r.events, r.name+" before "+def.String())
	return context.WithValue(ctx, ctxKey{}, r.name)
}

func (r recorder) After(ctx context.Context, def api.NodeDefinition, _ api.Value, _ error) {
	*r.events = append(*r.events, r.name+" after "+def.String()+" in "+ctx.Value(ctxKey{}).(string))
}

func TestMultiNodeListenerFactory(t *testing.T) {
	var events []string
	only := func(name string, tag api.Tag) experimental.NodeListenerFactory {
		return experimental.NodeListenerFactoryFunc(func(def api.NodeDefinition) experimental.NodeListener {
			if def.Tag() != tag {
				return nil
			}
			return recorder{name: name, events: &events}
		})
	}
	factory := experimental.MultiNodeListenerFactory(only("a", api.TagAdd), only("b", api.TagAdd), only("c", api.TagLoad))

	require.Nil(t, factory.NewNodeListener(fakeDefinition{api.TagStore}))

	single := factory.NewNodeListener(fakeDefinition{api.TagLoad})
	require.Equal(t, recorder{name: "c", events: &events}, single)

	def := fakeDefinition{api.TagAdd}
	l := factory.NewNodeListener(def)
	ctx := l.Before(context.Background(), def, []api.Value{api.I32(1)})
	l.After(ctx, def, api.I32(2), nil)

	require.Equal(t, []string{
		"a before ADD",
		"b before ADD",
		"a after ADD in b",
		"b after ADD in b",
	}, events)
}

func TestNodeListenerFunc(t *testing.T) {
	var seen []api.Value
	l := experimental.NodeListenerFunc(func(_ context.Context, _ api.NodeDefinition, operands []api.Value) {
		seen = append(seen, operands...)
	})
	ctx := context.Background()
	require.Equal(t, ctx, l.Before(ctx, fakeDefinition{api.TagAdd}, []api.Value{api.I8(3)}))
	l.After(ctx, fakeDefinition{api.TagAdd}, api.I8(4), nil)
	require.Equal(t, []api.Value{api.I8(3)}, seen)
}
