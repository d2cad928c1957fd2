package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/internal/ir"
)

func TestLastUse_DeadAfter(t *testing.T) {
	t.Run("straight line", func(t *testing.T) {
		b := newBuilder("f", ir.I32, ir.I32)
		b.block()
		v1 := b.binary(ir.OpAdd, 0, b.param(0), intConst(ir.I32, 1))
		v2 := b.binary(ir.OpMul, 0, v1, v1)
		v3 := b.binary(ir.OpAdd, 0, b.param(0), intConst(ir.I32, 2))
		b.ret(v2)

		dead := LastUse{}.DeadAfter(b.f)
		require.Equal(t, [][][]ir.Value{{
			nil,
			{v1},
			{b.param(0), v3},
			{v2},
		}}, dead)
	})

	t.Run("values used by other blocks and phis live on", func(t *testing.T) {
		f := sumTo(3)
		dead := LastUse{}.DeadAfter(f)
		require.Equal(t, 3, len(dead))

		loop := f.Blocks[1].Insts
		i, acc := loop[0], loop[1]
		// i and acc are read once in the loop body and then replaced by the
		// phis; the next values feed the phis and the exit block.
		require.Equal(t, []ir.Value{acc}, dead[1][2])
		require.Equal(t, []ir.Value{i}, dead[1][3])
		require.Equal(t, []ir.Value{loop[4]}, dead[1][5])
		require.Nil(t, dead[2][0])
	})
}
