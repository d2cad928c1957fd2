package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var allFlags = []Flags{
	FlagNUW, FlagNSW, FlagExact, FlagNNaN, FlagNInf, FlagNSZ, FlagARCP, FlagContract, FlagAFN, FlagReassoc, FlagFast,
}

func TestArithmeticOperator_AllowedFlags(t *testing.T) {
	tests := []struct {
		ops     []ArithmeticOperator
		allowed Flags
	}{
		{ops: []ArithmeticOperator{OpAdd, OpSub, OpMul, OpShl}, allowed: FlagNUW | FlagNSW},
		{ops: []ArithmeticOperator{OpUDiv, OpSDiv, OpLShr, OpAShr}, allowed: FlagExact},
		{
			ops:     []ArithmeticOperator{OpFAdd, OpFSub, OpFMul, OpFDiv, OpFRem},
			allowed: FlagNNaN | FlagNInf | FlagNSZ | FlagARCP | FlagContract | FlagAFN | FlagReassoc | FlagFast,
		},
		{ops: []ArithmeticOperator{OpURem, OpSRem, OpAnd, OpOr, OpXor}},
	}

	for _, tt := range tests {
		for _, op := range tt.ops {
			op, allowed := op, tt.allowed
			t.Run(op.String(), func(t *testing.T) {
				require.Equal(t, allowed, op.AllowedFlags())
				require.NoError(t, op.CheckFlags(0))
				for _, f := range allFlags {
					err := op.CheckFlags(f)
					if allowed&f != 0 {
						require.NoError(t, err, f.String())
					} else {
						require.ErrorIs(t, err, ErrIllegalFlag, f.String())
					}
				}
			})
		}
	}
}

func TestNewBinaryOperation(t *testing.T) {
	x, y := &IntConst{Typ: I8, Bits: 200}, &IntConst{Typ: I8, Bits: 100}

	inst, err := NewBinaryOperation(OpAdd, FlagNUW, x, y)
	require.NoError(t, err)
	require.Equal(t, "add nuw", inst.Display())
	require.Equal(t, I8, inst.Type())

	_, err = NewBinaryOperation(OpURem, FlagNSW, x, y)
	require.ErrorIs(t, err, ErrIllegalFlag)
	require.EqualError(t, err, "illegal flag for operator: urem does not allow nsw")

	_, err = NewBinaryOperation(OpAdd, FlagExact, x, y)
	require.ErrorIs(t, err, ErrIllegalFlag)

	_, err = NewBinaryOperation(OpFAdd, 0, x, y)
	require.ErrorIs(t, err, ErrOperandType)

	f := &FloatConst{Typ: Double}
	_, err = NewBinaryOperation(OpAdd, 0, f, f)
	require.ErrorIs(t, err, ErrOperandType)

	inst, err = NewBinaryOperation(OpFMul, FlagNNaN|FlagNInf, f, f)
	require.NoError(t, err)
	require.Equal(t, "fmul nnan ninf", inst.Display())
}

func TestParseArithmeticOperator(t *testing.T) {
	expInt := []ArithmeticOperator{OpAdd, OpSub, OpMul, OpUDiv, OpSDiv, OpURem, OpSRem, OpShl, OpLShr, OpAShr, OpAnd, OpOr, OpXor}
	for code, exp := range expInt {
		op, err := ParseArithmeticOperator(uint64(code), false)
		require.NoError(t, err)
		require.Equal(t, exp, op)
	}
	_, err := ParseArithmeticOperator(13, false)
	require.ErrorIs(t, err, ErrNoSuchOperator)

	expFloat := map[uint64]ArithmeticOperator{0: OpFAdd, 1: OpFSub, 2: OpFMul, 4: OpFDiv, 6: OpFRem}
	for code := uint64(0); code < 13; code++ {
		op, err := ParseArithmeticOperator(code, true)
		if exp, ok := expFloat[code]; ok {
			require.NoError(t, err)
			require.Equal(t, exp, op)
		} else {
			require.ErrorIs(t, err, ErrNoSuchOperator, "opcode %d", code)
		}
	}
}

func TestDecodeFlags(t *testing.T) {
	require.Equal(t, FlagNUW|FlagNSW, DecodeFlags(OpAdd, 3))
	require.Equal(t, FlagNSW, DecodeFlags(OpShl, 2))
	require.Equal(t, FlagExact, DecodeFlags(OpSDiv, 1))
	require.Equal(t, Flags(0), DecodeFlags(OpXor, 3))
	require.Equal(t, FlagFast, DecodeFlags(OpFAdd, 1))
	require.Equal(t, FlagNNaN|FlagReassoc, DecodeFlags(OpFDiv, 1<<1|1<<7))
}

func TestParseCastOperator(t *testing.T) {
	for code := uint64(0); code <= 12; code++ {
		op, ok := ParseCastOperator(code)
		require.True(t, ok)
		require.Equal(t, CastOperator(code), op)
	}
	require.Equal(t, "sext", CastSExt.String())

	_, ok := ParseCastOperator(13)
	require.False(t, ok)
}

func TestParsePredicate(t *testing.T) {
	p, ok := ParsePredicate(32)
	require.True(t, ok)
	require.Equal(t, ICmpEQ, p)
	require.False(t, p.IsFloat())

	p, ok = ParsePredicate(1)
	require.True(t, ok)
	require.Equal(t, "oeq", p.String())
	require.True(t, p.IsFloat())

	for _, code := range []uint64{16, 31, 42, 1000} {
		_, ok = ParsePredicate(code)
		require.False(t, ok, code)
	}
}
