package ir

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIllegalFlag is returned when a flag outside an operator's allowed
	// set is requested.
	ErrIllegalFlag = errors.New("illegal flag for operator")
	// ErrNoSuchOperator is returned when an opcode has no operator mapping.
	ErrNoSuchOperator = errors.New("no such operator")
)

// ArithmeticOperator is a binary arithmetic operator.
type ArithmeticOperator byte

const (
	OpAdd ArithmeticOperator = iota
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem
)

var arithmeticOperatorNames = [...]string{
	OpAdd:  "add",
	OpSub:  "sub",
	OpMul:  "mul",
	OpUDiv: "udiv",
	OpSDiv: "sdiv",
	OpURem: "urem",
	OpSRem: "srem",
	OpShl:  "shl",
	OpLShr: "lshr",
	OpAShr: "ashr",
	OpAnd:  "and",
	OpOr:   "or",
	OpXor:  "xor",
	OpFAdd: "fadd",
	OpFSub: "fsub",
	OpFMul: "fmul",
	OpFDiv: "fdiv",
	OpFRem: "frem",
}

func (op ArithmeticOperator) String() string {
	if int(op) < len(arithmeticOperatorNames) {
		return arithmeticOperatorNames[op]
	}
	return fmt.Sprintf("<unknown=%d>", op)
}

// IsFloat is true for FADD, FSUB, FMUL, FDIV and FREM.
func (op ArithmeticOperator) IsFloat() bool { return op >= OpFAdd && op <= OpFRem }

// Flags is a set of instruction modifier flags.
type Flags uint16

const (
	FlagNUW Flags = 1 << iota
	FlagNSW
	FlagExact
	FlagNNaN
	FlagNInf
	FlagNSZ
	FlagARCP
	FlagContract
	FlagAFN
	FlagReassoc
	FlagFast

	wrapFlags     = FlagNUW | FlagNSW
	fastMathFlags = FlagNNaN | FlagNInf | FlagNSZ | FlagARCP | FlagContract | FlagAFN | FlagReassoc | FlagFast
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{FlagNUW, "nuw"},
	{FlagNSW, "nsw"},
	{FlagExact, "exact"},
	{FlagFast, "fast"},
	{FlagNNaN, "nnan"},
	{FlagNInf, "ninf"},
	{FlagNSZ, "nsz"},
	{FlagARCP, "arcp"},
	{FlagContract, "contract"},
	{FlagAFN, "afn"},
	{FlagReassoc, "reassoc"},
}

// String returns the flags space separated in the textual IR order, e.g.
// "nuw nsw".
func (f Flags) String() string {
	var names []string
	for _, n := range flagNames {
		if f&n.f != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, " ")
}

// AllowedFlags returns the flags op accepts.
func (op ArithmeticOperator) AllowedFlags() Flags {
	switch op {
	case OpAdd, OpSub, OpMul, OpShl:
		return wrapFlags
	case OpUDiv, OpSDiv, OpLShr, OpAShr:
		return FlagExact
	case OpFAdd, OpFSub, OpFMul, OpFDiv, OpFRem:
		return fastMathFlags
	}
	return 0
}

// CheckFlags returns ErrIllegalFlag when flags is not a subset of
// op.AllowedFlags().
func (op ArithmeticOperator) CheckFlags(flags Flags) error {
	if illegal := flags &^ op.AllowedFlags(); illegal != 0 {
		return fmt.Errorf("%w: %s does not allow %s", ErrIllegalFlag, op, illegal)
	}
	return nil
}

// Opcode tables of the bitcode binop record. The floating table has no entry
// for the unsigned and shift slots.
var (
	integerOperators = [...]*ArithmeticOperator{
		opPtr(OpAdd), opPtr(OpSub), opPtr(OpMul), opPtr(OpUDiv), opPtr(OpSDiv), opPtr(OpURem), opPtr(OpSRem),
		opPtr(OpShl), opPtr(OpLShr), opPtr(OpAShr), opPtr(OpAnd), opPtr(OpOr), opPtr(OpXor),
	}
	floatOperators = [...]*ArithmeticOperator{
		opPtr(OpFAdd), opPtr(OpFSub), opPtr(OpFMul), nil, opPtr(OpFDiv), nil, opPtr(OpFRem),
	}
)

func opPtr(op ArithmeticOperator) *ArithmeticOperator { return &op }

// ParseArithmeticOperator maps a bitcode binop opcode to an operator. An
// opcode outside the table or on a nil slot is ErrNoSuchOperator.
func ParseArithmeticOperator(opcode uint64, float bool) (ArithmeticOperator, error) {
	var op *ArithmeticOperator
	if float {
		if opcode < uint64(len(floatOperators)) {
			op = floatOperators[opcode]
		}
	} else if opcode < uint64(len(integerOperators)) {
		op = integerOperators[opcode]
	}
	if op == nil {
		kind := "integer"
		if float {
			kind = "floating"
		}
		return 0, fmt.Errorf("%w: %s binop opcode %d", ErrNoSuchOperator, kind, opcode)
	}
	return *op, nil
}

// DecodeFlags maps the optional flags operand of a bitcode binop to Flags.
func DecodeFlags(op ArithmeticOperator, raw uint64) Flags {
	var ret Flags
	switch op.AllowedFlags() {
	case wrapFlags:
		if raw&1 != 0 {
			ret |= FlagNUW
		}
		if raw&2 != 0 {
			ret |= FlagNSW
		}
	case FlagExact:
		if raw&1 != 0 {
			ret |= FlagExact
		}
	case fastMathFlags:
		ret = DecodeFastMathFlags(raw)
	}
	return ret
}

// DecodeFastMathFlags maps the bitcode fast-math bit set to Flags. Bit 0 is
// the legacy unsafe-algebra bit, which means all of them.
func DecodeFastMathFlags(raw uint64) Flags {
	var ret Flags
	for bit, f := range [...]Flags{FlagFast, FlagNNaN, FlagNInf, FlagNSZ, FlagARCP, FlagContract, FlagAFN, FlagReassoc} {
		if raw&(1<<uint(bit)) != 0 {
			ret |= f
		}
	}
	return ret
}

// CastOperator is a conversion operator.
type CastOperator byte

const (
	CastTrunc CastOperator = iota
	CastZExt
	CastSExt
	CastFPToUI
	CastFPToSI
	CastUIToFP
	CastSIToFP
	CastFPTrunc
	CastFPExt
	CastPtrToInt
	CastIntToPtr
	CastBitcast
	CastAddrSpaceCast
)

var castOperatorNames = [...]string{
	CastTrunc:         "trunc",
	CastZExt:          "zext",
	CastSExt:          "sext",
	CastFPToUI:        "fptoui",
	CastFPToSI:        "fptosi",
	CastUIToFP:        "uitofp",
	CastSIToFP:        "sitofp",
	CastFPTrunc:       "fptrunc",
	CastFPExt:         "fpext",
	CastPtrToInt:      "ptrtoint",
	CastIntToPtr:      "inttoptr",
	CastBitcast:       "bitcast",
	CastAddrSpaceCast: "addrspacecast",
}

func (op CastOperator) String() string {
	if int(op) < len(castOperatorNames) {
		return castOperatorNames[op]
	}
	return fmt.Sprintf("<unknown=%d>", op)
}

// ParseCastOperator maps a bitcode cast opcode to an operator. ok is false
// when there is no such operator.
func ParseCastOperator(opcode uint64) (op CastOperator, ok bool) {
	if opcode >= uint64(len(castOperatorNames)) {
		return 0, false
	}
	return CastOperator(opcode), true
}

// Predicate is an icmp or fcmp condition, numbered as in bitcode.
type Predicate byte

const (
	FCmpFalse Predicate = iota
	FCmpOEQ
	FCmpOGT
	FCmpOGE
	FCmpOLT
	FCmpOLE
	FCmpONE
	FCmpORD
	FCmpUNO
	FCmpUEQ
	FCmpUGT
	FCmpUGE
	FCmpULT
	FCmpULE
	FCmpUNE
	FCmpTrue
)

const (
	ICmpEQ Predicate = iota + 32
	ICmpNE
	ICmpUGT
	ICmpUGE
	ICmpULT
	ICmpULE
	ICmpSGT
	ICmpSGE
	ICmpSLT
	ICmpSLE
)

var predicateNames = map[Predicate]string{
	FCmpFalse: "false", FCmpOEQ: "oeq", FCmpOGT: "ogt", FCmpOGE: "oge",
	FCmpOLT: "olt", FCmpOLE: "ole", FCmpONE: "one", FCmpORD: "ord",
	FCmpUNO: "uno", FCmpUEQ: "ueq", FCmpUGT: "ugt", FCmpUGE: "uge",
	FCmpULT: "ult", FCmpULE: "ule", FCmpUNE: "une", FCmpTrue: "true",
	ICmpEQ: "eq", ICmpNE: "ne", ICmpUGT: "ugt", ICmpUGE: "uge",
	ICmpULT: "ult", ICmpULE: "ule", ICmpSGT: "sgt", ICmpSGE: "sge",
	ICmpSLT: "slt", ICmpSLE: "sle",
}

func (p Predicate) String() string {
	if n, ok := predicateNames[p]; ok {
		return n
	}
	return fmt.Sprintf("<unknown=%d>", p)
}

func (p Predicate) IsFloat() bool { return p <= FCmpTrue }

// ParsePredicate validates a bitcode comparison predicate.
func ParsePredicate(code uint64) (Predicate, bool) {
	p := Predicate(code)
	if code > uint64(ICmpSLE) {
		return 0, false
	}
	_, ok := predicateNames[p]
	return p, ok
}
