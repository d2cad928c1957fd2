// Package bitcodeenc writes LLVM bitstreams for tests. It is the inverse of
// internal/bitstream and does no validation beyond what tests need.
package bitcodeenc

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tetratelabs/bitzero/internal/bitstream"
)

// Writer emits bit fields least significant bit first.
type Writer struct {
	buf       []byte
	bits      uint64
	width     int
	blocks    []openBlock
	blockInfo map[uint32][]*bitstream.Abbrev
	// setBID is the current SETBID target while inside BLOCKINFO.
	setBID uint32
}

type openBlock struct {
	id          uint32
	lengthAt    uint64
	parentWidth int
	abbrevs     []*bitstream.Abbrev
}

// NewWriter returns a writer that has already emitted the bitcode magic.
func NewWriter() *Writer {
	w := NewRawWriter()
	for _, b := range bitstream.Magic {
		w.EmitFixed(uint64(b), 8)
	}
	return w
}

// NewRawWriter returns a writer with no magic, for reader-level tests.
func NewRawWriter() *Writer {
	return &Writer{width: bitstream.InitialAbbrevWidth, blockInfo: map[uint32][]*bitstream.Abbrev{}}
}

// Bytes returns the stream written so far.
func (w *Writer) Bytes() []byte {
	return append([]byte(nil), w.buf...)
}

// BitLen returns the number of bits written so far.
func (w *Writer) BitLen() uint64 { return w.bits }

func (w *Writer) EmitFixed(v uint64, width int) {
	for i := 0; i < width; i++ {
		if w.bits&7 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[w.bits>>3] |= 1 << (w.bits & 7)
		}
		w.bits++
	}
}

func (w *Writer) EmitVBR(v uint64, width int) {
	threshold := uint64(1) << uint(width-1)
	for v >= threshold {
		w.EmitFixed(v&(threshold-1)|threshold, width)
		v >>= uint(width - 1)
	}
	w.EmitFixed(v, width)
}

func (w *Writer) EmitChar6(c byte) {
	i := strings.IndexByte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._", c)
	if i < 0 {
		panic(fmt.Sprintf("%q is not a char6", c))
	}
	w.EmitFixed(uint64(i), 6)
}

func (w *Writer) Align32() {
	for w.bits&31 != 0 {
		w.EmitFixed(0, 1)
	}
}

// EnterSubblock opens block id with the given abbreviation width. The length
// word is backpatched by EndBlock.
func (w *Writer) EnterSubblock(id uint32, width int) {
	w.EmitFixed(1, w.width)
	w.EmitVBR(uint64(id), 8)
	w.EmitVBR(uint64(width), 4)
	w.Align32()
	b := openBlock{id: id, lengthAt: w.bits, parentWidth: w.width}
	b.abbrevs = append(b.abbrevs, w.blockInfo[id]...)
	w.EmitFixed(0, 32)
	w.blocks = append(w.blocks, b)
	w.width = width
}

func (w *Writer) EndBlock() {
	w.EmitFixed(0, w.width)
	w.Align32()
	b := w.blocks[len(w.blocks)-1]
	w.blocks = w.blocks[:len(w.blocks)-1]
	words := (w.bits - b.lengthAt - 32) >> 5
	binary.LittleEndian.PutUint32(w.buf[b.lengthAt>>3:], uint32(words))
	w.width = b.parentWidth
}

func (w *Writer) EmitUnabbrevRecord(code uint32, ops ...uint64) {
	w.EmitFixed(3, w.width)
	w.EmitVBR(uint64(code), 6)
	w.EmitVBR(uint64(len(ops)), 6)
	for _, op := range ops {
		w.EmitVBR(op, 6)
	}
	if len(w.blocks) > 0 && w.blocks[len(w.blocks)-1].id == bitstream.BlockInfoID && code == 1 {
		w.setBID = uint32(ops[0])
	}
}

// DefineAbbrev emits DEFINE_ABBREV and returns the abbreviation id to pass to
// EmitAbbrevRecord. Inside BLOCKINFO the abbreviation is registered for the
// last SETBID target and the returned id is the one it has in that block.
func (w *Writer) DefineAbbrev(ops ...bitstream.AbbrevOp) int {
	w.EmitFixed(2, w.width)
	w.EmitVBR(uint64(len(ops)), 5)
	for _, op := range ops {
		if op.Encoding == bitstream.EncodingLiteral {
			w.EmitFixed(1, 1)
			w.EmitVBR(op.Value, 8)
			continue
		}
		w.EmitFixed(0, 1)
		w.EmitFixed(uint64(op.Encoding), 3)
		switch op.Encoding {
		case bitstream.EncodingFixed, bitstream.EncodingVBR:
			w.EmitVBR(op.Value, 5)
		}
	}

	a := &bitstream.Abbrev{Ops: ops}
	top := &w.blocks[len(w.blocks)-1]
	if top.id == bitstream.BlockInfoID {
		w.blockInfo[w.setBID] = append(w.blockInfo[w.setBID], a)
		return bitstream.FirstApplicationAbbrevID + len(w.blockInfo[w.setBID]) - 1
	}
	top.abbrevs = append(top.abbrevs, a)
	return bitstream.FirstApplicationAbbrevID + len(top.abbrevs) - 1
}

// EmitAbbrevRecord writes a record with abbreviation id. ops excludes the
// record code; literal operands consume an op which must equal the literal.
func (w *Writer) EmitAbbrevRecord(id int, code uint32, ops []uint64, blob []byte) {
	a := w.blocks[len(w.blocks)-1].abbrevs[id-bitstream.FirstApplicationAbbrevID]
	w.EmitFixed(uint64(id), w.width)
	w.emitScalar(a.Ops[0], uint64(code))
	for i := 1; i < len(a.Ops); i++ {
		op := a.Ops[i]
		switch op.Encoding {
		case bitstream.EncodingArray:
			w.EmitVBR(uint64(len(ops)), 6)
			for _, v := range ops {
				w.emitScalar(a.Ops[i+1], v)
			}
			return
		case bitstream.EncodingBlob:
			w.EmitVBR(uint64(len(blob)), 6)
			w.Align32()
			for _, b := range blob {
				w.EmitFixed(uint64(b), 8)
			}
			w.Align32()
			return
		default:
			w.emitScalar(op, ops[0])
			ops = ops[1:]
		}
	}
}

func (w *Writer) emitScalar(op bitstream.AbbrevOp, v uint64) {
	switch op.Encoding {
	case bitstream.EncodingLiteral:
		if v != op.Value {
			panic(fmt.Sprintf("literal operand %d encoded as %d", op.Value, v))
		}
	case bitstream.EncodingFixed:
		w.EmitFixed(v, int(op.Value))
	case bitstream.EncodingVBR:
		w.EmitVBR(v, int(op.Value))
	case bitstream.EncodingChar6:
		w.EmitChar6(byte(v))
	default:
		panic(fmt.Sprintf("%s is not a scalar encoding", op.Encoding))
	}
}

// Wrap prefixes stream with a bitcode wrapper header.
func Wrap(stream []byte) []byte {
	ret := make([]byte, 20, 20+len(stream))
	binary.LittleEndian.PutUint32(ret[0:], bitstream.WrapperMagic)
	binary.LittleEndian.PutUint32(ret[8:], 20)
	binary.LittleEndian.PutUint32(ret[12:], uint32(len(stream)))
	return append(ret, stream...)
}

// EncodeSignRotated is the inverse of bitstream.DecodeSignRotated.
func EncodeSignRotated(v int64) uint64 {
	if v >= 0 {
		return uint64(v) << 1
	}
	if v == -1<<63 {
		return 1
	}
	return uint64(-v)<<1 | 1
}

// Operand constructors for DefineAbbrev.

func Literal(v uint64) bitstream.AbbrevOp {
	return bitstream.AbbrevOp{Encoding: bitstream.EncodingLiteral, Value: v}
}

func Fixed(width int) bitstream.AbbrevOp {
	return bitstream.AbbrevOp{Encoding: bitstream.EncodingFixed, Value: uint64(width)}
}

func VBR(width int) bitstream.AbbrevOp {
	return bitstream.AbbrevOp{Encoding: bitstream.EncodingVBR, Value: uint64(width)}
}

func Array() bitstream.AbbrevOp { return bitstream.AbbrevOp{Encoding: bitstream.EncodingArray} }

func Char6() bitstream.AbbrevOp { return bitstream.AbbrevOp{Encoding: bitstream.EncodingChar6} }

func Blob() bitstream.AbbrevOp { return bitstream.AbbrevOp{Encoding: bitstream.EncodingBlob} }
