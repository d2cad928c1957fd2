// Package bitcode builds an ir.Module from an LLVM bitcode stream.
//
// See https://llvm.org/docs/BitCodeFormat.html
package bitcode

import (
	"errors"
	"fmt"

	"github.com/tetratelabs/bitzero/internal/bitstream"
	"github.com/tetratelabs/bitzero/internal/ir"
)

// Block ids.
const (
	BlockModule             = 8
	BlockParamAttr          = 9
	BlockParamAttrGroup     = 10
	BlockConstants          = 11
	BlockFunction           = 12
	BlockIdentification     = 13
	BlockValueSymtab        = 14
	BlockMetadata           = 15
	BlockMetadataAttachment = 16
	BlockType               = 17
	BlockUselist            = 18
	BlockModuleStrtab       = 19
	BlockOperandBundleTags  = 21
	BlockMetadataKind       = 22
	BlockStrtab             = 23
	BlockSymtab             = 25
	BlockSyncScopeNames     = 26
)

var blockNames = map[uint32]string{
	BlockModule:             "MODULE_BLOCK",
	BlockParamAttr:          "PARAMATTR_BLOCK",
	BlockParamAttrGroup:     "PARAMATTR_GROUP_BLOCK",
	BlockConstants:          "CONSTANTS_BLOCK",
	BlockFunction:           "FUNCTION_BLOCK",
	BlockIdentification:     "IDENTIFICATION_BLOCK",
	BlockValueSymtab:        "VALUE_SYMTAB_BLOCK",
	BlockMetadata:           "METADATA_BLOCK",
	BlockMetadataAttachment: "METADATA_ATTACHMENT",
	BlockType:               "TYPE_BLOCK",
	BlockUselist:            "USELIST_BLOCK",
	BlockModuleStrtab:       "MODULE_STRTAB_BLOCK",
	BlockOperandBundleTags:  "OPERAND_BUNDLE_TAGS_BLOCK",
	BlockMetadataKind:       "METADATA_KIND_BLOCK",
	BlockStrtab:             "STRTAB_BLOCK",
	BlockSymtab:             "SYMTAB_BLOCK",
	BlockSyncScopeNames:     "SYNC_SCOPE_NAMES_BLOCK",
}

// BlockName returns the name llvm-bcanalyzer uses for a block id, or
// "BLOCK<id>" for ids outside the bitcode vocabulary.
func BlockName(id uint32) string {
	if name, ok := blockNames[id]; ok {
		return name
	}
	return fmt.Sprintf("BLOCK%d", id)
}

var (
	ErrOperandOutOfRange = errors.New("operand index out of range")
	ErrUnknownRecord     = errors.New("unknown record code for block")
	ErrUnresolved        = errors.New("unresolved forward reference")
	ErrMissingModule     = errors.New("no module block")
	ErrMissingBody       = errors.New("function body count mismatch")
	ErrInvalidType       = errors.New("invalid type")
)

// ResolutionError is returned when a record cannot be turned into IR.
type ResolutionError struct {
	BlockID uint32
	// RecordIndex is the position of the record in its block. Problems found
	// when the block ends use the number of records in the block.
	RecordIndex int
	Err         error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("record %d of block %d: %v", e.RecordIndex, e.BlockID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DecodeModule decodes data, a raw or wrapped bitcode file, into a module.
func DecodeModule(data []byte) (*ir.Module, error) {
	d := &decoder{m: &ir.Module{}, values: ir.NewSymbolTable()}
	if err := bitstream.Scan(data, &rootParser{d: d}); err != nil {
		return nil, err
	}
	return d.m, nil
}

// decoder is the state shared by the block parsers of one DecodeModule.
type decoder struct {
	m         *ir.Module
	sawModule bool
	// relativeIDs is set from module version 1: instruction operands are
	// numbered backwards from the instruction.
	relativeIDs bool
	// strtabNames is set from module version 2: global value names are
	// (offset, size) slices of the string table.
	strtabNames bool

	types  []*ir.Type
	values *ir.SymbolTable

	names  []pendingName
	strtab []byte

	bodies   []*ir.Function
	nextBody int
}

type pendingName struct {
	offset, size uint64
	set          func(string)
}

func (d *decoder) typeAt(id uint64) (*ir.Type, error) {
	if id >= uint64(len(d.types)) {
		return nil, fmt.Errorf("%w: type %d (have %d)", ErrOperandOutOfRange, id, len(d.types))
	}
	return d.types[id], nil
}

// blockState numbers the records of a block for error reports.
type blockState struct {
	id    uint32
	index int
}

func (b *blockState) check(err error) error {
	if err == nil {
		return nil
	}
	var re *ResolutionError
	if errors.As(err, &re) {
		return err
	}
	return &ResolutionError{BlockID: b.id, RecordIndex: b.index, Err: err}
}

func (b *blockState) advance() { b.index++ }

// ops reads record operands in order.
type ops struct {
	rec *bitstream.Record
	i   int
}

func (o *ops) next() (uint64, error) {
	if o.i >= len(o.rec.Ops) {
		return 0, fmt.Errorf("%w: record <%d> operand %d of %d", ErrOperandOutOfRange, o.rec.Code, o.i, len(o.rec.Ops))
	}
	v := o.rec.Ops[o.i]
	o.i++
	return v, nil
}

func (o *ops) remaining() int { return len(o.rec.Ops) - o.i }

func (o *ops) rest() []uint64 {
	ret := append([]uint64(nil), o.rec.Ops[o.i:]...)
	o.i = len(o.rec.Ops)
	return ret
}

// chars decodes all remaining operands as a string.
func (o *ops) chars() string {
	s, _ := o.rec.Chars(o.i, len(o.rec.Ops))
	o.i = len(o.rec.Ops)
	return s
}

// decodeAlign maps the log2+1 alignment encoding to bytes.
func decodeAlign(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	return 1 << (v - 1)
}

type rootParser struct {
	d *decoder
}

func (p *rootParser) Record(*bitstream.Record) error { return nil }

func (p *rootParser) Subblock(id uint32) (bitstream.BlockParser, error) {
	switch id {
	case BlockIdentification:
		return &identificationParser{blockState: blockState{id: id}, d: p.d}, nil
	case BlockModule:
		p.d.sawModule = true
		return &moduleParser{blockState: blockState{id: id}, d: p.d}, nil
	case BlockStrtab:
		return &strtabParser{blockState: blockState{id: id}, d: p.d}, nil
	}
	return nil, nil
}

// Exit names global values from the string table, which follows the module
// block.
func (p *rootParser) Exit() error {
	if !p.d.sawModule {
		return ErrMissingModule
	}
	for i, n := range p.d.names {
		if n.offset+n.size > uint64(len(p.d.strtab)) {
			return &ResolutionError{
				BlockID:     BlockStrtab,
				RecordIndex: i,
				Err:         fmt.Errorf("%w: name [%d, %d) outside string table of %d bytes", ErrOperandOutOfRange, n.offset, n.offset+n.size, len(p.d.strtab)),
			}
		}
		n.set(string(p.d.strtab[n.offset : n.offset+n.size]))
	}
	return nil
}

const (
	identificationCodeString = 1
	identificationCodeEpoch  = 2
)

type identificationParser struct {
	blockState
	d *decoder
}

func (p *identificationParser) Record(rec *bitstream.Record) error {
	defer p.advance()
	if rec.Code == identificationCodeString {
		o := &ops{rec: rec}
		p.d.m.Producer = o.chars()
	}
	return nil
}

func (p *identificationParser) Subblock(uint32) (bitstream.BlockParser, error) { return nil, nil }
func (p *identificationParser) Exit() error                                    { return nil }

const strtabCodeBlob = 1

type strtabParser struct {
	blockState
	d *decoder
}

func (p *strtabParser) Record(rec *bitstream.Record) error {
	defer p.advance()
	if rec.Code == strtabCodeBlob {
		p.d.strtab = append([]byte(nil), rec.Blob...)
	}
	return nil
}

func (p *strtabParser) Subblock(uint32) (bitstream.BlockParser, error) { return nil, nil }
func (p *strtabParser) Exit() error                                    { return nil }
