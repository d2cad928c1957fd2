package bitcode

import (
	"fmt"

	"github.com/tetratelabs/bitzero/internal/bitstream"
	"github.com/tetratelabs/bitzero/internal/ir"
)

// Value symbol table record codes.
const (
	vstCodeEntry   = 1
	vstCodeBBEntry = 2
	vstCodeFnEntry = 3
)

// symtabParser names values by absolute slot. Inside a function body it also
// names basic blocks. Module tables of version 2 carry only body offsets, as
// names come from the string table.
type symtabParser struct {
	blockState
	d  *decoder
	fn *functionParser
}

func (p *symtabParser) Subblock(uint32) (bitstream.BlockParser, error) { return nil, nil }
func (p *symtabParser) Exit() error                                    { return nil }

func (p *symtabParser) Record(rec *bitstream.Record) error {
	defer p.advance()
	return p.check(p.record(rec))
}

func (p *symtabParser) record(rec *bitstream.Record) error {
	o := &ops{rec: rec}
	id, err := o.next()
	if err != nil {
		return err
	}
	switch rec.Code {
	case vstCodeEntry:
		return p.nameValue(id, o.chars())
	case vstCodeFnEntry:
		if _, err = o.next(); err != nil { // body offset
			return err
		}
		return p.nameValue(id, o.chars())
	case vstCodeBBEntry:
		if p.fn == nil {
			return fmt.Errorf("%w: block name outside a function", ErrUnknownRecord)
		}
		if id >= uint64(len(p.fn.f.Blocks)) {
			return fmt.Errorf("%w: block %d of %d", ErrOperandOutOfRange, id, len(p.fn.f.Blocks))
		}
		p.fn.f.Blocks[id].Name = o.chars()
		return nil
	}
	return fmt.Errorf("%w: symbol table record <%d>", ErrUnknownRecord, rec.Code)
}

func (p *symtabParser) nameValue(id uint64, name string) error {
	if name == "" {
		return nil
	}
	v, ok := p.d.values.At(uint32(id))
	if !ok {
		return fmt.Errorf("%w: value %d (have %d)", ErrOperandOutOfRange, id, p.d.values.Len())
	}
	switch v := v.(type) {
	case *ir.Global:
		v.Name = name
	case *ir.Function:
		v.Name = name
	case *ir.Alias:
		v.Name = name
	case *ir.Param:
		v.Name = name
	case interface{ SetName(string) }:
		v.SetName(name)
	}
	return nil
}
