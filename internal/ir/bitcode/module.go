package bitcode

import (
	"fmt"

	"github.com/tetratelabs/bitzero/internal/bitstream"
	"github.com/tetratelabs/bitzero/internal/ir"
)

// Module block record codes.
const (
	moduleCodeVersion        = 1
	moduleCodeTriple         = 2
	moduleCodeDataLayout     = 3
	moduleCodeASM            = 4
	moduleCodeSectionName    = 5
	moduleCodeDepLib         = 6
	moduleCodeGlobalVar      = 7
	moduleCodeFunction       = 8
	moduleCodeAliasOld       = 9
	moduleCodeGCName         = 11
	moduleCodeComdat         = 12
	moduleCodeVSTOffset      = 13
	moduleCodeAlias          = 14
	moduleCodeMetadataValues = 15
	moduleCodeSourceFilename = 16
	moduleCodeHash           = 17
)

const (
	globalVarFlagConstant     = 1
	globalVarFlagExplicitType = 2
)

type moduleParser struct {
	blockState
	d *decoder
}

func (p *moduleParser) Subblock(id uint32) (bitstream.BlockParser, error) {
	switch id {
	case BlockType:
		return &typeParser{blockState: blockState{id: id}, d: p.d}, nil
	case BlockConstants:
		return newConstantsParser(p.d), nil
	case BlockValueSymtab:
		return &symtabParser{blockState: blockState{id: id}, d: p.d}, nil
	case BlockFunction:
		if p.d.nextBody >= len(p.d.bodies) {
			return nil, p.check(fmt.Errorf("%w: more function blocks than definitions (%d)", ErrMissingBody, len(p.d.bodies)))
		}
		f := p.d.bodies[p.d.nextBody]
		p.d.nextBody++
		return newFunctionParser(p.d, f), nil
	}
	// Attributes, metadata, use lists, sync scopes and operand bundle tags
	// carry nothing the interpreter needs.
	return nil, nil
}

func (p *moduleParser) Record(rec *bitstream.Record) error {
	defer p.advance()
	return p.check(p.record(rec))
}

func (p *moduleParser) record(rec *bitstream.Record) error {
	o := &ops{rec: rec}
	switch rec.Code {
	case moduleCodeVersion:
		v, err := o.next()
		if err != nil {
			return err
		}
		p.d.m.Version = v
		p.d.relativeIDs = v >= 1
		p.d.strtabNames = v >= 2
	case moduleCodeTriple:
		p.d.m.Triple = o.chars()
	case moduleCodeDataLayout:
		p.d.m.DataLayout = o.chars()
	case moduleCodeSourceFilename:
		p.d.m.SourceFilename = o.chars()
	case moduleCodeGlobalVar:
		return p.globalVar(o)
	case moduleCodeFunction:
		return p.function(o)
	case moduleCodeAlias, moduleCodeAliasOld:
		return p.alias(o, rec.Code == moduleCodeAlias)
	case moduleCodeASM, moduleCodeSectionName, moduleCodeDepLib, moduleCodeGCName, moduleCodeComdat,
		moduleCodeVSTOffset, moduleCodeMetadataValues, moduleCodeHash:
	default:
		return fmt.Errorf("%w: module record <%d>", ErrUnknownRecord, rec.Code)
	}
	return nil
}

// name reads the (offset, size) string table reference of version 2 records.
// set is applied once the string table is read.
func (p *moduleParser) name(o *ops, set func(string)) error {
	if !p.d.strtabNames {
		return nil
	}
	offset, err := o.next()
	if err != nil {
		return err
	}
	size, err := o.next()
	if err != nil {
		return err
	}
	p.d.names = append(p.d.names, pendingName{offset: offset, size: size, set: set})
	return nil
}

// globalVar decodes [type, flags, initid, linkage, alignment, ...].
func (p *moduleParser) globalVar(o *ops) error {
	g := &ir.Global{Index: len(p.d.m.Globals)}
	if err := p.name(o, func(s string) { g.Name = s }); err != nil {
		return err
	}
	tid, err := o.next()
	if err != nil {
		return err
	}
	typ, err := p.d.typeAt(tid)
	if err != nil {
		return err
	}
	flags, err := o.next()
	if err != nil {
		return err
	}
	g.Constant = flags&globalVarFlagConstant != 0
	if flags&globalVarFlagExplicitType != 0 {
		g.ValueType = typ
	} else if typ.IsPointer() && typ.Elem != nil {
		g.ValueType = typ.Elem
	} else {
		return fmt.Errorf("%w: global of type %s", ErrInvalidType, typ)
	}

	initID, err := o.next()
	if err != nil {
		return err
	}
	linkage, err := o.next()
	if err != nil {
		return err
	}
	g.Linkage = ir.Linkage(linkage)
	if o.remaining() > 0 {
		align, _ := o.next()
		g.Align = decodeAlign(align)
	}

	p.d.values.Define(g)
	p.d.m.Globals = append(p.d.m.Globals, g)
	if initID != 0 {
		// Initializers are constants, which are decoded after all globals.
		return p.d.values.Ref(uint32(initID-1), g.ValueType, &g.Init)
	}
	return nil
}

// function decodes [type, callingconv, isproto, linkage, paramattr, ...].
func (p *moduleParser) function(o *ops) error {
	var f *ir.Function
	if err := p.name(o, func(s string) { f.Name = s }); err != nil {
		return err
	}
	tid, err := o.next()
	if err != nil {
		return err
	}
	sig, err := p.d.typeAt(tid)
	if err != nil {
		return err
	}
	if sig.IsPointer() && sig.Elem != nil {
		sig = sig.Elem
	}
	if sig.Kind != ir.TypeFunction {
		return fmt.Errorf("%w: function of type %s", ErrInvalidType, sig)
	}
	cc, err := o.next()
	if err != nil {
		return err
	}
	isProto, err := o.next()
	if err != nil {
		return err
	}
	linkage, err := o.next()
	if err != nil {
		return err
	}

	f = ir.NewFunction("", sig)
	f.CallingConv = cc
	f.Declaration = isProto != 0
	f.Linkage = ir.Linkage(linkage)
	f.Index = len(p.d.m.Functions)
	if !f.Declaration {
		p.d.bodies = append(p.d.bodies, f)
	}
	p.d.values.Define(f)
	p.d.m.Functions = append(p.d.m.Functions, f)
	return nil
}

// alias decodes [alias type, addrspace, aliasee, linkage, ...], or the old
// form without address space.
func (p *moduleParser) alias(o *ops, hasAddrSpace bool) error {
	a := &ir.Alias{}
	if err := p.name(o, func(s string) { a.Name = s }); err != nil {
		return err
	}
	tid, err := o.next()
	if err != nil {
		return err
	}
	if a.Typ, err = p.d.typeAt(tid); err != nil {
		return err
	}
	if hasAddrSpace {
		if _, err = o.next(); err != nil {
			return err
		}
	}
	aliasee, err := o.next()
	if err != nil {
		return err
	}
	p.d.values.Define(a)
	p.d.m.Aliases = append(p.d.m.Aliases, a)
	return p.d.values.Ref(uint32(aliasee), ir.Ptr, &a.Aliasee)
}

func (p *moduleParser) Exit() error {
	if slots := p.d.values.Unresolved(); len(slots) > 0 {
		return p.check(fmt.Errorf("%w: value slots %v", ErrUnresolved, slots))
	}
	if p.d.nextBody != len(p.d.bodies) {
		return p.check(fmt.Errorf("%w: %d definitions, %d bodies", ErrMissingBody, len(p.d.bodies), p.d.nextBody))
	}
	return nil
}
