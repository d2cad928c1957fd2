package bitstream

// Control codes reserved at the bottom of every abbreviation id space.
const (
	codeEndBlock       = 0
	codeEnterSubblock  = 1
	codeDefineAbbrev   = 2
	codeUnabbrevRecord = 3
	// FirstApplicationAbbrevID is the id of the first abbreviation a block
	// defines.
	FirstApplicationAbbrevID = 4
)

// BlockInfoID is the id of the BLOCKINFO block, which defines abbreviations
// on behalf of other block ids.
const BlockInfoID = 0

const (
	blockInfoCodeSetBID = 1
)

// InitialAbbrevWidth is the abbreviation id width outside of any block.
const InitialAbbrevWidth = 2

// BlockParser receives the contents of one block.
type BlockParser interface {
	// Record is called once per record in stream order. rec is only valid
	// until Record returns.
	Record(rec *Record) error

	// Subblock is called when a nested block is entered. Returning nil skips
	// the block using its length word.
	Subblock(blockID uint32) (BlockParser, error)

	// Exit is called when the block ends. For the root parser it is called
	// when the stream ends.
	Exit() error
}

// Cursor is the position of a decode: the innermost block, its abbreviation
// width and the enclosing blocks. It is only mutated on block entry and exit.
type Cursor struct {
	blockID     uint32
	abbrevWidth int
	stack       []scope
}

type scope struct {
	blockID     uint32
	abbrevWidth int
	abbrevs     []*Abbrev
	parser      BlockParser
}

func newCursor() *Cursor {
	return &Cursor{blockID: TopLevel, abbrevWidth: InitialAbbrevWidth}
}

// BlockID returns the innermost open block, or TopLevel.
func (c *Cursor) BlockID() uint32 { return c.blockID }

// AbbrevWidth returns the width of abbreviation ids in the current block.
func (c *Cursor) AbbrevWidth() int { return c.abbrevWidth }

// Depth returns the number of open blocks.
func (c *Cursor) Depth() int { return len(c.stack) }

// Enclosing returns the ids of the open blocks, outermost first.
func (c *Cursor) Enclosing() []uint32 {
	ret := make([]uint32, len(c.stack))
	for i, s := range c.stack {
		ret[i] = s.blockID
	}
	return ret
}

func (c *Cursor) push(s scope) {
	c.stack = append(c.stack, s)
	c.blockID, c.abbrevWidth = s.blockID, s.abbrevWidth
}

func (c *Cursor) pop() scope {
	s := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	if len(c.stack) == 0 {
		c.blockID, c.abbrevWidth = TopLevel, InitialAbbrevWidth
	} else {
		top := c.stack[len(c.stack)-1]
		c.blockID, c.abbrevWidth = top.blockID, top.abbrevWidth
	}
	return s
}

func (c *Cursor) top() *scope {
	return &c.stack[len(c.stack)-1]
}

// Scan decodes data, which must start with the bitcode magic or the wrapper
// header, and streams every top-level block into root.Subblock.
func Scan(data []byte, root BlockParser) error {
	body, err := Unwrap(data)
	if err != nil {
		return err
	}
	d := &decoder{r: NewReader(body), cursor: newCursor(), blockInfo: map[uint32][]*Abbrev{}}
	if err = d.r.SetOffset(uint64(len(Magic)) << 3); err != nil {
		return d.fail(err)
	}
	return d.run(root)
}

// decoder holds the state of one Scan. rec.Ops is the operand staging buffer:
// it grows to the widest record seen and is never shrunk.
type decoder struct {
	r         *Reader
	cursor    *Cursor
	blockInfo map[uint32][]*Abbrev
	rec       Record
}

func (d *decoder) fail(err error) error {
	return &FormatError{Offset: d.r.Offset(), BlockID: d.cursor.BlockID(), Err: err}
}

func (d *decoder) run(root BlockParser) error {
	for {
		if d.cursor.Depth() == 0 && d.r.AtEnd() {
			return root.Exit()
		}

		code, err := d.r.ReadFixed(d.cursor.AbbrevWidth())
		if err != nil {
			return d.fail(err)
		}

		if d.cursor.Depth() == 0 {
			switch code {
			case codeEnterSubblock:
				if err = d.enterSubblock(root); err != nil {
					return err
				}
			case codeEndBlock:
				return d.fail(ErrUnexpectedEndBlock)
			default:
				return d.fail(ErrUnexpectedControlCode)
			}
			continue
		}

		switch code {
		case codeEndBlock:
			if err = d.r.AlignWord32(); err != nil {
				return d.fail(err)
			}
			s := d.cursor.pop()
			if err = s.parser.Exit(); err != nil {
				return err
			}
		case codeEnterSubblock:
			if err = d.enterSubblock(d.cursor.top().parser); err != nil {
				return err
			}
		case codeDefineAbbrev:
			a, err := readAbbrev(d.r)
			if err != nil {
				return d.fail(err)
			}
			top := d.cursor.top()
			top.abbrevs = append(top.abbrevs, a)
		case codeUnabbrevRecord:
			if err = d.readUnabbrevRecord(); err != nil {
				return d.fail(err)
			}
			if err = d.cursor.top().parser.Record(&d.rec); err != nil {
				return err
			}
		default:
			if err = d.readAbbrevRecord(int(code - FirstApplicationAbbrevID)); err != nil {
				return d.fail(err)
			}
			if err = d.cursor.top().parser.Record(&d.rec); err != nil {
				return err
			}
		}
	}
}

// enterSubblock reads the block header and either pushes the block or skips
// it when the parent has no parser for it.
func (d *decoder) enterSubblock(parent BlockParser) error {
	id, err := d.r.ReadVBR(8)
	if err != nil {
		return d.fail(err)
	}
	width, err := d.r.ReadVBR(4)
	if err != nil {
		return d.fail(err)
	}
	if width < 2 || width > 32 {
		return d.fail(ErrInvalidWidth)
	}
	if err = d.r.AlignWord32(); err != nil {
		return d.fail(err)
	}
	words, err := d.r.ReadFixed(32)
	if err != nil {
		return d.fail(err)
	}
	end := d.r.Offset() + words<<5
	if end > d.r.Size() {
		return d.fail(ErrTruncated)
	}

	blockID := uint32(id)
	if blockID == BlockInfoID {
		return d.readBlockInfo(int(width))
	}

	child, err := parent.Subblock(blockID)
	if err != nil {
		return err
	}
	if child == nil {
		return d.r.SetOffset(end)
	}
	d.cursor.push(scope{
		blockID:     blockID,
		abbrevWidth: int(width),
		abbrevs:     append([]*Abbrev(nil), d.blockInfo[blockID]...),
		parser:      child,
	})
	return nil
}

// readBlockInfo consumes a BLOCKINFO block. Abbreviations defined after a
// SETBID record are registered for the block id it names.
func (d *decoder) readBlockInfo(width int) error {
	d.cursor.push(scope{blockID: BlockInfoID, abbrevWidth: width})
	var target *uint32
	for {
		code, err := d.r.ReadFixed(width)
		if err != nil {
			return d.fail(err)
		}
		switch code {
		case codeEndBlock:
			if err = d.r.AlignWord32(); err != nil {
				return d.fail(err)
			}
			d.cursor.pop()
			return nil
		case codeEnterSubblock:
			return d.fail(ErrUnexpectedControlCode)
		case codeDefineAbbrev:
			if target == nil {
				return d.fail(ErrInvalidAbbreviationEncoding)
			}
			a, err := readAbbrev(d.r)
			if err != nil {
				return d.fail(err)
			}
			d.blockInfo[*target] = append(d.blockInfo[*target], a)
		case codeUnabbrevRecord:
			if err = d.readUnabbrevRecord(); err != nil {
				return d.fail(err)
			}
			if d.rec.Code == blockInfoCodeSetBID && len(d.rec.Ops) > 0 {
				id := uint32(d.rec.Ops[0])
				target = &id
			}
			// BLOCKNAME and SETRECORDNAME only matter to dump tools.
		default:
			return d.fail(ErrUnknownAbbreviation)
		}
	}
}

func (d *decoder) readUnabbrevRecord() error {
	code, err := d.r.ReadVBR(6)
	if err != nil {
		return err
	}
	n, err := d.r.ReadVBR(6)
	if err != nil {
		return err
	}
	if n > d.r.Remaining()/6 {
		return ErrTruncated
	}
	d.rec.Code, d.rec.Ops, d.rec.Blob, d.rec.AbbrevID = uint32(code), d.rec.Ops[:0], nil, UnabbreviatedID
	for i := uint64(0); i < n; i++ {
		v, err := d.r.ReadVBR(6)
		if err != nil {
			return err
		}
		d.rec.Ops = append(d.rec.Ops, v)
	}
	return nil
}

func (d *decoder) readAbbrevRecord(id int) error {
	abbrevs := d.cursor.top().abbrevs
	if id < 0 || id >= len(abbrevs) {
		return ErrUnknownAbbreviation
	}
	d.rec.Ops, d.rec.Blob, d.rec.AbbrevID = d.rec.Ops[:0], nil, id
	return abbrevs[id].readRecord(d.r, &d.rec)
}
