package bitstream

// Block is a decoded block with its records and nested blocks in stream
// order.
type Block struct {
	ID      uint32
	Entries []Entry
}

// Entry is exactly one of a record or a nested block.
type Entry struct {
	Record *Record
	Block  *Block
}

// Records returns the records of b, skipping nested blocks.
func (b *Block) Records() (ret []*Record) {
	for _, e := range b.Entries {
		if e.Record != nil {
			ret = append(ret, e.Record)
		}
	}
	return
}

// Blocks returns the nested blocks of b.
func (b *Block) Blocks() (ret []*Block) {
	for _, e := range b.Entries {
		if e.Block != nil {
			ret = append(ret, e.Block)
		}
	}
	return
}

// Decode returns the generic block tree of data: every top-level block with
// all its records and nested blocks. BLOCKINFO is consumed by the decoder and
// does not appear.
func Decode(data []byte) ([]*Block, error) {
	root := &treeBuilder{block: &Block{ID: TopLevel}}
	if err := Scan(data, root); err != nil {
		return nil, err
	}
	return root.block.Blocks(), nil
}

type treeBuilder struct {
	block *Block
}

func (t *treeBuilder) Record(rec *Record) error {
	t.block.Entries = append(t.block.Entries, Entry{Record: rec.Clone()})
	return nil
}

func (t *treeBuilder) Subblock(blockID uint32) (BlockParser, error) {
	child := &Block{ID: blockID}
	t.block.Entries = append(t.block.Entries, Entry{Block: child})
	return &treeBuilder{block: child}, nil
}

func (t *treeBuilder) Exit() error { return nil }
