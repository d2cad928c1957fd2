// Package bitstream decodes the LLVM bitstream container: nested blocks of
// bit-packed records, optionally compressed with per-block abbreviations.
//
// See https://llvm.org/docs/BitCodeFormat.html
package bitstream

// Reader reads bit fields from a byte slice, least significant bit first.
type Reader struct {
	data []byte
	pos  uint64
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current position in bits.
func (r *Reader) Offset() uint64 { return r.pos }

// Size returns the length of the stream in bits.
func (r *Reader) Size() uint64 { return uint64(len(r.data)) << 3 }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() uint64 {
	if r.pos >= r.Size() {
		return 0
	}
	return r.Size() - r.pos
}

func (r *Reader) AtEnd() bool { return r.pos >= r.Size() }

// SetOffset moves the reader to an absolute bit position.
func (r *Reader) SetOffset(bit uint64) error {
	if bit > r.Size() {
		return ErrTruncated
	}
	r.pos = bit
	return nil
}

// ReadFixed reads an unsigned field of width bits. width must be in [0, 64].
func (r *Reader) ReadFixed(width int) (uint64, error) {
	if width < 0 || width > 64 {
		return 0, ErrInvalidWidth
	}
	if uint64(width) > r.Remaining() {
		return 0, ErrTruncated
	}
	var ret uint64
	for read := 0; read < width; {
		b := r.data[r.pos>>3] >> (r.pos & 7)
		n := 8 - int(r.pos&7)
		if rest := width - read; n > rest {
			n = rest
		}
		ret |= (uint64(b) & (1<<uint(n) - 1)) << uint(read)
		read += n
		r.pos += uint64(n)
	}
	return ret, nil
}

// ReadVBR reads a variable bit rate field made of width-bit chunks. The high
// bit of each chunk says whether another chunk follows.
func (r *Reader) ReadVBR(width int) (uint64, error) {
	if width < 2 || width > 64 {
		return 0, ErrInvalidWidth
	}
	dmask := uint64(1) << uint(width-1)
	var ret uint64
	for shift := 0; ; shift += width - 1 {
		datum, err := r.ReadFixed(width)
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, ErrVBROverflow
		}
		ret |= (datum & (dmask - 1)) << uint(shift)
		if datum&dmask == 0 {
			return ret, nil
		}
	}
}

const char6Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._"

// ReadChar6 reads a 6-bit field and maps it to [a-zA-Z0-9._].
func (r *Reader) ReadChar6() (byte, error) {
	v, err := r.ReadFixed(6)
	if err != nil {
		return 0, err
	}
	return char6Alphabet[v], nil
}

// AlignWord32 skips to the next multiple of 32 bits. The stream may end
// exactly there.
func (r *Reader) AlignWord32() error {
	return r.SetOffset((r.pos + 31) &^ 31)
}

// ReadBytes returns the next n bytes. The reader must be byte aligned. The
// returned slice aliases the underlying data.
func (r *Reader) ReadBytes(n uint64) ([]byte, error) {
	if r.pos&7 != 0 {
		return nil, ErrInvalidWidth
	}
	if n > r.Remaining()>>3 {
		return nil, ErrTruncated
	}
	start := r.pos >> 3
	r.pos += n << 3
	return r.data[start : start+n], nil
}

// DecodeSignRotated undoes the signed VBR encoding where the sign is kept in
// the low bit and the magnitude in the rest.
func DecodeSignRotated(v uint64) int64 {
	if v&1 == 0 {
		return int64(v >> 1)
	}
	if v == 1 {
		// "-0" encodes the minimum value.
		return -1 << 63
	}
	return -int64(v >> 1)
}
