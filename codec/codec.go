// Package codec implements the canonical binary encoding used to derive
// record keys, transaction ids, and signable digests throughout the chain.
// Encoding is deterministic: the same value always produces the same bytes,
// which is required for hashing and for keying ordered store records.
package codec

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedEncoding is returned when a Reader runs out of input before a
// value is fully decoded.
var ErrMalformedEncoding = errors.New("codec: malformed encoding")

// Writer accumulates canonically encoded fields into a single byte slice.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with cap preallocated.
func NewWriter(cap int) *Writer {
	return &Writer{buf: make([]byte, 0, cap)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutUvarint writes v as an unsigned LEB128 varint, used for lengths.
func (w *Writer) PutUvarint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	w.buf = append(w.buf, b[:n]...)
}

// PutBytes writes a length-prefixed byte string.
func (w *Writer) PutBytes(v []byte) {
	w.PutUvarint(uint64(len(v)))
	w.buf = append(w.buf, v...)
}

// PutString writes a length-prefixed UTF-8 string.
func (w *Writer) PutString(v string) { w.PutBytes([]byte(v)) }

// PutRaw appends bytes with no length prefix; used for fixed-size fields
// such as digests and public keys.
func (w *Writer) PutRaw(v []byte) { w.buf = append(w.buf, v...) }

// Reader consumes canonically encoded fields from a byte slice.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) remaining() int { return len(r.buf) - r.pos }

func (r *Reader) Uint8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, ErrMalformedEncoding
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, ErrMalformedEncoding
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, ErrMalformedEncoding
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrMalformedEncoding
	}
	r.pos += n
	return v, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if uint64(r.remaining()) < n {
		return nil, ErrMalformedEncoding
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Raw reads exactly n bytes with no length prefix.
func (r *Reader) Raw(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, ErrMalformedEncoding
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+n])
	r.pos += n
	return v, nil
}

// Done reports whether all input has been consumed.
func (r *Reader) Done() bool { return r.remaining() == 0 }

// Encoder is implemented by any type with a canonical byte representation.
type Encoder interface {
	EncodeCanonical(w *Writer)
}

// Encode runs v's canonical encoding into a fresh byte slice.
func Encode(v Encoder) []byte {
	w := NewWriter(64)
	v.EncodeCanonical(w)
	return w.Bytes()
}
