package u24

import (
	"io"

	"github.com/pkg/errors"
)

// Size is the number of bytes of an encoded Uint24.
const Size = 3

// MaxUint24 is the max value of Uint24.
const MaxUint24 = 1<<24 - 1

var (
	errExceedMaxUint24 = errors.Errorf("uint24 exceed max value: %d", MaxUint24)
	errNegativeNumber  = errors.New("negative number is illegal")
)

// IsExceedMaximumUint24Error returns true if exceed maximum Uint24. (16777215)
func IsExceedMaximumUint24Error(err error) bool {
	return errors.Cause(err) == errExceedMaxUint24
}

// IsNegativeUint24Error returns true if number is negative.
func IsNegativeUint24Error(err error) bool {
	return errors.Cause(err) == errNegativeNumber
}

// Uint24 is a 3 bytes big-endian unsigned integer used as a frame length prefix.
type Uint24 [Size]byte

// Bytes returns bytes encoded.
func (p Uint24) Bytes() []byte {
	return p[:]
}

// WriteTo encode and write bytes to a writer.
func (p Uint24) WriteTo(w io.Writer) (int64, error) {
	wrote, err := w.Write(p[:])
	return int64(wrote), err
}

// AsInt converts to int.
func (p Uint24) AsInt() int {
	return int(p[0])<<16 | int(p[1])<<8 | int(p[2])
}

// NewUint24 returns a new uint24.
func NewUint24(v int) (n Uint24, err error) {
	if v < 0 {
		err = errNegativeNumber
		return
	}
	if v > MaxUint24 {
		err = errExceedMaxUint24
		return
	}
	n[0] = byte(v >> 16)
	n[1] = byte(v >> 8)
	n[2] = byte(v)
	return
}

// MustNewUint24 returns a new uint24 and panics on invalid input.
func MustNewUint24(n int) Uint24 {
	v, err := NewUint24(n)
	if err != nil {
		panic(err)
	}
	return v
}

// ReadInt reads an int from the first three bytes of bs.
func ReadInt(bs []byte) int {
	_ = bs[2]
	return int(bs[0])<<16 | int(bs[1])<<8 | int(bs[2])
}
