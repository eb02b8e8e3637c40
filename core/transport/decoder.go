package transport

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/internal/u24"
)

const (
	lengthFieldSize = u24.Size
	minBuffSize     = 8 * 1024
	maxBuffSize     = u24.MaxUint24 + lengthFieldSize
)

// Decoder errors.
var (
	ErrInvalidFrameLength = errors.New("invalid frame length")
	ErrTruncatedFrame     = errors.New("stream ended inside a frame")
)

// FrameDecoder splits a byte stream into frames, each prefixed with its u24 length.
type FrameDecoder struct {
	scanner *bufio.Scanner
}

// NewFrameDecoder creates a decoder reading from r.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Split(splitFrame)
	scanner.Buffer(make([]byte, 0, minBuffSize), maxBuffSize)
	return &FrameDecoder{
		scanner: scanner,
	}
}

// Read returns the body of the next frame, without its length prefix.
// The returned slice is only valid until the next call.
// A clean end of stream gives io.EOF, an end in the middle of a frame gives ErrTruncatedFrame.
func (p *FrameDecoder) Read() ([]byte, error) {
	if p.scanner.Scan() {
		return p.scanner.Bytes(), nil
	}
	err := p.scanner.Err()
	if err == nil || isClosedErr(err) {
		return nil, io.EOF
	}
	return nil, err
}

func splitFrame(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) < lengthFieldSize {
		if atEOF && len(data) > 0 {
			err = ErrTruncatedFrame
		}
		return
	}
	n := u24.ReadInt(data)
	if n < 1 {
		err = ErrInvalidFrameLength
		return
	}
	total := lengthFieldSize + n
	if total > len(data) {
		if atEOF {
			err = ErrTruncatedFrame
		}
		return
	}
	return total, data[lengthFieldSize:total], nil
}
