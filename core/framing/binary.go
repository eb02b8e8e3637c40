package framing

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/valyala/bytebufferpool"
)

const (
	flagAbsent  byte = 0x00
	flagPresent byte = 0x01

	kindSuccess      byte = 0x01
	kindError        byte = 0x02
	kindNotification byte = 0xFF

	idLen    = 8
	opLenLen = 2
)

var errSelectorTooLong = errors.Errorf("selector is longer than %d bytes", math.MaxUint16)

// binaryCodec implements the compact tagged profile.
//
//	request:  [presence(id) | id? | presence(op) | op? | payload]
//	response: [presence(id) | id? | kind | presence(op) | op? | payload]
//
// ids are big-endian uint64, selectors carry a big-endian uint16 length.
type binaryCodec struct {
	role core.Role
}

func (binaryCodec) Encoding() core.Encoding {
	return core.EncodingBinary
}

func (p binaryCodec) Encode(msg core.Message) (frame []byte, err error) {
	if err = checkOutbound(p.role, msg); err != nil {
		return
	}
	if len(msg.Op) > math.MaxUint16 {
		err = errSelectorTooLong
		return
	}
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	if p.role == core.RoleClient {
		writeRequestHeader(bb, msg)
	} else {
		writeResponseHeader(bb, msg)
	}
	_, _ = bb.Write(msg.Payload)

	frame = make([]byte, bb.Len())
	copy(frame, bb.B)
	return
}

func writeRequestHeader(bb *bytebufferpool.ByteBuffer, msg core.Message) {
	if msg.Kind == core.KindRequest {
		writeID(bb, msg.ID)
	} else {
		_ = bb.WriteByte(flagAbsent)
	}
	writeOp(bb, msg.Op)
}

func writeResponseHeader(bb *bytebufferpool.ByteBuffer, msg core.Message) {
	if msg.Kind == core.KindNotification {
		_ = bb.WriteByte(flagAbsent)
		_ = bb.WriteByte(kindNotification)
		writeOp(bb, msg.Op)
		return
	}
	writeID(bb, msg.ID)
	if msg.Outcome == core.Success {
		_ = bb.WriteByte(kindSuccess)
	} else {
		_ = bb.WriteByte(kindError)
	}
	writeOp(bb, msg.Op)
}

func writeID(bb *bytebufferpool.ByteBuffer, id uint64) {
	var b [1 + idLen]byte
	b[0] = flagPresent
	binary.BigEndian.PutUint64(b[1:], id)
	_, _ = bb.Write(b[:])
}

func writeOp(bb *bytebufferpool.ByteBuffer, op string) {
	if op == "" {
		_ = bb.WriteByte(flagAbsent)
		return
	}
	var b [1 + opLenLen]byte
	b[0] = flagPresent
	binary.BigEndian.PutUint16(b[1:], uint16(len(op)))
	_, _ = bb.Write(b[:])
	_, _ = bb.WriteString(op)
}

func (p binaryCodec) Decode(frame []byte) (msg core.Message, err error) {
	r := &frameReader{b: frame}
	if p.role == core.RoleServer {
		msg, err = r.readRequest()
	} else {
		msg, err = r.readResponse()
	}
	if err != nil {
		return
	}
	err = msg.Validate()
	return
}

type frameReader struct {
	b   []byte
	off int
}

func (r *frameReader) remaining() int {
	return len(r.b) - r.off
}

func (r *frameReader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, malformed("unexpected end of frame at offset %d", r.off)
	}
	c := r.b[r.off]
	r.off++
	return c, nil
}

func (r *frameReader) readFlag() (bool, error) {
	c, err := r.readByte()
	if err != nil {
		return false, err
	}
	switch c {
	case flagAbsent:
		return false, nil
	case flagPresent:
		return true, nil
	default:
		return false, malformed("invalid presence flag 0x%02X at offset %d", c, r.off-1)
	}
}

func (r *frameReader) readID() (id uint64, ok bool, err error) {
	if ok, err = r.readFlag(); err != nil || !ok {
		return
	}
	if r.remaining() < idLen {
		err = malformed("id needs %d bytes, %d left", idLen, r.remaining())
		return
	}
	id = binary.BigEndian.Uint64(r.b[r.off:])
	r.off += idLen
	return
}

func (r *frameReader) readOp() (op string, ok bool, err error) {
	if ok, err = r.readFlag(); err != nil || !ok {
		return
	}
	if r.remaining() < opLenLen {
		err = malformed("selector length needs %d bytes, %d left", opLenLen, r.remaining())
		return
	}
	n := int(binary.BigEndian.Uint16(r.b[r.off:]))
	r.off += opLenLen
	if n == 0 || r.remaining() < n {
		err = malformed("selector needs %d bytes, %d left", n, r.remaining())
		return
	}
	op = string(r.b[r.off : r.off+n])
	r.off += n
	return
}

func (r *frameReader) payload() []byte {
	if r.remaining() == 0 {
		return nil
	}
	return r.b[r.off:]
}

func (r *frameReader) readRequest() (msg core.Message, err error) {
	id, hasID, err := r.readID()
	if err != nil {
		return
	}
	op, hasOp, err := r.readOp()
	if err != nil {
		return
	}
	if !hasOp {
		err = malformed("request without selector")
		return
	}
	if hasID {
		msg = core.NewRequest(id, op, r.payload())
	} else {
		msg = core.NewNotification(op, r.payload())
	}
	return
}

func (r *frameReader) readResponse() (msg core.Message, err error) {
	id, hasID, err := r.readID()
	if err != nil {
		return
	}
	kind, err := r.readByte()
	if err != nil {
		return
	}
	op, hasOp, err := r.readOp()
	if err != nil {
		return
	}
	switch kind {
	case kindSuccess, kindError:
		if !hasID {
			err = malformed("response without id")
			return
		}
		if kind == kindSuccess {
			msg = core.NewSuccess(id, op, r.payload())
		} else {
			msg = core.NewFailure(id, op, r.payload())
		}
	case kindNotification:
		if hasID {
			err = malformed("notification with id %d", id)
			return
		}
		if !hasOp {
			err = malformed("notification without selector")
			return
		}
		msg = core.NewNotification(op, r.payload())
	default:
		err = malformed("unknown response kind 0x%02X", kind)
	}
	return
}
