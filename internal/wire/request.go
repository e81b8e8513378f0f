// Package wire encodes and decodes the plaintext request/response bodies
// carried inside the authenticated datagram envelope (internal/codec).
// Everything here is pure byte shuffling: no I/O, no crypto.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"crushstore/internal/placement"
)

// Opcode identifies the operation a request body carries.
type Opcode byte

const (
	OpReadObject  Opcode = 0x01
	OpReadPart    Opcode = 0x02
	OpWriteObject Opcode = 0x03
	OpWritePart   Opcode = 0x04
	OpDelete      Opcode = 0x05
)

func (o Opcode) String() string {
	switch o {
	case OpReadObject:
		return "read_object"
	case OpReadPart:
		return "read_part"
	case OpWriteObject:
		return "write_object"
	case OpWritePart:
		return "write_part"
	case OpDelete:
		return "delete_object"
	default:
		return fmt.Sprintf("opcode(%#02x)", byte(o))
	}
}

// ErrTruncated is returned by the decoders when the body ends before a
// declared length is satisfied. It is treated the same as any other
// parse error: the datagram is counted invalid and dropped, never replied
// to.
var ErrTruncated = errors.New("wire: truncated request body")

// ErrUnknownOpcode is returned when the opcode byte does not match any
// defined Opcode.
var ErrUnknownOpcode = errors.New("wire: unknown opcode")

// Request is a decoded client request. Fields not used by Opcode are zero.
type Request struct {
	Counter  uint32
	Pool     placement.PoolName
	Opcode   Opcode
	ObjectId placement.ObjectId
	Offset   uint32
	Length   uint32 // read_part only
	Data     []byte // write_object / write_part only
}

// DecodeRequest parses a request body as laid out in the wire request
// format: counter, length-prefixed pool name, opcode byte, then an
// opcode-specific payload.
func DecodeRequest(body []byte) (Request, error) {
	var req Request

	r := reader{buf: body}
	counter, ok := r.u32()
	if !ok {
		return req, ErrTruncated
	}
	poolLen, ok := r.u32()
	if !ok {
		return req, ErrTruncated
	}
	poolBytes, ok := r.bytes(int(poolLen))
	if !ok {
		return req, ErrTruncated
	}
	opcodeByte, ok := r.byte()
	if !ok {
		return req, ErrTruncated
	}

	req.Counter = counter
	req.Pool = placement.PoolName(poolBytes)
	req.Opcode = Opcode(opcodeByte)

	switch req.Opcode {
	case OpReadObject, OpDelete:
		objLen, ok := r.u32()
		if !ok {
			return req, ErrTruncated
		}
		obj, ok := r.bytes(int(objLen))
		if !ok {
			return req, ErrTruncated
		}
		req.ObjectId = placement.ObjectId(obj)

	case OpReadPart:
		objLen, ok := r.u32()
		if !ok {
			return req, ErrTruncated
		}
		obj, ok := r.bytes(int(objLen))
		if !ok {
			return req, ErrTruncated
		}
		req.ObjectId = placement.ObjectId(obj)
		offset, ok := r.u32()
		if !ok {
			return req, ErrTruncated
		}
		length, ok := r.u32()
		if !ok {
			return req, ErrTruncated
		}
		req.Offset = offset
		req.Length = length

	case OpWriteObject:
		objLen, ok := r.u32()
		if !ok {
			return req, ErrTruncated
		}
		obj, ok := r.bytes(int(objLen))
		if !ok {
			return req, ErrTruncated
		}
		req.ObjectId = placement.ObjectId(obj)
		req.Data = r.rest()

	case OpWritePart:
		objLen, ok := r.u32()
		if !ok {
			return req, ErrTruncated
		}
		obj, ok := r.bytes(int(objLen))
		if !ok {
			return req, ErrTruncated
		}
		req.ObjectId = placement.ObjectId(obj)
		offset, ok := r.u32()
		if !ok {
			return req, ErrTruncated
		}
		req.Offset = offset
		req.Data = r.rest()

	default:
		return req, ErrUnknownOpcode
	}

	return req, nil
}

// Encode serializes a Request back into a wire body, rewriting Counter
// with the current value. Used by the daemon when forwarding a request
// to a peer with a freshly-allocated local counter.
func (r Request) Encode() []byte {
	w := writer{}
	w.u32(r.Counter)
	w.u32(uint32(len(r.Pool)))
	w.bytes([]byte(r.Pool))
	w.byte(byte(r.Opcode))

	switch r.Opcode {
	case OpReadObject, OpDelete:
		w.u32(uint32(len(r.ObjectId)))
		w.bytes(r.ObjectId)
	case OpReadPart:
		w.u32(uint32(len(r.ObjectId)))
		w.bytes(r.ObjectId)
		w.u32(r.Offset)
		w.u32(r.Length)
	case OpWriteObject:
		w.u32(uint32(len(r.ObjectId)))
		w.bytes(r.ObjectId)
		w.bytes(r.Data)
	case OpWritePart:
		w.u32(uint32(len(r.ObjectId)))
		w.bytes(r.ObjectId)
		w.u32(r.Offset)
		w.bytes(r.Data)
	}

	return w.buf
}

// RewriteCounter overwrites the first 4 bytes of an encoded request or
// response body with a new big-endian counter value, in place.
func RewriteCounter(body []byte, counter uint32) error {
	if len(body) < 4 {
		return ErrTruncated
	}
	binary.BigEndian.PutUint32(body[0:4], counter)
	return nil
}

// PeekCounter reads the leading counter field without parsing the rest of
// a request or response body.
func PeekCounter(body []byte) (uint32, error) {
	if len(body) < 4 {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint32(body[0:4]), nil
}
