// Package wire implements the fixed-size frame header and heartbeat form
// shared bit-exactly by the rpccore client and server.
//
// Every message on the wire is HEADER || BODY:
//
//	0        8           12           16
//	┌────────┬────────────┬────────────┬───────────────┐
//	│ req_id │  body_len  │ func_id    │    body ...    │
//	│ uint64 │  uint32    │ uint32     │ body_len bytes │
//	└────────┴────────────┴────────────┴───────────────┘
//
// Fields are written big-endian (network byte order), so the same binary
// can talk to itself across heterogeneous-endian hosts — the reference
// protocol this one replaces memcpy'd the header in host order and left
// that case undefined.
package wire

import (
	"crypto/md5"
	"encoding/binary"
	"io"
	"net"
)

// HeaderSize is the fixed length, in bytes, of every frame header.
const HeaderSize = 16

// Header is the 16-byte record that precedes every frame body.
type Header struct {
	RequestID  uint64 // client-assigned, monotonically increasing per client instance
	BodyLen    uint32 // length of the body that follows; 0 is a heartbeat
	FunctionID uint32 // name hash identifying the procedure; echoed on the reply
}

// Heartbeat reports whether h carries no body. Only the server accepts
// heartbeats; a conforming server never sends one to a client.
func (h Header) Heartbeat() bool {
	return h.BodyLen == 0
}

// EncodeHeader serializes h into the fixed 16-byte wire representation.
func EncodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint64(buf[0:8], h.RequestID)
	binary.BigEndian.PutUint32(buf[8:12], h.BodyLen)
	binary.BigEndian.PutUint32(buf[12:16], h.FunctionID)
	return buf
}

// DecodeHeader parses a fixed 16-byte wire representation into a Header.
func DecodeHeader(buf [HeaderSize]byte) Header {
	return Header{
		RequestID:  binary.BigEndian.Uint64(buf[0:8]),
		BodyLen:    binary.BigEndian.Uint32(buf[8:12]),
		FunctionID: binary.BigEndian.Uint32(buf[12:16]),
	}
}

// ReadHeader reads and decodes one header from r, blocking until all 16
// bytes arrive (or an error, including io.EOF between frames, occurs).
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf), nil
}

// ReadMessage reads one complete frame (header plus body) from r.
func ReadMessage(r io.Reader) (Header, []byte, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	if h.BodyLen == 0 {
		return h, nil, nil
	}
	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, err
	}
	return h, body, nil
}

// WriteMessage writes one complete frame as a single scatter write of
// [header, body] so the two pieces never interleave with a concurrent
// write on the same socket.
func WriteMessage(w io.Writer, h Header, body []byte) error {
	hdr := EncodeHeader(h)
	buffers := net.Buffers{hdr[:]}
	if len(body) > 0 {
		buffers = append(buffers, body)
	}
	_, err := buffers.WriteTo(w)
	return err
}

// NameHash computes the 32-bit procedure-name key: the first 4 bytes, in
// big-endian order, of MD5(name). Any reimplementation must match this
// exactly or interoperability breaks.
func NameHash(name string) uint32 {
	sum := md5.Sum([]byte(name))
	return binary.BigEndian.Uint32(sum[0:4])
}
