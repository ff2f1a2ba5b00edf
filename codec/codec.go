// Package codec implements the payload codec contract (wire protocol §6.2):
// encode a heterogeneous argument tuple to bytes, decode bytes back into a
// tuple of declared types, and encode/decode the uniform (status, value)
// reply shape.
//
// The concrete format is MessagePack (github.com/vmihailenco/msgpack/v5):
// a self-describing binary format with native integers, floats, strings,
// byte arrays, arrays and maps — exactly the expressiveness §4.1 asks for.
// User-defined record types ride on msgpack's "encode struct as array" mode
// so that field order, not field name, is what the wire carries (order
// sensitive, name insensitive, per the data model).
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Status is the reply-tuple status code. It is logically 16-bit wide but
// travels as a generic integer, per the data model.
type Status uint16

const (
	// StatusOK marks a successful call. Encoded as (OK, value) when the
	// handler returns a value, or (OK,) for void procedures.
	StatusOK Status = 0
	// StatusFail marks a failed call. Encoded as (FAIL, message).
	StatusFail Status = 1
)

// DecodeError reports that a byte sequence did not represent a tuple of
// the expected arity or element shapes.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return "codec: decode error: " + e.Msg }

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

// RemoteError is returned by DecodeReply when the reply tuple carries
// StatusFail. Message is exactly the bytes the handler (or router) put on
// the wire, with no added context.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func newEncoder(buf *bytes.Buffer) *msgpack.Encoder {
	enc := msgpack.NewEncoder(buf)
	enc.UseArrayEncodedStructs(true)
	return enc
}

func newDecoder(r *bytes.Reader) *msgpack.Decoder {
	dec := msgpack.NewDecoder(r)
	dec.UseArrayEncodedStructs(true)
	return dec
}

// EncodeTuple encodes a heterogeneous tuple of values as a msgpack array.
// Zero arguments still produce a (non-empty) encoded empty array, never
// zero bytes.
func EncodeTuple(values ...any) ([]byte, error) {
	var buf bytes.Buffer
	enc := newEncoder(&buf)
	if err := enc.EncodeArrayLen(len(values)); err != nil {
		return nil, err
	}
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeTuple decodes data into the given addressable targets (pointers).
// It fails with *DecodeError if data does not represent a tuple of exactly
// len(targets) elements, or if any element cannot be decoded into its
// target's type.
func DecodeTuple(data []byte, targets ...any) error {
	dec := newDecoder(bytes.NewReader(data))
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return decodeErrorf("not a tuple: %v", err)
	}
	if n != len(targets) {
		return decodeErrorf("expected %d elements, got %d", len(targets), n)
	}
	for i, t := range targets {
		if err := dec.Decode(t); err != nil {
			return decodeErrorf("element %d: %v", i, err)
		}
	}
	return nil
}

// EncodeOKValue encodes a successful reply carrying a value: (OK, value).
func EncodeOKValue(value any) ([]byte, error) {
	return EncodeTuple(StatusOK, value)
}

// EncodeOKVoid encodes a successful reply with no value: (OK,).
func EncodeOKVoid() ([]byte, error) {
	return EncodeTuple(StatusOK)
}

// EncodeFail encodes a failure reply: (FAIL, message). This never fails in
// practice (message is always an encodable string) but returns an error for
// symmetry with the rest of the codec surface.
func EncodeFail(message string) ([]byte, error) {
	return EncodeTuple(StatusFail, message)
}

// DecodeReply decodes a reply tuple produced by EncodeOKValue/EncodeOKVoid/
// EncodeFail. On StatusOK, passing a non-nil value decodes the reply's
// value into it; passing nil only checks the status, leaving any value
// undecoded (useful for a plain success/failure check). On StatusFail,
// DecodeReply returns a *RemoteError carrying the server's message; any
// other malformed shape returns a *DecodeError.
func DecodeReply(data []byte, value any) (Status, error) {
	r := bytes.NewReader(data)
	dec := newDecoder(r)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return 0, decodeErrorf("not a reply tuple: %v", err)
	}
	if n < 1 {
		return 0, decodeErrorf("empty reply tuple")
	}

	var raw uint16
	if err := dec.Decode(&raw); err != nil {
		return 0, decodeErrorf("status: %v", err)
	}
	status := Status(raw)

	switch status {
	case StatusOK:
		switch n {
		case 1:
			return status, nil
		case 2:
			if value == nil {
				// Caller only wants the status (RpcResult.Check-style use);
				// the value is left undecoded.
				return status, nil
			}
			if err := dec.Decode(value); err != nil {
				return status, decodeErrorf("value: %v", err)
			}
			return status, nil
		default:
			return status, decodeErrorf("malformed OK reply with %d elements", n)
		}
	case StatusFail:
		var msg string
		if n >= 2 {
			if err := dec.Decode(&msg); err != nil {
				return status, decodeErrorf("message: %v", err)
			}
		}
		return status, &RemoteError{Message: msg}
	default:
		return status, decodeErrorf("unknown status %d", raw)
	}
}

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
