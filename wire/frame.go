package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/loambase/loam/util"
)

/*
Package wire implements the sync protocol's framing and message codec. Every
logical message travels as one frame:

	[length: uint32 little-endian]  payload byte count
	[type:   uint8]                 message type
	[flags:  uint8]                 bit 0 = payload is Brotli-compressed
	[payload: length bytes]

Payloads are the little-endian binary encodings in messages.go. When a
session has negotiated the secure mode, the plaintext [type][flags][payload]
triple is sealed inside a SecureEnv frame; see codec.go.
*/

////////////////////////////////////////////////////////////////////////////////

// MsgType identifies a frame's payload encoding.
type MsgType uint8

const (
	TypeHandshakeReq MsgType = iota + 1
	TypeHandshakeRes
	TypeGetClockReq
	TypeClockRes
	TypePullChangesReq
	TypeChangeSetRes
	TypePushChangesReq
	TypeAckRes
	TypeSecureEnv
)

func (t MsgType) String() string {
	switch t {
	case TypeHandshakeReq:
		return "HandshakeReq"
	case TypeHandshakeRes:
		return "HandshakeRes"
	case TypeGetClockReq:
		return "GetClockReq"
	case TypeClockRes:
		return "ClockRes"
	case TypePullChangesReq:
		return "PullChangesReq"
	case TypeChangeSetRes:
		return "ChangeSetRes"
	case TypePushChangesReq:
		return "PushChangesReq"
	case TypeAckRes:
		return "AckRes"
	case TypeSecureEnv:
		return "SecureEnv"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is in the closed message type set.
func (t MsgType) Valid() bool {
	return t >= TypeHandshakeReq && t <= TypeSecureEnv
}

// FlagCompressed marks a Brotli-compressed payload.
const FlagCompressed uint8 = 0x01

// MaxFrameSize bounds payloads; larger lengths are protocol violations.
const MaxFrameSize = 64 << 20

const headerSize = 6

// Framing errors.
var (
	ErrFrameTooLarge    = errors.New("frame exceeds maximum size")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMalformedPayload = errors.New("malformed message payload")
)

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, typ MsgType, flags uint8, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, headerSize+len(payload))
	offset := util.U32(buf, uint32(len(payload)))
	offset += util.U8(buf[offset:], uint8(typ))
	offset += util.U8(buf[offset:], flags)
	copy(buf[offset:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r, validating the type and length bounds.
func ReadFrame(r io.Reader) (MsgType, uint8, []byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, nil, fmt.Errorf("failed to read frame header: %w", err)
	}
	var length uint32
	var typ, flags uint8
	offset := util.ReadU32(header, &length)
	offset += util.ReadU8(header[offset:], &typ)
	util.ReadU8(header[offset:], &flags)
	if length > MaxFrameSize {
		return 0, 0, nil, ErrFrameTooLarge
	}
	if !MsgType(typ).Valid() {
		return 0, 0, nil, ErrUnknownType
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, fmt.Errorf("failed to read frame payload: %w", err)
	}
	return MsgType(typ), flags, payload, nil
}
