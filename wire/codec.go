package wire

import (
	"crypto/cipher"
	"encoding"
	"fmt"
	"io"

	"github.com/loambase/loam/util"
)

/*
Codec binds framing, compression, and the secure envelope into one send and
one receive path. A codec starts plain; the handshake upgrades it by setting
the negotiated compression and, in secure mode, the session AEAD. Handshake
frames themselves always travel uncompressed and unencrypted - both sides
must be able to read them before any negotiation has happened.
*/

////////////////////////////////////////////////////////////////////////////////

// Message is a typed wire payload.
type Message interface {
	encoding.BinaryMarshaler
	Type() MsgType
}

// Codec reads and writes messages over one connection.
type Codec struct {
	compression string
	aead        cipher.AEAD
}

// NewCodec returns a plaintext, uncompressed codec.
func NewCodec() *Codec {
	return &Codec{}
}

// EnableCompression turns on the negotiated algorithm. Only
// CompressionBrotli is understood.
func (c *Codec) EnableCompression(algorithm string) {
	c.compression = algorithm
}

// EnableSecure installs the session AEAD; all subsequent traffic is sealed.
func (c *Codec) EnableSecure(aead cipher.AEAD) {
	c.aead = aead
}

// Secure reports whether the codec seals traffic.
func (c *Codec) Secure() bool {
	return c.aead != nil
}

// WriteMessage encodes and sends one message.
func (c *Codec) WriteMessage(w io.Writer, msg Message) error {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}
	var flags uint8
	if c.compression == CompressionBrotli && len(payload) > compressThreshold {
		compressed, err := compress(payload)
		if err != nil {
			return err
		}
		payload = compressed
		flags |= FlagCompressed
	}
	if c.aead == nil {
		return WriteFrame(w, msg.Type(), flags, payload)
	}
	inner := make([]byte, 2+len(payload))
	offset := util.U8(inner, uint8(msg.Type()))
	offset += util.U8(inner[offset:], flags)
	copy(inner[offset:], payload)
	env, err := seal(c.aead, inner)
	if err != nil {
		return err
	}
	envPayload, err := env.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return WriteFrame(w, TypeSecureEnv, 0, envPayload)
}

// ReadMessage receives one message, returning its type and decoded payload
// bytes.
func (c *Codec) ReadMessage(r io.Reader) (MsgType, []byte, error) {
	typ, flags, payload, err := ReadFrame(r)
	if err != nil {
		return 0, nil, err
	}
	if c.aead != nil {
		if typ != TypeSecureEnv {
			return 0, nil, fmt.Errorf("%w: expected secure envelope, got %s", ErrMalformedPayload, typ)
		}
		var env SecureEnv
		if err := env.UnmarshalBinary(payload); err != nil {
			return 0, nil, err
		}
		inner, err := open(c.aead, env)
		if err != nil {
			return 0, nil, err
		}
		if len(inner) < 2 {
			return 0, nil, ErrMalformedPayload
		}
		var innerType, innerFlags uint8
		offset := util.ReadU8(inner, &innerType)
		offset += util.ReadU8(inner[offset:], &innerFlags)
		if !MsgType(innerType).Valid() || MsgType(innerType) == TypeSecureEnv {
			return 0, nil, ErrUnknownType
		}
		typ, flags, payload = MsgType(innerType), innerFlags, inner[offset:]
	} else if typ == TypeSecureEnv {
		return 0, nil, fmt.Errorf("%w: secure envelope on plaintext session", ErrMalformedPayload)
	}
	if flags&FlagCompressed != 0 {
		payload, err = decompress(payload)
		if err != nil {
			return 0, nil, err
		}
	}
	return typ, payload, nil
}
