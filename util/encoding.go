package util

/*
Encoding utilities for the wire codec. Callers must size buffers up front:
the fixed-width write functions do not check destination lengths, and the
prefixed writers panic when the buffer is too small. Read functions that
take a byte slice panic on short input; the framing layer validates frame
lengths before any message decoding occurs, so a panic here indicates a
protocol violation, which the wire message decoders trap and report as a
malformed payload.
*/

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadU8 reads a uint8 from src and stores it in x, returning the read length.
func ReadU8(src []byte, x *uint8) int {
	*x = src[0]
	return 1
}

// ReadU32 reads a uint32 from src and stores it in x, returning the read length.
func ReadU32(src []byte, x *uint32) int {
	*x = binary.LittleEndian.Uint32(src)
	return 4
}

// ReadI32 reads an int32 from src and stores it in x, returning the read length.
func ReadI32(src []byte, x *int32) int {
	*x = int32(binary.LittleEndian.Uint32(src))
	return 4
}

// ReadI64 reads an int64 from src and stores it in x, returning the read length.
func ReadI64(src []byte, x *int64) int {
	*x = int64(binary.LittleEndian.Uint64(src))
	return 8
}

// ReadBool reads a bool from src and stores it in x, returning the read length.
func ReadBool(src []byte, x *bool) int {
	*x = src[0] == 1
	return 1
}

// ReadPrefixedString reads a length-prefixed string from data and stores it
// in s, returning the read length.
func ReadPrefixedString(data []byte, s *string) int {
	if len(data) < 4 {
		panic("short buffer")
	}
	length := int(binary.LittleEndian.Uint32(data))
	if len(data[4:]) < length {
		panic("short buffer")
	}
	*s = string(data[4 : length+4])
	return 4 + length
}

// ReadPrefixedBytes reads a length-prefixed byte slice from data and stores
// it in b, returning the read length.
func ReadPrefixedBytes(data []byte, b *[]byte) int {
	if len(data) < 4 {
		panic("short buffer")
	}
	length := int(binary.LittleEndian.Uint32(data))
	if len(data[4:]) < length {
		panic("short buffer")
	}
	if length == 0 {
		*b = nil
		return 4
	}
	*b = append([]byte{}, data[4:length+4]...)
	return 4 + length
}

// U8 writes a uint8 to dst and returns the written length.
func U8(dst []byte, src uint8) int {
	dst[0] = src
	return 1
}

// U32 writes a uint32 to dst and returns the written length.
func U32(dst []byte, src uint32) int {
	binary.LittleEndian.PutUint32(dst, src)
	return 4
}

// I32 writes an int32 to dst and returns the written length.
func I32(dst []byte, src int32) int {
	binary.LittleEndian.PutUint32(dst, uint32(src))
	return 4
}

// I64 writes an int64 to dst and returns the written length.
func I64(dst []byte, src int64) int {
	binary.LittleEndian.PutUint64(dst, uint64(src))
	return 8
}

// Bool writes a bool to dst and returns the written length.
func Bool(dst []byte, src bool) int {
	if src {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	return 1
}

// WritePrefixedString writes a length-prefixed string to buf and returns the
// written length.
func WritePrefixedString(buf []byte, s string) int {
	if len(buf) < 4+len(s) {
		panic("buffer too small")
	}
	binary.LittleEndian.PutUint32(buf, uint32(len(s)))
	return 4 + copy(buf[4:], s)
}

// WritePrefixedBytes writes a length-prefixed byte slice to buf and returns
// the written length.
func WritePrefixedBytes(buf []byte, b []byte) int {
	if len(buf) < 4+len(b) {
		panic("buffer too small")
	}
	binary.LittleEndian.PutUint32(buf, uint32(len(b)))
	return 4 + copy(buf[4:], b)
}

// DecodeU32 decodes a uint32 from r.
func DecodeU32(r io.Reader) (uint32, error) {
	var x uint32
	if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
		return 0, fmt.Errorf("failed to decode uint32: %w", err)
	}
	return x, nil
}

// DecodePrefixedString decodes a length-prefixed string from r.
func DecodePrefixedString(r io.Reader) (string, error) {
	length, err := DecodeU32(r)
	if err != nil {
		return "", fmt.Errorf("failed to read string length: %w", err)
	}
	buf := make([]byte, length)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return "", fmt.Errorf("failed to read string: %w", err)
	}
	return string(buf), nil
}
