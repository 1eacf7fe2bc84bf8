package util_test

import (
	"bytes"
	"testing"

	"github.com/loambase/loam/util"
	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrips(t *testing.T) {
	buf := make([]byte, 32)
	offset := util.U8(buf, 7)
	offset += util.U32(buf[offset:], 123456)
	offset += util.I32(buf[offset:], -42)
	offset += util.I64(buf[offset:], -1234567890123)
	offset += util.Bool(buf[offset:], true)
	require.Equal(t, 1+4+4+8+1, offset)

	var u8 uint8
	var u32 uint32
	var i32 int32
	var i64 int64
	var b bool
	offset = util.ReadU8(buf, &u8)
	offset += util.ReadU32(buf[offset:], &u32)
	offset += util.ReadI32(buf[offset:], &i32)
	offset += util.ReadI64(buf[offset:], &i64)
	util.ReadBool(buf[offset:], &b)

	require.Equal(t, uint8(7), u8)
	require.Equal(t, uint32(123456), u32)
	require.Equal(t, int32(-42), i32)
	require.Equal(t, int64(-1234567890123), i64)
	require.True(t, b)
}

func TestPrefixedStringRoundTrip(t *testing.T) {
	s := "hello world"
	buf := make([]byte, 4+len(s))
	n := util.WritePrefixedString(buf, s)
	require.Equal(t, 4+len(s), n)

	var got string
	n = util.ReadPrefixedString(buf, &got)
	require.Equal(t, 4+len(s), n)
	require.Equal(t, s, got)
}

func TestPrefixedBytesRoundTrip(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	buf := make([]byte, 4+len(b))
	util.WritePrefixedBytes(buf, b)

	var got []byte
	n := util.ReadPrefixedBytes(buf, &got)
	require.Equal(t, 8, n)
	require.Equal(t, b, got)
}

func TestEmptyPrefixedBytesDecodeNil(t *testing.T) {
	buf := make([]byte, 4)
	util.WritePrefixedBytes(buf, nil)
	var got []byte
	util.ReadPrefixedBytes(buf, &got)
	require.Nil(t, got)
}

func TestReadPrefixedStringShortBuffer(t *testing.T) {
	var s string
	require.Panics(t, func() {
		util.ReadPrefixedString([]byte{0xff, 0xff, 0xff, 0xff, 1}, &s)
	})
}

func TestDecodePrefixedString(t *testing.T) {
	buf := make([]byte, 4+5)
	util.WritePrefixedString(buf, "hello")
	got, err := util.DecodePrefixedString(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestDecodeU32(t *testing.T) {
	buf := make([]byte, 4)
	util.U32(buf, 99)
	got, err := util.DecodeU32(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, uint32(99), got)
}
