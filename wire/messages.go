package wire

import (
	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/util"
)

/*
Typed message payloads. Encodings are little-endian with uint32
length-prefixed strings and byte slices, written into exactly-sized buffers.
Decoding panics on truncated input; safeDecode traps the panic and converts
it to ErrMalformedPayload, which the connection handler treats as a protocol
violation.
*/

////////////////////////////////////////////////////////////////////////////////

func safeDecode(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrMalformedPayload
		}
	}()
	fn()
	return nil
}

func timestampSize(ts hlc.Timestamp) int {
	return 8 + 4 + 4 + len(ts.Node)
}

func writeTimestamp(buf []byte, ts hlc.Timestamp) int {
	offset := util.I64(buf, ts.Wall)
	offset += util.I32(buf[offset:], ts.Logical)
	offset += util.WritePrefixedString(buf[offset:], ts.Node)
	return offset
}

func readTimestamp(buf []byte, ts *hlc.Timestamp) int {
	offset := util.ReadI64(buf, &ts.Wall)
	offset += util.ReadI32(buf[offset:], &ts.Logical)
	offset += util.ReadPrefixedString(buf[offset:], &ts.Node)
	return offset
}

// HandshakeReq opens a session. PublicKey carries the initiator's ephemeral
// P-256 public key in secure mode and is empty otherwise.
type HandshakeReq struct {
	NodeID               string
	AuthToken            string
	SupportedCompression []string
	PublicKey            []byte
}

// Type implements Message.
func (m HandshakeReq) Type() MsgType { return TypeHandshakeReq }

// MarshalBinary encodes the message payload.
func (m HandshakeReq) MarshalBinary() ([]byte, error) {
	size := 4 + len(m.NodeID) + 4 + len(m.AuthToken) + 4
	for _, c := range m.SupportedCompression {
		size += 4 + len(c)
	}
	size += 4 + len(m.PublicKey)
	buf := make([]byte, size)
	offset := util.WritePrefixedString(buf, m.NodeID)
	offset += util.WritePrefixedString(buf[offset:], m.AuthToken)
	offset += util.U32(buf[offset:], uint32(len(m.SupportedCompression)))
	for _, c := range m.SupportedCompression {
		offset += util.WritePrefixedString(buf[offset:], c)
	}
	util.WritePrefixedBytes(buf[offset:], m.PublicKey)
	return buf, nil
}

// UnmarshalBinary decodes the message payload.
func (m *HandshakeReq) UnmarshalBinary(data []byte) error {
	return safeDecode(func() {
		offset := util.ReadPrefixedString(data, &m.NodeID)
		offset += util.ReadPrefixedString(data[offset:], &m.AuthToken)
		var count uint32
		offset += util.ReadU32(data[offset:], &count)
		if int64(count)*4 > int64(len(data)) {
			panic("short buffer")
		}
		m.SupportedCompression = make([]string, count)
		for i := range m.SupportedCompression {
			offset += util.ReadPrefixedString(data[offset:], &m.SupportedCompression[i])
		}
		util.ReadPrefixedBytes(data[offset:], &m.PublicKey)
	})
}

// HandshakeRes answers a handshake. SelectedCompression is empty when no
// common algorithm was found; PublicKey is the responder's ephemeral key in
// secure mode.
type HandshakeRes struct {
	NodeID              string
	Accepted            bool
	SelectedCompression string
	PublicKey           []byte
}

// Type implements Message.
func (m HandshakeRes) Type() MsgType { return TypeHandshakeRes }

// MarshalBinary encodes the message payload.
func (m HandshakeRes) MarshalBinary() ([]byte, error) {
	size := 4 + len(m.NodeID) + 1 + 4 + len(m.SelectedCompression) + 4 + len(m.PublicKey)
	buf := make([]byte, size)
	offset := util.WritePrefixedString(buf, m.NodeID)
	offset += util.Bool(buf[offset:], m.Accepted)
	offset += util.WritePrefixedString(buf[offset:], m.SelectedCompression)
	util.WritePrefixedBytes(buf[offset:], m.PublicKey)
	return buf, nil
}

// UnmarshalBinary decodes the message payload.
func (m *HandshakeRes) UnmarshalBinary(data []byte) error {
	return safeDecode(func() {
		offset := util.ReadPrefixedString(data, &m.NodeID)
		offset += util.ReadBool(data[offset:], &m.Accepted)
		offset += util.ReadPrefixedString(data[offset:], &m.SelectedCompression)
		util.ReadPrefixedBytes(data[offset:], &m.PublicKey)
	})
}

// GetClockReq asks for the peer's latest oplog timestamp.
type GetClockReq struct{}

// Type implements Message.
func (m GetClockReq) Type() MsgType { return TypeGetClockReq }

// MarshalBinary encodes the message payload.
func (m GetClockReq) MarshalBinary() ([]byte, error) { return []byte{}, nil }

// UnmarshalBinary decodes the message payload.
func (m *GetClockReq) UnmarshalBinary(data []byte) error { return nil }

// ClockRes carries the responder's latest oplog timestamp.
type ClockRes struct {
	Clock hlc.Timestamp
}

// Type implements Message.
func (m ClockRes) Type() MsgType { return TypeClockRes }

// MarshalBinary encodes the message payload.
func (m ClockRes) MarshalBinary() ([]byte, error) {
	buf := make([]byte, timestampSize(m.Clock))
	writeTimestamp(buf, m.Clock)
	return buf, nil
}

// UnmarshalBinary decodes the message payload.
func (m *ClockRes) UnmarshalBinary(data []byte) error {
	return safeDecode(func() {
		readTimestamp(data, &m.Clock)
	})
}

// PullChangesReq requests oplog entries newer than Since.
type PullChangesReq struct {
	Since hlc.Timestamp
}

// Type implements Message.
func (m PullChangesReq) Type() MsgType { return TypePullChangesReq }

// MarshalBinary encodes the message payload.
func (m PullChangesReq) MarshalBinary() ([]byte, error) {
	buf := make([]byte, timestampSize(m.Since))
	writeTimestamp(buf, m.Since)
	return buf, nil
}

// UnmarshalBinary decodes the message payload.
func (m *PullChangesReq) UnmarshalBinary(data []byte) error {
	return safeDecode(func() {
		readTimestamp(data, &m.Since)
	})
}

// OplogEntry is the wire form of a logged mutation.
type OplogEntry struct {
	Collection string
	Key        string
	Operation  string
	JSONData   string
	Timestamp  hlc.Timestamp
}

func (e OplogEntry) size() int {
	return 4 + len(e.Collection) + 4 + len(e.Key) + 4 + len(e.Operation) +
		4 + len(e.JSONData) + timestampSize(e.Timestamp)
}

func (e OplogEntry) write(buf []byte) int {
	offset := util.WritePrefixedString(buf, e.Collection)
	offset += util.WritePrefixedString(buf[offset:], e.Key)
	offset += util.WritePrefixedString(buf[offset:], e.Operation)
	offset += util.WritePrefixedString(buf[offset:], e.JSONData)
	offset += writeTimestamp(buf[offset:], e.Timestamp)
	return offset
}

func (e *OplogEntry) read(buf []byte) int {
	offset := util.ReadPrefixedString(buf, &e.Collection)
	offset += util.ReadPrefixedString(buf[offset:], &e.Key)
	offset += util.ReadPrefixedString(buf[offset:], &e.Operation)
	offset += util.ReadPrefixedString(buf[offset:], &e.JSONData)
	offset += readTimestamp(buf[offset:], &e.Timestamp)
	return offset
}

// FromDoc converts a stored oplog entry to its wire form.
func FromDoc(entry doc.OplogEntry) OplogEntry {
	return OplogEntry{
		Collection: entry.Collection,
		Key:        entry.Key,
		Operation:  string(entry.Op),
		JSONData:   string(entry.Body),
		Timestamp:  entry.Timestamp,
	}
}

// ToDoc converts a wire entry back to the stored form.
func (e OplogEntry) ToDoc() doc.OplogEntry {
	entry := doc.OplogEntry{
		Collection: e.Collection,
		Key:        e.Key,
		Op:         doc.Op(e.Operation),
		Timestamp:  e.Timestamp,
	}
	if e.JSONData != "" {
		entry.Body = []byte(e.JSONData)
	}
	return entry
}

func writeEntries(entries []OplogEntry) []byte {
	size := 4
	for _, e := range entries {
		size += e.size()
	}
	buf := make([]byte, size)
	offset := util.U32(buf, uint32(len(entries)))
	for _, e := range entries {
		offset += e.write(buf[offset:])
	}
	return buf
}

// An entry encodes to at least this many bytes; used to reject length
// prefixes that could not possibly be honest before allocating.
const minEntrySize = 32

func readEntries(data []byte) []OplogEntry {
	var count uint32
	offset := util.ReadU32(data, &count)
	if int64(count)*minEntrySize > int64(len(data)) {
		panic("short buffer")
	}
	entries := make([]OplogEntry, count)
	for i := range entries {
		offset += entries[i].read(data[offset:])
	}
	return entries
}

// ChangeSetRes answers a pull with the requested entries.
type ChangeSetRes struct {
	Entries []OplogEntry
}

// Type implements Message.
func (m ChangeSetRes) Type() MsgType { return TypeChangeSetRes }

// MarshalBinary encodes the message payload.
func (m ChangeSetRes) MarshalBinary() ([]byte, error) {
	return writeEntries(m.Entries), nil
}

// UnmarshalBinary decodes the message payload.
func (m *ChangeSetRes) UnmarshalBinary(data []byte) error {
	return safeDecode(func() {
		m.Entries = readEntries(data)
	})
}

// PushChangesReq delivers entries the initiator believes the responder lacks.
type PushChangesReq struct {
	Entries []OplogEntry
}

// Type implements Message.
func (m PushChangesReq) Type() MsgType { return TypePushChangesReq }

// MarshalBinary encodes the message payload.
func (m PushChangesReq) MarshalBinary() ([]byte, error) {
	return writeEntries(m.Entries), nil
}

// UnmarshalBinary decodes the message payload.
func (m *PushChangesReq) UnmarshalBinary(data []byte) error {
	return safeDecode(func() {
		m.Entries = readEntries(data)
	})
}

// AckRes acknowledges a push.
type AckRes struct {
	Success bool
}

// Type implements Message.
func (m AckRes) Type() MsgType { return TypeAckRes }

// MarshalBinary encodes the message payload.
func (m AckRes) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1)
	util.Bool(buf, m.Success)
	return buf, nil
}

// UnmarshalBinary decodes the message payload.
func (m *AckRes) UnmarshalBinary(data []byte) error {
	return safeDecode(func() {
		util.ReadBool(data, &m.Success)
	})
}

// SecureEnv wraps an encrypted inner frame.
type SecureEnv struct {
	Nonce      []byte
	Ciphertext []byte
	AuthTag    []byte
}

// Type implements Message.
func (m SecureEnv) Type() MsgType { return TypeSecureEnv }

// MarshalBinary encodes the message payload.
func (m SecureEnv) MarshalBinary() ([]byte, error) {
	size := 4 + len(m.Nonce) + 4 + len(m.Ciphertext) + 4 + len(m.AuthTag)
	buf := make([]byte, size)
	offset := util.WritePrefixedBytes(buf, m.Nonce)
	offset += util.WritePrefixedBytes(buf[offset:], m.Ciphertext)
	util.WritePrefixedBytes(buf[offset:], m.AuthTag)
	return buf, nil
}

// UnmarshalBinary decodes the message payload.
func (m *SecureEnv) UnmarshalBinary(data []byte) error {
	return safeDecode(func() {
		offset := util.ReadPrefixedBytes(data, &m.Nonce)
		offset += util.ReadPrefixedBytes(data[offset:], &m.Ciphertext)
		util.ReadPrefixedBytes(data[offset:], &m.AuthTag)
	})
}
