package doc

import (
	"github.com/loambase/loam/hlc"
)

/*
Package doc holds the core record types shared by the store, the merge
engine, and the wire codec. Document bodies are opaque JSON text - nothing in
the engine interprets them except the field-merge resolver, and that
round-trips through generic JSON values without imposing a schema.
*/

////////////////////////////////////////////////////////////////////////////////

// Op is the kind of a logged mutation.
type Op string

const (
	OpPut    Op = "Put"
	OpDelete Op = "Delete"
)

// Valid reports whether o is a known operation kind.
func (o Op) Valid() bool {
	return o == OpPut || o == OpDelete
}

// Document is the latest accepted state for a (collection, key) pair.
// Deleted documents persist as tombstones carrying the deletion's timestamp,
// which is what lets a delete dominate a late-arriving older put.
type Document struct {
	Collection string        `json:"collection"`
	Key        string        `json:"key"`
	Body       []byte        `json:"body,omitempty"`
	UpdatedAt  hlc.Timestamp `json:"updated_at"`
	Deleted    bool          `json:"deleted"`
}

// OplogEntry is one accepted mutation. Entries are append-only and never
// mutated; together they carry enough information to reconstruct document
// state from scratch.
type OplogEntry struct {
	Collection string        `json:"collection"`
	Key        string        `json:"key"`
	Op         Op            `json:"op"`
	Body       []byte        `json:"body,omitempty"`
	Timestamp  hlc.Timestamp `json:"timestamp"`
}

// Tombstone returns the document row that applying a delete entry produces.
func Tombstone(collection, key string, ts hlc.Timestamp) Document {
	return Document{
		Collection: collection,
		Key:        key,
		UpdatedAt:  ts,
		Deleted:    true,
	}
}
