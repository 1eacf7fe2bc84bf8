package storage

import (
	"context"

	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/query"
)

/*
Package storage defines the durable store contract the engine runs against
and provides two implementations: a SQLite store for real deployments and an
in-memory store for tests. The contract's one hard requirement is atomicity
of ApplyBatch - a merged batch's document upserts and oplog appends must
land together or not at all, since every convergence invariant is stated
over that pair.
*/

////////////////////////////////////////////////////////////////////////////////

// QueryOptions shape the result set of QueryDocuments.
type QueryOptions struct {
	// Predicate filters on body fields; nil selects everything.
	Predicate query.Node
	// UpdatedAfterWall, when positive, selects documents whose last write's
	// wall clock is strictly later.
	UpdatedAfterWall int64
	// Skip drops the first n matches.
	Skip int
	// Take caps the result count; negative means unlimited.
	Take int
	// OrderBy names a body field to sort on; empty sorts by key.
	OrderBy string
	// Descending reverses the sort order.
	Descending bool
}

// Store is the durable map of documents plus the oplog. Implementations
// must serialize concurrent writers and guarantee ApplyBatch atomicity.
type Store interface {
	// SaveDocument upserts the latest state for the document's
	// (collection, key).
	SaveDocument(ctx context.Context, d doc.Document) error

	// GetDocument returns the stored row, tombstones included. Returns
	// DocumentNotFoundError when the key has never been written.
	GetDocument(ctx context.Context, collection, key string) (doc.Document, error)

	// AppendOplogEntry appends one entry. Appending an entry whose HLC
	// already exists is a no-op, which makes re-pushed batches harmless.
	AppendOplogEntry(ctx context.Context, entry doc.OplogEntry) error

	// OplogSince returns entries with timestamp strictly greater than ts in
	// ascending HLC order.
	OplogSince(ctx context.Context, ts hlc.Timestamp) ([]doc.OplogEntry, error)

	// LatestTimestamp returns the newest oplog timestamp, or the zero
	// timestamp for an empty log.
	LatestTimestamp(ctx context.Context) (hlc.Timestamp, error)

	// ApplyBatch writes document rows and oplog entries in one atomic unit.
	ApplyBatch(ctx context.Context, docs []doc.Document, entries []doc.OplogEntry) error

	// QueryDocuments returns live (non-tombstone) documents in a collection
	// matching the options.
	QueryDocuments(ctx context.Context, collection string, opts QueryOptions) ([]doc.Document, error)

	// Collections lists the distinct collections holding live documents.
	Collections(ctx context.Context) ([]string, error)

	// GetMeta and PutMeta read and write node-local metadata such as the
	// persisted node identity.
	GetMeta(ctx context.Context, key string) (string, error)
	PutMeta(ctx context.Context, key, value string) error

	// Close releases the store.
	Close() error
}
