package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/loambase/loam/cache"
	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/storage"
)

/*
Package db is the document API the application writes and reads through.
Every mutation obtains an HLC tick and commits its document upsert and oplog
append in a single store transaction, so a crash can never leave a document
without its log entry or vice versa. Mutations become visible to peers on
the next anti-entropy round; reads always serve local state.
*/

////////////////////////////////////////////////////////////////////////////////

const nodeIDMetaKey = "node_id"

// DB is a handle on the local replica.
type DB struct {
	store  storage.Store
	clock  hlc.Clock
	cache  *cache.DocCache
	nodeID string
}

// Option configures a DB.
type Option func(*DB)

// WithCache installs a read-through document cache.
func WithCache(c *cache.DocCache) Option {
	return func(d *DB) {
		d.cache = c
	}
}

// New wraps a store in the document API. The node identity is loaded from
// the store's metadata, or generated and persisted on first start, and the
// clock is seeded past the newest stored timestamp so restarts never reissue
// an old tick.
func New(ctx context.Context, store storage.Store, opts ...Option) (*DB, error) {
	nodeID, err := loadNodeID(ctx, store)
	if err != nil {
		return nil, err
	}
	clock := hlc.NewClock(nodeID)
	latest, err := store.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to seed clock: %w", err)
	}
	if !latest.IsZero() {
		clock.Observe(latest)
	}
	d := &DB{
		store:  store,
		clock:  clock,
		nodeID: nodeID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func loadNodeID(ctx context.Context, store storage.Store) (string, error) {
	nodeID, err := store.GetMeta(ctx, nodeIDMetaKey)
	if err == nil {
		return nodeID, nil
	}
	if !errors.Is(err, storage.MetaNotFoundError{}) {
		return "", fmt.Errorf("failed to load node identity: %w", err)
	}
	nodeID = uuid.NewString()
	if err := store.PutMeta(ctx, nodeIDMetaKey, nodeID); err != nil {
		return "", fmt.Errorf("failed to persist node identity: %w", err)
	}
	return nodeID, nil
}

// NodeID returns this replica's stable identifier.
func (d *DB) NodeID() string {
	return d.nodeID
}

// Clock returns the replica's hybrid logical clock.
func (d *DB) Clock() hlc.Clock {
	return d.clock
}

// Store returns the underlying store.
func (d *DB) Store() storage.Store {
	return d.store
}

// Put upserts a document body and returns the stored row.
func (d *DB) Put(ctx context.Context, collection, key string, body []byte) (doc.Document, error) {
	if err := validateKey(collection, key); err != nil {
		return doc.Document{}, err
	}
	ts := d.clock.Tick()
	row := doc.Document{
		Collection: collection,
		Key:        key,
		Body:       body,
		UpdatedAt:  ts,
	}
	entry := doc.OplogEntry{
		Collection: collection,
		Key:        key,
		Op:         doc.OpPut,
		Body:       body,
		Timestamp:  ts,
	}
	if err := d.store.ApplyBatch(ctx, []doc.Document{row}, []doc.OplogEntry{entry}); err != nil {
		return doc.Document{}, fmt.Errorf("failed to put %s/%s: %w", collection, key, err)
	}
	if d.cache != nil {
		d.cache.Put(row)
	}
	return row, nil
}

// Delete writes a tombstone. Deleting a key this node has never seen is
// legal and creates a deleted row, which is required for deletes to
// dominate late-arriving older puts.
func (d *DB) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	ts := d.clock.Tick()
	row := doc.Tombstone(collection, key, ts)
	entry := doc.OplogEntry{
		Collection: collection,
		Key:        key,
		Op:         doc.OpDelete,
		Timestamp:  ts,
	}
	if err := d.store.ApplyBatch(ctx, []doc.Document{row}, []doc.OplogEntry{entry}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, key, err)
	}
	if d.cache != nil {
		d.cache.Put(row)
	}
	return nil
}

// Get returns the live document for (collection, key). Tombstoned and
// never-written keys both return DocumentNotFoundError.
func (d *DB) Get(ctx context.Context, collection, key string) (doc.Document, error) {
	if d.cache != nil {
		if row, ok := d.cache.Get(collection, key); ok {
			if row.Deleted {
				return doc.Document{}, storage.DocumentNotFoundError{Collection: collection, Key: key}
			}
			return row, nil
		}
	}
	row, err := d.store.GetDocument(ctx, collection, key)
	if err != nil {
		return doc.Document{}, err
	}
	if d.cache != nil {
		d.cache.Put(row)
	}
	if row.Deleted {
		return doc.Document{}, storage.DocumentNotFoundError{Collection: collection, Key: key}
	}
	return row, nil
}

// Query returns live documents in a collection matching the options.
func (d *DB) Query(
	ctx context.Context, collection string, opts storage.QueryOptions) ([]doc.Document, error) {
	return d.store.QueryDocuments(ctx, collection, opts)
}

// Collections lists collections with live documents.
func (d *DB) Collections(ctx context.Context) ([]string, error) {
	return d.store.Collections(ctx)
}

// Close releases the underlying store.
func (d *DB) Close() error {
	return d.store.Close()
}

func validateKey(collection, key string) error {
	if collection == "" {
		return errors.New("collection must not be empty")
	}
	if key == "" {
		return errors.New("key must not be empty")
	}
	return nil
}
