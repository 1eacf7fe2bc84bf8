package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/resolve"
	"github.com/loambase/loam/storage"
	"github.com/loambase/loam/util/log"
	"golang.org/x/exp/maps"
)

/*
Package merge ingests batches of remote oplog entries and folds them into
local state. The engine is where convergence is decided: per key, entries
are sorted by timestamp and applied only when they strictly supersede what
is stored, so a batch produces the same final state no matter how its
entries were ordered or how many times it is delivered. The document
upserts and oplog appends for a batch commit in one store transaction.
*/

////////////////////////////////////////////////////////////////////////////////

// Invalidator drops cached document state after a merge lands. The document
// cache implements it; a nil invalidator is fine.
type Invalidator interface {
	Invalidate(collection, key string)
}

// Engine applies remote oplog batches to the local store.
type Engine struct {
	store    storage.Store
	clock    hlc.Clock
	resolver resolve.Resolver
	cache    Invalidator
}

// Option configures an Engine.
type Option func(*Engine)

// WithInvalidator registers a cache to invalidate on merged keys.
func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) {
		e.cache = inv
	}
}

// NewEngine returns an engine writing through the given store, observing
// merged timestamps into clock, and resolving conflicts with resolver.
func NewEngine(store storage.Store, clock hlc.Clock, resolver resolve.Resolver, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		clock:    clock,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type groupKey struct {
	collection string
	key        string
}

// ApplyBatch merges one sync round's worth of remote entries. The batch may
// arrive in any order and may contain duplicates of entries already applied;
// both are harmless. On error nothing is persisted.
func (e *Engine) ApplyBatch(ctx context.Context, batch []doc.OplogEntry) error {
	if len(batch) == 0 {
		return nil
	}
	for _, entry := range batch {
		if !entry.Op.Valid() {
			return fmt.Errorf("rejecting batch: unknown operation %q", entry.Op)
		}
	}

	groups := make(map[groupKey][]doc.OplogEntry)
	for _, entry := range batch {
		gk := groupKey{entry.Collection, entry.Key}
		groups[gk] = append(groups[gk], entry)
	}
	keys := maps.Keys(groups)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].collection != keys[j].collection {
			return keys[i].collection < keys[j].collection
		}
		return keys[i].key < keys[j].key
	})

	var docs []doc.Document
	for _, gk := range keys {
		group := groups[gk]
		sort.Slice(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})
		final, changed, err := e.applyGroup(ctx, gk, group)
		if err != nil {
			return err
		}
		if changed {
			docs = append(docs, final)
		}
	}

	if err := e.store.ApplyBatch(ctx, docs, batch); err != nil {
		return fmt.Errorf("failed to commit merge batch: %w", err)
	}
	for _, entry := range batch {
		e.clock.Observe(entry.Timestamp)
	}
	if e.cache != nil {
		for _, d := range docs {
			e.cache.Invalidate(d.Collection, d.Key)
		}
	}
	return nil
}

// applyGroup walks one key's entries in timestamp order and returns the
// resulting document row, if any entry superseded local state.
func (e *Engine) applyGroup(
	ctx context.Context, gk groupKey, group []doc.OplogEntry) (doc.Document, bool, error) {
	current, err := e.store.GetDocument(ctx, gk.collection, gk.key)
	if err != nil && !errors.Is(err, storage.DocumentNotFoundError{}) {
		return doc.Document{}, false, fmt.Errorf("failed to load document for merge: %w", err)
	}
	localTS := current.UpdatedAt
	changed := false
	for _, entry := range group {
		if !entry.Timestamp.After(localTS) {
			continue
		}
		switch {
		case entry.Op == doc.OpDelete:
			current = doc.Tombstone(gk.collection, gk.key, entry.Timestamp)
		case current.Deleted || current.UpdatedAt.IsZero():
			current = doc.Document{
				Collection: gk.collection,
				Key:        gk.key,
				Body:       entry.Body,
				UpdatedAt:  entry.Timestamp,
			}
		default:
			merged, err := e.resolver.Merge(current.Body, entry.Body, localTS, entry.Timestamp)
			if err != nil {
				log.Warnw(ctx, "resolver failed, falling back to last-write-wins",
					"collection", gk.collection, "key", gk.key, "error", err)
				merged = entry.Body
			}
			current = doc.Document{
				Collection: gk.collection,
				Key:        gk.key,
				Body:       merged,
				UpdatedAt:  entry.Timestamp,
			}
		}
		localTS = entry.Timestamp
		changed = true
	}
	return current, changed, nil
}
