package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/loambase/loam/doc"
	"golang.org/x/exp/maps"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/query"
)

/*
memstore is an in-memory implementation of the store contract. It is only
suitable for usage in testing. The mutex makes every operation atomic, which
satisfies the batch atomicity requirement trivially.
*/

////////////////////////////////////////////////////////////////////////////////

type docKey struct {
	collection string
	key        string
}

type memStore struct {
	mtx   sync.Mutex
	docs  map[docKey]doc.Document
	oplog []doc.OplogEntry
	seen  map[hlc.Timestamp]bool
	meta  map[string]string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() Store {
	return &memStore{
		docs: map[docKey]doc.Document{},
		seen: map[hlc.Timestamp]bool{},
		meta: map[string]string{},
	}
}

func (s *memStore) SaveDocument(ctx context.Context, d doc.Document) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.saveDocumentLocked(d)
	return nil
}

func (s *memStore) saveDocumentLocked(d doc.Document) {
	if d.Deleted {
		d.Body = nil
	}
	s.docs[docKey{d.Collection, d.Key}] = d
}

func (s *memStore) GetDocument(ctx context.Context, collection, key string) (doc.Document, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	d, ok := s.docs[docKey{collection, key}]
	if !ok {
		return doc.Document{}, DocumentNotFoundError{collection, key}
	}
	return d, nil
}

func (s *memStore) AppendOplogEntry(ctx context.Context, entry doc.OplogEntry) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.appendOplogEntryLocked(entry)
	return nil
}

func (s *memStore) appendOplogEntryLocked(entry doc.OplogEntry) {
	if s.seen[entry.Timestamp] {
		return
	}
	s.seen[entry.Timestamp] = true
	s.oplog = append(s.oplog, entry)
}

func (s *memStore) OplogSince(ctx context.Context, ts hlc.Timestamp) ([]doc.OplogEntry, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var entries []doc.OplogEntry
	for _, entry := range s.oplog {
		if entry.Timestamp.After(ts) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *memStore) LatestTimestamp(ctx context.Context) (hlc.Timestamp, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var max hlc.Timestamp
	for _, entry := range s.oplog {
		max = hlc.Max(max, entry.Timestamp)
	}
	return max, nil
}

func (s *memStore) ApplyBatch(ctx context.Context, docs []doc.Document, entries []doc.OplogEntry) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, d := range docs {
		s.saveDocumentLocked(d)
	}
	for _, entry := range entries {
		s.appendOplogEntryLocked(entry)
	}
	return nil
}

func (s *memStore) QueryDocuments(
	ctx context.Context, collection string, opts QueryOptions) ([]doc.Document, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var docs []doc.Document
	for _, d := range s.docs {
		if d.Collection != collection || d.Deleted {
			continue
		}
		if opts.UpdatedAfterWall > 0 && d.UpdatedAt.Wall <= opts.UpdatedAfterWall {
			continue
		}
		if !query.Matches(opts.Predicate, d.Body) {
			continue
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docLess(docs[i], docs[j], opts.OrderBy)
	})
	if opts.Descending {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(docs) {
			return nil, nil
		}
		docs = docs[opts.Skip:]
	}
	if opts.Take >= 0 && opts.Take < len(docs) {
		docs = docs[:opts.Take]
	}
	return docs, nil
}

func docLess(a, b doc.Document, orderBy string) bool {
	if orderBy == "" {
		return a.Key < b.Key
	}
	av, bv := fieldValue(a, orderBy), fieldValue(b, orderBy)
	if c := valueCompare(av, bv); c != 0 {
		return c < 0
	}
	return a.Key < b.Key
}

func fieldValue(d doc.Document, field string) any {
	var parsed map[string]any
	if err := json.Unmarshal(d.Body, &parsed); err != nil {
		return nil
	}
	var cur any = parsed
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

func valueCompare(a, b any) int {
	an, aok := a.(float64)
	bn, bok := b.(float64)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	return 0
}

func (s *memStore) Collections(ctx context.Context) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	set := map[string]bool{}
	for _, d := range s.docs {
		if !d.Deleted {
			set[d.Collection] = true
		}
	}
	collections := maps.Keys(set)
	sort.Strings(collections)
	return collections, nil
}

func (s *memStore) GetMeta(ctx context.Context, key string) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	value, ok := s.meta[key]
	if !ok {
		return "", MetaNotFoundError{key}
	}
	return value, nil
}

func (s *memStore) PutMeta(ctx context.Context, key, value string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.meta[key] = value
	return nil
}

func (s *memStore) Close() error {
	return nil
}
