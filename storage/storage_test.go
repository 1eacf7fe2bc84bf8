package storage_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/query"
	"github.com/loambase/loam/storage"
	"github.com/stretchr/testify/require"
)

func ts(wall int64, logical int32, node string) hlc.Timestamp {
	return hlc.Timestamp{Wall: wall, Logical: logical, Node: node}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		assertion string
		f         func(*testing.T) storage.Store
	}{
		{
			"mem",
			func(t *testing.T) storage.Store {
				t.Helper()
				return storage.NewMemStore()
			},
		},
		{
			"sql",
			func(t *testing.T) storage.Store {
				t.Helper()
				db, err := sql.Open("sqlite3", ":memory:")
				require.NoError(t, err)
				t.Cleanup(func() { db.Close() })
				store, err := storage.NewSQLStore(db)
				require.NoError(t, err)
				return store
			},
		},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			t.Run("document round trip", func(t *testing.T) {
				store := c.f(t)
				expected := doc.Document{
					Collection: "users",
					Key:        "u1",
					Body:       []byte(`{"name":"Alice"}`),
					UpdatedAt:  ts(100, 0, "a"),
				}
				require.NoError(t, store.SaveDocument(ctx, expected))
				got, err := store.GetDocument(ctx, "users", "u1")
				require.NoError(t, err)
				require.Equal(t, expected, got)
			})

			t.Run("get missing document", func(t *testing.T) {
				store := c.f(t)
				_, err := store.GetDocument(ctx, "users", "nope")
				require.ErrorIs(t, err, storage.DocumentNotFoundError{})
			})

			t.Run("tombstone round trip", func(t *testing.T) {
				store := c.f(t)
				require.NoError(t, store.SaveDocument(ctx, doc.Document{
					Collection: "users",
					Key:        "u1",
					Body:       []byte(`{"name":"Alice"}`),
					UpdatedAt:  ts(100, 0, "a"),
				}))
				require.NoError(t, store.SaveDocument(ctx, doc.Tombstone("users", "u1", ts(200, 0, "a"))))
				got, err := store.GetDocument(ctx, "users", "u1")
				require.NoError(t, err)
				require.True(t, got.Deleted)
				require.Nil(t, got.Body)
				require.Equal(t, ts(200, 0, "a"), got.UpdatedAt)
			})

			t.Run("oplog append is idempotent on timestamp", func(t *testing.T) {
				store := c.f(t)
				entry := doc.OplogEntry{
					Collection: "users",
					Key:        "u1",
					Op:         doc.OpPut,
					Body:       []byte(`{"v":1}`),
					Timestamp:  ts(100, 0, "a"),
				}
				require.NoError(t, store.AppendOplogEntry(ctx, entry))
				require.NoError(t, store.AppendOplogEntry(ctx, entry))
				entries, err := store.OplogSince(ctx, hlc.Timestamp{})
				require.NoError(t, err)
				require.Len(t, entries, 1)
			})

			t.Run("oplog since returns strictly newer sorted ascending", func(t *testing.T) {
				store := c.f(t)
				stamps := []hlc.Timestamp{
					ts(300, 0, "b"),
					ts(100, 0, "a"),
					ts(100, 1, "a"),
					ts(200, 0, "c"),
				}
				for _, stamp := range stamps {
					require.NoError(t, store.AppendOplogEntry(ctx, doc.OplogEntry{
						Collection: "users",
						Key:        "u1",
						Op:         doc.OpPut,
						Body:       []byte(`{}`),
						Timestamp:  stamp,
					}))
				}

				entries, err := store.OplogSince(ctx, ts(100, 0, "a"))
				require.NoError(t, err)
				got := make([]hlc.Timestamp, 0, len(entries))
				for _, e := range entries {
					got = append(got, e.Timestamp)
				}
				require.Equal(t, []hlc.Timestamp{
					ts(100, 1, "a"),
					ts(200, 0, "c"),
					ts(300, 0, "b"),
				}, got)
			})

			t.Run("oplog since node tiebreak", func(t *testing.T) {
				store := c.f(t)
				for _, node := range []string{"a", "b", "c"} {
					require.NoError(t, store.AppendOplogEntry(ctx, doc.OplogEntry{
						Collection: "users",
						Key:        "u1",
						Op:         doc.OpPut,
						Body:       []byte(`{}`),
						Timestamp:  ts(100, 0, node),
					}))
				}
				entries, err := store.OplogSince(ctx, ts(100, 0, "a"))
				require.NoError(t, err)
				require.Len(t, entries, 2)
				require.Equal(t, "b", entries[0].Timestamp.Node)
				require.Equal(t, "c", entries[1].Timestamp.Node)
			})

			t.Run("latest timestamp", func(t *testing.T) {
				store := c.f(t)
				latest, err := store.LatestTimestamp(ctx)
				require.NoError(t, err)
				require.True(t, latest.IsZero())

				for _, stamp := range []hlc.Timestamp{ts(100, 0, "a"), ts(300, 2, "b"), ts(200, 0, "c")} {
					require.NoError(t, store.AppendOplogEntry(ctx, doc.OplogEntry{
						Collection: "users",
						Key:        "u1",
						Op:         doc.OpPut,
						Body:       []byte(`{}`),
						Timestamp:  stamp,
					}))
				}
				latest, err = store.LatestTimestamp(ctx)
				require.NoError(t, err)
				require.Equal(t, ts(300, 2, "b"), latest)
			})

			t.Run("apply batch writes documents and oplog together", func(t *testing.T) {
				store := c.f(t)
				row := doc.Document{
					Collection: "users",
					Key:        "u1",
					Body:       []byte(`{"v":1}`),
					UpdatedAt:  ts(100, 0, "a"),
				}
				entry := doc.OplogEntry{
					Collection: "users",
					Key:        "u1",
					Op:         doc.OpPut,
					Body:       []byte(`{"v":1}`),
					Timestamp:  ts(100, 0, "a"),
				}
				require.NoError(t, store.ApplyBatch(ctx, []doc.Document{row}, []doc.OplogEntry{entry}))

				got, err := store.GetDocument(ctx, "users", "u1")
				require.NoError(t, err)
				require.Equal(t, row, got)
				entries, err := store.OplogSince(ctx, hlc.Timestamp{})
				require.NoError(t, err)
				require.Len(t, entries, 1)
			})

			t.Run("query documents", func(t *testing.T) {
				store := c.f(t)
				seed := []struct {
					key  string
					body string
				}{
					{"u1", `{"name":"Alice","age":26}`},
					{"u2", `{"name":"Bob","age":31}`},
					{"u3", `{"name":"Carol","age":19}`},
				}
				for i, s := range seed {
					require.NoError(t, store.SaveDocument(ctx, doc.Document{
						Collection: "users",
						Key:        s.key,
						Body:       []byte(s.body),
						UpdatedAt:  ts(int64(100+i), 0, "a"),
					}))
				}
				require.NoError(t, store.SaveDocument(ctx, doc.Tombstone("users", "u4", ts(500, 0, "a"))))

				t.Run("all live documents", func(t *testing.T) {
					docs, err := store.QueryDocuments(ctx, "users", storage.QueryOptions{Take: -1})
					require.NoError(t, err)
					require.Len(t, docs, 3)
					require.Equal(t, "u1", docs[0].Key)
				})

				t.Run("predicate", func(t *testing.T) {
					docs, err := store.QueryDocuments(ctx, "users", storage.QueryOptions{
						Predicate: query.Gt("age", int64(20)),
						Take:      -1,
					})
					require.NoError(t, err)
					require.Len(t, docs, 2)
				})

				t.Run("order by field descending", func(t *testing.T) {
					docs, err := store.QueryDocuments(ctx, "users", storage.QueryOptions{
						OrderBy:    "age",
						Descending: true,
						Take:       -1,
					})
					require.NoError(t, err)
					require.Equal(t, []string{"u2", "u1", "u3"}, keys(docs))
				})

				t.Run("skip and take", func(t *testing.T) {
					docs, err := store.QueryDocuments(ctx, "users", storage.QueryOptions{
						Skip: 1,
						Take: 1,
					})
					require.NoError(t, err)
					require.Equal(t, []string{"u2"}, keys(docs))
				})

				t.Run("updated after wall", func(t *testing.T) {
					docs, err := store.QueryDocuments(ctx, "users", storage.QueryOptions{
						UpdatedAfterWall: 101,
						Take:             -1,
					})
					require.NoError(t, err)
					require.Equal(t, []string{"u3"}, keys(docs))
				})
			})

			t.Run("collections", func(t *testing.T) {
				store := c.f(t)
				require.NoError(t, store.SaveDocument(ctx, doc.Document{
					Collection: "users", Key: "u1", Body: []byte(`{}`), UpdatedAt: ts(1, 0, "a"),
				}))
				require.NoError(t, store.SaveDocument(ctx, doc.Document{
					Collection: "orders", Key: "o1", Body: []byte(`{}`), UpdatedAt: ts(2, 0, "a"),
				}))
				collections, err := store.Collections(ctx)
				require.NoError(t, err)
				require.Equal(t, []string{"orders", "users"}, collections)
			})

			t.Run("meta round trip", func(t *testing.T) {
				store := c.f(t)
				_, err := store.GetMeta(ctx, "node_id")
				require.ErrorIs(t, err, storage.MetaNotFoundError{})
				require.NoError(t, store.PutMeta(ctx, "node_id", "n-1"))
				value, err := store.GetMeta(ctx, "node_id")
				require.NoError(t, err)
				require.Equal(t, "n-1", value)
				require.NoError(t, store.PutMeta(ctx, "node_id", "n-2"))
				value, err = store.GetMeta(ctx, "node_id")
				require.NoError(t, err)
				require.Equal(t, "n-2", value)
			})
		})
	}
}

func keys(docs []doc.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key)
	}
	return out
}
