package cache_test

import (
	"fmt"
	"testing"

	"github.com/loambase/loam/cache"
	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/stretchr/testify/require"
)

func row(collection, key, body string) doc.Document {
	return doc.Document{
		Collection: collection,
		Key:        key,
		Body:       []byte(body),
		UpdatedAt:  hlc.Timestamp{Wall: 1, Node: "a"},
	}
}

func TestPutGet(t *testing.T) {
	c := cache.NewDocCache(16, 4)
	c.Put(row("users", "u1", `{"v":1}`))

	got, ok := c.Get("users", "u1")
	require.True(t, ok)
	require.JSONEq(t, `{"v":1}`, string(got.Body))

	_, ok = c.Get("users", "missing")
	require.False(t, ok)
}

func TestCollectionsDoNotCollide(t *testing.T) {
	c := cache.NewDocCache(16, 4)
	c.Put(row("users", "k", `{"v":"users"}`))
	c.Put(row("orders", "k", `{"v":"orders"}`))

	got, ok := c.Get("users", "k")
	require.True(t, ok)
	require.JSONEq(t, `{"v":"users"}`, string(got.Body))
	got, ok = c.Get("orders", "k")
	require.True(t, ok)
	require.JSONEq(t, `{"v":"orders"}`, string(got.Body))
}

func TestInvalidate(t *testing.T) {
	c := cache.NewDocCache(16, 4)
	c.Put(row("users", "u1", `{"v":1}`))
	c.Invalidate("users", "u1")
	_, ok := c.Get("users", "u1")
	require.False(t, ok)

	// Invalidating an uncached key is a no-op.
	c.Invalidate("users", "never")
}

func TestEviction(t *testing.T) {
	c := cache.NewDocCache(8, 1)
	for i := 0; i < 20; i++ {
		c.Put(row("users", fmt.Sprintf("u%d", i), `{}`))
	}
	var cached int
	for i := 0; i < 20; i++ {
		if _, ok := c.Get("users", fmt.Sprintf("u%d", i)); ok {
			cached++
		}
	}
	require.Equal(t, 8, cached)

	// The most recently written entries survive.
	_, ok := c.Get("users", "u19")
	require.True(t, ok)
	_, ok = c.Get("users", "u0")
	require.False(t, ok)
}

func TestReset(t *testing.T) {
	c := cache.NewDocCache(16, 4)
	c.Put(row("users", "u1", `{}`))
	c.Reset()
	_, ok := c.Get("users", "u1")
	require.False(t, ok)
}

func TestUpdateExisting(t *testing.T) {
	c := cache.NewDocCache(16, 4)
	c.Put(row("users", "u1", `{"v":1}`))
	c.Put(row("users", "u1", `{"v":2}`))
	got, ok := c.Get("users", "u1")
	require.True(t, ok)
	require.JSONEq(t, `{"v":2}`, string(got.Body))
}
