package routes_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/loambase/loam/db"
	"github.com/loambase/loam/peers"
	"github.com/loambase/loam/routes"
	"github.com/loambase/loam/storage"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *db.DB, *peers.Directory) {
	t.Helper()
	database, err := db.New(context.Background(), storage.NewMemStore())
	require.NoError(t, err)
	dir := peers.NewDirectory(database.NodeID())
	server := httptest.NewServer(routes.MakeRoutes(database, dir))
	t.Cleanup(server.Close)
	return server, database, dir
}

func doRequest(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestDocumentLifecycle(t *testing.T) {
	server, _, _ := newServer(t)

	res := doRequest(t, http.MethodPut, server.URL+"/db/users/u1", []byte(`{"name":"Alice"}`))
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = doRequest(t, http.MethodGet, server.URL+"/db/users/u1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc struct {
		Collection string          `json:"collection"`
		Key        string          `json:"key"`
		Body       json.RawMessage `json:"body"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&doc))
	require.Equal(t, "users", doc.Collection)
	require.Equal(t, "u1", doc.Key)
	require.JSONEq(t, `{"name":"Alice"}`, string(doc.Body))

	res = doRequest(t, http.MethodDelete, server.URL+"/db/users/u1", nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res = doRequest(t, http.MethodGet, server.URL+"/db/users/u1", nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPutRejectsInvalidJSON(t *testing.T) {
	server, _, _ := newServer(t)
	res := doRequest(t, http.MethodPut, server.URL+"/db/users/u1", []byte(`{broken`))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestQueryEndpoint(t *testing.T) {
	server, database, _ := newServer(t)
	ctx := context.Background()
	_, err := database.Put(ctx, "users", "u1", []byte(`{"name":"Alice","age":26}`))
	require.NoError(t, err)
	_, err = database.Put(ctx, "users", "u2", []byte(`{"name":"Bob","age":31}`))
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{"filter": `age > 30`})
	require.NoError(t, err)
	res := doRequest(t, http.MethodPost, server.URL+"/db/users/query", body)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var docs []struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&docs))
	require.Len(t, docs, 1)
	require.Equal(t, "u2", docs[0].Key)
}

func TestQueryEndpointRejectsBadFilter(t *testing.T) {
	server, _, _ := newServer(t)
	body, err := json.Marshal(map[string]string{"filter": `age >`})
	require.NoError(t, err)
	res := doRequest(t, http.MethodPost, server.URL+"/db/users/query", body)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCollectionsEndpoint(t *testing.T) {
	server, database, _ := newServer(t)
	_, err := database.Put(context.Background(), "users", "u1", []byte(`{}`))
	require.NoError(t, err)

	res := doRequest(t, http.MethodGet, server.URL+"/collections", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var collections []string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&collections))
	require.Equal(t, []string{"users"}, collections)
}

func TestPeersEndpoint(t *testing.T) {
	server, _, dir := newServer(t)
	dir.Upsert(peers.Descriptor{NodeID: "node-b", Addr: "10.0.0.2:7420"})

	res := doRequest(t, http.MethodGet, server.URL+"/peers", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var descriptors []peers.Descriptor
	require.NoError(t, json.NewDecoder(res.Body).Decode(&descriptors))
	require.Len(t, descriptors, 1)
	require.Equal(t, "node-b", descriptors[0].NodeID)
}

func TestStatusEndpoint(t *testing.T) {
	server, database, _ := newServer(t)
	_, err := database.Put(context.Background(), "users", "u1", []byte(`{}`))
	require.NoError(t, err)

	res := doRequest(t, http.MethodGet, server.URL+"/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var status struct {
		NodeID    string `json:"node_id"`
		Peers     int    `json:"peers"`
		OplogHead struct {
			Node string `json:"node"`
		} `json:"oplog_head"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&status))
	require.Equal(t, database.NodeID(), status.NodeID)
	require.Equal(t, database.NodeID(), status.OplogHead.Node)
	require.Zero(t, status.Peers)
}
