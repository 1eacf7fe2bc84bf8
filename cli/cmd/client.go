package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/peers"
)

/*
Thin HTTP client for the node's operator surface. All non-serve commands go
through this.
*/

////////////////////////////////////////////////////////////////////////////////

type client struct {
	base string
	http *http.Client
}

func newClient() *client {
	return &client{
		base: serverURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type documentResponse struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Body       json.RawMessage `json:"body,omitempty"`
	UpdatedAt  hlc.Timestamp   `json:"updated_at"`
}

type statusResponse struct {
	NodeID    string        `json:"node_id"`
	Clock     hlc.Timestamp `json:"clock"`
	OplogHead hlc.Timestamp `json:"oplog_head"`
	Peers     int           `json:"peers"`
}

func (c *client) docURL(collection, key string) string {
	return fmt.Sprintf("%s/db/%s/%s", c.base, url.PathEscape(collection), url.PathEscape(key))
}

func (c *client) do(method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if res.StatusCode >= 400 {
		var errRes struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &errRes); err == nil && errRes.Error != "" {
			return fmt.Errorf("%s", errRes.Error)
		}
		return fmt.Errorf("server returned %s", res.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *client) put(collection, key string, body []byte) (documentResponse, error) {
	var doc documentResponse
	err := c.do(http.MethodPut, c.docURL(collection, key), body, &doc)
	return doc, err
}

func (c *client) get(collection, key string) (documentResponse, error) {
	var doc documentResponse
	err := c.do(http.MethodGet, c.docURL(collection, key), nil, &doc)
	return doc, err
}

func (c *client) delete(collection, key string) error {
	return c.do(http.MethodDelete, c.docURL(collection, key), nil, nil)
}

func (c *client) query(collection, filter string) ([]documentResponse, error) {
	body, err := json.Marshal(map[string]string{"filter": filter})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	var docs []documentResponse
	target := fmt.Sprintf("%s/db/%s/query", c.base, url.PathEscape(collection))
	if err := c.do(http.MethodPost, target, body, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *client) collections() ([]string, error) {
	var collections []string
	err := c.do(http.MethodGet, c.base+"/collections", nil, &collections)
	return collections, err
}

func (c *client) peers() ([]peers.Descriptor, error) {
	var descriptors []peers.Descriptor
	err := c.do(http.MethodGet, c.base+"/peers", nil, &descriptors)
	return descriptors, err
}

func (c *client) status() (statusResponse, error) {
	var status statusResponse
	err := c.do(http.MethodGet, c.base+"/status", nil, &status)
	return status, err
}
