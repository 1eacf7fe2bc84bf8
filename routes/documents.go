package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/loambase/loam/db"
	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/storage"
	"github.com/loambase/loam/util/httputil"
)

// documentResponse is the HTTP shape of a document row.
type documentResponse struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Body       json.RawMessage `json:"body,omitempty"`
	UpdatedAt  hlc.Timestamp   `json:"updated_at"`
}

func toResponse(d doc.Document) documentResponse {
	return documentResponse{
		Collection: d.Collection,
		Key:        d.Key,
		Body:       json.RawMessage(d.Body),
		UpdatedAt:  d.UpdatedAt,
	}
}

func newGetHandler(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vars := mux.Vars(r)
		d, err := database.Get(ctx, vars["collection"], vars["key"])
		if err != nil {
			if errors.Is(err, storage.DocumentNotFoundError{}) {
				httputil.NotFound(ctx, w, "document %s/%s not found", vars["collection"], vars["key"])
				return
			}
			httputil.InternalServerError(ctx, w, "failed to read document: %s", err)
			return
		}
		httputil.WriteJSON(ctx, w, toResponse(d))
	}
}

func newPutHandler(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vars := mux.Vars(r)
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<20))
		if err != nil {
			httputil.BadRequest(ctx, w, "failed to read request body: %s", err)
			return
		}
		if !json.Valid(body) {
			httputil.BadRequest(ctx, w, "request body is not valid JSON")
			return
		}
		d, err := database.Put(ctx, vars["collection"], vars["key"], body)
		if err != nil {
			httputil.InternalServerError(ctx, w, "failed to put document: %s", err)
			return
		}
		httputil.WriteJSON(ctx, w, toResponse(d))
	}
}

func newDeleteHandler(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vars := mux.Vars(r)
		if err := database.Delete(ctx, vars["collection"], vars["key"]); err != nil {
			httputil.InternalServerError(ctx, w, "failed to delete document: %s", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func newCollectionsHandler(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		collections, err := database.Collections(ctx)
		if err != nil {
			httputil.InternalServerError(ctx, w, "failed to list collections: %s", err)
			return
		}
		if collections == nil {
			collections = []string{}
		}
		httputil.WriteJSON(ctx, w, collections)
	}
}
