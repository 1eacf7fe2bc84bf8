package routes

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/loambase/loam/db"
	"github.com/loambase/loam/query"
	"github.com/loambase/loam/storage"
	"github.com/loambase/loam/util/httputil"
)

// queryRequest carries a filter-language expression, e.g.
// `name = "Alice" and age > 25 order by age desc limit 10`.
type queryRequest struct {
	Filter string `json:"filter"`
}

func newQueryHandler(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vars := mux.Vars(r)
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(ctx, w, "failed to decode query request: %s", err)
			return
		}
		opts := storage.QueryOptions{Take: -1}
		if req.Filter != "" {
			parsed, err := query.Parse(req.Filter)
			if err != nil {
				httputil.BadRequest(ctx, w, "invalid filter: %s", err)
				return
			}
			opts = storage.QueryOptions{
				Predicate:        parsed.Predicate,
				UpdatedAfterWall: parsed.SinceMillis,
				Skip:             parsed.Skip,
				Take:             parsed.Take,
				OrderBy:          parsed.OrderBy,
				Descending:       parsed.Desc,
			}
		}
		docs, err := database.Query(ctx, vars["collection"], opts)
		if err != nil {
			httputil.InternalServerError(ctx, w, "failed to query documents: %s", err)
			return
		}
		results := make([]documentResponse, 0, len(docs))
		for _, d := range docs {
			results = append(results, toResponse(d))
		}
		httputil.WriteJSON(ctx, w, results)
	}
}
