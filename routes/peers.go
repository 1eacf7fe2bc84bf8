package routes

import (
	"net/http"
	"sort"

	"github.com/loambase/loam/peers"
	"github.com/loambase/loam/util/httputil"
)

func newPeersHandler(dir *peers.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		snapshot := dir.Snapshot()
		sort.Slice(snapshot, func(i, j int) bool {
			return snapshot[i].NodeID < snapshot[j].NodeID
		})
		httputil.WriteJSON(ctx, w, snapshot)
	}
}
