package routes

import (
	"net/http"

	"github.com/loambase/loam/db"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/peers"
	"github.com/loambase/loam/util/httputil"
)

// statusResponse summarizes the node for operators.
type statusResponse struct {
	NodeID    string        `json:"node_id"`
	Clock     hlc.Timestamp `json:"clock"`
	OplogHead hlc.Timestamp `json:"oplog_head"`
	Peers     int           `json:"peers"`
}

func newStatusHandler(database *db.DB, dir *peers.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		head, err := database.Store().LatestTimestamp(ctx)
		if err != nil {
			httputil.InternalServerError(ctx, w, "failed to read oplog head: %s", err)
			return
		}
		httputil.WriteJSON(ctx, w, statusResponse{
			NodeID:    database.NodeID(),
			Clock:     database.Clock().Current(),
			OplogHead: head,
			Peers:     dir.Len(),
		})
	}
}
