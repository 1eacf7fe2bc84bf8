package routes

import (
	"github.com/gorilla/mux"
	"github.com/loambase/loam/db"
	"github.com/loambase/loam/peers"
)

/*
Package routes is the node's HTTP surface: an operator convenience for
reading and writing documents and inspecting peer state. Replication never
rides HTTP - peers talk over the binary sync protocol only.
*/

////////////////////////////////////////////////////////////////////////////////

// MakeRoutes assembles the HTTP router over a database and peer directory.
func MakeRoutes(database *db.DB, dir *peers.Directory) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/db/{collection}/{key}", newGetHandler(database)).Methods("GET")
	r.HandleFunc("/db/{collection}/{key}", newPutHandler(database)).Methods("PUT")
	r.HandleFunc("/db/{collection}/{key}", newDeleteHandler(database)).Methods("DELETE")
	r.HandleFunc("/db/{collection}/query", newQueryHandler(database)).Methods("POST")
	r.HandleFunc("/collections", newCollectionsHandler(database)).Methods("GET")
	r.HandleFunc("/peers", newPeersHandler(dir)).Methods("GET")
	r.HandleFunc("/status", newStatusHandler(database, dir)).Methods("GET")
	return r
}
