package server

import (
	"log"

	"github.com/gorilla/mux"

	"github.com/nickray/healthlake/pkg/blob"
	"github.com/nickray/healthlake/pkg/cache"
	"github.com/nickray/healthlake/pkg/config"
	"github.com/nickray/healthlake/pkg/engine/local"
	"github.com/nickray/healthlake/pkg/ingest"
	"github.com/nickray/healthlake/pkg/rollup"
)

// Initialize builds the full request-handling stack on top of store and
// returns the router plus the sync notification hub (the caller runs its
// loop).
func Initialize(cfg config.Config, store blob.Store) (*mux.Router, *ingest.SyncHub, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	eng := local.New(store)
	log.Println("Local query engine created")

	hub := ingest.NewSyncHub()
	syncHandler := ingest.NewHandler(ingest.NewWriter(store), hub)
	log.Println("Sync handler created")

	generator := rollup.NewGenerator(store, eng, cfg.Database, cfg.Bucket)
	manager := cache.NewManager(store, generator, loc)
	readHandler := NewHandler(manager, loc)
	log.Printf("Read handlers created (reference timezone %s)", loc)

	return NewRouter(syncHandler, readHandler, hub), hub, nil
}

// NewRouter wires the HTTP surface.
func NewRouter(syncHandler *ingest.Handler, readHandler *Handler, hub *ingest.SyncHub) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/sync", syncHandler.HandleSync).Methods("POST")
	router.HandleFunc("/detail/{date}", readHandler.HandleDetail).Methods("GET")
	router.HandleFunc("/workouts/{date}", readHandler.HandleWorkouts).Methods("GET")
	router.HandleFunc("/summary/{month}", readHandler.HandleSummary).Methods("GET")
	router.HandleFunc("/global", readHandler.HandleGlobal).Methods("GET")

	router.HandleFunc("/v1/health", readHandler.HandleHealth).Methods("GET")
	router.HandleFunc("/v1/ws", hub.HandleWebSocket).Methods("GET")

	return router
}
