package webhttp

import (
	"net/http"

	"github.com/gorilla/websocket"
)

type RouteOptions struct {
	// Feed enables GET /events when non-nil.
	Feed     EventFeedService
	Upgrader websocket.Upgrader
}

// Mount registers the gateway routes on mux.
func Mount(mux *http.ServeMux, svc ChatHTTPService, opts RouteOptions) {
	mux.HandleFunc("GET /health", NewHealthHandler())
	mux.HandleFunc("POST /recommend", NewRecommendHandler(svc))
	mux.HandleFunc("POST /recommend-streaming", NewRecommendStreamingHandler(svc))
	mux.HandleFunc("POST /chat-streaming", NewChatStreamingHandler(svc))
	mux.HandleFunc("DELETE /chat/{session_id}", NewEndSessionHandler(svc))
	if opts.Feed != nil {
		mux.HandleFunc("GET /events", NewEventsHandler(opts.Feed, opts.Upgrader))
	}
}
