package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/meshcall/internal/hub"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Participants connect from terminals and arbitrary origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter registers the health and websocket handlers.
func NewRouter(h *hub.Hub, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthCheck)
	mux.HandleFunc("/ws", ServeWs(h, logger))
	return mux
}

// HealthCheck reports liveness.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// ServeWs returns an http.HandlerFunc that upgrades requests to websockets
// and hands the connection to the hub. The optional codec query parameter
// picks the encoding the hub writes with.
func ServeWs(h *hub.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := hub.NewClient(h, conn, codec)
		if !h.Admit(client) {
			conn.Close()
			return
		}
		logger.Debug("connection upgraded", "client", client.ID, "remote", r.RemoteAddr, "codec", codec.Name())

		// These goroutines own the client's lifecycle.
		go client.WritePump()
		go client.ReadPump()
	}
}
