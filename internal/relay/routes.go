package relay

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

const (
	PathWS     = "/ws"
	PathHealth = "/health"
	PathRooms  = "/rooms"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Rooms carry no auth, so neither does the origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMux wires the relay's HTTP routes.
func NewMux(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(PathHealth, HealthHandler)
	mux.HandleFunc(PathRooms, RoomsHandler(hub))
	mux.HandleFunc(PathWS, ServeWs(hub))
	return mux
}

// ServeWs returns an http.HandlerFunc that upgrades to a websocket and
// hands the connection to the hub. The codec query parameter picks the
// frame encoding.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection", "err", err)
			return
		}

		client := NewClient(hub, conn, codec, uuid.NewString())
		if !hub.register(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// RoomsHandler lists live rooms and their members as JSON.
func RoomsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := hub.Registry().Rooms()
		out := make([]protocol.RoomInfo, 0, len(rooms))
		for _, room := range rooms {
			out = append(out, protocol.RoomInfo{
				ID:           room.ID,
				Participants: toWire(room.Participants),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			hub.log.Warn("writing rooms listing", "err", err)
		}
	}
}
