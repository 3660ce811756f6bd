package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	// Origin checks belong to the gateway in front of this service.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	hub *Hub
	rdb *redis.Client
	ctx context.Context
}

func NewServer(hub *Hub, rdb *redis.Client, ctx context.Context) *Server {
	return &Server{
		hub: hub,
		rdb: rdb,
		ctx: ctx,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	return r
}

// RunRedisSubscriber feeds the "broadcast" channel into the hub. Blocks
// until the subscription's context is cancelled.
func (s *Server) RunRedisSubscriber() {
	sub := s.rdb.Subscribe(s.ctx, "broadcast")
	defer sub.Close()

	ch := sub.Channel()
	for msg := range ch {
		s.hub.broadcast <- []byte(msg.Payload)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "broadcast-service",
	})
}

// handleWS subscribes the connection to one list. listId and socketId are
// required; socketId is the id the client sends with its HTTP writes so
// its own changes are not echoed back over this connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	listID := r.URL.Query().Get("listId")
	socketID := r.URL.Query().Get("socketId")
	if listID == "" || socketID == "" {
		http.Error(w, "listId and socketId are required", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("broadcast: ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:      s.hub,
		conn:     conn,
		listID:   listID,
		socketID: socketID,
		userID:   userID,
		send:     make(chan []byte, 256),
	}
	s.hub.register <- client

	welcome := map[string]any{
		"type":   "welcome",
		"listId": listID,
		"now":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	go client.writePump()
	go client.readPump()
}
