// Package broadcast routes list change events from redis to websocket
// subscribers. A connection subscribes to exactly one list; events carry
// the socket id of the connection whose write produced them, and that
// connection never receives its own event back.
package broadcast

import (
	"encoding/json"
	"log"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

type Hub struct {
	// Subscriptions keyed by list id.
	lists map[string]map[*Client]bool

	// Inbound events from redis, fanned out per list.
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		lists:      make(map[string]map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			subs, ok := h.lists[client.listID]
			if !ok {
				subs = make(map[*Client]bool)
				h.lists[client.listID] = subs
			}
			subs[client] = true

		case client := <-h.unregister:
			h.drop(client)

		case message := <-h.broadcast:
			h.route(message)
		}
	}
}

// route delivers one event to every subscriber of its list except the
// originating connection. A subscriber that cannot keep up is dropped; it
// is expected to reconnect and refetch.
func (h *Hub) route(message []byte) {
	var ev model.Event
	if err := json.Unmarshal(message, &ev); err != nil {
		log.Printf("broadcast: drop malformed event: %v", err)
		return
	}
	if ev.ListID == "" {
		log.Printf("broadcast: drop event %q with no list id", ev.Type)
		return
	}
	for client := range h.lists[ev.ListID] {
		if ev.OriginSocketID != "" && client.socketID == ev.OriginSocketID {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	subs, ok := h.lists[client.listID]
	if !ok {
		return
	}
	if _, ok := subs[client]; !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.lists, client.listID)
	}
	close(client.send)
	_ = client.conn.Close()
}
