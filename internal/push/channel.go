// Package push maintains the client's subscription to server-pushed list
// changes. One subscription is open at a time: subscribing to a new list
// closes the previous socket. Inbound bursts are coalesced, and a client's
// own change echoing back is recognised and not re-applied.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/magnusoverli/sushe-online-sub002/internal/liststore"
	"github.com/magnusoverli/sushe-online-sub002/internal/model"
	"github.com/magnusoverli/sushe-online-sub002/internal/snapshot"
)

const defaultCoalesceWindow = 100 * time.Millisecond

type Option func(*Channel)

func WithCoalesceWindow(d time.Duration) Option {
	return func(c *Channel) { c.window = d }
}

// WithOnChange installs the re-render hook, fired after a foreign change
// has been reconciled into the list store.
func WithOnChange(f func(listID string)) Option {
	return func(c *Channel) { c.onChange = f }
}

// Channel is the client half of the push transport. Reconnection is the
// caller's decision: a dropped socket is logged, never reopened here.
type Channel struct {
	baseURL  string // ws://host:port
	userID   string
	socketID string
	store    *liststore.Store
	snaps    *snapshot.Tracker
	onChange func(listID string)
	window   time.Duration

	mu     sync.Mutex
	listID string
	conn   *websocket.Conn
	timer  *time.Timer
	latest []model.Entry // newest entry state seen during the window
	have   bool
}

func New(baseURL, userID, socketID string, store *liststore.Store, snaps *snapshot.Tracker, opts ...Option) *Channel {
	c := &Channel{
		baseURL:  baseURL,
		userID:   userID,
		socketID: socketID,
		store:    store,
		snaps:    snaps,
		onChange: func(string) {},
		window:   defaultCoalesceWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe opens the push socket for listID, replacing any previous
// subscription.
func (c *Channel) Subscribe(ctx context.Context, listID string) error {
	if listID == "" {
		return fmt.Errorf("push: empty list id")
	}

	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("listId", listID)
	q.Set("socketId", c.socketID)
	q.Set("userId", c.userID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("push: subscribe %s: %w", listID, err)
	}

	c.mu.Lock()
	c.dropLocked()
	c.listID = listID
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn, listID)
	return nil
}

// Unsubscribe closes the current subscription, if any. An in-flight write
// for the list is unaffected; only the push socket goes away.
func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	c.dropLocked()
	c.listID = ""
	c.mu.Unlock()
}

// dropLocked closes the socket and discards any half-coalesced state.
// Caller holds c.mu.
func (c *Channel) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.latest = nil
	c.have = false
}

func (c *Channel) readLoop(conn *websocket.Conn, listID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn
			c.mu.Unlock()
			if current {
				log.Printf("push: %s: connection closed: %v", listID, err)
			}
			return
		}

		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			// A corrupt message is logged and dropped; the channel stays up.
			log.Printf("push: %s: corrupt message dropped: %v", listID, err)
			continue
		}
		c.handle(conn, ev)
	}
}

func (c *Channel) handle(conn *websocket.Conn, ev model.Event) {
	c.mu.Lock()
	if c.conn != conn || ev.ListID != c.listID {
		// Late message for a list we have navigated away from.
		c.mu.Unlock()
		return
	}

	switch ev.Type {
	case model.EventDeleted:
		listID := c.listID
		c.dropLocked()
		c.listID = ""
		c.mu.Unlock()
		c.store.Delete(listID)
		c.snaps.Clear(listID)
		c.onChange(listID)
		return

	case model.EventMeta:
		c.mu.Unlock()
		var pl model.ListPayload
		if err := json.Unmarshal(ev.Payload, &pl); err != nil {
			log.Printf("push: %s: corrupt meta payload: %v", ev.ListID, err)
			return
		}
		c.store.Put(pl.List)
		c.onChange(ev.ListID)
		return

	case model.EventReordered, model.EventUpdated, model.EventReplaced:
		var pl model.EntriesPayload
		if err := json.Unmarshal(ev.Payload, &pl); err != nil {
			c.mu.Unlock()
			log.Printf("push: %s: corrupt entries payload: %v", ev.ListID, err)
			return
		}
		// Coalesce bursts: only the newest state matters, and several rapid
		// server-side writes collapse into one reconciliation.
		c.latest = pl.Entries
		c.have = true
		listID := c.listID
		if c.timer != nil {
			c.timer.Stop()
		}
		c.timer = time.AfterFunc(c.window, func() { c.reconcile(listID) })
		c.mu.Unlock()
		return

	case "welcome":
		c.mu.Unlock()

	default:
		c.mu.Unlock()
		log.Printf("push: %s: unknown event type %q dropped", ev.ListID, ev.Type)
	}
}

func (c *Channel) reconcile(listID string) {
	c.mu.Lock()
	if !c.have || c.listID != listID {
		c.mu.Unlock()
		return
	}
	entries := c.latest
	c.latest = nil
	c.have = false
	c.mu.Unlock()

	// Our own save echoing back carries exactly the state we already
	// hold; only a content-equal push spends the one-shot mark. The
	// server may exclude the origin socket entirely, in which case the
	// echo never arrives and the mark must not mute anything else.
	if current, ok := c.store.Items(listID); ok && reflect.DeepEqual(current, entries) {
		c.snaps.ConsumeLocalSave(listID)
		return
	}

	// Different content is a real external change; an armed mark guards
	// state that no longer exists.
	c.snaps.ConsumeLocalSave(listID)
	c.store.SetItems(listID, entries)
	c.onChange(listID)
}
