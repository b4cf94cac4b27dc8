package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/mahaj/chunkchat/pkg/cache"
	"github.com/mahaj/chunkchat/pkg/model"
	"github.com/mahaj/chunkchat/pkg/snowflake"
	"go.uber.org/zap"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// Publisher puts events on the fan-out bus.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

type Hub struct {
	rooms       map[string]map[*Client]bool // room_id -> clients
	userClients map[string]map[*Client]bool // user_id -> clients
	events      chan model.Event            // raised by local clients, bound for the bus
	register    chan *Client
	unregister  chan *Client
	mu          sync.RWMutex

	pub   Publisher
	cache *cache.Cache
	ids   *snowflake.Node
	log   *zap.Logger
}

func NewHub(pub Publisher, c *cache.Cache, ids *snowflake.Node, log *zap.Logger) *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		events:      make(chan model.Event, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		pub:         pub,
		cache:       c,
		ids:         ids,
		log:         log,
	}
}

// dmParticipants splits "dm:<a>:<b>".
func dmParticipants(roomID string) ([]string, bool) {
	if !strings.HasPrefix(roomID, "dm:") {
		return nil, false
	}
	parts := strings.Split(roomID, ":")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return nil, false
	}
	return parts[1:], true
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.add(client)
			if err := h.cache.JoinRoom(ctx, client.RoomID, client.ID); err != nil {
				h.log.Warn("record presence", zap.String("user", client.ID), zap.String("room", client.RoomID), zap.Error(err))
			}
			h.touch(ctx, client.ID)
			h.log.Info("client registered", zap.String("user", client.ID), zap.String("room", client.RoomID))
			h.publish(ctx, model.Event{Type: model.EventPresence, RoomID: client.RoomID, UserID: client.ID}, presence(statusOnline))

		case client := <-h.unregister:
			inRoom, online, ok := h.remove(client)
			if !ok {
				continue
			}
			if !inRoom {
				if err := h.cache.LeaveRoom(ctx, client.RoomID, client.ID); err != nil {
					h.log.Warn("clear presence", zap.String("user", client.ID), zap.String("room", client.RoomID), zap.Error(err))
				}
			}
			if !online {
				if err := h.cache.ClearStatus(ctx, client.ID); err != nil {
					h.log.Warn("clear status", zap.String("user", client.ID), zap.Error(err))
				}
			}
			h.log.Info("client unregistered", zap.String("user", client.ID), zap.String("room", client.RoomID))
			h.publish(ctx, model.Event{Type: model.EventPresence, RoomID: client.RoomID, UserID: client.ID}, presence(statusOffline))

		case ev := <-h.events:
			h.publish(ctx, ev, nil)
		}
	}
}

func presence(status string) map[string]string {
	return map[string]string{"status": status}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[c.RoomID] == nil {
		h.rooms[c.RoomID] = make(map[*Client]bool)
	}
	h.rooms[c.RoomID][c] = true

	if h.userClients[c.ID] == nil {
		h.userClients[c.ID] = make(map[*Client]bool)
	}
	h.userClients[c.ID][c] = true
}

// remove drops c and closes its send channel. It reports whether the user
// still has a connection in c's room and anywhere at all; ok is false if c
// was already gone.
func (h *Hub) remove(c *Client) (inRoom, online, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, found := h.rooms[c.RoomID]
	if !found || !clients[c] {
		return false, false, false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, c.RoomID)
	}
	close(c.send)

	if uc := h.userClients[c.ID]; uc != nil {
		delete(uc, c)
		if len(uc) == 0 {
			delete(h.userClients, c.ID)
		}
	}

	for other := range h.rooms[c.RoomID] {
		if other.ID == c.ID {
			inRoom = true
			break
		}
	}
	return inRoom, len(h.userClients[c.ID]) > 0, true
}

// recipients lists the connections an event for roomID goes to. Direct
// message rooms reach both participants wherever they are connected.
// h.mu must be held.
func (h *Hub) recipients(roomID string) []*Client {
	seen := make(map[*Client]bool)
	var out []*Client
	collect := func(set map[*Client]bool) {
		for c := range set {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}

	collect(h.rooms[roomID])
	if users, ok := dmParticipants(roomID); ok {
		for _, u := range users {
			collect(h.userClients[u])
		}
	}
	return out
}

// Deliver hands an event from the bus to local connections. A client whose
// buffer is full is dropped.
func (h *Hub) Deliver(ev model.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encode event", zap.Error(err))
		return
	}

	// held while sending so remove cannot close a channel under us
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.recipients(ev.RoomID) {
		select {
		case c.send <- raw:
		default:
			h.log.Warn("dropping slow client", zap.String("user", c.ID), zap.String("room", c.RoomID))
			go func(c *Client) { h.unregister <- c }(c)
		}
	}
}

// raise queues an event from a local client for the bus.
func (h *Hub) raise(ev model.Event) {
	select {
	case h.events <- ev:
	default:
		h.log.Warn("event queue full", zap.String("type", string(ev.Type)), zap.String("room", ev.RoomID))
	}
}

func (h *Hub) publish(ctx context.Context, ev model.Event, payload any) {
	if ev.ID == 0 {
		ev.ID = h.ids.Generate()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			h.log.Error("encode payload", zap.Error(err))
			return
		}
		ev.Payload = raw
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.pub.Publish(pctx, ev); err != nil {
		h.log.Warn("publish event", zap.String("type", string(ev.Type)), zap.String("room", ev.RoomID), zap.Error(err))
	}
}

// touch refreshes the user's online status.
func (h *Hub) touch(ctx context.Context, userID string) {
	tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.cache.SetStatus(tctx, userID, statusOnline); err != nil {
		h.log.Warn("refresh status", zap.String("user", userID), zap.Error(err))
	}
}
