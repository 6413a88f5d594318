package handlers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"teamup/internal/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	feedPingInterval = 30 * time.Second
	feedReadTimeout  = 90 * time.Second
	feedWriteTimeout = 10 * time.Second

	feedKindLocal = "feed_kind"
	feedKeyLocal  = "feed_key"
)

// FeedMessage is one frame sent to a change feed client
type FeedMessage struct {
	Type  string      `json:"type"` // "subscribed", "snapshot", "pong", "error"
	Kind  string      `json:"kind,omitempty"`
	Key   string      `json:"key,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// FeedHandler streams change feed snapshots over WebSocket
type FeedHandler struct {
	feed     *services.ChangeFeed
	projects *services.ProjectStore
}

// NewFeedHandler creates a new change feed handler
func NewFeedHandler(feed *services.ChangeFeed, projects *services.ProjectStore) *FeedHandler {
	return &FeedHandler{feed: feed, projects: projects}
}

// Authorize validates ?kind=&id= before the upgrade. Project feeds are
// public, applicant lists are for the project owner, and user feeds are
// for the user themselves; id defaults to the caller for user feeds.
// GET /ws/feed
func (h *FeedHandler) Authorize(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	kind := services.FeedKind(c.Query("kind"))
	if !kind.Valid() {
		return badRequest(c, fmt.Sprintf("unknown feed kind %q", kind))
	}
	key := c.Query("id")

	switch kind {
	case services.FeedProject:
		if key == "" {
			return badRequest(c, "id is required")
		}
	case services.FeedProjectApplications:
		if key == "" {
			return badRequest(c, "id is required")
		}
		if _, err := requireOwner(c, h.projects, key, user.UserID); err != nil {
			return respondError(c, err)
		}
	case services.FeedUserApplications, services.FeedUser:
		if key == "" {
			key = user.UserID
		}
		if key != user.UserID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You can only watch your own data",
			})
		}
	}

	c.Locals(feedKindLocal, string(kind))
	c.Locals(feedKeyLocal, key)
	return c.Next()
}

// Handle runs one subscription for the lifetime of the connection. Only
// the newest undelivered snapshot is kept, so a slow client skips
// intermediate states but always ends on the current one.
func (h *FeedHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	kind := services.FeedKind(fmt.Sprint(c.Locals(feedKindLocal)))
	key := fmt.Sprint(c.Locals(feedKeyLocal))
	userID, _ := c.Locals("user_id").(string)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := newLatestFrame()
	out.control(FeedMessage{Type: "subscribed", Kind: string(kind), Key: key})
	sub, err := h.subscribe(ctx, kind, key, func(data interface{}) {
		out.set(FeedMessage{Type: "snapshot", Kind: string(kind), Key: key, Data: data})
	})
	if err != nil {
		log.Printf("❌ [FEED] Subscribe failed for %s (user %s): %v", connID, userID, err)
		c.WriteJSON(FeedMessage{Type: "error", Error: "Failed to subscribe"})
		return
	}
	defer sub.Unsubscribe()

	log.Printf("📡 [FEED] Connection %s opened: user=%s kind=%s key=%s", connID, userID, kind, key)
	defer log.Printf("📡 [FEED] Connection %s closed", connID)

	pongs := make(chan struct{}, 1)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.writeLoop(ctx, c, out, pongs, sub.Done())
	}()

	c.SetReadDeadline(time.Now().Add(feedReadTimeout))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(feedReadTimeout))
		return nil
	})

	// Read loop: the client only sends heartbeats; any read error ends the connection
	for ctx.Err() == nil {
		var msg FeedMessage
		if err := c.ReadJSON(&msg); err != nil {
			break
		}
		c.SetReadDeadline(time.Now().Add(feedReadTimeout))
		if msg.Type == "ping" {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
	cancel()
	<-writerDone
}

func (h *FeedHandler) subscribe(ctx context.Context, kind services.FeedKind, key string, send func(interface{})) (*services.Subscription, error) {
	switch kind {
	case services.FeedProject:
		return h.feed.SubscribeProject(ctx, key, func(s services.ProjectSnapshot) { send(s) })
	case services.FeedProjectApplications:
		return h.feed.SubscribeApplicationsByProject(ctx, key, func(s services.ApplicationsSnapshot) { send(s) })
	case services.FeedUserApplications:
		return h.feed.SubscribeApplicationsByUser(ctx, key, func(s services.ApplicationsSnapshot) { send(s) })
	case services.FeedUser:
		return h.feed.SubscribeUser(ctx, key, func(s services.UserSnapshot) { send(s) })
	}
	return nil, fmt.Errorf("%w: unknown feed kind %q", services.ErrInvalidInput, kind)
}

// writeLoop is the only writer on the connection
func (h *FeedHandler) writeLoop(ctx context.Context, c *websocket.Conn, out *latestFrame, pongs <-chan struct{}, stopped <-chan struct{}) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	closeConn := func(code int) {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(feedWriteTimeout))
	}

	for {
		select {
		case <-ctx.Done():
			closeConn(websocket.CloseNormalClosure)
			return
		case <-stopped:
			// The feed shut down underneath us
			closeConn(websocket.CloseGoingAway)
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
				return
			}
		case <-pongs:
			if err := h.write(c, FeedMessage{Type: "pong"}); err != nil {
				return
			}
		case <-out.ready:
			for _, msg := range out.take() {
				if err := h.write(c, msg); err != nil {
					log.Printf("⚠️  [FEED] Write failed: %v", err)
					return
				}
			}
		}
	}
}

func (h *FeedHandler) write(c *websocket.Conn, msg FeedMessage) error {
	c.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return c.WriteJSON(msg)
}

// latestFrame holds pending control frames and the newest snapshot
type latestFrame struct {
	mu       sync.Mutex
	controls []FeedMessage
	snapshot *FeedMessage
	ready    chan struct{}
}

func newLatestFrame() *latestFrame {
	return &latestFrame{ready: make(chan struct{}, 1)}
}

func (l *latestFrame) set(msg FeedMessage) {
	l.mu.Lock()
	l.snapshot = &msg
	l.mu.Unlock()
	l.notify()
}

func (l *latestFrame) control(msg FeedMessage) {
	l.mu.Lock()
	l.controls = append(l.controls, msg)
	l.mu.Unlock()
	l.notify()
}

func (l *latestFrame) notify() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// take drains pending frames, controls first
func (l *latestFrame) take() []FeedMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := l.controls
	l.controls = nil
	if l.snapshot != nil {
		msgs = append(msgs, *l.snapshot)
		l.snapshot = nil
	}
	return msgs
}
