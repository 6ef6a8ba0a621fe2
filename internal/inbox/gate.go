package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

// Canned reply texts. Responses are one of these two strings or free
// text typed by the responder.
const (
	ReplyAccept  = "Sure."
	ReplyDecline = "Sorry, I can't help right now."
)

// ErrEmptyQueue is returned by reply operations when there is no head
// request to answer.
var ErrEmptyQueue = errors.New("inbox: no pending request")

// ErrReplyInFlight is returned when a reply is already being sent for
// the current head.
var ErrReplyInFlight = errors.New("inbox: reply already in flight")

// Notice is a side-channel observation the gate surfaces without
// queueing: an incoming response, or a failure worth showing.
type Notice struct {
	Kind    string // "response" or "error"
	Text    string
	From    string // sender role id
	Request *models.PushMessage
	Err     error
}

// Gate is the ordered, de-duplicated queue of incoming requests for one
// role. Pushed requests and reconciled backlog merge into a single FIFO;
// the head is answered, declined, or ignored, and the per-role watermark
// advances so handled requests never resurface.
type Gate struct {
	roleID string
	client *Client
	marks  *Watermarks
	notify func(Notice)
	logger *zap.Logger

	mu      sync.Mutex
	queue   []models.PushMessage
	sending bool
	meta    map[string]*models.Role
}

// NewGate wires the gate for roleID. notify may be nil; marks must not.
func NewGate(roleID string, client *Client, marks *Watermarks, notify func(Notice), logger *zap.Logger) *Gate {
	return &Gate{
		roleID: roleID,
		client: client,
		marks:  marks,
		notify: notify,
		logger: logger,
		meta:   make(map[string]*models.Role),
	}
}

// HandlePush is the Stream event handler. Requests addressed to this
// role enqueue; responses surface as a notice. Echoes of our own sends
// and payloads that don't parse are dropped.
func (g *Gate) HandlePush(eventType string, data []byte) {
	if eventType != "message" {
		return
	}
	var push models.PushMessage
	if err := json.Unmarshal(data, &push); err != nil {
		g.logger.Debug("dropping unparseable push", zap.Error(err))
		return
	}
	if push.Dir == "out" || push.ToRoleID != g.roleID {
		return
	}

	if models.NormalizeKind(push.Kind) == models.KindResponse {
		g.emit(Notice{Kind: "response", Text: push.Text, From: push.FromRoleID})
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.containsLocked(push.ID) {
		return
	}
	g.queue = append(g.queue, push)
	g.marks.Bump(g.roleID, push.CreatedAt)
}

// Reconcile rebuilds the missed-request backlog from the store: recent
// received requests minus ones we already responded to, minus ones at or
// below the watermark, oldest first, merged behind whatever is already
// queued. Safe to call on every (re)connect.
func (g *Gate) Reconcile(ctx context.Context) error {
	received, err := g.client.ListReceived(ctx, g.roleID, "", 200)
	if err != nil {
		return err
	}
	sent, err := g.client.ListSent(ctx, g.roleID, "", 200)
	if err != nil {
		return err
	}

	responded := make(map[string]struct{})
	for _, item := range sent.Items {
		if models.NormalizeKind(item.Kind) == models.KindResponse && item.InReplyTo != "" {
			responded[item.InReplyTo] = struct{}{}
		}
	}

	mark := g.marks.Get(g.roleID)
	var pending []models.MessageItem
	for _, item := range received.Items {
		if models.NormalizeKind(item.Kind) != models.KindRequest {
			continue
		}
		if _, ok := responded[item.ID]; ok {
			continue
		}
		if !mark.IsZero() && !item.CreatedAt.After(mark) {
			continue
		}
		pending = append(pending, item)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, item := range pending {
		if g.containsLocked(item.ID) {
			continue
		}
		push := models.PushMessage{
			Message: models.Message{
				ID:         item.ID,
				FromRoleID: item.FromRoleID,
				ToRoleID:   item.ToRoleID,
				Text:       item.Text,
				Kind:       models.KindRequest,
				InReplyTo:  item.InReplyTo,
				CreatedAt:  item.CreatedAt,
			},
			Dir: "in",
		}
		if item.From != nil {
			push.FromRoleName = item.From.Name
		}
		g.queue = append(g.queue, push)
		g.marks.Bump(g.roleID, item.CreatedAt)
	}
	return nil
}

// Head returns a copy of the oldest pending request, nil when empty.
func (g *Gate) Head() *models.PushMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return nil
	}
	head := g.queue[0]
	return &head
}

// Len reports the pending queue depth.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Accept answers the head request with the canned acceptance.
func (g *Gate) Accept(ctx context.Context) error {
	return g.reply(ctx, ReplyAccept)
}

// Decline answers the head request with the canned refusal.
func (g *Gate) Decline(ctx context.Context) error {
	return g.reply(ctx, ReplyDecline)
}

// Reply answers the head request with free text.
func (g *Gate) Reply(ctx context.Context, text string) error {
	return g.reply(ctx, text)
}

// Ignore drops the head without sending anything. The watermark was
// already bumped on enqueue, so the request will not resurface.
func (g *Gate) Ignore() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) > 0 {
		g.queue = g.queue[1:]
	}
}

// reply posts a response linked to the head and pops it only on
// success. A failed send leaves the head in place for a retry.
func (g *Gate) reply(ctx context.Context, text string) error {
	g.mu.Lock()
	if len(g.queue) == 0 {
		g.mu.Unlock()
		return ErrEmptyQueue
	}
	if g.sending {
		g.mu.Unlock()
		return ErrReplyInFlight
	}
	head := g.queue[0]
	g.sending = true
	g.mu.Unlock()

	_, err := g.client.CreateMessage(ctx, g.roleID, head.FromRoleID, text, models.KindResponse, head.ID)

	g.mu.Lock()
	g.sending = false
	if err == nil && len(g.queue) > 0 && g.queue[0].ID == head.ID {
		g.queue = g.queue[1:]
	}
	g.mu.Unlock()

	if err != nil {
		g.emit(Notice{Kind: "error", From: head.FromRoleID, Request: &head, Err: err})
		return err
	}
	return nil
}

// SenderMeta returns display metadata for a sender role, fetching it at
// most once per id. A deleted sender caches as nil.
func (g *Gate) SenderMeta(ctx context.Context, roleID string) *models.Role {
	g.mu.Lock()
	if cached, ok := g.meta[roleID]; ok {
		g.mu.Unlock()
		return cached
	}
	g.mu.Unlock()

	role, err := g.client.GetRole(ctx, roleID)
	if err != nil {
		g.logger.Debug("sender metadata fetch failed", zap.Error(err))
		return nil
	}
	g.mu.Lock()
	g.meta[roleID] = role
	g.mu.Unlock()
	return role
}

func (g *Gate) containsLocked(id string) bool {
	for _, queued := range g.queue {
		if queued.ID == id {
			return true
		}
	}
	return false
}

func (g *Gate) emit(n Notice) {
	if g.notify != nil {
		g.notify(n)
	}
}
