package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/live"
	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestAPI(t *testing.T) (*gin.Engine, *live.Broker) {
	t.Helper()
	store := memory.NewStore([]string{"24", "12", "25"}, zap.NewNop())
	broker := live.NewBroker(zap.NewNop())
	t.Cleanup(broker.Close)

	router := NewRouter(Deps{
		Roles:    store.Roles(),
		Tables:   store.Tables(),
		Messages: store.Messages(),
		Search:   store.Signals(),
		Broker:   broker,
		Logger:   zap.NewNop(),
	})
	return router, broker
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func wireError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &envelope)
	return envelope.Error
}

func createRole(t *testing.T, router *gin.Engine, name, tableID string, seatID int) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/roles", gin.H{
		"name": name, "avatar": "duck", "tableId": tableID, "seatId": seatID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role %s: status %d body %s", name, rec.Code, rec.Body.String())
	}
	var out struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &out)
	return out.ID
}

func TestCreateRoleTaxonomy(t *testing.T) {
	router, _ := newTestAPI(t)
	createRole(t, router, "alice", "24", 1)

	cases := []struct {
		name     string
		body     gin.H
		status   int
		wireCode string
	}{
		{"missing name", gin.H{"avatar": "a", "tableId": "24", "seatId": 2}, 400, "MISSING_FIELDS"},
		{"missing avatar", gin.H{"name": "n", "tableId": "24", "seatId": 2}, 400, "MISSING_FIELDS"},
		{"seat taken", gin.H{"name": "n", "avatar": "a", "tableId": "24", "seatId": 1}, 409, "SEAT_TAKEN"},
		{"unknown table", gin.H{"name": "n", "avatar": "a", "tableId": "99", "seatId": 1}, 404, "TABLE_NOT_FOUND"},
		{"seat out of range", gin.H{"name": "n", "avatar": "a", "tableId": "24", "seatId": 7}, 400, "SEAT_OUT_OF_RANGE"},
	}
	for _, c := range cases {
		rec := doJSON(t, router, http.MethodPost, "/api/roles", c.body)
		if rec.Code != c.status || wireError(t, rec) != c.wireCode {
			t.Fatalf("%s: got %d %s, want %d %s", c.name, rec.Code, rec.Body.String(), c.status, c.wireCode)
		}
	}
}

func TestRoleLifecycle(t *testing.T) {
	router, _ := newTestAPI(t)
	id := createRole(t, router, "alice", "24", 1)

	rec := doJSON(t, router, http.MethodGet, "/api/roles/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	var role models.Role
	decodeBody(t, rec, &role)
	if role.Name != "alice" || role.TableID != "24" || role.SeatID != 1 {
		t.Fatalf("role = %+v", role)
	}

	// Move to another seat, then verify via availability.
	rec = doJSON(t, router, http.MethodPatch, "/api/roles/"+id, gin.H{"tableId": "12", "seatId": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodGet, "/api/tables/12/availability", nil)
	var av models.Availability
	decodeBody(t, rec, &av)
	if !av.Taken[2] {
		t.Fatalf("availability after move = %+v", av)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/tables/24/availability", nil)
	decodeBody(t, rec, &av)
	if av.Taken[0] {
		t.Fatalf("origin seat still taken: %+v", av)
	}

	// Signals-only patch feeds search.
	rec = doJSON(t, router, http.MethodPatch, "/api/roles/"+id+"/signals", gin.H{"signals": []string{"phone charger"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch signals: %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/search/signals?q=charger", nil)
	var matches []models.SignalMatch
	decodeBody(t, rec, &matches)
	if len(matches) != 1 || matches[0].Role.ID != id {
		t.Fatalf("search = %+v", matches)
	}

	// Delete frees the seat; the role 404s afterwards.
	rec = doJSON(t, router, http.MethodDelete, "/api/roles/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/roles/"+id, nil)
	if rec.Code != http.StatusNotFound || wireError(t, rec) != "ROLE_NOT_FOUND" {
		t.Fatalf("get after delete: %d %s", rec.Code, rec.Body.String())
	}
}

func TestTableEndpoints(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doJSON(t, router, http.MethodGet, "/api/tables?near=24&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var tables []models.Table
	decodeBody(t, rec, &tables)
	if len(tables) != 2 || tables[0].ID != "24" || tables[1].ID != "25" {
		t.Fatalf("near=24 order = %+v", tables)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/tables/99", nil)
	if rec.Code != http.StatusNotFound || wireError(t, rec) != "TABLE_NOT_FOUND" {
		t.Fatalf("unknown table: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateMessagePublishesToBothParties(t *testing.T) {
	router, broker := newTestAPI(t)
	alice := createRole(t, router, "alice", "24", 1)
	bob := createRole(t, router, "bob", "24", 2)

	aliceSub := broker.Subscribe(alice)
	bobSub := broker.Subscribe(bob)
	drainReady(t, aliceSub)
	drainReady(t, bobSub)

	rec := doJSON(t, router, http.MethodPost, "/api/messages", gin.H{
		"fromRoleId": alice, "toRoleId": bob, "text": "need a pen", "kind": "request",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	in := nextPush(t, bobSub)
	if in.Dir != "in" || in.Text != "need a pen" || in.FromRoleName != "alice" {
		t.Fatalf("recipient push = %+v", in)
	}
	out := nextPush(t, aliceSub)
	if out.Dir != "out" || out.ID != in.ID {
		t.Fatalf("sender echo = %+v", out)
	}
}

func TestCreateMessageTaxonomy(t *testing.T) {
	router, _ := newTestAPI(t)
	alice := createRole(t, router, "alice", "24", 1)

	rec := doJSON(t, router, http.MethodPost, "/api/messages", gin.H{
		"fromRoleId": alice, "toRoleId": alice, "text": "   ",
	})
	if rec.Code != http.StatusBadRequest || wireError(t, rec) != "MISSING_FIELDS" {
		t.Fatalf("blank text: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/messages", gin.H{
		"fromRoleId": alice, "toRoleId": "ghost", "text": "hello",
	})
	if rec.Code != http.StatusNotFound || wireError(t, rec) != "ROLE_NOT_FOUND" {
		t.Fatalf("unknown recipient: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMessagePagesOverHTTP(t *testing.T) {
	router, _ := newTestAPI(t)
	alice := createRole(t, router, "alice", "24", 1)
	bob := createRole(t, router, "bob", "24", 2)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/messages", gin.H{
			"fromRoleId": alice, "toRoleId": bob, "text": fmt.Sprintf("m%d", i),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("send %d: %d", i, rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/api/roles/"+bob+"/messages/received?limit=2", nil)
	var page models.MessagePage
	decodeBody(t, rec, &page)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("first page = %+v", page)
	}
	if page.Items[0].From == nil || page.Items[0].From.Name != "alice" {
		t.Fatalf("From stub = %+v", page.Items[0].From)
	}

	rec = doJSON(t, router, http.MethodGet,
		"/api/roles/"+bob+"/messages/received?limit=2&cursor="+page.NextCursor, nil)
	var rest models.MessagePage
	decodeBody(t, rec, &rest)
	if len(rest.Items) != 1 || rest.NextCursor != "" {
		t.Fatalf("second page = %+v", rest)
	}

	sentRec := doJSON(t, router, http.MethodGet, "/api/roles/"+alice+"/messages/sent?limit=10", nil)
	var sent models.MessagePage
	decodeBody(t, sentRec, &sent)
	if len(sent.Items) != 3 || sent.Items[0].To == nil || sent.Items[0].To.Name != "bob" {
		t.Fatalf("sent page = %+v", sent)
	}
}

func TestSearchBlankQuery(t *testing.T) {
	router, _ := newTestAPI(t)
	rec := doJSON(t, router, http.MethodGet, "/api/search/signals?q=++", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("blank query: %d %s", rec.Code, rec.Body.String())
	}
}

func TestEventsStream(t *testing.T) {
	router, broker := newTestAPI(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	rec := doJSON(t, router, http.MethodGet, "/api/events", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing roleId: %d", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?roleId=r1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if ev, _ := readSSEFrame(t, reader); ev != "ready" {
		t.Fatalf("first frame = %q, want ready", ev)
	}

	// The ready frame proves the subscription is registered; a publish
	// now must reach this stream.
	broker.Publish("r1", "message", models.PushMessage{
		Message: models.Message{ID: "m1", Text: "hey"},
		Dir:     "in",
	})

	ev, data := readSSEFrame(t, reader)
	if ev != "message" {
		t.Fatalf("frame type = %q", ev)
	}
	var push models.PushMessage
	if err := json.Unmarshal([]byte(data), &push); err != nil {
		t.Fatalf("decode payload %q: %v", data, err)
	}
	if push.ID != "m1" || push.Dir != "in" {
		t.Fatalf("payload = %+v", push)
	}
}

func readSSEFrame(t *testing.T, reader *bufio.Reader) (eventType, data string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Errorf("read stream: %v", err)
				return
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "" && data != "":
				return
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	select {
	case <-done:
		return eventType, data
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for SSE frame")
		return "", ""
	}
}

func drainReady(t *testing.T, sub *live.Subscriber) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		if ev.Type != "ready" {
			t.Fatalf("first event = %q", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no ready ack")
	}
}

func nextPush(t *testing.T, sub *live.Subscriber) models.PushMessage {
	t.Helper()
	select {
	case ev := <-sub.Events():
		push, ok := ev.Payload.(models.PushMessage)
		if !ok {
			t.Fatalf("payload type = %T", ev.Payload)
		}
		return push
	case <-time.After(2 * time.Second):
		t.Fatalf("no push arrived")
		return models.PushMessage{}
	}
}
