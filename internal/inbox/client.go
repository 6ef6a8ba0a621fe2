// Package inbox is the client core: it merges live-pushed messages with
// REST-fetched backlog into one ordered, de-duplicated queue of incoming
// requests, and posts the responses. The server's store stays
// authoritative; everything here is a reconcilable derivation of it.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

// APIError carries the server's wire error code alongside the status.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d - %s", e.Status, e.Code)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Client is a thin REST client for the /api surface. List fetches are
// cancellable per (role, direction): starting a new one aborts the
// previous in-flight fetch so a slow older response can never overwrite
// newer state.
type Client struct {
	base string
	http *http.Client

	mu       sync.Mutex
	inflight map[string]*fetchHandle
	fetchGen uint64
}

type fetchHandle struct {
	gen    uint64
	cancel context.CancelFunc
}

// NewClient takes the API base URL, e.g. "http://127.0.0.1:8000/api".
func NewClient(base string) *Client {
	return &Client{
		base:     strings.TrimRight(base, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		inflight: make(map[string]*fetchHandle),
	}
}

// CreateMessage posts a message and returns its server-assigned id.
func (c *Client) CreateMessage(ctx context.Context, fromRoleID, toRoleID, text, kind, inReplyTo string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"fromRoleId": fromRoleID,
		"toRoleId":   toRoleID,
		"text":       text,
		"kind":       kind,
		"inReplyTo":  inReplyTo,
	})
	if err != nil {
		return "", err
	}

	raw, err := c.do(ctx, http.MethodPost, c.base+"/messages", body)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	return out.ID, nil
}

// ListSent fetches a page of the role's outbox.
func (c *Client) ListSent(ctx context.Context, roleID, cursor string, limit int) (*models.MessagePage, error) {
	return c.listMessages(ctx, roleID, "sent", cursor, limit)
}

// ListReceived fetches a page of the role's inbox.
func (c *Client) ListReceived(ctx context.Context, roleID, cursor string, limit int) (*models.MessagePage, error) {
	return c.listMessages(ctx, roleID, "received", cursor, limit)
}

// GetRole fetches display metadata for a role. Returns nil, nil when the
// role is gone.
func (c *Client) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	raw, err := c.do(ctx, http.MethodGet,
		c.base+"/roles/"+url.PathEscape(roleID), nil)
	if err != nil {
		var apiErr *APIError
		if asAPIError(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	var role models.Role
	if err := json.Unmarshal(raw, &role); err != nil {
		return nil, fmt.Errorf("decode role: %w", err)
	}
	return &role, nil
}

func (c *Client) listMessages(ctx context.Context, roleID, direction, cursor string, limit int) (*models.MessagePage, error) {
	key := roleID + "/" + direction
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if prev := c.inflight[key]; prev != nil {
		prev.cancel()
	}
	c.fetchGen++
	handle := &fetchHandle{gen: c.fetchGen, cancel: cancel}
	c.inflight[key] = handle
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if current, ok := c.inflight[key]; ok && current.gen == handle.gen {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
		cancel()
	}()

	u := fmt.Sprintf("%s/roles/%s/messages/%s?limit=%s",
		c.base, url.PathEscape(roleID), direction, strconv.Itoa(limit))
	if cursor != "" {
		u += "&cursor=" + url.QueryEscape(cursor)
	}

	raw, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return decodePage(raw)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Code = envelope.Error
		}
		return nil, apiErr
	}
	return raw, nil
}

// decodePage is the single deserialization path for message lists. Older
// deployments answered with a bare array or a {data:[…]} wrapper; the
// shape is detected once here and normalized to the canonical envelope.
func decodePage(raw []byte) (*models.MessagePage, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []models.MessageItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode message array: %w", err)
		}
		return &models.MessagePage{Items: items}, nil
	}

	var envelope struct {
		Items      []models.MessageItem `json:"items"`
		Data       []models.MessageItem `json:"data"`
		NextCursor string               `json:"nextCursor"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode message page: %w", err)
	}
	items := envelope.Items
	if items == nil {
		items = envelope.Data
	}
	if items == nil {
		items = []models.MessageItem{}
	}
	return &models.MessagePage{Items: items, NextCursor: envelope.NextCursor}, nil
}

func asAPIError(err error, target **APIError) bool {
	e, ok := err.(*APIError)
	if ok {
		*target = e
	}
	return ok
}
