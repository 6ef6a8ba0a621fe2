package inbox

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EventHandler receives one server-sent event. data is the raw payload;
// handlers must tolerate payloads they don't recognize.
type EventHandler func(eventType string, data []byte)

// Stream keeps one live SSE subscription open for a role, reconnecting
// with backoff when the connection drops. The push channel is best
// effort: after every (re)connect onConnect fires so the owner can
// reconcile whatever was missed while offline.
type Stream struct {
	base      string
	roleID    string
	http      *http.Client
	backoff   Backoff
	onEvent   EventHandler
	onConnect func()
	logger    *zap.Logger
}

// NewStream takes the API base URL (the same one NewClient takes) and
// the subscribing role. onConnect may be nil.
func NewStream(base, roleID string, onEvent EventHandler, onConnect func(), logger *zap.Logger) *Stream {
	return &Stream{
		base:      strings.TrimRight(base, "/"),
		roleID:    roleID,
		http:      &http.Client{}, // no timeout: the stream is long-lived
		backoff:   DefaultBackoff(),
		onEvent:   onEvent,
		onConnect: onConnect,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, holding the subscription open and
// redialing on failure.
func (s *Stream) Run(ctx context.Context) {
	state := s.backoff.Initial()
	for {
		connected, err := s.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		state = s.retryState(state, connected)
		delay := s.backoff.Delay(state)
		s.logger.Info("event stream disconnected, retrying",
			zap.String("roleId", s.roleID),
			zap.Duration("retryIn", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// retryState picks the pacing for the next dial. A drop after a working
// link retries once at the base interval; only dials that never came up
// climb the backoff ladder.
func (s *Stream) retryState(state PollState, connected bool) PollState {
	if connected {
		return s.backoff.AfterSuccess(state)
	}
	return s.backoff.AfterFailure(state)
}

// connect dials and drains one subscription. connected reports whether
// the stream was established at all, distinguishing a dropped link from
// a dial that never came up.
func (s *Stream) connect(ctx context.Context) (connected bool, err error) {
	u := s.base + "/events?roleId=" + url.QueryEscape(s.roleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, &APIError{Status: resp.StatusCode}
	}

	s.logger.Info("event stream connected", zap.String("roleId", s.roleID))
	if s.onConnect != nil {
		s.onConnect()
	}
	return true, s.readEvents(resp.Body)
}

// readEvents parses the text/event-stream framing: "event:" and "data:"
// lines accumulate until a blank line dispatches the frame. Comment
// lines and fields we don't use are skipped.
func (s *Stream) readEvents(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	eventType := "message"
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				s.onEvent(eventType, []byte(data.String()))
			}
			eventType = "message"
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat comment, keep-alive only
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}
