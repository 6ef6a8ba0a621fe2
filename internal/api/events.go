package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/live"
)

// EventsHandler exposes the broker as an SSE endpoint. One request is one
// subscription; closing the request tears the subscription down
// synchronously.
type EventsHandler struct {
	broker *live.Broker
	logger *zap.Logger
}

func NewEventsHandler(broker *live.Broker, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{broker: broker, logger: logger}
}

// Stream handles GET /api/events?roleId=….
func (h *EventsHandler) Stream(c *gin.Context) {
	roleID := c.Query("roleId")
	if roleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roleId required"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	sub := h.broker.Subscribe(roleID)
	defer h.broker.Unsubscribe(sub)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeFrame(c.Writer, ev); err != nil {
				// A dead transport ends the subscription; the client
				// reconciles over REST when it comes back.
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, ev live.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil // unmarshalable payload: skip the frame, keep the stream
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
