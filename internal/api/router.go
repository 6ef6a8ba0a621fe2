package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/cache"
	"github.com/heiloMeow/nudgeeq/internal/live"
	"github.com/heiloMeow/nudgeeq/internal/repository"
	"github.com/heiloMeow/nudgeeq/internal/ws"
)

// Deps carries everything the router needs. All registries (broker, hub,
// cache) are injected so tests can stand up a full router around their
// own instances.
type Deps struct {
	Roles    repository.RoleRepository
	Tables   repository.TableRepository
	Messages repository.MessageRepository
	Search   repository.SignalSearchRepository

	SearchCache *cache.SearchCache // optional
	Broker      *live.Broker
	Hub         *ws.Hub // optional; /ws is not registered without it

	Health func(ctx context.Context) error // optional store liveness probe
	Logger *zap.Logger
}

// NewRouter assembles the full HTTP surface under /api, plus /ws.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	roles := NewRoleHandler(d.Roles, d.Logger)
	tables := NewTableHandler(d.Tables, d.Logger)
	messages := NewMessageHandler(d.Messages, d.Roles, d.Broker, d.Logger)
	search := NewSearchHandler(d.Search, d.SearchCache, d.Logger)
	events := NewEventsHandler(d.Broker, d.Logger)

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "NudgeeQ server OK")
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", func(c *gin.Context) {
			if d.Health != nil {
				if err := d.Health(c.Request.Context()); err != nil {
					c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		apiGroup.GET("/tables", tables.List)
		apiGroup.GET("/tables/:id", tables.GetByID)
		apiGroup.GET("/tables/:id/availability", tables.Availability)

		apiGroup.GET("/roles", roles.List)
		apiGroup.POST("/roles", roles.Create)
		apiGroup.GET("/roles/:id", roles.GetByID)
		apiGroup.PATCH("/roles/:id", roles.Patch)
		apiGroup.PATCH("/roles/:id/signals", roles.PatchSignals)
		apiGroup.DELETE("/roles/:id", roles.Delete)

		apiGroup.GET("/roles/:id/messages/sent", messages.ListSent)
		apiGroup.GET("/roles/:id/messages/received", messages.ListReceived)
		apiGroup.POST("/messages", messages.Create)

		apiGroup.GET("/search/signals", search.Signals)

		apiGroup.GET("/events", events.Stream)
	}

	if d.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			d.Hub.Handle(c.Writer, c.Request)
		})
	}

	return r
}
