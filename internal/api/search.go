package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/cache"
	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository"
)

type SearchHandler struct {
	search repository.SignalSearchRepository
	cache  *cache.SearchCache // nil disables caching
	logger *zap.Logger
}

func NewSearchHandler(search repository.SignalSearchRepository, searchCache *cache.SearchCache, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{search: search, cache: searchCache, logger: logger}
}

// Signals handles GET /api/search/signals?q=charger&limit=30.
func (h *SearchHandler) Signals(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []models.SignalMatch{})
		return
	}
	limit := queryInt(c, "limit", 30)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	if rows, ok := h.cache.Get(c.Request.Context(), q, limit); ok {
		c.JSON(http.StatusOK, rows)
		return
	}

	rows, err := h.search.Search(c.Request.Context(), q, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.cache.Put(c.Request.Context(), q, limit, rows)
	c.JSON(http.StatusOK, rows)
}
