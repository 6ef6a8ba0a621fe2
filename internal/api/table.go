package api

import (
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository"
)

type TableHandler struct {
	tables repository.TableRepository
	logger *zap.Logger
}

func NewTableHandler(tables repository.TableRepository, logger *zap.Logger) *TableHandler {
	return &TableHandler{tables: tables, logger: logger}
}

// List handles GET /api/tables?near=24&limit=5: the nearby-tables view,
// ordered by numeric distance from the reference table when one is given.
func (h *TableHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 5)
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}

	tables, err := h.tables.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if near := c.Query("near"); near != "" {
		sortByDistance(tables, near)
	}
	if len(tables) > limit {
		tables = tables[:limit]
	}
	c.JSON(http.StatusOK, tables)
}

// GetByID handles GET /api/tables/:id: full occupancy for the seat picker.
func (h *TableHandler) GetByID(c *gin.Context) {
	t, err := h.tables.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": codeTableNotFound})
		return
	}
	c.JSON(http.StatusOK, t)
}

// Availability handles GET /api/tables/:id/availability, the lightweight
// polling shape for seat pickers.
func (h *TableHandler) Availability(c *gin.Context) {
	t, err := h.tables.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": codeTableNotFound})
		return
	}

	av := models.Availability{ID: t.ID}
	for i, seat := range t.Seats {
		av.Taken[i] = seat != nil
	}
	c.JSON(http.StatusOK, av)
}

// sortByDistance orders tables by |id - near| numerically; ids that do
// not parse sort last in their original order.
func sortByDistance(tables []models.Table, near string) {
	ref, err := strconv.ParseFloat(near, 64)
	if err != nil {
		return
	}
	dist := func(t models.Table) float64 {
		n, err := strconv.ParseFloat(t.ID, 64)
		if err != nil {
			return math.Inf(1)
		}
		return math.Abs(n - ref)
	}
	sort.SliceStable(tables, func(i, j int) bool {
		return dist(tables[i]) < dist(tables[j])
	})
}
