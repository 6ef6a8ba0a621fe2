package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository"
)

// RoleHandler serves the role CRUD surface. The handlers themselves are
// thin; the occupancy invariants live in the repository transactions and
// surface here only as the error taxonomy.
type RoleHandler struct {
	roles  repository.RoleRepository
	logger *zap.Logger
}

func NewRoleHandler(roles repository.RoleRepository, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, logger: logger}
}

type createRoleRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Avatar  string   `json:"avatar"`
	Signals []string `json:"signals"`
	TableID string   `json:"tableId"`
	SeatID  int      `json:"seatId"`
}

// Create handles POST /api/roles: the final "claim this seat" step.
func (h *RoleHandler) Create(c *gin.Context) {
	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeMissingFields})
		return
	}
	if req.Name == "" || req.Avatar == "" || req.TableID == "" || req.SeatID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeMissingFields})
		return
	}

	role := models.Role{
		ID:        req.ID,
		Name:      req.Name,
		Avatar:    req.Avatar,
		Signals:   req.Signals,
		TableID:   req.TableID,
		SeatID:    req.SeatID,
		CreatedAt: time.Now().UTC(),
	}
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	if role.Signals == nil {
		role.Signals = []string{}
	}

	if err := h.roles.Create(c.Request.Context(), &role); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": role.ID})
}

type patchRoleRequest struct {
	Name    *string   `json:"name"`
	Avatar  *string   `json:"avatar"`
	Signals *[]string `json:"signals"`
	TableID *string   `json:"tableId"`
	SeatID  *int      `json:"seatId"`
}

// Patch handles PATCH /api/roles/:id: rename, avatar, signals, or a seat
// move (validated like a fresh claim).
func (h *RoleHandler) Patch(c *gin.Context) {
	var req patchRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeMissingFields})
		return
	}

	upd := repository.RoleUpdate{
		Name:    req.Name,
		Avatar:  req.Avatar,
		Signals: req.Signals,
		TableID: req.TableID,
		SeatID:  req.SeatID,
	}
	if err := h.roles.Update(c.Request.Context(), c.Param("id"), upd); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type patchSignalsRequest struct {
	Signals []string `json:"signals"`
}

// PatchSignals handles PATCH /api/roles/:id/signals, the lightweight
// signals-only edit.
func (h *RoleHandler) PatchSignals(c *gin.Context) {
	var req patchSignalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeMissingFields})
		return
	}
	if req.Signals == nil {
		req.Signals = []string{}
	}
	if err := h.roles.UpdateSignals(c.Request.Context(), c.Param("id"), req.Signals); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete handles DELETE /api/roles/:id: sign-out. The seat frees and the
// role's messages and signal index go with it, atomically.
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetByID handles GET /api/roles/:id.
func (h *RoleHandler) GetByID(c *gin.Context) {
	role, err := h.roles.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if role == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": codeRoleNotFound})
		return
	}
	c.JSON(http.StatusOK, role)
}

type roleSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List handles GET /api/roles?search=: a name-substring picker, capped at
// 20 rows.
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context(), c.Query("search"), 20)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]roleSummary, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleSummary{ID: r.ID, Name: r.Name})
	}
	c.JSON(http.StatusOK, out)
}
