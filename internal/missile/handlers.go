package missile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/treasury"
	"github.com/mbd888/warclan/internal/validation"
)

// ActorFunc extracts the authenticated actor from the request context.
type ActorFunc func(c *gin.Context) (clans.Actor, bool)

// Handler provides HTTP endpoints for missile operations
type Handler struct {
	service *Service
	actor   ActorFunc
	logger  *slog.Logger
}

// NewHandler creates a new missile handler
func NewHandler(service *Service, actor ActorFunc, logger *slog.Logger) *Handler {
	return &Handler{service: service, actor: actor, logger: logger}
}

// RegisterRoutes sets up missile routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/clans/:clanId/missiles", h.ListByClan)
	r.GET("/missiles/:missileId", h.Get)
	r.POST("/missiles", h.Create)
	r.POST("/missiles/:missileId/components", h.AssembleComponent)
	r.POST("/missiles/:missileId/launch", h.Launch)
	r.POST("/missiles/:missileId/disassemble", h.Disassemble)
}

// RegisterAdminRoutes sets up admin-only missile routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/missiles/:missileId/disarm", h.Disarm)
}

// ListByClan handles GET /clans/:clanId/missiles
func (h *Handler) ListByClan(c *gin.Context) {
	clanID := c.Param("clanId")
	if !validation.IsValidID(clanID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_clan_id"})
		return
	}
	missiles, err := h.service.ListByClan(c.Request.Context(), clanID)
	if err != nil {
		h.logger.Error("list missiles failed", "clan_id", clanID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missile_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"missiles": missiles, "count": len(missiles)})
}

// Get handles GET /missiles/:missileId
func (h *Handler) Get(c *gin.Context) {
	missileID := c.Param("missileId")
	if !validation.IsValidID(missileID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_missile_id"})
		return
	}
	m, err := h.service.Get(c.Request.Context(), missileID)
	if errors.Is(err, ErrMissileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "missile_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("get missile failed", "missile_id", missileID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missile_error"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// Create handles POST /missiles
func (h *Handler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		WarheadType string `json:"warheadType" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	m, txn, err := h.service.Create(c.Request.Context(), actor, req.WarheadType)
	switch {
	case errors.Is(err, ErrUnknownWarhead):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_warhead_type"})
	case errors.Is(err, treasury.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_funds"})
	case errors.Is(err, treasury.ErrClanTooSmall):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "clan_too_small"})
	case err != nil:
		h.logger.Error("create missile failed", "player_id", actor.PlayerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missile_error"})
	default:
		c.JSON(http.StatusCreated, gin.H{"missile": m, "funding": txn})
	}
}

// AssembleComponent handles POST /missiles/:missileId/components
func (h *Handler) AssembleComponent(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	missileID := c.Param("missileId")
	if !validation.IsValidID(missileID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_missile_id"})
		return
	}

	var req struct {
		Component string `json:"component" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	m, txn, err := h.service.AssembleComponent(c.Request.Context(), actor, missileID, req.Component)
	switch {
	case errors.Is(err, ErrMissileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "missile_not_found"})
	case errors.Is(err, ErrNotClanMissile):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_clan_missile"})
	case errors.Is(err, ErrUnknownComponent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_component"})
	case errors.Is(err, ErrComponentInstalled):
		c.JSON(http.StatusConflict, gin.H{"error": "component_already_installed"})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "not_assembling"})
	case errors.Is(err, treasury.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_funds"})
	case err != nil:
		h.logger.Error("assemble component failed", "missile_id", missileID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missile_error"})
	default:
		c.JSON(http.StatusOK, gin.H{"missile": m, "funding": txn})
	}
}

// Launch handles POST /missiles/:missileId/launch
func (h *Handler) Launch(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	missileID := c.Param("missileId")
	if !validation.IsValidID(missileID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_missile_id"})
		return
	}

	var req struct {
		TargetID string `json:"targetId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	m, err := h.service.Launch(c.Request.Context(), actor, missileID, req.TargetID)
	switch {
	case errors.Is(err, ErrMissileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "missile_not_found"})
	case errors.Is(err, ErrNotClanMissile):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_clan_missile"})
	case errors.Is(err, ErrOwnClanTarget):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "own_clan_target"})
	case errors.Is(err, ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "not_ready"})
	case err != nil:
		h.logger.Error("launch missile failed", "missile_id", missileID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missile_error"})
	default:
		c.JSON(http.StatusOK, m)
	}
}

// Disassemble handles POST /missiles/:missileId/disassemble
func (h *Handler) Disassemble(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	missileID := c.Param("missileId")
	if !validation.IsValidID(missileID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_missile_id"})
		return
	}

	m, err := h.service.Disassemble(c.Request.Context(), actor, missileID)
	switch {
	case errors.Is(err, ErrMissileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "missile_not_found"})
	case errors.Is(err, ErrNotClanMissile):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_clan_missile"})
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "not_disassemblable"})
	case err != nil:
		h.logger.Error("disassemble missile failed", "missile_id", missileID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missile_error"})
	default:
		c.JSON(http.StatusOK, m)
	}
}

// Disarm handles POST /admin/missiles/:missileId/disarm
func (h *Handler) Disarm(c *gin.Context) {
	missileID := c.Param("missileId")
	if !validation.IsValidID(missileID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_missile_id"})
		return
	}

	var req struct {
		AdminID string `json:"adminId" binding:"required"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	m, err := h.service.Disarm(c.Request.Context(), req.AdminID, missileID, validation.SanitizeString(req.Reason, validation.MaxStringLength))
	switch {
	case errors.Is(err, ErrMissileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "missile_not_found"})
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "already_resolved"})
	case err != nil:
		h.logger.Error("disarm missile failed", "missile_id", missileID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missile_error"})
	default:
		c.JSON(http.StatusOK, m)
	}
}
