package defense

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

// Handler provides HTTP endpoints for defense battery operations
type Handler struct {
	service *Service
	actor   ActorFunc
	logger  *slog.Logger
}

// NewHandler creates a new defense handler
func NewHandler(service *Service, actor ActorFunc, logger *slog.Logger) *Handler {
	return &Handler{service: service, actor: actor, logger: logger}
}

// RegisterRoutes sets up defense routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/players/:playerId/batteries", h.ListBatteries)
	r.POST("/batteries", h.Deploy)
	r.POST("/batteries/:batteryId/repair", h.Repair)
	r.DELETE("/batteries/:batteryId", h.Dismantle)
}

// ListBatteries handles GET /players/:playerId/batteries
func (h *Handler) ListBatteries(c *gin.Context) {
	playerID := c.Param("playerId")
	if !validation.IsValidID(playerID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_player_id"})
		return
	}
	batteries, err := h.service.ListBatteries(c.Request.Context(), playerID)
	if err != nil {
		h.logger.Error("list batteries failed", "player_id", playerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "defense_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batteries": batteries, "count": len(batteries)})
}

// Deploy handles POST /batteries
func (h *Handler) Deploy(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		Type string `json:"type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	b, txn, err := h.service.Deploy(c.Request.Context(), actor, req.Type)
	switch {
	case errors.Is(err, ErrUnknownBatteryType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_battery_type"})
	case errors.Is(err, treasury.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_funds"})
	case errors.Is(err, treasury.ErrClanTooSmall):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "clan_too_small"})
	case err != nil:
		h.logger.Error("deploy battery failed", "player_id", actor.PlayerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "defense_error"})
	default:
		c.JSON(http.StatusCreated, gin.H{"battery": b, "funding": txn})
	}
}

// Repair handles POST /batteries/:batteryId/repair
func (h *Handler) Repair(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	batteryID := c.Param("batteryId")
	if !validation.IsValidID(batteryID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_battery_id"})
		return
	}

	b, err := h.service.Repair(c.Request.Context(), actor, batteryID)
	switch {
	case errors.Is(err, ErrBatteryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "battery_not_found"})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_owner"})
	case errors.Is(err, ErrNotDamaged):
		c.JSON(http.StatusConflict, gin.H{"error": "not_damaged"})
	case errors.Is(err, treasury.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_funds"})
	case err != nil:
		h.logger.Error("repair battery failed", "battery_id", batteryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "defense_error"})
	default:
		c.JSON(http.StatusOK, b)
	}
}

// Dismantle handles DELETE /batteries/:batteryId
func (h *Handler) Dismantle(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	batteryID := c.Param("batteryId")
	if !validation.IsValidID(batteryID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_battery_id"})
		return
	}

	err := h.service.Dismantle(c.Request.Context(), actor, batteryID)
	switch {
	case errors.Is(err, ErrBatteryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "battery_not_found"})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_owner"})
	case err != nil:
		h.logger.Error("dismantle battery failed", "battery_id", batteryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "defense_error"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "dismantled"})
	}
}
