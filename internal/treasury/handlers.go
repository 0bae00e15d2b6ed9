package treasury

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/validation"
)

// Handler provides HTTP endpoints for treasury operations
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new treasury handler
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up treasury routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/clans/:clanId/treasury", h.GetTreasury)
	r.GET("/clans/:clanId/treasury/history", h.GetHistory)
	r.POST("/clans/:clanId/treasury/validate", h.ValidateFunds)
}

// RegisterAdminRoutes sets up admin-only treasury routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/clans/:clanId/treasury/credit", h.Credit)
}

// GetTreasury handles GET /clans/:clanId/treasury
func (h *Handler) GetTreasury(c *gin.Context) {
	clanID := c.Param("clanId")
	if !validation.IsValidID(clanID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_clan_id"})
		return
	}

	t, err := h.ledger.GetTreasury(c.Request.Context(), clanID)
	if errors.Is(err, ErrTreasuryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "treasury_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("get treasury failed", "clan_id", clanID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "treasury_error"})
		return
	}
	c.JSON(http.StatusOK, t)
}

// GetHistory handles GET /clans/:clanId/treasury/history
func (h *Handler) GetHistory(c *gin.Context) {
	clanID := c.Param("clanId")
	if !validation.IsValidID(clanID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_clan_id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txns, err := h.ledger.History(c.Request.Context(), clanID, limit)
	if err != nil {
		h.logger.Error("treasury history failed", "clan_id", clanID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "treasury_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

// ValidateFunds handles POST /clans/:clanId/treasury/validate
func (h *Handler) ValidateFunds(c *gin.Context) {
	clanID := c.Param("clanId")
	if !validation.IsValidID(clanID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_clan_id"})
		return
	}

	var req struct {
		Metal  int64 `json:"metal"`
		Energy int64 `json:"energy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	quote, err := h.ledger.ValidateFunds(c.Request.Context(), clanID, gamedata.Cost{Metal: req.Metal, Energy: req.Energy})
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		c.JSON(http.StatusOK, gin.H{"affordable": false, "quote": quote})
	case errors.Is(err, ErrClanTooSmall):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "clan_too_small",
			"message": "clan must have at least 3 members to fund war purchases"})
	case errors.Is(err, ErrInvalidCost):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cost"})
	case errors.Is(err, ErrTreasuryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "treasury_not_found"})
	case err != nil:
		h.logger.Error("validate funds failed", "clan_id", clanID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "treasury_error"})
	default:
		c.JSON(http.StatusOK, gin.H{"affordable": true, "quote": quote})
	}
}

// Credit handles POST /admin/clans/:clanId/treasury/credit
func (h *Handler) Credit(c *gin.Context) {
	clanID := c.Param("clanId")
	if !validation.IsValidID(clanID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_clan_id"})
		return
	}

	var req struct {
		Metal  int64 `json:"metal"`
		Energy int64 `json:"energy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	if err := h.ledger.Credit(c.Request.Context(), clanID, req.Metal, req.Energy); err != nil {
		if errors.Is(err, ErrInvalidCost) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cost"})
			return
		}
		h.logger.Error("treasury credit failed", "clan_id", clanID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "treasury_error"})
		return
	}

	h.logger.Info("treasury credited", "clan_id", clanID, "metal", req.Metal, "energy", req.Energy)
	c.JSON(http.StatusOK, gin.H{"status": "credited"})
}
