package voting

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/validation"
)

// ActorFunc extracts the authenticated actor from the request context.
type ActorFunc func(c *gin.Context) (clans.Actor, bool)

// Handler provides HTTP endpoints for clan votes
type Handler struct {
	service *Service
	actor   ActorFunc
	logger  *slog.Logger
}

// NewHandler creates a new voting handler
func NewHandler(service *Service, actor ActorFunc, logger *slog.Logger) *Handler {
	return &Handler{service: service, actor: actor, logger: logger}
}

// RegisterRoutes sets up voting routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/clans/:clanId/votes", h.ListVotes)
	r.POST("/votes", h.Create)
	r.GET("/votes/:voteId", h.GetVote)
	r.POST("/votes/:voteId/ballots", h.CastVote)
	r.POST("/votes/:voteId/veto", h.Veto)
}

// RegisterAdminRoutes sets up admin-only voting routes
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/votes/:voteId/expire", h.ForceExpire)
}

// ListVotes handles GET /clans/:clanId/votes
func (h *Handler) ListVotes(c *gin.Context) {
	clanID := c.Param("clanId")
	if !validation.IsValidID(clanID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_clan_id"})
		return
	}
	votes, err := h.service.ListByClan(c.Request.Context(), clanID)
	if err != nil {
		h.logger.Error("list votes failed", "clan_id", clanID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes, "count": len(votes)})
}

// GetVote handles GET /votes/:voteId
func (h *Handler) GetVote(c *gin.Context) {
	voteID := c.Param("voteId")
	if !validation.IsValidID(voteID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_id"})
		return
	}
	v, err := h.service.Get(c.Request.Context(), voteID)
	if errors.Is(err, ErrVoteNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "vote_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("get vote failed", "vote_id", voteID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_error"})
		return
	}
	c.JSON(http.StatusOK, v)
}

// Create handles POST /votes
func (h *Handler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		Type     string         `json:"type" binding:"required"`
		Severity string         `json:"severity"`
		Details  map[string]any `json:"details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.Severity == "" {
		req.Severity = "default"
	}

	v, err := h.service.Create(c.Request.Context(), actor, req.Type, req.Severity, req.Details)
	switch {
	case errors.Is(err, ErrNotClanMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_clan_member"})
	case errors.Is(err, clans.ErrClanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "clan_not_found"})
	case err != nil:
		h.logger.Error("create vote failed", "clan_id", actor.ClanID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_error"})
	default:
		c.JSON(http.StatusCreated, v)
	}
}

// CastVote handles POST /votes/:voteId/ballots
func (h *Handler) CastVote(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	voteID := c.Param("voteId")
	if !validation.IsValidID(voteID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_id"})
		return
	}

	var req struct {
		InFavor *bool `json:"inFavor" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	v, err := h.service.CastVote(c.Request.Context(), actor, voteID, *req.InFavor)
	switch {
	case errors.Is(err, ErrVoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "vote_not_found"})
	case errors.Is(err, ErrNotClanMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_clan_member"})
	case errors.Is(err, ErrAlreadyVoted):
		c.JSON(http.StatusConflict, gin.H{"error": "already_voted"})
	case errors.Is(err, ErrVoteNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "vote_not_active"})
	case err != nil:
		h.logger.Error("cast vote failed", "vote_id", voteID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_error"})
	default:
		c.JSON(http.StatusOK, v)
	}
}

// Veto handles POST /votes/:voteId/veto
func (h *Handler) Veto(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	voteID := c.Param("voteId")
	if !validation.IsValidID(voteID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_id"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	v, err := h.service.Veto(c.Request.Context(), actor, voteID, req.Reason)
	switch {
	case errors.Is(err, ErrVoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "vote_not_found"})
	case errors.Is(err, ErrNotClanLeader):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_clan_leader"})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "vote_not_active"})
	case err != nil:
		h.logger.Error("veto vote failed", "vote_id", voteID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_error"})
	default:
		c.JSON(http.StatusOK, v)
	}
}

// ForceExpire handles POST /votes/:voteId/expire (admin)
func (h *Handler) ForceExpire(c *gin.Context) {
	voteID := c.Param("voteId")
	if !validation.IsValidID(voteID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_id"})
		return
	}

	v, err := h.service.ForceExpire(c.Request.Context(), voteID)
	switch {
	case errors.Is(err, ErrVoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "vote_not_found"})
	case errors.Is(err, ErrVoteNotActive), errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "vote_not_active"})
	case err != nil:
		h.logger.Error("force expire failed", "vote_id", voteID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_error"})
	default:
		c.JSON(http.StatusOK, v)
	}
}
