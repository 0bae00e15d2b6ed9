package spy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/missile"
	"github.com/mbd888/warclan/internal/treasury"
	"github.com/mbd888/warclan/internal/validation"
)

// ActorFunc extracts the authenticated actor from the request context.
type ActorFunc func(c *gin.Context) (clans.Actor, bool)

// Handler provides HTTP endpoints for espionage operations
type Handler struct {
	service *Service
	actor   ActorFunc
	logger  *slog.Logger
}

// NewHandler creates a new spy handler
func NewHandler(service *Service, actor ActorFunc, logger *slog.Logger) *Handler {
	return &Handler{service: service, actor: actor, logger: logger}
}

// RegisterRoutes sets up espionage routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/players/:playerId/spies", h.ListSpies)
	r.GET("/spies/:spyId", h.GetSpy)
	r.POST("/spies", h.Recruit)
	r.POST("/spies/:spyId/train", h.Train)
	r.POST("/spies/:spyId/missions", h.StartMission)
	r.GET("/spies/:spyId/missions", h.MissionHistory)
	r.POST("/spies/:spyId/sabotage", h.ExecuteSabotage)
	r.POST("/spies/:spyId/retire", h.Retire)
	r.GET("/missions/:missionId", h.GetMission)
	r.POST("/counterintel/sweep", h.CounterIntelSweep)
}

// ListSpies handles GET /players/:playerId/spies
func (h *Handler) ListSpies(c *gin.Context) {
	playerID := c.Param("playerId")
	if !validation.IsValidID(playerID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_player_id"})
		return
	}
	spies, err := h.service.ListSpies(c.Request.Context(), playerID)
	if err != nil {
		h.logger.Error("list spies failed", "player_id", playerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"spies": spies, "count": len(spies)})
}

// GetSpy handles GET /spies/:spyId
func (h *Handler) GetSpy(c *gin.Context) {
	spyID := c.Param("spyId")
	if !validation.IsValidID(spyID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_spy_id"})
		return
	}
	s, err := h.service.GetSpy(c.Request.Context(), spyID)
	if errors.Is(err, ErrSpyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "spy_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("get spy failed", "spy_id", spyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// Recruit handles POST /spies
func (h *Handler) Recruit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		Specialization string `json:"specialization" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	s, txn, err := h.service.Recruit(c.Request.Context(), actor, req.Specialization)
	switch {
	case errors.Is(err, ErrUnknownSpecialization):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_specialization"})
	case errors.Is(err, ErrSpyCapReached):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "spy_cap_reached"})
	case errors.Is(err, treasury.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_funds"})
	case errors.Is(err, treasury.ErrClanTooSmall):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "clan_too_small"})
	case err != nil:
		h.logger.Error("recruit spy failed", "player_id", actor.PlayerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
	default:
		c.JSON(http.StatusCreated, gin.H{"spy": s, "funding": txn})
	}
}

// Train handles POST /spies/:spyId/train
func (h *Handler) Train(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	spyID := c.Param("spyId")
	if !validation.IsValidID(spyID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_spy_id"})
		return
	}

	var req struct {
		Skill     string `json:"skill" binding:"required"`
		Intensity string `json:"intensity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	s, err := h.service.Train(c.Request.Context(), actor, spyID, req.Skill, req.Intensity)
	switch {
	case errors.Is(err, ErrSpyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "spy_not_found"})
	case errors.Is(err, ErrNotSpyOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_spy_owner"})
	case errors.Is(err, ErrSpyUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "spy_unavailable"})
	case errors.Is(err, ErrUnknownSkill):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_skill"})
	case errors.Is(err, ErrUnknownIntensity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_intensity"})
	case err != nil:
		h.logger.Error("train spy failed", "spy_id", spyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
	default:
		c.JSON(http.StatusOK, s)
	}
}

// StartMission handles POST /spies/:spyId/missions
func (h *Handler) StartMission(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	spyID := c.Param("spyId")
	if !validation.IsValidID(spyID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_spy_id"})
		return
	}

	var req struct {
		Type     string `json:"type" binding:"required"`
		TargetID string `json:"targetId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	m, err := h.service.StartMission(c.Request.Context(), actor, spyID, req.Type, req.TargetID)
	switch {
	case errors.Is(err, ErrSpyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "spy_not_found"})
	case errors.Is(err, ErrNotSpyOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_spy_owner"})
	case errors.Is(err, ErrSpyUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "spy_unavailable"})
	case errors.Is(err, ErrUnknownMissionType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_mission_type"})
	case errors.Is(err, ErrSkillTooLow):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "skill_too_low", "message": err.Error()})
	case errors.Is(err, ErrOwnClanTarget):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "own_clan_target"})
	case errors.Is(err, clans.ErrBaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "target_not_found"})
	case err != nil:
		h.logger.Error("start mission failed", "spy_id", spyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
	default:
		c.JSON(http.StatusCreated, m)
	}
}

// ExecuteSabotage handles POST /spies/:spyId/sabotage
func (h *Handler) ExecuteSabotage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	spyID := c.Param("spyId")
	if !validation.IsValidID(spyID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_spy_id"})
		return
	}

	var req struct {
		TargetType string `json:"targetType" binding:"required"`
		TargetID   string `json:"targetId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	result, err := h.service.ExecuteSabotage(c.Request.Context(), actor, spyID, req.TargetType, req.TargetID)
	switch {
	case errors.Is(err, ErrSpyNotFound), errors.Is(err, missile.ErrMissileNotFound), errors.Is(err, clans.ErrBaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "target_not_found"})
	case errors.Is(err, ErrNotSpyOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_spy_owner"})
	case errors.Is(err, ErrSpyUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "spy_unavailable"})
	case errors.Is(err, ErrSkillTooLow):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "skill_too_low"})
	case errors.Is(err, ErrUnknownMissionType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_target_type"})
	case errors.Is(err, ErrOwnClanTarget):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "own_clan_target"})
	case err != nil:
		h.logger.Error("sabotage failed", "spy_id", spyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
	default:
		c.JSON(http.StatusOK, result)
	}
}

// Retire handles POST /spies/:spyId/retire
func (h *Handler) Retire(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	spyID := c.Param("spyId")
	if !validation.IsValidID(spyID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_spy_id"})
		return
	}

	s, err := h.service.Retire(c.Request.Context(), actor, spyID)
	switch {
	case errors.Is(err, ErrSpyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "spy_not_found"})
	case errors.Is(err, ErrNotSpyOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_spy_owner"})
	case errors.Is(err, ErrSpyUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "spy_on_mission"})
	case errors.Is(err, ErrSpyRetired):
		c.JSON(http.StatusConflict, gin.H{"error": "already_retired"})
	case err != nil:
		h.logger.Error("retire spy failed", "spy_id", spyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
	default:
		c.JSON(http.StatusOK, s)
	}
}

// MissionHistory handles GET /spies/:spyId/missions
func (h *Handler) MissionHistory(c *gin.Context) {
	spyID := c.Param("spyId")
	if !validation.IsValidID(spyID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_spy_id"})
		return
	}
	missions, err := h.service.MissionHistory(c.Request.Context(), spyID)
	if errors.Is(err, ErrSpyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "spy_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("mission history failed", "spy_id", spyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"missions": missions, "count": len(missions)})
}

// GetMission handles GET /missions/:missionId
func (h *Handler) GetMission(c *gin.Context) {
	missionID := c.Param("missionId")
	if !validation.IsValidID(missionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mission_id"})
		return
	}
	m, err := h.service.GetMission(c.Request.Context(), missionID)
	if errors.Is(err, ErrMissionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "mission_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("get mission failed", "mission_id", missionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// CounterIntelSweep handles POST /counterintel/sweep
func (h *Handler) CounterIntelSweep(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	flushed, err := h.service.CounterIntelSweep(c.Request.Context(), actor)
	switch {
	case errors.Is(err, treasury.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_funds"})
	case errors.Is(err, treasury.ErrClanTooSmall):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "clan_too_small"})
	case err != nil:
		h.logger.Error("counterintel sweep failed", "clan_id", actor.ClanID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spy_error"})
	default:
		c.JSON(http.StatusOK, gin.H{"flushed": flushed})
	}
}
