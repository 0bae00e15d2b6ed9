package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/warclan/internal/config"
	"github.com/mbd888/warclan/internal/logging"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "development",
		LogLevel:             "error",
		MissileSweepInterval: time.Minute,
		MissionSweepInterval: time.Minute,
		VoteSweepInterval:    time.Minute,
		BatterySweepInterval: time.Minute,
		AdminSecret:          "test-secret",
		RateLimitRPS:         1000,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := New(testConfig(), logging.New("error", "text"))
	require.NoError(t, err)
	return s
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code, "memory mode is always ready")
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", "req-12345")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-12345", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"), "one is generated when absent")
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/sweeps/missiles", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/sweeps/missiles", nil)
	req.Header.Set("X-Admin-Secret", "wrong")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// With the right secret the route is reachable; no sweep has run yet.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/sweeps/missiles", nil)
	req.Header.Set("X-Admin-Secret", "test-secret")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMutatingRoutesRequireActor(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/spies",
		strings.NewReader(`{"specialization":"HACKER"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDemoSeedServesRequests(t *testing.T) {
	s := newTestServer(t)

	// The seeded alpha clan has a funded treasury.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/clans/clan_alpha/treasury", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clan_alpha")

	// A seeded player can recruit a spy through the full stack.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/spies",
		strings.NewReader(`{"specialization":"HACKER"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Player-Id", "player_a1")
	req.Header.Set("X-Username", "CommanderAlpha")
	req.Header.Set("X-Clan-Id", "clan_alpha")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "codename")

	// The response reports the cost split across the four alpha members:
	// HACKER costs {20000, 25000}, so 5000 metal and 6250 energy each.
	assert.Contains(t, w.Body.String(), `"perMemberMetal":5000`)
	assert.Contains(t, w.Body.String(), `"perMemberEnergy":6250`)
}

func TestActorFromHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("X-Player-Id", "p1")
	c.Request.Header.Set("X-Username", "Alice")
	c.Request.Header.Set("X-Clan-Id", "clan_a")

	actor, ok := actorFromHeaders(c)
	require.True(t, ok)
	assert.Equal(t, "p1", actor.PlayerID)
	assert.Equal(t, "Alice", actor.Username)
	assert.Equal(t, "clan_a", actor.ClanID)

	c.Request.Header.Del("X-Clan-Id")
	_, ok = actorFromHeaders(c)
	assert.False(t, ok)
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(5) // burst 10

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.allow("1.2.3.4") {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed, "burst bounds consecutive requests")
	assert.True(t, rl.allow("5.6.7.8"), "other clients have their own bucket")
}

func TestAdminClosedWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", AdminAuthMiddleware(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
