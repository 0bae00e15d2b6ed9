// Package server wires the warfare services into a gin HTTP server with
// the background schedulers and the websocket event hub.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/config"
	"github.com/mbd888/warclan/internal/defense"
	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/logging"
	"github.com/mbd888/warclan/internal/metrics"
	"github.com/mbd888/warclan/internal/missile"
	"github.com/mbd888/warclan/internal/roll"
	"github.com/mbd888/warclan/internal/scheduler"
	"github.com/mbd888/warclan/internal/spy"
	"github.com/mbd888/warclan/internal/treasury"
	"github.com/mbd888/warclan/internal/validation"
	"github.com/mbd888/warclan/internal/voting"
)

// Server is the assembled application.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine
	http   *http.Server

	db    *sql.DB
	hub   *events.Hub
	sched *scheduler.Scheduler
}

// launchAuthorizer handles passed votes. The WMD subsystem records the
// grant; enforcement of what an authorization unlocks lives with the
// wider game through the vote's details payload.
type launchAuthorizer struct {
	logger *slog.Logger
}

func (e *launchAuthorizer) Execute(ctx context.Context, v *voting.Vote) error {
	e.logger.Info("vote action authorized",
		"vote_id", v.ID, "clan_id", v.ClanID, "vote_type", v.Type, "details", v.Details)
	return nil
}

// New builds the server: stores (Postgres when DATABASE_URL is set, in
// memory otherwise), services, routes, and schedulers.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tables, err := gamedata.Load(cfg.GameDataPath)
	if err != nil {
		return nil, fmt.Errorf("load game data: %w", err)
	}

	s := &Server{cfg: cfg, logger: logger}

	var (
		clanStore     clans.Store
		treasuryStore treasury.Store
		missileStore  missile.Store
		defenseStore  defense.Store
		spyStore      spy.Store
		voteStore     voting.Store
		runStore      scheduler.RunStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		s.db = db

		clanStore = clans.NewPostgresStore(db)
		treasuryStore = treasury.NewPostgresStore(db)
		missileStore = missile.NewPostgresStore(db)
		defenseStore = defense.NewPostgresStore(db)
		spyStore = spy.NewPostgresStore(db)
		voteStore = voting.NewPostgresStore(db)
		runStore = scheduler.NewPostgresRunStore(db)
		logger.Info("using postgres stores")
	} else {
		memClans := clans.NewMemoryStore()
		memTreasury := treasury.NewMemoryStore()
		clanStore = memClans
		treasuryStore = memTreasury
		missileStore = missile.NewMemoryStore()
		defenseStore = defense.NewMemoryStore()
		spyStore = spy.NewMemoryStore()
		voteStore = voting.NewMemoryStore()
		runStore = scheduler.NewMemoryRunStore()
		seedDemo(memClans, memTreasury)
		logger.Info("using in-memory stores with demo data")
	}

	s.hub = events.NewHub(logger)
	roller := roll.New()

	clanSvc := clans.NewService(clanStore, roller)
	ledger := treasury.NewLedger(treasuryStore, clanSvc, s.hub)
	defenseSvc := defense.NewService(defenseStore, tables, ledger, roller, s.hub)
	missileSvc := missile.NewService(missileStore, tables, ledger, defenseSvc, clanSvc, roller, s.hub)
	spySvc := spy.NewService(spyStore, tables, ledger, clanSvc, missileSvc, roller, s.hub)
	votingSvc := voting.NewService(voteStore, tables, clanSvc, &launchAuthorizer{logger: logger}, s.hub)

	s.sched = scheduler.New(runStore)
	s.sched.Register("missiles", cfg.MissileSweepInterval, missileSvc.ResolveDue)
	s.sched.Register("missions", cfg.MissionSweepInterval, spySvc.ResolveDue)
	s.sched.Register("votes", cfg.VoteSweepInterval, votingSvc.ExpireDue)
	s.sched.Register("battery_cooldowns", cfg.BatterySweepInterval, func(ctx context.Context) (int, int, error) {
		n, err := defenseSvc.RecoverCooldowns(ctx)
		return n, 0, err
	})

	s.router = s.buildRouter(ledger, missileSvc, defenseSvc, spySvc, votingSvc)
	s.http = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

func (s *Server) buildRouter(
	ledger *treasury.Ledger,
	missileSvc *missile.Service,
	defenseSvc *defense.Service,
	spySvc *spy.Service,
	votingSvc *voting.Service,
) *gin.Engine {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.cfg.RateLimitRPS),
		validation.RequestSizeMiddleware(validation.MaxRequestSize),
		metrics.Middleware(),
	)

	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", s.readiness)
	r.GET("/metrics", metrics.Handler())
	r.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
	r.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})

	treasuryHandler := treasury.NewHandler(ledger, s.logger)
	missileHandler := missile.NewHandler(missileSvc, actorFromHeaders, s.logger)
	defenseHandler := defense.NewHandler(defenseSvc, actorFromHeaders, s.logger)
	spyHandler := spy.NewHandler(spySvc, actorFromHeaders, s.logger)
	votingHandler := voting.NewHandler(votingSvc, actorFromHeaders, s.logger)

	api := r.Group("/api/v1")
	treasuryHandler.RegisterRoutes(api)
	missileHandler.RegisterRoutes(api)
	defenseHandler.RegisterRoutes(api)
	spyHandler.RegisterRoutes(api)
	votingHandler.RegisterRoutes(api)

	admin := r.Group("/api/v1/admin", AdminAuthMiddleware(s.cfg.AdminSecret))
	treasuryHandler.RegisterAdminRoutes(admin)
	missileHandler.RegisterAdminRoutes(admin)
	votingHandler.RegisterAdminRoutes(admin)
	admin.GET("/sweeps/:family", func(c *gin.Context) {
		run, err := s.sched.LastRun(c.Request.Context(), c.Param("family"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no_runs"})
			return
		}
		c.JSON(http.StatusOK, run)
	})

	return r
}

func (s *Server) readiness(c *gin.Context) {
	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run starts the hub, the schedulers, and the HTTP listener, then blocks
// until ctx is cancelled and the server has drained.
func (s *Server) Run(ctx context.Context) error {
	ctx = logging.WithLogger(ctx, s.logger)

	go s.hub.Run(ctx)
	s.sched.Start(ctx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(ctx, s.db, 15*time.Second)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.http.Addr, "env", s.cfg.Env)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", "error", err)
	}
	s.sched.Stop()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close failed", "error", err)
		}
	}
	s.logger.Info("shutdown complete")
	return nil
}

// seedDemo loads two small clans so the in-memory mode is usable out of
// the box.
func seedDemo(clanStore *clans.MemoryStore, treasuryStore *treasury.MemoryStore) {
	ctx := context.Background()
	now := time.Now()

	alpha := &clans.Clan{
		ID: "clan_alpha", Name: "Alpha Legion", LeaderID: "player_a1",
		MemberIDs:    []string{"player_a1", "player_a2", "player_a3", "player_a4"},
		ResearchTier: 2, CreatedAt: now, UpdatedAt: now,
	}
	bravo := &clans.Clan{
		ID: "clan_bravo", Name: "Bravo Syndicate", LeaderID: "player_b1",
		MemberIDs:    []string{"player_b1", "player_b2", "player_b3"},
		ResearchTier: 1, CreatedAt: now, UpdatedAt: now,
	}
	_ = clanStore.PutClan(ctx, alpha)
	_ = clanStore.PutClan(ctx, bravo)

	for _, clan := range []*clans.Clan{alpha, bravo} {
		for i, playerID := range clan.MemberIDs {
			_ = clanStore.PutBase(ctx, &clans.Base{
				PlayerID: playerID,
				ClanID:   clan.ID,
				Units: map[string]int{
					"infantry":  400 + 50*i,
					"armor":     80 + 10*i,
					"artillery": 30,
				},
				Factories: []clans.Factory{
					{ID: fmt.Sprintf("fac_%s_1", playerID), Kind: "munitions"},
					{ID: fmt.Sprintf("fac_%s_2", playerID), Kind: "vehicles"},
				},
				MetalStock:    150000,
				EnergyStock:   90000,
				SecurityLevel: 0.1 + 0.05*float64(i),
				UpdatedAt:     now,
			})
		}
	}

	_ = treasuryStore.Credit(ctx, alpha.ID, 500000, 300000)
	_ = treasuryStore.Credit(ctx, bravo.ID, 350000, 200000)
}
