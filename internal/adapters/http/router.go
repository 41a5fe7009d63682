package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/adapters/signal"
	"github.com/kritvik/samvad/internal/app"
	"github.com/kritvik/samvad/internal/config"
	"github.com/kritvik/samvad/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// UnlockTokenMiddleware guards the payment hook: only the payment
// controller, holding the shared token, may trigger an unlock.
func UnlockTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Unlock-Token") != token {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "bad unlock token"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("SamvadSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	// GET /api/rooms — list live rooms
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": orch.Rooms.List()})
	})

	// GET /api/rooms/:id — room info
	api.GET("/rooms/:id", func(c *gin.Context) {
		room, ok := orch.Rooms.Get(domain.RoomID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, room.Info())
	})

	// DELETE /api/rooms/:id — force-evict a room
	api.DELETE("/rooms/:id", func(c *gin.Context) {
		orch.Rooms.StopRoom(domain.RoomID(c.Param("id")))
		c.Status(http.StatusNoContent)
	})

	// POST /api/rooms/:id/unlock — the payment controller reports a
	// verified payment here; this is the sole unlock trigger.
	api.POST("/rooms/:id/unlock", UnlockTokenMiddleware(cfg.UnlockToken), func(c *gin.Context) {
		var req struct {
			Tier string `json:"tier"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		tier, err := domain.ParseTier(req.Tier)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
			return
		}
		roomID := domain.RoomID(c.Param("id"))
		applied, err := orch.ApplyUnlock(roomID, tier, signal.EncodeUnlockEvent(roomID, tier))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		// Duplicate grants are success; applied says whether anything changed.
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "tier": tier, "applied": applied})
	})

	ctrl := signal.NewSignalWSController(orch, cfg)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
