package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/config"
	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/signal"
	"github.com/sugunalabs/callserver/internal/tenant"
	"github.com/sugunalabs/callserver/internal/token"
)

type tokenRequest struct {
	AppID  string `json:"appId" binding:"required"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role"`
}

// issueToken is the REST counterpart of the tokens minted on accept.
// Clients use it for the signaling handshake and for rejoining a room
// after an app restart.
func issueToken(tenants *tenant.Registry, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "appId and userId are required"})
			return
		}

		tc, err := tenants.Get(domain.AppID(req.AppID))
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		if len(tc.SigningKey) == 0 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant signing key not configured"})
			return
		}

		role := domain.Role(req.Role)
		if role == "" {
			role = domain.RoleHost
		}
		if !domain.ValidRole(role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}

		ttl := cfg.RoomTokenTTL
		roomID := domain.RoomID(req.RoomID)
		if role == domain.RoleSignaling {
			// Signaling tokens are not bound to a room.
			ttl = cfg.SignalTokenTTL
			roomID = ""
		} else if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
			return
		}

		signed, err := token.Issue(tc.SigningKey, tc.AppID, roomID, domain.Identity(req.UserID), role, ttl)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("app_id", req.AppID).Msg("token issue failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"rtcToken":  signed,
			"appId":     req.AppID,
			"expiresIn": int64(ttl / time.Second),
		})
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, tenants *tenant.Registry, ctrl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "call server up")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/generateRtcToken", issueToken(tenants, cfg))

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Int("tenants", tenants.Len()).Msg("router setup")
	return r
}
