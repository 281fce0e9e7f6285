package relay

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nkrett/callwire/internal/config"
	"github.com/nkrett/callwire/internal/icecfg"
)

// ClientTokenMiddleware assigns a stable per-client token cookie used as the
// default peer identity when none is supplied.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter builds the relay's HTTP surface: the signaling websocket and
// the ICE-server configuration endpoint.
func SetupRouter(ctx context.Context, cfg *config.Config, ctl *Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "relay.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/ice", func(c *gin.Context) {
		servers := cfg.ICEServers
		if len(servers) == 0 {
			servers = icecfg.Fallback().ICEServers[0].URLs
		}
		c.JSON(http.StatusOK, icecfg.Response{
			ICEServers: []icecfg.Server{{URLs: servers}},
			Token:      uuid.NewString(),
		})
	})

	api.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"peers": ctl.Registry.Peers()})
	})

	return r
}
