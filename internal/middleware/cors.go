// internal/middleware/cors.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/od-approval-backend/internal/config"
)

// CORS allows the configured frontend origin. Outside production any origin
// is accepted so local frontends work without extra setup.
func CORS(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Language", requestIDHeader},
		ExposeHeaders:    []string{"Content-Disposition", requestIDHeader, "X-Total-Count", "X-Total-Pages"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	origin := strings.TrimRight(cfg.Frontend.BaseURL, "/")
	if cfg.IsProduction() && origin != "" {
		corsConfig.AllowOrigins = []string{origin}
	} else {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	}

	return cors.New(corsConfig)
}
