package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows browser clients from origins. An empty list allows every
// origin, which is only meant for development.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AddAllowHeaders("Authorization", HeaderIdempotencyKey, HeaderRequestID)
	cfg.AddExposeHeaders(HeaderRequestID, HeaderTraceID)
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
