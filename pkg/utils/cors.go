package utils

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CorsMethods are the methods the device API serves.
var CorsMethods = []string{"GET", "PUT", "OPTIONS"}

func Cors() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: CorsMethods,
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-Requested-With"},
		// snapshot metadata travels in headers
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "X-Timestamp-Usec", "X-Exposure-Usec"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
