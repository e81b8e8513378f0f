package control

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger is a Gin middleware that logs every control-plane request with
// method, path, status code, latency, and (when the route names one) the
// pool or device the request targets — control-plane traffic is sparse
// admin activity, not a request-per-object hot path, so it's worth
// logging which pool/peer an operator just pointed at a daemon.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		target := c.Param("pool")
		if target == "" {
			target = c.Param("deviceId")
		}
		if target == "" {
			target = "-"
		}

		log.Printf("[%s] %s %s target=%s | %d | %s",
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			target,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// Recovery wraps Gin's default recovery but logs panics in a structured
// way, including the pool or device the request named; PoolState's own
// transition guards already turn invalid state transitions into a 409
// response (see advance/safeStep in handlers.go), so anything reaching
// this recovery is a genuine bug, not a normal control-plane error.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				target := c.Param("pool")
				if target == "" {
					target = c.Param("deviceId")
				}
				log.Printf("PANIC recovered: target=%s %v", target, err)
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
