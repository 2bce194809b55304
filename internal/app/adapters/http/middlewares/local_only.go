package middlewares

import (
	"github.com/gin-gonic/gin"
	"net"
	"net/http"
)

// LocalOnly rejects clients that are not on a loopback address.
func (m *Middlewares) LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.RemoteIP())
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
