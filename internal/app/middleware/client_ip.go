package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

const clientIPKey = "client_ip"

// ClientIP resolves the caller's address once per request and stores it
// on the context: CF-Connecting-IP when fronted by Cloudflare, the
// first X-Forwarded-For hop behind a plain proxy, the socket peer
// otherwise.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(clientIPKey, resolveClientIP(c))
		c.Next()
	}
}

// GetClientIP returns the resolved address, empty outside the
// middleware.
func GetClientIP(c *gin.Context) string {
	return c.GetString(clientIPKey)
}

func resolveClientIP(c *gin.Context) string {
	if ip := c.GetHeader("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
