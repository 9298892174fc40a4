package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/meghashyamc/aleph/logger"
)

const (
	HeaderRequestID = "X-Request-ID"
	contextKeyID    = "request_id"
)

// requestIDMiddleware keeps a caller supplied request id or generates one, and echoes it back.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(contextKeyID, requestID)
		c.Writer.Header().Set(HeaderRequestID, requestID)
		c.Next()
	}
}

func loggingMiddleware(logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(contextKeyID))
	}
}

// loopbackOnlyMiddleware rejects requests that do not come from this machine, and requests that name
// a host other than a loopback one, which is what a page on a rebound DNS name sends. The server opens
// files on behalf of its caller.
func loopbackOnlyMiddleware(logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			logger.Warn("rejecting request from remote address", "remote_addr", c.Request.RemoteAddr)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		if c.Request.Host != "" && !isLoopbackHost(c.Request.Host) {
			logger.Warn("rejecting request for non loopback host", "host", c.Request.Host)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

func isLoopbackHost(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// requireJSONMiddleware only lets JSON bodies through on requests that change state. A browser sends
// form and text bodies cross origin without asking first.
func requireJSONMiddleware(logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if c.ContentType() != binding.MIMEJSON {
				logger.Warn("rejecting request without a json body", "method", c.Request.Method, "path", c.Request.URL.Path, "content_type", c.ContentType())
				c.AbortWithStatus(http.StatusUnsupportedMediaType)
				return
			}
		}
		c.Next()
	}
}

// _CORSMiddleware starts with _ so that it is not imported outside of the server package.
// Browser requests from origins outside allowedOrigins are rejected, preflight or not.
func _CORSMiddleware(logger logger.Logger, allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; !ok {
				logger.Warn("rejecting request from origin", "origin", origin, "path", c.Request.URL.Path)
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Authentication, accept, origin, Cache-Control, X-Requested-With, X-Request-ID") // nolint:lll
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", HeaderRequestID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)

			return
		}

		c.Next()
	}
}
