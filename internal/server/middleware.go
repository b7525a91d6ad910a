package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthRequired gates the operator endpoints behind a bearer token
// checked against the configured bcrypt hash.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := strings.TrimSpace(s.cfg.AdminTokenHash)
		if hash == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}

// DeliverRateLimit throttles the public delivery endpoint per client
// address. Limiter backend failures fail open so redis outages do not
// block paid deliveries.
func (s *Server) DeliverRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.deliverLimiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.deliverLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.Next()
			return
		}
		if !res.Allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "deliver", "bucket_empty")
			}
			if res.RetryAfter > 0 {
				seconds := int(res.RetryAfter.Round(time.Second) / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				c.Header("Retry-After", strconv.Itoa(seconds))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), "deliver")
		}
		c.Next()
	}
}

func (s *Server) MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: errorPayload{
		Type:    "method_not_allowed",
		Message: "method not allowed",
	}})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
