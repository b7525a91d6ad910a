package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/vendora/internal/webhook/domain"
)

// GetPayPalConfig exposes the public checkout settings. The client
// secret never leaves the server.
func (s *Server) GetPayPalConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clientId": s.cfg.PayPal.ClientID,
		"planId":   s.cfg.PayPal.PlanID,
	})
}

func (s *Server) HandlePayPalWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		// Replays were handled the first time around. Acknowledge so
		// the provider stops retrying.
		if errors.Is(err, webhookdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// ListPackages serves the storefront catalog from the hot-reloaded
// config.
func (s *Server) ListPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": s.catalog.Get().Packages})
}
