package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/smallbiznis/vendora/internal/delivery/domain"
)

type deliverAccountsRequest struct {
	PurchaseID string `json:"purchaseId"`
}

type deliverAccountsResponse struct {
	Success  bool                       `json:"success"`
	Accounts []deliverydomain.Credential `json:"accounts"`
}

func (s *Server) DeliverAccounts(c *gin.Context) {
	var req deliverAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PurchaseID) == "" {
		AbortWithError(c, newValidationError("purchaseId", "required", "purchaseId is required"))
		return
	}

	accounts, err := s.deliverySvc.DeliverAccounts(c.Request.Context(), req.PurchaseID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, deliverAccountsResponse{
		Success:  true,
		Accounts: accounts,
	})
}

func (s *Server) GetPurchaseAccounts(c *gin.Context) {
	accounts, err := s.deliverySvc.DeliveredAccounts(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, deliverydomain.ErrInvalidPurchase) {
			AbortWithError(c, deliverydomain.ErrPurchaseNotFound)
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}
