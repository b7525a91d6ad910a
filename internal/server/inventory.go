package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	inventorydomain "github.com/smallbiznis/vendora/internal/inventory/domain"
	"github.com/smallbiznis/vendora/pkg/db/pagination"
)

func (s *Server) ListAccounts(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accounts, pageInfo, err := s.inventorySvc.ListAccounts(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts":  accounts,
		"page_info": pageInfo,
	})
}

func (s *Server) AddAccount(c *gin.Context) {
	var req inventorydomain.AddAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.inventorySvc.AddAccount(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": account})
}

func (s *Server) BulkAddAccounts(c *gin.Context) {
	var req inventorydomain.BulkAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	added, err := s.inventorySvc.BulkAdd(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"added": added})
}

func (s *Server) DeleteAccount(c *gin.Context) {
	if err := s.inventorySvc.DeleteAccount(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) GetStock(c *gin.Context) {
	counts, err := s.inventorySvc.StockCounts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": counts})
}
