package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	taxruledomain "github.com/smallbiznis/airtax/internal/taxrule/domain"
)

func (s *Server) ListRules(c *gin.Context) {
	var req taxruledomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.PageSize < 0 {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must not be negative"))
		return
	}
	req.Nation = strings.ToUpper(strings.TrimSpace(req.Nation))
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.PageToken = strings.TrimSpace(req.PageToken)

	resp, err := s.ruleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRuleByID(c *gin.Context) {
	resp, err := s.ruleSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CreateRule stores a rule. Evaluation picks it up on the next snapshot
// refresh.
func (s *Server) CreateRule(c *gin.Context) {
	var req taxruledomain.TaxRuleRecord
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
