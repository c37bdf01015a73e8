package daemon

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/permscope/permscope/internal/models"
)

// handleResolveIdentity resolves the effective permissions of one principal.
//
// GET /api/v1/identities/:objectId/permissions
func (s *Server) handleResolveIdentity(c *gin.Context) {
	objectID := c.Param("objectId")
	if len(objectID) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "objectId is required"})
		return
	}

	result, err := s.Resolver.ResolveIdentity(c.Request.Context(), objectID)
	if err != nil {
		s.writeResolutionError(c, objectID, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleSearchIdentities searches principals by display name, UPN or app ID.
//
// GET /api/v1/identities?query=...
func (s *Server) handleSearchIdentities(c *gin.Context) {
	query := c.Query("query")
	if len(query) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	result, err := s.Resolver.SearchIdentities(c.Request.Context(), query)
	if err != nil {
		s.writeResolutionError(c, query, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleInvalidateIdentity drops the cached records of one principal.
//
// DELETE /api/v1/identities/:objectId/cache
func (s *Server) handleInvalidateIdentity(c *gin.Context) {
	objectID := c.Param("objectId")
	if len(objectID) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "objectId is required"})
		return
	}

	s.Resolver.InvalidateIdentity(objectID)
	c.JSON(http.StatusOK, gin.H{"status": "cache invalidated", "object_id": objectID})
}

// handleClearCache drops all cached directory records.
//
// DELETE /api/v1/cache
func (s *Server) handleClearCache(c *gin.Context) {
	if err := s.Resolver.ClearCache(); err != nil {
		logrus.WithError(err).Error("Failed to clear cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cache cleared"})
}

func (s *Server) writeResolutionError(c *gin.Context, subject string, err error) {
	logrus.WithError(err).WithField("subject", subject).Warn("Resolution request failed")

	switch {
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "principal not found"})
	case errors.Is(err, models.ErrResolutionCancelled):
		// Client went away or the resolution deadline passed.
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "resolution cancelled"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
