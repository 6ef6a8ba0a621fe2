package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/repository"
)

// Wire error codes. Clients branch on these strings, so they are part of
// the contract.
const (
	codeMissingFields  = "MISSING_FIELDS"
	codeRoleNotFound   = "ROLE_NOT_FOUND"
	codeTableNotFound  = "TABLE_NOT_FOUND"
	codeSeatTaken      = "SEAT_TAKEN"
	codeSeatOutOfRange = "SEAT_OUT_OF_RANGE"
	codeInternal       = "INTERNAL"
)

// respondError maps a repository error to its wire taxonomy. Unknown
// errors become 500 INTERNAL and are the only ones logged at error level:
// every typed error is a client outcome, not a server fault.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, repository.ErrMissingFields):
		c.JSON(http.StatusBadRequest, gin.H{"error": codeMissingFields})
	case errors.Is(err, repository.ErrSeatOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": codeSeatOutOfRange})
	case errors.Is(err, repository.ErrRoleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": codeRoleNotFound})
	case errors.Is(err, repository.ErrTableNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": codeTableNotFound})
	case errors.Is(err, repository.ErrSeatTaken):
		c.JSON(http.StatusConflict, gin.H{"error": codeSeatTaken})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": codeInternal})
	}
}
