package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/app/middleware"
	"github.com/quillsign/quillsign/internal/domain/dto"
	"github.com/quillsign/quillsign/internal/domain/services"
	"github.com/quillsign/quillsign/pkg/logger"
)

// retryAfter is returned with 503 while an async artifact (rendered
// page, field geometry) is still being produced.
const retryAfter = "30"

// BaseHandler provides the shared error translation and request
// helpers.
type BaseHandler struct {
	logger *logger.Logger
}

func NewBaseHandler(log *logger.Logger) *BaseHandler {
	return &BaseHandler{logger: log}
}

// RespondError maps service errors onto the HTTP error taxonomy.
func (b *BaseHandler) RespondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Title:       verr.Title,
			Description: verr.Detail,
		})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Title: "Not Authorized"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Title: "Not Found"})
	case errors.Is(err, services.ErrNotAcceptable):
		c.JSON(http.StatusNotAcceptable, dto.ErrorResponse{
			Title:       "Not Acceptable",
			Description: "Acceptable types: application/pdf, image/png, application/json",
		})
	case errors.Is(err, services.ErrNotReady):
		c.Header("Retry-After", retryAfter)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Title: "Not ready, retry later"})
	default:
		b.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Title: "Internal Server Error"})
	}
}

// Scope builds the service scope for the authenticated caller.
func (b *BaseHandler) Scope(c *gin.Context) (services.Scope, bool) {
	user := middleware.GetUserContext(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Title: "Not Authorized"})
		return services.Scope{}, false
	}
	return services.Scope{
		UserID:         user.UserID,
		TargetDocument: user.TargetDocument,
	}, true
}

// ParseID parses a 32-hex or canonical UUID path parameter.
func (b *BaseHandler) ParseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
