package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/app/middleware"
	"github.com/quillsign/quillsign/internal/domain/dto"
	"github.com/quillsign/quillsign/internal/domain/services"
)

// FieldHandler serves the fill endpoints.
type FieldHandler struct {
	*BaseHandler
	signing     *services.SigningService
	maxFileSize int64
}

func NewFieldHandler(base *BaseHandler, signing *services.SigningService, maxFileSize int64) *FieldHandler {
	return &FieldHandler{BaseHandler: base, signing: signing, maxFileSize: maxFileSize}
}

// Fill handles POST /field/:fieldId/fill with a raw PNG body.
func (h *FieldHandler) Fill(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	fieldID, ok := h.ParseID(c, "fieldId")
	if !ok {
		return
	}

	if ct := c.ContentType(); ct != "image/png" {
		c.JSON(http.StatusUnsupportedMediaType, dto.ErrorResponse{
			Title:       "Unacceptable Content-Type",
			Description: `Signature images must be "image/png"`,
		})
		return
	}

	image, ok := h.readBody(c)
	if !ok {
		return
	}

	if err := h.signing.FillSignature(c.Request.Context(), scope, fieldID, image, middleware.GetClientIP(c)); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FillText handles POST /field/:fieldId/fill-text.
func (h *FieldHandler) FillText(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	fieldID, ok := h.ParseID(c, "fieldId")
	if !ok {
		return
	}

	var req dto.FillTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid request body"})
		return
	}

	if err := h.signing.FillText(c.Request.Context(), scope, fieldID, req.Value, middleware.GetClientIP(c)); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BulkFill handles POST /field/bulk-fill: a multipart form where every
// part is keyed by a field id, file parts carrying signature PNGs and
// value parts carrying text.
func (h *FieldHandler) BulkFill(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Title: "Request too large"})
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid multipart form"})
		return
	}

	var entries []services.BulkFillEntry
	for key, values := range form.Value {
		fieldID, err := uuid.Parse(key)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid field ID", Description: key})
			return
		}
		if len(values) == 0 || values[0] == "" {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Empty value", Description: key})
			return
		}
		entries = append(entries, services.BulkFillEntry{FieldID: fieldID, Value: values[0]})
	}
	for key, files := range form.File {
		fieldID, err := uuid.Parse(key)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid field ID", Description: key})
			return
		}
		if len(files) == 0 {
			continue
		}
		part, err := files[0].Open()
		if err != nil {
			h.RespondError(c, err)
			return
		}
		image, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			h.RespondError(c, err)
			return
		}
		entries = append(entries, services.BulkFillEntry{FieldID: fieldID, Image: image})
	}

	if err := h.signing.BulkFill(c.Request.Context(), scope, entries, middleware.GetClientIP(c)); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// readBody reads a size-capped raw request body.
func (h *FieldHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Title: "Request too large"})
			return nil, false
		}
		h.RespondError(c, err)
		return nil, false
	}
	return body, true
}
