package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quillsign/quillsign/internal/app/middleware"
	"github.com/quillsign/quillsign/internal/domain/dto"
	"github.com/quillsign/quillsign/internal/domain/services"
)

// DocumentHandler serves the document lifecycle endpoints.
type DocumentHandler struct {
	*BaseHandler
	documents   *services.DocumentService
	audit       *services.AuditService
	maxFileSize int64
}

func NewDocumentHandler(base *BaseHandler, documents *services.DocumentService, audit *services.AuditService, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{
		BaseHandler: base,
		documents:   documents,
		audit:       audit,
		maxFileSize: maxFileSize,
	}
}

// Create handles POST /document: multipart docName, signators (JSON
// map of field name to email or null) and file (the PDF form).
func (h *DocumentHandler) Create(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	// Cap the whole request; oversized uploads fail the form parse.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondTooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Missing file"})
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "application/pdf" && ct != "application/octet-stream" {
		c.JSON(http.StatusUnsupportedMediaType, dto.ErrorResponse{
			Title: "Unacceptable Content-Type",
			Description: fmt.Sprintf(
				`File had a content type of %q, was expecting "application/pdf" or "application/octet-stream"`, ct),
		})
		return
	}
	if header.Size > h.maxFileSize {
		h.respondTooLarge(c)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		h.RespondError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	var signators map[string]*string
	if err := json.Unmarshal([]byte(c.PostForm("signators")), &signators); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Title:       "Invalid JSON",
			Description: "Signators parameter contained invalid JSON",
		})
		return
	}

	resp, err := h.documents.Create(c.Request.Context(), scope, services.CreateDocumentInput{
		Title:     c.PostForm("docName"),
		Signators: signators,
		Content:   content,
		ClientIP:  middleware.GetClientIP(c),
	})
	if err != nil {
		h.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) respondTooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{
		Title: "File too large",
		Description: fmt.Sprintf("The maximum permitted size is %d MB.",
			h.maxFileSize/(1024*1024)),
	})
}

// Get handles GET /document/:docId with content negotiation: the newest
// PDF revision by default, a rendered page as PNG when requested.
func (h *DocumentHandler) Get(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "docId")
	if !ok {
		return
	}

	switch negotiate(c, "application/pdf", "image/png") {
	case "application/pdf":
		content, err := h.documents.GetPDF(c.Request.Context(), scope, docID, middleware.GetClientIP(c))
		if err != nil {
			h.RespondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/pdf", content)
	case "image/png":
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid page"})
			return
		}
		content, err := h.documents.GetPage(c.Request.Context(), scope, docID, page)
		if err != nil {
			h.RespondError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/png", content)
	default:
		h.RespondError(c, services.ErrNotAcceptable)
	}
}

// Info handles GET /document/:docId/info.
func (h *DocumentHandler) Info(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "docId")
	if !ok {
		return
	}

	info, err := h.documents.Info(c.Request.Context(), scope, docID)
	if err != nil {
		h.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Delete handles DELETE /document/:docId.
func (h *DocumentHandler) Delete(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "docId")
	if !ok {
		return
	}

	if err := h.documents.Delete(c.Request.Context(), scope, docID); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Remind handles POST /document/:docId/remind.
func (h *DocumentHandler) Remind(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "docId")
	if !ok {
		return
	}

	var req dto.RemindRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid request body"})
			return
		}
	}

	if err := h.documents.Remind(c.Request.Context(), scope, docID, req.Email); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// AgreeTOS handles POST /document/:docId/agree-tos.
func (h *DocumentHandler) AgreeTOS(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "docId")
	if !ok {
		return
	}

	if err := h.documents.AgreeTOS(c.Request.Context(), scope, docID, middleware.GetClientIP(c)); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Audit handles GET /document/:docId/audit as JSON (newest first) or a
// printable PDF.
func (h *DocumentHandler) Audit(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "docId")
	if !ok {
		return
	}

	switch negotiate(c, "application/json", "application/pdf") {
	case "application/json":
		entries, err := h.audit.Trail(c.Request.Context(), scope, docID)
		if err != nil {
			h.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	case "application/pdf":
		content, err := h.audit.RenderPDF(c.Request.Context(), scope, docID)
		if err != nil {
			h.RespondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/pdf", content)
	default:
		h.RespondError(c, services.ErrNotAcceptable)
	}
}

// negotiate picks the best offered type for the request's Accept
// header. No Accept header means the first offer; no overlap means
// empty.
func negotiate(c *gin.Context, offered ...string) string {
	if c.GetHeader("Accept") == "" {
		return offered[0]
	}
	return c.NegotiateFormat(offered...)
}
