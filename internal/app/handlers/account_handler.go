package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillsign/quillsign/internal/domain/dto"
	"github.com/quillsign/quillsign/internal/domain/services"
)

// AccountHandler serves account management and the caller's document
// and field listings.
type AccountHandler struct {
	*BaseHandler
	accounts *services.AccountService
}

func NewAccountHandler(base *BaseHandler, accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{BaseHandler: base, accounts: accounts}
}

// Create handles POST /account/create.
func (h *AccountHandler) Create(c *gin.Context) {
	var req dto.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Title:       "Invalid request body",
			Description: err.Error(),
		})
		return
	}

	token, err := h.accounts.CreateAccount(c.Request.Context(), req.Username, req.Password, req.Business)
	if err != nil {
		h.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TokenResponse{Token: token})
}

// ChangePassword handles POST /account/change-password.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid request body"})
		return
	}

	if err := h.accounts.ChangePassword(c.Request.Context(), scope, req.NewPassword); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles POST /account/delete.
func (h *AccountHandler) Delete(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	if err := h.accounts.DeleteAccount(c.Request.Context(), scope); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Resurrect handles POST /account/resurrect.
func (h *AccountHandler) Resurrect(c *gin.Context) {
	var req dto.ResurrectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid request body"})
		return
	}

	if err := h.accounts.Resurrect(c.Request.Context(), req.Username, req.Password); err != nil {
		h.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Documents handles GET /account/documents.
func (h *AccountHandler) Documents(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	docs, err := h.accounts.Documents(c.Request.Context(), scope)
	if err != nil {
		h.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// Fields handles GET /account/fields.
func (h *AccountHandler) Fields(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	fields, err := h.accounts.Fields(c.Request.Context(), scope)
	if err != nil {
		h.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}
