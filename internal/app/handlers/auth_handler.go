package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillsign/quillsign/internal/domain/dto"
	"github.com/quillsign/quillsign/internal/domain/services"
)

// AuthHandler serves token minting: password login and access-URI
// exchange.
type AuthHandler struct {
	*BaseHandler
	accounts *services.AccountService
}

func NewAuthHandler(base *BaseHandler, accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{BaseHandler: base, accounts: accounts}
}

// Login handles POST /auth.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Title: "Invalid request body"})
		return
	}

	token, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TokenResponse{Token: token})
}

// LoginWithAccessURI handles POST /auth/access-id. The capability
// string arrives in the accessId header.
func (h *AuthHandler) LoginWithAccessURI(c *gin.Context) {
	token, err := h.accounts.LoginWithAccessURI(c.Request.Context(), c.GetHeader("accessId"))
	if err != nil {
		h.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TokenResponse{Token: token})
}
