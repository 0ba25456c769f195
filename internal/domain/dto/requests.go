package dto

import "time"

// Authentication DTOs
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type CreateAccountRequest struct {
	Username string `json:"username" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Business uint   `json:"business" binding:"required"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type ResurrectRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Account listing DTOs
type DocumentSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type FieldStatusEntry struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// Document DTOs
type Warning struct {
	Msg string `json:"msg"`
}

type CreateDocumentResponse struct {
	DocID    string    `json:"docId"`
	Warnings []Warning `json:"warnings"`
}

type RemindRequest struct {
	Email *string `json:"email"`
}

// Fill DTOs
type FillTextRequest struct {
	Value string `json:"value" binding:"required"`
}

// ErrorResponse is the JSON body for every error status
type ErrorResponse struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
