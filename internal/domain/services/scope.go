package services

import "github.com/google/uuid"

// Scope is the authenticated caller. TargetDocument is set for tokens
// minted through an access URI; such sessions may only touch that one
// document.
type Scope struct {
	UserID         uuid.UUID
	TargetDocument *uuid.UUID
}

// Admits reports whether the scope allows operating on the document.
func (s Scope) Admits(docID uuid.UUID) bool {
	return s.TargetDocument == nil || *s.TargetDocument == docID
}
