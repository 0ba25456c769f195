package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
)

// permittedOnDocument reports whether the user may operate on the
// document: owners always may; signers (users holding a field on the
// document) only when the operation is signer accessible. Destructive
// operations pass signerAccessible=false.
func permittedOnDocument(ctx context.Context, store repositories.Store, userID, docID uuid.UUID, signerAccessible bool) (bool, error) {
	owner, err := store.Documents().IsOwner(ctx, docID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check ownership: %w", err)
	}
	if owner {
		return true, nil
	}
	if !signerAccessible {
		return false, nil
	}

	hasField, err := store.Fields().UserHasFieldOnDocument(ctx, docID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check field assignment: %w", err)
	}
	return hasField, nil
}

// requireDocumentAccess folds the scope check and the permission check
// into the error taxonomy: out-of-scope or not permitted is
// ErrUnauthorized, a missing document is ErrNotFound.
func requireDocumentAccess(ctx context.Context, store repositories.Store, scope Scope, docID uuid.UUID, signerAccessible bool) error {
	if !scope.Admits(docID) {
		return ErrUnauthorized
	}
	permitted, err := permittedOnDocument(ctx, store, scope.UserID, docID, signerAccessible)
	if err != nil {
		return err
	}
	if !permitted {
		if _, err := store.Documents().GetByID(ctx, docID); errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return ErrUnauthorized
	}
	return nil
}
