package models

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// CompactID renders a UUID as 32 lowercase hex characters without
// dashes, the form used everywhere on the wire. uuid.Parse accepts it
// back unchanged.
func CompactID(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}
