package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

// Claims carries the session identity. Subject is the user id in
// compact hex form. TargetDocument, when present, pins the token to a
// single document: every document-scoped operation must match it.
type Claims struct {
	TargetDocument string `json:"target-document,omitempty"`
	jwt.RegisteredClaims
}

// Session is a verified token.
type Session struct {
	UserID         uuid.UUID
	TargetDocument *uuid.UUID
}

// Manager issues and verifies HS256 tokens.
type Manager struct {
	secret []byte
	expiry time.Duration
}

func NewManager(secret string, expiry time.Duration) *Manager {
	return &Manager{secret: []byte(secret), expiry: expiry}
}

// Issue mints a token for the user. A non-nil targetDocument produces a
// document-scoped token, the kind handed out for access URI logins.
func (m *Manager) Issue(userID uuid.UUID, targetDocument *uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   models.CompactID(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	if targetDocument != nil {
		claims.TargetDocument = models.CompactID(*targetDocument)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string.
func (m *Manager) Verify(tokenString string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject: %w", err)
	}

	session := &Session{UserID: userID}
	if claims.TargetDocument != "" {
		docID, err := uuid.Parse(claims.TargetDocument)
		if err != nil {
			return nil, fmt.Errorf("invalid target document claim: %w", err)
		}
		session.TargetDocument = &docID
	}
	return session, nil
}
