package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/atlas-capital/atlas-portal/internal/shared"
)

const resetPurpose = "password_reset"

// ResetTokens issues and verifies signed password reset tokens. A token is
// bound to the password hash it was issued against, so it stops working once
// the password changes.
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokens constructs a ResetTokens signer.
func NewResetTokens(secret string, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResetTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type resetClaims struct {
	Purpose     string `json:"pur"`
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// Issue signs a token for account.
func (t *ResetTokens) Issue(account Account) (string, error) {
	now := t.now()
	claims := resetClaims{
		Purpose:     resetPurpose,
		Fingerprint: fingerprint(account.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign reset token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the subject.
func (t *ResetTokens) Parse(raw string) (uuid.UUID, string, error) {
	claims := &resetClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	if claims.Purpose != resetPurpose {
		return uuid.Nil, "", shared.ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", shared.ErrInvalidToken
	}
	return id, claims.Fingerprint, nil
}

// Matches reports whether fp was issued against account's current password.
func (t *ResetTokens) Matches(account Account, fp string) bool {
	return fp != "" && fp == fingerprint(account.PasswordHash)
}

func fingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
