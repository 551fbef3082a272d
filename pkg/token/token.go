// Package token issues and verifies the HMAC-SHA256 bearer tokens used by
// the HTTP API. Tokens are compact JWTs (RFC 7519) signed with HS256.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingSigningKey = errors.New("token: missing signing key")
	ErrInvalidToken      = errors.New("token: invalid token")
	ErrInvalidSignature  = errors.New("token: invalid signature")
	ErrExpiredToken      = errors.New("token: token is expired")
	ErrUnexpectedAlg     = errors.New("token: unexpected signing algorithm")
)

const (
	headerType = "JWT"
	headerAlg  = "HS256"
)

// DefaultTTL is the access token lifetime used when none is configured.
const DefaultTTL = 24 * time.Hour

type header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// Claims carries the subject and temporal claims of an access token.
type Claims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

// Issuer mints and verifies access tokens with a shared HMAC key.
type Issuer struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewIssuer creates a token issuer. The key should be at least 32 bytes.
func NewIssuer(signingKey string, ttl time.Duration) (*Issuer, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		signingKey: []byte(signingKey),
		ttl:        ttl,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue mints a signed token for the given user.
func (i *Issuer) Issue(userID uuid.UUID) (string, error) {
	now := i.now()
	claims := Claims{
		Subject:   userID.String(),
		ExpiresAt: now.Add(i.ttl).Unix(),
		IssuedAt:  now.Unix(),
	}

	headerJSON, err := json.Marshal(header{Type: headerType, Algorithm: headerAlg})
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	payload := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return payload + "." + i.sign(payload), nil
}

// Verify checks the signature and expiry and returns the subject user ID.
func (i *Issuer) Verify(tokenString string) (uuid.UUID, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return uuid.Nil, ErrInvalidToken
	}

	// Constant-time comparison prevents timing attacks on the signature.
	payload := parts[0] + "." + parts[1]
	expected := i.sign(payload)
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return uuid.Nil, ErrInvalidSignature
	}

	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	var hdr header
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	// Reject anything but HS256 to prevent algorithm confusion.
	if hdr.Algorithm != headerAlg {
		return uuid.Nil, ErrUnexpectedAlg
	}

	claimsJSON, err := base64URLDecode(parts[1])
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	if claims.ExpiresAt > 0 && i.now().Unix() > claims.ExpiresAt {
		return uuid.Nil, ErrExpiredToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (i *Issuer) sign(payload string) string {
	h := hmac.New(sha256.New, i.signingKey)
	h.Write([]byte(payload))
	return base64URLEncode(h.Sum(nil))
}

// JWTs omit base64 padding per RFC 7515; Go's decoder requires it back.
func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}
