package auth

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every handshake refusal: bad signature, expired,
// malformed, or missing claims. The client gets no finer detail than this.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is what a verified bearer token resolves to. Token issuance lives
// in the account service; this side only verifies.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Authenticator verifies HMAC-signed bearer tokens presented at the WebSocket
// handshake.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator sharing the issuer's HMAC secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Resolve verifies the token and extracts the caller's identity. Any failure
// returns ErrInvalidToken; the connection must be refused, never downgraded
// to anonymous.
func (a *Authenticator) Resolve(token string) (*Identity, error) {
	parsed, err := gojwt.Parse(token, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	identity := &Identity{}

	if userID, ok := claims["user_id"].(string); ok {
		identity.UserID = userID
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if role, ok := claims["role"].(string); ok {
		identity.Role = role
	}

	if identity.UserID == "" {
		return nil, ErrInvalidToken
	}

	return identity, nil
}

// Issue signs a token for the given identity. Used by tests and local
// tooling; production tokens come from the account service.
func (a *Authenticator) Issue(identity *Identity, ttl time.Duration) (string, error) {
	claims := gojwt.MapClaims{
		"user_id": identity.UserID,
		"email":   identity.Email,
		"role":    identity.Role,
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
