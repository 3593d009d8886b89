package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims of an access token. ID is the user id in hex.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Token is a verified access token. It implements rest.AuthToken.
type Token struct {
	raw    string
	claims *Claims
	role   string
	now    func() time.Time
}

func (t *Token) IsValid() bool {
	if t == nil || t.claims == nil || t.claims.ExpiresAt == nil {
		return false
	}
	return t.now().Before(t.claims.ExpiresAt.Time)
}

func (t *Token) GetUserId() string   { return t.claims.ID }
func (t *Token) GetUserType() string { return t.role }
func (t *Token) GetToken() string    { return t.raw }

func (t *Token) GetIssuedAt() int64 {
	if t.claims.IssuedAt == nil {
		return 0
	}
	return t.claims.IssuedAt.Unix()
}

func (t *Token) GetExpiresAt() int64 {
	if t.claims.ExpiresAt == nil {
		return 0
	}
	return t.claims.ExpiresAt.Unix()
}
