package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleManager is the role carried by tokens issued after a successful
// manager PIN check.  Manager tokens unlock destructive operations such as
// clearing bills or resetting the application.
const RoleManager = "manager"

// ErrInvalidToken is returned by ParseAccessToken for any token that is
// malformed, expired or signed with a different key.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.
type AccessToken struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires_at"`
}

// Claims is what a verified token says about its bearer.
type Claims struct {
	Subject string
	Role    string
}

// NewAccessToken builds and signs an HS256 JWT for a manager session.  The
// subject is a fresh session id so individual sessions can be told apart in
// logs and rate-limit keys.  The JWT carries sub, role, exp and iat.
func NewAccessToken(secret, role string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and returns its claims.
// Only HMAC signatures are accepted.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := mc["sub"].(string)
	role, _ := mc["role"].(string)
	return Claims{Subject: sub, Role: role}, nil
}
