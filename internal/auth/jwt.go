package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleScanner = "scanner"
	RoleAdmin   = "admin"
)

// Token is a signed access token for one scanning session.
type Token struct {
	AccessToken string    `json:"access_token"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims represents JWT payload. The registered ID (jti) is the session id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SessionID returns the scanning session the token belongs to.
func (c Claims) SessionID() string { return c.ID }

// Issue signs an access token for device with a fresh session id.
func Issue(deviceID, role, issuer, key string, ttl time.Duration) (Token, error) {
	if deviceID == "" {
		return Token{}, errors.New("device id required")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, SessionID: claims.ID, Role: role, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, opts...)
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if claims.ID == "" {
		return Claims{}, errors.New("token has no session id")
	}
	return *claims, nil
}
