package websocket

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("websocket: missing authentication token")
	ErrInvalidToken = errors.New("websocket: invalid authentication token")
	ErrExpiredToken = errors.New("websocket: token has expired")
)

// Authenticator extracts and validates a client's identity from an
// upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (clientID string, err error)
}

// JWTAuth authenticates via a bearer token, accepted from the
// Authorization header, the "token" query parameter, or the
// Sec-WebSocket-Protocol header (browsers cannot set arbitrary headers on
// the handshake request).
type JWTAuth struct {
	secretKey string
}

func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{secretKey: secretKey}
}

type jwtClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return a.validateToken(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return a.validateToken(token)
	}
	for _, p := range strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "auth-") {
			return a.validateToken(strings.TrimPrefix(p, "auth-"))
		}
	}
	return "", ErrMissingToken
}

func (a *JWTAuth) validateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.ClientID != "" {
		return claims.ClientID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", ErrInvalidToken
}

// GenerateToken issues a JWT for clientID, useful for tests and CLI token
// minting.
func (a *JWTAuth) GenerateToken(clientID string, expiresAt time.Time) (string, error) {
	claims := jwtClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.secretKey))
}

// NoAuth accepts every connection, defaulting to an anonymous client id.
type NoAuth struct{}

func NewNoAuth() *NoAuth { return &NoAuth{} }

func (a *NoAuth) Authenticate(r *http.Request) (string, error) {
	if id := r.URL.Query().Get("client_id"); id != "" {
		return id, nil
	}
	return "anonymous", nil
}
