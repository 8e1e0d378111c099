package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type AccessClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

type RefreshClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

type JWTUtil interface {
	GenerateAccessToken(accountID uuid.UUID) (token string, exp time.Time, jti string, err error)
	GenerateRefreshToken(accountID uuid.UUID) (token string, exp time.Time, jti string, err error)
	ValidateAccessToken(token string) (claims AccessClaims, err error)
	ValidateRefreshToken(token string) (claims RefreshClaims, err error)
}
