package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	jwt2 "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/jwt"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const leeway = 2 * time.Minute

type Settings struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
}

type JwtUtilImpl struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   string
	now        func() time.Time
}

var _ jwt2.JWTUtil = (*JwtUtilImpl)(nil)

func NewJWTUtil(cfg *config.Config) (*JwtUtilImpl, error) {
	privPem, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPem)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubPem, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPem)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return NewJWTUtilFromKeys(privKey, pubKey, Settings{
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
	}), nil
}

func NewJWTUtilFromKeys(priv *rsa.PrivateKey, pub *rsa.PublicKey, s Settings) *JwtUtilImpl {
	return &JwtUtilImpl{
		privateKey: priv,
		publicKey:  pub,
		accessTTL:  s.AccessTTL,
		refreshTTL: s.RefreshTTL,
		issuer:     s.Issuer,
		audience:   s.Audience,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for issuing and validating tokens.
func (j *JwtUtilImpl) WithClock(now func() time.Time) *JwtUtilImpl {
	j.now = now
	return j
}

func (j *JwtUtilImpl) GenerateAccessToken(accountID uuid.UUID) (string, time.Time, string, error) {
	claims := jwt2.AccessClaims{
		RegisteredClaims: j.registered(accountID, j.accessTTL),
		Type:             jwt2.TypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(j.privateKey)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, claims.ID, nil
}

func (j *JwtUtilImpl) GenerateRefreshToken(accountID uuid.UUID) (string, time.Time, string, error) {
	claims := jwt2.RefreshClaims{
		RegisteredClaims: j.registered(accountID, j.refreshTTL),
		Type:             jwt2.TypeRefresh,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(j.privateKey)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, claims.ID, nil
}

func (j *JwtUtilImpl) ValidateAccessToken(raw string) (jwt2.AccessClaims, error) {
	claims := &jwt2.AccessClaims{}
	if err := j.parse(raw, claims); err != nil {
		return jwt2.AccessClaims{}, err
	}
	if claims.Type != jwt2.TypeAccess {
		return jwt2.AccessClaims{}, fmt.Errorf("%w: not an access token", customErrors.ErrTokenInvalid)
	}
	if err := j.checkIssuerAudience(claims.RegisteredClaims); err != nil {
		return jwt2.AccessClaims{}, err
	}
	return *claims, nil
}

func (j *JwtUtilImpl) ValidateRefreshToken(raw string) (jwt2.RefreshClaims, error) {
	claims := &jwt2.RefreshClaims{}
	if err := j.parse(raw, claims); err != nil {
		return jwt2.RefreshClaims{}, err
	}
	if claims.Type != jwt2.TypeRefresh {
		return jwt2.RefreshClaims{}, fmt.Errorf("%w: not a refresh token", customErrors.ErrTokenInvalid)
	}
	if err := j.checkIssuerAudience(claims.RegisteredClaims); err != nil {
		return jwt2.RefreshClaims{}, err
	}
	return *claims, nil
}

func (j *JwtUtilImpl) registered(accountID uuid.UUID, ttl time.Duration) jwt.RegisteredClaims {
	now := j.now()
	return jwt.RegisteredClaims{
		Subject:   accountID.String(),
		Issuer:    j.issuer,
		Audience:  jwt.ClaimStrings{j.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (j *JwtUtilImpl) parse(raw string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, customErrors.ErrTokenInvalid
		}
		return j.publicKey, nil
	},
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(j.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return customErrors.ErrTokenExpired
	case err != nil || !token.Valid:
		return customErrors.ErrTokenInvalid
	}
	return nil
}

func (j *JwtUtilImpl) checkIssuerAudience(c jwt.RegisteredClaims) error {
	if j.issuer != "" && c.Issuer != j.issuer {
		return customErrors.ErrTokenInvalid
	}
	if j.audience != "" && !slices.Contains(c.Audience, j.audience) {
		return customErrors.ErrTokenInvalid
	}
	if _, err := uuid.Parse(c.Subject); err != nil {
		return customErrors.ErrTokenInvalid
	}
	return nil
}
