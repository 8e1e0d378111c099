// Package token owns the access/refresh token lifecycle. The account record
// holds a single refresh token slot; a rotation only succeeds when the
// presented token still occupies that slot.
package token

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/jwt"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	accounts repo.AccountRepo
	jwtUtil  jwt.JWTUtil
	denylist repo.AccessDenylist
	log      *zap.Logger
	now      func() time.Time
}

// New builds the token service. denylist may be nil, in which case access
// tokens are purely stateless.
func New(accounts repo.AccountRepo, jwtUtil jwt.JWTUtil, denylist repo.AccessDenylist, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		accounts: accounts,
		jwtUtil:  jwtUtil,
		denylist: denylist,
		log:      log,
		now:      time.Now,
	}
}

// IssuePair mints a fresh pair and overwrites the stored refresh token.
func (s *Service) IssuePair(ctx context.Context, accountID uuid.UUID) (model.TokenPair, error) {
	pair, err := s.newPair(accountID)
	if err != nil {
		return model.TokenPair{}, err
	}

	rt := pair.RefreshToken
	if _, err := s.accounts.UpdateFields(ctx, accountID, model.AccountFields{RefreshToken: &rt}, repo.Public); err != nil {
		return model.TokenPair{}, customErrors.WrapPersistence(err, "IssuePair")
	}
	return pair, nil
}

func (s *Service) VerifyAccess(ctx context.Context, token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, fmt.Errorf("%w: missing access token", customErrors.ErrTokenInvalid)
	}
	claims, err := s.jwtUtil.ValidateAccessToken(token)
	if err != nil {
		return model.Identity{}, err
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Identity{}, customErrors.ErrTokenInvalid
	}

	if s.denylist != nil {
		revoked, err := s.denylist.IsAccessRevoked(ctx, claims.ID)
		if err != nil {
			return model.Identity{}, customErrors.WrapPersistence(err, "VerifyAccess")
		}
		if revoked {
			return model.Identity{}, fmt.Errorf("%w: access token revoked", customErrors.ErrTokenInvalid)
		}
	}

	return model.Identity{AccountID: uid, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Rotate exchanges a refresh token for a new pair. The stored token is
// replaced with a compare-and-swap so that two rotations racing on the same
// token value cannot both succeed.
func (s *Service) Rotate(ctx context.Context, presented string) (model.TokenPair, error) {
	if presented == "" {
		return model.TokenPair{}, fmt.Errorf("%w: missing refresh token", customErrors.ErrTokenInvalid)
	}
	claims, err := s.jwtUtil.ValidateRefreshToken(presented)
	if err != nil {
		return model.TokenPair{}, err
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.TokenPair{}, customErrors.ErrTokenInvalid
	}

	acct, err := s.accounts.GetByID(ctx, uid, repo.Projection{OmitPasswordHash: true})
	switch {
	case customErrors.IsNotFound(err):
		return model.TokenPair{}, customErrors.ErrAccountNotFound
	case err != nil:
		return model.TokenPair{}, customErrors.WrapPersistence(err, "Rotate")
	}

	if acct.RefreshToken == "" {
		return model.TokenPair{}, fmt.Errorf("%w: session revoked", customErrors.ErrTokenInvalid)
	}
	if subtle.ConstantTimeCompare([]byte(acct.RefreshToken), []byte(presented)) != 1 {
		s.reportReuse(uid, claims.ID, "stored token differs")
		return model.TokenPair{}, customErrors.ErrTokenReused
	}

	pair, err := s.newPair(uid)
	if err != nil {
		return model.TokenPair{}, err
	}

	swapped, err := s.accounts.SwapRefreshToken(ctx, uid, presented, pair.RefreshToken)
	if err != nil {
		return model.TokenPair{}, customErrors.WrapPersistence(err, "Rotate")
	}
	if !swapped {
		s.reportReuse(uid, claims.ID, "lost rotation race")
		return model.TokenPair{}, customErrors.ErrTokenReused
	}
	return pair, nil
}

// Revoke clears the refresh token slot. Calling it on an already cleared
// slot is a no-op.
func (s *Service) Revoke(ctx context.Context, accountID uuid.UUID) error {
	empty := ""
	_, err := s.accounts.UpdateFields(ctx, accountID, model.AccountFields{RefreshToken: &empty}, repo.Public)
	switch {
	case customErrors.IsNotFound(err):
		return customErrors.ErrAccountNotFound
	case err != nil:
		return customErrors.WrapPersistence(err, "Revoke")
	}
	return nil
}

// RevokeAccess deny-lists the access token behind id until it expires.
func (s *Service) RevokeAccess(ctx context.Context, id model.Identity) error {
	if s.denylist == nil || id.TokenID == "" {
		return nil
	}
	if !id.ExpiresAt.After(s.now()) {
		return nil
	}
	if err := s.denylist.RevokeAccess(ctx, id.TokenID, id.ExpiresAt); err != nil {
		return customErrors.WrapPersistence(err, "RevokeAccess")
	}
	return nil
}

func (s *Service) newPair(uid uuid.UUID) (model.TokenPair, error) {
	at, atExp, _, err := s.jwtUtil.GenerateAccessToken(uid)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("generate access token: %w", err)
	}
	rt, rtExp, _, err := s.jwtUtil.GenerateRefreshToken(uid)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	return model.TokenPair{
		AccessToken:  at,
		RefreshToken: rt,
		AccessTTL:    atExp.Sub(now),
		RefreshTTL:   rtExp.Sub(now),
		AccountID:    uid,
	}, nil
}

func (s *Service) reportReuse(uid uuid.UUID, jti, reason string) {
	s.log.Warn("refresh token reuse detected",
		zap.String("security_event", "refresh_token_reuse"),
		zap.String("account_id", uid.String()),
		zap.String("token_id", jti),
		zap.String("reason", reason),
	)
}
