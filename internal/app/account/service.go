package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

// Tokens is the part of the token service the account flows depend on.
type Tokens interface {
	IssuePair(ctx context.Context, accountID uuid.UUID) (model.TokenPair, error)
	VerifyAccess(ctx context.Context, token string) (model.Identity, error)
	Rotate(ctx context.Context, refreshToken string) (model.TokenPair, error)
	Revoke(ctx context.Context, accountID uuid.UUID) error
	RevokeAccess(ctx context.Context, id model.Identity) error
}

type Options struct {
	// RevokeSessionsOnPasswordChange clears the refresh token slot after a
	// successful password change.
	RevokeSessionsOnPasswordChange bool
}

type Service interface {
	Register(context.Context, dto.RegisterDTO) (model.PublicAccount, error)
	Login(context.Context, dto.LoginDTO) (model.Session, error)
	Logout(context.Context, model.Identity) error
	Refresh(context.Context, dto.RefreshDTO) (model.TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (model.Identity, error)
	GetCurrent(ctx context.Context, id uuid.UUID) (model.PublicAccount, error)
	ChangePassword(context.Context, uuid.UUID, dto.ChangePasswordDTO) error
	UpdateProfile(context.Context, uuid.UUID, dto.UpdateProfileDTO) (model.PublicAccount, error)
	UpdateAvatar(ctx context.Context, id uuid.UUID, src model.ImageSource) (model.PublicAccount, error)
	UpdateCoverImage(ctx context.Context, id uuid.UUID, src model.ImageSource) (model.PublicAccount, error)
}

type accountService struct {
	accounts repo.AccountRepo
	blobs    repo.BlobStore
	tokens   Tokens
	hasher   PasswordHasher
	v        *validator.Validate
	log      *zap.Logger
	opts     Options
}

func New(
	ar repo.AccountRepo,
	bs repo.BlobStore,
	ts Tokens,
	h PasswordHasher,
	v *validator.Validate,
	log *zap.Logger,
	opts Options,
) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &accountService{
		accounts: ar, blobs: bs, tokens: ts, hasher: h, v: v, log: log, opts: opts,
	}
}

func (s *accountService) Register(ctx context.Context, in dto.RegisterDTO) (model.PublicAccount, error) {
	defer s.release(in.Avatar, in.CoverImage)

	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	if err := s.v.Struct(in); err != nil {
		return model.PublicAccount{}, customErrors.NewValidation("all fields are required and email must contain @")
	}

	usernameTaken, err := s.exists(ctx, s.accounts.GetByUsername, in.Username)
	if err != nil {
		return model.PublicAccount{}, customErrors.WrapPersistence(err, "Register")
	}
	emailTaken, err := s.exists(ctx, s.accounts.GetByEmail, in.Email)
	if err != nil {
		return model.PublicAccount{}, customErrors.WrapPersistence(err, "Register")
	}
	switch {
	case usernameTaken:
		return model.PublicAccount{}, customErrors.ErrDuplicateUsername
	case emailTaken:
		return model.PublicAccount{}, customErrors.ErrDuplicateEmail
	}

	if in.Avatar == nil {
		return model.PublicAccount{}, customErrors.NewValidation("avatar file is required")
	}
	avatar, ok := s.blobs.Upload(ctx, in.Avatar)
	if !ok || avatar.URL == "" {
		return model.PublicAccount{}, customErrors.ErrAvatarUploadFailed
	}
	uploaded := []string{avatar.URL}

	var coverURL string
	if in.CoverImage != nil {
		if cover, ok := s.blobs.Upload(ctx, in.CoverImage); ok {
			coverURL = cover.URL
			uploaded = append(uploaded, cover.URL)
		} else {
			s.log.Warn("cover image upload failed, continuing without it",
				zap.String("username", in.Username))
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.discard(ctx, uploaded...)
		return model.PublicAccount{}, fmt.Errorf("register: %w", err)
	}

	id, err := s.accounts.Create(ctx, model.Account{
		Username:      in.Username,
		Email:         in.Email,
		FullName:      in.FullName,
		PasswordHash:  hash,
		AvatarURL:     avatar.URL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		s.discard(ctx, uploaded...)
		if customErrors.IsDuplicateUsername(err) || customErrors.IsDuplicateEmail(err) {
			return model.PublicAccount{}, err
		}
		return model.PublicAccount{}, customErrors.WrapPersistence(err, "Register")
	}

	created, err := s.accounts.GetByID(ctx, id, repo.Public)
	if err != nil {
		return model.PublicAccount{}, customErrors.WrapPersistence(err, "Register: re-read created account")
	}
	return created.Public(), nil
}

func (s *accountService) Login(ctx context.Context, in dto.LoginDTO) (model.Session, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.TrimSpace(in.Email)
	if err := s.v.Struct(in); err != nil {
		return model.Session{}, customErrors.NewValidation("username or email and a password are required")
	}

	p := repo.Projection{OmitRefreshToken: true}
	var (
		acct model.Account
		err  error
	)
	if in.Username != "" {
		acct, err = s.accounts.GetByUsername(ctx, in.Username, p)
	} else {
		acct, err = s.accounts.GetByEmail(ctx, in.Email, p)
	}
	switch {
	case customErrors.IsNotFound(err):
		return model.Session{}, customErrors.ErrAccountNotFound
	case err != nil:
		return model.Session{}, customErrors.WrapPersistence(err, "Login")
	}

	ok, err := s.hasher.Verify(in.Password, acct.PasswordHash)
	if err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}
	if !ok {
		return model.Session{}, customErrors.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, acct.ID)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{Account: acct.Public(), Tokens: pair}, nil
}

// Logout clears the refresh slot and deny-lists the access token that made
// the call.
func (s *accountService) Logout(ctx context.Context, id model.Identity) error {
	if err := s.tokens.Revoke(ctx, id.AccountID); err != nil {
		return err
	}
	return s.tokens.RevokeAccess(ctx, id)
}

func (s *accountService) Refresh(ctx context.Context, in dto.RefreshDTO) (model.TokenPair, error) {
	return s.tokens.Rotate(ctx, strings.TrimSpace(in.RefreshToken))
}

// Authenticate verifies accessToken and checks that its account still exists.
func (s *accountService) Authenticate(ctx context.Context, accessToken string) (model.Identity, error) {
	id, err := s.tokens.VerifyAccess(ctx, accessToken)
	if err != nil {
		return model.Identity{}, err
	}
	_, err = s.accounts.GetByID(ctx, id.AccountID, repo.Public)
	switch {
	case customErrors.IsNotFound(err):
		return model.Identity{}, fmt.Errorf("%w: account no longer exists", customErrors.ErrTokenInvalid)
	case err != nil:
		return model.Identity{}, customErrors.WrapPersistence(err, "Authenticate")
	}
	return id, nil
}

func (s *accountService) GetCurrent(ctx context.Context, id uuid.UUID) (model.PublicAccount, error) {
	acct, err := s.load(ctx, id, repo.Public, "GetCurrent")
	if err != nil {
		return model.PublicAccount{}, err
	}
	return acct.Public(), nil
}

func (s *accountService) ChangePassword(ctx context.Context, id uuid.UUID, in dto.ChangePasswordDTO) error {
	if err := s.v.Struct(in); err != nil {
		return customErrors.NewValidation("old and new password are required")
	}

	acct, err := s.load(ctx, id, repo.Projection{OmitRefreshToken: true}, "ChangePassword")
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(in.OldPassword, acct.PasswordHash)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !ok {
		return customErrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if _, err := s.accounts.UpdateFields(ctx, id, model.AccountFields{PasswordHash: &hash}, repo.Public); err != nil {
		return s.translate(err, "ChangePassword")
	}

	if s.opts.RevokeSessionsOnPasswordChange {
		return s.tokens.Revoke(ctx, id)
	}
	return nil
}

func (s *accountService) UpdateProfile(ctx context.Context, id uuid.UUID, in dto.UpdateProfileDTO) (model.PublicAccount, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.v.Struct(in); err != nil {
		return model.PublicAccount{}, customErrors.NewValidation("all fields are required")
	}

	updated, err := s.accounts.UpdateFields(ctx, id, model.AccountFields{
		FullName: &in.FullName,
		Email:    &in.Email,
	}, repo.Public)
	if err != nil {
		if customErrors.IsDuplicateEmail(err) {
			return model.PublicAccount{}, err
		}
		return model.PublicAccount{}, s.translate(err, "UpdateProfile")
	}
	return updated.Public(), nil
}

func (s *accountService) UpdateAvatar(ctx context.Context, id uuid.UUID, src model.ImageSource) (model.PublicAccount, error) {
	return s.replaceImage(ctx, id, src, avatarSlot)
}

func (s *accountService) UpdateCoverImage(ctx context.Context, id uuid.UUID, src model.ImageSource) (model.PublicAccount, error) {
	return s.replaceImage(ctx, id, src, coverSlot)
}

type imageSlot struct {
	name string
	// priorRequired makes a missing previous URL an InconsistentState.
	priorRequired bool
	get           func(model.Account) string
	set           func(*model.AccountFields, string)
}

var (
	avatarSlot = imageSlot{
		name:          "avatar",
		priorRequired: true,
		get:           func(a model.Account) string { return a.AvatarURL },
		set:           func(f *model.AccountFields, url string) { f.AvatarURL = &url },
	}
	coverSlot = imageSlot{
		name: "cover image",
		get:  func(a model.Account) string { return a.CoverImageURL },
		set:  func(f *model.AccountFields, url string) { f.CoverImageURL = &url },
	}
)

// replaceImage uploads first, commits the new URL, and only then deletes the
// previous blob.
func (s *accountService) replaceImage(ctx context.Context, id uuid.UUID, src model.ImageSource, slot imageSlot) (model.PublicAccount, error) {
	defer s.release(src)

	if src == nil {
		return model.PublicAccount{}, customErrors.NewValidation(slot.name + " file is missing")
	}

	current, err := s.load(ctx, id, repo.Public, "Update "+slot.name)
	if err != nil {
		return model.PublicAccount{}, err
	}
	prior := slot.get(current)

	asset, ok := s.blobs.Upload(ctx, src)
	if !ok || asset.URL == "" {
		return model.PublicAccount{}, fmt.Errorf("%w: error while uploading %s", customErrors.ErrUploadFailed, slot.name)
	}

	var fields model.AccountFields
	slot.set(&fields, asset.URL)
	updated, err := s.accounts.UpdateFields(ctx, id, fields, repo.Public)
	if err != nil {
		s.discard(ctx, asset.URL)
		return model.PublicAccount{}, s.translate(err, "Update "+slot.name)
	}

	if prior == "" {
		if slot.priorRequired {
			s.log.Error("account had no previous image",
				zap.String("account_id", id.String()), zap.String("slot", slot.name))
			return updated.Public(), fmt.Errorf("%w: no previous %s on record", customErrors.ErrInconsistentState, slot.name)
		}
		return updated.Public(), nil
	}
	if err := s.blobs.Delete(ctx, prior); err != nil {
		s.log.Warn("failed to delete previous image",
			zap.String("account_id", id.String()),
			zap.String("slot", slot.name),
			zap.String("url", prior),
			zap.Error(err))
	}
	return updated.Public(), nil
}

func (s *accountService) load(ctx context.Context, id uuid.UUID, p repo.Projection, op string) (model.Account, error) {
	acct, err := s.accounts.GetByID(ctx, id, p)
	if err != nil {
		return model.Account{}, s.translate(err, op)
	}
	return acct, nil
}

func (s *accountService) translate(err error, op string) error {
	if customErrors.IsNotFound(err) {
		return customErrors.ErrAccountNotFound
	}
	return customErrors.WrapPersistence(err, op)
}

type lookupFunc func(context.Context, string, repo.Projection) (model.Account, error)

func (s *accountService) exists(ctx context.Context, find lookupFunc, key string) (bool, error) {
	_, err := find(ctx, key, repo.Public)
	switch {
	case err == nil:
		return true, nil
	case customErrors.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// discard removes blobs uploaded by an operation that did not commit.
func (s *accountService) discard(ctx context.Context, urls ...string) {
	for _, u := range urls {
		if err := s.blobs.Delete(ctx, u); err != nil {
			s.log.Warn("failed to discard uploaded blob", zap.String("url", u), zap.Error(err))
		}
	}
}

func (s *accountService) release(srcs ...model.ImageSource) {
	for _, src := range srcs {
		if src == nil {
			continue
		}
		if err := src.Release(); err != nil {
			s.log.Warn("failed to release upload", zap.String("name", src.Name()), zap.Error(err))
		}
	}
}
