package grpc

import (
	"context"
	"strings"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ChannelViews interface {
	GetChannelProfile(ctx context.Context, viewer uuid.UUID, username string) (model.ChannelProfile, error)
}

type Handler struct {
	accounts account.Service
	channels ChannelViews
	log      *zap.Logger
}

var _ SessionServer = (*Handler)(nil)

func NewHandler(accounts account.Service, channels ChannelViews, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{accounts: accounts, channels: channels, log: log}
}

func (h *Handler) VerifyAccess(ctx context.Context, req *VerifyAccessRequest) (*VerifyAccessResponse, error) {
	id, err := h.accounts.Authenticate(ctx, strings.TrimSpace(req.AccessToken))
	if err != nil {
		return nil, h.mapError("VerifyAccess", err)
	}
	return &VerifyAccessResponse{
		AccountID: id.AccountID.String(),
		TokenID:   id.TokenID,
		ExpiresAt: id.ExpiresAt.Unix(),
	}, nil
}

func (h *Handler) GetAccount(ctx context.Context, req *GetAccountRequest) (*Account, error) {
	id, err := uuid.Parse(req.AccountID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "accountId must be a uuid")
	}
	acct, err := h.accounts.GetCurrent(ctx, id)
	if err != nil {
		return nil, h.mapError("GetAccount", err)
	}
	return &Account{
		ID:            acct.ID.String(),
		Username:      acct.Username,
		Email:         acct.Email,
		FullName:      acct.FullName,
		AvatarURL:     acct.AvatarURL,
		CoverImageURL: acct.CoverImageURL,
		CreatedAt:     acct.CreatedAt.Unix(),
	}, nil
}

func (h *Handler) GetChannelProfile(ctx context.Context, req *GetChannelProfileRequest) (*ChannelProfile, error) {
	viewer := uuid.Nil
	if req.ViewerID != "" {
		v, err := uuid.Parse(req.ViewerID)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "viewerId must be a uuid")
		}
		viewer = v
	}
	p, err := h.channels.GetChannelProfile(ctx, viewer, req.Username)
	if err != nil {
		return nil, h.mapError("GetChannelProfile", err)
	}
	return &ChannelProfile{
		ID:                p.ID.String(),
		Username:          p.Username,
		FullName:          p.FullName,
		Email:             p.Email,
		AvatarURL:         p.AvatarURL,
		CoverImageURL:     p.CoverImageURL,
		SubscribersCount:  p.SubscribersCount,
		SubscribedToCount: p.SubscribedToCount,
		IsSubscribed:      p.IsSubscribed,
	}, nil
}

// mapError turns a domain error into a status. Internal failures are logged
// and reported without detail.
func (h *Handler) mapError(method string, err error) error {
	kind := customErrors.KindOf(err)
	code := codeFor(kind)
	if code == codes.Internal || code == codes.Unavailable {
		h.log.Error("grpc call failed", zap.String("method", method), zap.Error(err))
		return status.Error(code, string(kind))
	}
	return status.Error(code, string(kind)+": "+err.Error())
}

func codeFor(k customErrors.Kind) codes.Code {
	switch k {
	case customErrors.KindValidation, customErrors.KindUploadFailed:
		return codes.InvalidArgument
	case customErrors.KindDuplicateUsername, customErrors.KindDuplicateEmail:
		return codes.AlreadyExists
	case customErrors.KindAccountNotFound, customErrors.KindChannelNotFound:
		return codes.NotFound
	case customErrors.KindInvalidCredentials,
		customErrors.KindTokenInvalid,
		customErrors.KindTokenExpired,
		customErrors.KindTokenReused:
		return codes.Unauthenticated
	case customErrors.KindPersistence:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
