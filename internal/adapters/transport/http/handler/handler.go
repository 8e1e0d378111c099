package handler

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/blob/tempfile"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/response"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChannelViews interface {
	GetChannelProfile(ctx context.Context, viewer uuid.UUID, username string) (model.ChannelProfile, error)
	GetWatchHistory(ctx context.Context, accountID uuid.UUID) ([]model.HistoryEntry, error)
}

type Handler struct {
	accounts  account.Service
	channels  ChannelViews
	cookies   CookieSettings
	uploadDir string
	log       *zap.Logger
}

func New(accounts account.Service, channels ChannelViews, cookies CookieSettings, uploadDir string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{accounts: accounts, channels: channels, cookies: cookies, uploadDir: uploadDir, log: log}
}

func (h *Handler) Register(c *gin.Context) {
	defer removeMultipart(c)

	var body dto.RegisterDTO
	if err := c.ShouldBind(&body); err != nil {
		response.Error(c, customErrors.NewValidation(err.Error()))
		return
	}

	avatar, err := h.spool(c, "avatar")
	if err != nil {
		response.Error(c, err)
		return
	}
	cover, err := h.spool(c, "coverImage")
	if err != nil {
		if avatar != nil {
			_ = avatar.Release()
		}
		response.Error(c, err)
		return
	}
	if avatar != nil {
		body.Avatar = avatar
	}
	if cover != nil {
		body.CoverImage = cover
	}

	h.log.Info("/register", zap.String("user", digest(body.Email)))
	acct, err := h.accounts.Register(c.Request.Context(), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusCreated, acct, "User registered successfully")
}

func (h *Handler) Login(c *gin.Context) {
	var body dto.LoginDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, customErrors.NewValidation(err.Error()))
		return
	}
	h.log.Info("/login", zap.String("user", digest(body.Email+body.Username)))

	session, err := h.accounts.Login(c.Request.Context(), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	setSessionCookies(c, session.Tokens, h.cookies)
	response.OK(c, http.StatusOK, dto.LoginResponseDTO{
		User:      session.Account,
		TokensDTO: tokens(session.Tokens),
	}, "User logged in successfully")
}

func (h *Handler) Logout(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	if err := h.accounts.Logout(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	clearSessionCookies(c, h.cookies)
	response.OK(c, http.StatusOK, nil, "User logged out")
}

// RefreshToken accepts the token from the JSON body or the refreshToken cookie.
func (h *Handler) RefreshToken(c *gin.Context) {
	var body dto.RefreshDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, customErrors.NewValidation(err.Error()))
			return
		}
	}
	if body.RefreshToken == "" {
		body.RefreshToken, _ = c.Cookie(middleware.RefreshCookie)
	}

	pair, err := h.accounts.Refresh(c.Request.Context(), body)
	if err != nil {
		if customErrors.IsTokenReused(err) {
			clearSessionCookies(c, h.cookies)
		}
		response.Error(c, err)
		return
	}
	setSessionCookies(c, pair, h.cookies)
	response.OK(c, http.StatusOK, tokens(pair), "Access token refreshed")
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var body dto.ChangePasswordDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, customErrors.NewValidation(err.Error()))
		return
	}
	id, _ := middleware.IdentityFrom(c)
	if err := h.accounts.ChangePassword(c.Request.Context(), id.AccountID, body); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, nil, "Password updated successfully")
}

func (h *Handler) CurrentUser(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	acct, err := h.accounts.GetCurrent(c.Request.Context(), id.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, acct, "Current user fetched successfully")
}

func (h *Handler) UpdateAccount(c *gin.Context) {
	var body dto.UpdateProfileDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, customErrors.NewValidation(err.Error()))
		return
	}
	id, _ := middleware.IdentityFrom(c)
	acct, err := h.accounts.UpdateProfile(c.Request.Context(), id.AccountID, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, acct, "Account details updated successfully")
}

func (h *Handler) UpdateAvatar(c *gin.Context) {
	h.replaceImage(c, "avatar", h.accounts.UpdateAvatar, "Avatar updated successfully")
}

func (h *Handler) UpdateCoverImage(c *gin.Context) {
	h.replaceImage(c, "coverImage", h.accounts.UpdateCoverImage, "Cover image updated successfully")
}

type imageUpdate func(context.Context, uuid.UUID, model.ImageSource) (model.PublicAccount, error)

func (h *Handler) replaceImage(c *gin.Context, field string, update imageUpdate, msg string) {
	defer removeMultipart(c)

	src, err := h.spool(c, field)
	if err != nil {
		response.Error(c, err)
		return
	}
	var img model.ImageSource
	if src != nil {
		img = src
	}

	id, _ := middleware.IdentityFrom(c)
	acct, err := update(c.Request.Context(), id.AccountID, img)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, acct, msg)
}

func (h *Handler) ChannelProfile(c *gin.Context) {
	viewer := uuid.Nil
	if id, ok := middleware.IdentityFrom(c); ok {
		viewer = id.AccountID
	}
	profile, err := h.channels.GetChannelProfile(c.Request.Context(), viewer, c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, profile, "User channel fetched successfully")
}

func (h *Handler) WatchHistory(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	entries, err := h.channels.GetWatchHistory(c.Request.Context(), id.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, entries, "Watch history fetched successfully")
}

// spool saves the named multipart file to the upload dir. A missing file
// yields (nil, nil) so the service can decide whether it was required.
func (h *Handler) spool(c *gin.Context, field string) (*tempfile.Source, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, customErrors.NewValidation(fmt.Sprintf("%s: %v", field, err))
	}
	src, err := tempfile.Save(h.uploadDir, fh)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", field, err)
	}
	if !src.IsImage() {
		_ = src.Release()
		return nil, customErrors.NewValidation(field + " must be an image")
	}
	return src, nil
}

func tokens(p model.TokenPair) dto.TokensDTO {
	return dto.TokensDTO{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}

func removeMultipart(c *gin.Context) {
	if f := c.Request.MultipartForm; f != nil {
		_ = f.RemoveAll()
	}
}

func digest(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s)))))
}
