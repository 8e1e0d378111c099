package postgres

import (
	"errors"
	"strings"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	uniqueAccountsUsername = "idx_accounts_username"
	uniqueAccountsEmail    = "idx_accounts_email"
)

type accountRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username      string    `gorm:"not null;uniqueIndex:idx_accounts_username"`
	Email         string    `gorm:"not null;uniqueIndex:idx_accounts_email"`
	FullName      string    `gorm:"not null"`
	PasswordHash  string    `gorm:"not null"`
	AvatarURL     string    `gorm:"not null;default:''"`
	CoverImageURL string    `gorm:"not null;default:''"`
	RefreshToken  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (accountRecord) TableName() string { return "accounts" }

type subscriptionRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubscriberID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_subscriptions_pair,priority:1"`
	ChannelID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_subscriptions_pair,priority:2;index"`
	CreatedAt    time.Time
}

func (subscriptionRecord) TableName() string { return "subscriptions" }

type videoRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Title        string    `gorm:"not null"`
	Description  string
	ThumbnailURL string
	VideoURL     string
	Duration     float64
	Views        int64
	IsPublished  bool
	CreatedAt    time.Time
}

func (videoRecord) TableName() string { return "videos" }

// watchHistoryRecord is one view event. The newest row for an account comes
// first when ordered by watched_at then id, both descending.
type watchHistoryRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index:idx_watch_history_account"`
	VideoID   uuid.UUID `gorm:"type:uuid;not null"`
	WatchedAt time.Time `gorm:"not null"`
}

func (watchHistoryRecord) TableName() string { return "watch_history" }

// Models lists every table owned by this adapter, for AutoMigrate in tests
// and local tooling.
func Models() []any {
	return []any{&accountRecord{}, &subscriptionRecord{}, &videoRecord{}, &watchHistoryRecord{}}
}

func toAccountRecord(a model.Account) accountRecord {
	r := accountRecord{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FullName:      a.FullName,
		PasswordHash:  a.PasswordHash,
		AvatarURL:     a.AvatarURL,
		CoverImageURL: a.CoverImageURL,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.RefreshToken != "" {
		rt := a.RefreshToken
		r.RefreshToken = &rt
	}
	return r
}

func (r accountRecord) toModel() model.Account {
	a := model.Account{
		ID:            r.ID,
		Username:      r.Username,
		Email:         r.Email,
		FullName:      r.FullName,
		PasswordHash:  r.PasswordHash,
		AvatarURL:     r.AvatarURL,
		CoverImageURL: r.CoverImageURL,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.RefreshToken != nil {
		a.RefreshToken = *r.RefreshToken
	}
	return a
}

func (r videoRecord) toModel() model.Video {
	return model.Video{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Title:        r.Title,
		Description:  r.Description,
		ThumbnailURL: r.ThumbnailURL,
		VideoURL:     r.VideoURL,
		Duration:     r.Duration,
		Views:        r.Views,
		IsPublished:  r.IsPublished,
		CreatedAt:    r.CreatedAt,
	}
}

// omitted returns the columns a projection drops.
func omitted(p repo.Projection) []string {
	var cols []string
	if p.OmitPasswordHash {
		cols = append(cols, "password_hash")
	}
	if p.OmitRefreshToken {
		cols = append(cols, "refresh_token")
	}
	return cols
}

// classifyUnique maps a unique violation onto the field-specific error. It
// returns nil when err is not a unique violation.
func classifyUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return nil
		}
		switch pgErr.ConstraintName {
		case uniqueAccountsUsername:
			return customErrors.ErrDuplicateUsername
		case uniqueAccountsEmail:
			return customErrors.ErrDuplicateEmail
		}
		return customErrors.ErrAlreadyExists
	}

	// sqlite reports the column instead of the index name.
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		switch {
		case strings.Contains(msg, "accounts.username"):
			return customErrors.ErrDuplicateUsername
		case strings.Contains(msg, "accounts.email"):
			return customErrors.ErrDuplicateEmail
		}
		return customErrors.ErrAlreadyExists
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return customErrors.ErrAlreadyExists
	}
	return nil
}
