package model

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Account is the stored identity record. PasswordHash and RefreshToken never
// leave the service layer; callers get a PublicAccount instead.
type Account struct {
	ID            uuid.UUID
	Username      string
	Email         string
	FullName      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
	RefreshToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Public drops the write-only fields.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FullName:      a.FullName,
		AvatarURL:     a.AvatarURL,
		CoverImageURL: a.CoverImageURL,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type PublicAccount struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// AccountFields is a partial update. Nil pointers are left untouched.
type AccountFields struct {
	FullName      *string
	Email         *string
	PasswordHash  *string
	AvatarURL     *string
	CoverImageURL *string
	RefreshToken  *string
}

type Subscription struct {
	ID           uuid.UUID
	SubscriberID uuid.UUID
	ChannelID    uuid.UUID
	CreatedAt    time.Time
}

type Video struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      uuid.UUID `json:"-"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnail"`
	VideoURL     string    `json:"videoFile"`
	Duration     float64   `json:"duration"`
	Views        int64     `json:"views"`
	IsPublished  bool      `json:"isPublished"`
	CreatedAt    time.Time `json:"createdAt"`
}

type OwnerSummary struct {
	FullName  string `json:"fullName"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar"`
}

type HistoryEntry struct {
	Video
	Owner OwnerSummary `json:"owner"`
}

type ChannelProfile struct {
	ID                uuid.UUID `json:"id"`
	FullName          string    `json:"fullName"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	AvatarURL         string    `json:"avatar"`
	CoverImageURL     string    `json:"coverImage,omitempty"`
	SubscribersCount  int64     `json:"subscribersCount"`
	SubscribedToCount int64     `json:"channelsSubscribedToCount"`
	IsSubscribed      bool      `json:"isSubscribed"`
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	AccountID    uuid.UUID
}

// Identity is what a verified access token proves about the caller.
type Identity struct {
	AccountID uuid.UUID
	TokenID   string
	ExpiresAt time.Time
}

// Session is the result of a successful login.
type Session struct {
	Account PublicAccount
	Tokens  TokenPair
}

// ImageSource is a local, temporary upload handed over by the transport layer.
// Release must be safe to call more than once.
type ImageSource interface {
	Name() string
	ContentType() string
	Open() (io.ReadCloser, error)
	Release() error
}

// Asset is a durable blob reference returned by the blob store.
type Asset struct {
	URL string
}
