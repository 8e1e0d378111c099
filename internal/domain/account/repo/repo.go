package repo

import (
	"context"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/google/uuid"
)

// Projection controls which sensitive columns a read returns. The zero value
// returns the full record.
type Projection struct {
	OmitPasswordHash bool
	OmitRefreshToken bool
}

// Public is the projection used for anything that leaves the service.
var Public = Projection{OmitPasswordHash: true, OmitRefreshToken: true}

type AccountRepo interface {
	Create(ctx context.Context, a model.Account) (uuid.UUID, error)

	GetByID(ctx context.Context, id uuid.UUID, p Projection) (model.Account, error)

	GetByUsername(ctx context.Context, username string, p Projection) (model.Account, error)

	GetByEmail(ctx context.Context, email string, p Projection) (model.Account, error)

	// UpdateFields applies f and returns the updated record under p.
	UpdateFields(ctx context.Context, id uuid.UUID, f model.AccountFields, p Projection) (model.Account, error)

	// SwapRefreshToken replaces the stored refresh token only if it still
	// equals expected. It reports whether the swap happened.
	SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) (bool, error)

	// FindOwners returns owner summaries keyed by account id. Unknown ids are absent.
	FindOwners(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.OwnerSummary, error)
}

type SubscriptionRepo interface {
	CountSubscribers(ctx context.Context, channelID uuid.UUID) (int64, error)

	CountSubscribedTo(ctx context.Context, subscriberID uuid.UUID) (int64, error)

	Exists(ctx context.Context, subscriberID, channelID uuid.UUID) (bool, error)
}

type HistoryRepo interface {
	// WatchHistory returns video ids most-recent-first. Duplicates are kept.
	WatchHistory(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error)
}

type VideoRepo interface {
	// FindByIDs returns the videos that still exist, keyed by id.
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Video, error)
}

// BlobStore is the durable media storage. Upload reports failure through ok
// instead of an error so callers can translate it into their own kind.
type BlobStore interface {
	Upload(ctx context.Context, src model.ImageSource) (asset model.Asset, ok bool)

	Delete(ctx context.Context, url string) error
}

type AccessDenylist interface {
	RevokeAccess(ctx context.Context, jti string, expiresAt time.Time) error

	IsAccessRevoked(ctx context.Context, jti string) (bool, error)
}
