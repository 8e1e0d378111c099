package postgres

import (
	"context"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresSubscriptionRepo struct {
	db *gorm.DB
}

var _ repo.SubscriptionRepo = (*PostgresSubscriptionRepo)(nil)

func NewPostgresSubscriptionRepo(db *gorm.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

func (p *PostgresSubscriptionRepo) CountSubscribers(ctx context.Context, channelID uuid.UUID) (int64, error) {
	return p.count(ctx, "CountSubscribers", "channel_id = ?", channelID)
}

func (p *PostgresSubscriptionRepo) CountSubscribedTo(ctx context.Context, subscriberID uuid.UUID) (int64, error) {
	return p.count(ctx, "CountSubscribedTo", "subscriber_id = ?", subscriberID)
}

func (p *PostgresSubscriptionRepo) Exists(ctx context.Context, subscriberID, channelID uuid.UUID) (bool, error) {
	n, err := p.count(ctx, "SubscriptionExists", "subscriber_id = ? AND channel_id = ?", subscriberID, channelID)
	return n > 0, err
}

func (p *PostgresSubscriptionRepo) count(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&subscriptionRecord{}).Where(query, args...).Count(&n).Error; err != nil {
		return 0, customErrors.WrapPersistence(err, op)
	}
	return n, nil
}

type PostgresHistoryRepo struct {
	db  *gorm.DB
	now func() time.Time
}

var _ repo.HistoryRepo = (*PostgresHistoryRepo)(nil)

func NewPostgresHistoryRepo(db *gorm.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db, now: time.Now}
}

func (p *PostgresHistoryRepo) WatchHistory(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	db := p.db.WithContext(ctx)

	var n int64
	if err := db.Model(&accountRecord{}).Where("id = ?", accountID).Count(&n).Error; err != nil {
		return nil, customErrors.WrapPersistence(err, "WatchHistory")
	}
	if n == 0 {
		return nil, customErrors.ErrNotFound
	}

	var recs []watchHistoryRecord
	err := db.Select("video_id").
		Where("account_id = ?", accountID).
		Order("watched_at DESC").Order("id DESC").
		Find(&recs).Error
	if err != nil {
		return nil, customErrors.WrapPersistence(err, "WatchHistory")
	}
	ids := make([]uuid.UUID, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.VideoID)
	}
	return ids, nil
}

// RecordView appends a view event.
func (p *PostgresHistoryRepo) RecordView(ctx context.Context, accountID, videoID uuid.UUID) error {
	rec := watchHistoryRecord{AccountID: accountID, VideoID: videoID, WatchedAt: p.now()}
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return customErrors.WrapPersistence(err, "RecordView")
	}
	return nil
}

type PostgresVideoRepo struct {
	db *gorm.DB
}

var _ repo.VideoRepo = (*PostgresVideoRepo)(nil)

func NewPostgresVideoRepo(db *gorm.DB) *PostgresVideoRepo {
	return &PostgresVideoRepo{db: db}
}

func (p *PostgresVideoRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Video, error) {
	out := make(map[uuid.UUID]model.Video, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var recs []videoRecord
	if err := p.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, customErrors.WrapPersistence(err, "FindVideos")
	}
	for _, r := range recs {
		out[r.ID] = r.toModel()
	}
	return out, nil
}
