package postgres

import (
	"context"
	"errors"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresAccountRepo struct {
	db  *gorm.DB
	now func() time.Time
}

var _ repo.AccountRepo = (*PostgresAccountRepo)(nil)

func NewPostgresAccountRepo(db *gorm.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db, now: time.Now}
}

func (p *PostgresAccountRepo) Create(ctx context.Context, a model.Account) (uuid.UUID, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	rec := toAccountRecord(a)
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if dup := classifyUnique(err); dup != nil {
			return uuid.Nil, dup
		}
		return uuid.Nil, customErrors.WrapPersistence(err, "CreateAccount")
	}
	return rec.ID, nil
}

func (p *PostgresAccountRepo) GetByID(ctx context.Context, id uuid.UUID, proj repo.Projection) (model.Account, error) {
	return p.first(ctx, proj, "GetAccountByID", "id = ?", id)
}

func (p *PostgresAccountRepo) GetByUsername(ctx context.Context, username string, proj repo.Projection) (model.Account, error) {
	return p.first(ctx, proj, "GetAccountByUsername", "username = ?", username)
}

func (p *PostgresAccountRepo) GetByEmail(ctx context.Context, email string, proj repo.Projection) (model.Account, error) {
	return p.first(ctx, proj, "GetAccountByEmail", "email = ?", email)
}

func (p *PostgresAccountRepo) UpdateFields(ctx context.Context, id uuid.UUID, f model.AccountFields, proj repo.Projection) (model.Account, error) {
	changes := map[string]any{"updated_at": p.now()}
	if f.FullName != nil {
		changes["full_name"] = *f.FullName
	}
	if f.Email != nil {
		changes["email"] = *f.Email
	}
	if f.PasswordHash != nil {
		changes["password_hash"] = *f.PasswordHash
	}
	if f.AvatarURL != nil {
		changes["avatar_url"] = *f.AvatarURL
	}
	if f.CoverImageURL != nil {
		changes["cover_image_url"] = *f.CoverImageURL
	}
	if f.RefreshToken != nil {
		if *f.RefreshToken == "" {
			changes["refresh_token"] = nil
		} else {
			changes["refresh_token"] = *f.RefreshToken
		}
	}

	var out model.Account
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&accountRecord{}).Where("id = ?", id).Updates(changes)
		if res.Error != nil {
			if dup := classifyUnique(res.Error); dup != nil {
				return dup
			}
			return customErrors.WrapPersistence(res.Error, "UpdateAccount")
		}
		if res.RowsAffected == 0 {
			return customErrors.ErrNotFound
		}

		var rec accountRecord
		if err := tx.Omit(omitted(proj)...).Where("id = ?", id).First(&rec).Error; err != nil {
			return customErrors.WrapPersistence(err, "UpdateAccount: reload")
		}
		out = rec.toModel()
		return nil
	})
	if err != nil {
		return model.Account{}, err
	}
	return out, nil
}

func (p *PostgresAccountRepo) SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) (bool, error) {
	q := p.db.WithContext(ctx).Model(&accountRecord{}).Where("id = ?", id)
	if expected == "" {
		q = q.Where("refresh_token IS NULL")
	} else {
		q = q.Where("refresh_token = ?", expected)
	}

	var value any = next
	if next == "" {
		value = nil
	}
	res := q.Updates(map[string]any{"refresh_token": value, "updated_at": p.now()})
	if res.Error != nil {
		return false, customErrors.WrapPersistence(res.Error, "SwapRefreshToken")
	}
	return res.RowsAffected == 1, nil
}

func (p *PostgresAccountRepo) FindOwners(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.OwnerSummary, error) {
	out := make(map[uuid.UUID]model.OwnerSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var recs []accountRecord
	err := p.db.WithContext(ctx).
		Select("id", "full_name", "username", "avatar_url").
		Where("id IN ?", ids).
		Find(&recs).Error
	if err != nil {
		return nil, customErrors.WrapPersistence(err, "FindOwners")
	}
	for _, r := range recs {
		out[r.ID] = model.OwnerSummary{FullName: r.FullName, Username: r.Username, AvatarURL: r.AvatarURL}
	}
	return out, nil
}

func (p *PostgresAccountRepo) first(ctx context.Context, proj repo.Projection, op, query string, arg any) (model.Account, error) {
	var rec accountRecord
	res := p.db.WithContext(ctx).Omit(omitted(proj)...).Where(query, arg).First(&rec)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.Account{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.Account{}, customErrors.WrapPersistence(err, op)
	}
	return rec.toModel(), nil
}
