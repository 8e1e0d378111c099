// Package memory is an in-process implementation of the account store
// contracts. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/google/uuid"
)

type Store struct {
	mu            sync.RWMutex
	accounts      map[uuid.UUID]model.Account
	subscriptions map[[2]uuid.UUID]model.Subscription
	videos        map[uuid.UUID]model.Video
	history       map[uuid.UUID][]uuid.UUID
	now           func() time.Time
}

var (
	_ repo.AccountRepo      = (*Store)(nil)
	_ repo.SubscriptionRepo = (*Store)(nil)
	_ repo.HistoryRepo      = (*Store)(nil)
	_ repo.VideoRepo        = (*Store)(nil)
)

func New() *Store {
	return &Store{
		accounts:      make(map[uuid.UUID]model.Account),
		subscriptions: make(map[[2]uuid.UUID]model.Subscription),
		videos:        make(map[uuid.UUID]model.Video),
		history:       make(map[uuid.UUID][]uuid.UUID),
		now:           time.Now,
	}
}

func (s *Store) Create(_ context.Context, a model.Account) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Username == a.Username {
			return uuid.Nil, customErrors.ErrDuplicateUsername
		}
		if existing.Email == a.Email {
			return uuid.Nil, customErrors.ErrDuplicateEmail
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = a
	return a.ID, nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID, p repo.Projection) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, customErrors.ErrNotFound
	}
	return project(a, p), nil
}

func (s *Store) GetByUsername(_ context.Context, username string, p repo.Projection) (model.Account, error) {
	return s.findOne(func(a model.Account) bool { return a.Username == username }, p)
}

func (s *Store) GetByEmail(_ context.Context, email string, p repo.Projection) (model.Account, error) {
	return s.findOne(func(a model.Account) bool { return a.Email == email }, p)
}

func (s *Store) UpdateFields(_ context.Context, id uuid.UUID, f model.AccountFields, p repo.Projection) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, customErrors.ErrNotFound
	}
	if f.Email != nil && *f.Email != a.Email {
		for otherID, other := range s.accounts {
			if otherID != id && other.Email == *f.Email {
				return model.Account{}, customErrors.ErrDuplicateEmail
			}
		}
	}
	apply(&a, f)
	a.UpdatedAt = s.now()
	s.accounts[id] = a
	return project(a, p), nil
}

func (s *Store) SwapRefreshToken(_ context.Context, id uuid.UUID, expected, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok || a.RefreshToken != expected {
		return false, nil
	}
	a.RefreshToken = next
	a.UpdatedAt = s.now()
	s.accounts[id] = a
	return true, nil
}

func (s *Store) FindOwners(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.OwnerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]model.OwnerSummary, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = model.OwnerSummary{FullName: a.FullName, Username: a.Username, AvatarURL: a.AvatarURL}
		}
	}
	return out, nil
}

func (s *Store) CountSubscribers(_ context.Context, channelID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, sub := range s.subscriptions {
		if sub.ChannelID == channelID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountSubscribedTo(_ context.Context, subscriberID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, sub := range s.subscriptions {
		if sub.SubscriberID == subscriberID {
			n++
		}
	}
	return n, nil
}

func (s *Store) Exists(_ context.Context, subscriberID, channelID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.subscriptions[[2]uuid.UUID{subscriberID, channelID}]
	return ok, nil
}

func (s *Store) WatchHistory(_ context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, customErrors.ErrNotFound
	}
	return append([]uuid.UUID(nil), s.history[accountID]...), nil
}

func (s *Store) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]model.Video, len(ids))
	for _, id := range ids {
		if v, ok := s.videos[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

// Subscribe adds a subscription edge. A second edge for the same pair is rejected.
func (s *Store) Subscribe(subscriberID, channelID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]uuid.UUID{subscriberID, channelID}
	if _, ok := s.subscriptions[key]; ok {
		return fmt.Errorf("%w: subscription", customErrors.ErrAlreadyExists)
	}
	s.subscriptions[key] = model.Subscription{
		ID: uuid.New(), SubscriberID: subscriberID, ChannelID: channelID, CreatedAt: s.now(),
	}
	return nil
}

func (s *Store) PutVideo(v model.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	s.videos[v.ID] = v
}

func (s *Store) DeleteVideo(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.videos, id)
}

// RecordView puts videoID at the head of the account's watch history.
func (s *Store) RecordView(accountID, videoID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[accountID] = append([]uuid.UUID{videoID}, s.history[accountID]...)
}

func (s *Store) findOne(match func(model.Account) bool, p repo.Projection) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if match(a) {
			return project(a, p), nil
		}
	}
	return model.Account{}, customErrors.ErrNotFound
}

func apply(a *model.Account, f model.AccountFields) {
	if f.FullName != nil {
		a.FullName = *f.FullName
	}
	if f.Email != nil {
		a.Email = *f.Email
	}
	if f.PasswordHash != nil {
		a.PasswordHash = *f.PasswordHash
	}
	if f.AvatarURL != nil {
		a.AvatarURL = *f.AvatarURL
	}
	if f.CoverImageURL != nil {
		a.CoverImageURL = *f.CoverImageURL
	}
	if f.RefreshToken != nil {
		a.RefreshToken = *f.RefreshToken
	}
}

func project(a model.Account, p repo.Projection) model.Account {
	if p.OmitPasswordHash {
		a.PasswordHash = ""
	}
	if p.OmitRefreshToken {
		a.RefreshToken = ""
	}
	return a
}
