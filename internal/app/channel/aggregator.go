// Package channel builds the read-side views that join accounts with their
// subscriptions and watch history.
//
// Both views run as fixed stage sequences. Matching and filtering always
// happen before the owner join so the join only sees rows that survive.
package channel

import (
	"context"
	"strings"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Stage string

const (
	StageMatch   Stage = "match"
	StageFilter  Stage = "filter"
	StageCount   Stage = "count"
	StageJoin    Stage = "join"
	StageProject Stage = "project"
)

var (
	profileStages = []Stage{StageMatch, StageCount, StageProject}
	historyStages = []Stage{StageMatch, StageFilter, StageJoin, StageProject}
)

// ProfileStages and HistoryStages return the order in which each view runs.
func ProfileStages() []Stage { return append([]Stage(nil), profileStages...) }
func HistoryStages() []Stage { return append([]Stage(nil), historyStages...) }

type Aggregator struct {
	accounts      repo.AccountRepo
	subscriptions repo.SubscriptionRepo
	history       repo.HistoryRepo
	videos        repo.VideoRepo
	observe       func(view string, s Stage)
}

type Option func(*Aggregator)

// WithStageObserver calls fn as each stage starts.
func WithStageObserver(fn func(view string, s Stage)) Option {
	return func(a *Aggregator) { a.observe = fn }
}

func New(ar repo.AccountRepo, sr repo.SubscriptionRepo, hr repo.HistoryRepo, vr repo.VideoRepo, opts ...Option) *Aggregator {
	a := &Aggregator{
		accounts:      ar,
		subscriptions: sr,
		history:       hr,
		videos:        vr,
		observe:       func(string, Stage) {},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type profileState struct {
	viewer  uuid.UUID
	channel model.Account
	subs    int64
	subTo   int64
	isSub   bool
	out     model.ChannelProfile
}

// GetChannelProfile returns the public profile of the channel named username
// with its subscription counts. viewer is uuid.Nil for anonymous callers.
func (a *Aggregator) GetChannelProfile(ctx context.Context, viewer uuid.UUID, username string) (model.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return model.ChannelProfile{}, customErrors.NewValidation("username is missing")
	}

	st := &profileState{viewer: viewer}
	steps := map[Stage]func(context.Context, *profileState) error{
		StageMatch: func(ctx context.Context, st *profileState) error {
			acct, err := a.accounts.GetByUsername(ctx, username, repo.Public)
			switch {
			case customErrors.IsNotFound(err):
				return customErrors.ErrChannelNotFound
			case err != nil:
				return customErrors.WrapPersistence(err, "GetChannelProfile")
			}
			st.channel = acct
			return nil
		},
		StageCount:   a.countSubscriptions,
		StageProject: projectProfile,
	}

	for _, s := range profileStages {
		a.observe("profile", s)
		if err := steps[s](ctx, st); err != nil {
			return model.ChannelProfile{}, err
		}
	}
	return st.out, nil
}

func (a *Aggregator) countSubscriptions(ctx context.Context, st *profileState) error {
	g, gctx := errgroup.WithContext(ctx)
	id := st.channel.ID

	g.Go(func() (err error) {
		st.subs, err = a.subscriptions.CountSubscribers(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		st.subTo, err = a.subscriptions.CountSubscribedTo(gctx, id)
		return err
	})
	if st.viewer != uuid.Nil {
		g.Go(func() (err error) {
			st.isSub, err = a.subscriptions.Exists(gctx, st.viewer, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return customErrors.WrapPersistence(err, "GetChannelProfile")
	}
	return nil
}

func projectProfile(_ context.Context, st *profileState) error {
	c := st.channel
	st.out = model.ChannelProfile{
		ID:                c.ID,
		FullName:          c.FullName,
		Username:          c.Username,
		Email:             c.Email,
		AvatarURL:         c.AvatarURL,
		CoverImageURL:     c.CoverImageURL,
		SubscribersCount:  st.subs,
		SubscribedToCount: st.subTo,
		IsSubscribed:      st.isSub,
	}
	return nil
}

type historyState struct {
	accountID uuid.UUID
	ids       []uuid.UUID
	videos    map[uuid.UUID]model.Video
	owners    map[uuid.UUID]model.OwnerSummary
	out       []model.HistoryEntry
}

// GetWatchHistory returns the account's history most-recent-first. Entries
// whose video no longer exists are dropped.
func (a *Aggregator) GetWatchHistory(ctx context.Context, accountID uuid.UUID) ([]model.HistoryEntry, error) {
	st := &historyState{accountID: accountID}
	steps := map[Stage]func(context.Context, *historyState) error{
		StageMatch:   a.matchHistory,
		StageFilter:  a.filterDeleted,
		StageJoin:    a.joinOwners,
		StageProject: projectHistory,
	}

	for _, s := range historyStages {
		a.observe("history", s)
		if err := steps[s](ctx, st); err != nil {
			return nil, err
		}
	}
	return st.out, nil
}

func (a *Aggregator) matchHistory(ctx context.Context, st *historyState) error {
	ids, err := a.history.WatchHistory(ctx, st.accountID)
	switch {
	case customErrors.IsNotFound(err):
		return customErrors.ErrAccountNotFound
	case err != nil:
		return customErrors.WrapPersistence(err, "GetWatchHistory")
	}
	st.ids = ids
	return nil
}

func (a *Aggregator) filterDeleted(ctx context.Context, st *historyState) error {
	if len(st.ids) == 0 {
		return nil
	}
	videos, err := a.videos.FindByIDs(ctx, unique(st.ids))
	if err != nil {
		return customErrors.WrapPersistence(err, "GetWatchHistory")
	}
	kept := st.ids[:0:0]
	for _, id := range st.ids {
		if _, ok := videos[id]; ok {
			kept = append(kept, id)
		}
	}
	st.ids, st.videos = kept, videos
	return nil
}

func (a *Aggregator) joinOwners(ctx context.Context, st *historyState) error {
	if len(st.ids) == 0 {
		return nil
	}
	ownerIDs := make([]uuid.UUID, 0, len(st.ids))
	for _, id := range st.ids {
		ownerIDs = append(ownerIDs, st.videos[id].OwnerID)
	}
	owners, err := a.accounts.FindOwners(ctx, unique(ownerIDs))
	if err != nil {
		return customErrors.WrapPersistence(err, "GetWatchHistory")
	}
	st.owners = owners
	return nil
}

func projectHistory(_ context.Context, st *historyState) error {
	st.out = make([]model.HistoryEntry, 0, len(st.ids))
	for _, id := range st.ids {
		v := st.videos[id]
		st.out = append(st.out, model.HistoryEntry{Video: v, Owner: st.owners[v.OwnerID]})
	}
	return nil
}

func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
