package channel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/memory"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/channel"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type failingVideos struct{}

func (failingVideos) FindByIDs(context.Context, []uuid.UUID) (map[uuid.UUID]model.Video, error) {
	return nil, errors.New("timeout")
}

func mustCreate(t *testing.T, s *memory.Store, username string) uuid.UUID {
	t.Helper()
	id, err := s.Create(context.Background(), model.Account{
		Username: username, Email: username + "@x.com", FullName: username + " Full", AvatarURL: "https://cdn/" + username,
		PasswordHash: "secret", RefreshToken: "rt",
	})
	require.NoError(t, err)
	return id
}

func TestGetChannelProfile_Counts(t *testing.T) {
	s := memory.New()
	channelID := mustCreate(t, s, "chan")
	viewer := mustCreate(t, s, "viewer")
	other1 := mustCreate(t, s, "o1")
	other2 := mustCreate(t, s, "o2")
	stranger := mustCreate(t, s, "stranger")

	for _, sub := range []uuid.UUID{viewer, other1, other2} {
		require.NoError(t, s.Subscribe(sub, channelID))
	}
	require.NoError(t, s.Subscribe(channelID, other1))

	agg := channel.New(s, s, s, s)
	ctx := context.Background()

	p, err := agg.GetChannelProfile(ctx, viewer, "  CHAN ")
	require.NoError(t, err)
	require.Equal(t, int64(3), p.SubscribersCount)
	require.Equal(t, int64(1), p.SubscribedToCount)
	require.True(t, p.IsSubscribed)
	require.Equal(t, "chan", p.Username)

	p, err = agg.GetChannelProfile(ctx, stranger, "chan")
	require.NoError(t, err)
	require.False(t, p.IsSubscribed)

	p, err = agg.GetChannelProfile(ctx, uuid.Nil, "chan")
	require.NoError(t, err)
	require.False(t, p.IsSubscribed)
	require.Equal(t, int64(3), p.SubscribersCount)
}

func TestGetChannelProfile_Errors(t *testing.T) {
	agg := channel.New(memory.New(), memory.New(), memory.New(), memory.New())
	ctx := context.Background()

	_, err := agg.GetChannelProfile(ctx, uuid.Nil, "   ")
	require.True(t, customErrors.IsValidation(err))

	_, err = agg.GetChannelProfile(ctx, uuid.Nil, "nobody")
	require.True(t, customErrors.IsChannelNotFound(err))
}

func TestGetWatchHistory_OrderAndDeletedVideos(t *testing.T) {
	s := memory.New()
	me := mustCreate(t, s, "me")
	alice := mustCreate(t, s, "alice")
	bob := mustCreate(t, s, "bob")

	v1 := model.Video{ID: uuid.New(), OwnerID: alice, Title: "one"}
	v2 := model.Video{ID: uuid.New(), OwnerID: bob, Title: "two"}
	v3 := model.Video{ID: uuid.New(), OwnerID: alice, Title: "three"}
	for _, v := range []model.Video{v1, v2, v3} {
		s.PutVideo(v)
	}
	// watched v1, v2, v3, then v1 again
	s.RecordView(me, v1.ID)
	s.RecordView(me, v2.ID)
	s.RecordView(me, v3.ID)
	s.RecordView(me, v1.ID)
	s.DeleteVideo(v2.ID)

	agg := channel.New(s, s, s, s)
	entries, err := agg.GetWatchHistory(context.Background(), me)
	require.NoError(t, err)

	var titles []string
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	require.Equal(t, []string{"one", "three", "one"}, titles)
	require.Equal(t, "alice", entries[0].Owner.Username)
	require.Equal(t, "alice Full", entries[0].Owner.FullName)
	require.Equal(t, "https://cdn/alice", entries[0].Owner.AvatarURL)
}

func TestGetWatchHistory_EmptyAndUnknown(t *testing.T) {
	s := memory.New()
	me := mustCreate(t, s, "me")
	agg := channel.New(s, s, s, s)

	entries, err := agg.GetWatchHistory(context.Background(), me)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = agg.GetWatchHistory(context.Background(), uuid.New())
	require.True(t, customErrors.IsAccountNotFound(err))
}

func TestGetWatchHistory_StoreFailure(t *testing.T) {
	s := memory.New()
	me := mustCreate(t, s, "me")
	s.RecordView(me, uuid.New())

	agg := channel.New(s, s, s, failingVideos{})
	_, err := agg.GetWatchHistory(context.Background(), me)
	require.True(t, customErrors.IsPersistence(err))
}

func TestStagesRunMatchBeforeJoin(t *testing.T) {
	s := memory.New()
	me := mustCreate(t, s, "me")
	v := model.Video{ID: uuid.New(), OwnerID: me}
	s.PutVideo(v)
	s.RecordView(me, v.ID)

	seen := map[string][]channel.Stage{}
	agg := channel.New(s, s, s, s, channel.WithStageObserver(func(view string, st channel.Stage) {
		seen[view] = append(seen[view], st)
	}))

	_, err := agg.GetWatchHistory(context.Background(), me)
	require.NoError(t, err)
	_, err = agg.GetChannelProfile(context.Background(), uuid.Nil, "me")
	require.NoError(t, err)

	require.Equal(t, []channel.Stage{channel.StageMatch, channel.StageFilter, channel.StageJoin, channel.StageProject}, seen["history"])
	require.Equal(t, channel.HistoryStages(), seen["history"])
	require.Equal(t, channel.ProfileStages(), seen["profile"])
	require.Equal(t, channel.StageMatch, seen["profile"][0])
}

func TestStagesStopAtFirstFailure(t *testing.T) {
	var seen []channel.Stage
	agg := channel.New(memory.New(), memory.New(), memory.New(), memory.New(),
		channel.WithStageObserver(func(_ string, st channel.Stage) { seen = append(seen, st) }))

	_, err := agg.GetChannelProfile(context.Background(), uuid.Nil, "ghost")
	require.True(t, customErrors.IsChannelNotFound(err))
	require.Equal(t, []channel.Stage{channel.StageMatch}, seen)
}
