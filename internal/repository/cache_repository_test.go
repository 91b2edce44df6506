package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

func newProposalCacheFixture(t *testing.T) (*ProposalCacheRepository, *miniredis.Miniredis) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	repo := NewProposalCacheRepository(client, "", zap.NewNop())
	t.Cleanup(func() { _ = repo.Close() })
	return repo, server
}

func TestProposalCacheRepositoryRoundTrip(t *testing.T) {
	repo, server := newProposalCacheFixture(t)
	ctx := context.Background()

	proposal := &models.TimetableProposal{
		ID:    "proposal-1",
		Scope: scheduler.Scope{Year: "2024", Semester: "1"},
		Schedule: &scheduler.Schedule{
			Entries: []scheduler.Entry{{SessionID: "s1", Day: scheduler.Tuesday, Start: 8 * 60, End: 9*60 + 30, RoomID: "room-1"}},
		},
		GeneratedAt: time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, proposal, time.Minute))
	assert.True(t, server.Exists("timetable:proposal:proposal-1"))

	loaded, err := repo.Get(ctx, "proposal-1")
	require.NoError(t, err)
	assert.Equal(t, proposal.Scope, loaded.Scope)
	require.Len(t, loaded.Schedule.Entries, 1)
	assert.Equal(t, scheduler.Tuesday, loaded.Schedule.Entries[0].Day)

	server.FastForward(2 * time.Minute)
	_, err = repo.Get(ctx, "proposal-1")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestProposalCacheRepositoryDelete(t *testing.T) {
	repo, _ := newProposalCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.TimetableProposal{ID: "proposal-2"}, time.Minute))
	require.NoError(t, repo.Delete(ctx, "proposal-2"))
	_, err := repo.Get(ctx, "proposal-2")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestProposalCacheRepositoryDropsCorruptPayload(t *testing.T) {
	repo, server := newProposalCacheFixture(t)
	require.NoError(t, server.Set("timetable:proposal:broken", "{not json"))

	_, err := repo.Get(context.Background(), "broken")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.False(t, server.Exists("timetable:proposal:broken"))
}

func TestProposalCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewProposalCacheRepository(nil, "", nil)
	ctx := context.Background()

	assert.NoError(t, repo.Save(ctx, &models.TimetableProposal{ID: "x"}, time.Minute))
	_, err := repo.Get(ctx, "x")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Close())
}
