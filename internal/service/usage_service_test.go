package service

import (
	"context"
	"testing"

	"newsfeed/internal/cache"
	"newsfeed/internal/repository"
	"newsfeed/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsageFixture(t *testing.T) (*UsageService, *testutil.Fixture) {
	t.Helper()
	f := testutil.NewFixture(t)
	svc := NewUsageService(repository.NewUsageRepository(f.DB), repository.NewUserRepository(f.DB), f.Redis)
	return svc, f
}

func TestUsageService_RecordMirrorsLeaderboard(t *testing.T) {
	svc, f := newUsageFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.DB, "alice")

	total, err := svc.Record(ctx, alice.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), total)
	total, err = svc.Record(ctx, alice.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)

	score, err := f.Mini.ZScore(cache.UsageLeaderboard, leaderboardMember(alice.ID))
	require.NoError(t, err)
	assert.Equal(t, float64(42), score)
}

func TestUsageService_GetUsage_ZeroWhenAbsent(t *testing.T) {
	svc, f := newUsageFixture(t)
	bob := testutil.CreateUser(t, f.DB, "bob")

	rec, err := svc.GetUsage(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, rec.UserID)
	assert.Zero(t, rec.TotalTime)

	_, err = svc.GetUsageByUsername(context.Background(), "nobody")
	assertCode(t, err, "NOT_FOUND")
}

func TestUsageService_Top(t *testing.T) {
	svc, f := newUsageFixture(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, f.DB, "alice")
	bob := testutil.CreateUser(t, f.DB, "bob")
	_, err := svc.Record(ctx, alice.ID, 10)
	require.NoError(t, err)
	_, err = svc.Record(ctx, bob.ID, 30)
	require.NoError(t, err)

	top, err := svc.Top(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].Username)
	assert.Equal(t, int64(30), top[0].TotalTime)

	// An emptied mirror falls back to the table, and rebuild restores it.
	f.Mini.Del(cache.UsageLeaderboard)
	top, err = svc.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "bob", top[0].Username)

	n, err := svc.RebuildLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	score, err := f.Mini.ZScore(cache.UsageLeaderboard, leaderboardMember(alice.ID))
	require.NoError(t, err)
	assert.Equal(t, float64(10), score)
}

func TestUsageService_TopWithoutRedis(t *testing.T) {
	f := testutil.NewFixture(t)
	svc := NewUsageService(repository.NewUsageRepository(f.DB), repository.NewUserRepository(f.DB), nil)
	carol := testutil.CreateUser(t, f.DB, "carol")

	_, err := svc.Record(context.Background(), carol.ID, 7)
	require.NoError(t, err)
	top, err := svc.Top(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "carol", top[0].Username)
}
