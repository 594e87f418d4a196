package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"newsfeed/internal/cache"
	"newsfeed/internal/models"
	"newsfeed/internal/notifications"
	"newsfeed/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, fx *testutil.Fixture, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context) (*env, error) { return newEnv(fx.DB, fx.Redis), nil }
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUsageCommands(t *testing.T) {
	fx := testutil.NewFixture(t)
	alice := testutil.CreateUser(t, fx.DB, "alice")
	bob := testutil.CreateUser(t, fx.DB, "bob")
	require.NoError(t, fx.DB.Create(&models.ApiUseTime{UserID: alice.ID, TotalTime: 40}).Error)
	require.NoError(t, fx.DB.Create(&models.ApiUseTime{UserID: bob.ID, TotalTime: 90}).Error)

	out, err := execute(t, fx, "usage", "show", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "40")

	_, err = execute(t, fx, "usage", "show", "nobody")
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	out, err = execute(t, fx, "usage", "rebuild-leaderboard")
	require.NoError(t, err)
	assert.Contains(t, out, "2 accounts")
	score, err := fx.Mini.ZScore(cache.UsageLeaderboard, "2")
	require.NoError(t, err)
	assert.Equal(t, float64(90), score)

	out, err = execute(t, fx, "--json", "usage", "top", "-n", "1")
	require.NoError(t, err)
	var top []models.UsageEntry
	require.NoError(t, json.Unmarshal([]byte(out), &top))
	require.Len(t, top, 1)
	assert.Equal(t, "bob", top[0].Username)
}

func TestLikesRecount(t *testing.T) {
	fx := testutil.NewFixture(t)
	alice := testutil.CreateUser(t, fx.DB, "alice")
	bob := testutil.CreateUser(t, fx.DB, "bob")
	post := testutil.CreatePost(t, fx.DB, alice, "drifted")

	like, err := models.NewLike(bob.ID, models.TargetPost, post.ID)
	require.NoError(t, err)
	require.NoError(t, fx.DB.Create(like).Error)
	require.NoError(t, fx.DB.Model(post).Update("like_count", 7).Error)

	_, err = execute(t, fx, "likes", "recount")
	require.NoError(t, err)
	assert.Equal(t, int64(1), testutil.ReloadPost(t, fx.DB, post.ID).LikeCount)
}

func TestPromoteAndDemote(t *testing.T) {
	fx := testutil.NewFixture(t)
	testutil.CreateUser(t, fx.DB, "alice")

	out, err := execute(t, fx, "promote", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "promote: alice")

	out, err = execute(t, fx, "admins")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")

	out, err = execute(t, fx, "promote", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged")

	_, err = execute(t, fx, "demote", "alice")
	require.NoError(t, err)
	out, err = execute(t, fx, "admins")
	require.NoError(t, err)
	assert.Contains(t, out, "no admins found")

	_, err = execute(t, fx, "promote")
	assert.Error(t, err)
}

func TestDataReset(t *testing.T) {
	fx := testutil.NewFixture(t)
	testutil.CreateUser(t, fx.DB, "alice")

	_, err := execute(t, fx, "data", "reset")
	require.Error(t, err)

	_, err = execute(t, fx, "data", "reset", "--yes")
	require.NoError(t, err)
	var n int64
	require.NoError(t, fx.DB.Model(&models.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestEventsTail(t *testing.T) {
	fx := testutil.NewFixture(t)

	done := make(chan struct{})
	var out string
	var runErr error
	go func() {
		defer close(done)
		out, runErr = execute(t, fx, "events", "tail", "--for", "500ms")
	}()

	require.Eventually(t, func() bool { return fx.Mini.PubSubNumPat() > 0 }, time.Second, 10*time.Millisecond)
	n := notifications.NewNotifier(fx.Redis)
	require.NoError(t, n.PublishBroadcast(context.Background(), notifications.Event{Type: notifications.EventPostCreated}))

	<-done
	require.NoError(t, runErr)
	assert.Contains(t, out, notifications.EventPostCreated)
}
