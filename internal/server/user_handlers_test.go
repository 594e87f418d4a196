package server

import (
	"fmt"
	"net/http"
	"testing"

	"newsfeed/internal/config"
	"newsfeed/internal/featureflags"
	"newsfeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfile(t *testing.T) {
	api := newTestAPI(t)
	api.user("alice")

	var profile models.User
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/users/alice/profile", "", nil, &profile))
	assert.Equal(t, "alice", profile.Username)
	assert.Empty(t, profile.Email)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/users/nobody/profile", "", nil, nil))
}

func TestUpdateMe(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user("alice")
	api.user("bob")
	token := api.token(alice)

	var updated models.User
	require.Equal(t, http.StatusOK, api.do(http.MethodPut, "/api/users/me", token,
		map[string]string{"username": "alice_b", "bio": "hi there"}, &updated))
	assert.Equal(t, "alice_b", updated.Username)
	assert.Equal(t, "hi there", updated.Bio)

	// The principal cache follows the rename.
	var me models.User
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/users/me", token, nil, &me))
	assert.Equal(t, "alice_b", me.Username)

	var taken errorBody
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPut, "/api/users/me", token,
		map[string]string{"username": "bob"}, &taken))
	assert.Equal(t, models.CodeConflict, taken.Code)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPut, "/api/users/me", token,
		map[string]string{"avatar": "not a url"}, nil))
}

func TestWithdraw(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user("alice")
	token := api.token(alice)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPut, "/api/users/me/withdraw", token,
		map[string]string{"password": "WrongPass12!@"}, nil))
	require.Equal(t, http.StatusOK, api.do(http.MethodPut, "/api/users/me/withdraw", token,
		map[string]string{"password": testPassword}, nil))

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/users/me", token, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "alice", "password": testPassword}, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/users/alice/profile", "", nil, nil))
}

func TestAdminUsage(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user("alice")
	bob := api.user("bob")
	root := api.admin("root")
	post := testPost(t, api, alice, "busy")

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, api.do(http.MethodPut,
			fmt.Sprintf("/api/newsfeeds/%d/like", post.ID), api.token(bob), nil, nil))
	}

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/api/admin/usage/top", api.token(alice), nil, nil))
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/admin/usage/top", "", nil, nil))

	var top []models.UsageEntry
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/admin/usage/top?limit=2", api.token(root), nil, &top))
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].Username)
	assert.Equal(t, 3*recordedStep.Milliseconds(), top[0].TotalTime)
	assert.Equal(t, "alice", top[1].Username)

	var entry models.UsageEntry
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/admin/usage/alice", api.token(root), nil, &entry))
	assert.Equal(t, recordedStep.Milliseconds(), entry.TotalTime)
}

func TestUsageTrackingDisabled(t *testing.T) {
	api := newTestAPI(t, func(c *config.Config) { c.UsageTrackingEnabled = false })
	alice := api.user("alice")
	token := api.token(alice)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/users/me", token, nil, nil))

	var usage models.ApiUseTime
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/users/me/usage", token, nil, &usage))
	assert.Zero(t, usage.TotalTime)
}

func TestUsageTrackingFlag(t *testing.T) {
	api := newTestAPI(t, func(c *config.Config) { c.FeatureFlags = featureflags.UsageTracking + "=false" })
	alice := api.user("alice")
	token := api.token(alice)

	var flags struct {
		UsageTracking bool `json:"usage_tracking"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/feature-flags", token, nil, &flags))
	assert.False(t, flags.UsageTracking)

	var usage models.ApiUseTime
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/users/me/usage", token, nil, &usage))
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/users/me/usage", token, nil, &usage))
	assert.Zero(t, usage.TotalTime)
}
