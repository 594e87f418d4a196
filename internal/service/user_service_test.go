package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"newsfeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "SecurePass12!@"

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestUserService_Register_Validation(t *testing.T) {
	t.Parallel()

	svc := NewUserService(noopUserRepo(), 0)
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"short username", RegisterInput{Username: "al", Email: "al@example.com", Password: testPassword}},
		{"bad email", RegisterInput{Username: "alice", Email: "alice", Password: testPassword}},
		{"weak password", RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Register(context.Background(), tc.input)
			assertValidationError(t, err)
		})
	}
}

func TestUserService_Register(t *testing.T) {
	t.Parallel()

	t.Run("duplicate username", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.getByUsernameFn = func(_ context.Context, username string) (*models.User, error) {
			return &models.User{ID: 1, Username: username}, nil
		}
		_, err := NewUserService(repo, 0).Register(context.Background(), RegisterInput{
			Username: "alice", Email: "alice@example.com", Password: testPassword,
		})
		assertCode(t, err, models.CodeConflict)
	})

	t.Run("hashes password and normalizes email", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		var created *models.User
		repo.createFn = func(_ context.Context, u *models.User) error {
			u.ID = 7
			created = u
			return nil
		}
		user, err := NewUserService(repo, 0).Register(context.Background(), RegisterInput{
			Username: " alice ", Email: "Alice@Example.com", Password: testPassword,
		})
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, uint(7), user.ID)
		assert.Equal(t, "alice", created.Username)
		assert.Equal(t, "alice@example.com", created.Email)
		assert.Equal(t, models.UserStatusActive, created.Status)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Password), []byte(testPassword)))
	})
}

func TestUserService_Authenticate(t *testing.T) {
	t.Parallel()

	pw := hashed(t, testPassword)
	users := map[string]*models.User{
		"alice": {ID: 1, Username: "alice", Password: pw, Status: models.UserStatusActive},
		"gone":  {ID: 2, Username: "gone", Password: pw, Status: models.UserStatusWithdrawn},
	}
	repo := noopUserRepo()
	repo.getByUsernameFn = func(_ context.Context, username string) (*models.User, error) {
		return users[username], nil
	}
	svc := NewUserService(repo, 0)

	user, err := svc.Authenticate(context.Background(), "alice", testPassword)
	require.NoError(t, err)
	assert.Equal(t, uint(1), user.ID)

	_, err = svc.Authenticate(context.Background(), "alice", "wrong")
	assertUnauthorizedError(t, err)

	_, err = svc.Authenticate(context.Background(), "nobody", testPassword)
	assertUnauthorizedError(t, err)

	_, err = svc.Authenticate(context.Background(), "gone", testPassword)
	assertUnauthorizedError(t, err)
}

func TestUserService_Withdraw(t *testing.T) {
	t.Parallel()

	pw := hashed(t, testPassword)
	newRepo := func() *userRepoStub {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: "alice", Password: pw, Status: models.UserStatusActive}, nil
		}
		return repo
	}

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()
		repo := newRepo()
		repo.withdrawFn = func(context.Context, uint, time.Time) error {
			t.Fatal("withdraw must not run")
			return nil
		}
		err := NewUserService(repo, 0).Withdraw(context.Background(), 1, "nope")
		assertUnauthorizedError(t, err)
	})

	t.Run("evicts the cached principal", func(t *testing.T) {
		t.Parallel()
		repo := newRepo()
		withdrawn := false
		repo.withdrawFn = func(_ context.Context, _ uint, _ time.Time) error {
			withdrawn = true
			return nil
		}
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			status := models.UserStatusActive
			if withdrawn {
				status = models.UserStatusWithdrawn
			}
			return &models.User{ID: id, Username: "alice", Password: pw, Status: status}, nil
		}
		svc := NewUserService(repo, 0)

		_, err := svc.ResolvePrincipal(context.Background(), 1)
		require.NoError(t, err)
		require.NoError(t, svc.Withdraw(context.Background(), 1, testPassword))

		_, err = svc.ResolvePrincipal(context.Background(), 1)
		assertUnauthorizedError(t, err)
	})
}

func TestUserService_ResolvePrincipal_Caches(t *testing.T) {
	t.Parallel()

	repo := noopUserRepo()
	loads := 0
	repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		loads++
		return &models.User{ID: id, Username: "alice", IsAdmin: true, Status: models.UserStatusActive}, nil
	}
	svc := NewUserService(repo, 8)

	for i := 0; i < 3; i++ {
		p, err := svc.ResolvePrincipal(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, models.Principal{UserID: 1, Username: "alice", IsAdmin: true}, *p)
	}
	assert.Equal(t, 1, loads)

	admin, err := svc.IsAdmin(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, admin)

	_, err = svc.UpdateProfile(context.Background(), UpdateProfileInput{UserID: 1, Bio: "hi"})
	require.NoError(t, err)
	_, err = svc.ResolvePrincipal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, loads, "profile update reloads once and evicts the cache")
}

func TestUserService_ResolvePrincipal_ExpiresChangesMadeElsewhere(t *testing.T) {
	t.Parallel()

	repo := noopUserRepo()
	var mu sync.Mutex
	current := models.User{ID: 1, Username: "alice", Status: models.UserStatusActive}
	repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		mu.Lock()
		defer mu.Unlock()
		u := current
		return &u, nil
	}
	svc := NewUserService(repo, 8, WithPrincipalTTL(50*time.Millisecond))

	p, err := svc.ResolvePrincipal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	// Another replica renames the account; this cache does not see it at once.
	mu.Lock()
	current.Username = "alice_b"
	mu.Unlock()
	p, err = svc.ResolvePrincipal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	require.Eventually(t, func() bool {
		p, err := svc.ResolvePrincipal(context.Background(), 1)
		return err == nil && p.Username == "alice_b"
	}, 2*time.Second, 10*time.Millisecond)

	// Withdrawal elsewhere is picked up the same way.
	mu.Lock()
	current.Status = models.UserStatusWithdrawn
	mu.Unlock()
	require.Eventually(t, func() bool {
		_, err := svc.ResolvePrincipal(context.Background(), 1)
		return models.IsCode(err, models.CodeUnauthorized)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUserService_ResolvePrincipal_MissingUser(t *testing.T) {
	t.Parallel()
	_, err := NewUserService(noopUserRepo(), 0).ResolvePrincipal(context.Background(), 42)
	assertUnauthorizedError(t, err)
}

func TestUserService_UpdateProfile_Validation(t *testing.T) {
	t.Parallel()

	newRepo := func() *userRepoStub {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: "original", Status: models.UserStatusActive}, nil
		}
		return repo
	}

	t.Run("username too long", func(t *testing.T) {
		t.Parallel()
		_, err := NewUserService(newRepo(), 0).UpdateProfile(context.Background(), UpdateProfileInput{
			UserID:   1,
			Username: strings.Repeat("x", 31),
		})
		assertValidationError(t, err)
	})

	t.Run("bio too long", func(t *testing.T) {
		t.Parallel()
		_, err := NewUserService(newRepo(), 0).UpdateProfile(context.Background(), UpdateProfileInput{
			UserID: 1,
			Bio:    strings.Repeat("x", 501),
		})
		assertValidationError(t, err)
	})

	t.Run("only bio changes when username is empty", func(t *testing.T) {
		t.Parallel()
		repo := newRepo()
		var saved *models.User
		repo.updateFn = func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		}
		_, err := NewUserService(repo, 0).UpdateProfile(context.Background(), UpdateProfileInput{UserID: 1, Bio: "new bio"})
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, "original", saved.Username)
		assert.Equal(t, "new bio", saved.Bio)
	})
}

func TestUserService_FindActiveByUsername(t *testing.T) {
	t.Parallel()

	repo := noopUserRepo()
	repo.getByUsernameFn = func(_ context.Context, username string) (*models.User, error) {
		if username == "gone" {
			return &models.User{ID: 2, Username: "gone", Status: models.UserStatusWithdrawn}, nil
		}
		return nil, nil
	}
	svc := NewUserService(repo, 0)

	_, err := svc.FindActiveByUsername(context.Background(), "gone")
	assertCode(t, err, models.CodeNotFound)
	_, err = svc.GetProfile(context.Background(), "nobody")
	assertCode(t, err, models.CodeNotFound)
}

func TestUserService_SetAdmin(t *testing.T) {
	t.Parallel()

	repo := noopUserRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Username: "alice", IsAdmin: id == 2}, nil
	}
	var writes []bool
	repo.setAdminFn = func(_ context.Context, _ uint, isAdmin bool) error {
		writes = append(writes, isAdmin)
		return nil
	}
	svc := NewUserService(repo, 0)

	promoted, err := svc.SetAdmin(context.Background(), 1, true)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin)

	// Already an admin: nothing to write.
	_, err = svc.SetAdmin(context.Background(), 2, true)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, writes)
}
