package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"newsfeed/internal/database"
	"newsfeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgres starts a throwaway PostgreSQL, applies the SQL migrations and
// skips the test when Docker is not available.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	var (
		pgContainer *postgres.PostgresContainer
		err         error
	)
	func() {
		// testcontainers panics when no Docker daemon is reachable.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("start container: %v", r)
			}
		}()
		pgContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("newsfeed"),
			postgres.WithUsername("newsfeed"),
			postgres.WithPassword("newsfeed"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
	}()
	if err != nil {
		t.Skipf("Skipping integration test: postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(connStr), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(20)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RunMigrations(ctx, db))
	return db
}

func TestLikeToggle_Postgres_ConcurrentDistinctUsers(t *testing.T) {
	db := setupPostgres(t)
	repo := NewLikeRepository(db, WithMaxAttempts(5))
	owner := createUser(t, db, "owner")
	post := createPost(t, db, owner, "popular")

	const n = 24
	users := make([]*models.User, n)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("fan_%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, u := range users {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			if _, err := repo.Toggle(context.Background(), id, models.TargetPost, post.ID); err != nil {
				errs <- err
			}
		}(u.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(n), reloadPost(t, db, post.ID).LikeCount)
	assert.Equal(t, int64(n), countEdges(t, db, "post_id", post.ID))
}

func TestLikeToggle_Postgres_SameUserStaysConsistent(t *testing.T) {
	db := setupPostgres(t)
	repo := NewLikeRepository(db, WithMaxAttempts(5))
	owner := createUser(t, db, "owner")
	fan := createUser(t, db, "fan")
	post := createPost(t, db, owner, "contested")
	comment := createComment(t, db, post, owner, "also contested")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = repo.Toggle(context.Background(), fan.ID, models.TargetPost, post.ID)
		}()
		go func() {
			defer wg.Done()
			_, _ = repo.Toggle(context.Background(), fan.ID, models.TargetComment, comment.ID)
		}()
	}
	wg.Wait()

	edges := countEdges(t, db, "post_id", post.ID)
	assert.LessOrEqual(t, edges, int64(1))
	assert.Equal(t, edges, reloadPost(t, db, post.ID).LikeCount)

	var c models.Comment
	require.NoError(t, db.First(&c, comment.ID).Error)
	assert.Equal(t, countEdges(t, db, "comment_id", comment.ID), c.LikeCount)
}
