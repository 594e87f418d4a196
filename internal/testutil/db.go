// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"testing"

	"newsfeed/internal/database"
	"newsfeed/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB returns a migrated in-memory database. One connection keeps every
// query on the same database and serializes transactions the way row locks would.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// NewRedis starts a miniredis server bound to the test and a client for it.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// CreateUser inserts an active user with a placeholder password hash.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	return CreateUserWithPassword(t, db, username, "hashed")
}

// CreateUserWithPassword inserts an active user storing passwordHash as-is.
func CreateUserWithPassword(t testing.TB, db *gorm.DB, username, passwordHash string) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: passwordHash,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func CreatePost(t testing.TB, db *gorm.DB, owner *models.User, content string) *models.Post {
	t.Helper()
	p := &models.Post{UserID: owner.ID, Content: content}
	require.NoError(t, db.Create(p).Error)
	return p
}

func CreateComment(t testing.TB, db *gorm.DB, post *models.Post, owner *models.User, content string) *models.Comment {
	t.Helper()
	c := &models.Comment{PostID: post.ID, UserID: owner.ID, Content: content}
	require.NoError(t, db.Create(c).Error)
	return c
}

// ReloadPost reads the stored row, bypassing every cache.
func ReloadPost(t testing.TB, db *gorm.DB, id uint) models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, db.First(&p, id).Error)
	return p
}

// CountEdges counts likes whose column (post_id or comment_id) equals id.
func CountEdges(t testing.TB, db *gorm.DB, column string, id uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Like{}).Where(column+" = ?", id).Count(&n).Error)
	return n
}

// Fixture bundles the backing stores most integration-style tests need.
type Fixture struct {
	DB    *gorm.DB
	Mini  *miniredis.Miniredis
	Redis *redis.Client
}

func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	mr, rdb := NewRedis(t)
	return &Fixture{DB: NewSQLiteDB(t), Mini: mr, Redis: rdb}
}
