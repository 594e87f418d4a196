package repository

import (
	"testing"

	"newsfeed/internal/models"
	"newsfeed/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewSQLiteDB(t)
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	return testutil.CreateUser(t, db, username)
}

func createPost(t *testing.T, db *gorm.DB, owner *models.User, content string) *models.Post {
	t.Helper()
	return testutil.CreatePost(t, db, owner, content)
}

func createComment(t *testing.T, db *gorm.DB, post *models.Post, owner *models.User, content string) *models.Comment {
	t.Helper()
	return testutil.CreateComment(t, db, post, owner, content)
}

func reloadPost(t *testing.T, db *gorm.DB, id uint) models.Post {
	t.Helper()
	return testutil.ReloadPost(t, db, id)
}

func countEdges(t *testing.T, db *gorm.DB, column string, id uint) int64 {
	t.Helper()
	return testutil.CountEdges(t, db, column, id)
}
