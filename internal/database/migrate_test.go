package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	ms, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)

	for i, m := range ms {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.DownScript, m.String())
	}

	likes, ok := MigrationByVersion(3)
	require.True(t, ok)
	assert.Contains(t, likes.UpScript, "chk_likes_single_target")

	_, ok = MigrationByVersion(999)
	assert.False(t, ok)
}

func TestMigrationString(t *testing.T) {
	m := Migration{Version: 4, Name: "create_api_use_times"}
	assert.Equal(t, "000004_create_api_use_times", m.String())
}

func TestLoadMigrations_Rejects(t *testing.T) {
	sql := func(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s)} }

	tests := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{
			name:  "missing down",
			files: fstest.MapFS{"m/000001_users.up.sql": sql("SELECT 1")},
			want:  "needs both",
		},
		{
			name:  "bad file name",
			files: fstest.MapFS{"m/1_users.up.sql": sql("SELECT 1")},
			want:  "does not match",
		},
		{
			name: "gap",
			files: fstest.MapFS{
				"m/000001_a.up.sql": sql("SELECT 1"), "m/000001_a.down.sql": sql("SELECT 1"),
				"m/000003_c.up.sql": sql("SELECT 1"), "m/000003_c.down.sql": sql("SELECT 1"),
			},
			want: "contiguous",
		},
		{
			name: "version reused",
			files: fstest.MapFS{
				"m/000001_a.up.sql": sql("SELECT 1"), "m/000001_b.down.sql": sql("SELECT 1"),
			},
			want: "used by both",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMigrations(tt.files, "m")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAppliedVersions(t *testing.T) {
	registered := []Migration{{Version: 1}, {Version: 2}}

	assert.NoError(t, validateAppliedVersions(nil, registered))
	assert.NoError(t, validateAppliedVersions([]int{1, 2}, registered))

	err := validateAppliedVersions([]int{1, 9, 7}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000007, 000009")
}

func sqliteMigrator(t *testing.T) *Migrator {
	t.Helper()
	m, err := NewMigrator(openSQLite(t))
	require.NoError(t, err)
	m.migrations = []Migration{
		{Version: 1, Name: "widgets", UpScript: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE widgets"},
		{Version: 2, Name: "gadgets", UpScript: "CREATE TABLE gadgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE gadgets"},
	}
	return m
}

func TestMigrator_UpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := sqliteMigrator(t)

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	ran, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Len(t, ran, 2)
	assert.True(t, m.db.Migrator().HasTable("gadgets"))

	ran, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrator_FailedScriptIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	m := sqliteMigrator(t)
	m.migrations[1].UpScript = "CREATE TABLE widgets (id INTEGER PRIMARY KEY)"

	ran, err := m.Up(ctx)
	require.Error(t, err)
	assert.Len(t, ran, 1)

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)
}

func TestMigrator_DownInOrder(t *testing.T) {
	ctx := context.Background()
	m := sqliteMigrator(t)

	err := m.Down(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been applied")

	_, err = m.Up(ctx)
	require.NoError(t, err)

	err = m.Down(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roll back in order")

	require.NoError(t, m.Down(ctx, 2))
	assert.False(t, m.db.Migrator().HasTable("gadgets"))
	require.NoError(t, m.Down(ctx, 1))

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	assert.Error(t, m.Down(ctx, 42))
}
