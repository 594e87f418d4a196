// Package seed provides helpers to create demo data for the newsfeed database.
// These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"newsfeed/internal/models"
	"newsfeed/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the seeder and tests.
type Factory struct {
	db           *gorm.DB
	faker        *gofakeit.Faker
	passwordHash string
	maxDays      int
	now          func() time.Time
	dryRun       bool
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a Factory bound to db. Every user it creates shares passwordHash.
func NewFactory(db *gorm.DB, opts Options, passwordHash string) *Factory {
	return &Factory{
		db:           db,
		faker:        gofakeit.New(opts.RandomSeed),
		passwordHash: passwordHash,
		maxDays:      opts.MaxDays,
		now:          time.Now,
		dryRun:       opts.DryRun,
		nextID:       1000,
	}
}

// Username returns a fresh handle that passes signup validation. The index keeps it unique.
func (f *Factory) Username(i int) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, f.faker.Username())
	suffix := fmt.Sprintf("_%d", i)
	if limit := validation.MaxUsernameLength - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	if len(base) < validation.MinUsernameLength {
		base = "user"
	}
	return base + suffix
}

// BuildUser returns an unsaved active user.
func (f *Factory) BuildUser(i int, overrides ...func(*models.User)) *models.User {
	username := f.Username(i)
	user := &models.User{
		Username: username,
		Email:    strings.ToLower(username) + "@example.com",
		Password: f.passwordHash,
		Bio:      f.faker.Sentence(10),
		Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username),
		Status:   models.UserStatusActive,
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser builds and persists a user.
func (f *Factory) CreateUser(ctx context.Context, i int, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(i, overrides...)
	if f.dryRun {
		f.nextID++
		user.ID = f.nextID
		return user, nil
	}
	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost returns an unsaved post by author, backdated up to maxDays.
func (f *Factory) BuildPost(author *models.User, overrides ...func(*models.Post)) *models.Post {
	post := &models.Post{
		UserID:    author.ID,
		Content:   f.faker.Paragraph(1, f.faker.Number(1, 4), 12, "\n"),
		CreatedAt: f.backdate(),
	}
	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePosts persists posts in a single batch.
func (f *Factory) CreatePosts(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if f.dryRun {
		for _, p := range posts {
			f.nextID++
			p.ID = f.nextID
		}
		return nil
	}
	return f.db.WithContext(ctx).Create(&posts).Error
}

// BuildComment returns an unsaved comment on post by author, never older than the post.
func (f *Factory) BuildComment(author *models.User, post *models.Post, overrides ...func(*models.Comment)) *models.Comment {
	created := post.CreatedAt.Add(time.Duration(f.faker.Number(1, 48*60)) * time.Minute)
	if now := f.now(); created.After(now) {
		created = now
	}
	comment := &models.Comment{
		PostID:    post.ID,
		UserID:    author.ID,
		Content:   f.faker.Sentence(f.faker.Number(4, 16)),
		CreatedAt: created,
	}
	for _, override := range overrides {
		override(comment)
	}
	return comment
}

// CreateComments persists comments in a single batch.
func (f *Factory) CreateComments(ctx context.Context, comments []*models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	if f.dryRun {
		for _, c := range comments {
			f.nextID++
			c.ID = f.nextID
		}
		return nil
	}
	return f.db.WithContext(ctx).Create(&comments).Error
}

// Intn returns a pseudo-random number in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

// Chance reports true with probability p.
func (f *Factory) Chance(p float64) bool {
	return f.faker.Float64Range(0, 1) < p
}

func (f *Factory) backdate() time.Time {
	maxDays := f.maxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.Intn(maxDays))*24*time.Hour +
		time.Duration(f.Intn(24))*time.Hour +
		time.Duration(f.Intn(60))*time.Minute
	return f.now().Add(-back)
}
