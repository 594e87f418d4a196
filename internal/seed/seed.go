package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"newsfeed/internal/database"
	"newsfeed/internal/middleware"
	"newsfeed/internal/models"
	"newsfeed/internal/repository"
	"newsfeed/internal/service"
	"newsfeed/internal/validation"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the sign-in password of every seeded account.
const DefaultPassword = "SeedPass12!@"

// Options configure how much data Seed creates.
type Options struct {
	NumUsers        int
	NumPosts        int
	CommentsPerPost int
	// LikeRatio is the chance that a given user likes a given post.
	LikeRatio   float64
	MaxDays     int
	ShouldClean bool
	// SkipBcrypt stores DefaultPassword at bcrypt.MinCost instead of the default cost.
	SkipBcrypt bool
	DryRun     bool
	RandomSeed int64
	Password   string
}

// Summary reports what a run created.
type Summary struct {
	Users        int
	Posts        int
	Comments     int
	PostLikes    int
	CommentLikes int
}

// Seeder writes demo data. Likes go through the same toggle engine the API uses,
// so counters and edges stay consistent.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
	likes   *service.LikeService
	log     *slog.Logger
}

// NewSeeder prepares a seeder for db.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if err := validation.ValidatePassword(opts.Password); err != nil {
		return nil, fmt.Errorf("seed password: %w", err)
	}
	cost := bcrypt.DefaultCost
	if opts.SkipBcrypt {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	users := service.NewUserService(repository.NewUserRepository(db), 0)
	return &Seeder{
		db:      db,
		opts:    opts,
		factory: NewFactory(db, opts, string(hash)),
		likes:   service.NewLikeService(repository.NewLikeRepository(db), users, nil, nil),
		log:     middleware.Logger.With("component", "seed"),
	}, nil
}

// Seed populates the database according to the seeder's options.
func (s *Seeder) Seed(ctx context.Context) (*Summary, error) {
	if s.opts.NumUsers < 2 {
		return nil, errors.New("seed needs at least two users so likes have someone to come from")
	}
	if s.opts.ShouldClean && !s.opts.DryRun {
		s.log.Info("cleaning existing data")
		if err := ClearData(ctx, s.db); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	sum := &Summary{}
	users, err := s.createUsers(ctx)
	if err != nil {
		return sum, err
	}
	sum.Users = len(users)

	posts, err := s.createPosts(ctx, users)
	if err != nil {
		return sum, err
	}
	sum.Posts = len(posts)

	comments, err := s.createComments(ctx, users, posts)
	if err != nil {
		return sum, err
	}
	sum.Comments = len(comments)

	if s.opts.DryRun {
		s.log.Info("dry run: skipping likes", "users", sum.Users, "posts", sum.Posts, "comments", sum.Comments)
		return sum, nil
	}

	for _, post := range posts {
		n, err := s.likeTarget(ctx, users, models.TargetPost, post.ID, post.UserID)
		if err != nil {
			return sum, err
		}
		sum.PostLikes += n
	}
	for _, comment := range comments {
		n, err := s.likeTarget(ctx, users, models.TargetComment, comment.ID, comment.UserID)
		if err != nil {
			return sum, err
		}
		sum.CommentLikes += n
	}

	s.log.Info("seeding complete",
		"users", sum.Users,
		"posts", sum.Posts,
		"comments", sum.Comments,
		"post_likes", sum.PostLikes,
		"comment_likes", sum.CommentLikes,
	)
	return sum, nil
}

func (s *Seeder) createUsers(ctx context.Context) ([]*models.User, error) {
	users := make([]*models.User, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		user, err := s.factory.CreateUser(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("create user %d: %w", i, err)
		}
		users = append(users, user)
		if (i+1)%100 == 0 {
			s.log.Info("created users", "count", i+1)
		}
	}
	return users, nil
}

func (s *Seeder) createPosts(ctx context.Context, users []*models.User) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, s.opts.NumPosts)
	for i := 0; i < s.opts.NumPosts; i++ {
		posts = append(posts, s.factory.BuildPost(users[s.factory.Intn(len(users))]))
	}
	if err := s.factory.CreatePosts(ctx, posts); err != nil {
		return nil, fmt.Errorf("create posts: %w", err)
	}
	return posts, nil
}

func (s *Seeder) createComments(ctx context.Context, users []*models.User, posts []*models.Post) ([]*models.Comment, error) {
	if s.opts.CommentsPerPost <= 0 {
		return nil, nil
	}
	var comments []*models.Comment
	for _, post := range posts {
		n := s.factory.Intn(s.opts.CommentsPerPost + 1)
		for j := 0; j < n; j++ {
			comments = append(comments, s.factory.BuildComment(users[s.factory.Intn(len(users))], post))
		}
	}
	if err := s.factory.CreateComments(ctx, comments); err != nil {
		return nil, fmt.Errorf("create comments: %w", err)
	}
	return comments, nil
}

// likeTarget has each non-owner like the target with probability LikeRatio.
func (s *Seeder) likeTarget(ctx context.Context, users []*models.User, kind models.TargetKind, targetID, ownerID uint) (int, error) {
	liked := 0
	for _, u := range users {
		if u.ID == ownerID || !s.factory.Chance(s.opts.LikeRatio) {
			continue
		}
		res, err := s.likes.Toggle(ctx, service.ToggleLikeInput{Actor: u.Username, TargetID: targetID, Kind: kind})
		if err != nil {
			return liked, fmt.Errorf("like %s %d as %s: %w", kind, targetID, u.Username, err)
		}
		if res.Liked {
			liked++
		}
	}
	return liked, nil
}

// seededTables lists every table ClearData empties, children first.
var seededTables = []string{"likes", "comments", "posts", "api_use_times", "users"}

// ClearData removes all newsfeed data. PostgreSQL tables are truncated with their
// identity sequences reset; other dialects are emptied row by row.
func ClearData(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	if database.IsPostgres(db) {
		return db.Exec("TRUNCATE TABLE likes, comments, posts, api_use_times, users RESTART IDENTITY CASCADE").Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range seededTables {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
