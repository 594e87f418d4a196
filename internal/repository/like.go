package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsfeed/internal/database"
	"newsfeed/internal/models"
	"newsfeed/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultToggleAttempts bounds how often a toggle is retried after losing an insert race.
const DefaultToggleAttempts = 3

// errEdgeRace marks an attempt whose insert collided with a concurrent insert of the same edge.
var errEdgeRace = errors.New("like edge inserted concurrently")

// LikeRepository owns the like edges and the counters they drive.
type LikeRepository interface {
	// FindTarget loads the projection of a post or comment, NotFound when it does not exist.
	FindTarget(ctx context.Context, kind models.TargetKind, id uint) (*models.LikeTarget, error)
	// Toggle flips the (userID, target) edge and adjusts the counter in one transaction.
	Toggle(ctx context.Context, userID uint, kind models.TargetKind, targetID uint) (*models.LikeTarget, error)
	IsLiked(ctx context.Context, userID uint, kind models.TargetKind, targetID uint) (bool, error)
	// Recount rebuilds every like_count from the edges and returns the number of rows touched.
	Recount(ctx context.Context) (int64, error)
}

type likeRepository struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

// LikeOption configures a LikeRepository.
type LikeOption func(*likeRepository)

// WithMaxAttempts sets the retry bound for conflicting inserts.
func WithMaxAttempts(n int) LikeOption {
	return func(r *likeRepository) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithClock replaces the time source used for like timestamps.
func WithClock(now func() time.Time) LikeOption {
	return func(r *likeRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewLikeRepository creates a LikeRepository.
func NewLikeRepository(db *gorm.DB, opts ...LikeOption) LikeRepository {
	r := &likeRepository{
		db:          db,
		maxAttempts: DefaultToggleAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// targetTable maps a kind to the table holding its counter and the edge column pointing at it.
type targetTable struct {
	table      string
	edgeColumn string
	columns    string
}

func tableFor(kind models.TargetKind) (targetTable, error) {
	switch kind {
	case models.TargetPost:
		return targetTable{
			table:      "posts",
			edgeColumn: "post_id",
			columns:    "posts.id, posts.id AS post_id",
		}, nil
	case models.TargetComment:
		return targetTable{
			table:      "comments",
			edgeColumn: "comment_id",
			columns:    "comments.id, comments.post_id",
		}, nil
	default:
		return targetTable{}, models.NewValidationError(fmt.Sprintf("unknown like target kind %q", kind))
	}
}

func (t targetTable) load(db *gorm.DB, id uint) (*models.LikeTarget, error) {
	var target models.LikeTarget
	err := db.Table(t.table).
		Select(t.columns+", "+t.table+".user_id AS owner_id, users.username AS owner_username, "+
			t.table+".content, "+t.table+".like_count, "+
			t.table+".like_created_at, "+t.table+".like_updated_at").
		Joins("JOIN users ON users.id = "+t.table+".user_id").
		Where(t.table+".id = ? AND "+t.table+".deleted_at IS NULL", id).
		Take(&target).Error
	if err != nil {
		return nil, err
	}
	return &target, nil
}

func (r *likeRepository) FindTarget(ctx context.Context, kind models.TargetKind, id uint) (*models.LikeTarget, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	target, err := t.load(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, notFoundOrInternal(err, kind, id)
	}
	target.Kind = kind
	return target, nil
}

func (r *likeRepository) IsLiked(ctx context.Context, userID uint, kind models.TargetKind, targetID uint) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("user_id = ? AND "+t.edgeColumn+" = ?", userID, targetID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *likeRepository) Toggle(ctx context.Context, userID uint, kind models.TargetKind, targetID uint) (*models.LikeTarget, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartLikeToggle(ctx, string(kind), targetID)
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		target, err := r.toggleOnce(ctx, t, userID, kind, targetID)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, errEdgeRace) {
			observability.Fail(span, err)
			return nil, err
		}
		// The edge now exists; the next attempt sees it and removes it.
		observability.LikeToggleConflicts.WithLabelValues(string(kind)).Inc()
		lastErr = err
	}

	observability.Fail(span, lastErr)
	return nil, models.NewInternalError(fmt.Errorf("toggle %s %d gave up after %d attempts: %w", kind, targetID, r.maxAttempts, lastErr))
}

func (r *likeRepository) toggleOnce(ctx context.Context, t targetTable, userID uint, kind models.TargetKind, targetID uint) (*models.LikeTarget, error) {
	var (
		result *models.LikeTarget
		liked  bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lockTarget(tx, t, targetID); err != nil {
			return err
		}

		var edge models.Like
		found := tx.Where("user_id = ? AND "+t.edgeColumn+" = ?", userID, targetID).Limit(1).Find(&edge)
		if found.Error != nil {
			return found.Error
		}

		now := r.now().UTC()
		counter := tx.Table(t.table).Where("id = ?", targetID)

		if found.RowsAffected > 0 {
			if err := tx.Delete(&models.Like{}, edge.ID).Error; err != nil {
				return err
			}
			if err := counter.Updates(map[string]any{
				"like_count":      gorm.Expr("CASE WHEN like_count > 0 THEN like_count - 1 ELSE 0 END"),
				"like_updated_at": now,
			}).Error; err != nil {
				return err
			}
		} else {
			newEdge, err := models.NewLike(userID, kind, targetID)
			if err != nil {
				return err
			}
			ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(newEdge)
			if ins.Error != nil {
				if isUniqueConstraintError(ins.Error) {
					return errEdgeRace
				}
				return ins.Error
			}
			if ins.RowsAffected == 0 {
				return errEdgeRace
			}
			if err := counter.Updates(map[string]any{
				"like_count":      gorm.Expr("like_count + 1"),
				"like_created_at": now,
				"like_updated_at": now,
			}).Error; err != nil {
				return err
			}
			liked = true
		}

		target, err := t.load(tx, targetID)
		if err != nil {
			return err
		}
		result = target
		return nil
	})
	if err != nil {
		if errors.Is(err, errEdgeRace) {
			return nil, err
		}
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, notFoundOrInternal(err, kind, targetID)
	}

	result.Kind = kind
	result.Liked = liked
	return result, nil
}

type lockedRow struct {
	ID uint
}

// lockTarget takes a row lock on the target so concurrent toggles on it serialize.
// SQLite has no row locks; its writers are already serialized by the database lock.
func (r *likeRepository) lockTarget(tx *gorm.DB, t targetTable, id uint) error {
	q := tx.Table(t.table).Select("id").Where("id = ? AND deleted_at IS NULL", id)
	if database.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row lockedRow
	return q.Take(&row).Error
}

func (r *likeRepository) Recount(ctx context.Context) (int64, error) {
	ctx, span := observability.StartQuery(ctx, "recount", "likes")
	defer span.End()

	var touched int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, kind := range []models.TargetKind{models.TargetPost, models.TargetComment} {
			t, _ := tableFor(kind)
			res := tx.Exec("UPDATE " + t.table + " SET like_count = " +
				"(SELECT COUNT(*) FROM likes WHERE likes." + t.edgeColumn + " = " + t.table + ".id)")
			if res.Error != nil {
				return res.Error
			}
			touched += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return touched, nil
}

func notFoundOrInternal(err error, kind models.TargetKind, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if kind == models.TargetComment {
			return models.NewNotFoundError("Comment", id)
		}
		return models.NewNotFoundError("Newsfeed", id)
	}
	return models.NewInternalError(err)
}
