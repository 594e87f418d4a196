package repository

import (
	"context"
	"errors"

	"newsfeed/internal/models"
	"newsfeed/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository persists per-user cumulative handler time.
type UsageRepository interface {
	// AddUsage adds elapsedMs to the user's total, creating the row on first use,
	// and returns the new total.
	AddUsage(ctx context.Context, userID uint, elapsedMs int64) (int64, error)
	// GetByUserID returns (nil, nil) when the user has no recorded usage.
	GetByUserID(ctx context.Context, userID uint) (*models.ApiUseTime, error)
	Top(ctx context.Context, limit int) ([]models.UsageEntry, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a UsageRepository.
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) AddUsage(ctx context.Context, userID uint, elapsedMs int64) (int64, error) {
	defer observability.TrackQuery("upsert", "api_use_times")()
	ctx, span := observability.StartQuery(ctx, "upsert", "api_use_times")
	defer span.End()

	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.ApiUseTime{UserID: userID, TotalTime: elapsedMs}
		// Single statement so concurrent requests for one user never lose an increment.
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total_time": gorm.Expr("api_use_times.total_time + excluded.total_time"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.ApiUseTime{}).
			Where("user_id = ?", userID).
			Pluck("total_time", &total).Error
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return total, nil
}

func (r *usageRepository) GetByUserID(ctx context.Context, userID uint) (*models.ApiUseTime, error) {
	var rec models.ApiUseTime
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &rec, nil
}

func (r *usageRepository) Top(ctx context.Context, limit int) ([]models.UsageEntry, error) {
	var entries []models.UsageEntry
	err := r.db.WithContext(ctx).
		Table("api_use_times").
		Select("api_use_times.user_id, users.username, api_use_times.total_time").
		Joins("JOIN users ON users.id = api_use_times.user_id").
		Order("api_use_times.total_time DESC").
		Order("api_use_times.user_id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}
