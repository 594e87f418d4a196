package service

import (
	"context"
	"strconv"

	"newsfeed/internal/cache"
	"newsfeed/internal/middleware"
	"newsfeed/internal/models"
	"newsfeed/internal/repository"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// UsageService records and reports per-user handler time. The database row is the
// source of truth; the Redis leaderboard is a best-effort mirror used for rankings.
type UsageService struct {
	usageRepo repository.UsageRepository
	userRepo  repository.UserRepository
	rdb       *redis.Client
}

func NewUsageService(usageRepo repository.UsageRepository, userRepo repository.UserRepository, rdb *redis.Client) *UsageService {
	return &UsageService{
		usageRepo: usageRepo,
		userRepo:  userRepo,
		rdb:       rdb,
	}
}

// Record adds elapsedMs to the user's total and returns the new total.
func (s *UsageService) Record(ctx context.Context, userID uint, elapsedMs int64) (int64, error) {
	total, err := s.usageRepo.AddUsage(ctx, userID, elapsedMs)
	if err != nil {
		return 0, err
	}
	if s.rdb != nil {
		if err := s.rdb.ZIncrBy(ctx, cache.UsageLeaderboard, float64(elapsedMs), leaderboardMember(userID)).Err(); err != nil {
			middleware.Logger.WarnContext(ctx, "usage leaderboard update failed", "user_id", userID, "error", err)
		}
	}
	return total, nil
}

// GetUsage returns the user's record, or a zero record when nothing was recorded yet.
func (s *UsageService) GetUsage(ctx context.Context, userID uint) (*models.ApiUseTime, error) {
	rec, err := s.usageRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &models.ApiUseTime{UserID: userID}, nil
	}
	return rec, nil
}

// GetUsageByUsername looks up any account, withdrawn ones included.
func (s *UsageService) GetUsageByUsername(ctx context.Context, username string) (*models.UsageEntry, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", username)
	}
	rec, err := s.GetUsage(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.UsageEntry{UserID: user.ID, Username: user.Username, TotalTime: rec.TotalTime}, nil
}

// Top ranks users by total time, reading the leaderboard first and the table when
// Redis is unavailable or empty.
func (s *UsageService) Top(ctx context.Context, limit int) ([]models.UsageEntry, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	if entries, ok := s.topFromLeaderboard(ctx, limit); ok {
		return entries, nil
	}
	return s.usageRepo.Top(ctx, limit)
}

func (s *UsageService) topFromLeaderboard(ctx context.Context, limit int) ([]models.UsageEntry, bool) {
	if s.rdb == nil {
		return nil, false
	}
	scores, err := s.rdb.ZRevRangeWithScores(ctx, cache.UsageLeaderboard, 0, int64(limit-1)).Result()
	if err != nil {
		middleware.Logger.WarnContext(ctx, "usage leaderboard read failed", "error", err)
		return nil, false
	}
	if len(scores) == 0 {
		return nil, false
	}

	entries := make([]models.UsageEntry, 0, len(scores))
	for _, z := range scores {
		member, _ := z.Member.(string)
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		user, err := s.userRepo.GetByID(ctx, uint(id))
		if err != nil {
			// A member whose user cannot be loaded means the mirror is stale.
			return nil, false
		}
		entries = append(entries, models.UsageEntry{
			UserID:    user.ID,
			Username:  user.Username,
			TotalTime: int64(z.Score),
		})
	}
	return entries, true
}

// RebuildLeaderboard replaces the Redis mirror with the totals stored in the database.
func (s *UsageService) RebuildLeaderboard(ctx context.Context) (int, error) {
	if s.rdb == nil {
		return 0, nil
	}
	entries, err := s.usageRepo.Top(ctx, -1)
	if err != nil {
		return 0, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cache.UsageLeaderboard)
		for _, e := range entries {
			pipe.ZAdd(ctx, cache.UsageLeaderboard, redis.Z{Score: float64(e.TotalTime), Member: leaderboardMember(e.UserID)})
		}
		return nil
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return len(entries), nil
}

func leaderboardMember(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
