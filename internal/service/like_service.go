package service

import (
	"context"

	"newsfeed/internal/cache"
	"newsfeed/internal/models"
	"newsfeed/internal/notifications"
	"newsfeed/internal/observability"
	"newsfeed/internal/repository"
)

// ActorLookup resolves a username to a live account.
type ActorLookup interface {
	FindActiveByUsername(ctx context.Context, username string) (*models.User, error)
}

// LikeService toggles likes on posts and comments through a single entry point.
type LikeService struct {
	likeRepo repository.LikeRepository
	actors   ActorLookup
	store    *cache.Store
	notifier *notifications.Notifier
}

// ToggleLikeInput names who is toggling and what.
type ToggleLikeInput struct {
	Actor    string
	TargetID uint
	Kind     models.TargetKind
}

func NewLikeService(
	likeRepo repository.LikeRepository,
	actors ActorLookup,
	store *cache.Store,
	notifier *notifications.Notifier,
) *LikeService {
	return &LikeService{
		likeRepo: likeRepo,
		actors:   actors,
		store:    store,
		notifier: notifier,
	}
}

// Toggle likes the target if the actor has not liked it yet, and unlikes it otherwise.
//
// Checks run in order: the target must exist, the actor must be an active user, and
// the actor must not own the target. Nothing is written when a check fails.
func (s *LikeService) Toggle(ctx context.Context, in ToggleLikeInput) (*models.LikeTarget, error) {
	if !in.Kind.Valid() {
		return nil, models.NewValidationError("Unknown like target")
	}
	kind := string(in.Kind)

	target, err := s.likeRepo.FindTarget(ctx, in.Kind, in.TargetID)
	if err != nil {
		observability.LikeToggles.WithLabelValues(kind, "rejected").Inc()
		return nil, err
	}
	actor, err := s.actors.FindActiveByUsername(ctx, in.Actor)
	if err != nil {
		observability.LikeToggles.WithLabelValues(kind, "rejected").Inc()
		return nil, err
	}
	if target.OwnerID == actor.ID {
		observability.LikeToggles.WithLabelValues(kind, "rejected").Inc()
		return nil, models.NewSelfLikeError(in.Kind)
	}

	result, err := s.likeRepo.Toggle(ctx, actor.ID, in.Kind, in.TargetID)
	if err != nil {
		observability.LikeToggles.WithLabelValues(kind, "failed").Inc()
		return nil, err
	}

	outcome := "unliked"
	if result.Liked {
		outcome = "liked"
	}
	observability.LikeToggles.WithLabelValues(kind, outcome).Inc()

	s.store.InvalidatePost(ctx, result.PostID)
	broadcast(ctx, s.notifier, notifications.Event{
		Type: notifications.EventLikeToggled,
		Payload: map[string]any{
			"kind":       kind,
			"target_id":  result.ID,
			"post_id":    result.PostID,
			"actor":      actor.Username,
			"liked":      result.Liked,
			"like_count": result.LikeCount,
		},
	})
	return result, nil
}
