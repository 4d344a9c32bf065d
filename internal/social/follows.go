package social

import (
	"context"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/auth"
	"github.com/vivenzalife/vivenza/internal/models"
)

func (s *Service) Follow(ctx context.Context, callerID, targetID string) error {
	if err := auth.RequireCaller(callerID); err != nil {
		return err
	}
	if callerID == targetID {
		return apperr.NewInvalid("cannot follow yourself")
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, targetID); err != nil {
		return apperr.Store("failed to follow user", err)
	}
	if !exists {
		return apperr.NewNotFound("user not found")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO follows (follower_id, following_id, created_at) VALUES (?, ?, ?)`,
		callerID, targetID, s.now().UTC(),
	)
	if err != nil {
		return apperr.Store("failed to follow user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NewInvalid("already following")
	}
	return nil
}

func (s *Service) Unfollow(ctx context.Context, callerID, targetID string) error {
	if err := auth.RequireCaller(callerID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND following_id = ?`, callerID, targetID)
	if err != nil {
		return apperr.Store("failed to unfollow user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NewInvalid("not following")
	}
	return nil
}

func (s *Service) ProfileStats(ctx context.Context, userID string) (models.ProfileStats, error) {
	var stats models.ProfileStats
	err := s.db.QueryRowxContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM posts WHERE user_id = ?),
			(SELECT COUNT(*) FROM follows WHERE following_id = ?),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?)
	`, userID, userID, userID).Scan(&stats.PostsCount, &stats.FollowersCount, &stats.FollowingCount)
	if err != nil {
		return models.ProfileStats{}, apperr.Store("failed to fetch profile stats", err)
	}
	return stats, nil
}

// IsFollowing is false for anonymous callers.
func (s *Service) IsFollowing(ctx context.Context, callerID, targetID string) (bool, error) {
	if !auth.HasCaller(callerID) {
		return false, nil
	}
	var following bool
	err := s.db.GetContext(ctx, &following,
		`SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = ? AND following_id = ?)`, callerID, targetID)
	if err != nil {
		return false, apperr.Store("failed to fetch follows", err)
	}
	return following, nil
}

func (s *Service) Followers(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.followList(ctx, `
		SELECT u.id, u.name, u.image
		FROM follows f JOIN users u ON u.id = f.follower_id
		WHERE f.following_id = ?
		ORDER BY f.created_at DESC
	`, userID)
}

func (s *Service) Following(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.followList(ctx, `
		SELECT u.id, u.name, u.image
		FROM follows f JOIN users u ON u.id = f.following_id
		WHERE f.follower_id = ?
		ORDER BY f.created_at DESC
	`, userID)
}

func (s *Service) followList(ctx context.Context, query, userID string) ([]models.UserSummary, error) {
	users := []models.UserSummary{}
	if err := s.db.SelectContext(ctx, &users, query, userID); err != nil {
		return nil, apperr.Store("failed to fetch follows", err)
	}
	return users, nil
}
