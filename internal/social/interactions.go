package social

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/auth"
	"github.com/vivenzalife/vivenza/internal/models"
)

// ToggleLike likes the post, or removes the like if it already exists.
// It reports whether the post is liked afterwards.
func (s *Service) ToggleLike(ctx context.Context, callerID, postID string) (bool, error) {
	if err := auth.RequireCaller(callerID); err != nil {
		return false, err
	}

	exists, err := s.postExists(ctx, postID)
	if err != nil {
		return false, apperr.Store("failed to toggle like", err)
	}
	if !exists {
		return false, apperr.NewNotFound("post not found")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, apperr.Store("failed to toggle like", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE user_id = ? AND post_id = ?`, callerID, postID)
	if err != nil {
		return false, apperr.Store("failed to toggle like", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Store("failed to toggle like", err)
	}

	liked := removed == 0
	if liked {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO likes (id, user_id, post_id, created_at) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), callerID, postID, s.now().UTC(),
		)
		if err != nil {
			return false, apperr.Store("failed to toggle like", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, apperr.Store("failed to toggle like", err)
	}
	return liked, nil
}

func (s *Service) AddComment(ctx context.Context, callerID, postID, content string) (*models.Comment, error) {
	if err := auth.RequireCaller(callerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.NewInvalid("comment cannot be empty")
	}

	exists, err := s.postExists(ctx, postID)
	if err != nil {
		return nil, apperr.Store("failed to add comment", err)
	}
	if !exists {
		return nil, apperr.NewNotFound("post not found")
	}

	comment := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    callerID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO comments (id, post_id, user_id, content, created_at)
		VALUES (:id, :post_id, :user_id, :content, :created_at)
	`, comment)
	if err != nil {
		return nil, apperr.Store("failed to add comment", err)
	}

	if err := s.db.GetContext(ctx, &comment.Author, `SELECT id, name, image FROM users WHERE id = ?`, callerID); err != nil {
		s.log.WithError(err).WithField("comment_id", comment.ID).Warn("failed to load comment author")
		comment.Author = models.UserSummary{ID: callerID}
	}
	return comment, nil
}

type commentRow struct {
	models.Comment
	AuthorName  string  `db:"author_name"`
	AuthorImage *string `db:"author_image"`
}

// Comments lists the comments of a post, newest first.
func (s *Service) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	var rows []commentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id, c.post_id, c.user_id, c.content, c.created_at,
			u.name AS author_name, u.image AS author_image
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.post_id = ?
		ORDER BY c.created_at DESC, c.rowid DESC
	`, postID)
	if err != nil {
		return nil, apperr.Store("failed to fetch comments", err)
	}

	comments := make([]models.Comment, 0, len(rows))
	for _, r := range rows {
		c := r.Comment
		c.Author = models.UserSummary{ID: r.UserID, Name: r.AuthorName, Image: r.AuthorImage}
		comments = append(comments, c)
	}
	return comments, nil
}
