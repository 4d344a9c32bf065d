// Package social covers the feed: posts, reposts, likes, comments and
// follows.
package social

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/assets"
	"github.com/vivenzalife/vivenza/internal/auth"
	"github.com/vivenzalife/vivenza/internal/models"
)

type Service struct {
	db     *sqlx.DB
	assets assets.Storage
	log    logrus.FieldLogger
	now    func() time.Time
}

func New(db *sqlx.DB, storage assets.Storage, log logrus.FieldLogger) *Service {
	return &Service{db: db, assets: storage, log: log, now: time.Now}
}

const postSelect = `
	SELECT p.id, p.user_id, p.caption, p.image_url, p.original_post_id, p.created_at,
		u.name AS author_name, u.image AS author_image,
		op.caption AS original_caption, op.image_url AS original_image_url, op.user_id AS original_user_id,
		ou.name AS original_author_name, ou.image AS original_author_image,
		(SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS like_count,
		(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id) AS comment_count,
		(SELECT COUNT(*) FROM posts r WHERE r.original_post_id = p.id) AS repost_count,
		EXISTS(SELECT 1 FROM likes l WHERE l.post_id = p.id AND l.user_id = ?) AS liked_by_viewer
	FROM posts p
	JOIN users u ON u.id = p.user_id
	LEFT JOIN posts op ON op.id = p.original_post_id
	LEFT JOIN users ou ON ou.id = op.user_id
`

type postRow struct {
	models.Post
	AuthorName          string         `db:"author_name"`
	AuthorImage         *string        `db:"author_image"`
	OriginalCaption     sql.NullString `db:"original_caption"`
	OriginalImageURL    sql.NullString `db:"original_image_url"`
	OriginalUserID      sql.NullString `db:"original_user_id"`
	OriginalAuthorName  sql.NullString `db:"original_author_name"`
	OriginalAuthorImage *string        `db:"original_author_image"`
	LikeCount           int            `db:"like_count"`
	CommentCount        int            `db:"comment_count"`
	RepostCount         int            `db:"repost_count"`
	LikedByViewer       bool           `db:"liked_by_viewer"`
}

func (r postRow) toView() models.PostView {
	view := models.PostView{
		Post:          r.Post,
		Author:        models.UserSummary{ID: r.UserID, Name: r.AuthorName, Image: r.AuthorImage},
		LikeCount:     r.LikeCount,
		CommentCount:  r.CommentCount,
		RepostCount:   r.RepostCount,
		LikedByViewer: r.LikedByViewer,
	}
	if r.OriginalPostID != nil && r.OriginalUserID.Valid {
		view.OriginalPost = &models.PostBrief{
			ID:       *r.OriginalPostID,
			Caption:  r.OriginalCaption.String,
			ImageURL: r.OriginalImageURL.String,
			Author: models.UserSummary{
				ID:    r.OriginalUserID.String,
				Name:  r.OriginalAuthorName.String,
				Image: r.OriginalAuthorImage,
			},
		}
	}
	return view
}

func (s *Service) CreatePost(ctx context.Context, callerID, caption string, image io.Reader, imageName string) (*models.Post, error) {
	if err := auth.RequireCaller(callerID); err != nil {
		return nil, err
	}
	if image == nil {
		return nil, apperr.NewInvalid("image is required")
	}

	url, err := s.assets.Store(ctx, image, imageName)
	if err != nil {
		if apperr.CodeOf(err) != apperr.UploadFailed {
			err = apperr.Wrap(apperr.UploadFailed, "failed to store file", err)
		}
		return nil, err
	}

	post := &models.Post{
		ID:        uuid.NewString(),
		UserID:    callerID,
		Caption:   caption,
		ImageURL:  url,
		CreatedAt: s.now().UTC(),
	}
	if err := s.insertPost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// SharePost reposts an existing post, reusing its image.
func (s *Service) SharePost(ctx context.Context, callerID, originalID, caption string) (*models.Post, error) {
	if err := auth.RequireCaller(callerID); err != nil {
		return nil, err
	}

	var original models.Post
	err := s.db.GetContext(ctx, &original,
		`SELECT id, user_id, caption, image_url, original_post_id, created_at FROM posts WHERE id = ?`, originalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("post not found")
		}
		return nil, apperr.Store("failed to create post", err)
	}

	post := &models.Post{
		ID:             uuid.NewString(),
		UserID:         callerID,
		Caption:        caption,
		ImageURL:       original.ImageURL,
		OriginalPostID: &original.ID,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.insertPost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Service) insertPost(ctx context.Context, post *models.Post) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO posts (id, user_id, caption, image_url, original_post_id, created_at)
		VALUES (:id, :user_id, :caption, :image_url, :original_post_id, :created_at)
	`, post)
	return apperr.Store("failed to create post", err)
}

// Feed lists every post newest first. viewerID only drives liked_by_viewer.
func (s *Service) Feed(ctx context.Context, viewerID string) ([]models.PostView, error) {
	return s.listPosts(ctx, postSelect+` ORDER BY p.created_at DESC, p.rowid DESC`, viewerID)
}

func (s *Service) UserPosts(ctx context.Context, viewerID, userID string) ([]models.PostView, error) {
	if userID == "" {
		userID = viewerID
	}
	if userID == "" {
		return []models.PostView{}, nil
	}
	return s.listPosts(ctx, postSelect+` WHERE p.user_id = ? ORDER BY p.created_at DESC, p.rowid DESC`, viewerID, userID)
}

func (s *Service) listPosts(ctx context.Context, query string, args ...any) ([]models.PostView, error) {
	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Store("failed to fetch posts", err)
	}
	views := make([]models.PostView, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.toView())
	}
	return views, nil
}

// DeletePost removes a post owned by the caller along with its likes and
// comments. Reposts keep their copy of the image.
func (s *Service) DeletePost(ctx context.Context, callerID, postID string) error {
	if err := auth.RequireCaller(callerID); err != nil {
		return err
	}

	var owner string
	err := s.db.GetContext(ctx, &owner, `SELECT user_id FROM posts WHERE id = ?`, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NewNotFound("post not found")
		}
		return apperr.Store("failed to delete post", err)
	}
	if owner != callerID {
		return apperr.NewForbidden("can only delete own posts")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Store("failed to delete post", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM likes WHERE post_id = ?`,
		`DELETE FROM comments WHERE post_id = ?`,
		`DELETE FROM posts WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, postID); err != nil {
			return apperr.Store("failed to delete post", err)
		}
	}

	return apperr.Store("failed to delete post", tx.Commit())
}

func (s *Service) postExists(ctx context.Context, postID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`, postID)
	return exists, err
}
