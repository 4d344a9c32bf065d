// Package stories manages 24 hour image stories. Expiry is applied on every
// read; deleting old rows is an optional out-of-band job.
package stories

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/assets"
	"github.com/vivenzalife/vivenza/internal/auth"
	"github.com/vivenzalife/vivenza/internal/metrics"
	"github.com/vivenzalife/vivenza/internal/models"
)

const Lifetime = 24 * time.Hour

// Image is either an already hosted URL or raw data to upload.
type Image struct {
	URL  string
	Data io.Reader
	Name string
}

type Service struct {
	db     *sqlx.DB
	assets assets.Storage
	log    logrus.FieldLogger
	now    func() time.Time
}

func New(db *sqlx.DB, storage assets.Storage, log logrus.FieldLogger) *Service {
	return &Service{
		db:     db,
		assets: storage,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) Create(ctx context.Context, callerID string, img Image) (*models.Story, error) {
	if err := auth.RequireCaller(callerID); err != nil {
		return nil, err
	}

	url := img.URL
	switch {
	case img.Data != nil:
		stored, err := s.assets.Store(ctx, img.Data, img.Name)
		if err != nil {
			if apperr.CodeOf(err) != apperr.UploadFailed {
				err = apperr.Wrap(apperr.UploadFailed, "failed to store file", err)
			}
			return nil, err
		}
		url = stored
	case url == "":
		return nil, apperr.NewInvalid("image is required")
	}

	now := s.now().UTC()
	story := &models.Story{
		ID:        uuid.NewString(),
		UserID:    callerID,
		ImageURL:  url,
		CreatedAt: now,
		ExpiresAt: now.Add(Lifetime),
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO stories (id, user_id, image_url, created_at, expires_at)
		VALUES (:id, :user_id, :image_url, :created_at, :expires_at)
	`, story)
	if err != nil {
		return nil, apperr.Store("failed to create story", err)
	}

	metrics.StoryCreated()
	return story, nil
}

type activeRow struct {
	models.Story
	UserName  string  `db:"user_name"`
	UserImage *string `db:"user_image"`
}

// ListActiveAuthors groups active stories by author. The viewer comes first
// when they have something active, then authors by their newest story, ties
// broken by user id. Stories within an author play oldest first.
func (s *Service) ListActiveAuthors(ctx context.Context, viewerID string) ([]models.AuthorStories, error) {
	var rows []activeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT s.id, s.user_id, s.image_url, s.created_at, s.expires_at,
			u.name AS user_name, u.image AS user_image
		FROM stories s
		JOIN users u ON u.id = s.user_id
		WHERE s.expires_at > ?
		ORDER BY s.created_at ASC, s.rowid ASC
	`, s.now().UTC())
	if err != nil {
		return nil, apperr.Store("failed to fetch stories", err)
	}

	groups := []models.AuthorStories{}
	index := make(map[string]int)
	newest := make(map[string]time.Time)
	for _, r := range rows {
		i, ok := index[r.UserID]
		if !ok {
			i = len(groups)
			index[r.UserID] = i
			groups = append(groups, models.AuthorStories{
				User: models.UserSummary{ID: r.UserID, Name: r.UserName, Image: r.UserImage},
			})
		}
		groups[i].Stories = append(groups[i].Stories, r.Story)
		newest[r.UserID] = r.CreatedAt
	}

	sort.SliceStable(groups, func(a, b int) bool {
		ua, ub := groups[a].User.ID, groups[b].User.ID
		if viewerID != "" && (ua == viewerID) != (ub == viewerID) {
			return ua == viewerID
		}
		if !newest[ua].Equal(newest[ub]) {
			return newest[ua].After(newest[ub])
		}
		return ua < ub
	})

	return groups, nil
}

func (s *Service) ListActiveByUser(ctx context.Context, userID string) ([]models.Story, error) {
	stories := []models.Story{}
	err := s.db.SelectContext(ctx, &stories, `
		SELECT id, user_id, image_url, created_at, expires_at
		FROM stories
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at ASC, rowid ASC
	`, userID, s.now().UTC())
	if err != nil {
		return nil, apperr.Store("failed to fetch stories", err)
	}
	return stories, nil
}

// Reap deletes stories that expired more than retention ago. Active stories
// are never touched regardless of retention.
func (s *Service) Reap(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		retention = 0
	}
	cutoff := s.now().UTC().Add(-retention)

	res, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE expires_at <= ?`, cutoff)
	if err != nil {
		return 0, apperr.Store("failed to reap stories", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Store("failed to reap stories", err)
	}

	metrics.StoriesReaped(removed)
	return removed, nil
}
