// Package chat implements 1:1 conversations: creation, message delivery,
// read receipts and unread counting.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/models"
)

const (
	EventMessage = "message"
	EventRead    = "read"
)

// Event is pushed to connected participants after a change commits.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Message        *models.Message `json:"message,omitempty"`
	ReaderID       string          `json:"reader_id,omitempty"`
	Updated        int64           `json:"updated,omitempty"`
}

// Publisher fans events out to live connections. Publish must not block.
type Publisher interface {
	Publish(userIDs []string, event Event)
}

// OnlineChecker reports whether a user currently holds a live connection.
type OnlineChecker interface {
	IsUserOnline(userID string) bool
}

type nopPublisher struct{}

func (nopPublisher) Publish([]string, Event) {}

type ReadReceipt struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

type Service struct {
	db        *sqlx.DB
	log       logrus.FieldLogger
	now       func() time.Time
	publisher Publisher
	online    OnlineChecker
}

func New(db *sqlx.DB, log logrus.FieldLogger) *Service {
	return &Service{
		db:        db,
		log:       log,
		now:       time.Now,
		publisher: nopPublisher{},
	}
}

// SetPublisher wires the realtime stream. It must be called before serving.
func (s *Service) SetPublisher(p Publisher) {
	if p == nil {
		p = nopPublisher{}
	}
	s.publisher = p
}

func (s *Service) SetOnlineChecker(o OnlineChecker) {
	s.online = o
}

// PairKey normalizes an unordered user pair.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?)`,
		conversationID, userID,
	)
	if err != nil {
		return false, apperr.Store("failed to check conversation", err)
	}
	return exists, nil
}

func (s *Service) Participants(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`,
		conversationID,
	)
	if err != nil {
		return nil, apperr.Store("failed to check conversation", err)
	}
	return ids, nil
}

func (s *Service) publish(ctx context.Context, conversationID string, event Event) {
	participants, err := s.Participants(ctx, conversationID)
	if err != nil {
		s.log.WithError(err).WithField("conversation_id", conversationID).Warn("skipping realtime publish")
		return
	}
	s.publisher.Publish(participants, event)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
