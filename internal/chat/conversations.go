package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/auth"
	"github.com/vivenzalife/vivenza/internal/metrics"
	"github.com/vivenzalife/vivenza/internal/models"
)

// StartOrGetConversation returns the conversation between caller and target,
// creating it when the pair has none. Concurrent calls for the same pair
// converge on one id through the pair_key unique index.
func (s *Service) StartOrGetConversation(ctx context.Context, callerID, targetID string) (string, error) {
	if err := auth.RequireCaller(callerID); err != nil {
		return "", err
	}

	var targetExists bool
	if err := s.db.GetContext(ctx, &targetExists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, targetID); err != nil {
		return "", apperr.Store("failed to create conversation", err)
	}
	if !targetExists {
		return "", apperr.NewNotFound("participant not found")
	}

	key := PairKey(callerID, targetID)

	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM conversations WHERE pair_key = ?`, key)
	if err == nil {
		return id, nil
	}
	if !isNoRows(err) {
		return "", apperr.Store("failed to check conversation", err)
	}

	id, created, err := s.createConversation(ctx, key, callerID, targetID)
	if err != nil {
		return "", apperr.Store("failed to create conversation", err)
	}
	if created {
		metrics.ConversationCreated()
		s.log.WithField("conversation_id", id).Debug("conversation created")
	}

	return id, nil
}

func (s *Service) createConversation(ctx context.Context, key, callerID, targetID string) (string, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, pair_key, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING
	`, uuid.NewString(), key, now, now)
	if err != nil {
		return "", false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}

	// Whoever won the insert, the row for this key is now the conversation.
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM conversations WHERE pair_key = ?`, key); err != nil {
		return "", false, err
	}

	for _, userID := range []string{callerID, targetID} {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
			id, userID, now,
		)
		if err != nil {
			return "", false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return id, inserted > 0, nil
}

type conversationRow struct {
	ID        string    `db:"id"`
	UpdatedAt time.Time `db:"updated_at"`
}

type participantRow struct {
	ConversationID string  `db:"conversation_id"`
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	Image          *string `db:"image"`
}

type unreadRow struct {
	ConversationID string `db:"conversation_id"`
	Unread         int    `db:"unread"`
}

// ListConversations returns the caller's conversations, most recently
// active first. Without a caller the list is empty.
func (s *Service) ListConversations(ctx context.Context, callerID string) ([]models.ConversationPreview, error) {
	previews := []models.ConversationPreview{}
	if !auth.HasCaller(callerID) {
		return previews, nil
	}

	var convs []conversationRow
	err := s.db.SelectContext(ctx, &convs, `
		SELECT c.id, c.updated_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC, c.rowid DESC
	`, callerID)
	if err != nil {
		return nil, apperr.Store("failed to fetch conversations", err)
	}
	if len(convs) == 0 {
		return previews, nil
	}

	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}

	participants, err := s.participantsFor(ctx, ids)
	if err != nil {
		return nil, apperr.Store("failed to fetch conversations", err)
	}
	lastMessages, err := s.lastMessagesFor(ctx, ids)
	if err != nil {
		return nil, apperr.Store("failed to fetch conversations", err)
	}
	unread, err := s.unreadFor(ctx, ids, callerID)
	if err != nil {
		return nil, apperr.Store("failed to fetch conversations", err)
	}

	for _, c := range convs {
		preview := models.ConversationPreview{
			ID:           c.ID,
			UpdatedAt:    c.UpdatedAt,
			Participants: participants[c.ID],
			LastMessage:  lastMessages[c.ID],
			UnreadCount:  unread[c.ID],
		}
		if preview.Participants == nil {
			preview.Participants = []models.Participant{}
		}
		previews = append(previews, preview)
	}

	return previews, nil
}

func (s *Service) participantsFor(ctx context.Context, ids []string) (map[string][]models.Participant, error) {
	query, args, err := sqlx.In(`
		SELECT cp.conversation_id, u.id, u.name, u.image
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id IN (?)
		ORDER BY cp.joined_at, u.id
	`, ids)
	if err != nil {
		return nil, err
	}

	var rows []participantRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	out := make(map[string][]models.Participant, len(ids))
	for _, r := range rows {
		p := models.Participant{
			UserSummary: models.UserSummary{ID: r.ID, Name: r.Name, Image: r.Image},
		}
		if s.online != nil {
			p.IsOnline = s.online.IsUserOnline(r.ID)
		}
		out[r.ConversationID] = append(out[r.ConversationID], p)
	}
	return out, nil
}

func (s *Service) lastMessagesFor(ctx context.Context, ids []string) (map[string]*models.Message, error) {
	query, args, err := sqlx.In(messageSelect+`
		WHERE m.conversation_id IN (?)
		AND m.rowid = (
			SELECT m2.rowid FROM messages m2
			WHERE m2.conversation_id = m.conversation_id
			ORDER BY m2.created_at DESC, m2.rowid DESC
			LIMIT 1
		)
	`, ids)
	if err != nil {
		return nil, err
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	out := make(map[string]*models.Message, len(rows))
	for _, r := range rows {
		out[r.ConversationID] = r.toModel()
	}
	return out, nil
}

func (s *Service) unreadFor(ctx context.Context, ids []string, callerID string) (map[string]int, error) {
	query, args, err := sqlx.In(`
		SELECT conversation_id, COUNT(*) AS unread
		FROM messages
		WHERE conversation_id IN (?) AND is_read = 0 AND sender_id != ?
		GROUP BY conversation_id
	`, ids, callerID)
	if err != nil {
		return nil, err
	}

	var rows []unreadRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.ConversationID] = r.Unread
	}
	return out, nil
}
