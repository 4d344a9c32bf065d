package chat

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/auth"
	"github.com/vivenzalife/vivenza/internal/metrics"
	"github.com/vivenzalife/vivenza/internal/models"
)

const messageSelect = `
	SELECT m.id, m.conversation_id, m.sender_id, m.content, m.shared_post_id, m.is_read, m.created_at,
		u.name AS sender_name, u.image AS sender_image,
		p.image_url AS post_image_url, p.caption AS post_caption, pu.name AS post_author_name
	FROM messages m
	JOIN users u ON u.id = m.sender_id
	LEFT JOIN posts p ON p.id = m.shared_post_id
	LEFT JOIN users pu ON pu.id = p.user_id
`

type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	SenderID       string         `db:"sender_id"`
	Content        sql.NullString `db:"content"`
	SharedPostID   sql.NullString `db:"shared_post_id"`
	IsRead         bool           `db:"is_read"`
	CreatedAt      time.Time      `db:"created_at"`
	SenderName     string         `db:"sender_name"`
	SenderImage    sql.NullString `db:"sender_image"`
	PostImageURL   sql.NullString `db:"post_image_url"`
	PostCaption    sql.NullString `db:"post_caption"`
	PostAuthorName sql.NullString `db:"post_author_name"`
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func (r messageRow) toModel() *models.Message {
	msg := &models.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Content:        nullable(r.Content),
		SharedPostID:   nullable(r.SharedPostID),
		IsRead:         r.IsRead,
		CreatedAt:      r.CreatedAt,
		Sender: &models.UserSummary{
			ID:    r.SenderID,
			Name:  r.SenderName,
			Image: nullable(r.SenderImage),
		},
	}
	// A shared post deleted after sending leaves only its id behind.
	if r.SharedPostID.Valid && r.PostImageURL.Valid {
		msg.SharedPost = &models.SharedPostBrief{
			ID:         r.SharedPostID.String,
			ImageURL:   r.PostImageURL.String,
			Caption:    r.PostCaption.String,
			AuthorName: r.PostAuthorName.String,
		}
	}
	return msg
}

// SendMessage stores a message from the caller. At least one of a non-blank
// content or a shared post id is required.
func (s *Service) SendMessage(ctx context.Context, callerID, conversationID, content string, sharedPostID *string) (*models.Message, error) {
	if err := auth.RequireCaller(callerID); err != nil {
		return nil, err
	}

	ok, err := s.IsParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NewForbidden("not a participant")
	}

	if sharedPostID != nil && *sharedPostID == "" {
		sharedPostID = nil
	}
	var body *string
	if strings.TrimSpace(content) != "" {
		body = &content
	}
	if body == nil && sharedPostID == nil {
		return nil, apperr.NewInvalid("message content or shared post required")
	}

	if sharedPostID != nil {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`, *sharedPostID); err != nil {
			return nil, apperr.Store("failed to send message", err)
		}
		if !exists {
			return nil, apperr.NewNotFound("shared post not found")
		}
	}

	id := uuid.NewString()
	if err := s.insertMessage(ctx, id, conversationID, callerID, body, sharedPostID); err != nil {
		return nil, apperr.Store("failed to send message", err)
	}
	metrics.MessageSent()

	msg, err := s.messageByID(ctx, id)
	if err != nil {
		// Committed already; fall back to what we know.
		s.log.WithError(err).WithField("message_id", id).Warn("failed to reload sent message")
		msg = &models.Message{
			ID:             id,
			ConversationID: conversationID,
			SenderID:       callerID,
			Content:        body,
			SharedPostID:   sharedPostID,
			CreatedAt:      s.now().UTC(),
		}
	}

	s.publish(ctx, conversationID, Event{Type: EventMessage, ConversationID: conversationID, Message: msg})

	return msg, nil
}

// insertMessage writes the message and bumps the conversation activity
// timestamp atomically.
func (s *Service) insertMessage(ctx context.Context, id, conversationID, senderID string, content, sharedPostID *string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, shared_post_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, id, conversationID, senderID, content, sharedPostID, now)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Service) messageByID(ctx context.Context, id string) (*models.Message, error) {
	var row messageRow
	if err := s.db.GetContext(ctx, &row, messageSelect+` WHERE m.id = ?`, id); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// ListMessages returns the conversation history oldest first. Callers that
// are not participants get an empty list rather than an error.
func (s *Service) ListMessages(ctx context.Context, callerID, conversationID string) ([]models.Message, error) {
	messages := []models.Message{}
	if !auth.HasCaller(callerID) {
		return messages, nil
	}

	ok, err := s.IsParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return messages, nil
	}

	var rows []messageRow
	err = s.db.SelectContext(ctx, &rows, messageSelect+`
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.rowid ASC
	`, conversationID)
	if err != nil {
		return nil, apperr.Store("failed to fetch messages", err)
	}

	for _, r := range rows {
		messages = append(messages, *r.toModel())
	}
	return messages, nil
}

// MarkRead flips every unread message from the other participants. It is
// idempotent; a second call reports zero updates.
func (s *Service) MarkRead(ctx context.Context, callerID, conversationID string) (ReadReceipt, error) {
	if !auth.HasCaller(callerID) {
		return ReadReceipt{}, nil
	}

	ok, err := s.IsParticipant(ctx, conversationID, callerID)
	if err != nil {
		return ReadReceipt{}, err
	}
	if !ok {
		return ReadReceipt{}, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_id != ? AND is_read = 0
	`, conversationID, callerID)
	if err != nil {
		return ReadReceipt{}, apperr.Store("failed to mark messages as read", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return ReadReceipt{}, apperr.Store("failed to mark messages as read", err)
	}

	if updated > 0 {
		s.publish(ctx, conversationID, Event{
			Type:           EventRead,
			ConversationID: conversationID,
			ReaderID:       callerID,
			Updated:        updated,
		})
	}

	return ReadReceipt{Success: true, Updated: updated}, nil
}

// UnreadCount counts unread messages sent by others across every
// conversation the caller takes part in.
func (s *Service) UnreadCount(ctx context.Context, callerID string) (int, error) {
	if !auth.HasCaller(callerID) {
		return 0, nil
	}

	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants cp ON cp.conversation_id = m.conversation_id AND cp.user_id = ?
		WHERE m.sender_id != ? AND m.is_read = 0
	`, callerID, callerID)
	if err != nil {
		return 0, apperr.Store("failed to count unread messages", err)
	}
	return count, nil
}
