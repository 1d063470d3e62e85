package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/db"
)

var (
	ErrConversationNotFound = apperr.NotFound("conversation not found")
	ErrMessageNotFound      = apperr.NotFound("message not found")
)

// Store persists conversations and messages. Pairs passed to GetOrCreateConversation are
// already normalized.
type Store interface {
	GetOrCreateConversation(ctx context.Context, a, b uuid.UUID) (*Conversation, bool, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Conversation, error)
	CountConversations(ctx context.Context, userID uuid.UUID) (int, error)

	// InsertMessage stores m and moves the conversation's last-message pointer in one unit.
	InsertMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
	// ListMessages returns messages visible to viewer, newest first.
	ListMessages(ctx context.Context, conversationID, viewer uuid.UUID, offset, limit int) ([]Message, error)
	CountMessages(ctx context.Context, conversationID, viewer uuid.UUID) (int, error)
	CountUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
	// MarkRead flags unread messages addressed to reader. A nil ids marks all of them.
	// It returns only the ids that changed.
	MarkRead(ctx context.Context, conversationID, reader uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	SoftDelete(ctx context.Context, messageID, userID uuid.UUID) error
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(conn *sqlx.DB) *Repository {
	return &Repository{db: conn}
}

const conversationColumns = `id, participant_a, participant_b, last_message_id, created_at, updated_at`

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.receiver_id, COALESCE(m.text, '') AS text,
    m.attachments, m.is_read, m.read_at, m.created_at, m.updated_at,
    (SELECT COALESCE(json_agg(d.user_id), '[]'::json) FROM message_deletions d WHERE d.message_id = m.id) AS deleted_for`

func (r *Repository) GetOrCreateConversation(ctx context.Context, a, b uuid.UUID) (*Conversation, bool, error) {
	c := &Conversation{}
	err := r.db.GetContext(ctx, c, `INSERT INTO conversations (participant_a, participant_b)
        VALUES ($1, $2)
        ON CONFLICT (participant_a, participant_b) DO NOTHING
        RETURNING `+conversationColumns, a, b)
	if err == nil {
		return c, true, nil
	}
	if !db.IsNoRows(err) {
		switch {
		case db.IsUniqueViolation(err):
			return nil, false, apperr.Wrap(apperr.CodeConflict, "conversation already exists", err)
		case db.IsForeignKeyViolation(err):
			return nil, false, apperr.ErrUserNotFound
		}
		return nil, false, errors.Wrap(err, "chatRepo.GetOrCreateConversation.Insert")
	}

	// Lost the race, or it already existed.
	err = r.db.GetContext(ctx, c, `SELECT `+conversationColumns+` FROM conversations
        WHERE participant_a = $1 AND participant_b = $2`, a, b)
	if err != nil {
		return nil, false, errors.Wrap(err, "chatRepo.GetOrCreateConversation.Select")
	}
	return c, false, nil
}

func (r *Repository) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	c := &Conversation{}
	err := r.db.GetContext(ctx, c, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "chatRepo.GetConversation")
	}
	return c, nil
}

func (r *Repository) ListConversations(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Conversation, error) {
	var convs []Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT `+conversationColumns+` FROM conversations
        WHERE participant_a = $1 OR participant_b = $1
        ORDER BY updated_at DESC, id
        OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListConversations")
	}
	return convs, nil
}

func (r *Repository) CountConversations(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM conversations
        WHERE participant_a = $1 OR participant_b = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.CountConversations")
	}
	return n, nil
}

func (r *Repository) InsertMessage(ctx context.Context, m *Message) error {
	return db.RunInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, receiver_id, text, attachments)
            VALUES ($1, $2, $3, NULLIF($4, ''), $5)
            RETURNING id, is_read, read_at, created_at, updated_at`,
			m.ConversationID, m.SenderID, m.ReceiverID, m.Text, m.Attachments,
		).Scan(&m.ID, &m.IsRead, &m.ReadAt, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			switch {
			case db.IsCheckViolation(err):
				return apperr.ErrEmptyMessage
			case db.IsForeignKeyViolation(err):
				return ErrConversationNotFound
			}
			return errors.Wrap(err, "chatRepo.InsertMessage")
		}

		res, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_id = $2, updated_at = $3
            WHERE id = $1`, m.ConversationID, m.ID, m.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "chatRepo.InsertMessage.TouchConversation")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConversationNotFound
		}
		m.DeletedFor = IDList{}
		return nil
	})
}

func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	m := &Message{}
	err := r.db.GetContext(ctx, m, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "chatRepo.GetMessage")
	}
	return m, nil
}

func (r *Repository) ListMessages(ctx context.Context, conversationID, viewer uuid.UUID, offset, limit int) ([]Message, error) {
	var msgs []Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages m
        WHERE m.conversation_id = $1
          AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = $2)
        ORDER BY m.created_at DESC, m.id DESC
        OFFSET $3 LIMIT $4`, conversationID, viewer, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListMessages")
	}
	return msgs, nil
}

func (r *Repository) CountMessages(ctx context.Context, conversationID, viewer uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM messages m
        WHERE m.conversation_id = $1
          AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = $2)`,
		conversationID, viewer)
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.CountMessages")
	}
	return n, nil
}

func (r *Repository) CountUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM messages m
        WHERE m.conversation_id = $1 AND m.receiver_id = $2 AND NOT m.is_read
          AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = $2)`,
		conversationID, userID)
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.CountUnread")
	}
	return n, nil
}

func (r *Repository) MarkRead(ctx context.Context, conversationID, reader uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	var (
		changed []uuid.UUID
		err     error
	)
	if ids == nil {
		err = r.db.SelectContext(ctx, &changed, `UPDATE messages SET is_read = true, read_at = now(), updated_at = now()
            WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read
            RETURNING id`, conversationID, reader)
	} else {
		if len(ids) == 0 {
			return []uuid.UUID{}, nil
		}
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = id.String()
		}
		err = r.db.SelectContext(ctx, &changed, `UPDATE messages SET is_read = true, read_at = now(), updated_at = now()
            WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read AND id = ANY($3::uuid[])
            RETURNING id`, conversationID, reader, strs)
	}
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.MarkRead")
	}
	if changed == nil {
		changed = []uuid.UUID{}
	}
	return changed, nil
}

func (r *Repository) SoftDelete(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_deletions (message_id, user_id)
        VALUES ($1, $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrMessageNotFound
		}
		return errors.Wrap(err, "chatRepo.SoftDelete")
	}
	return nil
}
