// Package conversation owns the conversation and message rows: it creates
// conversations, appends messages, materializes bounded context windows for
// the response generator and soft-deletes conversations past retention.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/db"
	"github.com/RichardoC/realty-assistant/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcAddMessage is the gateway procedure that inserts a message and bumps the
// parent conversation's counter in one transaction.
const ProcAddMessage = "add_message"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store is what the manager needs from the persistence gateway.
type Store interface {
	db.Executor
	ExecuteProcedure(ctx context.Context, name string, params db.Params) (db.Result, error)
	RegisterProcedure(name string, proc db.Procedure)
}

type Manager struct {
	store  Store
	cfg    config.ConversationConfig
	logger *zap.Logger
	now    func() time.Time
}

// Stats aggregates conversation counts for the stats endpoint.
type Stats struct {
	TotalConversations  int     `json:"totalConversations"`
	ActiveConversations int     `json:"activeConversations"`
	TotalMessages       int     `json:"totalMessages"`
	AvgMessages         float64 `json:"averageMessagesPerConversation"`
}

// New creates a Manager and registers its procedures on store.
func New(store Store, cfg config.ConversationConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("conversation"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	store.RegisterProcedure(ProcAddMessage, addMessage)
	return m
}

// EstimateTokens approximates the token count of s at four characters per
// token, rounded up. The divisor is fixed so persisted counts stay comparable.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

func encodeMetadata(m models.Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", apperr.Validation("metadata is not serializable", err.Error())
	}
	return string(b), nil
}

func decodeMetadata(s string) models.Metadata {
	m := models.Metadata{}
	if s == "" {
		return m
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return models.Metadata{}
	}
	return m
}

const conversationColumns = `id, user_id, created_at, updated_at, status, metadata, message_count`

func scanConversation(rows *sql.Rows) (*models.Conversation, error) {
	var (
		c    models.Conversation
		meta string
	)
	if err := rows.Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt, &c.Status, &meta, &c.MessageCount); err != nil {
		return nil, err
	}
	c.Metadata = decodeMetadata(meta)
	return &c, nil
}

// CreateConversation inserts a new active conversation with no messages. An
// empty userID is recorded as models.AnonymousUser.
func (m *Manager) CreateConversation(ctx context.Context, userID string, metadata models.Metadata) (*models.Conversation, error) {
	if userID == "" {
		userID = models.AnonymousUser
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	now := m.now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.StatusActive,
		Metadata:  decodeMetadata(meta),
	}

	_, err = m.store.ExecuteQuery(ctx, "create_conversation",
		`INSERT INTO conversations (id, user_id, created_at, updated_at, status, metadata, message_count)
		VALUES (@id, @user_id, @now, @now, @status, @metadata, 0)`,
		db.Params{
			"id":       conv.ID,
			"user_id":  conv.UserID,
			"now":      now,
			"status":   string(conv.Status),
			"metadata": meta,
		}, nil)
	if err != nil {
		return nil, err
	}

	m.logger.Info("conversation created", zap.String("conversation_id", conv.ID), zap.String("user_id", userID))
	return conv, nil
}

// GetConversation returns the conversation or nil when it does not exist or
// has been soft-deleted.
func (m *Manager) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv *models.Conversation
	_, err := m.store.ExecuteQuery(ctx, "get_conversation",
		`SELECT `+conversationColumns+` FROM conversations WHERE id = @id AND status != 'deleted'`,
		db.Params{"id": id},
		func(rows *sql.Rows) error {
			c, err := scanConversation(rows)
			conv = c
			return err
		})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// addMessage is registered as ProcAddMessage. The counter update and the
// insert commit together or not at all.
func addMessage(ctx context.Context, tx db.Executor, p db.Params) (db.Result, error) {
	res, err := tx.ExecuteQuery(ctx, "add_message.touch_conversation",
		`UPDATE conversations
		SET message_count = message_count + 1, updated_at = @created_at
		WHERE id = @conversation_id AND status != 'deleted'`, p, nil)
	if err != nil {
		return db.Result{}, err
	}
	if res.RowsAffected == 0 {
		id, _ := p["conversation_id"].(string)
		return db.Result{}, apperr.NotFound("conversation", id)
	}

	return tx.ExecuteQuery(ctx, "add_message.insert",
		`INSERT INTO messages (id, conversation_id, role, content, created_at, metadata, token_count)
		VALUES (@id, @conversation_id, @role, @content, @created_at, @metadata, @token_count)`, p, nil)
}

// AddMessage persists a message and increments the parent conversation's
// message count and update timestamp atomically.
func (m *Manager) AddMessage(ctx context.Context, conversationID string, role models.Role, content string, metadata models.Metadata) (*models.Message, error) {
	if !role.Valid() {
		return nil, apperr.Validation("invalid message role", fmt.Sprintf("role %q is not one of system, user, assistant", role))
	}
	if content == "" {
		return nil, apperr.Validation("message content is required")
	}
	if n := utf8.RuneCountInString(content); n > m.cfg.MaxMessageLength {
		return nil, apperr.Validation("message too long",
			fmt.Sprintf("content has %d characters, maximum is %d", n, m.cfg.MaxMessageLength))
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      m.now(),
		Metadata:       decodeMetadata(meta),
		TokenCount:     EstimateTokens(content),
	}

	_, err = m.store.ExecuteProcedure(ctx, ProcAddMessage, db.Params{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"role":            string(msg.Role),
		"content":         msg.Content,
		"created_at":      msg.CreatedAt,
		"metadata":        meta,
		"token_count":     msg.TokenCount,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("message added",
		zap.String("conversation_id", conversationID),
		zap.String("role", string(role)),
		zap.Int("tokens", msg.TokenCount))
	return msg, nil
}

// GetConversationHistory returns up to limit of the most recent messages after
// skipping offset from the newest end, ordered oldest first. A non-positive
// limit uses the configured memory limit.
func (m *Manager) GetConversationHistory(ctx context.Context, conversationID string, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = m.cfg.MemoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	var page []*models.Message
	_, err := m.store.ExecuteQuery(ctx, "get_conversation_history",
		`SELECT id, conversation_id, role, content, created_at, metadata, token_count
		FROM messages
		WHERE conversation_id = @conversation_id
		ORDER BY created_at DESC, seq DESC
		LIMIT @limit OFFSET @offset`,
		db.Params{"conversation_id": conversationID, "limit": limit, "offset": offset},
		func(rows *sql.Rows) error {
			var (
				msg  models.Message
				meta string
			)
			if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt, &meta, &msg.TokenCount); err != nil {
				return err
			}
			msg.Metadata = decodeMetadata(meta)
			page = append(page, &msg)
			return nil
		})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

// BuildConversationContext materializes the context window for the response
// generator: an optional leading system turn followed by at most
// MaxConversationLength prior messages in chronological order.
func (m *Manager) BuildConversationContext(ctx context.Context, conversationID string, includeSystemPrompt bool) ([]models.Turn, error) {
	history, err := m.GetConversationHistory(ctx, conversationID, m.cfg.MaxConversationLength, 0)
	if err != nil {
		return nil, err
	}

	turns := make([]models.Turn, 0, len(history)+1)
	if includeSystemPrompt {
		turns = append(turns, m.SystemTurn())
	}
	for _, msg := range history {
		turns = append(turns, models.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns, nil
}

// SystemTurn is the base system prompt as a context entry.
func (m *Manager) SystemTurn() models.Turn {
	return models.Turn{Role: models.RoleSystem, Content: m.cfg.SystemPrompt}
}

// UpdateConversationStatus sets the status and, when metadata is non-nil,
// merges it into the stored metadata.
func (m *Manager) UpdateConversationStatus(ctx context.Context, id string, status models.ConversationStatus, metadata models.Metadata) error {
	if !status.Valid() {
		return apperr.Validation("invalid conversation status", fmt.Sprintf("status %q is not recognised", status))
	}

	stmt := `UPDATE conversations SET status = @status, updated_at = @now
		WHERE id = @id AND status != 'deleted'`
	params := db.Params{"id": id, "status": string(status), "now": m.now()}
	if metadata != nil {
		meta, err := encodeMetadata(metadata)
		if err != nil {
			return err
		}
		stmt = `UPDATE conversations SET status = @status, updated_at = @now, metadata = json_patch(metadata, @metadata)
		WHERE id = @id AND status != 'deleted'`
		params["metadata"] = meta
	}

	res, err := m.store.ExecuteQuery(ctx, "update_conversation_status", stmt, params, nil)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("conversation", id)
	}

	m.logger.Info("conversation status updated", zap.String("conversation_id", id), zap.String("status", string(status)))
	return nil
}

// GetUserConversations lists a user's conversations, most recently updated
// first. Soft-deleted conversations are excluded.
func (m *Manager) GetUserConversations(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	convs := []*models.Conversation{}
	_, err := m.store.ExecuteQuery(ctx, "get_user_conversations",
		`SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = @user_id AND status != 'deleted'
		ORDER BY updated_at DESC, id
		LIMIT @limit OFFSET @offset`,
		db.Params{"user_id": userID, "limit": limit, "offset": offset},
		func(rows *sql.Rows) error {
			c, err := scanConversation(rows)
			if err != nil {
				return err
			}
			convs = append(convs, c)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// CleanupOldConversations soft-deletes every conversation created before the
// retention cutoff and returns how many were changed. It is meant to be run by
// an external scheduler.
func (m *Manager) CleanupOldConversations(ctx context.Context) (int64, error) {
	now := m.now()
	cutoff := now.AddDate(0, 0, -m.cfg.RetentionDays)

	res, err := m.store.ExecuteQuery(ctx, "cleanup_old_conversations",
		`UPDATE conversations SET status = 'deleted', updated_at = @now
		WHERE created_at < @cutoff AND status != 'deleted'`,
		db.Params{"now": now, "cutoff": cutoff}, nil)
	if err != nil {
		return 0, err
	}

	m.logger.Info("old conversations cleaned up",
		zap.Int64("count", res.RowsAffected),
		zap.Int("retention_days", m.cfg.RetentionDays),
		zap.Time("cutoff", cutoff))
	return res.RowsAffected, nil
}

// GetStats returns aggregate conversation counts, excluding soft-deleted rows.
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	_, err := m.store.ExecuteQuery(ctx, "conversation_stats",
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(message_count), 0)
		FROM conversations WHERE status != 'deleted'`,
		nil,
		func(rows *sql.Rows) error {
			return rows.Scan(&st.TotalConversations, &st.ActiveConversations, &st.TotalMessages)
		})
	if err != nil {
		return nil, err
	}
	if st.TotalConversations > 0 {
		st.AvgMessages = float64(st.TotalMessages) / float64(st.TotalConversations)
	}
	return &st, nil
}
