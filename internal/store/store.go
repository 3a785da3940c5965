package store

import (
	"context"
	"errors"
	"time"

	"github.com/matheus-sup/CRM-sub000/internal/models"

	"gorm.io/gorm"
)

// Store wraps all persistence for the chat engine. It receives the gorm
// handle instead of reading a package global so the engine can run against
// an in-memory database in tests.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Snapshot is the immutable view of the bot configuration the engine works
// off while processing one inbound message. Rules come pre-ordered so the
// matcher only has to walk them.
type Snapshot struct {
	Config models.ChatConfig
	Rules  []models.ChatRule
}

// Snapshot reads the committed config plus the active rule set in one go.
// Admin edits only affect messages that snapshot after the save.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&snap.Config).Error; err != nil {
			return err
		}
		return tx.Where("is_active = ?", true).
			Order("rule_order ASC, id ASC").
			Find(&snap.Rules).Error
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// --- Config ---

func (s *Store) GetConfig(ctx context.Context) (*models.ChatConfig, error) {
	var cfg models.ChatConfig
	if err := s.db.WithContext(ctx).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) SaveConfig(ctx context.Context, cfg *models.ChatConfig) error {
	cfg.ID = 1
	return s.db.WithContext(ctx).Save(cfg).Error
}

// --- Rules ---

func (s *Store) ListRules(ctx context.Context) ([]models.ChatRule, error) {
	var rules []models.ChatRule
	err := s.db.WithContext(ctx).
		Order("stage ASC, rule_order ASC, id ASC").
		Find(&rules).Error
	if rules == nil {
		rules = []models.ChatRule{}
	}
	return rules, err
}

func (s *Store) GetRule(ctx context.Context, id uint) (*models.ChatRule, error) {
	var rule models.ChatRule
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *Store) CreateRule(ctx context.Context, rule *models.ChatRule) error {
	return s.db.WithContext(ctx).Create(rule).Error
}

func (s *Store) UpdateRule(ctx context.Context, rule *models.ChatRule) error {
	return s.db.WithContext(ctx).Save(rule).Error
}

func (s *Store) DeleteRule(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.ChatRule{}, id).Error
}

// --- Conversations ---

var ErrNotFound = gorm.ErrRecordNotFound

func (s *Store) GetConversation(ctx context.Context, phone string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("phone_number = ?", phone).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return s.db.WithContext(ctx).Create(conv).Error
}

func (s *Store) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	return s.db.WithContext(ctx).Save(conv).Error
}

func (s *Store) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Order("last_activity_at DESC").
		Find(&convs).Error
	if convs == nil {
		convs = []models.Conversation{}
	}
	return convs, err
}

// --- Messages ---

func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// HasExternalMessage reports whether a message with this external id was
// already stored. Used both for duplicate webhook deliveries and by the
// sync reconciler.
func (s *Store) HasExternalMessage(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) ListMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, err
}

// LastMessage returns the newest message of a conversation, or nil when the
// log is empty. Used for list previews in the admin surface.
func (s *Store) LastMessage(ctx context.Context, conversationID uint) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// RecentMessages returns the last limit messages in ascending order, the
// bounded context window handed to the AI provider.
func (s *Store) RecentMessages(ctx context.Context, conversationID uint, limit int) ([]models.Message, error) {
	var desc []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&desc).Error
	if err != nil {
		return nil, err
	}
	asc := make([]models.Message, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		asc = append(asc, desc[i])
	}
	return asc, nil
}

// CountInboundSince counts inbound messages for the rolling rate-limit
// window. Callers hold the per-phone lock.
func (s *Store) CountInboundSince(ctx context.Context, conversationID uint, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND direction = ? AND created_at > ?",
			conversationID, models.DirectionIn, since).
		Count(&count).Error
	return count, err
}

// IsNotFound reports whether err is the record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
