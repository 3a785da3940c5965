package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Conversation statuses
const (
	StatusActive       = "active"
	StatusWaitingHuman = "waiting_human"
	StatusClosed       = "closed"
)

// Rule actions
const (
	ActionRespond         = "respond"
	ActionTransferToHuman = "transfer_to_human"
	ActionClose           = "close"
	ActionSaveName        = "save_name"
)

// Message directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// ChatConfig is the singleton bot configuration edited by admins.
// The engine never reads it directly from the table mid-flight; it works
// off a snapshot taken at the start of each inbound message (see store).
type ChatConfig struct {
	ID uint `gorm:"primaryKey" json:"id"`

	AIProvider   string  `gorm:"type:varchar(20)" json:"ai_provider"` // gemini, openai or empty
	GeminiAPIKey string  `gorm:"type:text" json:"gemini_api_key"`
	OpenAIAPIKey string  `gorm:"type:text" json:"openai_api_key"`
	AIModel      string  `gorm:"type:varchar(100)" json:"ai_model"`
	Temperature  float64 `gorm:"default:0.7" json:"temperature"`
	MaxTokens    int     `gorm:"default:500" json:"max_tokens"`

	CompanyName        string `gorm:"type:varchar(255)" json:"company_name"`
	CompanyDescription string `gorm:"type:text" json:"company_description"`
	SystemPrompt       string `gorm:"type:text" json:"system_prompt"`
	Instructions       string `gorm:"type:text" json:"instructions"`
	KnowledgeBase      string `gorm:"type:text" json:"knowledge_base"`

	WelcomeMessage  string `gorm:"type:text" json:"welcome_message"`
	OffHoursMessage string `gorm:"type:text" json:"off_hours_message"`
	TransferMessage string `gorm:"type:text" json:"transfer_message"`
	FallbackMessage string `gorm:"type:text" json:"fallback_message"`
	ErrorMessage    string `gorm:"type:text" json:"error_message"`
	GoodbyeMessage  string `gorm:"type:text" json:"goodbye_message"`

	HoursEnabled bool   `gorm:"default:false" json:"hours_enabled"`
	HoursStart   string `gorm:"type:varchar(5);default:'08:00'" json:"hours_start"`
	HoursEnd     string `gorm:"type:varchar(5);default:'18:00'" json:"hours_end"`
	WorkingDays  string `gorm:"type:varchar(50);default:'mon,tue,wed,thu,fri'" json:"working_days"` // csv of mon..sun

	MessagesPerMinute   int `gorm:"default:10" json:"messages_per_minute"`
	ConversationTimeout int `gorm:"default:30" json:"conversation_timeout"` // minutes
	MaxAIMessages       int `gorm:"default:10" json:"max_ai_messages"`

	BotEnabled   bool   `gorm:"default:true" json:"bot_enabled"`
	InitialStage string `gorm:"type:varchar(50);default:'inicio'" json:"initial_stage"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ChatConfig) TableName() string {
	return "chat_configs"
}

// WorkingDaySet expands the csv column into a lookup set.
func (c *ChatConfig) WorkingDaySet() map[string]bool {
	set := make(map[string]bool)
	for _, d := range strings.Split(c.WorkingDays, ",") {
		if d = strings.TrimSpace(d); d != "" {
			set[strings.ToLower(d)] = true
		}
	}
	return set
}

// ChatRule is an admin-authored automation rule. Triggers are stored as a
// JSON array in a text column. Stage == nil means the rule is global.
type ChatRule struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	Name       string  `gorm:"type:varchar(255);not null" json:"name"`
	Triggers   string  `gorm:"type:text;not null" json:"triggers"` // JSON array of lowercase strings
	MatchExact bool    `gorm:"default:false" json:"match_exact"`
	Stage      *string `gorm:"type:varchar(50)" json:"stage"`
	Action     string  `gorm:"type:varchar(30);not null" json:"action"`
	Response   string  `gorm:"type:text" json:"response"`
	FollowUp   string  `gorm:"type:text" json:"follow_up"`
	NextStage  *string `gorm:"type:varchar(50)" json:"next_stage"`
	IsActive   bool    `gorm:"default:true" json:"is_active"`
	Order      int     `gorm:"column:rule_order;default:0" json:"order"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ChatRule) TableName() string {
	return "chat_rules"
}

// TriggerList decodes the stored JSON trigger array.
func (r *ChatRule) TriggerList() []string {
	var triggers []string
	if err := json.Unmarshal([]byte(r.Triggers), &triggers); err != nil {
		return nil
	}
	return triggers
}

// Conversation is the durable per-phone-number state. Mutated only by the
// engine under the per-phone lock; never deleted.
type Conversation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PhoneNumber    string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"phone_number"`
	Name           *string   `gorm:"type:varchar(255)" json:"name"`
	Status         string    `gorm:"type:varchar(20);default:'active';index" json:"status"`
	Stage          string    `gorm:"type:varchar(50);default:'inicio'" json:"stage"`
	AIMessageCount int       `gorm:"default:0" json:"ai_message_count"`
	LastActivityAt time.Time `json:"last_activity_at"`

	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is an append-only log entry. MessageID carries the external
// provider id and is the dedup key for reconciliation; outbound messages
// the gateway never acknowledged get a locally stamped id instead.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversation_id"`
	MessageID      *string   `gorm:"type:varchar(255);uniqueIndex" json:"message_id"`
	Content        string    `gorm:"type:text" json:"content"`
	Direction      string    `gorm:"type:varchar(3);not null" json:"direction"`
	IsAIGenerated  bool      `gorm:"default:false" json:"is_ai_generated"`
	RuleName       *string   `gorm:"type:varchar(255)" json:"rule_name"`
	MediaType      *string   `gorm:"type:varchar(30)" json:"media_type"`
	MediaURL       *string   `gorm:"type:text" json:"media_url"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Message) TableName() string {
	return "chat_messages"
}
