package bot

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus-sup/CRM-sub000/internal/ai"
	"github.com/matheus-sup/CRM-sub000/internal/models"
	"github.com/matheus-sup/CRM-sub000/internal/store"
)

const (
	aiContextWindow  = 10
	defaultAITimeout = 8 * time.Second
	rateLimitWindow  = 60 * time.Second
)

// Sender pushes an outbound message through the gateway and returns its
// external message id.
type Sender interface {
	Send(phone, content, mediaType, mediaURL string) (string, error)
}

// Notifier receives conversation events for the admin dashboard. May be nil.
type Notifier interface {
	NotifyMessage(msg models.Message)
	NotifyConversation(conv models.Conversation)
}

// Inbound is one delivery event from the transport layer.
type Inbound struct {
	PhoneNumber string
	Text        string
	MediaType   string
	MediaURL    string
	ExternalID  string
	PushName    string
	Timestamp   time.Time
}

// Engine is the decision engine: per-phone lock, gate chain, matcher, AI
// fallback and action execution.
type Engine struct {
	store    *store.Store
	sender   Sender
	registry *ai.Registry
	fetcher  ChatFetcher
	notifier Notifier
	locks    *LockManager

	aiTimeout time.Duration
	now       func() time.Time
}

func NewEngine(st *store.Store, sender Sender, registry *ai.Registry, fetcher ChatFetcher, notifier Notifier) *Engine {
	return &Engine{
		store:     st,
		sender:    sender,
		registry:  registry,
		fetcher:   fetcher,
		notifier:  notifier,
		locks:     NewLockManager(),
		aiTimeout: defaultAITimeout,
		now:       time.Now,
	}
}

// ProcessIncoming runs one inbound message through the full pipeline. The
// config and rule set are snapshotted before the lock is taken, so admin
// edits only affect messages that arrive after the save.
func (e *Engine) ProcessIncoming(ctx context.Context, in Inbound) error {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		log.Printf("Error reading config snapshot: %v", err)
		return err
	}

	return e.locks.WithLock(in.PhoneNumber, func() error {
		return e.process(ctx, snap, in)
	})
}

func (e *Engine) process(ctx context.Context, snap *store.Snapshot, in Inbound) error {
	cfg := &snap.Config
	now := e.now()

	// Duplicate webhook delivery: the external id is the dedup key.
	if in.ExternalID != "" {
		exists, err := e.store.HasExternalMessage(ctx, in.ExternalID)
		if err != nil {
			return err
		}
		if exists {
			log.Printf("Skipping duplicate message %s from %s", in.ExternalID, in.PhoneNumber)
			return nil
		}
	}

	if in.Timestamp.IsZero() {
		in.Timestamp = now
	}

	conv, created, err := e.loadOrCreateConversation(ctx, cfg, in, now)
	if err != nil {
		return err
	}
	prevActivity := conv.LastActivityAt
	conv.LastActivityAt = now

	// Closed conversations reopen on any new inbound message.
	if conv.Status == models.StatusClosed {
		conv.Status = models.StatusActive
		conv.Stage = cfg.InitialStage
		conv.AIMessageCount = 0
	}

	// The inbound message is recorded no matter which gate fires.
	if err := e.recordInbound(ctx, conv, in); err != nil {
		return err
	}

	if !cfg.BotEnabled {
		return e.saveConversation(ctx, conv)
	}

	if conv.Status == models.StatusWaitingHuman {
		return e.saveConversation(ctx, conv)
	}

	if !withinBusinessHours(cfg, now) {
		if cfg.OffHoursMessage != "" {
			e.emitOutbound(ctx, conv, cfg.OffHoursMessage, outboundMeta{})
		}
		return e.saveConversation(ctx, conv)
	}

	// Idle timeout: the prior session is considered over; the current
	// message opens a fresh one.
	if !created && idleExpired(cfg, prevActivity, now) {
		conv.Status = models.StatusActive
		conv.Stage = cfg.InitialStage
		conv.AIMessageCount = 0
	}

	exceeded, err := e.rateLimitExceeded(ctx, cfg, conv, now)
	if err != nil {
		return err
	}
	if exceeded {
		log.Printf("Rate limit hit for %s, recording without reply", conv.PhoneNumber)
		return e.saveConversation(ctx, conv)
	}

	if created && cfg.WelcomeMessage != "" {
		e.emitOutbound(ctx, conv, cfg.WelcomeMessage, outboundMeta{})
	}

	if rule := Match(in.Text, conv.Stage, snap.Rules); rule != nil {
		e.applyRule(ctx, cfg, conv, rule, in.Text)
		return e.saveConversation(ctx, conv)
	}

	e.aiFallback(ctx, cfg, conv)
	return e.saveConversation(ctx, conv)
}

func (e *Engine) loadOrCreateConversation(ctx context.Context, cfg *models.ChatConfig, in Inbound, now time.Time) (*models.Conversation, bool, error) {
	conv, err := e.store.GetConversation(ctx, in.PhoneNumber)
	if err == nil {
		return conv, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, err
	}

	conv = &models.Conversation{
		PhoneNumber:    in.PhoneNumber,
		Status:         models.StatusActive,
		Stage:          cfg.InitialStage,
		LastActivityAt: now,
	}
	if in.PushName != "" {
		name := in.PushName
		conv.Name = &name
	}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (e *Engine) recordInbound(ctx context.Context, conv *models.Conversation, in Inbound) error {
	msg := models.Message{
		ConversationID: conv.ID,
		Content:        in.Text,
		Direction:      models.DirectionIn,
	}
	if in.ExternalID != "" {
		id := in.ExternalID
		msg.MessageID = &id
	}
	if in.MediaType != "" {
		mt := in.MediaType
		msg.MediaType = &mt
	}
	if in.MediaURL != "" {
		mu := in.MediaURL
		msg.MediaURL = &mu
	}
	if !in.Timestamp.IsZero() {
		msg.CreatedAt = in.Timestamp
	}
	if err := e.store.AppendMessage(ctx, &msg); err != nil {
		return err
	}
	if e.notifier != nil {
		e.notifier.NotifyMessage(msg)
	}
	return nil
}

// rateLimitExceeded counts inbound messages in the trailing window. The
// current message is already recorded, so a count above the limit means
// this one pushed past it.
func (e *Engine) rateLimitExceeded(ctx context.Context, cfg *models.ChatConfig, conv *models.Conversation, now time.Time) (bool, error) {
	if cfg.MessagesPerMinute <= 0 {
		return false, nil
	}
	count, err := e.store.CountInboundSince(ctx, conv.ID, now.Add(-rateLimitWindow))
	if err != nil {
		return false, err
	}
	return count > int64(cfg.MessagesPerMinute), nil
}

func (e *Engine) saveConversation(ctx context.Context, conv *models.Conversation) error {
	if err := e.store.SaveConversation(ctx, conv); err != nil {
		return err
	}
	if e.notifier != nil {
		e.notifier.NotifyConversation(*conv)
	}
	return nil
}

type outboundMeta struct {
	ruleName    string
	aiGenerated bool
	mediaType   string
	mediaURL    string
}

// emitOutbound persists and sends one outbound message. A gateway send
// failure is a delivery concern: it is logged, and the message row plus any
// state transition already decided still stand.
func (e *Engine) emitOutbound(ctx context.Context, conv *models.Conversation, content string, meta outboundMeta) {
	externalID, err := e.sender.Send(conv.PhoneNumber, content, meta.mediaType, meta.mediaURL)
	if err != nil {
		log.Printf("Error sending message to %s: %v", conv.PhoneNumber, err)
	}
	if externalID == "" {
		// No id came back from the gateway; stamp a local one so the
		// row still carries a unique message id.
		externalID = "local-" + uuid.NewString()
	}

	msg := models.Message{
		ConversationID: conv.ID,
		Content:        content,
		Direction:      models.DirectionOut,
		IsAIGenerated:  meta.aiGenerated,
		MessageID:      &externalID,
	}
	if meta.ruleName != "" {
		rn := meta.ruleName
		msg.RuleName = &rn
	}
	if meta.mediaType != "" {
		mt := meta.mediaType
		msg.MediaType = &mt
	}
	if meta.mediaURL != "" {
		mu := meta.mediaURL
		msg.MediaURL = &mu
	}

	if err := e.store.AppendMessage(ctx, &msg); err != nil {
		log.Printf("Error storing outbound message for %s: %v", conv.PhoneNumber, err)
		return
	}
	if e.notifier != nil {
		e.notifier.NotifyMessage(msg)
	}
}

// aiFallback runs when no rule matched and the conversation is active.
func (e *Engine) aiFallback(ctx context.Context, cfg *models.ChatConfig, conv *models.Conversation) {
	provider, ok := e.providerFor(cfg)
	if !ok {
		// AI not configured: this is the fallback template's home.
		if cfg.FallbackMessage != "" {
			e.emitOutbound(ctx, conv, cfg.FallbackMessage, outboundMeta{})
		}
		return
	}

	req, err := e.buildAIRequest(ctx, cfg, conv)
	if err != nil {
		log.Printf("Error building AI context for %s: %v", conv.PhoneNumber, err)
		e.emitError(ctx, cfg, conv)
		return
	}

	aiCtx, cancel := context.WithTimeout(ctx, e.aiTimeout)
	defer cancel()

	reply, err := provider.Complete(aiCtx, req)
	if err != nil {
		log.Printf("AI provider error for %s: %v", conv.PhoneNumber, err)
		e.emitError(ctx, cfg, conv)
		return
	}

	e.emitOutbound(ctx, conv, reply, outboundMeta{aiGenerated: true})
	conv.AIMessageCount++

	if cfg.MaxAIMessages > 0 && conv.AIMessageCount >= cfg.MaxAIMessages {
		e.transferToHuman(ctx, cfg, conv, "", nil)
	}
}

func (e *Engine) emitError(ctx context.Context, cfg *models.ChatConfig, conv *models.Conversation) {
	if cfg.ErrorMessage != "" {
		e.emitOutbound(ctx, conv, cfg.ErrorMessage, outboundMeta{})
	}
}

func (e *Engine) providerFor(cfg *models.ChatConfig) (ai.Provider, bool) {
	var key string
	switch cfg.AIProvider {
	case "gemini":
		key = cfg.GeminiAPIKey
	case "openai":
		key = cfg.OpenAIAPIKey
	default:
		return nil, false
	}
	if strings.TrimSpace(key) == "" {
		return nil, false
	}
	p, err := e.registry.Get(cfg.AIProvider, key, cfg.AIModel)
	if err != nil {
		log.Printf("Error resolving AI provider: %v", err)
		return nil, false
	}
	return p, true
}

func (e *Engine) buildAIRequest(ctx context.Context, cfg *models.ChatConfig, conv *models.Conversation) (ai.Request, error) {
	recent, err := e.store.RecentMessages(ctx, conv.ID, aiContextWindow)
	if err != nil {
		return ai.Request{}, err
	}

	messages := make([]ai.Message, 0, len(recent))
	for _, m := range recent {
		role := "user"
		if m.Direction == models.DirectionOut {
			role = "assistant"
		}
		messages = append(messages, ai.Message{Role: role, Content: m.Content})
	}

	return ai.Request{
		System:      buildSystemPrompt(cfg),
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, nil
}

func buildSystemPrompt(cfg *models.ChatConfig) string {
	var b strings.Builder
	if cfg.SystemPrompt != "" {
		b.WriteString(cfg.SystemPrompt)
	}
	if cfg.CompanyName != "" {
		b.WriteString("\n\nEmpresa: " + cfg.CompanyName)
	}
	if cfg.CompanyDescription != "" {
		b.WriteString("\n" + cfg.CompanyDescription)
	}
	if cfg.Instructions != "" {
		b.WriteString("\n\nInstruções:\n" + cfg.Instructions)
	}
	if cfg.KnowledgeBase != "" {
		b.WriteString("\n\nBase de conhecimento:\n" + cfg.KnowledgeBase)
	}
	return strings.TrimSpace(b.String())
}

// RecordOutboundEcho stores a message the gateway reports as sent by us,
// typically an agent replying straight from the WhatsApp app. Messages the
// engine sent itself carry an external id we already stored, so the dedup
// check drops those echoes. No automation runs.
func (e *Engine) RecordOutboundEcho(ctx context.Context, in Inbound) error {
	return e.locks.WithLock(in.PhoneNumber, func() error {
		if in.ExternalID != "" {
			exists, err := e.store.HasExternalMessage(ctx, in.ExternalID)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
		}

		conv, err := e.store.GetConversation(ctx, in.PhoneNumber)
		if err != nil {
			if !store.IsNotFound(err) {
				return err
			}
			// Agent opened the chat from the phone; nothing to attach the
			// message to yet.
			snap, err := e.store.Snapshot(ctx)
			if err != nil {
				return err
			}
			conv = &models.Conversation{
				PhoneNumber:    in.PhoneNumber,
				Status:         models.StatusActive,
				Stage:          snap.Config.InitialStage,
				LastActivityAt: e.now(),
			}
			if err := e.store.CreateConversation(ctx, conv); err != nil {
				return err
			}
		}

		msg := models.Message{
			ConversationID: conv.ID,
			Content:        in.Text,
			Direction:      models.DirectionOut,
		}
		if in.ExternalID != "" {
			id := in.ExternalID
			msg.MessageID = &id
		}
		if in.MediaType != "" {
			mt := in.MediaType
			msg.MediaType = &mt
		}
		if in.MediaURL != "" {
			mu := in.MediaURL
			msg.MediaURL = &mu
		}
		if !in.Timestamp.IsZero() {
			msg.CreatedAt = in.Timestamp
		}
		if err := e.store.AppendMessage(ctx, &msg); err != nil {
			return err
		}
		if e.notifier != nil {
			e.notifier.NotifyMessage(msg)
		}

		conv.LastActivityAt = e.now()
		return e.saveConversation(ctx, conv)
	})
}

// ResumeBot reactivates automation after a human handoff. The stage is kept
// so stage-scoped rules pick up where the conversation left off.
func (e *Engine) ResumeBot(ctx context.Context, phone string) error {
	return e.locks.WithLock(phone, func() error {
		conv, err := e.store.GetConversation(ctx, phone)
		if err != nil {
			return err
		}
		conv.Status = models.StatusActive
		conv.AIMessageCount = 0
		return e.saveConversation(ctx, conv)
	})
}

// SendManual records and sends a message typed by a human agent.
func (e *Engine) SendManual(ctx context.Context, phone, content string) error {
	return e.locks.WithLock(phone, func() error {
		conv, err := e.store.GetConversation(ctx, phone)
		if err != nil {
			return err
		}
		e.emitOutbound(ctx, conv, content, outboundMeta{})
		conv.LastActivityAt = e.now()
		return e.saveConversation(ctx, conv)
	})
}
