package bot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/matheus-sup/CRM-sub000/internal/models"
	"github.com/matheus-sup/CRM-sub000/internal/store"
	"github.com/matheus-sup/CRM-sub000/internal/whatsapp"
)

// ChatFetcher is the slice of the Evolution client the reconciler needs.
type ChatFetcher interface {
	FindChats() ([]whatsapp.ExternalChat, error)
	FindMessages(remoteJid string) ([]whatsapp.ExternalMessage, error)
}

// SyncResult reports what a reconciliation run imported.
type SyncResult struct {
	ImportedChats    int `json:"imported_chats"`
	ImportedMessages int `json:"imported_messages"`
}

// SyncEvolutionChats imports externally-sourced chats and messages. The run
// is idempotent: messages dedup on their external id, and existing
// conversations keep their stage and status (an import must never pull a
// waiting_human or closed conversation back to active). Each chat is
// processed under the same per-phone lock as live message processing.
func (e *Engine) SyncEvolutionChats(ctx context.Context) (*SyncResult, error) {
	if e.fetcher == nil {
		return nil, fmt.Errorf("no chat fetcher configured")
	}

	chats, err := e.fetcher.FindChats()
	if err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for _, chat := range chats {
		// Group chats are out of scope for the storefront bot.
		if strings.Contains(chat.RemoteJid, "@g.us") {
			continue
		}
		phone := whatsapp.PhoneFromJid(chat.RemoteJid)
		if phone == "" {
			continue
		}

		err := e.locks.WithLock(phone, func() error {
			return e.reconcileChat(ctx, &snap.Config, chat, phone, result)
		})
		if err != nil {
			log.Printf("Error reconciling chat %s: %v", phone, err)
		}
	}

	return result, nil
}

func (e *Engine) reconcileChat(ctx context.Context, cfg *models.ChatConfig, chat whatsapp.ExternalChat, phone string, result *SyncResult) error {
	conv, err := e.store.GetConversation(ctx, phone)
	if err != nil {
		if !store.IsNotFound(err) {
			return err
		}
		conv = &models.Conversation{
			PhoneNumber: phone,
			Status:      models.StatusActive,
			Stage:       cfg.InitialStage,
		}
		if chat.PushName != "" {
			name := chat.PushName
			conv.Name = &name
		}
		if err := e.store.CreateConversation(ctx, conv); err != nil {
			return err
		}
		result.ImportedChats++
	}

	external, err := e.fetcher.FindMessages(chat.RemoteJid)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	var latest = conv.LastActivityAt
	for _, em := range external {
		if em.Key.ID == "" {
			continue
		}
		exists, err := e.store.HasExternalMessage(ctx, em.Key.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		direction := models.DirectionIn
		if em.Key.FromMe {
			direction = models.DirectionOut
		}

		id := em.Key.ID
		msg := models.Message{
			ConversationID: conv.ID,
			MessageID:      &id,
			Content:        em.Text(),
			Direction:      direction,
			CreatedAt:      em.Timestamp(),
		}
		if mediaType, mediaURL := em.Media(); mediaType != "" {
			msg.MediaType = &mediaType
			if mediaURL != "" {
				msg.MediaURL = &mediaURL
			}
		}

		if err := e.store.AppendMessage(ctx, &msg); err != nil {
			return err
		}
		result.ImportedMessages++

		if msg.CreatedAt.After(latest) {
			latest = msg.CreatedAt
		}
	}

	if latest.After(conv.LastActivityAt) {
		conv.LastActivityAt = latest
		return e.store.SaveConversation(ctx, conv)
	}
	return nil
}
