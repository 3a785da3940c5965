package bot

import (
	"context"
	"testing"
	"time"

	"github.com/matheus-sup/CRM-sub000/internal/models"
	"github.com/matheus-sup/CRM-sub000/internal/whatsapp"
)

type fakeFetcher struct {
	chats    []whatsapp.ExternalChat
	messages map[string][]whatsapp.ExternalMessage
}

func (f *fakeFetcher) FindChats() ([]whatsapp.ExternalChat, error) {
	return f.chats, nil
}

func (f *fakeFetcher) FindMessages(remoteJid string) ([]whatsapp.ExternalMessage, error) {
	return f.messages[remoteJid], nil
}

func externalMessage(id, text string, fromMe bool, ts time.Time) whatsapp.ExternalMessage {
	var em whatsapp.ExternalMessage
	em.Key.ID = id
	em.Key.FromMe = fromMe
	em.Message.Conversation = text
	em.MessageTimestamp = ts.Unix()
	return em
}

func newSyncEnv(t *testing.T) (*testEnv, *fakeFetcher) {
	env := newTestEnv(t)
	fetcher := &fakeFetcher{messages: make(map[string][]whatsapp.ExternalMessage)}
	env.engine.fetcher = fetcher
	return env, fetcher
}

func TestSyncImportsNewChat(t *testing.T) {
	env, fetcher := newSyncEnv(t)

	jid := "5511999990002@s.whatsapp.net"
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	fetcher.chats = []whatsapp.ExternalChat{{RemoteJid: jid, PushName: "Cliente"}}
	fetcher.messages[jid] = []whatsapp.ExternalMessage{
		externalMessage("EXT-1", "oi, vocês entregam?", false, base),
		externalMessage("EXT-2", "Entregamos sim!", true, base.Add(time.Minute)),
	}

	result, err := env.engine.SyncEvolutionChats(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.ImportedChats != 1 || result.ImportedMessages != 2 {
		t.Fatalf("unexpected counts: %+v", result)
	}

	conv := env.conversation(t, "5511999990002")
	if conv.Status != models.StatusActive || conv.Stage != "inicio" {
		t.Fatalf("imported conversation should get defaults: %+v", conv)
	}
	if conv.Name == nil || *conv.Name != "Cliente" {
		t.Fatalf("push name not imported: %v", conv.Name)
	}

	msgs := env.messagesFor(t, "5511999990002")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 imported messages, got %d", len(msgs))
	}
	if msgs[0].Direction != models.DirectionIn || msgs[1].Direction != models.DirectionOut {
		t.Fatalf("directions not preserved: %+v", msgs)
	}
	if !msgs[0].CreatedAt.Equal(base) {
		t.Fatalf("original timestamp not preserved: %v", msgs[0].CreatedAt)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	env, fetcher := newSyncEnv(t)

	jid := "5511999990003@s.whatsapp.net"
	fetcher.chats = []whatsapp.ExternalChat{{RemoteJid: jid}}
	fetcher.messages[jid] = []whatsapp.ExternalMessage{
		externalMessage("EXT-10", "primeira", false, time.Now().Add(-time.Hour)),
		externalMessage("EXT-11", "segunda", false, time.Now().Add(-30*time.Minute)),
	}

	if _, err := env.engine.SyncEvolutionChats(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	second, err := env.engine.SyncEvolutionChats(context.Background())
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if second.ImportedChats != 0 || second.ImportedMessages != 0 {
		t.Fatalf("second run imported again: %+v", second)
	}
	if msgs := env.messagesFor(t, "5511999990003"); len(msgs) != 2 {
		t.Fatalf("duplicate inserts after rerun: %d messages", len(msgs))
	}
}

func TestSyncNeverDowngradesStatus(t *testing.T) {
	env, fetcher := newSyncEnv(t)

	// A conversation already waiting on a human agent.
	env.createRule(t, models.ChatRule{
		Name: "transfer", Triggers: triggersJSON("atendente"),
		Action: models.ActionTransferToHuman, Response: "Transferindo", IsActive: true,
	})
	env.process(t, Inbound{PhoneNumber: "5511999990004", Text: "atendente"})

	jid := "5511999990004@s.whatsapp.net"
	fetcher.chats = []whatsapp.ExternalChat{{RemoteJid: jid}}
	fetcher.messages[jid] = []whatsapp.ExternalMessage{
		externalMessage("EXT-20", "histórico antigo", false, time.Now().Add(-24*time.Hour)),
	}

	result, err := env.engine.SyncEvolutionChats(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.ImportedChats != 0 {
		t.Fatalf("existing conversation counted as imported")
	}
	if result.ImportedMessages != 1 {
		t.Fatalf("history message not imported: %+v", result)
	}

	conv := env.conversation(t, "5511999990004")
	if conv.Status != models.StatusWaitingHuman {
		t.Fatalf("import downgraded status to %s", conv.Status)
	}
	if conv.Stage != "inicio" {
		t.Fatalf("import must not touch the stage, got %s", conv.Stage)
	}
}

func TestSyncSkipsGroupChats(t *testing.T) {
	env, fetcher := newSyncEnv(t)

	fetcher.chats = []whatsapp.ExternalChat{
		{RemoteJid: "123456789-987654@g.us", PushName: "Grupo de ofertas"},
	}

	result, err := env.engine.SyncEvolutionChats(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.ImportedChats != 0 || result.ImportedMessages != 0 {
		t.Fatalf("group chats must be skipped: %+v", result)
	}
}

func TestSyncAdvancesLastActivity(t *testing.T) {
	env, fetcher := newSyncEnv(t)

	jid := "5511999990005@s.whatsapp.net"
	latest := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	fetcher.chats = []whatsapp.ExternalChat{{RemoteJid: jid}}
	fetcher.messages[jid] = []whatsapp.ExternalMessage{
		externalMessage("EXT-30", "antiga", false, latest.Add(-time.Hour)),
		externalMessage("EXT-31", "recente", false, latest),
	}

	if _, err := env.engine.SyncEvolutionChats(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	conv := env.conversation(t, "5511999990005")
	if !conv.LastActivityAt.Equal(latest) {
		t.Fatalf("last activity not advanced to newest import: %v", conv.LastActivityAt)
	}
}
