package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/matheus-sup/CRM-sub000/internal/ai"
	"github.com/matheus-sup/CRM-sub000/internal/database"
	"github.com/matheus-sup/CRM-sub000/internal/models"
	"github.com/matheus-sup/CRM-sub000/internal/store"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:bot_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type sentMessage struct {
	Phone     string
	Content   string
	MediaType string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(phone, content, mediaType, mediaURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{Phone: phone, Content: content, MediaType: mediaType})
	return fmt.Sprintf("wamid-test-%d", len(f.sent)), nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	calls int
}

func (p *fakeProvider) Complete(ctx context.Context, req ai.Request) (string, error) {
	p.mu.Lock()
	p.calls++
	reply, err, delay := p.reply, p.err, p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type testEnv struct {
	engine   *Engine
	store    *store.Store
	sender   *fakeSender
	provider *fakeProvider
	db       *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	st := store.NewStore(db)

	sender := &fakeSender{}
	provider := &fakeProvider{reply: "resposta da IA"}

	registry := ai.NewRegistry()
	registry.Register("gemini", func(apiKey, model string) ai.Provider { return provider })
	registry.Register("openai", func(apiKey, model string) ai.Provider { return provider })

	engine := NewEngine(st, sender, registry, nil, nil)
	return &testEnv{engine: engine, store: st, sender: sender, provider: provider, db: db}
}

// updateConfig loads, mutates and saves the singleton config.
func (env *testEnv) updateConfig(t *testing.T, mutate func(cfg *models.ChatConfig)) {
	t.Helper()
	cfg, err := env.store.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	mutate(cfg)
	if err := env.store.SaveConfig(context.Background(), cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
}

func (env *testEnv) createRule(t *testing.T, rule models.ChatRule) models.ChatRule {
	t.Helper()
	if err := env.store.CreateRule(context.Background(), &rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return rule
}

func (env *testEnv) conversation(t *testing.T, phone string) *models.Conversation {
	t.Helper()
	conv, err := env.store.GetConversation(context.Background(), phone)
	if err != nil {
		t.Fatalf("get conversation %s: %v", phone, err)
	}
	return conv
}

func (env *testEnv) messagesFor(t *testing.T, phone string) []models.Message {
	t.Helper()
	conv := env.conversation(t, phone)
	msgs, err := env.store.ListMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return msgs
}

func (env *testEnv) outboundFor(t *testing.T, phone string) []models.Message {
	t.Helper()
	var out []models.Message
	for _, m := range env.messagesFor(t, phone) {
		if m.Direction == models.DirectionOut {
			out = append(out, m)
		}
	}
	return out
}

func (env *testEnv) process(t *testing.T, in Inbound) {
	t.Helper()
	if err := env.engine.ProcessIncoming(context.Background(), in); err != nil {
		t.Fatalf("process incoming: %v", err)
	}
}

func strPtr(s string) *string {
	return &s
}

func triggersJSON(triggers ...string) string {
	out := `[`
	for i, tr := range triggers {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", tr)
	}
	return out + `]`
}
