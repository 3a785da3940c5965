package bot

import (
	"testing"
	"time"

	"github.com/matheus-sup/CRM-sub000/internal/models"
)

// 2026-03-02 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.Local)
}

func hoursConfig() *models.ChatConfig {
	return &models.ChatConfig{
		HoursEnabled: true,
		HoursStart:   "08:00",
		HoursEnd:     "18:00",
		WorkingDays:  "mon,tue,wed,thu,fri",
	}
}

func TestWithinBusinessHours(t *testing.T) {
	cfg := hoursConfig()

	if !withinBusinessHours(cfg, monday(9, 30)) {
		t.Fatalf("9:30 on a working day should be inside hours")
	}
	if withinBusinessHours(cfg, monday(7, 59)) {
		t.Fatalf("before opening should be outside hours")
	}
	if !withinBusinessHours(cfg, monday(8, 0)) {
		t.Fatalf("window start is inclusive")
	}
	if withinBusinessHours(cfg, monday(18, 0)) {
		t.Fatalf("window end is exclusive")
	}

	saturday := monday(10, 0).AddDate(0, 0, 5)
	if withinBusinessHours(cfg, saturday) {
		t.Fatalf("saturday is not a working day")
	}
}

func TestWithinBusinessHoursDisabled(t *testing.T) {
	cfg := hoursConfig()
	cfg.HoursEnabled = false

	if !withinBusinessHours(cfg, monday(3, 0)) {
		t.Fatalf("gate must stay open when hours are disabled")
	}
}

func TestWithinBusinessHoursMalformed(t *testing.T) {
	cfg := hoursConfig()
	cfg.HoursStart = "8h00"

	// Malformed hours are rejected at the admin path; at runtime they must
	// not mute the bot.
	if !withinBusinessHours(cfg, monday(3, 0)) {
		t.Fatalf("malformed hours should leave the gate open")
	}
}

func TestIdleExpired(t *testing.T) {
	cfg := &models.ChatConfig{ConversationTimeout: 30}
	now := monday(12, 0)

	if idleExpired(cfg, now.Add(-10*time.Minute), now) {
		t.Fatalf("10 minutes is within a 30 minute timeout")
	}
	if !idleExpired(cfg, now.Add(-31*time.Minute), now) {
		t.Fatalf("31 minutes should be expired")
	}
	if idleExpired(cfg, time.Time{}, now) {
		t.Fatalf("zero last activity must not count as expired")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *models.ChatConfig {
		return &models.ChatConfig{
			Temperature:         0.7,
			MaxTokens:           500,
			MessagesPerMinute:   10,
			ConversationTimeout: 30,
			MaxAIMessages:       10,
			HoursEnabled:        true,
			HoursStart:          "08:00",
			HoursEnd:            "18:00",
			WorkingDays:         "mon,tue",
			InitialStage:        "inicio",
			AIProvider:          "gemini",
		}
	}

	if err := ValidateConfig(valid()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(cfg *models.ChatConfig)
	}{
		{"temperature above 1", func(c *models.ChatConfig) { c.Temperature = 1.5 }},
		{"negative temperature", func(c *models.ChatConfig) { c.Temperature = -0.1 }},
		{"zero max tokens", func(c *models.ChatConfig) { c.MaxTokens = 0 }},
		{"zero rate limit", func(c *models.ChatConfig) { c.MessagesPerMinute = 0 }},
		{"zero timeout", func(c *models.ChatConfig) { c.ConversationTimeout = 0 }},
		{"zero ai cap", func(c *models.ChatConfig) { c.MaxAIMessages = 0 }},
		{"unknown provider", func(c *models.ChatConfig) { c.AIProvider = "llama" }},
		{"bad hours start", func(c *models.ChatConfig) { c.HoursStart = "25:00" }},
		{"start after end", func(c *models.ChatConfig) { c.HoursStart = "19:00" }},
		{"unknown day", func(c *models.ChatConfig) { c.WorkingDays = "mon,funday" }},
		{"empty initial stage", func(c *models.ChatConfig) { c.InitialStage = "" }},
	}

	for _, tc := range cases {
		cfg := valid()
		tc.mutate(cfg)
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
