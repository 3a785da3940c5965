package bot

import (
	"fmt"
	"log"
	"time"

	"github.com/matheus-sup/CRM-sub000/internal/models"
)

var dayCodes = map[time.Weekday]string{
	time.Sunday:    "sun",
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
}

// withinBusinessHours reports whether now falls inside the configured
// working window. Malformed hour strings are an admin-side validation
// problem; at runtime they log and leave the gate open rather than muting
// the bot.
func withinBusinessHours(cfg *models.ChatConfig, now time.Time) bool {
	if !cfg.HoursEnabled {
		return true
	}

	if days := cfg.WorkingDaySet(); len(days) > 0 && !days[dayCodes[now.Weekday()]] {
		return false
	}

	start, err := parseClock(cfg.HoursStart)
	if err != nil {
		log.Printf("Invalid business hours start %q: %v", cfg.HoursStart, err)
		return true
	}
	end, err := parseClock(cfg.HoursEnd)
	if err != nil {
		log.Printf("Invalid business hours end %q: %v", cfg.HoursEnd, err)
		return true
	}

	minutes := now.Hour()*60 + now.Minute()
	return minutes >= start && minutes < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// idleExpired reports whether the gap since the previous activity exceeds
// the configured conversation timeout.
func idleExpired(cfg *models.ChatConfig, lastActivity, now time.Time) bool {
	if cfg.ConversationTimeout <= 0 || lastActivity.IsZero() {
		return false
	}
	return now.Sub(lastActivity) > time.Duration(cfg.ConversationTimeout)*time.Minute
}

// ValidateConfig is the admin-side guard: it rejects configs the engine
// would otherwise have to degrade around at runtime.
func ValidateConfig(cfg *models.ChatConfig) error {
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if cfg.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if cfg.MessagesPerMinute <= 0 {
		return fmt.Errorf("messages per minute must be positive")
	}
	if cfg.ConversationTimeout <= 0 {
		return fmt.Errorf("conversation timeout must be positive")
	}
	if cfg.MaxAIMessages <= 0 {
		return fmt.Errorf("max AI messages must be positive")
	}
	switch cfg.AIProvider {
	case "", "gemini", "openai":
	default:
		return fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
	if cfg.HoursEnabled {
		start, err := parseClock(cfg.HoursStart)
		if err != nil {
			return fmt.Errorf("invalid hours start %q", cfg.HoursStart)
		}
		end, err := parseClock(cfg.HoursEnd)
		if err != nil {
			return fmt.Errorf("invalid hours end %q", cfg.HoursEnd)
		}
		if start >= end {
			return fmt.Errorf("hours start must be before hours end")
		}
		for day := range cfg.WorkingDaySet() {
			valid := false
			for _, code := range dayCodes {
				if day == code {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("unknown working day %q", day)
			}
		}
	}
	if cfg.InitialStage == "" {
		return fmt.Errorf("initial stage is required")
	}
	return nil
}
