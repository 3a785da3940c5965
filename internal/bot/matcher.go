package bot

import (
	"strings"

	"github.com/matheus-sup/CRM-sub000/internal/models"
)

// Match returns the first rule that matches the message text for the given
// stage, or nil. Stage-scoped rules always beat global rules; within each
// group rules are tried in ascending order (ties by creation order, which
// is how the snapshot sorts them).
func Match(text, stage string, rules []models.ChatRule) *models.ChatRule {
	normalized := strings.ToLower(strings.TrimSpace(text))

	// Stage-scoped first, then global.
	for _, rule := range rules {
		if !rule.IsActive || rule.Stage == nil || *rule.Stage != stage {
			continue
		}
		if ruleMatches(&rule, normalized) {
			r := rule
			return &r
		}
	}
	for _, rule := range rules {
		if !rule.IsActive || rule.Stage != nil {
			continue
		}
		if ruleMatches(&rule, normalized) {
			r := rule
			return &r
		}
	}
	return nil
}

func ruleMatches(rule *models.ChatRule, normalized string) bool {
	for _, trigger := range rule.TriggerList() {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger == "" {
			continue
		}
		if rule.MatchExact {
			if normalized == trigger {
				return true
			}
		} else if strings.Contains(normalized, trigger) {
			return true
		}
	}
	return false
}
