package bot

import (
	"context"
	"log"
	"strings"
	"unicode"

	"github.com/matheus-sup/CRM-sub000/internal/models"
)

const maxSavedNameLen = 80

// applyRule executes the matched rule's action against the conversation.
// All mutations happen on the in-memory conversation; the caller persists
// it once after the action completes.
func (e *Engine) applyRule(ctx context.Context, cfg *models.ChatConfig, conv *models.Conversation, rule *models.ChatRule, text string) {
	switch rule.Action {
	case models.ActionRespond:
		e.respond(ctx, conv, rule)
		advanceStage(conv, rule)

	case models.ActionTransferToHuman:
		e.transferToHuman(ctx, cfg, conv, rule.Response, rule)
		advanceStage(conv, rule)

	case models.ActionClose:
		response := rule.Response
		if response == "" {
			response = cfg.GoodbyeMessage
		}
		if response != "" {
			e.emitOutbound(ctx, conv, response, outboundMeta{ruleName: rule.Name})
		}
		conv.Status = models.StatusClosed

	case models.ActionSaveName:
		name := extractName(text)
		if name != "" {
			conv.Name = &name
		}
		e.respond(ctx, conv, rule)
		advanceStage(conv, rule)

	default:
		log.Printf("Unknown rule action %q on rule %s", rule.Action, rule.Name)
	}
}

func (e *Engine) respond(ctx context.Context, conv *models.Conversation, rule *models.ChatRule) {
	if rule.Response != "" {
		e.emitOutbound(ctx, conv, rule.Response, outboundMeta{ruleName: rule.Name})
	}
	if rule.FollowUp != "" {
		e.emitOutbound(ctx, conv, rule.FollowUp, outboundMeta{ruleName: rule.Name})
	}
}

// transferToHuman applies the human-handoff transition. It is shared by the
// transfer_to_human action and the max-AI-messages cutoff; rule is nil in
// the latter case.
func (e *Engine) transferToHuman(ctx context.Context, cfg *models.ChatConfig, conv *models.Conversation, response string, rule *models.ChatRule) {
	if response == "" {
		response = cfg.TransferMessage
	}
	if response != "" {
		meta := outboundMeta{}
		if rule != nil {
			meta.ruleName = rule.Name
		}
		e.emitOutbound(ctx, conv, response, meta)
	}
	conv.Status = models.StatusWaitingHuman
}

func advanceStage(conv *models.Conversation, rule *models.ChatRule) {
	if rule.NextStage != nil {
		conv.Stage = *rule.NextStage
	}
}

// extractName turns the triggering message into a stored customer name:
// trimmed, title-cased, capped.
func extractName(text string) string {
	name := strings.TrimSpace(text)
	if name == "" {
		return ""
	}

	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	name = strings.Join(words, " ")

	runes := []rune(name)
	if len(runes) > maxSavedNameLen {
		name = string(runes[:maxSavedNameLen])
	}
	return name
}
