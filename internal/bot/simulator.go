package bot

import (
	"context"
	"log"

	"github.com/matheus-sup/CRM-sub000/internal/ai"
	"github.com/matheus-sup/CRM-sub000/internal/models"
)

// SimulationResult is the admin-preview outcome of running one message
// through the matcher and the AI decision path.
type SimulationResult struct {
	UsedAI    bool   `json:"used_ai"`
	RuleName  string `json:"rule_name"`
	Reply     string `json:"reply"`
	FollowUp  string `json:"follow_up"`
	NextStage string `json:"next_stage"`
}

// Simulate runs the live rule set against an ephemeral single-message
// transcript. No conversation is read or written, no lock is taken and
// nothing is persisted, so for a fixed rule set and a fixed AI response the
// result is fully deterministic.
func (e *Engine) Simulate(ctx context.Context, text, stage string) (*SimulationResult, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	cfg := &snap.Config
	if stage == "" {
		stage = cfg.InitialStage
	}

	if rule := Match(text, stage, snap.Rules); rule != nil {
		result := &SimulationResult{
			RuleName: rule.Name,
			Reply:    rule.Response,
			FollowUp: rule.FollowUp,
		}
		switch rule.Action {
		case models.ActionTransferToHuman:
			if result.Reply == "" {
				result.Reply = cfg.TransferMessage
			}
		case models.ActionClose:
			if result.Reply == "" {
				result.Reply = cfg.GoodbyeMessage
			}
		}
		if rule.NextStage != nil {
			result.NextStage = *rule.NextStage
		} else {
			result.NextStage = stage
		}
		return result, nil
	}

	result := &SimulationResult{NextStage: stage}

	provider, ok := e.providerFor(cfg)
	if !ok {
		result.Reply = cfg.FallbackMessage
		return result, nil
	}

	aiCtx, cancel := context.WithTimeout(ctx, e.aiTimeout)
	defer cancel()

	reply, err := provider.Complete(aiCtx, buildSimulationRequest(cfg, text))
	if err != nil {
		log.Printf("AI provider error during simulation: %v", err)
		result.Reply = cfg.ErrorMessage
		return result, nil
	}

	result.UsedAI = true
	result.Reply = reply
	return result, nil
}

func buildSimulationRequest(cfg *models.ChatConfig, text string) ai.Request {
	return ai.Request{
		System:      buildSystemPrompt(cfg),
		Messages:    []ai.Message{{Role: "user", Content: text}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}
