package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/matheus-sup/CRM-sub000/internal/models"
	"github.com/matheus-sup/CRM-sub000/internal/store"

	"github.com/gin-gonic/gin"
)

type RuleHandler struct {
	Store *store.Store
}

func NewRuleHandler(st *store.Store) *RuleHandler {
	return &RuleHandler{Store: st}
}

type ruleRequest struct {
	Name       string   `json:"name" binding:"required"`
	Triggers   []string `json:"triggers" binding:"required"`
	MatchExact bool     `json:"match_exact"`
	Stage      *string  `json:"stage"`
	Action     string   `json:"action" binding:"required"`
	Response   string   `json:"response"`
	FollowUp   string   `json:"follow_up"`
	NextStage  *string  `json:"next_stage"`
	IsActive   *bool    `json:"is_active"`
	Order      int      `json:"order"`
}

// normalizeTriggers lowercases, trims and deduplicates the trigger list.
func normalizeTriggers(raw []string) ([]string, string) {
	seen := make(map[string]bool)
	var triggers []string
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if seen[t] {
			return nil, "duplicate trigger: " + t
		}
		seen[t] = true
		triggers = append(triggers, t)
	}
	if len(triggers) == 0 {
		return nil, "at least one trigger is required"
	}
	return triggers, ""
}

func validAction(action string) bool {
	switch action {
	case models.ActionRespond, models.ActionTransferToHuman, models.ActionClose, models.ActionSaveName:
		return true
	}
	return false
}

// GetRules returns all chat rules
func (h *RuleHandler) GetRules(c *gin.Context) {
	rules, err := h.Store.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// CreateRule creates a new chat rule
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	triggers, problem := normalizeTriggers(req.Triggers)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}
	if !validAction(req.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action: " + req.Action})
		return
	}

	triggersJSON, _ := json.Marshal(triggers)
	rule := models.ChatRule{
		Name:       req.Name,
		Triggers:   string(triggersJSON),
		MatchExact: req.MatchExact,
		Stage:      req.Stage,
		Action:     req.Action,
		Response:   req.Response,
		FollowUp:   req.FollowUp,
		NextStage:  req.NextStage,
		IsActive:   true,
		Order:      req.Order,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.Store.CreateRule(c.Request.Context(), &rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateRule updates an existing chat rule
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	rule, err := h.Store.GetRule(c.Request.Context(), uint(id))
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	triggers, problem := normalizeTriggers(req.Triggers)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}
	if !validAction(req.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action: " + req.Action})
		return
	}

	triggersJSON, _ := json.Marshal(triggers)
	rule.Name = req.Name
	rule.Triggers = string(triggersJSON)
	rule.MatchExact = req.MatchExact
	rule.Stage = req.Stage
	rule.Action = req.Action
	rule.Response = req.Response
	rule.FollowUp = req.FollowUp
	rule.NextStage = req.NextStage
	rule.Order = req.Order
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.Store.UpdateRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule deletes a chat rule
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	if err := h.Store.DeleteRule(c.Request.Context(), uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted successfully"})
}

// ToggleRule flips a rule's active flag
func (h *RuleHandler) ToggleRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	rule, err := h.Store.GetRule(c.Request.Context(), uint(id))
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rule.IsActive = !rule.IsActive
	if err := h.Store.UpdateRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": rule.ID, "is_active": rule.IsActive})
}
