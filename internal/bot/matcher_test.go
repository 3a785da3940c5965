package bot

import (
	"testing"

	"github.com/matheus-sup/CRM-sub000/internal/models"
)

func rule(name, triggers string, opts func(*models.ChatRule)) models.ChatRule {
	r := models.ChatRule{
		Name:     name,
		Triggers: triggers,
		Action:   models.ActionRespond,
		Response: "ok",
		IsActive: true,
	}
	if opts != nil {
		opts(&r)
	}
	return r
}

func TestMatchExactVsContains(t *testing.T) {
	exact := rule("exact-oi", triggersJSON("oi"), func(r *models.ChatRule) {
		r.MatchExact = true
	})
	contains := rule("contains-oi", triggersJSON("oi"), nil)

	if got := Match("oi tudo bem", "inicio", []models.ChatRule{exact}); got != nil {
		t.Fatalf("exact rule should not match %q, got %s", "oi tudo bem", got.Name)
	}
	if got := Match("oi", "inicio", []models.ChatRule{exact}); got == nil {
		t.Fatalf("exact rule should match %q", "oi")
	}
	if got := Match("oi tudo bem", "inicio", []models.ChatRule{contains}); got == nil {
		t.Fatalf("substring rule should match %q", "oi tudo bem")
	}
}

func TestMatchNormalizesInput(t *testing.T) {
	r := rule("greeting", triggersJSON("bom dia"), func(r *models.ChatRule) {
		r.MatchExact = true
	})

	if got := Match("  BOM DIA  ", "inicio", []models.ChatRule{r}); got == nil {
		t.Fatalf("matching should trim and lowercase the input")
	}
}

func TestMatchStageScopedBeatsGlobal(t *testing.T) {
	global := rule("global", triggersJSON("menu"), func(r *models.ChatRule) {
		r.Order = 0
	})
	scoped := rule("scoped", triggersJSON("menu"), func(r *models.ChatRule) {
		r.Stage = strPtr("inicio")
		r.Order = 99
	})

	got := Match("menu", "inicio", []models.ChatRule{global, scoped})
	if got == nil || got.Name != "scoped" {
		t.Fatalf("stage-scoped rule should win over global regardless of order, got %+v", got)
	}

	// Outside the scoped stage only the global rule applies.
	got = Match("menu", "produtos", []models.ChatRule{global, scoped})
	if got == nil || got.Name != "global" {
		t.Fatalf("expected global rule at foreign stage, got %+v", got)
	}
}

func TestMatchRespectsOrderWithinGroup(t *testing.T) {
	// The snapshot hands rules pre-sorted by order; the matcher takes the
	// first hit in that sequence.
	first := rule("first", triggersJSON("promo"), func(r *models.ChatRule) { r.Order = 1 })
	second := rule("second", triggersJSON("promo"), func(r *models.ChatRule) { r.Order = 2 })

	got := Match("promo", "inicio", []models.ChatRule{first, second})
	if got == nil || got.Name != "first" {
		t.Fatalf("expected lowest-order rule, got %+v", got)
	}
}

func TestMatchSkipsInactiveRules(t *testing.T) {
	inactive := rule("inactive", triggersJSON("oi"), func(r *models.ChatRule) {
		r.IsActive = false
	})

	if got := Match("oi", "inicio", []models.ChatRule{inactive}); got != nil {
		t.Fatalf("inactive rule should never match, got %s", got.Name)
	}
}

func TestMatchAnyTriggerSuffices(t *testing.T) {
	r := rule("multi", triggersJSON("preço", "valor", "quanto custa"), nil)

	if got := Match("qual o valor disso?", "inicio", []models.ChatRule{r}); got == nil {
		t.Fatalf("any trigger should match (OR semantics)")
	}
}

func TestMatchDeterministic(t *testing.T) {
	rules := []models.ChatRule{
		rule("a", triggersJSON("oi"), nil),
		rule("b", triggersJSON("oi", "olá"), nil),
	}

	first := Match("oi", "inicio", rules)
	for i := 0; i < 50; i++ {
		got := Match("oi", "inicio", rules)
		if got == nil || got.Name != first.Name {
			t.Fatalf("match is not deterministic: run %d returned %+v", i, got)
		}
	}
}

func TestMatchNoCandidates(t *testing.T) {
	rules := []models.ChatRule{rule("a", triggersJSON("pedido"), nil)}

	if got := Match("oi", "inicio", rules); got != nil {
		t.Fatalf("expected no match, got %s", got.Name)
	}
	if got := Match("", "inicio", nil); got != nil {
		t.Fatalf("expected no match on empty input, got %s", got.Name)
	}
}
