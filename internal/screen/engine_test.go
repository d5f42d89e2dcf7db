package screen

import (
	"context"
	"testing"

	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/feature"
)

func testClaim() *domain.Claim {
	return &domain.Claim{
		ID:            "clm-001",
		HospitalCode:  "RS001",
		DoctorID:      "DR001",
		ICD10Code:     "J18.9",
		PatientGender: "L",
		CareClass:     "2",
		TarifINACBG:   3200000,
		TarifRS:       5000000,
		LOSDays:       1,
		NumProcedures: 3,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RuleCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RuleCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.ScreenRule{
		ID:         "overbilling",
		Name:       "Overbilling",
		Expression: "tariff_ratio > 1.5",
		Severity:   domain.SeverityWarning,
		Reason:     "Billed tariff far above reference",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RuleCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RuleCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.ScreenRule{
		ID:         "invalid",
		Name:       "Invalid",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestEvaluateFlags(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rules := []*domain.ScreenRule{
		{
			ID:         "r1-overbilling",
			Name:       "Overbilling",
			Expression: "tariff_ratio > 1.5",
			Severity:   domain.SeverityWarning,
			Reason:     "Billed tariff far above reference",
			Enabled:    true,
		},
		{
			ID:         "r2-short-stay-procedures",
			Name:       "Dense short stay",
			Expression: "los_days <= 1 && num_procedures >= 3",
			Severity:   domain.SeverityInfo,
			Reason:     "Many procedures on a one-day stay",
			Enabled:    true,
		},
		{
			ID:         "r3-long-stay",
			Name:       "Long stay",
			Expression: "is_long_stay",
			Severity:   domain.SeverityInfo,
			Reason:     "Admission exceeds five days",
			Enabled:    true,
		},
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	claim := testClaim()
	flags := engine.Evaluate(context.Background(), claim, feature.Derive(claim))

	if len(flags) != 2 {
		t.Fatalf("expected 2 flags, got %d: %+v", len(flags), flags)
	}
	// Deterministic order by rule ID.
	if flags[0].RuleID != "r1-overbilling" || flags[1].RuleID != "r2-short-stay-procedures" {
		t.Errorf("unexpected flag order: %s, %s", flags[0].RuleID, flags[1].RuleID)
	}
	if flags[0].Severity != domain.SeverityWarning {
		t.Errorf("severity = %s, want %s", flags[0].Severity, domain.SeverityWarning)
	}
}

func TestEvaluateSkipsDisabledRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rules := []*domain.ScreenRule{
		{ID: "off", Name: "Disabled", Expression: "true", Enabled: false},
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	claim := testClaim()
	if flags := engine.Evaluate(context.Background(), claim, feature.Derive(claim)); len(flags) != 0 {
		t.Errorf("expected no flags from disabled rules, got %d", len(flags))
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	first := &domain.ScreenRule{ID: "a", Name: "A", Expression: "true", Enabled: true}
	if err := engine.LoadRule(first); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	replacement := []*domain.ScreenRule{
		{ID: "b", Name: "B", Expression: "false", Enabled: true},
	}
	if err := engine.ReloadRules(replacement); err != nil {
		t.Fatalf("failed to reload rules: %v", err)
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "b" {
		t.Errorf("reload did not replace rules: %+v", loaded)
	}
}
