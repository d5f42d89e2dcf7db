// Package screen provides the CEL-Go based claim screening engine.
// Screening rules emit advisory flags alongside the model score; they are
// explanation aids for reviewers and never change the scoring outcome.
package screen

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/opensource-health/kestrel/internal/domain"
)

// Engine is the CEL-based screening rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ScreenRule
	Program cel.Program
}

// NewEngine creates a new screening engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing the claim and its derived features.
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("hospital_code", cel.StringType),
		cel.Variable("doctor_id", cel.StringType),
		cel.Variable("icd10_code", cel.StringType),
		cel.Variable("patient_gender", cel.StringType),
		cel.Variable("care_class", cel.StringType),
		cel.Variable("billed", cel.DoubleType),
		cel.Variable("reference", cel.DoubleType),
		cel.Variable("tariff_ratio", cel.DoubleType),
		cel.Variable("tariff_diff_pct", cel.DoubleType),
		cel.Variable("tariff_per_day", cel.DoubleType),
		cel.Variable("procedure_intensity", cel.DoubleType),
		cel.Variable("los_days", cel.IntType),
		cel.Variable("num_procedures", cel.IntType),
		cel.Variable("patient_age", cel.IntType),
		cel.Variable("provider_claims_count", cel.IntType),
		cel.Variable("provider_high_cost_rate", cel.DoubleType),
		cel.Variable("is_high_cost", cel.BoolType),
		cel.Variable("is_long_stay", cel.BoolType),
		cel.Variable("has_procedures", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.ScreenRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ScreenRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(configs []*domain.ScreenRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears and reloads rules (hot reload).
func (e *Engine) ReloadRules(configs []*domain.ScreenRule) error {
	e.mu.Lock()
	e.compiledRules = make(map[string]*CompiledRule)
	e.mu.Unlock()

	return e.LoadRules(configs)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.ScreenRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreenRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// RuleCount returns the number of loaded rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

func (e *Engine) compileRule(cfg *domain.ScreenRule) (*CompiledRule, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("rule %s has no expression", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %s failed to compile: %w", cfg.ID, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %s failed to program: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

// Evaluate runs all loaded rules against a claim and returns the flags of
// those that triggered, ordered by rule ID for deterministic output. Rule
// evaluation errors are logged and skipped: a broken advisory rule must
// never fail a scoring request.
func (e *Engine) Evaluate(ctx context.Context, claim *domain.Claim, derived domain.DerivedFeatures) []domain.ScreenFlag {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := buildActivation(claim, derived)

	flags := make([]*domain.ScreenFlag, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			out, _, err := r.Program.ContextEval(ctx, activation)
			if err != nil {
				slog.Warn("screening rule evaluation failed",
					"rule_id", r.Config.ID,
					"error", err,
				)
				return
			}

			triggered, ok := out.Value().(bool)
			if !ok {
				slog.Warn("screening rule did not return bool",
					"rule_id", r.Config.ID,
					"type", fmt.Sprintf("%T", out.Value()),
				)
				return
			}

			if triggered {
				flags[idx] = &domain.ScreenFlag{
					RuleID:   r.Config.ID,
					RuleName: r.Config.Name,
					Severity: r.Config.Severity,
					Reason:   r.Config.Reason,
				}
			}
		}(i, rule)
	}

	wg.Wait()

	result := make([]domain.ScreenFlag, 0, len(flags))
	for _, f := range flags {
		if f != nil {
			result = append(result, *f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RuleID < result[j].RuleID })
	return result
}

// buildActivation prepares the CEL variable bindings for one claim.
func buildActivation(claim *domain.Claim, derived domain.DerivedFeatures) map[string]any {
	patientAge := 0
	if claim.PatientAge != nil {
		patientAge = *claim.PatientAge
	}
	providerClaims := 0
	if claim.ProviderClaimsCount != nil {
		providerClaims = *claim.ProviderClaimsCount
	}
	highCostRate := 0.0
	if claim.ProviderHighCostRate != nil {
		highCostRate = *claim.ProviderHighCostRate
	}

	return map[string]any{
		"claim": map[string]any{
			"id":             claim.ID,
			"hospital_code":  claim.HospitalCode,
			"doctor_id":      claim.DoctorID,
			"icd10_code":     claim.ICD10Code,
			"patient_gender": claim.PatientGender,
			"care_class":     claim.CareClass,
			"procedures":     claim.Procedures,
		},
		"hospital_code":           claim.HospitalCode,
		"doctor_id":               claim.DoctorID,
		"icd10_code":              claim.ICD10Code,
		"patient_gender":          claim.PatientGender,
		"care_class":              claim.CareClass,
		"billed":                  claim.TarifRS,
		"reference":               claim.TarifINACBG,
		"tariff_ratio":            derived.TariffRatio,
		"tariff_diff_pct":         derived.TariffDiffPct,
		"tariff_per_day":          derived.TariffPerDay,
		"procedure_intensity":     derived.ProcedureIntensity,
		"los_days":                claim.LOSDays,
		"num_procedures":          claim.NumProcedures,
		"patient_age":             patientAge,
		"provider_claims_count":   providerClaims,
		"provider_high_cost_rate": highCostRate,
		"is_high_cost":            derived.IsHighCost,
		"is_long_stay":            derived.IsLongStay,
		"has_procedures":          derived.HasProcedures,
	}
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}
