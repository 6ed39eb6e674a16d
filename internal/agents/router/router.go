// Package router implements the Router agent: policy-evaluator-first
// case routing with a built-in business-rule fallback and team-capacity
// aware rerouting.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashita-ai/triagecore/internal/model"
	"github.com/ashita-ai/triagecore/internal/policy"
)

// PolicyEvaluator is the capability probe for an external policy
// decision service. A nil Agent.Evaluator falls straight through to
// built-in rules.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, policyPath string, input, data any) (policy.Result, error)
}

// alternatives gives each team an ordered list of fallback teams to try
// when it's at or above 90% capacity.
var alternatives = map[string][]string{
	"Tier-1":       {"Tier-2", "Specialist"},
	"Tier-2":       {"Tier-1", "Specialist"},
	"Specialist":   {"Tier-1", "Tier-2"},
	"Fraud-Review": {"Specialist", "Escalation"},
	"Escalation":   {"Specialist", "Tier-1"},
}

// defaultCatalogue is the default team catalogue.
func defaultCatalogue() *TeamCatalogue {
	return NewTeamCatalogue([]model.Team{
		{
			Name:           "Tier-1",
			CaseTypes:      caseTypeSet(model.CaseTypeInsuranceClaim, model.CaseTypeHealthcarePriorAuth, model.CaseTypeBankDispute),
			MaxRiskLevel:   model.RiskLevelHigh,
			Capacity:       100,
			SLATargetHours: 2,
		},
		{
			Name:           "Tier-2",
			CaseTypes:      caseTypeSet(model.CaseTypeInsuranceClaim, model.CaseTypeHealthcarePriorAuth),
			MaxRiskLevel:   model.RiskLevelMedium,
			Capacity:       200,
			SLATargetHours: 72,
		},
		{
			Name:           "Specialist",
			CaseTypes:      caseTypeSet(model.CaseTypeLegalIntake, model.CaseTypeFraudReview, model.CaseTypeHealthcarePriorAuth),
			MaxRiskLevel:   model.RiskLevelExtreme,
			Capacity:       50,
			SLATargetHours: 48,
		},
		{
			Name:           "Fraud-Review",
			CaseTypes:      caseTypeSet(model.CaseTypeFraudReview, model.CaseTypeBankDispute),
			MaxRiskLevel:   model.RiskLevelExtreme,
			Capacity:       30,
			SLATargetHours: 24,
		},
		{
			Name:           "Escalation",
			CaseTypes:      caseTypeSet(model.CaseTypeInsuranceClaim, model.CaseTypeHealthcarePriorAuth, model.CaseTypeBankDispute, model.CaseTypeLegalIntake, model.CaseTypeFraudReview),
			MaxRiskLevel:   model.RiskLevelExtreme,
			Capacity:       20,
			SLATargetHours: 4,
		},
	})
}

func caseTypeSet(types ...model.CaseType) map[model.CaseType]bool {
	m := make(map[model.CaseType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

// TeamCatalogue is the in-memory team registry. CurrentLoad is guarded
// by a mutex since AcquireTeam/ReleaseTeam may be called concurrently
// across triage runs.
type TeamCatalogue struct {
	mu    sync.Mutex
	teams map[string]model.Team
	order []string
}

// NewTeamCatalogue builds a catalogue from an explicit team list,
// preserving the given order for alternative-route enumeration.
func NewTeamCatalogue(teams []model.Team) *TeamCatalogue {
	c := &TeamCatalogue{teams: make(map[string]model.Team, len(teams))}
	for _, t := range teams {
		c.teams[t.Name] = t
		c.order = append(c.order, t.Name)
	}
	return c
}

// Get returns a snapshot of a team by name.
func (c *TeamCatalogue) Get(name string) (model.Team, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.teams[name]
	return t, ok
}

// Names returns the catalogue's team names in declared order.
func (c *TeamCatalogue) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// AcquireTeam increments a team's current load, returning false if the
// team doesn't exist. Exported so tests and the orchestrator can
// simulate capacity pressure.
func (c *TeamCatalogue) AcquireTeam(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.teams[name]
	if !ok {
		return false
	}
	t.CurrentLoad++
	c.teams[name] = t
	return true
}

// ReleaseTeam decrements a team's current load, floored at zero.
func (c *TeamCatalogue) ReleaseTeam(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.teams[name]
	if !ok || t.CurrentLoad == 0 {
		return
	}
	t.CurrentLoad--
	c.teams[name] = t
}

// SetLoad forces a team's current load, for tests that need to
// construct a specific capacity-pressure scenario.
func (c *TeamCatalogue) SetLoad(name string, load int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.teams[name]
	if !ok {
		return
	}
	t.CurrentLoad = load
	c.teams[name] = t
}

// Agent is the Router. Evaluator is optional; a nil Evaluator (or one
// that errors / times out) falls through to built-in rules.
type Agent struct {
	Evaluator  PolicyEvaluator
	Catalogue  *TeamCatalogue
	PolicyPath string
	Logger     *slog.Logger
}

// New builds a Router agent with the default team catalogue. evaluator
// may be nil.
func New(evaluator PolicyEvaluator, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		Evaluator:  evaluator,
		Catalogue:  defaultCatalogue(),
		PolicyPath: "routing/decision",
		Logger:     logger,
	}
}

type result struct {
	team          string
	slaHours      int
	escalate      bool
	confidence    float64
	reasoning     string
	policyApplied string
}

// Route decides which team a case should go to. Never returns an
// error: failures collapse to the documented Tier-2/72h safe default.
func (a *Agent) Route(ctx context.Context, c model.Case, classification model.ClassificationResult, risk model.RiskScoreResult) model.AgentResult {
	start := time.Now()
	res := a.route(ctx, c, classification, risk)

	return model.AgentResult{
		AgentName:        model.AgentRouter,
		Confidence:        res.confidence,
		Reasoning:         res.reasoning,
		ProcessingTimeMS:  time.Since(start).Milliseconds(),
		Result: model.RoutingResult{
			RecommendedTeam:   res.team,
			SLATargetHours:    res.slaHours,
			EscalationFlag:    res.escalate,
			Confidence:        res.confidence,
			Reasoning:         res.reasoning,
			PolicyApplied:     res.policyApplied,
			AlternativeRoutes: a.alternativeRoutes(classification.CaseType, risk.RiskLevel),
		},
	}
}

func (a *Agent) route(ctx context.Context, c model.Case, classification model.ClassificationResult, risk model.RiskScoreResult) (out result) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("router: recovered from panic", "panic", r)
			out = result{team: "Tier-2", slaHours: 72, confidence: 0.5, reasoning: fmt.Sprintf("routing failed: %v", r), policyApplied: "default"}
		}
	}()

	decided := a.decide(ctx, c, classification, risk)
	return a.applyCapacity(decided)
}

// decide calls the policy evaluator first and falls through to
// built-in rules when it's unreachable or returns an unknown team.
func (a *Agent) decide(ctx context.Context, c model.Case, classification model.ClassificationResult, risk model.RiskScoreResult) result {
	if a.Evaluator != nil {
		input := map[string]any{
			"case": map[string]any{
				"id":             c.ID,
				"title":          c.Title,
				"description":    c.Description,
				"case_type":      classification.CaseType,
				"urgency":        classification.Urgency,
				"risk_level":     risk.RiskLevel,
				"risk_score":     risk.RiskScore,
				"amount":         c.Amount,
				"customer_id":    c.CustomerID,
				"metadata":       c.Metadata,
				"missing_fields": classification.MissingFields,
			},
			"teams": a.Catalogue.Names(),
		}

		res, err := a.Evaluator.Evaluate(ctx, a.PolicyPath, input, nil)
		if err != nil {
			a.Logger.Debug("router: policy evaluator unreachable, using built-in rules", "error", err)
		} else if res.OK {
			if team, ok := extractTeam(res.Result); ok {
				if _, known := a.Catalogue.Get(team); known {
					return result{
						team:          team,
						slaHours:      extractSLA(res.Result, builtinRules(classification, risk).slaHours),
						escalate:      extractEscalate(res.Result, builtinRules(classification, risk).escalate),
						confidence:    0.95,
						reasoning:     "policy evaluator decision",
						policyApplied: "policy_evaluator",
					}
				}
			}
		}
	}

	return builtinRules(classification, risk)
}

// builtinRules is the priority-ordered fallback: first match wins.
func builtinRules(classification model.ClassificationResult, risk model.RiskScoreResult) result {
	switch {
	case risk.RiskLevel == model.RiskLevelHigh || risk.RiskLevel == model.RiskLevelExtreme:
		return result{team: "Escalation", slaHours: 4, escalate: true, confidence: 0.9, reasoning: "high risk case escalated", policyApplied: "high_risk_escalation"}
	case classification.CaseType == model.CaseTypeFraudReview || hasFraudIndicator(risk):
		return result{team: "Fraud-Review", slaHours: 24, confidence: 0.9, reasoning: "fraud review case routed to fraud team", policyApplied: "fraud_review"}
	case classification.CaseType == model.CaseTypeLegalIntake:
		return result{team: "Specialist", slaHours: 48, confidence: 0.9, reasoning: "legal case routed to specialist", policyApplied: "legal_cases"}
	case classification.Urgency == model.UrgencyCritical || classification.Urgency == model.UrgencyHigh:
		return result{team: "Tier-1", slaHours: 2, confidence: 0.9, reasoning: "urgent case routed to Tier-1", policyApplied: "urgent_cases"}
	default:
		return result{team: "Tier-2", slaHours: 72, confidence: 0.9, reasoning: "standard case routed to Tier-2", policyApplied: "standard_processing"}
	}
}

func hasFraudIndicator(risk model.RiskScoreResult) bool {
	for _, f := range risk.RiskFactors {
		if f == "fraud_indicators" {
			return true
		}
	}
	return false
}

// applyCapacity enforces the capacity fallback: if the chosen team
// is at or above 90% capacity, try ordered alternatives, accepting the
// first below 80% capacity; otherwise fall back to Tier-2.
func (a *Agent) applyCapacity(r result) result {
	team, ok := a.Catalogue.Get(r.team)
	if !ok {
		missing := r.team
		r.team = "Tier-2"
		r.reasoning = fmt.Sprintf("team %s not found, routed to Tier-2", missing)
		r.confidence *= 0.8
		return r
	}

	if team.LoadFraction() < 0.9 {
		return r
	}

	for _, alt := range alternatives[r.team] {
		altTeam, ok := a.Catalogue.Get(alt)
		if ok && altTeam.LoadFraction() < 0.8 {
			r.reasoning = fmt.Sprintf("team %s at capacity, routed to %s", r.team, alt)
			r.team = alt
			r.confidence *= 0.9
			return r
		}
	}

	r.reasoning = fmt.Sprintf("team %s at capacity, no alternative available, routed to Tier-2", r.team)
	r.team = "Tier-2"
	r.confidence *= 0.9
	return r
}

// alternativeRoutes lists every team that both accepts caseType and
// whose max risk level can handle riskLevel, in catalogue order.
func (a *Agent) alternativeRoutes(caseType model.CaseType, riskLevel model.RiskLevel) []string {
	var out []string
	for _, name := range a.Catalogue.Names() {
		team, ok := a.Catalogue.Get(name)
		if ok && team.AcceptsCaseType(caseType) && team.MaxRiskLevel.AtLeast(riskLevel) {
			out = append(out, name)
		}
	}
	return out
}

func extractTeam(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := m["team"].(string)
	return s, ok && s != ""
}

func extractSLA(v any, fallback int) int {
	m, ok := v.(map[string]any)
	if !ok {
		return fallback
	}
	switch n := m["sla_hours"].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func extractEscalate(v any, fallback bool) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return fallback
	}
	b, ok := m["escalation"].(bool)
	if !ok {
		return fallback
	}
	return b
}
