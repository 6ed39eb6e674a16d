// Package decisionsupport implements the Decision Support agent:
// suggested actions, a templated response, a verification checklist,
// and knowledge-base attribution for a triaged case.
package decisionsupport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/triagecore/internal/infra/cache"
	"github.com/ashita-ai/triagecore/internal/model"
	"github.com/ashita-ai/triagecore/internal/vectorstore"
)

// defaultKnowledgeCacheTTL is used when CacheTTL is left at its zero value.
const defaultKnowledgeCacheTTL = 10 * time.Minute

// actionPatterns is the literal per-(case type, risk bucket) action
// table. "medium" is the fallback bucket for any
// risk level not explicitly listed.
var actionPatterns = map[model.CaseType]map[string][]string{
	model.CaseTypeInsuranceClaim: {
		"high": {
			"Request additional documentation", "Schedule fraud investigation",
			"Notify compliance team", "Set up monitoring alerts",
		},
		"medium": {
			"Review claim details", "Request supporting documents",
			"Verify policy coverage", "Calculate settlement amount",
		},
		"low": {
			"Process standard approval", "Send confirmation letter",
			"Update customer records", "Close case",
		},
	},
	model.CaseTypeHealthcarePriorAuth: {
		"high": {
			"Request medical records", "Consult with medical director",
			"Schedule peer review", "Notify provider of decision",
		},
		"medium": {
			"Review treatment plan", "Verify medical necessity",
			"Check coverage criteria", "Make determination",
		},
		"low": {
			"Approve treatment", "Send approval letter",
			"Update authorization system", "Notify provider",
		},
	},
	model.CaseTypeBankDispute: {
		"high": {
			"Freeze account activity", "Initiate fraud investigation",
			"Contact law enforcement", "Notify compliance officer",
		},
		"medium": {
			"Review transaction history", "Contact customer for details",
			"Investigate merchant", "Make provisional credit decision",
		},
		"low": {
			"Process chargeback", "Send dispute letter",
			"Update customer account", "Monitor for resolution",
		},
	},
	model.CaseTypeLegalIntake: {
		"high": {
			"Schedule urgent consultation", "Prepare legal documents",
			"Notify senior attorney", "Set up case management",
		},
		"medium": {
			"Review case details", "Schedule consultation",
			"Prepare initial assessment", "Assign case number",
		},
		"low": {
			"Schedule standard consultation", "Send welcome packet",
			"Create client file", "Assign paralegal",
		},
	},
	model.CaseTypeFraudReview: {
		"high": {
			"Initiate fraud investigation", "Freeze related accounts",
			"Contact law enforcement if needed",
		},
		"medium": {
			"Review fraud indicators", "Request additional verification",
			"Cross-check related cases",
		},
		"low": {
			"Document findings", "Close fraud review",
		},
	},
}

func riskBucket(level model.RiskLevel) string {
	switch level {
	case model.RiskLevelHigh, model.RiskLevelExtreme:
		return "high"
	case model.RiskLevelLow:
		return "low"
	default:
		return "medium"
	}
}

// Agent is the Decision Support agent. KB is optional; a nil KB skips
// the vector-store knowledge lookup (knowledge_sources stays empty).
// Cache is also optional; a nil Cache falls through to KB on every call.
type Agent struct {
	KB     vectorstore.Store
	Logger *slog.Logger

	// Cache fronts the knowledge-base RAG lookup, keyed on case type and
	// query text. CacheTTL is the per-entry lifetime; zero means
	// defaultKnowledgeCacheTTL.
	Cache    cache.Cache
	CacheTTL time.Duration
}

// New builds a Decision Support agent. kb may be nil.
func New(kb vectorstore.Store, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{KB: kb, Logger: logger}
}

// Support produces decision support for a case given the upstream
// agents' outputs. Never returns an error: failures collapse to the
// documented single-action safe default.
func (a *Agent) Support(ctx context.Context, c model.Case, classification model.ClassificationResult, risk model.RiskScoreResult, routing model.RoutingResult) model.AgentResult {
	start := time.Now()
	res := a.support(ctx, c, classification, risk, routing)

	return model.AgentResult{
		AgentName:        model.AgentDecisionSupport,
		Confidence:       res.Confidence,
		Reasoning:        res.Reasoning,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Result:           res,
	}
}

func (a *Agent) support(ctx context.Context, c model.Case, classification model.ClassificationResult, risk model.RiskScoreResult, routing model.RoutingResult) (out model.DecisionSupportResult) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("decisionsupport: recovered from panic", "panic", r)
			out = model.DecisionSupportResult{
				SuggestedActions: []string{"Review case manually"},
				TemplateResponse: "Please review this case and take appropriate action.",
				Checklist:        []string{"Verify case details", "Check documentation"},
				Confidence:       0.5,
				Reasoning:        fmt.Sprintf("decision support failed: %v", r),
			}
		}
	}()

	bucket := riskBucket(risk.RiskLevel)

	actions := a.generateActions(classification.CaseType, bucket, classification.Urgency, risk.RiskLevel, routing.RecommendedTeam)
	template := a.renderTemplate(c, classification.CaseType, risk.RiskLevel)
	checklist := a.createChecklist(classification, risk)
	sources := a.retrieveKnowledge(ctx, c, classification.CaseType, risk.RiskLevel)

	confidence := clip01(classification.Confidence*0.4 + risk.Confidence*0.4 + routing.Confidence*0.2)

	return model.DecisionSupportResult{
		SuggestedActions: actions,
		TemplateResponse: template,
		Checklist:        checklist,
		KnowledgeSources: sources,
		Confidence:       confidence,
		Reasoning:        a.reasoning(classification.CaseType, risk.RiskLevel, routing.RecommendedTeam, sources),
	}
}

func (a *Agent) generateActions(caseType model.CaseType, bucket string, urgency model.Urgency, risk model.RiskLevel, team string) []string {
	var actions []string

	patterns := actionPatterns[caseType]
	riskActions := patterns[bucket]
	if riskActions == nil {
		riskActions = patterns["medium"]
	}
	actions = append(actions, riskActions...)

	if urgency == model.UrgencyCritical || urgency == model.UrgencyHigh {
		actions = append(actions, "Prioritize for immediate review", "Set up escalation monitoring", "Notify management team")
	}

	switch team {
	case "Fraud-Review":
		actions = append(actions, "Initiate fraud investigation", "Freeze related accounts", "Contact law enforcement if needed")
	case "Specialist":
		actions = append(actions, "Schedule specialist review", "Prepare detailed analysis", "Coordinate with external experts")
	case "Escalation":
		actions = append(actions, "Immediate management review", "Prepare escalation report", "Coordinate cross-functional response")
	}

	if risk == model.RiskLevelHigh || risk == model.RiskLevelExtreme {
		actions = append(actions, "Document decision rationale", "Update compliance logs", "Schedule follow-up review")
	}

	return dedupe(actions)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}

func (a *Agent) renderTemplate(c model.Case, caseType model.CaseType, risk model.RiskLevel) string {
	name := fmt.Sprintf("templates/%s_%s.tmpl", caseType, risk)
	raw, err := templatesFS.ReadFile(name)
	if err != nil {
		return a.fallbackTemplate(c, caseType, risk)
	}

	customerName := c.CustomerID
	if customerName == "" {
		customerName = "Customer"
	}
	amount := "N/A"
	if c.Amount != 0 {
		amount = strconv.FormatFloat(c.Amount, 'f', 2, 64)
	}

	replacer := strings.NewReplacer(
		"{customer_name}", customerName,
		"{case_id}", valueOr(c.ID, "N/A"),
		"{amount}", amount,
		"{case_type}", titleCase(string(caseType)),
		"{risk_level}", titleCase(string(risk)),
	)
	return replacer.Replace(string(raw))
}

func (a *Agent) fallbackTemplate(c model.Case, caseType model.CaseType, risk model.RiskLevel) string {
	customerName := c.CustomerID
	if customerName == "" {
		customerName = "Customer"
	}
	return fmt.Sprintf(
		"Dear %s,\n\nThank you for submitting your %s case. We have reviewed your case and determined it requires %s level processing.\n\nOur team will process your case according to our standard procedures.\n\nBest regards,\nClaims Triage Team",
		customerName, strings.ReplaceAll(string(caseType), "_", " "), strings.ToLower(string(risk)),
	)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func titleCase(s string) string {
	parts := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func (a *Agent) createChecklist(classification model.ClassificationResult, risk model.RiskScoreResult) []string {
	checklist := []string{
		"Verify case information is complete",
		"Check all required documents are attached",
		"Validate customer information",
		"Review case classification accuracy",
	}

	for _, field := range classification.MissingFields {
		checklist = append(checklist, fmt.Sprintf("Request missing %s", field))
	}

	if risk.RiskLevel == model.RiskLevelHigh || risk.RiskLevel == model.RiskLevelExtreme {
		checklist = append(checklist,
			"Perform additional verification",
			"Document risk assessment rationale",
			"Set up monitoring and alerts",
			"Schedule follow-up review",
		)
	}

	switch classification.CaseType {
	case model.CaseTypeInsuranceClaim:
		checklist = append(checklist, "Verify policy coverage", "Check claim amount against limits", "Review medical documentation", "Calculate settlement amount")
	case model.CaseTypeHealthcarePriorAuth:
		checklist = append(checklist, "Verify medical necessity", "Check treatment plan", "Review provider credentials", "Validate diagnosis codes")
	case model.CaseTypeBankDispute:
		checklist = append(checklist, "Review transaction details", "Verify customer identity", "Check account activity", "Investigate merchant information")
	case model.CaseTypeLegalIntake:
		checklist = append(checklist, "Schedule initial consultation", "Prepare case summary", "Check conflicts of interest", "Assign case number")
	}

	return checklist
}

func (a *Agent) retrieveKnowledge(ctx context.Context, c model.Case, caseType model.CaseType, risk model.RiskLevel) []string {
	if a.KB == nil {
		return nil
	}

	query := c.Title + " " + c.Description
	key := knowledgeCacheKey(caseType, query)

	if a.Cache != nil {
		if sources, ok, err := cache.GetJSON[[]string](ctx, a.Cache, key); err == nil && ok {
			return sources
		}
	}

	results, err := a.KB.DecisionSupport(ctx, query, string(caseType), 3)
	if err != nil {
		a.Logger.Warn("decisionsupport: knowledge retrieval failed", "error", err)
		return nil
	}

	var sources []string
	for _, collection := range vectorstore.Collections {
		for _, m := range results[collection] {
			sources = append(sources, m.ID)
		}
	}

	if a.Cache != nil {
		ttl := a.CacheTTL
		if ttl <= 0 {
			ttl = defaultKnowledgeCacheTTL
		}
		if err := cache.SetJSON(ctx, a.Cache, key, sources, ttl); err != nil {
			a.Logger.Warn("decisionsupport: knowledge cache write failed", "error", err)
		}
	}

	return sources
}

// knowledgeCacheKey hashes the case type and query text so the cache key
// stays bounded regardless of description length.
func knowledgeCacheKey(caseType model.CaseType, query string) string {
	sum := sha256.Sum256([]byte(string(caseType) + "\x00" + query))
	return "decisionsupport:kb:" + hex.EncodeToString(sum[:])
}

func (a *Agent) reasoning(caseType model.CaseType, risk model.RiskLevel, team string, sources []string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("based on the case classification as %s with %s risk level,", caseType, risk))
	parts = append(parts, fmt.Sprintf("this case has been routed to the %s team.", team))
	if len(sources) > 0 {
		parts = append(parts, fmt.Sprintf("recommendations draw on %d knowledge source(s).", len(sources)))
	}
	if risk == model.RiskLevelHigh || risk == model.RiskLevelExtreme {
		parts = append(parts, "due to the high risk level, additional verification and monitoring are recommended.")
	}
	if team == "Fraud-Review" || team == "Escalation" {
		parts = append(parts, "specialized handling is required due to the nature of this case.")
	}
	return strings.Join(parts, " ")
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
