// Package classifier implements the Classifier agent: a four-stage
// cascade (LLM, ML, rule-based, combination) that assigns a case its
// case type and urgency.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashita-ai/triagecore/internal/model"
)

// confidenceThreshold is the minimum LLM confidence that lets an LLM
// result short-circuit the ML/rule stages.
const confidenceThreshold = 0.8

// LLMClassification is what an LLMClassifier returns: a raw case type
// and urgency string plus the model's own confidence and reasoning.
type LLMClassification struct {
	CaseType      string
	Urgency       string
	Confidence    float64
	Reasoning     string
	MissingFields []string
}

// LLMClassifier is the capability probe for an LLM-backed classification
// step. A nil Agent.LLM skips this stage entirely — it is never required.
type LLMClassifier interface {
	Classify(ctx context.Context, text string) (LLMClassification, error)
}

// Features is the fixed input an MLClassifier scores against. Built from
// the same text every stage shares, so callers never need TF-IDF or
// vectorizer state of their own.
type Features struct {
	Text string
}

// MLClassifier is the capability probe for a trained artifact pair
// (vectorizer + classifier per head). A nil Agent.ML skips straight to
// rule-based keyword matching.
type MLClassifier interface {
	ClassifyCaseType(f Features) (caseType string, confidence float64, err error)
	ClassifyUrgency(f Features) (urgency string, confidence float64, err error)
}

// caseTypeKeywords is the literal keyword table the rule-based classifier uses for
// rule-based case-type matching.
var caseTypeKeywords = map[model.CaseType][]string{
	model.CaseTypeInsuranceClaim: {
		"claim", "insurance", "policy", "coverage", "premium", "deductible",
		"medical", "dental", "vision", "accident", "disability",
	},
	model.CaseTypeHealthcarePriorAuth: {
		"prior authorization", "pre-authorization", "medical necessity",
		"treatment plan", "prescription", "medication", "procedure",
	},
	model.CaseTypeBankDispute: {
		"dispute", "chargeback", "fraudulent", "unauthorized", "bank",
		"credit card", "debit", "transaction", "refund",
	},
	model.CaseTypeLegalIntake: {
		"legal", "attorney", "lawyer", "lawsuit", "litigation", "contract",
		"breach", "damages", "settlement", "court",
	},
	model.CaseTypeFraudReview: {
		"fraud", "suspicious", "investigation", "identity theft", "forgery",
		"counterfeit", "embezzlement", "money laundering",
	},
}

// caseTypeOrder fixes tie-break order: first declared keyword table
// wins on a tied score, matching the Python original's dict iteration
// order (insertion order in CPython 3.7+).
var caseTypeOrder = []model.CaseType{
	model.CaseTypeInsuranceClaim,
	model.CaseTypeHealthcarePriorAuth,
	model.CaseTypeBankDispute,
	model.CaseTypeLegalIntake,
	model.CaseTypeFraudReview,
}

var urgencyKeywords = map[model.Urgency][]string{
	model.UrgencyCritical: {
		"emergency", "urgent", "immediate", "critical", "life-threatening",
		"severe", "acute", "trauma", "cardiac", "stroke",
	},
	model.UrgencyHigh: {
		"high priority", "important", "time-sensitive", "deadline",
		"escalation", "complaint", "dispute",
	},
	model.UrgencyMedium: {
		"standard", "routine", "normal", "regular", "scheduled",
	},
	model.UrgencyLow: {
		"low priority", "non-urgent", "routine", "maintenance", "inquiry",
	},
}

var urgencyOrder = []model.Urgency{
	model.UrgencyCritical,
	model.UrgencyHigh,
	model.UrgencyMedium,
	model.UrgencyLow,
}

// result is the cascade's internal working type, distinct from
// model.ClassificationResult only in that it carries no processing time
// (the Agent stamps that once at the end).
type result struct {
	caseType      model.CaseType
	urgency       model.Urgency
	confidence    float64
	reasoning     string
	missingFields []string
}

// Agent is the Classifier. LLM and ML are both optional; a zero-value
// Agent (both nil) runs rule-based classification only.
type Agent struct {
	LLM    LLMClassifier
	ML     MLClassifier
	Logger *slog.Logger
}

// New builds a Classifier agent. logger may be nil, in which case a
// discarding logger is used.
func New(llm LLMClassifier, ml MLClassifier, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{LLM: llm, ML: ml, Logger: logger}
}

// Classify runs the four-stage cascade and never returns an error: any
// internal failure collapses to the documented safe default
// (insurance_claim / medium / confidence 0.5) with a classification_error
// marker in MissingFields, matching the original's except-Exception
// fallback.
func (a *Agent) Classify(ctx context.Context, c model.Case) model.AgentResult {
	start := time.Now()
	res := a.classify(ctx, c)

	return model.AgentResult{
		AgentName:        model.AgentClassifier,
		Confidence:       res.confidence,
		Reasoning:        res.reasoning,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Result: model.ClassificationResult{
			CaseType:      res.caseType,
			Urgency:       res.urgency,
			Confidence:    res.confidence,
			Reasoning:     res.reasoning,
			MissingFields: res.missingFields,
		},
	}
}

func (a *Agent) classify(ctx context.Context, c model.Case) (out result) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("classifier: recovered from panic", "panic", r)
			out = result{
				caseType:      model.CaseTypeInsuranceClaim,
				urgency:       model.UrgencyMedium,
				confidence:    0.5,
				reasoning:     fmt.Sprintf("classification failed: %v", r),
				missingFields: []string{"classification_error"},
			}
		}
	}()

	text := c.Text()

	var llmRes *result
	if a.LLM != nil {
		if lc, err := a.LLM.Classify(ctx, text); err == nil {
			r := result{
				caseType:      model.CaseType(lc.CaseType),
				urgency:       model.Urgency(lc.Urgency),
				confidence:    lc.Confidence,
				reasoning:     lc.Reasoning,
				missingFields: lc.MissingFields,
			}
			llmRes = &r
		} else {
			a.Logger.Warn("classifier: llm classification failed", "error", err)
		}
	}

	if llmRes != nil && llmRes.confidence >= confidenceThreshold {
		return withMissingFields(*llmRes, c)
	}

	mlRes := a.classifyWithML(text)

	combined := a.combine(llmRes, mlRes)
	return withMissingFields(combined, c)
}

func (a *Agent) classifyWithML(text string) result {
	if a.ML == nil {
		return a.classifyWithRules(text)
	}

	features := Features{Text: text}

	caseType, caseConf, err := a.ML.ClassifyCaseType(features)
	if err != nil {
		a.Logger.Warn("classifier: ml case-type classification failed", "error", err)
		return a.classifyWithRules(text)
	}
	urgency, urgConf, err := a.ML.ClassifyUrgency(features)
	if err != nil {
		a.Logger.Warn("classifier: ml urgency classification failed", "error", err)
		return a.classifyWithRules(text)
	}

	return result{
		caseType:   model.CaseType(caseType),
		urgency:    model.Urgency(urgency),
		confidence: (caseConf + urgConf) / 2,
		reasoning:  fmt.Sprintf("ML classification (case_type: %.2f, urgency: %.2f)", caseConf, urgConf),
	}
}

func (a *Agent) classifyWithRules(text string) result {
	caseType, caseConf := bestKeywordMatch(text, caseTypeOrder, caseTypeKeywords)
	urgency, urgConf := bestUrgencyMatch(text, urgencyOrder, urgencyKeywords)

	return result{
		caseType:   caseType,
		urgency:    urgency,
		confidence: (caseConf + urgConf) / 2,
		reasoning:  fmt.Sprintf("rule-based classification (case_type: %.2f, urgency: %.2f)", caseConf, urgConf),
	}
}

func bestKeywordMatch(text string, order []model.CaseType, table map[model.CaseType][]string) (model.CaseType, float64) {
	best := order[0]
	bestScore := -1
	for _, ct := range order {
		score := countMatches(text, table[ct])
		if score > bestScore {
			bestScore = score
			best = ct
		}
	}
	return best, minFloat(0.8, float64(bestScore)/3)
}

func bestUrgencyMatch(text string, order []model.Urgency, table map[model.Urgency][]string) (model.Urgency, float64) {
	best := order[0]
	bestScore := -1
	for _, u := range order {
		score := countMatches(text, table[u])
		if score > bestScore {
			bestScore = score
			best = u
		}
	}
	return best, minFloat(0.8, float64(bestScore)/3)
}

func countMatches(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// combine applies the combination rule: whichever of LLM/ML is more
// confident by at least 0.1 wins outright; otherwise their fields union
// and their confidences average. llmRes is nil when no LLM stage ran.
func (a *Agent) combine(llmRes *result, mlRes result) result {
	if llmRes == nil {
		return mlRes
	}

	if llmRes.confidence >= mlRes.confidence+0.1 {
		return *llmRes
	}
	if mlRes.confidence >= llmRes.confidence+0.1 {
		return mlRes
	}

	caseType := mlRes.caseType
	urgency := mlRes.urgency
	if llmRes.confidence > mlRes.confidence {
		caseType = llmRes.caseType
		urgency = llmRes.urgency
	}

	return result{
		caseType:      caseType,
		urgency:       urgency,
		confidence:    (llmRes.confidence + mlRes.confidence) / 2,
		reasoning:     fmt.Sprintf("combined: LLM (%.2f) + ML (%.2f)", llmRes.confidence, mlRes.confidence),
		missingFields: unionStrings(llmRes.missingFields, mlRes.missingFields),
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// withMissingFields fills in r.missingFields from the case and its
// classified type, per the case-type field table: {title, description} always,
// plus type-specific additions.
func withMissingFields(r result, c model.Case) result {
	r.missingFields = identifyMissingFields(c, r.caseType)
	return r
}

func identifyMissingFields(c model.Case, caseType model.CaseType) []string {
	var missing []string
	if strings.TrimSpace(c.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(c.Description) == "" {
		missing = append(missing, "description")
	}

	switch caseType {
	case model.CaseTypeInsuranceClaim:
		if c.Amount == 0 {
			missing = append(missing, "claim_amount")
		}
		if c.CustomerID == "" {
			missing = append(missing, "customer_id")
		}
	case model.CaseTypeHealthcarePriorAuth:
		if c.CustomerID == "" {
			missing = append(missing, "patient_id")
		}
		if model.MetadataString(c.Metadata, "provider") == "" {
			missing = append(missing, "provider_information")
		}
	}

	return missing
}
