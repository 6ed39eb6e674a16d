// Package riskscorer implements the Risk Scorer agent: deterministic
// feature extraction plus an ML/rule-based combination that produces a
// risk score, level, and SHAP-like feature contributions.
package riskscorer

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ashita-ai/triagecore/internal/model"
)

// Default risk level thresholds, overridable via Agent fields.
const (
	DefaultRiskThresholdHigh   = 0.7
	DefaultRiskThresholdMedium = 0.4
)

// Features is the fixed-order feature vector risk scoring runs against.
// A struct (not a map) keeps SHAP-like contribution naming deterministic.
type Features struct {
	TextLength         int
	WordCount          int
	CaseTypeInsurance  bool
	CaseTypeHealthcare bool
	CaseTypeBank       bool
	CaseTypeLegal      bool
	CaseTypeFraud      bool
	UrgencyCritical    bool
	UrgencyHigh        bool
	UrgencyMedium      bool
	UrgencyLow         bool
	Amount             float64
	AmountLog          float64
	HasAmount          bool
	HasCustomerID      bool
	MissingFieldsCount int

	FraudIndicators      int
	UrgencyIndicators    int
	ComplexityIndicators int
	FinancialIndicators  int
}

// Contribution is one SHAP-like feature contribution.
type Contribution struct {
	Feature    string
	Importance float64
	Direction  string // "positive" or "negative"
}

// MLScorer is the capability probe for a trained scoring artifact. A nil
// Agent.ML skips straight to rule-based scoring.
type MLScorer interface {
	Score(f Features) (p float64, err error)
	TopContributions(f Features, n int) ([]Contribution, error)
}

var riskPatterns = map[string][]string{
	"fraud_indicators": {
		"suspicious", "unusual", "unexpected", "anomaly", "irregular",
		"duplicate", "multiple claims", "recent policy", "high amount",
	},
	"urgency_indicators": {
		"emergency", "urgent", "immediate", "critical", "time-sensitive",
		"deadline", "escalation", "complaint",
	},
	"complexity_indicators": {
		"complex", "complicated", "multiple parties", "legal", "litigation",
		"dispute", "appeal", "review", "investigation",
	},
	"financial_indicators": {
		"high value", "large amount", "expensive", "costly", "premium",
		"deductible", "coverage", "policy limit",
	},
}

// Agent is the Risk Scorer. ML is optional; with it nil, only the
// rule-based score is produced.
type Agent struct {
	ML                MLScorer
	Logger            *slog.Logger
	RiskThresholdHigh   float64
	RiskThresholdMedium float64
}

// New builds a Risk Scorer agent with the default thresholds.
func New(ml MLScorer, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		ML:                  ml,
		Logger:              logger,
		RiskThresholdHigh:   DefaultRiskThresholdHigh,
		RiskThresholdMedium: DefaultRiskThresholdMedium,
	}
}

type result struct {
	score       float64
	level       model.RiskLevel
	confidence  float64
	rationale   string
	topFeatures []Contribution
	riskFactors []string
}

// Score extracts features from the case plus the Classifier's output and
// produces a RiskScoreResult. Never returns an error: failures collapse
// to the documented (0.5, medium, 0.5) safe default with a scoring_error
// risk factor.
func (a *Agent) Score(c model.Case, classification model.ClassificationResult) model.AgentResult {
	start := time.Now()
	res := a.score(c, classification)

	return model.AgentResult{
		AgentName:        model.AgentRiskScorer,
		Confidence:       res.confidence,
		Reasoning:        res.rationale,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Result: model.RiskScoreResult{
			RiskScore:   res.score,
			RiskLevel:   res.level,
			Confidence:  res.confidence,
			Rationale:   res.rationale,
			TopFeatures: toFeatureContributions(res.topFeatures),
			RiskFactors: res.riskFactors,
		},
	}
}

func (a *Agent) score(c model.Case, classification model.ClassificationResult) (out result) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("riskscorer: recovered from panic", "panic", r)
			out = result{
				score:       0.5,
				level:       model.RiskLevelMedium,
				confidence:  0.5,
				rationale:   fmt.Sprintf("risk scoring failed: %v", r),
				riskFactors: []string{"scoring_error"},
			}
		}
	}()

	features := a.extractFeatures(c, classification)

	var mlRes *result
	if a.ML != nil {
		if r, err := a.scoreWithML(features); err != nil {
			a.Logger.Warn("riskscorer: ml scoring failed", "error", err)
		} else {
			mlRes = &r
		}
	}

	ruleRes := a.scoreWithRules(c, classification, features)

	return a.combine(mlRes, ruleRes)
}

func (a *Agent) extractFeatures(c model.Case, classification model.ClassificationResult) Features {
	text := c.Text()

	f := Features{
		TextLength:         len(text),
		WordCount:          len(strings.Fields(text)),
		CaseTypeInsurance:  classification.CaseType == model.CaseTypeInsuranceClaim,
		CaseTypeHealthcare: classification.CaseType == model.CaseTypeHealthcarePriorAuth,
		CaseTypeBank:       classification.CaseType == model.CaseTypeBankDispute,
		CaseTypeLegal:      classification.CaseType == model.CaseTypeLegalIntake,
		CaseTypeFraud:      classification.CaseType == model.CaseTypeFraudReview,
		UrgencyCritical:    classification.Urgency == model.UrgencyCritical,
		UrgencyHigh:        classification.Urgency == model.UrgencyHigh,
		UrgencyMedium:      classification.Urgency == model.UrgencyMedium,
		UrgencyLow:         classification.Urgency == model.UrgencyLow,
		Amount:             c.Amount,
		AmountLog:          math.Log1p(c.Amount),
		HasAmount:          c.Amount != 0,
		HasCustomerID:      c.CustomerID != "",
		MissingFieldsCount: len(classification.MissingFields),
	}

	patterns := identifyRiskPatterns(text)
	f.FraudIndicators = len(patterns["fraud_indicators"])
	f.UrgencyIndicators = len(patterns["urgency_indicators"])
	f.ComplexityIndicators = len(patterns["complexity_indicators"])
	f.FinancialIndicators = len(patterns["financial_indicators"])

	return f
}

func identifyRiskPatterns(text string) map[string][]string {
	found := make(map[string][]string, len(riskPatterns))
	for patternType, keywords := range riskPatterns {
		var matched []string
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		found[patternType] = matched
	}
	return found
}

func (a *Agent) scoreWithML(f Features) (result, error) {
	p, err := a.ML.Score(f)
	if err != nil {
		return result{}, err
	}
	contributions, err := a.ML.TopContributions(f, 10)
	if err != nil {
		a.Logger.Warn("riskscorer: shap-like contributions unavailable", "error", err)
		contributions = nil
	}

	return result{
		score:       p,
		level:       a.scoreToRiskLevel(p),
		confidence:  0.9,
		rationale:   "ML-based risk scoring",
		topFeatures: contributions,
	}, nil
}

func (a *Agent) scoreWithRules(c model.Case, classification model.ClassificationResult, f Features) result {
	score := 0.0
	var factors []string

	switch classification.CaseType {
	case model.CaseTypeFraudReview:
		score += 0.4
		factors = append(factors, "fraud_review_case")
	case model.CaseTypeLegalIntake:
		score += 0.3
		factors = append(factors, "legal_case")
	case model.CaseTypeBankDispute:
		score += 0.25
		factors = append(factors, "bank_dispute")
	}

	switch classification.Urgency {
	case model.UrgencyCritical:
		score += 0.3
		factors = append(factors, "critical_urgency")
	case model.UrgencyHigh:
		score += 0.2
		factors = append(factors, "high_urgency")
	}

	if c.Amount > 10000 {
		score += 0.2
		factors = append(factors, "high_amount")
	} else if c.Amount > 5000 {
		score += 0.1
		factors = append(factors, "medium_amount")
	}

	if f.MissingFieldsCount > 3 {
		score += 0.15
		factors = append(factors, "many_missing_fields")
	} else if f.MissingFieldsCount > 0 {
		score += 0.05
		factors = append(factors, "missing_fields")
	}

	if f.FraudIndicators > 0 {
		score += 0.2
		factors = append(factors, "fraud_indicators")
	}
	if f.ComplexityIndicators > 0 {
		score += 0.1
		factors = append(factors, "complexity_indicators")
	}

	score = math.Min(1.0, score)

	contributions := make([]Contribution, 0, len(factors))
	for _, factor := range factors {
		contributions = append(contributions, Contribution{Feature: factor, Importance: 0.1, Direction: "positive"})
	}

	return result{
		score:       score,
		level:       a.scoreToRiskLevel(score),
		confidence:  0.7,
		rationale:   fmt.Sprintf("rule-based risk scoring based on %d risk factors", len(factors)),
		topFeatures: contributions,
		riskFactors: factors,
	}
}

// combine applies a fixed 0.7/0.3 ML/rule weighting when an ML
// score is present; otherwise the rule-based result stands alone.
func (a *Agent) combine(mlRes *result, ruleRes result) result {
	if mlRes == nil {
		return ruleRes
	}

	const mlWeight, ruleWeight = 0.7, 0.3

	combinedScore := mlRes.score*mlWeight + ruleRes.score*ruleWeight
	combinedConfidence := mlRes.confidence*mlWeight + ruleRes.confidence*ruleWeight

	topFeatures := mlRes.topFeatures
	if len(topFeatures) == 0 {
		topFeatures = ruleRes.topFeatures
	}

	return result{
		score:       combinedScore,
		level:       a.scoreToRiskLevel(combinedScore),
		confidence:  combinedConfidence,
		rationale:   fmt.Sprintf("combined ML (%.2f) and rule-based (%.2f) scoring", mlRes.score, ruleRes.score),
		topFeatures: topFeatures,
		riskFactors: unionStrings(mlRes.riskFactors, ruleRes.riskFactors),
	}
}

func (a *Agent) scoreToRiskLevel(score float64) model.RiskLevel {
	switch {
	case score >= a.RiskThresholdHigh:
		return model.RiskLevelHigh
	case score >= a.RiskThresholdMedium:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelLow
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

func toFeatureContributions(cs []Contribution) []model.FeatureContribution {
	out := make([]model.FeatureContribution, len(cs))
	for i, c := range cs {
		out[i] = model.FeatureContribution{Feature: c.Feature, Importance: c.Importance, Direction: c.Direction}
	}
	return out
}
