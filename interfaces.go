package triagecore

import "context"

// LLMClassifier is the capability probe for an LLM-backed
// classification step. When provided via WithLLMClassifier, it is tried
// first by the Classifier agent; a nil value (the default) skips
// straight to the ML/rule-based cascade.
type LLMClassifier interface {
	Classify(ctx context.Context, text string) (LLMClassification, error)
}

// LLMClassification is what an LLMClassifier returns.
type LLMClassification struct {
	CaseType      string
	Urgency       string
	Confidence    float64
	Reasoning     string
	MissingFields []string
}

// MLClassifier is the capability probe for a trained case-type/urgency
// classifier pair. When provided via WithMLClassifier, it runs whenever
// the LLM stage is absent or below its confidence threshold.
type MLClassifier interface {
	ClassifyCaseType(text string) (caseType string, confidence float64, err error)
	ClassifyUrgency(text string) (urgency string, confidence float64, err error)
}

// MLRiskScorer is the capability probe for a trained risk-scoring
// model. When provided via WithMLRiskScorer, the Risk Scorer agent
// combines its output with the rule-based score.
type MLRiskScorer interface {
	Score(features map[string]float64) (score float64, err error)
	TopContributions(features map[string]float64, n int) ([]RiskContribution, error)
}

// RiskContribution is one feature's signed contribution to a risk score.
type RiskContribution struct {
	Feature    string
	Importance float64
	Direction  string
}

// EventHook receives a notification after every completed triage run.
// Multiple hooks may be registered via multiple WithEventHook calls.
// Hook methods run in the calling goroutine's triage path; a slow hook
// slows that triage run, so hooks should return quickly or hand work
// off themselves.
type EventHook interface {
	OnTriageComplete(ctx context.Context, decision FinalDecision) error
}
