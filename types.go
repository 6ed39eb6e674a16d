// Package triagecore is the public entrypoint for embedding the case
// triage orchestration core in a host process.
//
// The import graph enforces a strict no-cycle rule: triagecore (root)
// imports internal/*, but internal/* never imports triagecore (root).
// Public types below are standalone structs with no internal imports;
// conversion helpers live in triagecore.go, the one file that sees
// both sides of the boundary.
package triagecore

import "time"

// CaseType is the public mirror of model.CaseType, re-declared here so
// callers embedding this module never need to import internal/model.
type CaseType string

const (
	CaseTypeInsuranceClaim      CaseType = "insurance_claim"
	CaseTypeHealthcarePriorAuth CaseType = "healthcare_prior_auth"
	CaseTypeBankDispute         CaseType = "bank_dispute"
	CaseTypeLegalIntake         CaseType = "legal_intake"
	CaseTypeFraudReview         CaseType = "fraud_review"
)

// Urgency is the public mirror of model.Urgency.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// RiskLevel is the public mirror of model.RiskLevel.
type RiskLevel string

const (
	RiskLevelLow     RiskLevel = "low"
	RiskLevelMedium  RiskLevel = "medium"
	RiskLevelHigh    RiskLevel = "high"
	RiskLevelExtreme RiskLevel = "extreme"
)

// Attachment describes a file attached to a case without carrying its
// bytes.
type Attachment struct {
	Name        string
	ContentType string
	SizeBytes   int64
}

// Case is the public input to a triage run.
type Case struct {
	ID          string
	Title       string
	Description string
	CustomerID  string
	Amount      float64
	Metadata    map[string]any
	Attachments []Attachment

	// CreatedAt is when the caller first accepted this case. Zero means
	// "use the time Submit is called" — set it explicitly when replaying
	// or backfilling older cases so retention checks see their true age.
	CreatedAt time.Time
}

// FinalDecision is the public result of one triage run — a curated
// view of internal/model.FinalDecision.
type FinalDecision struct {
	CaseID            string
	TriageID          string
	CaseType          CaseType
	Urgency           Urgency
	RiskLevel         RiskLevel
	RiskScore         float64
	RecommendedTeam   string
	SLATargetHours    int
	EscalationFlag    bool
	SuggestedActions  []string
	MissingFields     []string
	ComplianceIssues  []string
	PIIDetected       bool
	OverallConfidence float64
	ProcessingTimeMS  int64
	CreatedAt         time.Time
}

// AgentOutcome is one agent's raw result, exposed for callers that want
// the full per-agent trace rather than just the FinalDecision.
type AgentOutcome struct {
	AgentName        string
	Confidence       float64
	Reasoning        string
	ProcessingTimeMS int64
	Result           any
}
