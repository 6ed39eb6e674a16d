// Package model holds the domain types shared by every agent and the
// orchestrator: the case under triage, the per-agent result structs, the
// team catalogue, and the audit/decision types that tie them together.
package model

import (
	"errors"
	"strings"
	"time"
)

// CaseType is one of the five domain tags a case can be classified into.
type CaseType string

const (
	CaseTypeInsuranceClaim     CaseType = "insurance_claim"
	CaseTypeHealthcarePriorAuth CaseType = "healthcare_prior_auth"
	CaseTypeBankDispute        CaseType = "bank_dispute"
	CaseTypeLegalIntake        CaseType = "legal_intake"
	CaseTypeFraudReview        CaseType = "fraud_review"
)

// Urgency is the time-sensitivity of a case.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// RiskLevel is the coarse risk bucket derived from a RiskScoreResult.
//
// Extreme is accepted wherever a RiskLevel is consumed (e.g. supplied by
// upstream enrichment in Case.Metadata) but the risk scorer itself never
// produces it — see internal/agents/riskscorer.
type RiskLevel string

const (
	RiskLevelLow     RiskLevel = "low"
	RiskLevelMedium  RiskLevel = "medium"
	RiskLevelHigh    RiskLevel = "high"
	RiskLevelExtreme RiskLevel = "extreme"
)

// riskLevelOrder gives RiskLevel a total order for capability comparisons
// (e.g. "can this team handle a risk this high").
var riskLevelOrder = map[RiskLevel]int{
	RiskLevelLow:     0,
	RiskLevelMedium:  1,
	RiskLevelHigh:    2,
	RiskLevelExtreme: 3,
}

// AtLeast reports whether r is at least as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskLevelOrder[r] >= riskLevelOrder[other]
}

// AttachmentRef describes a file attached to a case without carrying its
// bytes — upload handling itself is an external collaborator.
type AttachmentRef struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Case is the input to a triage run. The core never mutates it; it is
// owned by whichever boundary submitted it.
type Case struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	CustomerID  string         `json:"customer_id,omitempty"`
	Amount      float64        `json:"amount,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`

	// CreatedAt is when the case was first submitted, set by the
	// boundary that accepted it. Zero means unknown, which the
	// Compliance agent treats as "retention window not evaluable"
	// rather than as data that has aged out.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Validate enforces the boundary invariant: title and description must be
// non-empty after trimming. This is an Input error, never retried.
func (c Case) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrMissingTitle
	}
	if strings.TrimSpace(c.Description) == "" {
		return ErrMissingDescription
	}
	return nil
}

// ErrMissingTitle and ErrMissingDescription are the boundary-level input
// errors produced by Case.Validate.
var (
	ErrMissingTitle       = errors.New("model: title is required")
	ErrMissingDescription = errors.New("model: description is required")
)

// Text concatenates the case's free-text fields into a single lowercased
// string, the shared input every agent's text-based heuristics consume.
func (c Case) Text() string {
	parts := make([]string, 0, 2+len(c.Metadata))
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	for k, v := range c.Metadata {
		if s, ok := v.(string); ok {
			parts = append(parts, k+": "+s)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// MetadataString coerces a metadata value to a string, returning "" if the
// key is absent or the value isn't string-shaped.
func MetadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

// AgentName identifies one of the five pipeline agents.
type AgentName string

const (
	AgentClassifier      AgentName = "classifier"
	AgentRiskScorer      AgentName = "risk_scorer"
	AgentRouter          AgentName = "router"
	AgentDecisionSupport AgentName = "decision_support"
	AgentCompliance      AgentName = "compliance"
)

// AgentResult is the uniform envelope every agent returns, regardless of
// its component-specific Result payload.
type AgentResult struct {
	AgentName        AgentName     `json:"agent_name"`
	Confidence       float64       `json:"confidence"`
	Result           any           `json:"result"`
	Reasoning        string        `json:"reasoning"`
	ProcessingTimeMS int64         `json:"processing_time_ms"`
	Error            string        `json:"error,omitempty"`
}

// FinalDecision aggregates the per-agent outputs of one triage run.
type FinalDecision struct {
	CaseID            string    `json:"case_id"`
	TriageID          string    `json:"triage_id"`
	CaseType          CaseType  `json:"case_type"`
	Urgency           Urgency   `json:"urgency"`
	RiskLevel         RiskLevel `json:"risk_level"`
	RiskScore         float64   `json:"risk_score"`
	RecommendedTeam   string    `json:"recommended_team"`
	SLATargetHours    int       `json:"sla_target_hours"`
	EscalationFlag    bool      `json:"escalation_flag"`
	SuggestedActions  []string  `json:"suggested_actions"`
	MissingFields     []string  `json:"missing_fields"`
	ComplianceIssues  []string  `json:"compliance_issues"`
	PIIDetected       bool      `json:"pii_detected"`
	OverallConfidence float64   `json:"overall_confidence"`
	ProcessingTimeMS  int64     `json:"processing_time_ms"`
	CreatedAt         time.Time `json:"created_at"`
}
