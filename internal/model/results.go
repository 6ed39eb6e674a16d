package model

// ClassificationResult is the Classifier agent's typed output.
type ClassificationResult struct {
	CaseType      CaseType `json:"case_type"`
	Urgency       Urgency  `json:"urgency"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	MissingFields []string `json:"missing_fields"`
}

// FeatureContribution is one entry in a RiskScoreResult's top-features
// list: a SHAP-like absolute contribution with a sign.
type FeatureContribution struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
	Direction  string  `json:"direction"` // "positive" or "negative"
}

// RiskScoreResult is the Risk Scorer agent's typed output.
type RiskScoreResult struct {
	RiskScore    float64                `json:"risk_score"`
	RiskLevel    RiskLevel              `json:"risk_level"`
	Confidence   float64                `json:"confidence"`
	Rationale    string                 `json:"rationale"`
	TopFeatures  []FeatureContribution  `json:"top_features"`
	RiskFactors  []string               `json:"risk_factors"`
}

// RoutingResult is the Router agent's typed output.
type RoutingResult struct {
	RecommendedTeam   string   `json:"recommended_team"`
	SLATargetHours    int      `json:"sla_target_hours"`
	EscalationFlag    bool     `json:"escalation_flag"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	PolicyApplied     string   `json:"policy_applied"`
	AlternativeRoutes []string `json:"alternative_routes"`
}

// DecisionSupportResult is the Decision Support agent's typed output.
type DecisionSupportResult struct {
	SuggestedActions []string `json:"suggested_actions"`
	TemplateResponse string   `json:"template_response"`
	Checklist        []string `json:"checklist"`
	KnowledgeSources []string `json:"knowledge_sources"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
}

// ComplianceResult is the Compliance agent's typed output.
type ComplianceResult struct {
	PIIDetected      bool           `json:"pii_detected"`
	PIITypes         []string       `json:"pii_types"`
	RedactedContent  map[string]any `json:"redacted_content"`
	Audit            AuditEntry     `json:"audit_log"`
	ComplianceIssues []string       `json:"compliance_issues"`
	Confidence       float64        `json:"confidence"`
	Reasoning        string         `json:"reasoning"`
}

// Team is one routing destination in the team catalogue.
type Team struct {
	Name            string
	CaseTypes       map[CaseType]bool
	MaxRiskLevel    RiskLevel
	Capacity        int
	CurrentLoad     int
	SLATargetHours  int
}

// AcceptsCaseType reports whether the team is configured to handle ct.
func (t Team) AcceptsCaseType(ct CaseType) bool {
	return t.CaseTypes[ct]
}

// LoadFraction returns current load as a fraction of capacity, in [0, +inf).
func (t Team) LoadFraction() float64 {
	if t.Capacity <= 0 {
		return 1
	}
	return float64(t.CurrentLoad) / float64(t.Capacity)
}
