// Package compliance implements the Compliance agent: PII detection and
// redaction, compliance-issue checks, and audit-log generation via the
// hash chain in internal/audit.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ashita-ai/triagecore/internal/audit"
	"github.com/ashita-ai/triagecore/internal/model"
)

// PIIPattern is one entry in the ordered PII detection table.
type PIIPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// piiPatterns is checked in this exact order; order only affects which
// replacement token lands first when two patterns overlap the same text,
// it never changes the set of detected_types.
var piiPatterns = []PIIPattern{
	{"ssn", regexp.MustCompile(`(?i)\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{"credit_card", regexp.MustCompile(`(?i)\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), "[CC_REDACTED]"},
	{"phone", regexp.MustCompile(`(?i)\b\(?\d{3}\)?[\s-]?\d{3}[\s-]?\d{4}\b`), "[PHONE_REDACTED]"},
	{"email", regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{"address", regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\b`), "[ADDRESS_REDACTED]"},
	{"account_number", regexp.MustCompile(`\b\d{8,}\b`), "[ACCOUNT_REDACTED]"},
	{"date_of_birth", regexp.MustCompile(`(?i)\b(?:DOB|Date of Birth|Birth Date)[:\s]*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`), "[DOB_REDACTED]"},
}

// requiredFields are the case-type-specific fields a compliant case must
// carry. hasField reads customer_id, amount and description from the
// case's own attributes and every other field from its metadata.
var requiredFields = map[model.CaseType][]string{
	model.CaseTypeInsuranceClaim:      {"customer_id", "amount", "description"},
	model.CaseTypeHealthcarePriorAuth: {"patient_id", "provider", "treatment"},
	model.CaseTypeBankDispute:         {"account_number", "transaction_id", "amount"},
	model.CaseTypeLegalIntake:         {"client_name", "case_type", "description"},
}

// sensitiveKeywords flag cases that may require extra handling even
// without structured PII.
var sensitiveKeywords = []string{
	"confidential", "secret", "private", "internal", "restricted",
	"classified", "sensitive", "proprietary", "trade secret",
}

// RetentionLimit is how long case data may be retained before
// data_retention_limit_exceeded is raised once a case crosses the case-data retention window.
const RetentionLimit = audit.RetentionCaseData

// Agent is the Compliance agent. When Chain is non-nil, every Process
// call appends one AuditEntry to the tamper-evident hash chain; a nil
// Chain skips the audit step.
type Agent struct {
	Chain  *audit.Chain
	Logger *slog.Logger
	Now    func() time.Time
}

// New builds a Compliance agent writing through chain.
func New(chain *audit.Chain, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{Chain: chain, Logger: logger, Now: time.Now}
}

// Process runs PII detection/redaction, compliance checks, and appends
// an audit entry, given the upstream agents' results. Never returns an
// error: failures collapse to the documented safe default.
func (a *Agent) Process(ctx context.Context, c model.Case, createdAt time.Time, results []model.AgentResult) model.AgentResult {
	start := time.Now()
	res := a.process(ctx, c, createdAt, results)

	return model.AgentResult{
		AgentName:        model.AgentCompliance,
		Confidence:       res.Confidence,
		Reasoning:        res.Reasoning,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Result:           res,
	}
}

func (a *Agent) process(ctx context.Context, c model.Case, createdAt time.Time, results []model.AgentResult) (out model.ComplianceResult) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("compliance: recovered from panic", "panic", r)
			out = model.ComplianceResult{
				PIIDetected:      false,
				RedactedContent:  caseToMap(c),
				ComplianceIssues: []string{"compliance_processing_error"},
				Confidence:       0.5,
				Reasoning:        fmt.Sprintf("compliance processing failed: %v", r),
			}
		}
	}()

	now := a.now()

	detected, types, redacted := a.detectPII(c)
	issues := a.checkComplianceIssues(c, createdAt, now, results)
	confidence := calculateConfidence(detected, issues)
	reasoning := generateReasoning(detected, types, issues)

	summaries := make([]model.AgentSummary, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, model.AgentSummary{
			AgentName:        r.AgentName,
			Confidence:       r.Confidence,
			ProcessingTimeMS: r.ProcessingTimeMS,
		})
	}

	var entry model.AuditEntry
	if a.Chain != nil {
		var err error
		entry, err = a.Chain.Append(ctx, c.ID, detected, types, summaries, now)
		if err != nil {
			a.Logger.Error("compliance: audit append failed", "error", err)
			issues = append(issues, "audit_append_error")
		}
	}

	return model.ComplianceResult{
		PIIDetected:      detected,
		PIITypes:         types,
		RedactedContent:  redacted,
		Audit:            entry,
		ComplianceIssues: issues,
		Confidence:       confidence,
		Reasoning:        reasoning,
	}
}

func (a *Agent) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// detectPII extracts case text, checks every pattern, and returns the
// detected type names (in table order) plus a redacted copy of the case
// as a map. Only string-valued fields/metadata entries are redacted.
func (a *Agent) detectPII(c model.Case) (bool, []string, map[string]any) {
	text := extractText(c)

	var types []string
	redacted := caseToMap(c)

	for _, p := range piiPatterns {
		if p.Regex.MatchString(text) {
			types = append(types, p.Name)
			redactMap(redacted, p)
		}
	}

	return len(types) > 0, types, redacted
}

func extractText(c model.Case) string {
	var parts []string
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	if c.CustomerID != "" {
		parts = append(parts, c.CustomerID)
	}

	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := c.Metadata[k].(string); ok {
			parts = append(parts, k+": "+s)
		}
	}

	return strings.Join(parts, " ")
}

func caseToMap(c model.Case) map[string]any {
	m := map[string]any{
		"id":          c.ID,
		"title":       c.Title,
		"description": c.Description,
		"customer_id": c.CustomerID,
		"amount":      c.Amount,
	}
	if len(c.Metadata) > 0 {
		metadata := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			metadata[k] = v
		}
		m["metadata"] = metadata
	}
	return m
}

// redactMap applies one pattern's substitution to every string field at
// the top level plus every string-valued metadata entry. Non-string
// values, and the "id"/"amount" fields, are left untouched.
func redactMap(m map[string]any, p PIIPattern) {
	for _, field := range []string{"title", "description", "customer_id"} {
		if s, ok := m[field].(string); ok {
			m[field] = p.Regex.ReplaceAllString(s, p.Replacement)
		}
	}

	metadata, ok := m["metadata"].(map[string]any)
	if !ok {
		return
	}
	for k, v := range metadata {
		if s, ok := v.(string); ok {
			metadata[k] = p.Regex.ReplaceAllString(s, p.Replacement)
		}
	}
}

// checkComplianceIssues enumerates every compliance problem with the
// case: missing required fields for its classified type, sensitive
// keyword hits, low-confidence agent results, and data past its
// retention window.
func (a *Agent) checkComplianceIssues(c model.Case, createdAt, now time.Time, results []model.AgentResult) []string {
	var issues []string

	caseType := extractCaseType(results)
	for _, field := range requiredFields[caseType] {
		if !hasField(c, field) {
			issues = append(issues, "missing_required_field: "+field)
		}
	}

	text := strings.ToLower(extractText(c))
	for _, kw := range sensitiveKeywords {
		if strings.Contains(text, kw) {
			issues = append(issues, "sensitive_keyword_detected: "+kw)
		}
	}

	for _, r := range results {
		if r.Confidence < 0.7 {
			issues = append(issues, fmt.Sprintf("low_confidence_agent: %s (%.2f)", r.AgentName, r.Confidence))
		}
	}

	if !createdAt.IsZero() && now.Sub(createdAt) > RetentionLimit {
		issues = append(issues, "data_retention_limit_exceeded")
	}

	return issues
}

// extractCaseType pulls the classified case type out of the Classifier
// agent's result, defaulting to insurance_claim if it isn't present,
// mirroring the fallback in the original's required-field lookup.
func extractCaseType(results []model.AgentResult) model.CaseType {
	for _, r := range results {
		if r.AgentName != model.AgentClassifier {
			continue
		}
		if cr, ok := r.Result.(model.ClassificationResult); ok {
			return cr.CaseType
		}
	}
	return model.CaseTypeInsuranceClaim
}

// hasField checks presence of a required field against the case's
// top-level attributes and its metadata, by the field's own name.
func hasField(c model.Case, field string) bool {
	switch field {
	case "customer_id":
		return c.CustomerID != ""
	case "amount":
		return c.Amount != 0
	case "description":
		return strings.TrimSpace(c.Description) != ""
	default:
		return model.MetadataString(c.Metadata, field) != ""
	}
}

// calculateConfidence starts at 0.8, deducts 0.1 if any PII was
// detected and 0.05 per compliance issue (uncapped on the issue side,
// clipped to [0, 1] overall).
func calculateConfidence(piiDetected bool, issues []string) float64 {
	confidence := 0.8
	if piiDetected {
		confidence -= 0.1
	}
	confidence -= float64(len(issues)) * 0.05
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func generateReasoning(detected bool, types []string, issues []string) string {
	var parts []string

	if detected {
		parts = append(parts, "PII detected: "+strings.Join(types, ", "))
	} else {
		parts = append(parts, "No PII detected")
	}

	if len(issues) > 0 {
		parts = append(parts, fmt.Sprintf("Compliance issues found: %d", len(issues)))
		limit := len(issues)
		if limit > 3 {
			limit = 3
		}
		for _, issue := range issues[:limit] {
			parts = append(parts, "- "+issue)
		}
	} else {
		parts = append(parts, "No compliance issues detected")
	}

	return strings.Join(parts, ". ")
}
