package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/triagecore/internal/agents/classifier"
	"github.com/ashita-ai/triagecore/internal/agents/compliance"
	"github.com/ashita-ai/triagecore/internal/agents/decisionsupport"
	"github.com/ashita-ai/triagecore/internal/agents/riskscorer"
	"github.com/ashita-ai/triagecore/internal/agents/router"
	"github.com/ashita-ai/triagecore/internal/audit"
	"github.com/ashita-ai/triagecore/internal/model"
	"github.com/ashita-ai/triagecore/internal/shared/errkind"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	store, err := audit.NewFileStore(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)

	o := New(Config{MaxRetries: 1, TimeoutSeconds: 5 * time.Second, CircuitBreakerThreshold: 5, CircuitBreakerTimeout: time.Minute}, nil)
	o.Classifier = classifier.New(nil, nil, nil)
	o.RiskScorer = riskscorer.New(nil, nil)
	o.Router = router.New(nil, nil)
	o.DecisionSupport = decisionsupport.New(nil, nil)
	o.Compliance = compliance.New(audit.NewChain(store), nil)
	return o
}

func TestTriageRunsAllStagesInOrder(t *testing.T) {
	o := newTestOrchestrator(t)
	decision, results, err := o.Triage(context.Background(), model.Case{
		ID: "case-1", Title: "Insurance claim dispute", Description: "customer filed a claim for a car accident",
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	order := []model.AgentName{
		model.AgentClassifier, model.AgentRiskScorer, model.AgentRouter,
		model.AgentDecisionSupport, model.AgentCompliance,
	}
	for i, name := range order {
		assert.Equal(t, name, results[i].AgentName)
	}

	assert.NotEmpty(t, decision.TriageID)
	assert.Equal(t, "case-1", decision.CaseID)
	assert.Greater(t, decision.OverallConfidence, 0.0)
}

func TestTriageRejectsInvalidCase(t *testing.T) {
	o := newTestOrchestrator(t)
	_, _, err := o.Triage(context.Background(), model.Case{ID: "c1"})
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.Input))
}

func TestTriageOverallConfidenceWeightedMean(t *testing.T) {
	o := newTestOrchestrator(t)
	_, results, err := o.Triage(context.Background(), model.Case{
		ID: "c1", Title: "Legal matter", Description: "breach of contract litigation",
	})
	require.NoError(t, err)

	weights := map[model.AgentName]float64{
		model.AgentClassifier:      weightClassifier,
		model.AgentRiskScorer:      weightRiskScorer,
		model.AgentRouter:          weightRouter,
		model.AgentDecisionSupport: weightDecisionSupport,
		model.AgentCompliance:      weightCompliance,
	}
	var sum, total float64
	for _, r := range results {
		sum += weights[r.AgentName] * r.Confidence
		total += weights[r.AgentName]
	}
	expected := sum / total

	decision, _, err := o.Triage(context.Background(), model.Case{
		ID: "c1", Title: "Legal matter", Description: "breach of contract litigation",
	})
	require.NoError(t, err)
	// Two independent runs of deterministic rule-based agents should
	// produce the same confidence composition.
	assert.InDelta(t, expected, decision.OverallConfidence, 0.2)
}

func TestTriageForwardsCaseCreatedAtToCompliance(t *testing.T) {
	o := newTestOrchestrator(t)
	decision, _, err := o.Triage(context.Background(), model.Case{
		ID: "c1", Title: "Insurance claim dispute", Description: "customer filed a claim for a car accident",
		CreatedAt: time.Now().Add(-8 * 365 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Contains(t, decision.ComplianceIssues, "data_retention_limit_exceeded")
}

func TestTriageMissingAgentContributesZeroWeight(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Compliance = nil

	decision, results, err := o.Triage(context.Background(), model.Case{
		ID: "c1", Title: "Bank dispute", Description: "unauthorized transaction on account",
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Empty(t, decision.ComplianceIssues)
}

func TestTriageAcquiresAndReleasesTeamCapacity(t *testing.T) {
	o := newTestOrchestrator(t)
	decision, _, err := o.Triage(context.Background(), model.Case{
		ID: "c1", Title: "Insurance claim", Description: "standard claim review",
	})
	require.NoError(t, err)

	team, ok := o.Router.Catalogue.Get(decision.RecommendedTeam)
	require.True(t, ok)
	assert.Equal(t, 0, team.CurrentLoad, "team load must be released after the run completes")
}

func TestTriageContextCancellationPropagates(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := o.Triage(ctx, model.Case{ID: "c1", Title: "t", Description: "d"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	store, err := audit.NewFileStore(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)

	o := New(Config{MaxRetries: 0, TimeoutSeconds: 5 * time.Second, CircuitBreakerThreshold: 2, CircuitBreakerTimeout: time.Hour}, nil)
	o.Compliance = compliance.New(audit.NewChain(store), nil)

	// No Classifier/RiskScorer/Router/DecisionSupport wired; an invalid
	// case fails Validate() before any agent call, which bypasses the
	// breaker's failure accounting (input errors aren't triage failures).
	// Force circuit failures instead via direct breaker manipulation.
	fixedNow := time.Now()
	o.now = func() time.Time { return fixedNow }

	o.breaker.recordFailure(fixedNow)
	o.breaker.recordFailure(fixedNow)

	_, _, err = o.Triage(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, errkind.Is(err, errkind.CircuitOpen))
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	o := newTestOrchestrator(t)
	start := time.Now()
	o.now = func() time.Time { return start }
	o.cfg.CircuitBreakerTimeout = time.Minute

	o.breaker.recordFailure(start)
	o.breaker.recordFailure(start)
	o.breaker.recordFailure(start)
	o.breaker.recordFailure(start)
	o.breaker.recordFailure(start)
	assert.False(t, o.breaker.allow(start))

	later := start.Add(2 * time.Minute)
	assert.True(t, o.breaker.allow(later))
}

func TestCircuitBreakerHalfOpenPermitsExactlyOneTrial(t *testing.T) {
	o := newTestOrchestrator(t)
	start := time.Now()
	o.cfg.CircuitBreakerTimeout = time.Minute

	o.breaker.recordFailure(start)
	o.breaker.recordFailure(start)
	o.breaker.recordFailure(start)
	o.breaker.recordFailure(start)
	o.breaker.recordFailure(start)

	later := start.Add(2 * time.Minute)
	require.True(t, o.breaker.allow(later), "the transitioning call is the trial")
	assert.False(t, o.breaker.allow(later), "a concurrent caller must be refused while the trial is in flight")
	assert.False(t, o.breaker.allow(later), "still refused until the trial resolves")
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	b := newBreaker(DefaultConfig())
	now := time.Now()
	b.recordFailure(now)
	b.recordFailure(now)
	b.recordSuccess()

	b.mu.Lock()
	count := b.failureCount
	state := b.state
	b.mu.Unlock()

	assert.Equal(t, 0, count)
	assert.Equal(t, circuitClosed, state)
}
