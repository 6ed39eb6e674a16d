package decisionsupport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/triagecore/internal/infra/cache"
	"github.com/ashita-ai/triagecore/internal/model"
	"github.com/ashita-ai/triagecore/internal/vectorstore"
)

type fakeKB struct {
	results map[string][]vectorstore.Match
	err     error
	calls   *int
}

func (f fakeKB) Add(_ context.Context, _, _ string, _ map[string]any, _ string) (string, error) {
	return "", nil
}

func (f fakeKB) Query(_ context.Context, _, _ string, _ int, _ string, _ float64) ([]vectorstore.Match, error) {
	return nil, nil
}

func (f fakeKB) DecisionSupport(_ context.Context, _, _ string, _ int) (map[string][]vectorstore.Match, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.results, f.err
}

func (f fakeKB) Close() error { return nil }

func TestSupportHighRiskInsuranceClaimActions(t *testing.T) {
	a := New(nil, nil)
	res := a.Support(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"},
		model.ClassificationResult{CaseType: model.CaseTypeInsuranceClaim},
		model.RiskScoreResult{RiskLevel: model.RiskLevelHigh},
		model.RoutingResult{RecommendedTeam: "Tier-1"})
	out := res.Result.(model.DecisionSupportResult)

	assert.Contains(t, out.SuggestedActions, "Schedule fraud investigation")
	assert.Contains(t, out.SuggestedActions, "Document decision rationale")
}

func TestSupportActionsDeduplicated(t *testing.T) {
	a := New(nil, nil)
	res := a.Support(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"},
		model.ClassificationResult{CaseType: model.CaseTypeFraudReview},
		model.RiskScoreResult{RiskLevel: model.RiskLevelHigh},
		model.RoutingResult{RecommendedTeam: "Fraud-Review"})
	out := res.Result.(model.DecisionSupportResult)

	seen := map[string]bool{}
	for _, a := range out.SuggestedActions {
		require.False(t, seen[a], "duplicate action: %s", a)
		seen[a] = true
	}
}

func TestSupportTemplateRendersPlaceholders(t *testing.T) {
	a := New(nil, nil)
	res := a.Support(context.Background(), model.Case{ID: "case-42", CustomerID: "cust-1", Amount: 500, Title: "t", Description: "d"},
		model.ClassificationResult{CaseType: model.CaseTypeInsuranceClaim},
		model.RiskScoreResult{RiskLevel: model.RiskLevelLow},
		model.RoutingResult{RecommendedTeam: "Tier-2"})
	out := res.Result.(model.DecisionSupportResult)

	assert.Contains(t, out.TemplateResponse, "cust-1")
	assert.Contains(t, out.TemplateResponse, "case-42")
	assert.NotContains(t, out.TemplateResponse, "{customer_name}")
}

func TestSupportFallbackTemplateWhenNoneMatches(t *testing.T) {
	a := New(nil, nil)
	res := a.Support(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"},
		model.ClassificationResult{CaseType: model.CaseType("unknown_type")},
		model.RiskScoreResult{RiskLevel: model.RiskLevelLow},
		model.RoutingResult{RecommendedTeam: "Tier-2"})
	out := res.Result.(model.DecisionSupportResult)

	assert.Contains(t, out.TemplateResponse, "Thank you for submitting")
}

func TestSupportChecklistIncludesMissingFields(t *testing.T) {
	a := New(nil, nil)
	res := a.Support(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"},
		model.ClassificationResult{CaseType: model.CaseTypeInsuranceClaim, MissingFields: []string{"customer_id"}},
		model.RiskScoreResult{RiskLevel: model.RiskLevelLow},
		model.RoutingResult{RecommendedTeam: "Tier-2"})
	out := res.Result.(model.DecisionSupportResult)

	assert.Contains(t, out.Checklist, "Request missing customer_id")
}

func TestSupportKnowledgeSourcesFromKB(t *testing.T) {
	kb := fakeKB{results: map[string][]vectorstore.Match{
		vectorstore.CollectionKnowledgeBase: {{ID: "kb-1"}},
		vectorstore.CollectionPolicies:      {{ID: "pol-1"}},
	}}
	a := New(kb, nil)
	res := a.Support(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"},
		model.ClassificationResult{CaseType: model.CaseTypeInsuranceClaim},
		model.RiskScoreResult{RiskLevel: model.RiskLevelLow},
		model.RoutingResult{RecommendedTeam: "Tier-2"})
	out := res.Result.(model.DecisionSupportResult)

	assert.ElementsMatch(t, []string{"kb-1", "pol-1"}, out.KnowledgeSources)
}

func TestSupportKnowledgeRetrievalFailureIsNonFatal(t *testing.T) {
	kb := fakeKB{err: errors.New("qdrant unavailable")}
	a := New(kb, nil)
	res := a.Support(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"},
		model.ClassificationResult{CaseType: model.CaseTypeInsuranceClaim},
		model.RiskScoreResult{RiskLevel: model.RiskLevelLow},
		model.RoutingResult{RecommendedTeam: "Tier-2"})
	out := res.Result.(model.DecisionSupportResult)

	assert.Empty(t, out.KnowledgeSources)
	assert.Empty(t, res.Error)
}

func TestSupportConfidenceWeightedAverage(t *testing.T) {
	a := New(nil, nil)
	res := a.Support(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"},
		model.ClassificationResult{CaseType: model.CaseTypeInsuranceClaim, Confidence: 1.0},
		model.RiskScoreResult{RiskLevel: model.RiskLevelLow, Confidence: 1.0},
		model.RoutingResult{RecommendedTeam: "Tier-2", Confidence: 1.0})
	out := res.Result.(model.DecisionSupportResult)

	assert.InDelta(t, 1.0, out.Confidence, 0.001)
}

func TestRetrieveKnowledgeCachesAcrossCalls(t *testing.T) {
	calls := 0
	kb := fakeKB{results: map[string][]vectorstore.Match{
		vectorstore.CollectionKnowledgeBase: {{ID: "kb-1"}},
	}, calls: &calls}

	a := New(kb, nil)
	a.Cache = cache.NewMemory(time.Minute)
	defer a.Cache.Close()
	a.CacheTTL = time.Minute

	c := model.Case{ID: "c1", Title: "t", Description: "d"}
	classification := model.ClassificationResult{CaseType: model.CaseTypeInsuranceClaim}
	risk := model.RiskScoreResult{RiskLevel: model.RiskLevelLow}
	routing := model.RoutingResult{RecommendedTeam: "Tier-2"}

	first := a.Support(context.Background(), c, classification, risk, routing).Result.(model.DecisionSupportResult)
	second := a.Support(context.Background(), c, classification, risk, routing).Result.(model.DecisionSupportResult)

	assert.Equal(t, 1, calls, "the second lookup for the same case type and query must hit the cache")
	assert.ElementsMatch(t, []string{"kb-1"}, first.KnowledgeSources)
	assert.Equal(t, first.KnowledgeSources, second.KnowledgeSources)
}

func TestRetrieveKnowledgeCacheMissOnDifferentQuery(t *testing.T) {
	calls := 0
	kb := fakeKB{results: map[string][]vectorstore.Match{
		vectorstore.CollectionKnowledgeBase: {{ID: "kb-1"}},
	}, calls: &calls}

	a := New(kb, nil)
	a.Cache = cache.NewMemory(time.Minute)
	defer a.Cache.Close()

	classification := model.ClassificationResult{CaseType: model.CaseTypeInsuranceClaim}
	risk := model.RiskScoreResult{RiskLevel: model.RiskLevelLow}
	routing := model.RoutingResult{RecommendedTeam: "Tier-2"}

	a.Support(context.Background(), model.Case{ID: "c1", Title: "t", Description: "d"}, classification, risk, routing)
	a.Support(context.Background(), model.Case{ID: "c2", Title: "different", Description: "query"}, classification, risk, routing)

	assert.Equal(t, 2, calls, "distinct query text must not share a cache entry")
}

func TestSupportNeverPanics(t *testing.T) {
	a := New(nil, nil)
	require.NotPanics(t, func() {
		a.Support(context.Background(), model.Case{}, model.ClassificationResult{}, model.RiskScoreResult{}, model.RoutingResult{})
	})
}
