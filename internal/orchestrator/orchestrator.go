// Package orchestrator sequences the five triage agents for one case,
// applying per-call retry with exponential backoff, a per-call deadline
// on the agent's context, and a count-based circuit breaker, then
// assembles the FinalDecision.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/triagecore/internal/agents/classifier"
	"github.com/ashita-ai/triagecore/internal/agents/compliance"
	"github.com/ashita-ai/triagecore/internal/agents/decisionsupport"
	"github.com/ashita-ai/triagecore/internal/agents/riskscorer"
	"github.com/ashita-ai/triagecore/internal/agents/router"
	"github.com/ashita-ai/triagecore/internal/model"
	"github.com/ashita-ai/triagecore/internal/shared/errkind"
)

// ErrCircuitOpen is returned when the circuit breaker is open and a
// triage call fails fast without attempting any agent.
var ErrCircuitOpen = errors.New("orchestrator: circuit breaker open")

// agentWeights are the FinalDecision.OverallConfidence weights.
// Missing agents (nil fields on the Orchestrator) contribute zero weight.
const (
	weightClassifier      = 0.25
	weightRiskScorer      = 0.25
	weightRouter          = 0.20
	weightDecisionSupport = 0.15
	weightCompliance      = 0.15
)

// Config holds the orchestrator's tunables, mirroring internal/config.Config's
// orchestrator fields one-to-one.
type Config struct {
	MaxRetries              int
	TimeoutSeconds          time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// DefaultConfig returns the orchestrator's built-in retry/timeout/breaker
// defaults, used when a caller constructs an Orchestrator with a zero
// Config.
func DefaultConfig() Config {
	return Config{
		MaxRetries:              3,
		TimeoutSeconds:          30 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   60 * time.Second,
	}
}

// circuitState is the breaker's state machine: Closed, Open, HalfOpen.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// breaker is a count-based circuit breaker guarded by a mutex; its
// counters are updated under a single-writer discipline.
type breaker struct {
	mu           sync.Mutex
	state        circuitState
	failureCount int
	openedAt     time.Time
	cfg          Config
}

func newBreaker(cfg Config) *breaker {
	return &breaker{cfg: cfg}
}

// allow reports whether a new triage attempt may proceed, transitioning
// Open -> HalfOpen once the breaker's timeout has elapsed. Exactly one
// trial call is permitted per HalfOpen episode: the call that makes the
// Open -> HalfOpen transition is the trial; every other concurrent caller
// sees the breaker already in HalfOpen and is refused until that trial
// resolves via recordSuccess or recordFailure.
func (b *breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitOpen:
		if now.Sub(b.openedAt) >= b.cfg.CircuitBreakerTimeout {
			b.state = circuitHalfOpen
			return true
		}
		return false
	case circuitHalfOpen:
		return false
	default:
		return true
	}
}

// recordSuccess resets the breaker to Closed with a zeroed counter.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = circuitClosed
	b.failureCount = 0
}

// recordFailure increments failureCount (or reopens immediately from
// HalfOpen) and opens the breaker once the threshold is reached.
func (b *breaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitHalfOpen {
		b.state = circuitOpen
		b.openedAt = now
		return
	}

	b.failureCount++
	if b.failureCount >= b.cfg.CircuitBreakerThreshold {
		b.state = circuitOpen
		b.openedAt = now
	}
}

// Orchestrator sequences Classifier -> RiskScorer -> Router ->
// DecisionSupport -> Compliance for one case at a time, across
// potentially many concurrent runs.
type Orchestrator struct {
	Classifier      *classifier.Agent
	RiskScorer      *riskscorer.Agent
	Router          *router.Agent
	DecisionSupport *decisionsupport.Agent
	Compliance      *compliance.Agent

	cfg     Config
	breaker *breaker
	logger  *slog.Logger
	now     func() time.Time
}

// New builds an Orchestrator. Any agent field may be left nil by the
// caller after construction (via struct literal) to omit that stage;
// cfg's zero value is replaced with DefaultConfig().
func New(cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxRetries == 0 && cfg.TimeoutSeconds == 0 && cfg.CircuitBreakerThreshold == 0 && cfg.CircuitBreakerTimeout == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{cfg: cfg, breaker: newBreaker(cfg), logger: logger, now: time.Now}
}

// Triage runs one case through every configured agent in sequence,
// returning the assembled FinalDecision plus the raw per-agent results.
// Each stage is retried per Config; the whole run fails fast with
// ErrCircuitOpen if the breaker is open.
func (o *Orchestrator) Triage(ctx context.Context, c model.Case) (model.FinalDecision, []model.AgentResult, error) {
	start := o.now()

	if err := c.Validate(); err != nil {
		return model.FinalDecision{}, nil, errkind.New(errkind.Input, "orchestrator.Triage", err)
	}

	if !o.breaker.allow(start) {
		return model.FinalDecision{}, nil, errkind.New(errkind.CircuitOpen, "orchestrator.Triage", ErrCircuitOpen)
	}

	results, err := o.runStages(ctx, c)
	if err != nil {
		o.breaker.recordFailure(o.now())
		return model.FinalDecision{}, results, errkind.New(errkind.AgentHard, "orchestrator.runStages", err)
	}
	o.breaker.recordSuccess()

	decision := o.assemble(c, start, results)
	return decision, results, nil
}

// runStages calls each configured agent in dependency order, feeding
// each stage's typed output to the ones that need it.
func (o *Orchestrator) runStages(ctx context.Context, c model.Case) ([]model.AgentResult, error) {
	var results []model.AgentResult

	var classification model.ClassificationResult
	if o.Classifier != nil {
		res, err := o.call(ctx, func(ctx context.Context) (model.AgentResult, error) {
			return o.Classifier.Classify(ctx, c), nil
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
		classification = res.Result.(model.ClassificationResult)
	}

	var risk model.RiskScoreResult
	if o.RiskScorer != nil {
		res, err := o.call(ctx, func(ctx context.Context) (model.AgentResult, error) {
			return o.RiskScorer.Score(c, classification), nil
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
		risk = res.Result.(model.RiskScoreResult)
	}

	var routing model.RoutingResult
	var acquiredTeam string
	if o.Router != nil {
		res, err := o.call(ctx, func(ctx context.Context) (model.AgentResult, error) {
			return o.Router.Route(ctx, c, classification, risk), nil
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
		routing = res.Result.(model.RoutingResult)

		if o.Router.Catalogue.AcquireTeam(routing.RecommendedTeam) {
			acquiredTeam = routing.RecommendedTeam
		}
	}
	if acquiredTeam != "" {
		defer o.Router.Catalogue.ReleaseTeam(acquiredTeam)
	}

	if o.DecisionSupport != nil {
		res, err := o.call(ctx, func(ctx context.Context) (model.AgentResult, error) {
			return o.DecisionSupport.Support(ctx, c, classification, risk, routing), nil
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	if o.Compliance != nil {
		snapshot := append([]model.AgentResult(nil), results...)
		res, err := o.call(ctx, func(ctx context.Context) (model.AgentResult, error) {
			return o.Compliance.Process(ctx, c, c.CreatedAt, snapshot), nil
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	return results, nil
}

// call wraps one agent invocation with a per-call deadline and retries
// on timeout/generic failure, backing off 2^attempt seconds (1, 2, 4)
// between attempts. Errors whose message contains "circuit_breaker"
// propagate immediately without retry. Cancellation is checked at each
// retry boundary. The deadline reaches the agent only through the
// context passed to fn; fn runs to completion in the caller's
// goroutine and is not abandoned when the deadline passes.
func (o *Orchestrator) call(ctx context.Context, fn func(context.Context) (model.AgentResult, error)) (model.AgentResult, error) {
	var lastErr error

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.AgentResult{}, err
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.TimeoutSeconds)
		res, err := fn(callCtx)
		cancel()

		if err == nil {
			return res, nil
		}
		lastErr = err

		if strings.Contains(err.Error(), "circuit_breaker") {
			return model.AgentResult{}, err
		}
		if attempt == o.cfg.MaxRetries {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		select {
		case <-ctx.Done():
			return model.AgentResult{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return model.AgentResult{}, fmt.Errorf("orchestrator: agent call failed after %d attempts: %w", o.cfg.MaxRetries+1, lastErr)
}

// assemble builds the FinalDecision from whichever agent results ran.
func (o *Orchestrator) assemble(c model.Case, start time.Time, results []model.AgentResult) model.FinalDecision {
	decision := model.FinalDecision{
		CaseID:    c.ID,
		TriageID:  uuid.NewString(),
		CreatedAt: start,
	}

	var weightedSum, weightTotal float64

	for _, res := range results {
		switch res.AgentName {
		case model.AgentClassifier:
			cr := res.Result.(model.ClassificationResult)
			decision.CaseType = cr.CaseType
			decision.Urgency = cr.Urgency
			decision.MissingFields = cr.MissingFields
			weightedSum += weightClassifier * res.Confidence
			weightTotal += weightClassifier
		case model.AgentRiskScorer:
			rr := res.Result.(model.RiskScoreResult)
			decision.RiskLevel = rr.RiskLevel
			decision.RiskScore = rr.RiskScore
			weightedSum += weightRiskScorer * res.Confidence
			weightTotal += weightRiskScorer
		case model.AgentRouter:
			rt := res.Result.(model.RoutingResult)
			decision.RecommendedTeam = rt.RecommendedTeam
			decision.SLATargetHours = rt.SLATargetHours
			decision.EscalationFlag = rt.EscalationFlag
			weightedSum += weightRouter * res.Confidence
			weightTotal += weightRouter
		case model.AgentDecisionSupport:
			ds := res.Result.(model.DecisionSupportResult)
			decision.SuggestedActions = ds.SuggestedActions
			weightedSum += weightDecisionSupport * res.Confidence
			weightTotal += weightDecisionSupport
		case model.AgentCompliance:
			cp := res.Result.(model.ComplianceResult)
			decision.ComplianceIssues = cp.ComplianceIssues
			decision.PIIDetected = cp.PIIDetected
			weightedSum += weightCompliance * res.Confidence
			weightTotal += weightCompliance
		}
	}

	if weightTotal > 0 {
		decision.OverallConfidence = weightedSum / weightTotal
	}
	decision.ProcessingTimeMS = time.Since(start).Milliseconds()

	return decision
}
