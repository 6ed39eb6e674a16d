// Package triagecore is the public entrypoint for embedding the case
// triage orchestration core in a host process.
//
// Host applications import this package to construct and run the
// pipeline without forking it:
//
//	app, err := triagecore.New(
//	    triagecore.WithVersion(version),
//	    triagecore.WithLogger(logger),
//	    triagecore.WithEventHook(myAuditSink{}),
//	)
//	if err != nil { ... }
//	go app.Run(ctx)
//	decision, outcomes, err := app.Submit(ctx, triagecore.Case{...})
//
// The import graph enforces a strict no-cycle rule: triagecore (root)
// imports internal/*, but internal/* never imports triagecore (root).
// Public types are standalone structs with no internal imports;
// conversion helpers live here because this is the only file that sees
// both sides of the boundary.
package triagecore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/triagecore/internal/agents/classifier"
	"github.com/ashita-ai/triagecore/internal/agents/compliance"
	"github.com/ashita-ai/triagecore/internal/agents/decisionsupport"
	"github.com/ashita-ai/triagecore/internal/agents/riskscorer"
	"github.com/ashita-ai/triagecore/internal/agents/router"
	"github.com/ashita-ai/triagecore/internal/audit"
	"github.com/ashita-ai/triagecore/internal/config"
	"github.com/ashita-ai/triagecore/internal/infra/cache"
	"github.com/ashita-ai/triagecore/internal/infra/queue"
	"github.com/ashita-ai/triagecore/internal/infra/ratelimit"
	"github.com/ashita-ai/triagecore/internal/model"
	"github.com/ashita-ai/triagecore/internal/orchestrator"
	"github.com/ashita-ai/triagecore/internal/policy"
	"github.com/ashita-ai/triagecore/internal/telemetry"
	"github.com/ashita-ai/triagecore/internal/vectorstore"
)

// batchProofQueueName and complianceRecheckQueueName are the two job
// kinds the core hands off to the background queue rather than running
// inline, per the queue package's own framing.
const (
	batchProofQueueName        = "audit_batch_proof"
	complianceRecheckQueueName = "compliance_recheck"
	batchProofInterval         = 15 * time.Minute
	batchProofWindow           = 200
	rateLimitWindow            = time.Minute
)

// App is the triage core's lifecycle. Construct with New(), run with
// Run(), submit cases with Submit(). App has no public fields — use
// New() options to configure it.
type App struct {
	cfg config.Config

	auditStore   *audit.FileStore
	auditChain   *audit.Chain
	policyClient *policy.Client
	watcher      *policy.Watcher
	vecStore     vectorstore.Store

	orch *orchestrator.Orchestrator

	cache   cache.Cache
	queue   queue.Queue
	limiter ratelimit.Limiter

	eventHooks   []EventHook
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New wires every subsystem — audit chain, policy client/watcher, vector
// knowledge base, the five agents, the orchestrator, and the
// cache/queue/rate-limit infra — and returns a ready-to-run App. It does
// NOT start any goroutines — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.policiesDir != "" {
		cfg.PoliciesDir = o.policiesDir
	}
	if o.policyEvaluator != "" {
		cfg.PolicyEvaluatorURL = o.policyEvaluator
	}
	if o.vectorStoreDir != "" {
		cfg.VectorStoreDir = o.vectorStoreDir
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("triagecore starting", "version", version)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Audit hash chain, file-backed.
	auditStore, err := audit.NewFileStore(cfg.AuditLogPath)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("audit store: %w", err)
	}
	auditChain := audit.NewChain(auditStore)

	// Policy evaluator client (HTTP) and local hot-reload watcher.
	policyClient := policy.NewClient(cfg.PolicyEvaluatorURL)
	watcher, err := policy.NewWatcher(cfg.PoliciesDir, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("policy watcher: %w", err)
	}

	// Vector knowledge base — always the local file-backed store with
	// the dependency-free hash embedder; no config field selects the
	// HTTP embedder or the Qdrant store.
	embedder := vectorstore.NewHashEmbedder(256)
	vecStore, err := vectorstore.NewLocal(cfg.VectorStoreDir, embedder)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("vector store: %w", err)
	}

	// Classifier agent, with optional LLM/ML capability probes adapted
	// from the public plain-typed interfaces to the agent package's own
	// struct-typed ones.
	var llmAdapter classifier.LLMClassifier
	if o.llmClassifier != nil {
		llmAdapter = &llmClassifierAdapter{llm: o.llmClassifier}
	}
	var mlClassAdapter classifier.MLClassifier
	if o.mlClassifier != nil {
		mlClassAdapter = &mlClassifierAdapter{ml: o.mlClassifier}
	}
	classifierAgent := classifier.New(llmAdapter, mlClassAdapter, logger)

	// Risk Scorer agent, with an optional ML capability probe.
	var mlRiskAdapter riskscorer.MLScorer
	if o.mlRiskScorer != nil {
		mlRiskAdapter = &mlRiskScorerAdapter{ml: o.mlRiskScorer}
	}
	riskScorerAgent := riskscorer.New(mlRiskAdapter, logger)
	riskScorerAgent.RiskThresholdHigh = cfg.RiskThresholdHigh
	riskScorerAgent.RiskThresholdMedium = cfg.RiskThresholdMedium

	// Router agent — the policy client satisfies router.PolicyEvaluator
	// directly (same method signature), no adapter needed.
	routerAgent := router.New(policyClient, logger)

	// Cross-cutting infra, always in-process (see wireInfra). The cache fronts Decision Support's
	// knowledge-base lookups and guards Submit against duplicate
	// resubmission of the same case; the queue defers compliance
	// re-checks and audit batch-proof generation rather than running
	// them inline; the limiter bounds per-customer triage throughput.
	memCache, memQueue, memLimiter, err := wireInfra(cfg, logger)
	if err != nil {
		_ = vecStore.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("infra: %w", err)
	}

	// Decision Support agent, backed by the vector knowledge base and
	// fronted by the shared cache.
	decisionSupportAgent := decisionsupport.New(vecStore, logger)
	decisionSupportAgent.Cache = memCache
	decisionSupportAgent.CacheTTL = cfg.DecisionKnowledgeCacheTTL

	// Compliance agent, appending to the shared audit chain.
	complianceAgent := compliance.New(auditChain, logger)

	orch := orchestrator.New(orchestrator.Config{
		MaxRetries:              cfg.MaxRetries,
		TimeoutSeconds:          cfg.TimeoutSeconds,
		CircuitBreakerThreshold: cfg.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   cfg.CircuitBreakerTimeout,
	}, logger)
	orch.Classifier = classifierAgent
	orch.RiskScorer = riskScorerAgent
	orch.Router = routerAgent
	orch.DecisionSupport = decisionSupportAgent
	orch.Compliance = complianceAgent

	return &App{
		cfg:          cfg,
		auditStore:   auditStore,
		auditChain:   auditChain,
		policyClient: policyClient,
		watcher:      watcher,
		vecStore:     vecStore,
		orch:         orch,
		cache:        memCache,
		queue:        memQueue,
		limiter:      memLimiter,
		eventHooks:   o.eventHooks,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// wireInfra builds the cache/queue/limiter, always in-memory: cfg.RedisURL
// is not consulted, and the Redis backends in internal/infra are not
// constructed here.
func wireInfra(_ config.Config, logger *slog.Logger) (cache.Cache, queue.Queue, ratelimit.Limiter, error) {
	logger.Info("infra: in-memory cache, queue, and rate limiter")
	return cache.NewMemory(time.Minute), queue.NewMemory(), ratelimit.NewMemory(), nil
}

// Run starts the policy watcher's hot-reload loop and a worker draining
// the deferred-job queue, then blocks until ctx is cancelled. On return,
// Shutdown is called automatically — callers should not call Shutdown
// separately.
func (a *App) Run(ctx context.Context) error {
	go a.watcher.Watch(ctx)
	go a.batchProofLoop(ctx)
	go a.queueWorkerLoop(ctx)

	<-ctx.Done()
	return a.Shutdown(context.Background())
}

// Shutdown releases every resource New() opened.
func (a *App) Shutdown(_ context.Context) error {
	a.logger.Info("triagecore shutting down")

	if err := a.limiter.Close(); err != nil {
		a.logger.Warn("rate limiter close failed", "error", err)
	}
	if err := a.queue.Close(); err != nil {
		a.logger.Warn("queue close failed", "error", err)
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("cache close failed", "error", err)
	}
	if err := a.vecStore.Close(); err != nil {
		a.logger.Warn("vector store close failed", "error", err)
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("triagecore stopped")
	return nil
}

// Submit runs one case through the orchestrator, fires registered event
// hooks, and returns the public FinalDecision plus the raw per-agent
// trace. A per-customer rate limit (TRIAGE_RATE_LIMIT_PER_MINUTE) is
// checked first; callers translating to HTTP decide what status code a
// false Allow becomes — that translation is outside this module. A case
// ID is then run through the cache's single-writer Idempotency guard
// (TRIAGE_SUBMISSION_IDEMPOTENCY_TTL): a resubmission of the same ID
// within the TTL window is rejected rather than re-triaged.
func (a *App) Submit(ctx context.Context, c Case) (FinalDecision, []AgentOutcome, error) {
	if c.CustomerID != "" {
		allowed, err := a.limiter.Allow(ctx, c.CustomerID, a.cfg.RateLimitPerMinute, rateLimitWindow)
		if err != nil {
			a.logger.Warn("rate limiter check failed (allowing through)", "error", err)
		} else if !allowed {
			return FinalDecision{}, nil, fmt.Errorf("triagecore: rate limit exceeded for customer %s", c.CustomerID)
		}
	}

	if c.ID != "" {
		first, err := a.cache.Idempotency(ctx, submissionIdempotencyKey(c.ID), a.cfg.SubmissionIdempotencyTTL)
		if err != nil {
			a.logger.Warn("idempotency check failed (allowing through)", "error", err)
		} else if !first {
			return FinalDecision{}, nil, fmt.Errorf("triagecore: case %s already submitted within the idempotency window", c.ID)
		}
	}

	internalCase := toInternalCase(c)

	decision, results, err := a.orch.Triage(ctx, internalCase)
	if err != nil {
		return FinalDecision{}, nil, err
	}

	if decision.OverallConfidence < a.cfg.ConfidenceThreshold {
		a.enqueueComplianceRecheck(ctx, decision.CaseID, decision.TriageID)
	}

	public := toPublicDecision(decision)
	outcomes := toPublicOutcomes(results)

	for _, hook := range a.eventHooks {
		if err := hook.OnTriageComplete(ctx, public); err != nil {
			a.logger.Warn("event hook OnTriageComplete failed", "error", err)
		}
	}

	return public, outcomes, nil
}

func submissionIdempotencyKey(caseID string) string {
	return "triagecore:submit:" + caseID
}

// enqueueComplianceRecheck hands a low-confidence decision's re-review
// off to the background queue instead of retrying inline — a single
// triage run's budget is already spent by the time this fires.
func (a *App) enqueueComplianceRecheck(ctx context.Context, caseID, triageID string) {
	if err := a.queue.Enqueue(ctx, complianceRecheckQueueName, queue.JSONMap{
		"case_id":   caseID,
		"triage_id": triageID,
	}, 1); err != nil {
		a.logger.Warn("compliance recheck enqueue failed", "error", err)
	}
}

// queueWorkerLoop drains compliance-recheck jobs. A recheck job
// currently amounts to an audit-trail note; a full re-triage would need
// the original Case body, which the queue does not carry to keep jobs
// small and serializable.
func (a *App) queueWorkerLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, ok, err := a.queue.Dequeue(ctx, complianceRecheckQueueName)
			if err != nil {
				a.logger.Warn("compliance recheck dequeue failed", "error", err)
				continue
			}
			if !ok {
				continue
			}
			a.logger.Info("compliance recheck flagged", "case_id", job["case_id"], "triage_id", job["triage_id"])
		}
	}
}

// batchProofLoop periodically builds a Merkle batch proof over the
// audit chain's tail and enqueues it for downstream verification.
func (a *App) batchProofLoop(ctx context.Context) {
	ticker := time.NewTicker(batchProofInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hashes, err := a.recentAuditHashes(ctx, batchProofWindow)
			if err != nil {
				a.logger.Warn("batch proof: read chain failed", "error", err)
				continue
			}
			if len(hashes) == 0 {
				continue
			}
			proof := audit.BuildBatchProof(hashes)
			if err := a.queue.Enqueue(ctx, batchProofQueueName, queue.JSONMap{
				"first_hash": proof.FirstHash,
				"last_hash":  proof.LastHash,
				"count":      proof.Count,
				"root":       proof.Root,
			}, 0); err != nil {
				a.logger.Warn("batch proof enqueue failed", "error", err)
				continue
			}
			a.logger.Info("audit batch proof built", "count", proof.Count, "root", proof.Root)
		}
	}
}

// recentAuditHashes walks the whole chain and keeps the last window
// current-hashes. A FileStore is an append-only flat file: this is the
// one full scan a batch proof needs rather than a dedicated windowed
// read path.
func (a *App) recentAuditHashes(ctx context.Context, window int) ([]string, error) {
	hashes := make([]string, 0, window)
	err := a.auditStore.Iterate(ctx, func(e model.AuditEntry) error {
		hashes = append(hashes, e.CurrentHash)
		if len(hashes) > window {
			hashes = hashes[1:]
		}
		return nil
	})
	return hashes, err
}

// ── Type converters ─────────────────────────────────────────────────

func toInternalCase(c Case) model.Case {
	attachments := make([]model.AttachmentRef, len(c.Attachments))
	for i, at := range c.Attachments {
		attachments[i] = model.AttachmentRef{Name: at.Name, ContentType: at.ContentType, SizeBytes: at.SizeBytes}
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return model.Case{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		CustomerID:  c.CustomerID,
		Amount:      c.Amount,
		Metadata:    c.Metadata,
		Attachments: attachments,
		CreatedAt:   createdAt,
	}
}

func toPublicDecision(d model.FinalDecision) FinalDecision {
	return FinalDecision{
		CaseID:            d.CaseID,
		TriageID:          d.TriageID,
		CaseType:          CaseType(d.CaseType),
		Urgency:           Urgency(d.Urgency),
		RiskLevel:         RiskLevel(d.RiskLevel),
		RiskScore:         d.RiskScore,
		RecommendedTeam:   d.RecommendedTeam,
		SLATargetHours:    d.SLATargetHours,
		EscalationFlag:    d.EscalationFlag,
		SuggestedActions:  d.SuggestedActions,
		MissingFields:     d.MissingFields,
		ComplianceIssues:  d.ComplianceIssues,
		PIIDetected:       d.PIIDetected,
		OverallConfidence: d.OverallConfidence,
		ProcessingTimeMS:  d.ProcessingTimeMS,
		CreatedAt:         d.CreatedAt,
	}
}

func toPublicOutcomes(results []model.AgentResult) []AgentOutcome {
	out := make([]AgentOutcome, len(results))
	for i, r := range results {
		out[i] = AgentOutcome{
			AgentName:        string(r.AgentName),
			Confidence:       r.Confidence,
			Reasoning:        r.Reasoning,
			ProcessingTimeMS: r.ProcessingTimeMS,
			Result:           r.Result,
		}
	}
	return out
}

// ── Adapters (defined here because this file imports both sides) ────

// llmClassifierAdapter wraps a public LLMClassifier to satisfy the
// classifier package's own LLMClassifier interface (same shape, just
// different package-qualified return type).
type llmClassifierAdapter struct {
	llm LLMClassifier
}

func (l *llmClassifierAdapter) Classify(ctx context.Context, text string) (classifier.LLMClassification, error) {
	out, err := l.llm.Classify(ctx, text)
	if err != nil {
		return classifier.LLMClassification{}, err
	}
	return classifier.LLMClassification{
		CaseType:      out.CaseType,
		Urgency:       out.Urgency,
		Confidence:    out.Confidence,
		Reasoning:     out.Reasoning,
		MissingFields: out.MissingFields,
	}, nil
}

// mlClassifierAdapter bridges the public MLClassifier (plain string
// input) to classifier.MLClassifier (classifier.Features input).
type mlClassifierAdapter struct {
	ml MLClassifier
}

func (m *mlClassifierAdapter) ClassifyCaseType(f classifier.Features) (string, float64, error) {
	return m.ml.ClassifyCaseType(f.Text)
}

func (m *mlClassifierAdapter) ClassifyUrgency(f classifier.Features) (string, float64, error) {
	return m.ml.ClassifyUrgency(f.Text)
}

// mlRiskScorerAdapter bridges the public MLRiskScorer (a plain
// map[string]float64) to riskscorer.MLScorer (the riskscorer.Features
// struct), converting field-by-field in both directions.
type mlRiskScorerAdapter struct {
	ml MLRiskScorer
}

func riskFeaturesToMap(f riskscorer.Features) map[string]float64 {
	b := func(v bool) float64 {
		if v {
			return 1
		}
		return 0
	}
	return map[string]float64{
		"text_length":           float64(f.TextLength),
		"word_count":            float64(f.WordCount),
		"case_type_insurance":   b(f.CaseTypeInsurance),
		"case_type_healthcare":  b(f.CaseTypeHealthcare),
		"case_type_bank":        b(f.CaseTypeBank),
		"case_type_legal":       b(f.CaseTypeLegal),
		"case_type_fraud":       b(f.CaseTypeFraud),
		"urgency_critical":      b(f.UrgencyCritical),
		"urgency_high":          b(f.UrgencyHigh),
		"urgency_medium":        b(f.UrgencyMedium),
		"urgency_low":           b(f.UrgencyLow),
		"amount":                f.Amount,
		"amount_log":            f.AmountLog,
		"has_amount":            b(f.HasAmount),
		"has_customer_id":       b(f.HasCustomerID),
		"missing_fields_count":  float64(f.MissingFieldsCount),
		"fraud_indicators":      float64(f.FraudIndicators),
		"urgency_indicators":    float64(f.UrgencyIndicators),
		"complexity_indicators": float64(f.ComplexityIndicators),
		"financial_indicators":  float64(f.FinancialIndicators),
	}
}

func (m *mlRiskScorerAdapter) Score(f riskscorer.Features) (float64, error) {
	return m.ml.Score(riskFeaturesToMap(f))
}

func (m *mlRiskScorerAdapter) TopContributions(f riskscorer.Features, n int) ([]riskscorer.Contribution, error) {
	contribs, err := m.ml.TopContributions(riskFeaturesToMap(f), n)
	if err != nil {
		return nil, err
	}
	out := make([]riskscorer.Contribution, len(contribs))
	for i, c := range contribs {
		out[i] = riskscorer.Contribution{Feature: c.Feature, Importance: c.Importance, Direction: c.Direction}
	}
	return out, nil
}
