package triagecore

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger           *slog.Logger
	version          string
	policiesDir      string
	policyEvaluator  string
	vectorStoreDir   string
	llmClassifier    LLMClassifier
	mlClassifier     MLClassifier
	mlRiskScorer     MLRiskScorer
	eventHooks       []EventHook
}

// WithLogger sets the structured logger for the App. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithPoliciesDir overrides the policy hot-reload directory from config
// (TRIAGE_POLICIES_DIR env var).
func WithPoliciesDir(dir string) Option {
	return func(o *resolvedOptions) { o.policiesDir = dir }
}

// WithPolicyEvaluatorURL overrides the policy evaluator base URL from
// config (TRIAGE_POLICY_EVALUATOR_URL env var).
func WithPolicyEvaluatorURL(url string) Option {
	return func(o *resolvedOptions) { o.policyEvaluator = url }
}

// WithVectorStoreDir overrides the local knowledge-base directory from
// config (TRIAGE_VECTOR_STORE_DIR env var).
func WithVectorStoreDir(dir string) Option {
	return func(o *resolvedOptions) { o.vectorStoreDir = dir }
}

// WithLLMClassifier plugs an LLM-backed classification step into the
// Classifier agent's cascade.
func WithLLMClassifier(llm LLMClassifier) Option {
	return func(o *resolvedOptions) { o.llmClassifier = llm }
}

// WithMLClassifier plugs a trained case-type/urgency classifier pair
// into the Classifier agent's cascade.
func WithMLClassifier(ml MLClassifier) Option {
	return func(o *resolvedOptions) { o.mlClassifier = ml }
}

// WithMLRiskScorer plugs a trained risk-scoring model into the Risk
// Scorer agent's combination step.
func WithMLRiskScorer(ml MLRiskScorer) Option {
	return func(o *resolvedOptions) { o.mlRiskScorer = ml }
}

// WithEventHook registers an event hook to receive a notification after
// every completed triage run. Multiple hooks may be registered; all
// registered hooks are called for every run.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}
