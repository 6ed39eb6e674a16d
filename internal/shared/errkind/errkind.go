// Package errkind classifies orchestrator-level failures into the kinds
// that carry distinct propagation policy, so a boundary can translate
// them to the right response without string-matching error text.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the orchestrator's propagation
// policy distinguishes.
type Kind int

const (
	// Input is a malformed or empty required field. Reported to the
	// caller, never retried.
	Input Kind = iota
	// AgentSoft is any exception inside an agent that the agent itself
	// already collapsed to a documented safe default. The orchestrator
	// treats the step as successful but lowered-confidence.
	AgentSoft
	// AgentHard is retry-exhaustion or a result the agent flagged as
	// fatal. Propagates to the orchestrator and increments the circuit
	// breaker's failure counter.
	AgentHard
	// EvaluatorUnreachable means the policy evaluator call failed or
	// timed out. The caller falls through to built-in rules; this is
	// not counted as a hard failure.
	EvaluatorUnreachable
	// ResourceUnavailable means the chosen team was beyond capacity.
	// Routing falls back internally; never surfaced as an error.
	ResourceUnavailable
	// CircuitOpen means the breaker is open; the triage fails fast.
	CircuitOpen
	// AuditIntegrity is a hash computation or append failure. Fatal to
	// the triage that hit it.
	AuditIntegrity
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "input_error"
	case AgentSoft:
		return "agent_soft_failure"
	case AgentHard:
		return "agent_hard_failure"
	case EvaluatorUnreachable:
		return "evaluator_unreachable"
	case ResourceUnavailable:
		return "resource_unavailable"
	case CircuitOpen:
		return "circuit_open"
	case AuditIntegrity:
		return "audit_integrity_error"
	default:
		return "unknown"
	}
}

// Error wraps a cause with the Kind and the operation it occurred in.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for op with the given kind and cause.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
