// Package audit is the tamper-evident hash chain every triage run
// appends an AuditEntry to. Chain linkage is SHA-256 over
// canonical-JSON-with-sorted-keys encoding, so the chain can be
// independently re-verified by anything that can parse JSON, not only
// this codebase.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/triagecore/internal/model"
)

// Retention windows per data class.
const (
	RetentionAuditLogs = 365 * 24 * time.Hour
	RetentionCaseData  = 2555 * 24 * time.Hour
	RetentionPIIData   = 90 * 24 * time.Hour
)

// ErrChainBroken is returned by Verify when an entry's current_hash
// doesn't match its recomputed value, or a link's previous_hash
// doesn't match the prior entry's current_hash.
var ErrChainBroken = errors.New("audit: chain integrity check failed")

// Store is the append-only contract a Chain writes through.
type Store interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	Tail(ctx context.Context) (model.AuditEntry, bool, error)
	Iterate(ctx context.Context, fn func(model.AuditEntry) error) error
}

// Chain is the hash-chained audit log. It serializes Append calls so
// the previous_hash used by one entry is always the current_hash of
// the one written immediately before it, matching the "tail pointer
// protected by a mutex" ordering guarantee.
type Chain struct {
	store Store

	mu         sync.Mutex
	tailHash   string
	tailLoaded bool
}

// NewChain wraps a Store. The tail hash is lazily loaded from the
// store on the first Append so construction never does I/O.
func NewChain(store Store) *Chain {
	return &Chain{store: store}
}

// Append builds and writes the next AuditEntry for caseID, chaining it
// to whatever entry was appended last. The caller-supplied fields
// (pii detection, agent summaries) are the entry's direct inputs; audit_id,
// timestamp, previous_hash, current_hash, and retention_deadline are
// all computed here.
func (c *Chain) Append(ctx context.Context, caseID string, piiDetected bool, piiTypes []string, summaries []model.AgentSummary, now time.Time) (model.AuditEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.tailLoaded {
		tail, ok, err := c.store.Tail(ctx)
		if err != nil {
			return model.AuditEntry{}, fmt.Errorf("audit: load tail: %w", err)
		}
		if ok {
			c.tailHash = tail.CurrentHash
		}
		c.tailLoaded = true
	}

	entry := model.AuditEntry{
		AuditID:           uuid.NewString(),
		Timestamp:         now,
		CaseID:            caseID,
		AgentSummaries:    summaries,
		PIIDetected:       piiDetected,
		PIITypes:          piiTypes,
		PreviousHash:      c.tailHash,
		RetentionDeadline: now.Add(retentionWindow(piiDetected)),
	}
	entry.CurrentHash = computeHash(entry)

	if err := c.store.Append(ctx, entry); err != nil {
		return model.AuditEntry{}, fmt.Errorf("audit: append entry: %w", err)
	}
	c.tailHash = entry.CurrentHash
	return entry, nil
}

// retentionWindow picks the shorter PII-data window over the
// general audit-log window whenever the entry carries detected PII,
// so an entry's deadline reflects its most restrictive data class.
func retentionWindow(piiDetected bool) time.Duration {
	if piiDetected {
		return RetentionPIIData
	}
	return RetentionAuditLogs
}

// computeHash is SHA-256 over canonical JSON (sorted keys, no
// whitespace) of the entry's fields. Go's encoding/json sorts
// map[string]any keys (unlike struct fields), so the canonical form is
// built as a map rather than marshaling the struct directly.
func computeHash(e model.AuditEntry) string {
	canonical := map[string]any{
		"case_id":         e.CaseID,
		"timestamp":       e.Timestamp.UTC().Format(time.RFC3339Nano),
		"audit_id":        e.AuditID,
		"pii_detected":    e.PIIDetected,
		"pii_types":       e.PIITypes,
		"agent_summaries": e.AgentSummaries,
		"previous_hash":   e.PreviousHash,
	}
	raw, err := json.Marshal(canonical)
	if err != nil {
		// Every field above is a plain value or slice thereof; marshal
		// cannot fail short of an out-of-memory condition.
		panic(fmt.Sprintf("audit: canonical marshal: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Verify walks the whole chain recomputing each entry's hash and
// checking linkage. It returns ErrChainBroken (wrapped with the
// offending audit ID) on the first mismatch.
func (c *Chain) Verify(ctx context.Context) error {
	prevHash := ""
	first := true
	return c.store.Iterate(ctx, func(e model.AuditEntry) error {
		if first {
			first = false
		} else if e.PreviousHash != prevHash {
			return fmt.Errorf("%w: entry %s previous_hash mismatch", ErrChainBroken, e.AuditID)
		}
		if computeHash(e) != e.CurrentHash {
			return fmt.Errorf("%w: entry %s current_hash mismatch", ErrChainBroken, e.AuditID)
		}
		prevHash = e.CurrentHash
		return nil
	})
}
