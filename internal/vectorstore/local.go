package vectorstore

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

type record struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Metadata map[string]any  `json:"metadata"`
	Category string          `json:"category"`
	Vector   []float32       `json:"vector"`
}

// Local is an in-process flat index per collection, brute-force cosine
// similarity, persisted to dir as newline-delimited JSON. It satisfies
// the library-level "persists under a local directory" contract
// without requiring infrastructure, and is what every unit test in
// this module runs against.
type Local struct {
	dir      string
	embedder Embedder

	mu      sync.RWMutex
	records map[string][]record // collection -> records
}

// NewLocal opens (or creates) a local vector store rooted at dir, one
// file per collection loaded eagerly.
func NewLocal(dir string, embedder Embedder) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vectorstore: create store dir: %w", err)
	}
	l := &Local{dir: dir, embedder: embedder, records: make(map[string][]record)}
	for _, c := range Collections {
		recs, err := loadCollectionFile(l.collectionPath(c))
		if err != nil {
			return nil, err
		}
		l.records[c] = recs
	}
	return l, nil
}

func (l *Local) collectionPath(collection string) string {
	return filepath.Join(l.dir, collection+".ndjson")
}

func loadCollectionFile(path string) ([]record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w", path, err)
	}
	defer f.Close()

	var recs []record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("vectorstore: parse %s: %w", path, err)
		}
		recs = append(recs, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: scan %s: %w", path, err)
	}
	return recs, nil
}

// persist rewrites a collection's file. Called with l.mu held.
func (l *Local) persist(collection string) error {
	f, err := os.Create(l.collectionPath(collection))
	if err != nil {
		return fmt.Errorf("vectorstore: write %s: %w", collection, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range l.records[collection] {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("vectorstore: encode record: %w", err)
		}
	}
	return nil
}

// contentID hashes text+category+collection so re-adding identical
// content is idempotent and returns the same id.
func contentID(collection, category, text string) string {
	sum := sha256.Sum256([]byte(collection + "\x00" + category + "\x00" + text))
	return hex.EncodeToString(sum[:])[:32]
}

func (l *Local) Add(ctx context.Context, collection, text string, metadata map[string]any, category string) (string, error) {
	id := contentID(collection, category, text)
	vec, err := l.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("vectorstore: embed: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	recs := l.records[collection]
	for i, r := range recs {
		if r.ID == id {
			recs[i] = record{ID: id, Text: text, Metadata: metadata, Category: category, Vector: vec}
			l.records[collection] = recs
			return id, l.persist(collection)
		}
	}
	l.records[collection] = append(recs, record{ID: id, Text: text, Metadata: metadata, Category: category, Vector: vec})
	return id, l.persist(collection)
}

func (l *Local) Query(ctx context.Context, collection, text string, n int, category string, threshold float64) ([]Match, error) {
	vec, err := l.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}

	l.mu.RLock()
	recs := append([]record(nil), l.records[collection]...)
	l.mu.RUnlock()

	matches := make([]Match, 0, len(recs))
	for _, r := range recs {
		if category != "" && r.Category != category {
			continue
		}
		sim := cosineSimilarity(vec, r.Vector)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Text: r.Text, Metadata: r.Metadata, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if n >= 0 && len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

// DecisionSupport runs the knowledge-base/policies/sop fan-out
// concurrently with errgroup.
func (l *Local) DecisionSupport(ctx context.Context, caseContext, caseType string, n int) (map[string][]Match, error) {
	result := make(map[string][]Match, 3)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	queries := []struct {
		collection string
		category   string
	}{
		{CollectionKnowledgeBase, caseType},
		{CollectionPolicies, ""},
		{CollectionSOP, ""},
	}

	for _, q := range queries {
		q := q
		g.Go(func() error {
			matches, err := l.Query(gctx, q.collection, caseContext, n, q.category, 0)
			if err != nil {
				return fmt.Errorf("vectorstore: decision support query %s: %w", q.collection, err)
			}
			mu.Lock()
			result[q.collection] = matches
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Local) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
