package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"
)

// QdrantConfig configures the connection. One QdrantConfig drives all
// four fixed collections — each is created lazily with the configured
// dimension.
type QdrantConfig struct {
	URL    string
	APIKey string
	Dims   uint64
}

// Qdrant implements Store against a Qdrant server: connection parsing,
// HNSW collection setup, and cosine distance, generalized to the four
// fixed knowledge-base collections this domain needs.
type Qdrant struct {
	client   *qdrant.Client
	dims     uint64
	embedder Embedder
	logger   *slog.Logger

	ensureOnce sync.Map // collection name -> *sync.Once
}

func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vectorstore: invalid qdrant URL: %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vectorstore: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}
	return host, port, useTLS, nil
}

// NewQdrant connects to Qdrant over gRPC.
func NewQdrant(cfg QdrantConfig, embedder Embedder, logger *slog.Logger) (*Qdrant, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect to qdrant at %s:%d: %w", host, port, err)
	}
	return &Qdrant{client: client, dims: cfg.Dims, embedder: embedder, logger: logger}, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, collection string) error {
	onceVal, _ := q.ensureOnce.LoadOrStore(collection, &sync.Once{})
	once := onceVal.(*sync.Once)

	var ensureErr error
	once.Do(func() {
		exists, err := q.client.CollectionExists(ctx, collection)
		if err != nil {
			ensureErr = fmt.Errorf("vectorstore: check collection %q exists: %w", collection, err)
			return
		}
		if exists {
			return
		}
		m := uint64(16)
		efConstruct := uint64(128)
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		})
		if err != nil {
			ensureErr = fmt.Errorf("vectorstore: create collection %q: %w", collection, err)
			return
		}
		q.logger.Info("vectorstore: created qdrant collection", "collection", collection, "dims", q.dims)
	})
	return ensureErr
}

func (q *Qdrant) Add(ctx context.Context, collection, text string, metadata map[string]any, category string) (string, error) {
	if err := q.ensureCollection(ctx, collection); err != nil {
		return "", err
	}
	id := contentID(collection, category, text)
	vec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("vectorstore: embed: %w", err)
	}

	payload := map[string]any{"text": text, "category": category}
	for k, v := range metadata {
		payload["meta_"+k] = v
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(stableUint64(id)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vectorstore: qdrant upsert: %w", err)
	}
	return id, nil
}

func (q *Qdrant) Query(ctx context.Context, collection, text string, n int, category string, threshold float64) ([]Match, error) {
	if err := q.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}
	vec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}

	var filter *qdrant.Filter
	if category != "" {
		filter = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("category", category)}}
	}

	fetchLimit := uint64(n)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Filter:         filter,
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant query: %w", err)
	}

	matches := make([]Match, 0, len(scored))
	for _, sp := range scored {
		sim := float64(sp.Score)
		if sim < threshold {
			continue
		}
		fields := sp.GetPayload()
		text, _ := fields["text"].AsInterface().(string)
		meta := map[string]any{}
		for k, v := range fields {
			if k == "text" || k == "category" {
				continue
			}
			meta[k] = v.AsInterface()
		}
		matches = append(matches, Match{
			ID:         fmt.Sprintf("%d", sp.Id.GetNum()),
			Text:       text,
			Metadata:   meta,
			Similarity: sim,
		})
	}
	return matches, nil
}

func (q *Qdrant) DecisionSupport(ctx context.Context, caseContext, caseType string, n int) (map[string][]Match, error) {
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
	for _, qu := range queries {
		qu := qu
		g.Go(func() error {
			matches, err := q.Query(gctx, qu.collection, caseContext, n, qu.category, 0)
			if err != nil {
				return fmt.Errorf("vectorstore: decision support query %s: %w", qu.collection, err)
			}
			mu.Lock()
			result[qu.collection] = matches
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

// stableUint64 derives a numeric point ID from the first 16 hex chars
// of a content hash, since Qdrant numeric IDs must be uint64 and our
// content IDs are hex strings, not UUIDs.
func stableUint64(contentHash string) uint64 {
	var v uint64
	for i := 0; i < 16 && i < len(contentHash); i++ {
		c := contentHash[i]
		var digit uint64
		switch {
		case c >= '0' && c <= '9':
			digit = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			digit = uint64(c-'a') + 10
		default:
			continue
		}
		v = v*16 + digit
	}
	return v
}
