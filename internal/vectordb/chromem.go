package vectordb

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/docintake/internal/embeddings"
	"github.com/ziadkadry99/docintake/internal/record"
)

const collectionName = "documents"

// ChromemStore implements RecordStore using chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	// mu serializes writers so that an upsert is observed whole.
	mu sync.Mutex
}

// NewChromemStore creates an in-memory store.
func NewChromemStore(embedder embeddings.Embedder) (*ChromemStore, error) {
	return newStore(chromem.NewDB(), embedder)
}

// OpenChromemStore opens, or creates, a store persisted under dir. Each
// record is written to its own file as it is upserted.
func OpenChromemStore(dir string, embedder embeddings.Embedder) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, fmt.Errorf("open record store %s: %w", dir, err)
	}
	return newStore(db, embedder)
}

func newStore(db *chromem.DB, embedder embeddings.Embedder) (*ChromemStore, error) {
	col, err := db.GetOrCreateCollection(collectionName, nil, embeddings.ToChromemFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemStore{db: db, collection: col}, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, key, text string, metadata map[string]any) error {
	if key == "" {
		return fmt.Errorf("upsert: empty key")
	}
	doc := chromem.Document{
		ID:       key,
		Content:  text,
		Metadata: FlattenMetadata(metadata),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// AddDocument replaces an existing document with the same ID.
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("upsert %q: %w", key, err)
	}
	return nil
}

func (s *ChromemStore) Get(ctx context.Context, key string) (Record, error) {
	doc, err := s.collection.GetByID(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return Record{Key: doc.ID, Text: doc.Content, Metadata: doc.Metadata}, nil
}

func (s *ChromemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Delete(ctx, nil, nil, key)
}

func (s *ChromemStore) Search(ctx context.Context, query string, limit int, filter *SearchFilter) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	where := buildWhereClause(filter)

	// chromem-go requires nResults <= number of candidate documents.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	limit = min(limit, count)

	// Filtered queries clamp to the number of matching records.
	results, err := s.collection.Query(ctx, query, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Record:     Record{Key: r.ID, Text: r.Content, Metadata: r.Metadata},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

// FlattenMetadata converts primitive metadata into chromem's string map.
// nil becomes the empty string; numbers use their shortest form.
func FlattenMetadata(md map[string]any) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		switch t := record.Flatten(v).(type) {
		case nil:
			out[k] = ""
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			out[k] = record.Stringify(t)
		}
	}
	return out
}

func buildWhereClause(filter *SearchFilter) map[string]string {
	if filter == nil || filter.Type == "" {
		return nil
	}
	return map[string]string{record.KeyType: filter.Type}
}
