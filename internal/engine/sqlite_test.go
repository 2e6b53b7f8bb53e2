package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/localforge/memorybank/internal/vector"
)

// newTestEngine opens an initialized engine over a temp database.
func newTestEngine(t *testing.T, opts Options) *SQLiteEngine {
	t.Helper()

	if opts.StorePath == "" {
		opts.StorePath = filepath.Join(t.TempDir(), "test.db")
	}
	eng := NewSQLiteEngine(opts, vector.NewMockEmbedder(64))
	if err := eng.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestOperationsRequireInitialize(t *testing.T) {
	eng := NewSQLiteEngine(Options{StorePath: filepath.Join(t.TempDir(), "test.db")}, vector.NewMockEmbedder(64))

	ctx := context.Background()
	if err := eng.IndexDocument(ctx, Document{ID: "a", Text: "text"}); err == nil {
		t.Error("Expected error indexing before Initialize")
	}
	if _, err := eng.Search(ctx, "query", SearchOptions{}); err == nil {
		t.Error("Expected error searching before Initialize")
	}
	if _, err := eng.Size(ctx); err == nil {
		t.Error("Expected error sizing before Initialize")
	}
}

func TestInitializeIdempotent(t *testing.T) {
	eng := newTestEngine(t, Options{})
	if err := eng.Initialize(context.Background()); err != nil {
		t.Fatalf("Second Initialize failed: %v", err)
	}
}

func TestIndexAndSearch(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	docs := []Document{
		{ID: "auth", Text: "Chose JWT with RS256 for service authentication"},
		{ID: "db", Text: "Moved session storage from Redis to Postgres"},
		{ID: "ci", Text: "Pinned the CI base image to avoid toolchain drift"},
	}
	for _, doc := range docs {
		if err := eng.IndexDocument(ctx, doc); err != nil {
			t.Fatalf("Failed to index %q: %v", doc.ID, err)
		}
	}

	size, err := eng.Size(ctx)
	if err != nil {
		t.Fatalf("Size error: %v", err)
	}
	if size != 3 {
		t.Fatalf("Expected 3 documents, got %d", size)
	}

	// An exact-text query embeds identically, so it must rank first.
	results, err := eng.Search(ctx, docs[1].Text, SearchOptions{Limit: 3})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Expected at least one result")
	}
	if results[0].Text != docs[1].Text {
		t.Errorf("Expected exact match to rank first, got %q", results[0].Text)
	}
	if results[0].Similarity < 0.999 {
		t.Errorf("Expected near-perfect similarity for exact match, got %f", results[0].Similarity)
	}
}

func TestSearchLimitAndThreshold(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	for _, doc := range []Document{
		{ID: "a", Text: "first stored text"},
		{ID: "b", Text: "second stored text"},
		{ID: "c", Text: "third stored text"},
	} {
		if err := eng.IndexDocument(ctx, doc); err != nil {
			t.Fatalf("Index error: %v", err)
		}
	}

	results, err := eng.Search(ctx, "first stored text", SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected limit to truncate to 1 result, got %d", len(results))
	}

	// A threshold just under 1.0 keeps only the exact match. Mock vectors
	// for unrelated texts sit far below that.
	results, err = eng.Search(ctx, "first stored text", SearchOptions{Limit: 10, MinSimilarity: 0.95})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected only the exact match above 0.95, got %d results", len(results))
	}
	if results[0].Text != "first stored text" {
		t.Errorf("Wrong result survived the threshold: %q", results[0].Text)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	err := eng.IndexDocument(ctx, Document{
		ID:   "meta",
		Text: "document with metadata",
		Metadata: map[string]any{
			"kind": "decision",
			"tags": []string{"auth", "jwt"},
		},
	})
	if err != nil {
		t.Fatalf("Index error: %v", err)
	}

	results, err := eng.Search(ctx, "document with metadata", SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	if results[0].Metadata["kind"] != "decision" {
		t.Errorf("Expected kind 'decision', got %v", results[0].Metadata["kind"])
	}
	tags, ok := results[0].Metadata["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Errorf("Expected 2 tags after round trip, got %v", results[0].Metadata["tags"])
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	eng := NewSQLiteEngine(Options{StorePath: path}, vector.NewMockEmbedder(64))
	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if err := eng.IndexDocument(ctx, Document{ID: "keep", Text: "survives restart"}); err != nil {
		t.Fatalf("Index error: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened := NewSQLiteEngine(Options{StorePath: path}, vector.NewMockEmbedder(64))
	if err := reopened.Initialize(ctx); err != nil {
		t.Fatalf("Reopen error: %v", err)
	}
	defer reopened.Close()

	size, err := reopened.Size(ctx)
	if err != nil {
		t.Fatalf("Size error: %v", err)
	}
	if size != 1 {
		t.Fatalf("Expected 1 document after reopen, got %d", size)
	}

	results, err := reopened.Search(ctx, "survives restart", SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || results[0].Text != "survives restart" {
		t.Errorf("Stored document not found after reopen: %v", results)
	}
}

func TestIndexValidation(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	if err := eng.IndexDocument(ctx, Document{ID: "a"}); err == nil {
		t.Error("Expected error for empty text")
	}
	if err := eng.IndexDocument(ctx, Document{Text: "no id"}); err == nil {
		t.Error("Expected error for empty id")
	}

	size, _ := eng.Size(ctx)
	if size != 0 {
		t.Errorf("Invalid documents should not be stored, size %d", size)
	}
}

func TestExactDedupe(t *testing.T) {
	eng := newTestEngine(t, Options{DedupeExact: true})
	ctx := context.Background()

	if err := eng.IndexDocument(ctx, Document{ID: "a", Text: "same text"}); err != nil {
		t.Fatalf("Index error: %v", err)
	}
	// Identical text under a different id is silently skipped.
	if err := eng.IndexDocument(ctx, Document{ID: "b", Text: "same text"}); err != nil {
		t.Fatalf("Duplicate index should not error: %v", err)
	}

	size, _ := eng.Size(ctx)
	if size != 1 {
		t.Errorf("Expected exact duplicate to be skipped, size %d", size)
	}
}

func TestSameIDReplaces(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	if err := eng.IndexDocument(ctx, Document{ID: "a", Text: "original"}); err != nil {
		t.Fatalf("Index error: %v", err)
	}
	if err := eng.IndexDocument(ctx, Document{ID: "a", Text: "rewritten"}); err != nil {
		t.Fatalf("Replace error: %v", err)
	}

	size, _ := eng.Size(ctx)
	if size != 1 {
		t.Fatalf("Expected replacement, not a second row, size %d", size)
	}

	results, err := eng.Search(ctx, "rewritten", SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || results[0].Text != "rewritten" {
		t.Errorf("Expected rewritten text, got %v", results)
	}
}

func TestFuzzyDedupe(t *testing.T) {
	eng := newTestEngine(t, Options{DedupeFuzzyThreshold: 0.99})
	ctx := context.Background()

	if err := eng.IndexDocument(ctx, Document{ID: "a", Text: "identical content"}); err != nil {
		t.Fatalf("Index error: %v", err)
	}
	// Same text embeds to the same vector, similarity 1.0, above threshold.
	if err := eng.IndexDocument(ctx, Document{ID: "b", Text: "identical content"}); err != nil {
		t.Fatalf("Near-duplicate index should not error: %v", err)
	}
	// A clearly different text passes.
	if err := eng.IndexDocument(ctx, Document{ID: "c", Text: "entirely unrelated subject matter"}); err != nil {
		t.Fatalf("Index error: %v", err)
	}

	size, _ := eng.Size(ctx)
	if size != 2 {
		t.Errorf("Expected near duplicate skipped and distinct text kept, size %d", size)
	}
}

func TestRemove(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	if err := eng.IndexDocument(ctx, Document{ID: "a", Text: "to be removed"}); err != nil {
		t.Fatalf("Index error: %v", err)
	}

	removed, err := eng.Remove(ctx, "a")
	if err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if !removed {
		t.Error("Expected removed=true for existing document")
	}

	removed, err = eng.Remove(ctx, "a")
	if err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if removed {
		t.Error("Expected removed=false for missing document")
	}

	size, _ := eng.Size(ctx)
	if size != 0 {
		t.Errorf("Expected empty index, size %d", size)
	}
}

func TestClear(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	for _, doc := range []Document{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "two"},
	} {
		if err := eng.IndexDocument(ctx, doc); err != nil {
			t.Fatalf("Index error: %v", err)
		}
	}

	cleared, err := eng.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if cleared != 2 {
		t.Errorf("Expected 2 cleared, got %d", cleared)
	}

	// Clearing an empty index reports zero.
	cleared, err = eng.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if cleared != 0 {
		t.Errorf("Expected 0 cleared on empty index, got %d", cleared)
	}
}

func TestIndexBatch(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	err := eng.IndexBatch(ctx, []Document{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
		{ID: "c", Text: "third"},
	})
	if err != nil {
		t.Fatalf("IndexBatch error: %v", err)
	}

	size, _ := eng.Size(ctx)
	if size != 3 {
		t.Errorf("Expected 3 documents, got %d", size)
	}
}

func TestIndexBatchRollsBackOnFailure(t *testing.T) {
	eng := newTestEngine(t, Options{})
	ctx := context.Background()

	err := eng.IndexBatch(ctx, []Document{
		{ID: "a", Text: "fine"},
		{ID: "b", Text: ""}, // invalid, fails mid-batch
		{ID: "c", Text: "never reached"},
	})
	if err == nil {
		t.Fatal("Expected batch error")
	}

	size, _ := eng.Size(ctx)
	if size != 0 {
		t.Errorf("Expected rollback to leave the index empty, size %d", size)
	}
}

func TestIndexCancelledContext(t *testing.T) {
	eng := newTestEngine(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := eng.IndexDocument(ctx, Document{ID: "a", Text: "text"}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestTemporalBoostPrefersRecent(t *testing.T) {
	eng := newTestEngine(t, Options{TemporalBoost: true})
	ctx := context.Background()

	old := time.Now().Add(-90 * 24 * time.Hour)
	if err := eng.IndexDocument(ctx, Document{
		ID: "old", Text: "shared identical wording",
		Metadata: map[string]any{"timestamp": old.Format(time.RFC3339)},
	}); err != nil {
		t.Fatalf("Index error: %v", err)
	}

	// Same text, so raw similarity ties; exact dedupe is off by default
	// here, and recency must break the tie.
	if err := eng.IndexDocument(ctx, Document{
		ID: "new", Text: "shared identical wording",
	}); err != nil {
		t.Fatalf("Index error: %v", err)
	}

	results, err := eng.Search(ctx, "different probe wording", SearchOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("Results not sorted by boosted score")
	}
}
