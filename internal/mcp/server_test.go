package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/record"
	"github.com/ziadkadry99/docintake/internal/vectordb"
)

// mockEmbedder implements embeddings.Embedder for testing.
type mockEmbedder struct{}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, t := range texts {
		result[i] = []float32{float32(len(t)), 1, 1}
	}
	return result, nil
}
func (m *mockEmbedder) Dimensions() int { return 3 }
func (m *mockEmbedder) Name() string    { return "mock" }

// mockClassifier labels every text as an invoice unless told to abstain.
type mockClassifier struct {
	abstain bool
	err     error
	policy  classifier.Policy
}

func (m *mockClassifier) ClassifyWith(_ context.Context, _ string, policy classifier.Policy) (classifier.Result, error) {
	m.policy = policy
	if m.err != nil {
		return classifier.Result{}, m.err
	}
	if m.abstain {
		return classifier.Result{Confidence: 0.25, Policy: policy}, nil
	}
	label := doctype.Invoice
	return classifier.Result{Label: &label, Confidence: 0.75, Policy: policy}, nil
}

func newStore(t *testing.T) *vectordb.ChromemStore {
	t.Helper()
	store, err := vectordb.NewChromemStore(&mockEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = store.Upsert(ctx, "inv.png", "INVOICE ACME", map[string]any{"type": "invoice", "confidence": 0.75, "entity_company": "ACME"})
	_ = store.Upsert(ctx, "memo.png", "MEMO to staff", map[string]any{"type": "memo", "confidence": 0.5})
	return store
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", result.Content[0])
	return ""
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		tool     mcp.Tool
		wantName string
	}{
		{classifyTextTool, "classify_text"},
		{searchDocumentsTool, "search_documents"},
		{getRecordTool, "get_record"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(&mockClassifier{}, newStore(t), nil, "")
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if srv.policy != classifier.PolicyInverseDistance {
		t.Errorf("default policy = %q", srv.policy)
	}
}

func TestHandleClassifyText(t *testing.T) {
	ctx := context.Background()

	t.Run("default policy", func(t *testing.T) {
		cls := &mockClassifier{}
		srv := NewServer(cls, newStore(t), nil, "")
		result, err := srv.handleClassifyText(ctx, call(map[string]any{"text": "INVOICE 42"}))
		if err != nil || result.IsError {
			t.Fatalf("unexpected failure: %v %v", err, result.Content)
		}
		out := text(t, result)
		if !strings.Contains(out, "Type: invoice") || !strings.Contains(out, "0.7500") {
			t.Errorf("output: %s", out)
		}
		if cls.policy != classifier.PolicyInverseDistance {
			t.Errorf("policy = %q", cls.policy)
		}
	})

	t.Run("explicit policy", func(t *testing.T) {
		cls := &mockClassifier{}
		srv := NewServer(cls, newStore(t), nil, "")
		_, _ = srv.handleClassifyText(ctx, call(map[string]any{"text": "x", "policy": "softmax"}))
		if cls.policy != classifier.PolicySoftmax {
			t.Errorf("policy = %q", cls.policy)
		}
	})

	t.Run("abstained", func(t *testing.T) {
		srv := NewServer(&mockClassifier{abstain: true}, newStore(t), nil, "")
		result, _ := srv.handleClassifyText(ctx, call(map[string]any{"text": "???"}))
		if result.IsError || !strings.HasPrefix(text(t, result), "Abstained") {
			t.Errorf("expected abstention text, got %v", result.Content)
		}
	})

	t.Run("errors", func(t *testing.T) {
		srv := NewServer(&mockClassifier{err: errors.New("embedder down")}, newStore(t), nil, "")
		for _, args := range []map[string]any{
			{},
			{"text": "  "},
			{"text": "x", "policy": "majority"},
			{"text": "x"},
		} {
			result, err := srv.handleClassifyText(ctx, call(args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Errorf("%v: expected tool error", args)
			}
		}
	})
}

func TestHandleSearchDocuments(t *testing.T) {
	srv := NewServer(&mockClassifier{}, newStore(t), nil, "")
	ctx := context.Background()

	t.Run("basic search", func(t *testing.T) {
		result, err := srv.handleSearchDocuments(ctx, call(map[string]any{"query": "invoice"}))
		if err != nil || result.IsError {
			t.Fatalf("unexpected failure: %v %v", err, result.Content)
		}
		if !strings.Contains(text(t, result), "Found 2 result(s)") {
			t.Errorf("output: %s", text(t, result))
		}
	})

	t.Run("type filter", func(t *testing.T) {
		result, _ := srv.handleSearchDocuments(ctx, call(map[string]any{"query": "x", "type_filter": "memo"}))
		out := text(t, result)
		if !strings.Contains(out, "File: memo.png") || strings.Contains(out, "inv.png") {
			t.Errorf("output: %s", out)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		result, _ := srv.handleSearchDocuments(ctx, call(map[string]any{}))
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})

	t.Run("empty store", func(t *testing.T) {
		empty, _ := vectordb.NewChromemStore(&mockEmbedder{})
		emptySrv := NewServer(&mockClassifier{}, empty, nil, "")
		result, _ := emptySrv.handleSearchDocuments(ctx, call(map[string]any{"query": "anything"}))
		if result.IsError {
			t.Error("empty results should not be an error")
		}
	})
}

func TestHandleGetRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("from sqlite", func(t *testing.T) {
		database, err := db.OpenMemory()
		if err != nil {
			t.Fatal(err)
		}
		defer database.Close()
		records := db.NewRecordStore(database)
		rec := record.New("letter.png", "", "Dear Sir", doctype.Letter, 0.6,
			map[string]any{"author": "Jane"}, []string{"date", "author"})
		_ = records.UpsertRecord(ctx, rec, "", "")

		srv := NewServer(&mockClassifier{}, newStore(t), records, "")
		result, _ := srv.handleGetRecord(ctx, call(map[string]any{"filename": "letter.png"}))
		out := text(t, result)
		for _, want := range []string{"Type: letter", "Confidence: 0.6000", "- date: (not found)", "- author: Jane", "Dear Sir"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q in:\n%s", want, out)
			}
		}

		result, _ = srv.handleGetRecord(ctx, call(map[string]any{"filename": "nope.png"}))
		if !result.IsError {
			t.Error("expected error for unknown record")
		}
	})

	t.Run("from vector store", func(t *testing.T) {
		srv := NewServer(&mockClassifier{}, newStore(t), nil, "")
		result, _ := srv.handleGetRecord(ctx, call(map[string]any{"filename": "inv.png"}))
		out := text(t, result)
		if !strings.Contains(out, "- company: ACME") || !strings.Contains(out, "Confidence: 0.75") {
			t.Errorf("output: %s", out)
		}

		result, _ = srv.handleGetRecord(ctx, call(map[string]any{"filename": "nope.png"}))
		if !result.IsError {
			t.Error("expected error for unknown record")
		}
	})

	t.Run("missing filename", func(t *testing.T) {
		srv := NewServer(&mockClassifier{}, newStore(t), nil, "")
		result, _ := srv.handleGetRecord(ctx, call(map[string]any{}))
		if !result.IsError {
			t.Error("expected error for missing filename")
		}
	})
}
