package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/record"
	"github.com/ziadkadry99/docintake/internal/vectordb"
)

func (s *Server) handleClassifyText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	policy, err := classifier.ParsePolicy(request.GetString("policy", string(s.policy)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.classifier.ClassifyWith(ctx, text, policy)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("classification failed: %v", err)), nil
	}
	if res.Abstained() {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Abstained: best confidence %.3f is below the threshold (policy %s).",
			res.Confidence, res.Policy,
		)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Type: %s\nConfidence: %.4f\nPolicy: %s\n",
		res.Label.String(), res.Confidence, res.Policy)), nil
}

func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	var filter *vectordb.SearchFilter
	if typeStr := request.GetString("type_filter", ""); typeStr != "" {
		filter = &vectordb.SearchFilter{Type: typeStr}
	}

	results, err := s.store.Search(ctx, query, limit, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. Documents may not be processed yet. Run `docintake process <dir>` first."), nil
	}

	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

func (s *Server) handleGetRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := request.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: filename"), nil
	}

	if s.records != nil {
		rec, err := s.records.GetRecord(ctx, filename)
		if err != nil {
			if errors.Is(err, db.ErrRecordNotFound) {
				return notProcessed(filename), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to read record: %v", err)), nil
		}
		conf := strconv.FormatFloat(rec.Confidence, 'f', 4, 64)
		return mcp.NewToolResultText(formatRecord(rec.Filename, rec.Label.String(), conf, rec.Entities(), rec.Text)), nil
	}

	rec, err := s.store.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, vectordb.ErrNotFound) {
			return notProcessed(filename), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to read record: %v", err)), nil
	}
	var entities []record.Entity
	for k, v := range rec.Metadata {
		if name, ok := strings.CutPrefix(k, record.EntityPrefix); ok {
			entities = append(entities, record.Entity{Name: name, Value: v})
		}
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return mcp.NewToolResultText(formatRecord(rec.Key, rec.Metadata[record.KeyType], rec.Metadata[record.KeyConfidence], entities, rec.Text)), nil
}

func notProcessed(filename string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(
		"No record found for %q. Run `docintake process <dir>` to process it.", filename,
	))
}

// formatRecord renders a record for agent consumption.
func formatRecord(filename, docType, confidence string, entities []record.Entity, text string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\nType: %s\nConfidence: %s\n", filename, docType, confidence)
	if len(entities) > 0 {
		sb.WriteString("\nEntities:\n")
		for _, e := range entities {
			v := record.Stringify(e.Value)
			if e.Value == nil || v == "" {
				v = "(not found)"
			}
			fmt.Fprintf(&sb, "- %s: %s\n", e.Name, v)
		}
	}
	sb.WriteString("\nText:\n")
	sb.WriteString(text)
	sb.WriteString("\n")
	return sb.String()
}
