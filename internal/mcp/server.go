package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// TextClassifier labels raw text.
type TextClassifier interface {
	ClassifyWith(ctx context.Context, text string, policy classifier.Policy) (classifier.Result, error)
}

// RecordReader reads full records from the relational store.
type RecordReader interface {
	GetRecord(ctx context.Context, filename string) (*db.StoredRecord, error)
}

// Server wraps an MCP server that exposes document tools.
type Server struct {
	classifier TextClassifier
	store      vectordb.RecordStore
	records    RecordReader
	policy     classifier.Policy
	mcp        *server.MCPServer
}

// NewServer creates a new MCP server. records may be nil, in which case
// get_record answers from the vector store metadata. policy is the
// default for classify_text.
func NewServer(cls TextClassifier, store vectordb.RecordStore, records RecordReader, policy classifier.Policy) *Server {
	if policy == "" {
		policy = classifier.PolicyInverseDistance
	}
	s := &Server{
		classifier: cls,
		store:      store,
		records:    records,
		policy:     policy,
	}

	s.mcp = server.NewMCPServer(
		"docintake",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(classifyTextTool, s.handleClassifyText)
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(getRecordTool, s.handleGetRecord)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
