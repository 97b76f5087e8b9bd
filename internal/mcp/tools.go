package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/doctype"
)

var classifyTextTool = mcp.NewTool("classify_text",
	mcp.WithDescription("Classify OCR text into a document type using the reference index. Returns the label and confidence, or reports abstention."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Document text to classify"),
	),
	mcp.WithString("policy",
		mcp.Description("Confidence policy (default inverse_distance)"),
		mcp.Enum(string(classifier.PolicySoftmax), string(classifier.PolicyInverseDistance)),
	),
)

var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Search processed documents semantically. Returns matching files with their type and extracted entities."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10)"),
	),
	mcp.WithString("type_filter",
		mcp.Description("Only return documents of this type"),
		mcp.Enum(doctype.Names()...),
	),
)

var getRecordTool = mcp.NewTool("get_record",
	mcp.WithDescription("Get the stored record for a processed document: type, confidence, entities and OCR text."),
	mcp.WithString("filename",
		mcp.Required(),
		mcp.Description("Base name of the processed file, e.g. invoice-001.png"),
	),
)
