package extraction

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/llm"
)

// SystemPrompt is sent ahead of every extraction request.
const SystemPrompt = `You are an information extraction assistant. Return only a valid JSON object. Do not include explanations or additional text.`

const promptTemplate = `Given the following OCR-extracted text from a document of type '%s', extract the following fields:
%s

Document Text:
"""
%s
"""
`

// BuildPrompt renders the user message for one document.
func BuildPrompt(label doctype.Type, text string, fields []string) string {
	return fmt.Sprintf(promptTemplate, label.String(), strings.Join(fields, ", "), text)
}

// BuildMessages returns the system instruction followed by the document
// prompt.
func BuildMessages(label doctype.Type, text string, fields []string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: BuildPrompt(label, text, fields)},
	}
}
