// Package record holds the per-document aggregate handed to persistence.
package record

import (
	"github.com/ziadkadry99/docintake/internal/doctype"
)

// EntityPrefix is prepended to field names in flat metadata.
const EntityPrefix = "entity_"

// Metadata keys shared by every stored record.
const (
	KeyFilename   = "filename"
	KeyType       = "type"
	KeyConfidence = "confidence"
)

// ProcessingRecord is everything known about one processed document.
type ProcessingRecord struct {
	Filename   string
	Path       string
	Text       string
	Label      doctype.Type
	Confidence float64
	// Fields holds flattened values for every requested field, in
	// FieldOrder. Missing values are nil.
	Fields     map[string]any
	FieldOrder []string
}

// FlattenFields builds the flat field map for requested. Every requested
// name is present; absent values are nil. Keys not requested are dropped.
func FlattenFields(raw map[string]any, requested []string) map[string]any {
	out := make(map[string]any, len(requested))
	for _, name := range requested {
		out[name] = Flatten(raw[name])
	}
	return out
}

// New assembles a record from extraction output.
func New(filename, path, text string, label doctype.Type, confidence float64, raw map[string]any, requested []string) ProcessingRecord {
	order := make([]string, len(requested))
	copy(order, requested)
	return ProcessingRecord{
		Filename:   filename,
		Path:       path,
		Text:       text,
		Label:      label,
		Confidence: confidence,
		Fields:     FlattenFields(raw, requested),
		FieldOrder: order,
	}
}

// Metadata returns the flat metadata stored alongside the text:
// filename, type, confidence, and one entity_<field> key per field.
func (r ProcessingRecord) Metadata() map[string]any {
	md := make(map[string]any, len(r.Fields)+3)
	md[KeyFilename] = r.Filename
	md[KeyType] = r.Label.String()
	md[KeyConfidence] = r.Confidence
	for k, v := range r.Fields {
		md[EntityPrefix+k] = v
	}
	return md
}

// Entities returns the fields as an ordered list of name/value pairs.
func (r ProcessingRecord) Entities() []Entity {
	out := make([]Entity, 0, len(r.FieldOrder))
	for _, name := range r.FieldOrder {
		out = append(out, Entity{Name: name, Value: r.Fields[name]})
	}
	return out
}

// Entity is one named field value.
type Entity struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
