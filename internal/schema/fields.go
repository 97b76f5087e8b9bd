// Package schema maps document types to the entity fields the extractor
// is asked to fill in.
package schema

import "github.com/ziadkadry99/docintake/internal/doctype"

var fields = map[doctype.Type][]string{
	doctype.Specification:         {"brand name", "product"},
	doctype.Email:                 {"name", "subject", "receiver"},
	doctype.Advertisement:         {"brand name"},
	doctype.Handwritten:           {"subject"},
	doctype.ScientificReport:      {"topic", "year"},
	doctype.Budget:                {"total amount", "company"},
	doctype.ScientificPublication: {"topic", "key words"},
	doctype.Presentation:          {"author name", "place", "year"},
	doctype.FileFolder:            {"folder name"},
	doctype.Memo:                  {"date", "from", "subject"},
	doctype.Resume:                {"name", "years of experience", "area"},
	doctype.Invoice:               {"amount", "company", "description"},
	doctype.Letter:                {"date", "author", "recipient", "subject"},
	doctype.Questionnaire:         {"total number questions", "subject"},
	doctype.Form:                  {"subject"},
	doctype.NewsArticle:           {"topic", "key words"},
}

// FieldsFor returns the ordered field names expected for t. Unknown types
// yield an empty, non-nil slice. The result is a copy and safe to modify.
func FieldsFor(t doctype.Type) []string {
	f := fields[t]
	out := make([]string, len(f))
	copy(out, f)
	return out
}
