// Package doctype defines the closed set of document categories the
// classifier can predict.
package doctype

import (
	"fmt"
	"strings"
)

// Type is a document category. The numeric value is persisted in the
// index label list, so existing codes must never be renumbered.
type Type int

const (
	Specification         Type = 1
	Email                 Type = 2
	Advertisement         Type = 3
	Handwritten           Type = 4
	ScientificReport      Type = 5
	Budget                Type = 6
	ScientificPublication Type = 7
	Presentation          Type = 8
	FileFolder            Type = 9
	Memo                  Type = 10
	Resume                Type = 11
	Invoice               Type = 12
	Letter                Type = 13
	Questionnaire         Type = 14
	Form                  Type = 15
	NewsArticle           Type = 16
)

// SchemaVersion changes whenever the set of types or their codes change.
// A persisted index built under a different version must be rebuilt.
const SchemaVersion = 1

var names = map[Type]string{
	Specification:         "specification",
	Email:                 "email",
	Advertisement:         "advertisement",
	Handwritten:           "handwritten",
	ScientificReport:      "scientific_report",
	Budget:                "budget",
	ScientificPublication: "scientific_publication",
	Presentation:          "presentation",
	FileFolder:            "file_folder",
	Memo:                  "memo",
	Resume:                "resume",
	Invoice:               "invoice",
	Letter:                "letter",
	Questionnaire:         "questionnaire",
	Form:                  "form",
	NewsArticle:           "news_article",
}

var byName = func() map[string]Type {
	m := make(map[string]Type, len(names))
	for t, n := range names {
		m[n] = t
	}
	return m
}()

// All returns every type ordered by code.
func All() []Type {
	out := make([]Type, 0, len(names))
	for c := Specification; c <= NewsArticle; c++ {
		out = append(out, c)
	}
	return out
}

// Names returns every type name ordered by code.
func Names() []string {
	all := All()
	out := make([]string, len(all))
	for i, t := range all {
		out[i] = t.String()
	}
	return out
}

// Valid reports whether t is one of the known codes.
func (t Type) Valid() bool {
	_, ok := names[t]
	return ok
}

// Code returns the stable numeric discriminant.
func (t Type) Code() int { return int(t) }

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("doctype(%d)", int(t))
}

// Parse maps a label name to its Type. Matching is exact after trimming
// whitespace, mirroring the names used in training corpora.
func Parse(name string) (Type, error) {
	t, ok := byName[strings.TrimSpace(name)]
	if !ok {
		return 0, fmt.Errorf("unknown document type %q", name)
	}
	return t, nil
}

// FromCode decodes a persisted discriminant.
func FromCode(code int) (Type, error) {
	t := Type(code)
	if !t.Valid() {
		return 0, fmt.Errorf("unknown document type code %d", code)
	}
	return t, nil
}

// MarshalText encodes the type as its name.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid document type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
