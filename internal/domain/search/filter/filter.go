package filter

import (
	"strings"
	"unicode"
)

// ContentField is the payload field holding the document text.
const ContentField = "content"

// Expression is a conjunction of payload conditions applied before vector ranking.
// The zero Expression matches every point.
type Expression struct {
	must []Condition
}

// ContentMatches returns an expression requiring the content field to
// contain every term of query. A query without terms (blank, punctuation or
// stopwords only) yields the empty expression.
func ContentMatches(query string) Expression {
	if len(Terms(query)) == 0 {
		return Expression{}
	}
	return Expression{must: []Condition{{field: ContentField, text: query}}}
}

// Must returns the conditions that all have to hold.
func (e Expression) Must() []Condition { return e.must }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool { return len(e.must) == 0 }

// Condition is a full-text match of a payload field against free text:
// every term of the text must occur in the field.
type Condition struct {
	field string
	text  string
}

// Field returns the payload field name.
func (c Condition) Field() string { return c.field }

// Text returns the raw text to match.
func (c Condition) Text() string { return c.text }

// Tokens returns the terms of the text, see Terms.
func (c Condition) Tokens() []string { return Terms(c.text) }

// separators is the default RediSearch tokenizer separator set. Stored
// content is split on the same runes, so query terms line up with indexed ones.
const separators = ",./(){}[]:;\\~!@#$%^&*-=+|'`\"<>?"

// stopwords is the default RediSearch stopword list. These never reach the
// index, so requiring them would reject every document.
var stopwords = map[string]struct{}{
	"a": {}, "is": {}, "the": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "if": {}, "in": {}, "into": {}, "it": {},
	"no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "such": {}, "that": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"will": {}, "with": {},
}

// Terms splits text into match terms: whitespace and the separator set
// delimit terms, stopwords are dropped, case is preserved.
func Terms(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(separators, r)
	})
	terms := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[strings.ToLower(f)]; stop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// LowerTerms returns the distinct lowercased terms of text in first-seen order.
func LowerTerms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range Terms(text) {
		t = strings.ToLower(t)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
