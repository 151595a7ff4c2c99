package search

import (
	"strings"

	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

// contextSeparator separates documents in the prompt context.
const contextSeparator = "\n\n"

// FormatContext joins result contents in ranked order for use as LLM context.
// An empty list yields "".
func FormatContext(results []result.Result) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i := range results {
		parts[i] = results[i].Content()
	}
	return strings.Join(parts, contextSeparator)
}
