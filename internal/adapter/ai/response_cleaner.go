// Package ai provides response cleaning utilities for handling malformed LLM responses.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ResponseCleaner handles cleaning and sanitizing LLM responses. The tip
// pipeline expects a bare JSON array; models occasionally wrap it in markdown
// fences or prefix it with prose.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// CleanJSONArray strips markdown fences, extracts the outermost JSON array
// from mixed content and repairs trailing commas.
func (rc *ResponseCleaner) CleanJSONArray(response string) string {
	response = rc.removeMarkdownBlocks(response)
	response = rc.extractArray(response)
	if !rc.IsValidJSON(response) {
		response = trailingCommaRe.ReplaceAllString(response, "$1")
	}
	return response
}

// removeMarkdownBlocks removes markdown code fences from the response.
func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractArray returns the outermost bracketed array in mixed content.
// Bracket characters inside JSON strings are skipped.
func (rc *ResponseCleaner) extractArray(response string) string {
	start := strings.Index(response, "[")
	if start == -1 {
		return response
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return response
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	var temp interface{}
	return json.Unmarshal([]byte(response), &temp) == nil
}

// CleanAndValidateArray cleans a response and fails if the result still is
// not a JSON array.
func (rc *ResponseCleaner) CleanAndValidateArray(response string) (string, error) {
	cleaned := rc.CleanJSONArray(response)
	var probe []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return "", &JSONValidationError{
			Original: response,
			Cleaned:  cleaned,
			Message:  "cleaned response is not a valid JSON array",
		}
	}
	return cleaned, nil
}

// JSONValidationError represents a JSON validation error.
type JSONValidationError struct {
	Original string
	Cleaned  string
	Message  string
}

func (e *JSONValidationError) Error() string {
	return e.Message
}
