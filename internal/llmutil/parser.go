// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoJSON is returned when a response contains nothing that looks like JSON.
var ErrNoJSON = errors.New("no JSON found in LLM response")

var (
	// \x60 is a backtick; raw strings cannot hold one.
	fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	fencedArrayRegex  = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ExtractJSON pulls the JSON payload out of a model reply. Replies are often
// wrapped in markdown fences or in conversational text; preferArray decides
// which bracket pair wins when both occur.
func ExtractJSON(response string, preferArray bool) (string, error) {
	response = strings.TrimSpace(response)
	hasObject := strings.Contains(response, "{")
	hasArray := strings.Contains(response, "[")
	if !hasObject && !hasArray {
		return "", ErrNoJSON
	}

	if strings.HasPrefix(response, "```") {
		order := []*regexp.Regexp{fencedObjectRegex, fencedArrayRegex}
		if preferArray {
			order = []*regexp.Regexp{fencedArrayRegex, fencedObjectRegex}
		}
		for _, re := range order {
			if m := re.FindStringSubmatch(response); len(m) > 1 {
				return m[1], nil
			}
		}
	}

	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response, nil
	}

	pairs := [][2]string{{"{", "}"}, {"[", "]"}}
	if preferArray {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	for _, p := range pairs {
		first := strings.Index(response, p[0])
		last := strings.LastIndex(response, p[1])
		if first != -1 && last > first {
			return response[first : last+1], nil
		}
	}
	return "", ErrNoJSON
}

// ParseJSONResponse attempts to parse an LLM response string into a target Go type using generics.
// It handles common LLM formatting issues, such as wrapping the JSON in markdown code blocks.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw, err := ExtractJSON(response, looksLikeArrayTarget[T]())
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, TruncateString(raw, 500))
	}
	return &result, nil
}

// looksLikeArrayTarget reports whether T decodes from a JSON array.
func looksLikeArrayTarget[T any]() bool {
	var probe T
	err := json.Unmarshal([]byte("[]"), &probe)
	return err == nil
}

// ParseStringArray extracts a list of strings from a model reply. It accepts a
// plain array of strings, an array of objects carrying field, or an object
// whose first array-valued member is such a list.
func ParseStringArray(response, field string) ([]string, error) {
	raw, err := ExtractJSON(response, true)
	if err != nil {
		return nil, err
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("malformed JSON in LLM response: %s", TruncateString(raw, 200))
	}

	parsed := gjson.Parse(raw)
	if parsed.IsObject() {
		var found gjson.Result
		parsed.ForEach(func(_, value gjson.Result) bool {
			if value.IsArray() {
				found = value
				return false
			}
			return true
		})
		if !found.Exists() {
			return nil, fmt.Errorf("LLM response object contains no array")
		}
		parsed = found
	}
	if !parsed.IsArray() {
		return nil, fmt.Errorf("LLM response is not a JSON array")
	}

	var out []string
	for _, item := range parsed.Array() {
		var s string
		switch {
		case item.Type == gjson.String:
			s = item.String()
		case item.IsObject() && field != "":
			s = item.Get(field).String()
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// TruncateString truncates a string to a maximum length.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
