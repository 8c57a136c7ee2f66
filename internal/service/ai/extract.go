package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/echosoul/backend/internal/model/recommendation"
)

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.*?)\\s*```")

// ParseError means the model reply could not be turned into a recommendation.
type ParseError struct {
	Diagnostic string
	Raw        string
}

func (e *ParseError) Error() string {
	return "failed to parse model response: " + e.Diagnostic
}

// ExtractJSON pulls a JSON document out of untrusted model text. A fenced block
// wins over the surrounding text; stray backticks and whitespace are stripped;
// as a last resort the outermost braces are tried.
func ExtractJSON(text string) (json.RawMessage, error) {
	candidate := text
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}
	candidate = strings.TrimSpace(strings.Trim(strings.TrimSpace(candidate), "`"))

	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start != -1 && end > start {
		sliced := candidate[start : end+1]
		if json.Valid([]byte(sliced)) {
			return json.RawMessage(sliced), nil
		}
	}

	var probe any
	diagnostic := "empty response"
	if candidate != "" {
		if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
			diagnostic = err.Error()
		}
	}
	return nil, &ParseError{Diagnostic: diagnostic, Raw: text}
}

var (
	summaryKeys  = []string{"emotionsummary", "summary", "emotion"}
	musicKeys    = []string{"musicrecommendations", "music", "songs"}
	movieKeys    = []string{"movierecommendations", "movies", "movie", "films"}
	bookKeys     = []string{"bookrecommendations", "books", "book"}
	activityKeys = []string{"activitysuggestions", "activityrecommendations", "activities", "activity"}

	titleKeys   = []string{"title", "name", "song", "movie", "book", "activity"}
	creatorKeys = []string{"artist", "author", "director", "creator", "by"}
)

// ParseRecommendation decodes the extracted JSON tolerantly. Keys are matched
// ignoring case and punctuation, and list items may be strings or objects.
func ParseRecommendation(raw json.RawMessage) (*recommendation.Recommendation, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Diagnostic: err.Error(), Raw: string(raw)}
	}

	fields := make(map[string]json.RawMessage, len(doc))
	for k, v := range doc {
		fields[normalizeKey(k)] = v
	}

	rec := &recommendation.Recommendation{
		EmotionSummary: textValue(lookup(fields, summaryKeys)),
		Music:          listValue(lookup(fields, musicKeys)),
		Movies:         listValue(lookup(fields, movieKeys)),
		Books:          listValue(lookup(fields, bookKeys)),
		Activities:     listValue(lookup(fields, activityKeys)),
	}
	if rec.Empty() {
		return nil, &ParseError{Diagnostic: "no recommendation fields found", Raw: string(raw)}
	}
	return rec, nil
}

func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lookup(fields map[string]json.RawMessage, keys []string) json.RawMessage {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v
		}
	}
	return nil
}

func textValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return flattenObject(obj)
	}
	var scalar any
	if err := json.Unmarshal(raw, &scalar); err == nil && scalar != nil {
		return strings.TrimSpace(fmt.Sprint(scalar))
	}
	return ""
}

func listValue(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// A single string or object stands in for a one item list.
		if single := textValue(raw); single != "" {
			return []string{single}
		}
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if text := textValue(item); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func flattenObject(obj map[string]any) string {
	normalized := make(map[string]string, len(obj))
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		nk := normalizeKey(k)
		normalized[nk] = strings.TrimSpace(s)
		keys = append(keys, nk)
	}

	title := firstOf(normalized, titleKeys)
	creator := firstOf(normalized, creatorKeys)
	switch {
	case title != "" && creator != "":
		return title + " by " + creator
	case title != "":
		return title
	}

	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, normalized[k])
	}
	return strings.Join(values, ", ")
}

func firstOf(values map[string]string, keys []string) string {
	for _, k := range keys {
		if v := values[k]; v != "" {
			return v
		}
	}
	return ""
}
