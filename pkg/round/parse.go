package round

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The service has drifted on field names over time (total_questions vs
// questions_count vs totalQuestions, status vs round_status vs
// round.status). Parsing stays permissive on purpose: accept every alias
// the backend has ever used rather than assuming it will standardize.

// totalQuestions extracts the round size from a /round1/start response.
func totalQuestions(m map[string]any) int {
	for _, key := range []string{"total_questions", "questions_count", "totalQuestions"} {
		if n, ok := asInt(m[key]); ok {
			return n
		}
	}
	if qs, ok := m["questions"].([]any); ok {
		return len(qs)
	}
	return 0
}

// roundStatus extracts the normalized (lowercased) status from a start or
// status response.
func roundStatus(m map[string]any) string {
	for _, key := range []string{"status", "round_status"} {
		if s, ok := m[key].(string); ok && s != "" {
			return strings.ToLower(s)
		}
	}
	if inner, ok := m["round"].(map[string]any); ok {
		if s, ok := inner["status"].(string); ok {
			return strings.ToLower(s)
		}
	}
	return ""
}

// statusComplete reports whether a normalized status means the round is
// already finished.
func statusComplete(status string) bool {
	return status == "complete" || status == "completed"
}

// parseQuestion interprets a /round1/get-question-audio response.
// done is true for the "No more questions" sentinel.
func parseQuestion(m map[string]any) (q *Question, done bool) {
	if msg, ok := m["message"].(string); ok && msg == "No more questions" {
		return nil, true
	}
	q = &Question{
		ID:       asID(m["question_id"]),
		Text:     asString(m["text"]),
		AudioURL: asString(m["audio_url"]),
	}
	return q, false
}

// unwrapSummary prefers the "result" envelope when present, otherwise the
// payload itself.
func unwrapSummary(v any) any {
	if m, ok := v.(map[string]any); ok {
		if r, ok := m["result"]; ok && r != nil {
			return r
		}
		if s, ok := m["summary"]; ok && s != nil {
			return s
		}
	}
	return v
}

// asInt coerces the loosely-typed JSON values the service emits (numbers,
// numeric strings) into an int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// asID renders a question ID usable in a URL path, whether the server
// sent a number or a string.
func asID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
