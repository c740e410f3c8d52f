package round

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTotalQuestionsAliases(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		in   map[string]any
		want int
	}{
		"snake_case":        {map[string]any{"total_questions": float64(5)}, 5},
		"questions_count":   {map[string]any{"questions_count": float64(3)}, 3},
		"camel_case":        {map[string]any{"totalQuestions": float64(7)}, 7},
		"numeric_string":    {map[string]any{"total_questions": "4"}, 4},
		"question_list":     {map[string]any{"questions": []any{"a", "b"}}, 2},
		"alias_wins_first":  {map[string]any{"total_questions": float64(5), "questions": []any{"a"}}, 5},
		"missing_is_zero":   {map[string]any{"unrelated": true}, 0},
		"garbage_is_zero":   {map[string]any{"total_questions": "many"}, 0},
		"json_number_value": {map[string]any{"questions_count": json.Number("6")}, 6},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			if got := totalQuestions(tc.in); got != tc.want {
				t.Errorf("totalQuestions(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestRoundStatusAliases(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		in   map[string]any
		want string
	}{
		"status":        {map[string]any{"status": "Complete"}, "complete"},
		"round_status":  {map[string]any{"round_status": "IN_PROGRESS"}, "in_progress"},
		"nested_round":  {map[string]any{"round": map[string]any{"status": "completed"}}, "completed"},
		"empty_skipped": {map[string]any{"status": "", "round_status": "complete"}, "complete"},
		"absent":        {map[string]any{}, ""},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			if got := roundStatus(tc.in); got != tc.want {
				t.Errorf("roundStatus(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}

	if !statusComplete("complete") || !statusComplete("completed") {
		t.Error("complete/completed not recognized as terminal")
	}
	if statusComplete("in_progress") || statusComplete("") {
		t.Error("non-terminal status treated as complete")
	}
}

func TestParseQuestion(t *testing.T) {
	t.Parallel()

	q, done := parseQuestion(map[string]any{"message": "No more questions"})
	if !done || q != nil {
		t.Errorf("sentinel parsed as (%+v, %v), want (nil, true)", q, done)
	}

	q, done = parseQuestion(map[string]any{
		"question_id": float64(12),
		"text":        "Tell me about a project you led.",
		"audio_url":   "/static/audio/q_12.mp3",
	})
	if done {
		t.Fatal("real question parsed as sentinel")
	}
	want := &Question{ID: "12", Text: "Tell me about a project you led.", AudioURL: "/static/audio/q_12.mp3"}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Errorf("question mismatch (-want +got):\n%s", diff)
	}

	// String IDs pass through untouched.
	q, _ = parseQuestion(map[string]any{"question_id": "q-abc"})
	if q.ID != "q-abc" {
		t.Errorf("string ID = %q, want q-abc", q.ID)
	}
}

func TestUnwrapSummary(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		in   any
		want any
	}{
		"result_envelope":  {map[string]any{"result": map[string]any{"score": 8.0}}, map[string]any{"score": 8.0}},
		"summary_envelope": {map[string]any{"summary": "solid round"}, "solid round"},
		"bare_payload":     {map[string]any{"score": 8.0}, map[string]any{"score": 8.0}},
		"nil_result_kept":  {map[string]any{"result": nil, "other": 1.0}, map[string]any{"result": nil, "other": 1.0}},
		"non_map":          {"plain text", "plain text"},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, unwrapSummary(tc.in)); diff != "" {
				t.Errorf("unwrapSummary mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
