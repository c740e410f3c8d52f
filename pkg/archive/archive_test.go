package archive_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mockmate/mockmate/pkg/archive"
	"github.com/mockmate/mockmate/pkg/round"
)

func newTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func finishedSnapshot() round.Snapshot {
	return round.Snapshot{
		Phase:    round.PhaseFinished,
		Progress: round.Progress{Current: 2, Total: 2},
		History: []round.Answer{
			{QuestionID: "1", Question: "Why this role?", Transcript: "because", Evaluation: map[string]any{"score": 7.0}},
			{QuestionID: "2", Question: "Biggest weakness?", Transcript: "chocolate", Evaluation: map[string]any{"score": 5.0}},
		},
		Summary: map[string]any{"verdict": "hire"},
	}
}

func TestSaveAndListRounds(t *testing.T) {
	t.Parallel()
	a := newTestArchive(t)
	ctx := context.Background()

	id, err := a.SaveRound(ctx, finishedSnapshot())
	if err != nil {
		t.Fatalf("SaveRound: %v", err)
	}
	if id == 0 {
		t.Fatal("SaveRound returned zero ID")
	}

	entries, err := a.ListRounds(ctx)
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != id || e.Total != 2 {
		t.Errorf("entry = %+v, want ID %d total 2", e, id)
	}
	if e.FinishedAt.IsZero() {
		t.Error("FinishedAt not recorded")
	}

	var summary map[string]any
	if err := json.Unmarshal(e.Summary, &summary); err != nil {
		t.Fatalf("summary not valid JSON: %v", err)
	}
	if summary["verdict"] != "hire" {
		t.Errorf("summary = %v, want verdict hire", summary)
	}
}

func TestAnswersKeepInterviewOrder(t *testing.T) {
	t.Parallel()
	a := newTestArchive(t)
	ctx := context.Background()

	id, err := a.SaveRound(ctx, finishedSnapshot())
	if err != nil {
		t.Fatalf("SaveRound: %v", err)
	}

	answers, err := a.Answers(ctx, id)
	if err != nil {
		t.Fatalf("Answers: %v", err)
	}
	want := []archive.StoredAnswer{
		{Position: 1, QuestionID: "1", Question: "Why this role?", Transcript: "because", Evaluation: json.RawMessage(`{"score":7}`)},
		{Position: 2, QuestionID: "2", Question: "Biggest weakness?", Transcript: "chocolate", Evaluation: json.RawMessage(`{"score":5}`)},
	}
	if diff := cmp.Diff(want, answers); diff != "" {
		t.Errorf("answers mismatch (-want +got):\n%s", diff)
	}
}

func TestUnfinishedRoundRejected(t *testing.T) {
	t.Parallel()
	a := newTestArchive(t)

	snap := finishedSnapshot()
	snap.Phase = round.PhaseAsking
	if _, err := a.SaveRound(context.Background(), snap); err == nil {
		t.Fatal("expected error for unfinished round, got nil")
	}

	entries, err := a.ListRounds(context.Background())
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestListRoundsNewestFirst(t *testing.T) {
	t.Parallel()
	a := newTestArchive(t)
	ctx := context.Background()

	first, err := a.SaveRound(ctx, finishedSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.SaveRound(ctx, finishedSnapshot())
	if err != nil {
		t.Fatal(err)
	}

	entries, err := a.ListRounds(ctx)
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != second || entries[1].ID != first {
		t.Errorf("order = %v,%v want %d,%d", entries[0].ID, entries[1].ID, second, first)
	}
}

func TestReopenSeesExistingData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	a, err := archive.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.SaveRound(ctx, finishedSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := archive.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	entries, err := reopened.ListRounds(ctx)
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries after reopen = %d, want 1", len(entries))
	}
}
