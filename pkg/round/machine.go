// Package round drives the interview round as a phase state machine.
//
// The machine sequences question fetching, answer submission, and
// end-of-round summarization against the service, and can rehydrate its
// position from server-reported status after a restart. Network and
// server failures route to PhaseError with a human-readable message; the
// machine never auto-retries. Round progress lives only in memory — the
// server is the source of truth across restarts.
package round

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mockmate/mockmate/pkg/api"
)

// Phase is the current step of the round state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseAsking
	PhaseRecording
	PhaseSubmitting
	PhaseFinished
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseAsking:
		return "asking"
	case PhaseRecording:
		return "recording"
	case PhaseSubmitting:
		return "submitting"
	case PhaseFinished:
		return "finished"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Question is the current interview question.
type Question struct {
	ID       string
	Text     string
	AudioURL string
}

// Progress tracks answered versus total questions.
type Progress struct {
	Current int
	Total   int
}

// Answer is one completed question/answer exchange.
type Answer struct {
	QuestionID string
	Question   string
	Transcript string
	Evaluation any
}

// Snapshot is an immutable view of the machine for rendering.
type Snapshot struct {
	Phase    Phase
	Current  *Question
	Progress Progress
	History  []Answer
	Summary  any
	Err      string
}

// Machine is the interview round client. Transitions are guarded by
// phase checks, so duplicate UI events (a double-clicked Start, a Submit
// with no question on screen) are harmless no-ops rather than errors.
type Machine struct {
	mu       sync.Mutex
	phase    Phase
	current  *Question
	progress Progress
	history  []Answer
	summary  any
	errMsg   string
	closed   bool

	api *api.Client

	// OnUpdate is invoked with a snapshot after every transition.
	OnUpdate func(Snapshot)
}

// NewMachine creates an idle round machine.
func NewMachine(client *api.Client) *Machine {
	return &Machine{api: client, phase: PhaseIdle}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	hist := make([]Answer, len(m.history))
	copy(hist, m.history)
	var q *Question
	if m.current != nil {
		cp := *m.current
		q = &cp
	}
	return Snapshot{
		Phase:    m.phase,
		Current:  q,
		Progress: m.progress,
		History:  hist,
		Summary:  m.summary,
		Err:      m.errMsg,
	}
}

// Close marks the machine dead. Responses that arrive afterwards are
// discarded instead of mutating state nobody is watching.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Start initializes or resumes the round on the server. Invoking it in
// any phase other than idle, finished, or error is a no-op.
func (m *Machine) Start(ctx context.Context) {
	if !m.transition(PhaseStarting, PhaseIdle, PhaseFinished, PhaseError) {
		return
	}

	var info map[string]any
	if err := m.api.PostJSON(ctx, "/round1/start", nil, &info); err != nil {
		m.fail(api.ErrorMessage(err))
		return
	}

	// The server may report the round already complete; go straight to
	// the summary.
	if statusComplete(roundStatus(info)) {
		m.finish(ctx, nil)
		return
	}

	total := totalQuestions(info)
	dead := m.apply(func() {
		m.history = nil
		m.summary = nil
		m.progress = Progress{Current: 0, Total: total}
	})
	if dead {
		return
	}
	if total <= 0 {
		m.fail("No questions generated. Please retry.")
		return
	}

	slog.Info("round started", "total_questions", total)
	m.NextQuestion(ctx)
}

// NextQuestion fetches the next question. A "No more questions" response
// before anything was answered is a generation failure; after at least
// one answer it ends the round naturally and fetches the final summary.
func (m *Machine) NextQuestion(ctx context.Context) {
	var data map[string]any
	if err := m.api.GetJSON(ctx, "/round1/get-question-audio", &data); err != nil {
		m.fail(api.ErrorMessage(err))
		return
	}

	q, done := parseQuestion(data)
	if !done {
		q.AudioURL = m.api.ResolveURL(q.AudioURL)
		m.apply(func() {
			m.current = q
			m.phase = PhaseAsking
		})
		return
	}

	snap := m.Snapshot()
	if snap.Progress.Current == 0 && snap.Progress.Total > 0 && len(snap.History) == 0 {
		m.fail("No questions available right now. Please retry.")
		return
	}

	var result any
	if err := m.api.PostJSON(ctx, "/round1/end-interview", nil, &result); err != nil {
		m.fail(api.ErrorMessage(err))
		return
	}
	m.apply(func() {
		m.summary = unwrapSummary(result)
		m.current = nil
		m.phase = PhaseFinished
	})
}

// MarkRecording transitions asking → recording when the user starts
// capturing an answer. Any other phase ignores it.
func (m *Machine) MarkRecording() {
	m.transition(PhaseRecording, PhaseAsking)
}

// Submit uploads the recorded answer for the current question, records
// the transcript and evaluation, and advances the round. With no current
// question it is a no-op: no state mutation, no network call.
func (m *Machine) Submit(ctx context.Context, audio []byte, filename string) {
	m.mu.Lock()
	if m.closed || m.current == nil || (m.phase != PhaseAsking && m.phase != PhaseRecording) {
		m.mu.Unlock()
		return
	}
	question := *m.current
	m.phase = PhaseSubmitting
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	if filename == "" {
		filename = "answer.ogg"
	}
	var resp map[string]any
	err := m.api.PostMultipart(ctx, "/round1/submit-answer/"+question.ID, nil,
		[]api.FilePart{{Field: "audio", Filename: filename, Data: audio}}, &resp)
	if err != nil {
		m.fail(api.ErrorMessage(err))
		return
	}

	dead := m.apply(func() {
		m.history = append(m.history, Answer{
			QuestionID: question.ID,
			Question:   question.Text,
			Transcript: asString(resp["transcript"]),
			Evaluation: resp["evaluation"],
		})
		if m.progress.Current < m.progress.Total {
			m.progress.Current++
		}
		m.current = nil
	})
	if dead {
		return
	}

	if completed, _ := resp["completed"].(bool); completed {
		m.finish(ctx, resp["summary"])
		return
	}
	m.NextQuestion(ctx)
}

// Retry discards local round state and starts over. The server guarantees
// the new round is fresh.
func (m *Machine) Retry(ctx context.Context) {
	m.mu.Lock()
	if m.closed || (m.phase != PhaseError && m.phase != PhaseFinished && m.phase != PhaseIdle) {
		m.mu.Unlock()
		return
	}
	m.history = nil
	m.summary = nil
	m.errMsg = ""
	m.progress = Progress{}
	m.current = nil
	m.phase = PhaseIdle
	m.mu.Unlock()
	m.Start(ctx)
}

// Rehydrate reconstructs the machine's position from server-reported
// status after a restart. Unknown status or a failed lookup lands in
// idle, waiting for an explicit Start.
func (m *Machine) Rehydrate(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.phase != PhaseIdle {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	var data map[string]any
	if err := m.api.GetJSON(ctx, "/round1/get-interview-status", &data); err != nil {
		slog.Debug("round status lookup failed, staying idle", "err", err)
		m.apply(func() { m.phase = PhaseIdle })
		return
	}

	switch status := roundStatus(data); {
	case statusComplete(status):
		m.finish(ctx, nil)
	case status == "in_progress":
		// NextQuestion installs the question and the asking phase in one
		// step, so observers never see asking with no question to render.
		m.NextQuestion(ctx)
	default:
		m.apply(func() { m.phase = PhaseIdle })
	}
}

// finish lands in finished, using the given summary or fetching it when
// the server did not inline one. A failed summary fetch still finishes
// the round.
func (m *Machine) finish(ctx context.Context, summary any) {
	if summary == nil {
		var data any
		if err := m.api.GetJSON(ctx, "/round1/summary", &data); err != nil {
			slog.Warn("summary fetch failed", "err", err)
		} else {
			summary = unwrapSummary(data)
		}
	}
	m.apply(func() {
		if summary != nil {
			m.summary = summary
		}
		m.current = nil
		m.phase = PhaseFinished
	})
}

// fail routes to the error phase with a user-facing message.
func (m *Machine) fail(msg string) {
	m.apply(func() {
		m.errMsg = msg
		m.phase = PhaseError
	})
}

// transition atomically moves to next if the current phase is one of
// from, reporting whether it did. Clears any stale error message.
func (m *Machine) transition(next Phase, from ...Phase) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	ok := false
	for _, f := range from {
		if m.phase == f {
			ok = true
			break
		}
	}
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.phase = next
	m.errMsg = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
	return true
}

// apply runs fn under the lock and notifies, unless the machine has been
// closed in the meantime. Returns true when the mutation was discarded.
func (m *Machine) apply(fn func()) (dead bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return true
	}
	fn()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
	return false
}

func (m *Machine) notify(s Snapshot) {
	if m.OnUpdate != nil {
		m.OnUpdate(s)
	}
}
