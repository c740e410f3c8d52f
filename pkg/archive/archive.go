// Package archive keeps a local history of finished interview rounds.
//
// Live round progress is never persisted; only completed rounds land
// here, giving the client an offline view of past results. Storage is a
// single SQLite file under the data directory.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mockmate/mockmate/pkg/round"
)

const timeLayout = "2006-01-02 15:04:05"

// Archive is the local results store.
type Archive struct {
	db *sql.DB
}

// Entry is one archived round.
type Entry struct {
	ID         int64
	FinishedAt time.Time
	Total      int
	Summary    json.RawMessage
}

// StoredAnswer is one archived question/answer exchange.
type StoredAnswer struct {
	Position   int
	QuestionID string
	Question   string
	Transcript string
	Evaluation json.RawMessage
}

// Open opens (or creates) the archive database and runs migrations.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("archive: %s: %w", pragma, err)
		}
	}

	a := &Archive{db: db}
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS rounds (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		finished_at TEXT    NOT NULL,
		total       INTEGER NOT NULL,
		summary     TEXT
	);
	CREATE TABLE IF NOT EXISTS answers (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		round_id    INTEGER NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		question_id TEXT,
		question    TEXT,
		transcript  TEXT,
		evaluation  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_answers_round ON answers(round_id);
	`
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// SaveRound archives a finished round snapshot and returns its ID.
func (a *Archive) SaveRound(ctx context.Context, snap round.Snapshot) (int64, error) {
	if snap.Phase != round.PhaseFinished {
		return 0, fmt.Errorf("archive: round not finished (phase %s)", snap.Phase)
	}

	summary, err := json.Marshal(snap.Summary)
	if err != nil {
		return 0, fmt.Errorf("archive: encode summary: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("archive: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO rounds (finished_at, total, summary) VALUES (?, ?, ?)`,
		time.Now().UTC().Format(timeLayout), snap.Progress.Total, string(summary))
	if err != nil {
		return 0, fmt.Errorf("archive: insert round: %w", err)
	}
	roundID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("archive: round id: %w", err)
	}

	for i, ans := range snap.History {
		eval, err := json.Marshal(ans.Evaluation)
		if err != nil {
			return 0, fmt.Errorf("archive: encode evaluation: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO answers (round_id, position, question_id, question, transcript, evaluation)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			roundID, i+1, ans.QuestionID, ans.Question, ans.Transcript, string(eval)); err != nil {
			return 0, fmt.Errorf("archive: insert answer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("archive: commit: %w", err)
	}
	return roundID, nil
}

// ListRounds returns archived rounds, newest first.
func (a *Archive) ListRounds(ctx context.Context) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, finished_at, total, summary FROM rounds ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("archive: list rounds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var finishedAt, summary string
		if err := rows.Scan(&e.ID, &finishedAt, &e.Total, &summary); err != nil {
			return nil, fmt.Errorf("archive: scan round: %w", err)
		}
		e.FinishedAt, _ = time.Parse(timeLayout, finishedAt)
		e.Summary = json.RawMessage(summary)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Answers returns the archived answers of a round in interview order.
func (a *Archive) Answers(ctx context.Context, roundID int64) ([]StoredAnswer, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT position, question_id, question, transcript, evaluation
		 FROM answers WHERE round_id = ? ORDER BY position`, roundID)
	if err != nil {
		return nil, fmt.Errorf("archive: list answers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var answers []StoredAnswer
	for rows.Next() {
		var ans StoredAnswer
		var eval string
		if err := rows.Scan(&ans.Position, &ans.QuestionID, &ans.Question, &ans.Transcript, &eval); err != nil {
			return nil, fmt.Errorf("archive: scan answer: %w", err)
		}
		ans.Evaluation = json.RawMessage(eval)
		answers = append(answers, ans)
	}
	return answers, rows.Err()
}
