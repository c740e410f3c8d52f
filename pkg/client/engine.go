// Package client wires the MockMate core together behind UI callbacks.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mockmate/mockmate/pkg/api"
	"github.com/mockmate/mockmate/pkg/archive"
	"github.com/mockmate/mockmate/pkg/audio"
	"github.com/mockmate/mockmate/pkg/auth"
	"github.com/mockmate/mockmate/pkg/config"
	"github.com/mockmate/mockmate/pkg/creds"
	"github.com/mockmate/mockmate/pkg/resume"
	"github.com/mockmate/mockmate/pkg/round"
)

// Engine is the composition root: credential store, API client, session
// manager, round machine, recorder, player, and local archive. The UI
// observes it through the On* callbacks and never touches the parts
// directly.
type Engine struct {
	cfg      *config.Config
	settings *Settings

	creds    creds.Store
	api      *api.Client
	auth     *auth.Manager
	round    *round.Machine
	resume   *resume.Service
	recorder *audio.Recorder
	player   *audio.Player
	archive  *archive.Archive

	mu       sync.Mutex
	archived bool // current finished round already saved locally

	// Callbacks for UI updates.
	OnSession            func(auth.Session)
	OnRound              func(round.Snapshot)
	OnLevel              func(rms float64)
	OnSessionInvalidated func()
}

// NewEngine builds the engine from configuration. The local archive is
// best-effort: when it cannot be opened the client still works, it just
// keeps no history.
func NewEngine(cfg *config.Config) (*Engine, error) {
	settings := LoadSettings(cfg.DataDir)

	store := creds.NewFileStore(filepath.Join(cfg.DataDir, "credentials.yaml"))
	apiClient, err := api.New(cfg.APIBaseURL, store, api.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		settings: settings,
		creds:    store,
		api:      apiClient,
		player:   audio.NewPlayer(),
	}

	apiClient.OnSessionInvalidated = func() {
		if e.OnSessionInvalidated != nil {
			e.OnSessionInvalidated()
		}
	}

	e.auth = auth.NewManager(apiClient, store)
	e.auth.OnChange = func(s auth.Session) {
		if e.OnSession != nil {
			e.OnSession(s)
		}
	}

	e.round = round.NewMachine(apiClient)
	e.round.OnUpdate = e.handleRoundUpdate

	e.resume = resume.NewService(apiClient)

	e.recorder = audio.NewRecorder(settings.AudioInput, time.Duration(cfg.MaxRecordSeconds)*time.Second)
	e.recorder.OnComplete = e.submitAnswer
	e.recorder.OnLevel = func(rms float64) {
		if e.OnLevel != nil {
			e.OnLevel(rms)
		}
	}

	if hist, err := archive.Open(filepath.Join(cfg.DataDir, "history.db")); err != nil {
		slog.Warn("round archive unavailable", "err", err)
	} else {
		e.archive = hist
	}

	audio.PreInit()
	return e, nil
}

// Bootstrap resolves the stored session and, when authenticated, picks
// the round back up from server-reported status.
func (e *Engine) Bootstrap(ctx context.Context) auth.Session {
	session := e.auth.Bootstrap(ctx)
	if session.Authenticated {
		e.round.Rehydrate(ctx)
	}
	return session
}

// Session returns the current session snapshot.
func (e *Engine) Session() auth.Session { return e.auth.Session() }

// Login authenticates and persists the session.
func (e *Engine) Login(ctx context.Context, c auth.Credentials) (*creds.Profile, error) {
	return e.auth.Login(ctx, c)
}

// Signup registers a new account; the caller logs in explicitly after.
func (e *Engine) Signup(ctx context.Context, s auth.Signup) error {
	return e.auth.Signup(ctx, s)
}

// Logout clears the session locally regardless of server reachability.
func (e *Engine) Logout(ctx context.Context) { e.auth.Logout(ctx) }

// UploadResume submits a resume file and job description.
func (e *Engine) UploadResume(ctx context.Context, path, jobDescription string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read resume: %w", err)
	}
	return e.resume.Upload(ctx, filepath.Base(path), data, jobDescription)
}

// FetchResume returns the stored resume/JD pair, or nil before first upload.
func (e *Engine) FetchResume(ctx context.Context) (*resume.Info, error) {
	return e.resume.Fetch(ctx)
}

// StartRound starts or resumes the interview round.
func (e *Engine) StartRound(ctx context.Context) { e.round.Start(ctx) }

// RetryRound discards the round and starts fresh.
func (e *Engine) RetryRound(ctx context.Context) { e.round.Retry(ctx) }

// Round returns the current round snapshot.
func (e *Engine) Round() round.Snapshot { return e.round.Snapshot() }

// PlayQuestion plays the current question's audio clip.
func (e *Engine) PlayQuestion(ctx context.Context) error {
	snap := e.round.Snapshot()
	if snap.Current == nil || snap.Current.AudioURL == "" {
		return nil
	}
	return e.player.Play(ctx, snap.Current.AudioURL)
}

// AutoPlay reports whether question audio should play automatically.
func (e *Engine) AutoPlay() bool { return e.settings.AutoPlayQuestions }

// BeginAnswer opens the microphone and starts the capped recording.
func (e *Engine) BeginAnswer() error {
	if err := e.recorder.Initialize(); err != nil {
		return err
	}
	if err := e.recorder.Start(); err != nil {
		return err
	}
	e.round.MarkRecording()
	return nil
}

// FinishAnswer stops the recording; the blob is submitted through the
// recorder's completion callback, same as when the cap forces the stop.
func (e *Engine) FinishAnswer() {
	e.recorder.Stop()
}

// submitAnswer runs on recording completion (manual stop or cap).
func (e *Engine) submitAnswer(blob []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*e.cfg.RequestTimeout)
	defer cancel()
	e.round.Submit(ctx, blob, "answer.ogg")
}

// History lists locally archived rounds, newest first.
func (e *Engine) History(ctx context.Context) ([]archive.Entry, error) {
	if e.archive == nil {
		return nil, nil
	}
	return e.archive.ListRounds(ctx)
}

// handleRoundUpdate archives a freshly finished round and forwards the
// snapshot to the UI.
func (e *Engine) handleRoundUpdate(snap round.Snapshot) {
	if snap.Phase == round.PhaseFinished {
		e.mu.Lock()
		first := !e.archived
		e.archived = true
		e.mu.Unlock()
		if first && e.archive != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := e.archive.SaveRound(ctx, snap); err != nil {
				slog.Warn("archive round failed", "err", err)
			}
			cancel()
		}
	} else {
		e.mu.Lock()
		e.archived = false
		e.mu.Unlock()
	}

	if e.OnRound != nil {
		e.OnRound(snap)
	}
}

// Close releases the audio device and local storage. Safe on every exit
// path.
func (e *Engine) Close() {
	e.recorder.Cleanup()
	e.round.Close()
	if e.archive != nil {
		_ = e.archive.Close()
	}
}
