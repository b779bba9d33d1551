// Package persistence provides the SQLite-backed run ledger: workflow
// sessions, per-phase runs, and token usage, kept for post-run inspection
// and cost accounting.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"papermill/pkg/logx"
)

// ErrSessionNotFound is returned when a requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session status constants.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
)

// Phase run status constants.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Session is one workflow execution against a workspace.
type Session struct {
	ID           string     `json:"id"`
	WorkspaceDir string     `json:"workspace_dir"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Status       string     `json:"status"`
}

// PhaseRun is one phase execution within a session.
type PhaseRun struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	Phase     string     `json:"phase"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Attempts  int        `json:"attempts"`
}

// Usage is the aggregated token usage for a session.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Ledger is an open run ledger.
type Ledger struct {
	db     *sql.DB
	logger *logx.Logger
}

const schemaVersion = 1

// Open opens (or creates) the ledger at path. Use ":memory:" for tests.
func Open(path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, logger: logx.NewLogger("ledger")}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		workspace_dir TEXT NOT NULL,
		started_at    TIMESTAMP NOT NULL,
		ended_at      TIMESTAMP,
		status        TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS phase_runs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		phase      TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at   TIMESTAMP,
		status     TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		attempts   INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS token_usage (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id        TEXT NOT NULL REFERENCES sessions(id),
		phase             TEXT NOT NULL,
		role              TEXT NOT NULL,
		model             TEXT NOT NULL,
		prompt_tokens     INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		recorded_at       TIMESTAMP NOT NULL
	);`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	var count int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if count == 0 {
		if _, err := l.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}
	return nil
}

// BeginSession records a new active session.
func (l *Ledger) BeginSession(workspaceDir string) (Session, error) {
	s := Session{
		ID:           uuid.NewString(),
		WorkspaceDir: workspaceDir,
		StartedAt:    time.Now().UTC(),
		Status:       SessionStatusActive,
	}

	_, err := l.db.Exec(
		`INSERT INTO sessions (id, workspace_dir, started_at, status) VALUES (?, ?, ?, ?)`,
		s.ID, s.WorkspaceDir, s.StartedAt, s.Status,
	)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	l.logger.Info("session %s started for %s", s.ID, workspaceDir)
	return s, nil
}

// EndSession marks a session finished with the given status.
func (l *Ledger) EndSession(id, status string) error {
	res, err := l.db.Exec(
		`UPDATE sessions SET ended_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC(), status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession returns one session by id.
func (l *Ledger) GetSession(id string) (Session, error) {
	var s Session
	err := l.db.QueryRow(
		`SELECT id, workspace_dir, started_at, ended_at, status FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.WorkspaceDir, &s.StartedAt, &s.EndedAt, &s.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return s, nil
}

// BeginPhase records a phase run start and returns its id.
func (l *Ledger) BeginPhase(sessionID, phase string) (int64, error) {
	res, err := l.db.Exec(
		`INSERT INTO phase_runs (session_id, phase, started_at, status) VALUES (?, ?, ?, ?)`,
		sessionID, phase, time.Now().UTC(), RunStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record phase start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read phase run id: %w", err)
	}
	return id, nil
}

// EndPhase finalizes a phase run.
func (l *Ledger) EndPhase(runID int64, status, errMsg string, attempts int) error {
	_, err := l.db.Exec(
		`UPDATE phase_runs SET ended_at = ?, status = ?, error = ?, attempts = ? WHERE id = ?`,
		time.Now().UTC(), status, errMsg, attempts, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize phase run %d: %w", runID, err)
	}
	return nil
}

// PhaseRuns returns all phase runs of a session in start order.
func (l *Ledger) PhaseRuns(sessionID string) ([]PhaseRun, error) {
	rows, err := l.db.Query(
		`SELECT id, session_id, phase, started_at, ended_at, status, error, attempts
		 FROM phase_runs WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query phase runs: %w", err)
	}
	defer rows.Close()

	var out []PhaseRun
	for rows.Next() {
		var r PhaseRun
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Phase, &r.StartedAt, &r.EndedAt, &r.Status, &r.Error, &r.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan phase run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordUsage appends one token usage observation.
func (l *Ledger) RecordUsage(sessionID, phase, role, model string, promptTokens, completionTokens int) error {
	_, err := l.db.Exec(
		`INSERT INTO token_usage (session_id, phase, role, model, prompt_tokens, completion_tokens, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, phase, role, model, promptTokens, completionTokens, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record token usage: %w", err)
	}
	return nil
}

// UsageTotals returns the aggregated token usage for a session.
func (l *Ledger) UsageTotals(sessionID string) (Usage, error) {
	var u Usage
	err := l.db.QueryRow(
		`SELECT COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0)
		 FROM token_usage WHERE session_id = ?`, sessionID,
	).Scan(&u.PromptTokens, &u.CompletionTokens)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to aggregate token usage: %w", err)
	}
	return u, nil
}
