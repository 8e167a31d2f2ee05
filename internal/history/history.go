// Copyright 2025 The Flowwright Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists generation sessions to a local SQLite database so
// builds can be listed, inspected, and continued later.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
	"github.com/flowwright/flowwright/pkg/llm"
)

// minPrefixLen is the shortest session ID prefix Get will resolve. Shorter
// prefixes collide too easily to be useful.
const minPrefixLen = 4

// Config configures the history store.
type Config struct {
	// Path is the SQLite database file. The special value ":memory:" keeps
	// the store in memory, which the tests use.
	Path string
}

// Store is a SQLite-backed session store. It is safe for concurrent use;
// WAL mode lets readers proceed while a session is being written.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database at cfg.Path,
// creating parent directories and running migrations.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("history database path is required")
	}

	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			workflow_name TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			success INTEGER NOT NULL,
			requires_human_input INTEGER NOT NULL DEFAULT 0,
			message TEXT,
			turns INTEGER NOT NULL DEFAULT 0,
			retries_used INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			workflow_json TEXT,
			transcript TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_success ON sessions(success)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Session is one stored generation session.
type Session struct {
	ID                 string
	Prompt             string
	WorkflowName       string
	Provider           string
	Model              string
	Success            bool
	RequiresHumanInput bool
	Message            string
	Turns              int
	RetriesUsed        int
	Tokens             llm.TokenUsage
	Duration           time.Duration
	WorkflowJSON       []byte
	Transcript         []llm.Message
	CreatedAt          time.Time
}

// Summary is the listing view of a session, without the transcript and
// workflow payloads.
type Summary struct {
	ID           string
	Prompt       string
	WorkflowName string
	Success      bool
	Message      string
	Turns        int
	TotalTokens  int
	Duration     time.Duration
	CreatedAt    time.Time
}

// Filter narrows List results.
type Filter struct {
	// Limit caps the number of sessions returned; zero means no cap.
	Limit int

	// Success filters by outcome when non-nil.
	Success *bool
}

// Save stores a session. Saving an existing ID replaces the stored record,
// which keeps writes idempotent.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session is nil")
	}
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}

	transcript, err := encodeTranscript(sess.Transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO sessions (id, prompt, workflow_name, provider, model,
			success, requires_human_input, message, turns, retries_used,
			input_tokens, output_tokens, total_tokens, duration_ns,
			workflow_json, transcript, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			prompt = excluded.prompt,
			workflow_name = excluded.workflow_name,
			provider = excluded.provider,
			model = excluded.model,
			success = excluded.success,
			requires_human_input = excluded.requires_human_input,
			message = excluded.message,
			turns = excluded.turns,
			retries_used = excluded.retries_used,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			total_tokens = excluded.total_tokens,
			duration_ns = excluded.duration_ns,
			workflow_json = excluded.workflow_json,
			transcript = excluded.transcript
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.Prompt, sess.WorkflowName, sess.Provider, sess.Model,
		boolToInt(sess.Success), boolToInt(sess.RequiresHumanInput), sess.Message,
		sess.Turns, sess.RetriesUsed,
		sess.Tokens.InputTokens, sess.Tokens.OutputTokens, sess.Tokens.TotalTokens,
		sess.Duration.Nanoseconds(),
		string(sess.WorkflowJSON), string(transcript), createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. IDs of at least four characters may be
// given as unique prefixes, so `history show 3f2a` works the way short
// commit hashes do.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.getByID(ctx, id)
	if err == nil {
		return sess, nil
	}

	var notFound *pkgerrors.NotFoundError
	if !errors.As(err, &notFound) || len(id) < minPrefixLen {
		return nil, err
	}

	matches, err := s.idsWithPrefix(ctx, id)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, &pkgerrors.NotFoundError{Resource: "session", ID: id}
	case 1:
		return s.getByID(ctx, matches[0])
	default:
		return nil, fmt.Errorf("session ID prefix %q is ambiguous (%d matches)", id, len(matches))
	}
}

func (s *Store) getByID(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, prompt, workflow_name, provider, model, success,
			requires_human_input, message, turns, retries_used,
			input_tokens, output_tokens, total_tokens, duration_ns,
			workflow_json, transcript, created_at
		FROM sessions WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, id)

	var (
		sess                        Session
		success, requiresHuman      int
		durationNS, createdAt       int64
		workflowJSON, transcriptRaw string
	)
	err := row.Scan(&sess.ID, &sess.Prompt, &sess.WorkflowName, &sess.Provider,
		&sess.Model, &success, &requiresHuman, &sess.Message, &sess.Turns,
		&sess.RetriesUsed, &sess.Tokens.InputTokens, &sess.Tokens.OutputTokens,
		&sess.Tokens.TotalTokens, &durationNS, &workflowJSON, &transcriptRaw,
		&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &pkgerrors.NotFoundError{Resource: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess.Success = success != 0
	sess.RequiresHumanInput = requiresHuman != 0
	sess.Duration = time.Duration(durationNS)
	sess.CreatedAt = time.Unix(0, createdAt)
	if workflowJSON != "" {
		sess.WorkflowJSON = []byte(workflowJSON)
	}
	sess.Transcript, err = decodeTranscript([]byte(transcriptRaw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return &sess, nil
}

func (s *Store) idsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM sessions WHERE id LIKE ? || '%' LIMIT 3", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session prefix: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns session summaries, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Summary, error) {
	query := `
		SELECT id, prompt, workflow_name, success, message, turns,
			total_tokens, duration_ns, created_at
		FROM sessions WHERE 1=1
	`
	args := []any{}

	if filter.Success != nil {
		query += " AND success = ?"
		args = append(args, boolToInt(*filter.Success))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			sum                   Summary
			success               int
			durationNS, createdAt int64
		)
		if err := rows.Scan(&sum.ID, &sum.Prompt, &sum.WorkflowName, &success,
			&sum.Message, &sum.Turns, &sum.TotalTokens, &durationNS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.Success = success != 0
		sum.Duration = time.Duration(durationNS)
		sum.CreatedAt = time.Unix(0, createdAt)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Prune deletes sessions created before the cutoff and reports how many
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE created_at < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// storedMessage is the on-disk transcript message shape. The llm types carry
// no JSON tags, so the store owns its own serialization and stays stable if
// the in-memory types grow fields.
type storedMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []storedToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type storedToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func encodeTranscript(messages []llm.Message) ([]byte, error) {
	stored := make([]storedMessage, 0, len(messages))
	for _, msg := range messages {
		sm := storedMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, call := range msg.ToolCalls {
			sm.ToolCalls = append(sm.ToolCalls, storedToolCall(call))
		}
		stored = append(stored, sm)
	}
	return json.Marshal(stored)
}

func decodeTranscript(data []byte) ([]llm.Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var stored []storedMessage
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(stored))
	for _, sm := range stored {
		msg := llm.Message{
			Role:       llm.MessageRole(sm.Role),
			Content:    sm.Content,
			ToolCallID: sm.ToolCallID,
			Name:       sm.Name,
		}
		for _, call := range sm.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall(call))
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
