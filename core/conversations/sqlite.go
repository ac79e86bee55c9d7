package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	run_id TEXT,
	user_query TEXT,
	agent_answer TEXT,
	agent_thinking TEXT,
	query_answer_context TEXT,
	cumulative_context TEXT,
	timestamp TEXT,
	input_audio_path TEXT,
	output_audio_path TEXT
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, id);
`

// SQLiteStore persists records in a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer keeps appends serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Latest(ctx context.Context, sessionID string) (Record, error) {
	ctx, span := tracer.Start(ctx, "sqlite latest")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, run_id, user_query, agent_answer, agent_thinking,
		       query_answer_context, cumulative_context, timestamp,
		       input_audio_path, output_audio_path
		FROM conversations
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT 1`, sessionID)

	var (
		record    Record
		runID     sql.NullString
		query     sql.NullString
		answer    sql.NullString
		thinking  sql.NullString
		summary   sql.NullString
		previous  sql.NullString
		timestamp sql.NullString
		input     sql.NullString
		output    sql.NullString
	)
	err := row.Scan(&record.ID, &record.SessionID, &runID, &query, &answer, &thinking,
		&summary, &previous, &timestamp, &input, &output)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read latest record: %w", err)
	}

	record.RunID = runID.String
	record.UserQuery = query.String
	record.AgentAnswer = answer.String
	record.AgentReasoning = thinking.String
	record.TurnSummary = summary.String
	record.CumulativeContext = previous.String
	record.InputAudioPath = input.String
	record.OutputAudioPath = output.String
	if timestamp.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, timestamp.String); err == nil {
			record.Timestamp = ts
		}
	}
	return record, nil
}

func (s *SQLiteStore) Append(ctx context.Context, record Record) error {
	ctx, span := tracer.Start(ctx, "sqlite append")
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			session_id, run_id, user_query, agent_answer, agent_thinking,
			query_answer_context, cumulative_context, timestamp,
			input_audio_path, output_audio_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID, record.RunID, record.UserQuery, record.AgentAnswer, record.AgentReasoning,
		record.TurnSummary, record.CumulativeContext, record.Timestamp.UTC().Format(time.RFC3339Nano),
		record.InputAudioPath, record.OutputAudioPath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Count returns the number of records stored for sessionID.
func (s *SQLiteStore) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
