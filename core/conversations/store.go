// Package conversations keeps the durable, append-only history of turns per
// session and rebuilds the conversational context handed to the model.
package conversations

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("no conversation record found")

// Record is one archived turn. Records are never updated once appended.
type Record struct {
	ID        int64  `json:"id" msgpack:"id"`
	SessionID string `json:"session_id" msgpack:"session_id"`
	RunID     string `json:"run_id,omitempty" msgpack:"run_id"`

	UserQuery      string `json:"user_query" msgpack:"user_query"`
	AgentAnswer    string `json:"agent_answer" msgpack:"agent_answer"`
	AgentReasoning string `json:"agent_reasoning,omitempty" msgpack:"agent_reasoning"`
	TurnSummary    string `json:"turn_summary,omitempty" msgpack:"turn_summary"`

	// CumulativeContext is the context that existed before this turn.
	CumulativeContext string `json:"cumulative_context,omitempty" msgpack:"cumulative_context"`

	Timestamp       time.Time `json:"timestamp" msgpack:"timestamp"`
	InputAudioPath  string    `json:"input_audio_path,omitempty" msgpack:"input_audio_path"`
	OutputAudioPath string    `json:"output_audio_path,omitempty" msgpack:"output_audio_path"`
}

// Store is an append-only log of records keyed by session. Latest returns
// ErrNotFound when the session has no records. Implementations serialize
// appends per session.
type Store interface {
	Latest(ctx context.Context, sessionID string) (Record, error)
	Append(ctx context.Context, record Record) error
	Close() error
}

// FormatContext folds the previous turn into the context it was built on.
func FormatContext(previous Record) string {
	entry := "Human: " + previous.UserQuery + "\nAI: " + previous.AgentAnswer + "\n"
	if previous.CumulativeContext == "" {
		return entry
	}
	return previous.CumulativeContext + "\n" + entry
}
