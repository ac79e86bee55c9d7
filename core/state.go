package orchestration

import (
	"slices"

	"github.com/koscakluka/ema-voice/core/llms"
)

// TurnState is the request-scoped state threaded through one run. Each
// stage reads the whole state and returns a [TurnUpdate].
type TurnState struct {
	SessionID string `json:"session_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`

	// InputText is replaced by the transcript when InputAudioPath is set.
	InputText      string `json:"input_text,omitempty"`
	InputAudioPath string `json:"input_audio_path,omitempty"`

	ResponseText   string `json:"response_text,omitempty"`
	AgentReasoning string `json:"agent_reasoning,omitempty"`

	// CumulativeContext is the conversation context as it was before this
	// turn.
	CumulativeContext string `json:"cumulative_context,omitempty"`
	TurnSummary       string `json:"turn_summary,omitempty"`

	ResponseSegments  []string `json:"response_segments,omitempty"`
	ResponseAudioPath string   `json:"response_audio_path,omitempty"`

	MessageHistory []llms.Message `json:"message_history,omitempty"`
}

// TurnUpdate is a partial state produced by a stage. Nil fields are left
// untouched by [Merge]; MessageHistory is appended.
type TurnUpdate struct {
	InputText         *string
	ResponseText      *string
	AgentReasoning    *string
	CumulativeContext *string
	TurnSummary       *string
	ResponseSegments  *[]string
	ResponseAudioPath *string

	MessageHistory []llms.Message
}

// IsEmpty reports whether applying u would change nothing.
func (u TurnUpdate) IsEmpty() bool {
	return u.InputText == nil &&
		u.ResponseText == nil &&
		u.AgentReasoning == nil &&
		u.CumulativeContext == nil &&
		u.TurnSummary == nil &&
		u.ResponseSegments == nil &&
		u.ResponseAudioPath == nil &&
		len(u.MessageHistory) == 0
}

// Merge applies update to state and returns the result. Neither argument
// is modified and the result shares no slices with them.
func Merge(state TurnState, update TurnUpdate) TurnState {
	merged := state
	merged.ResponseSegments = slices.Clone(state.ResponseSegments)
	merged.MessageHistory = slices.Concat(state.MessageHistory, update.MessageHistory)

	if update.InputText != nil {
		merged.InputText = *update.InputText
	}
	if update.ResponseText != nil {
		merged.ResponseText = *update.ResponseText
	}
	if update.AgentReasoning != nil {
		merged.AgentReasoning = *update.AgentReasoning
	}
	if update.CumulativeContext != nil {
		merged.CumulativeContext = *update.CumulativeContext
	}
	if update.TurnSummary != nil {
		merged.TurnSummary = *update.TurnSummary
	}
	if update.ResponseSegments != nil {
		merged.ResponseSegments = slices.Clone(*update.ResponseSegments)
	}
	if update.ResponseAudioPath != nil {
		merged.ResponseAudioPath = *update.ResponseAudioPath
	}
	return merged
}
