package orchestration

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/internal/utils"
)

func TestMergeOverwritesOnlySetFields(t *testing.T) {
	state := TurnState{
		SessionID:    "s1",
		InputText:    "hello",
		ResponseText: "old",
	}

	merged := Merge(state, TurnUpdate{ResponseText: utils.Ptr("new")})

	expected := TurnState{SessionID: "s1", InputText: "hello", ResponseText: "new"}
	if diff := cmp.Diff(expected, merged); diff != "" {
		t.Fatalf("unexpected merge result (-want +got):\n%s", diff)
	}
}

func TestMergeSequentialUpdates(t *testing.T) {
	var state TurnState
	state = Merge(state, TurnUpdate{InputText: utils.Ptr("a")})
	state = Merge(state, TurnUpdate{ResponseText: utils.Ptr("b")})

	if state.InputText != "a" || state.ResponseText != "b" {
		t.Fatalf("expected both fields to be kept, got %+v", state)
	}
}

func TestMergeEmptyStringOverwrites(t *testing.T) {
	state := TurnState{InputText: "typed"}
	merged := Merge(state, TurnUpdate{InputText: utils.Ptr("")})
	if merged.InputText != "" {
		t.Fatalf("expected empty input text, got %q", merged.InputText)
	}
}

func TestMergeAppendsHistory(t *testing.T) {
	first := llms.UserMessage("hi")
	second := llms.AssistantMessage("HELLO.")
	third := llms.UserMessage("bye")

	state := TurnState{MessageHistory: make([]llms.Message, 1, 4)}
	state.MessageHistory[0] = first

	merged := Merge(state, TurnUpdate{MessageHistory: []llms.Message{second}})
	other := Merge(state, TurnUpdate{MessageHistory: []llms.Message{third}})

	if diff := cmp.Diff([]llms.Message{first, second}, merged.MessageHistory); diff != "" {
		t.Fatalf("unexpected history (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]llms.Message{first, third}, other.MessageHistory); diff != "" {
		t.Fatalf("merge shared the backing array (-want +got):\n%s", diff)
	}
	if len(state.MessageHistory) != 1 {
		t.Fatalf("input state was modified: %+v", state.MessageHistory)
	}
}

func TestMergeDoesNotAliasSegments(t *testing.T) {
	segments := []string{"A.", "B."}
	merged := Merge(TurnState{}, TurnUpdate{ResponseSegments: &segments})
	segments[0] = "changed"

	if merged.ResponseSegments[0] != "A." {
		t.Fatalf("merged state aliases update slice: %v", merged.ResponseSegments)
	}
}

func TestTurnUpdateIsEmpty(t *testing.T) {
	if !(TurnUpdate{}).IsEmpty() {
		t.Fatal("zero update should be empty")
	}
	if (TurnUpdate{TurnSummary: utils.Ptr("")}).IsEmpty() {
		t.Fatal("update with a set field should not be empty")
	}
}
