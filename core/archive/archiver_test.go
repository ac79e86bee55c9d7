package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/llms"
)

type failingStore struct{ conversations.InMemoryStore }

func (*failingStore) Append(context.Context, conversations.Record) error {
	return errors.New("read-only")
}

func completer(response string, err error, calls *[][]llms.Message) llms.Completer {
	return llms.CompleterFunc(func(_ context.Context, messages []llms.Message) (string, error) {
		if calls != nil {
			*calls = append(*calls, messages)
		}
		return response, err
	})
}

func TestArchiveStoresSummarizedRecord(t *testing.T) {
	store := conversations.NewInMemoryStore()
	var calls [][]llms.Message
	archiver := NewArchiver(
		completer("<think>short</think>\nThe user greeted the agent.", nil, &calls),
		conversations.NewMemory(store),
	)

	interaction := Interaction{
		SessionID:         "s1",
		RunID:             "r1",
		UserQuery:         "hello there",
		AgentAnswer:       "HI.",
		AgentReasoning:    "greet back",
		CumulativeContext: "Human: a\nAI: b\n",
		OutputAudioPath:   "generated/x.wav",
	}
	result := archiver.Archive(context.Background(), interaction)

	expected := Result{Summary: "The user greeted the agent.", Archived: true, Saved: true}
	if diff := cmp.Diff(expected, result); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}

	if len(calls) != 1 || len(calls[0]) != 1 || calls[0][0].Content != SummaryPrompt("hello there", "HI.") {
		t.Fatalf("unexpected summarizer calls %+v", calls)
	}

	records := store.Records("s1")
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	want := conversations.Record{
		SessionID:         "s1",
		RunID:             "r1",
		UserQuery:         "hello there",
		AgentAnswer:       "HI.",
		AgentReasoning:    "greet back",
		TurnSummary:       "The user greeted the agent.",
		CumulativeContext: "Human: a\nAI: b\n",
		OutputAudioPath:   "generated/x.wav",
	}
	if diff := cmp.Diff(want, records[0], cmpopts.IgnoreFields(conversations.Record{}, "ID", "Timestamp")); diff != "" {
		t.Fatalf("unexpected record (-want +got):\n%s", diff)
	}
}

func TestArchiveSkipsIncompleteInteractions(t *testing.T) {
	testCases := []struct {
		name        string
		interaction Interaction
	}{
		{name: "no session", interaction: Interaction{UserQuery: "q", AgentAnswer: "a"}},
		{name: "no query", interaction: Interaction{SessionID: "s", AgentAnswer: "a"}},
		{name: "no answer", interaction: Interaction{SessionID: "s", UserQuery: "q"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := conversations.NewInMemoryStore()
			var calls [][]llms.Message
			archiver := NewArchiver(completer("x", nil, &calls), conversations.NewMemory(store))

			if result := archiver.Archive(context.Background(), tc.interaction); result != (Result{}) {
				t.Fatalf("expected empty result, got %+v", result)
			}
			if len(calls) != 0 {
				t.Fatal("summarizer should not be called")
			}
			if len(store.Records("s")) != 0 {
				t.Fatal("nothing should be stored")
			}
		})
	}
}

func TestArchiveFallbackSummary(t *testing.T) {
	testCases := []struct {
		name       string
		summarizer llms.Completer
	}{
		{name: "summarizer error", summarizer: completer("", errors.New("rate limited"), nil)},
		{name: "empty summary", summarizer: completer("<think>hmm</think>", nil, nil)},
		{name: "no summarizer", summarizer: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			archiver := NewArchiver(tc.summarizer, conversations.NewMemory(conversations.NewInMemoryStore()))
			result := archiver.Archive(context.Background(), Interaction{
				SessionID:   "s1",
				UserQuery:   "what is the weather like in zagreb today",
				AgentAnswer: "SUNNY.",
			})
			expected := "User asked about what is the weather ..."
			if result.Summary != expected {
				t.Fatalf("expected %q, got %q", expected, result.Summary)
			}
			if !result.Saved {
				t.Fatal("expected record to be saved")
			}
		})
	}
}

func TestFallbackSummaryCountsRunes(t *testing.T) {
	if got := FallbackSummary("čćžšđ"); got != "User asked about čćžšđ..." {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := FallbackSummary("ššššššššššššššššššššššš"); got != "User asked about šššššššššššššššššššš..." {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestArchiveReportsStoreFailure(t *testing.T) {
	archiver := NewArchiver(completer("summary", nil, nil), conversations.NewMemory(&failingStore{}))
	result := archiver.Archive(context.Background(), Interaction{SessionID: "s1", UserQuery: "q", AgentAnswer: "a"})
	if !result.Archived || result.Saved {
		t.Fatalf("expected archived but unsaved result, got %+v", result)
	}
	if result.Summary != "summary" {
		t.Fatalf("expected summary to survive store failure, got %q", result.Summary)
	}
}
