package orchestration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/storage"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLLM struct {
	mu       sync.Mutex
	calls    [][]llms.Message
	response string
	err      error
	block    chan struct{}
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llms.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func (f *fakeLLM) lastCall() []llms.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fakeTTS struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeTTS) Synthesize(_ context.Context, text string) (texttospeech.Speech, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return texttospeech.Speech{}, f.err
	}
	return texttospeech.Speech{Samples: make([]int16, 160), SampleRate: 16000}, nil
}

type fakeTranscriber struct {
	segments []speechtotext.Segment
	err      error
	calls    int
}

func (f *fakeTranscriber) Transcribe(context.Context, string) ([]speechtotext.Segment, error) {
	f.calls++
	return f.segments, f.err
}

type testEngine struct {
	*Engine
	llm        *fakeLLM
	summarizer *fakeLLM
	tts        *fakeTTS
	store      *conversations.InMemoryStore
	audio      *storage.Local
}

func newTestEngine(t *testing.T, opts ...EngineOption) *testEngine {
	t.Helper()
	audio, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	te := &testEngine{
		llm:        &fakeLLM{response: "<think>greet</think>Hi there! How can I help? 😀"},
		summarizer: &fakeLLM{response: "The user said hello."},
		tts:        &fakeTTS{},
		store:      conversations.NewInMemoryStore(),
		audio:      audio,
	}
	base := []EngineOption{
		WithLLM(te.llm),
		WithSummaryLLM(te.summarizer),
		WithTextToSpeech(te.tts),
		WithContextStore(te.store),
		WithAudioStore(audio),
		WithAudioDirectory("generated"),
		WithSilence(10 * time.Millisecond),
	}
	te.Engine = NewEngine(append(base, opts...)...)
	t.Cleanup(func() { te.Close() })
	return te
}

func TestRunFirstTurn(t *testing.T) {
	e := newTestEngine(t, WithSynchronousArchive())

	state, err := e.Run(context.Background(), TurnState{InputText: "Hello", SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.CumulativeContext != "" {
		t.Fatalf("expected empty context, got %q", state.CumulativeContext)
	}
	if state.ResponseText != "Hi there! How can I help?" {
		t.Fatalf("unexpected response %q", state.ResponseText)
	}
	if state.AgentReasoning != "greet" {
		t.Fatalf("unexpected reasoning %q", state.AgentReasoning)
	}
	if diff := cmp.Diff([]string{"HI THERE!", "HOW CAN I HELP?"}, state.ResponseSegments); diff != "" {
		t.Fatalf("unexpected segments (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{" HI THERE! ", " HOW CAN I HELP? "}, e.tts.calls); diff != "" {
		t.Fatalf("unexpected synthesizer calls (-want +got):\n%s", diff)
	}
	if state.ResponseAudioPath == "" {
		t.Fatal("expected response audio path")
	}
	if ok, _ := e.audio.Exists(context.Background(), state.ResponseAudioPath); !ok {
		t.Fatalf("expected audio file at %q", state.ResponseAudioPath)
	}
	if state.TurnSummary != "The user said hello." {
		t.Fatalf("unexpected summary %q", state.TurnSummary)
	}
	if state.RunID == "" {
		t.Fatal("expected run id to be assigned")
	}

	expectedHistory := []llms.Message{llms.UserMessage("Hello"), llms.AssistantMessage("Hi there! How can I help?")}
	if diff := cmp.Diff(expectedHistory, state.MessageHistory); diff != "" {
		t.Fatalf("unexpected history (-want +got):\n%s", diff)
	}

	records := e.store.Records("s1")
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].UserQuery != "Hello" || records[0].AgentAnswer != "Hi there! How can I help?" {
		t.Fatalf("unexpected record %+v", records[0])
	}
	if records[0].OutputAudioPath != e.audio.URI(state.ResponseAudioPath) {
		t.Fatalf("expected record to point at %q, got %q", e.audio.URI(state.ResponseAudioPath), records[0].OutputAudioPath)
	}

	prompt := e.llm.lastCall()
	if len(prompt) != 2 || prompt[0].Role != llms.RoleSystem || prompt[1].Content != "Hello" {
		t.Fatalf("unexpected prompt %+v", prompt)
	}
	if strings.Contains(prompt[0].Content, "Previous conversation history") {
		t.Fatal("first turn should not carry history")
	}
}

func TestRunSecondTurnSeesHistory(t *testing.T) {
	e := newTestEngine(t, WithSynchronousArchive())
	ctx := context.Background()

	if _, err := e.Run(ctx, TurnState{InputText: "Hello", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}

	e.llm.response = "Still here."
	state, err := e.Run(ctx, TurnState{InputText: "Are you there?", SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(state.CumulativeContext, "Human: Hello") {
		t.Fatalf("expected context to contain first turn, got %q", state.CumulativeContext)
	}
	if got := e.Memory().CumulativeContext(ctx, "s1"); !strings.Contains(got, "Human: Hello") || !strings.Contains(got, "Human: Are you there?") {
		t.Fatalf("unexpected cumulative context %q", got)
	}

	system := e.llm.lastCall()[0].Content
	if !strings.Contains(system, "Previous conversation history:\nHuman: Hello\nAI: Hi there! How can I help?\n") {
		t.Fatalf("history missing from system prompt: %q", system)
	}
	if len(e.store.Records("s1")) != 2 {
		t.Fatalf("expected two records, got %d", len(e.store.Records("s1")))
	}
}

func TestRunAllSegmentsFail(t *testing.T) {
	e := newTestEngine(t, WithSynchronousArchive(), WithSegmentRetries(0))
	e.tts.err = errors.New("tts down")

	state, err := e.Run(context.Background(), TurnState{InputText: "Hello", SessionID: "s1"})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSynthesize || stageErr.RunID != state.RunID {
		t.Fatalf("expected synthesize stage error, got %#v", err)
	}
	if state.ResponseAudioPath != "" {
		t.Fatalf("expected no audio path, got %q", state.ResponseAudioPath)
	}
	if state.ResponseText == "" {
		t.Fatal("expected final state to keep the response text")
	}

	entries, err := os.ReadDir(e.audio.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files to be written, found %d", len(entries))
	}
}

func TestRunGenerationFailureAborts(t *testing.T) {
	e := newTestEngine(t, WithSynchronousArchive())
	e.llm.err = errors.New("model unavailable")

	state, err := e.Run(context.Background(), TurnState{InputText: "Hello", SessionID: "s1"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageGenerate || stageErr.SessionID != "s1" {
		t.Fatalf("expected generate stage error, got %#v", err)
	}
	if state.ResponseText != "" || len(state.ResponseSegments) != 0 {
		t.Fatalf("expected no response, got %+v", state)
	}
	if len(e.tts.calls) != 0 {
		t.Fatal("synthesizer should not be called")
	}
	if len(e.store.Records("s1")) != 0 {
		t.Fatal("failed turn should not be archived")
	}
}

func TestRunGenerationTimeout(t *testing.T) {
	timeouts := DefaultTimeouts()
	timeouts.Generation = 10 * time.Millisecond
	e := newTestEngine(t, WithTimeouts(timeouts))
	e.llm.block = make(chan struct{})

	_, err := e.Run(context.Background(), TurnState{InputText: "Hello"})
	if !errors.Is(err, ErrGenerationFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected generation deadline error, got %v", err)
	}
}

func writeInputAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunTranscription(t *testing.T) {
	testCases := []struct {
		name          string
		audioPath     func(t *testing.T) string
		transcriber   *fakeTranscriber
		expectedInput string
		expectedCalls int
	}{
		{
			name:          "no audio keeps typed input",
			audioPath:     func(*testing.T) string { return "" },
			transcriber:   &fakeTranscriber{},
			expectedInput: "typed",
			expectedCalls: 0,
		},
		{
			name:          "missing file keeps typed input",
			audioPath:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.mp3") },
			transcriber:   &fakeTranscriber{},
			expectedInput: "typed",
			expectedCalls: 0,
		},
		{
			name:      "transcript replaces input",
			audioPath: writeInputAudio,
			transcriber: &fakeTranscriber{segments: []speechtotext.Segment{
				{Text: "What time"},
				{Text: " is it?"},
			}},
			expectedInput: "What time is it?",
			expectedCalls: 1,
		},
		{
			name:          "failure degrades to empty input",
			audioPath:     writeInputAudio,
			transcriber:   &fakeTranscriber{err: errors.New("stt down")},
			expectedInput: "",
			expectedCalls: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, WithSpeechToText(tc.transcriber))

			state, err := e.Run(context.Background(), TurnState{
				InputText:      "typed",
				InputAudioPath: tc.audioPath(t),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state.InputText != tc.expectedInput {
				t.Fatalf("expected input %q, got %q", tc.expectedInput, state.InputText)
			}
			if tc.transcriber.calls != tc.expectedCalls {
				t.Fatalf("expected %d transcriber calls, got %d", tc.expectedCalls, tc.transcriber.calls)
			}
		})
	}
}

func TestRunArchivesInBackground(t *testing.T) {
	e := newTestEngine(t)

	state, err := e.Run(context.Background(), TurnState{InputText: "Hello", SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if state.TurnSummary != "" {
		t.Fatalf("background archive should not touch the returned state, got %q", state.TurnSummary)
	}

	e.Wait()
	records := e.store.Records("s1")
	if len(records) != 1 || records[0].TurnSummary != "The user said hello." {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestRunArchiveSurvivesCancelledRequest(t *testing.T) {
	e := newTestEngine(t)
	e.summarizer.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := e.Run(ctx, TurnState{InputText: "Hello", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}
	cancel()
	close(e.summarizer.block)

	e.Wait()
	if len(e.store.Records("s1")) != 1 {
		t.Fatal("expected archive to finish after the request was cancelled")
	}
}

func TestRunWithoutSessionIsNotArchived(t *testing.T) {
	e := newTestEngine(t, WithSynchronousArchive())

	state, err := e.Run(context.Background(), TurnState{InputText: "Hello"})
	if err != nil {
		t.Fatal(err)
	}
	if state.TurnSummary != "" {
		t.Fatalf("expected no summary, got %q", state.TurnSummary)
	}
	if len(e.summarizer.calls) != 0 {
		t.Fatal("summarizer should not be called without a session")
	}
}

func TestRunCancelledContext(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, TurnState{InputText: "Hello"})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageTranscribe || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation before the first stage, got %v", err)
	}
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []events.Kind
	)
	e := newTestEngine(t, WithSynchronousArchive(), WithEventHandler(func(event events.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, event.Kind())
	}))

	if _, err := e.Run(context.Background(), TurnState{InputText: "Hello", SessionID: "s1", RunID: "r1"}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if kinds[0] != events.KindTurnStarted || kinds[len(kinds)-1] != events.KindTurnCompleted {
		t.Fatalf("unexpected event order %v", kinds)
	}
	counts := map[events.Kind]int{}
	for _, kind := range kinds {
		counts[kind]++
	}
	if counts[events.KindStageStarted] != 5 || counts[events.KindStageCompleted] != 5 {
		t.Fatalf("expected five stages, got %v", counts)
	}
	if counts[events.KindAssistantResponseFinal] != 1 || counts[events.KindTurnArchived] != 1 {
		t.Fatalf("missing response or archive events: %v", counts)
	}
}

func TestInFlight(t *testing.T) {
	e := newTestEngine(t)
	e.llm.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), TurnState{InputText: "Hello", RunID: "run-1"})
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		snapshot, ok := e.InFlight("run-1")
		if ok && snapshot.Stage == StageGenerate {
			if snapshot.State.InputText != "Hello" {
				t.Fatalf("unexpected in-flight state %+v", snapshot.State)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for run to reach generation")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(e.llm.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, ok := e.InFlight("run-1"); ok {
		t.Fatal("finished run should not be in flight")
	}
}

func TestRunAfterClose(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background(), TurnState{InputText: "Hello"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestRunWithoutLLM(t *testing.T) {
	e := NewEngine()
	defer e.Close()

	_, err := e.Run(context.Background(), TurnState{InputText: "Hello"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}
