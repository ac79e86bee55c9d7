// Package server exposes the voice pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/storage"
)

const (
	HeaderSessionID = "X-Session-ID"
	HeaderRunID     = "X-Run-ID"

	DefaultMaxUploadBytes = 32 << 20
	defaultUploadExt      = ".mp3"
	rootMessage           = "Voice Agent API is running. Use /chat/text or /chat/voice."
)

// Runner runs one turn. *orchestration.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, initial orchestration.TurnState) (orchestration.TurnState, error)
	InFlight(runID string) (orchestration.RunSnapshot, bool)
}

type TextRequest struct {
	Text      string `json:"text" jsonschema:"required,description=What the user said"`
	SessionID string `json:"session_id,omitempty" jsonschema:"description=Conversation to continue; a new one is started when empty"`
}

type Server struct {
	runner         Runner
	audio          storage.FileStore
	inputDir       string
	maxUploadBytes int64
}

type ServerOption func(*Server)

// WithInputDirectory sets the local directory uploaded audio is saved to.
func WithInputDirectory(dir string) ServerOption {
	return func(s *Server) { s.inputDir = dir }
}

func WithMaxUploadBytes(n int64) ServerOption {
	return func(s *Server) { s.maxUploadBytes = n }
}

// New creates a server. audio must be the store the runner writes response
// audio to.
func New(runner Runner, audio storage.FileStore, opts ...ServerOption) *Server {
	s := &Server{
		runner:         runner,
		audio:          audio,
		inputDir:       "input_audio",
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.root)
	mux.HandleFunc("POST /chat/text", s.chatText)
	mux.HandleFunc("POST /chat/voice", s.chatVoice)
	mux.HandleFunc("GET /runs/{run_id}", s.runStatus)
	mux.HandleFunc("GET /schema/chat-text", s.textSchema)
	return otelhttp.NewHandler(mux, "ema-voice")
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

func (s *Server) chatText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      *string `json:"text"`
		SessionID string  `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	// An empty string is a valid query; an absent or null field is not.
	if req.Text == nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: field \"text\" is required")
		return
	}

	s.respond(w, r, orchestration.TurnState{
		InputText: *req.Text,
		SessionID: sessionOrNew(req.SessionID),
	})
}

func (s *Server) chatVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("missing audio file: %v", err))
		return
	}
	defer file.Close()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to save uploaded file", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save audio file.")
		return
	}

	s.respond(w, r, orchestration.TurnState{
		InputAudioPath: path,
		SessionID:      sessionOrNew(r.FormValue("session_id")),
	})
}

func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.inputDir, 0o755); err != nil {
		return "", err
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = defaultUploadExt
	}
	path := filepath.Join(s.inputDir, uuid.NewString()+ext)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, initial orchestration.TurnState) {
	ctx, span := tracer.Start(r.Context(), "respond")
	defer span.End()

	initial.RunID = r.Header.Get(HeaderRunID)
	if initial.RunID == "" {
		initial.RunID = uuid.NewString()
	}
	w.Header().Set(HeaderSessionID, initial.SessionID)
	w.Header().Set(HeaderRunID, initial.RunID)

	final, err := s.runner.Run(ctx, initial)
	if err != nil {
		status, detail := errorResponse(err)
		logger.ErrorContext(ctx, "turn failed",
			"session_id", initial.SessionID,
			"run_id", initial.RunID,
			"status", status,
			"error", err,
		)
		writeError(w, status, detail)
		return
	}

	if final.ResponseAudioPath == "" {
		writeError(w, http.StatusInternalServerError, "Failed to generate audio response.")
		return
	}
	audio, err := s.audio.Read(ctx, final.ResponseAudioPath)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open response audio",
			"session_id", initial.SessionID,
			"run_id", initial.RunID,
			"path", final.ResponseAudioPath,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Failed to generate audio response.")
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="response.wav"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio); err != nil {
		logger.WarnContext(ctx, "failed to stream response audio", "run_id", initial.RunID, "error", err)
	}
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, orchestration.ErrClosed):
		return http.StatusServiceUnavailable, "Server is shutting down."
	case errors.Is(err, orchestration.ErrNoAudio):
		return http.StatusInternalServerError, "Failed to generate audio response."
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) runStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.runner.InFlight(r.PathValue("run_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found or already finished")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) textSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jsonschema.Reflect(&TextRequest{}))
}

func sessionOrNew(sessionID string) string {
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		return sessionID
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
