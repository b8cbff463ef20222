// Package api exposes the HTTP front-end boundary: a JSON chat endpoint,
// a websocket chat channel, and read-only views of facts and history.
// The agent core never blocks on anything here; this layer only renders
// what the orchestrator returns.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"

	"github.com/thursdaylabs/thursday/internal/agent"
	"github.com/thursdaylabs/thursday/internal/buildinfo"
	"github.com/thursdaylabs/thursday/internal/memory"
	"github.com/thursdaylabs/thursday/internal/speech"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg}, logger)
}

// Server is the HTTP front-end server.
type Server struct {
	address string
	port    int
	loop    *agent.Loop
	store   *memory.Store
	speech  *speech.Synthesizer
	logger  *slog.Logger
	server  *http.Server

	md       goldmark.Markdown
	upgrader websocket.Upgrader
}

// NewServer creates the front-end server. speech may be nil when TTS is
// disabled.
func NewServer(address string, port int, loop *agent.Loop, store *memory.Store, synth *speech.Synthesizer, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		loop:    loop,
		store:   store,
		speech:  synth,
		logger:  logger,
		md:      goldmark.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the route table. Exposed separately from Start so
// tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	mux.HandleFunc("GET /api/facts", s.handleFacts)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// Start begins serving HTTP requests and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.address, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// chatRequest is the inbound chat payload.
type chatRequest struct {
	Message string `json:"message"`
}

// chatResponse is what front-ends render: the reply as text and HTML,
// the spoken variant, and an audio path when TTS is enabled.
type chatResponse struct {
	Reply      string  `json:"reply"`
	ReplyHTML  string  `json:"reply_html"`
	SpeechText *string `json:"speech_text"`
	AudioPath  string  `json:"audio_path,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required", s.logger)
		return
	}

	resp, err := s.runTurn(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("turn failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error(), s.logger)
		return
	}

	writeJSON(w, resp, s.logger)
}

// handleChatWS upgrades to a websocket and runs one turn per inbound
// text frame, answering each with a chatResponse frame.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		resp, err := s.runTurn(r.Context(), string(data))
		if err != nil {
			s.logger.Error("turn failed", "error", err)
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

// runTurn drives the orchestrator and decorates its plan with rendered
// HTML and optional synthesized audio.
func (s *Server) runTurn(ctx context.Context, message string) (*chatResponse, error) {
	plan, err := s.loop.RunTurn(ctx, message)
	if err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := s.md.Convert([]byte(plan.Reply), &html); err != nil {
		s.logger.Debug("markdown render failed", "error", err)
		html.Reset()
		html.WriteString(plan.Reply)
	}

	resp := &chatResponse{
		Reply:      plan.Reply,
		ReplyHTML:  html.String(),
		SpeechText: plan.SpeechText,
	}

	if s.speech != nil {
		spoken := plan.Reply
		if plan.SpeechText != nil {
			spoken = *plan.SpeechText
		}
		path, err := s.speech.SpeakToWAV(ctx, spoken)
		if err != nil {
			s.logger.Warn("speech synthesis failed", "error", err)
		} else {
			resp.AudioPath = path
		}
	}

	return resp, nil
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.store.ListFacts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}
	writeJSON(w, map[string]any{"facts": facts}, s.logger)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := s.store.RecentMessages(limit, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}
	writeJSON(w, map[string]any{"messages": messages}, s.logger)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"build":  buildinfo.Info(),
	}, s.logger)
}
