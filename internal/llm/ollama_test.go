package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerate(t *testing.T) {
	var gotReq struct {
		Model  string `json:"model"`
		System string `json:"system"`
		Prompt string `json:"prompt"`
		Format string `json:"format"`
		Stream bool   `json:"stream"`
	}
	var gotPath, gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":    gotReq.Model,
			"response": `{"reply":"hi","speech_text":null,"tool_calls":[]}`,
			"done":     true,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 5*time.Second, discardLogger())

	out, err := client.Generate(context.Background(), GenerateRequest{
		Model:  "qwen2.5:7b-instruct",
		System: "you are a test",
		Prompt: "say hi",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if gotMethod != "POST" || gotPath != "/api/generate" {
		t.Errorf("request: got %s %s", gotMethod, gotPath)
	}
	if gotReq.Model != "qwen2.5:7b-instruct" || gotReq.System != "you are a test" || gotReq.Prompt != "say hi" {
		t.Errorf("request fields: %+v", gotReq)
	}
	// Structured output depends on these two wire flags.
	if gotReq.Format != "json" {
		t.Errorf("format: got %q, want json", gotReq.Format)
	}
	if gotReq.Stream {
		t.Error("stream must be false")
	}
	if !strings.Contains(out, `"reply":"hi"`) {
		t.Errorf("response text: got %q", out)
	}
}

func TestGenerateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 5*time.Second, discardLogger())

	_, err := client.Generate(context.Background(), GenerateRequest{Model: "missing"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should carry the status code: %v", err)
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry the body: %v", err)
	}
}

func TestGenerateUnreachable(t *testing.T) {
	client := NewOllamaClient("http://127.0.0.1:1", 1*time.Second, discardLogger())

	_, err := client.Generate(context.Background(), GenerateRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected a transport error")
	}
}

func TestPing(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 5*time.Second, discardLogger())
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if gotPath != "/api/tags" {
		t.Errorf("path: got %q", gotPath)
	}
}

func TestPingDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 5*time.Second, discardLogger())
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}
