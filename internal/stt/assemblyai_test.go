package stt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"voiceassist/internal/config"
)

func testClient(baseURL string) *AssemblyAIClient {
	return NewAssemblyAIClient(config.AssemblyAIConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  time.Second,
	}, &http.Client{}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// newAssemblyAIServer поднимает фейковый API: upload, постановка задачи,
// затем опрос со статусами из statuses по порядку.
func newAssemblyAIServer(t *testing.T, statuses []transcriptResponse) *httptest.Server {
	t.Helper()
	pollCalls := 0

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test-key" {
			t.Errorf("missing authorization header")
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			json.NewEncoder(w).Encode(uploadResponse{UploadURL: "https://cdn/upload/1"})
		case r.Method == http.MethodPost && r.URL.Path == "/transcript":
			var req transcriptRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode transcript request: %v", err)
			}
			if req.AudioURL != "https://cdn/upload/1" {
				t.Errorf("expected upload url in transcript request, got: %s", req.AudioURL)
			}
			json.NewEncoder(w).Encode(transcriptResponse{ID: "tr-1", Status: "queued"})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/transcript/"):
			status := statuses[len(statuses)-1]
			if pollCalls < len(statuses) {
				status = statuses[pollCalls]
			}
			pollCalls++
			json.NewEncoder(w).Encode(status)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestAssemblyAIClient_Transcribe(t *testing.T) {
	server := newAssemblyAIServer(t, []transcriptResponse{
		{ID: "tr-1", Status: "processing"},
		{ID: "tr-1", Status: "completed", Text: "hello world"},
	})
	defer server.Close()

	client := testClient(server.URL)
	text, err := client.Transcribe(context.Background(), []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected 'hello world', got: %s", text)
	}
}

func TestAssemblyAIClient_TranscribeProviderError(t *testing.T) {
	server := newAssemblyAIServer(t, []transcriptResponse{
		{ID: "tr-1", Status: "error", Error: "audio unintelligible"},
	})
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Transcribe(context.Background(), []byte("audio-bytes"))
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "audio unintelligible") {
		t.Fatalf("expected provider error message, got: %v", err)
	}
}

func TestAssemblyAIClient_EmptyTranscript(t *testing.T) {
	server := newAssemblyAIServer(t, []transcriptResponse{
		{ID: "tr-1", Status: "completed", Text: ""},
	})
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Transcribe(context.Background(), []byte("audio-bytes"))
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got: %v", err)
	}
}

func TestAssemblyAIClient_EmptyAudio(t *testing.T) {
	client := testClient("http://unused")
	_, err := client.Transcribe(context.Background(), nil)
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got: %v", err)
	}
}

func TestAssemblyAIClient_NotConfigured(t *testing.T) {
	client := NewAssemblyAIClient(config.AssemblyAIConfig{}, &http.Client{}, nil)
	if client.Configured() {
		t.Fatalf("expected not configured without api key")
	}
	_, err := client.Transcribe(context.Background(), []byte("audio"))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got: %v", err)
	}
}

func TestAssemblyAIClient_PollTimeout(t *testing.T) {
	server := newAssemblyAIServer(t, []transcriptResponse{
		{ID: "tr-1", Status: "processing"},
	})
	defer server.Close()

	client := NewAssemblyAIClient(config.AssemblyAIConfig{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	}, &http.Client{}, nil)

	_, err := client.Transcribe(context.Background(), []byte("audio-bytes"))
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "not finished") {
		t.Fatalf("expected poll timeout error, got: %v", err)
	}
}
