package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"contract-analyzer/config"
	apperrors "contract-analyzer/errors"
)

func localTestConfig(host string) *config.Config {
	return &config.Config{
		LLMMode:               config.LLMModeLocal,
		LocalLLMHost:          host,
		LocalModel:            "llama3",
		LocalLLMTimeout:       5 * time.Second,
		MaxRetries:            3,
		RetryDelaySeconds:     time.Millisecond,
		LLMBackoffMaxSeconds:  10 * time.Millisecond,
		LLMBackoffJitterRatio: 0.1,
	}
}

func TestLocalClientComplete(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: `{"answer": "ok"}`})
	}))
	defer srv.Close()

	client := NewLocal(localTestConfig(srv.URL), zap.NewNop())
	text, err := client.Complete(context.Background(), "the prompt", Options{
		SystemPrompt: "the system prompt",
		Temperature:  0.3,
		MaxTokens:    800,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"answer": "ok"}` {
		t.Errorf("response = %q", text)
	}

	if gotReq.Model != "llama3" {
		t.Errorf("model = %q, want llama3", gotReq.Model)
	}
	if gotReq.Prompt != "the prompt" || gotReq.System != "the system prompt" {
		t.Errorf("prompt/system = %q / %q", gotReq.Prompt, gotReq.System)
	}
	if gotReq.Stream {
		t.Error("stream must be false")
	}
	if gotReq.Format != "json" {
		t.Errorf("format = %q, want json", gotReq.Format)
	}
	if gotReq.Options.Temperature != 0.3 || gotReq.Options.NumPredict != 800 {
		t.Errorf("options = %+v", gotReq.Options)
	}
}

func TestLocalClientNoJSONModeOmitsFormat(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(generateResponse{Response: "plain"})
	}))
	defer srv.Close()

	client := NewLocal(localTestConfig(srv.URL), zap.NewNop())
	if _, err := client.Complete(context.Background(), "p", Options{}); err != nil {
		t.Fatal(err)
	}
	if gotReq.Format != "" {
		t.Errorf("format = %q, want empty without JSON mode", gotReq.Format)
	}
}

func TestLocalClientRetriesOn503(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "loaded now"})
	}))
	defer srv.Close()

	client := NewLocal(localTestConfig(srv.URL), zap.NewNop())
	text, err := client.Complete(context.Background(), "p", Options{})
	if err != nil {
		t.Fatalf("Complete after 503: %v", err)
	}
	if text != "loaded now" {
		t.Errorf("response = %q", text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server hit %d times, want 2", got)
	}
}

func TestLocalClientExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewLocal(localTestConfig(srv.URL), zap.NewNop())
	_, err := client.Complete(context.Background(), "p", Options{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !apperrors.IsLLM(err) {
		t.Errorf("error %v should wrap ErrLLM", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server hit %d times, want MaxRetries (3)", got)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := localTestConfig("http://localhost:11434")
	client, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := client.(*LocalClient); !ok {
		t.Errorf("client type = %T, want *LocalClient", client)
	}

	cfg.LLMMode = config.LLMModeExternal
	cfg.ExternalAPIKey = ""
	if _, err := New(cfg, zap.NewNop()); err == nil {
		t.Error("external mode without api key must fail")
	}
}
