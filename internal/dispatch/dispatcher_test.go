package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/liurenlab/oracleops/internal/divination"
	"github.com/liurenlab/oracleops/internal/models"
	"github.com/liurenlab/oracleops/internal/prompt"
	"github.com/liurenlab/oracleops/internal/registry"
)

type staticCandidates struct {
	list []registry.Candidate
	err  error
}

func (s *staticCandidates) ListCandidates(context.Context) ([]registry.Candidate, error) {
	return s.list, s.err
}

type staticTemplates struct{}

func (staticTemplates) Active(context.Context, string) (prompt.Template, error) {
	return prompt.DefaultTemplate(), nil
}

type captureRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *captureRecorder) Record(_ context.Context, attempt Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
}

func testResult() divination.Result {
	return divination.Result{
		Query: "出行",
		Sky:   divination.Palace{Hexagram: "大安", Element: "木", Spirit: "青龙"},
		Earth: divination.Palace{Hexagram: "速喜", Element: "火", Spirit: "朱雀"},
		Human: divination.Palace{Hexagram: "小吉", Element: "木", Spirit: "六合"},
	}
}

func candidate(id uint64, name, provider, baseURL, credential string) registry.Candidate {
	return registry.Candidate{
		Model:        models.ModelConfig{ID: id, Name: name},
		ProviderName: provider,
		BaseURL:      baseURL,
		Credential:   credential,
	}
}

func successBody(text, requestID string) string {
	payload := map[string]any{
		"id": requestID,
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": text}},
		},
		"usage": map[string]any{
			"prompt_tokens":     120,
			"completion_tokens": 80,
			"total_tokens":      200,
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestDispatchNoCandidates(t *testing.T) {
	d := NewDispatcher(&staticCandidates{}, staticTemplates{}, nil, time.Second)
	_, err := d.Dispatch(context.Background(), testResult(), Options{})
	if !errors.Is(err, ErrNoActiveModel) {
		t.Fatalf("expected ErrNoActiveModel, got %v", err)
	}
}

func TestDispatchFirstSuccessWins(t *testing.T) {
	var primaryHits, secondaryHits int
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits++
		if got := r.Header.Get("Authorization"); got != "Bearer sk-primary" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var body completionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Stream {
			t.Error("stream should be disabled")
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("unexpected message layout: %+v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(successBody("解读内容", "req-1"))); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryHits++
		if _, err := w.Write([]byte(successBody("backup", "req-2"))); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer secondary.Close()

	source := &staticCandidates{list: []registry.Candidate{
		candidate(1, "oracle-pro", "openai", primary.URL+"/v1", "sk-primary"),
		candidate(2, "oracle-lite", "openai", secondary.URL+"/v1", "sk-secondary"),
	}}
	recorder := &captureRecorder{}
	d := NewDispatcher(source, staticTemplates{}, recorder, time.Second)

	outcome, err := d.Dispatch(context.Background(), testResult(), Options{})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if outcome.Text != "解读内容" {
		t.Fatalf("unexpected text %q", outcome.Text)
	}
	if outcome.ModelID != 1 || outcome.ModelName != "oracle-pro" || outcome.ProviderName != "openai" {
		t.Fatalf("unexpected outcome identity: %+v", outcome)
	}
	if outcome.TotalTokens != 200 || outcome.UpstreamRequestID != "req-1" {
		t.Fatalf("unexpected usage fields: %+v", outcome)
	}
	if primaryHits != 1 || secondaryHits != 0 {
		t.Fatalf("expected only the primary to be called, got %d/%d", primaryHits, secondaryHits)
	}
	if len(recorder.attempts) != 1 || !recorder.attempts[0].Success {
		t.Fatalf("expected one successful attempt recorded, got %+v", recorder.attempts)
	}
}

func TestDispatchFailsOver(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer broken.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(successBody("备用解读", "req-9"))); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer healthy.Close()

	source := &staticCandidates{list: []registry.Candidate{
		candidate(1, "oracle-pro", "openai", broken.URL+"/v1", "sk-a"),
		candidate(2, "oracle-lite", "zhipu", healthy.URL+"/v1", "sk-b"),
	}}
	recorder := &captureRecorder{}
	d := NewDispatcher(source, staticTemplates{}, recorder, time.Second)

	outcome, err := d.Dispatch(context.Background(), testResult(), Options{})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if outcome.ModelName != "oracle-lite" {
		t.Fatalf("expected fallback model, got %q", outcome.ModelName)
	}
	if len(recorder.attempts) != 2 {
		t.Fatalf("expected two recorded attempts, got %d", len(recorder.attempts))
	}
	if recorder.attempts[0].Success || recorder.attempts[0].Error == "" {
		t.Fatalf("first attempt should be a recorded failure: %+v", recorder.attempts[0])
	}
	if !recorder.attempts[1].Success {
		t.Fatalf("second attempt should be a recorded success: %+v", recorder.attempts[1])
	}
}

func TestDispatchAllFailed(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer broken.Close()

	source := &staticCandidates{list: []registry.Candidate{
		candidate(1, "oracle-pro", "openai", broken.URL+"/v1", "sk-a"),
		candidate(2, "oracle-lite", "zhipu", broken.URL+"/v1", "sk-b"),
	}}
	d := NewDispatcher(source, staticTemplates{}, nil, time.Second)

	_, err := d.Dispatch(context.Background(), testResult(), Options{})
	var allFailed *AllFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllFailedError, got %v", err)
	}
	if len(allFailed.Errors) != 2 {
		t.Fatalf("expected two candidate errors, got %+v", allFailed.Errors)
	}
	if allFailed.Errors[0].Model != "oracle-pro" || allFailed.Errors[1].Model != "oracle-lite" {
		t.Fatalf("candidate errors out of order: %+v", allFailed.Errors)
	}
	for _, candidateErr := range allFailed.Errors {
		if candidateErr.Error == "" {
			t.Fatalf("candidate error missing message: %+v", candidateErr)
		}
	}
}

func TestDispatchSkipsBlankCredentialWithoutNetworkCall(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if _, err := w.Write([]byte(successBody("ok", "req-1"))); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	source := &staticCandidates{list: []registry.Candidate{
		candidate(1, "oracle-pro", "openai", server.URL+"/v1", "   "),
		candidate(2, "oracle-lite", "openai", server.URL+"/v1", "sk-b"),
	}}
	d := NewDispatcher(source, staticTemplates{}, nil, time.Second)

	outcome, err := d.Dispatch(context.Background(), testResult(), Options{})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if outcome.ModelName != "oracle-lite" {
		t.Fatalf("expected second candidate to serve, got %q", outcome.ModelName)
	}
	if hits != 1 {
		t.Fatalf("blank-credential candidate must not hit the network, got %d calls", hits)
	}
}

func TestDispatchLatencyCoversBodyTransfer(t *testing.T) {
	const bodyDelay = 60 * time.Millisecond
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		time.Sleep(bodyDelay)
		if _, err := w.Write([]byte(successBody("慢响应", "req-slow"))); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	source := &staticCandidates{list: []registry.Candidate{
		candidate(1, "oracle-pro", "openai", server.URL+"/v1", "sk-a"),
	}}
	d := NewDispatcher(source, staticTemplates{}, nil, time.Second)

	outcome, err := d.Dispatch(context.Background(), testResult(), Options{})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if outcome.ElapsedMs < bodyDelay.Milliseconds() {
		t.Fatalf("elapsed %dms must include body transfer time (>= %dms)",
			outcome.ElapsedMs, bodyDelay.Milliseconds())
	}
}

func TestDispatchRejectsMissingCompletionText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(`{"id":"req-1","choices":[]}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	source := &staticCandidates{list: []registry.Candidate{
		candidate(1, "oracle-pro", "openai", server.URL+"/v1", "sk-a"),
	}}
	d := NewDispatcher(source, staticTemplates{}, nil, time.Second)

	_, err := d.Dispatch(context.Background(), testResult(), Options{})
	var allFailed *AllFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllFailedError, got %v", err)
	}
}
