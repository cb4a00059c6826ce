package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/dispatch"
	"github.com/liurenlab/oracleops/internal/models"
	"github.com/liurenlab/oracleops/internal/registry"
)

type fixedCandidates struct {
	list []registry.Candidate
}

func (f fixedCandidates) ListCandidates(context.Context) ([]registry.Candidate, error) {
	return f.list, nil
}

func interpretBody() string {
	return `{
		"query": "出行",
		"sky":   {"hexagram": "大安", "element": "木", "spirit": "青龙"},
		"earth": {"hexagram": "速喜", "element": "火", "spirit": "朱雀"},
		"human": {"hexagram": "小吉", "element": "木", "spirit": "六合"}
	}`
}

func serveInterpret(t *testing.T, d *dispatch.Dispatcher, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/interpret", NewInterpretHandler(d, "zh").Interpret)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/interpret", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestInterpretAllFailedReturnsServiceUnavailable(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer broken.Close()

	source := fixedCandidates{list: []registry.Candidate{
		{Model: models.ModelConfig{ID: 1, Name: "oracle-pro"}, ProviderName: "openai", BaseURL: broken.URL + "/v1", Credential: "sk-a"},
		{Model: models.ModelConfig{ID: 2, Name: "oracle-lite"}, ProviderName: "zhipu", BaseURL: broken.URL + "/v1", Credential: "sk-b"},
	}}
	d := dispatch.NewDispatcher(source, nil, nil, time.Second)

	w := serveInterpret(t, d, interpretBody())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when every model fails, got %d", w.Code)
	}
	var payload struct {
		Error  string                    `json:"error"`
		Errors []dispatch.CandidateError `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error != "all models failed" || len(payload.Errors) != 2 {
		t.Fatalf("unexpected failure payload: %+v", payload)
	}
}

func TestInterpretNoActiveModelReturnsServiceUnavailable(t *testing.T) {
	d := dispatch.NewDispatcher(fixedCandidates{}, nil, nil, time.Second)

	w := serveInterpret(t, d, interpretBody())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without active models, got %d", w.Code)
	}
}

func TestInterpretRejectsMissingPalace(t *testing.T) {
	d := dispatch.NewDispatcher(fixedCandidates{}, nil, nil, time.Second)

	w := serveInterpret(t, d, `{"query":"出行","sky":{"hexagram":"大安"}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete palaces, got %d", w.Code)
	}
}
