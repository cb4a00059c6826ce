// Package dispatch executes completion requests against the configured model
// fleet: candidates are tried strictly in order and the first success wins.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/liurenlab/oracleops/internal/divination"
	"github.com/liurenlab/oracleops/internal/prompt"
	"github.com/liurenlab/oracleops/internal/registry"
	log "github.com/sirupsen/logrus"
)

// ErrNoActiveModel indicates no usable candidate exists in the catalog.
var ErrNoActiveModel = errors.New("dispatch: no active model available")

// defaultRequestTimeout bounds one provider call when no timeout is configured.
const defaultRequestTimeout = 120 * time.Second

// errorBodyLimit caps how much of an upstream error body is kept.
const errorBodyLimit = 2048

// CandidateSource yields the ordered candidate list for one dispatch.
type CandidateSource interface {
	ListCandidates(ctx context.Context) ([]registry.Candidate, error)
}

// TemplateSource yields the active prompt template for a family.
type TemplateSource interface {
	Active(ctx context.Context, family string) (prompt.Template, error)
}

// Attempt describes one dispatch attempt outcome, successful or not.
type Attempt struct {
	ModelConfigID     uint64
	Model             string
	Provider          string
	PromptTokens      int
	CompletionTokens  int
	TotalTokens       int
	LatencyMs         int64
	Success           bool
	Error             string
	UpstreamRequestID string
}

// Recorder receives every attempt outcome, e.g. for usage analytics.
type Recorder interface {
	Record(ctx context.Context, attempt Attempt)
}

// CandidateError is the structured per-candidate failure kept for diagnostics.
type CandidateError struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// AllFailedError reports that every candidate was exhausted without success.
// It carries the full ordered per-candidate error list.
type AllFailedError struct {
	Errors []CandidateError
}

// Error implements the error interface.
func (e *AllFailedError) Error() string {
	return fmt.Sprintf("dispatch: all %d models failed", len(e.Errors))
}

// Options carries per-dispatch request options.
type Options struct {
	OutputLanguage string
}

// Outcome is the success payload of one dispatch.
type Outcome struct {
	Text              string
	ModelID           uint64
	ModelName         string
	ProviderName      string
	PromptTokens      int
	CompletionTokens  int
	TotalTokens       int
	ElapsedMs         int64
	UpstreamRequestID string
}

// Dispatcher runs the candidate loop for one divination request at a time.
// Instances are safe for concurrent use; each Dispatch call is independent
// and reads the catalog fresh.
type Dispatcher struct {
	candidates CandidateSource
	templates  TemplateSource
	recorder   Recorder
	client     *http.Client
	now        func() time.Time
}

// NewDispatcher constructs a Dispatcher. The recorder may be nil.
func NewDispatcher(candidates CandidateSource, templates TemplateSource, recorder Recorder, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Dispatcher{
		candidates: candidates,
		templates:  templates,
		recorder:   recorder,
		client:     &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Dispatch obtains the ordered candidate list, composes the prompt once, and
// attempts each candidate in order until one succeeds. Per-candidate failures
// are recorded and skipped; only total exhaustion is surfaced, as an
// AllFailedError carrying every failure.
func (d *Dispatcher) Dispatch(ctx context.Context, result divination.Result, opts Options) (*Outcome, error) {
	if d == nil || d.candidates == nil {
		return nil, fmt.Errorf("dispatch: not initialized")
	}

	candidates, errList := d.candidates.ListCandidates(ctx)
	if errList != nil {
		return nil, fmt.Errorf("dispatch: list candidates: %w", errList)
	}
	if len(candidates) == 0 {
		return nil, ErrNoActiveModel
	}

	tpl := prompt.DefaultTemplate()
	if d.templates != nil {
		loaded, errTpl := d.templates.Active(ctx, prompt.DefaultFamily)
		if errTpl != nil {
			log.WithError(errTpl).Warn("dispatch: load active template failed, using defaults")
		} else {
			tpl = loaded
		}
	}
	composed := prompt.Compose(result, tpl, opts.OutputLanguage, d.now())

	candidateErrors := make([]CandidateError, 0, len(candidates))
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate.Credential) == "" {
			candidateErrors = append(candidateErrors, CandidateError{
				Model:    candidate.Model.Name,
				Provider: candidate.ProviderName,
				Error:    "credential is missing",
			})
			continue
		}

		outcome, errAttempt := d.attempt(ctx, candidate, composed)

		attempt := Attempt{
			ModelConfigID: candidate.Model.ID,
			Model:         candidate.Model.Name,
			Provider:      candidate.ProviderName,
		}
		if outcome != nil {
			attempt.PromptTokens = outcome.PromptTokens
			attempt.CompletionTokens = outcome.CompletionTokens
			attempt.TotalTokens = outcome.TotalTokens
			attempt.LatencyMs = outcome.ElapsedMs
			attempt.UpstreamRequestID = outcome.UpstreamRequestID
			attempt.Success = true
		} else if errAttempt != nil {
			attempt.Error = errAttempt.Error()
		}
		if d.recorder != nil {
			d.recorder.Record(ctx, attempt)
		}

		if errAttempt != nil {
			log.WithError(errAttempt).Warnf("dispatch: model %q (%s) failed, trying next candidate",
				candidate.Model.Name, candidate.ProviderName)
			candidateErrors = append(candidateErrors, CandidateError{
				Model:    candidate.Model.Name,
				Provider: candidate.ProviderName,
				Error:    errAttempt.Error(),
			})
			continue
		}
		return outcome, nil
	}

	return nil, &AllFailedError{Errors: candidateErrors}
}

// chatMessage is one message in a completions-style request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the normalized request body sent to every provider.
type completionRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      *float64      `json:"temperature,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	ReasoningEffort  string        `json:"reasoning_effort,omitempty"`
	Stream           bool          `json:"stream"`
}

// completionResponse is the subset of the completions response we read.
type completionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// attempt issues one synchronous completion call for a candidate.
func (d *Dispatcher) attempt(ctx context.Context, candidate registry.Candidate, composed prompt.Composed) (*Outcome, error) {
	endpoint := ResolveEndpoint(candidate.ProviderName, candidate.BaseURL)
	if endpoint == "" {
		return nil, fmt.Errorf("no base url configured")
	}

	params := candidate.Parameters()
	shape := ShapeRequest(candidate.ProviderName, candidate.Model.Name, params)

	body := completionRequest{
		Model: shape.Model,
		Messages: []chatMessage{
			{Role: "system", Content: composed.System},
			{Role: "user", Content: composed.User},
		},
		Temperature:      params.Temperature,
		MaxTokens:        shape.MaxTokens,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		ReasoningEffort:  shape.ReasoningEffort,
	}

	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return nil, fmt.Errorf("marshal request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if errReq != nil {
		return nil, fmt.Errorf("build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+candidate.Credential)

	started := d.now()
	resp, errDo := d.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("request failed: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("dispatch: close response body failed")
		}
	}()
	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return nil, fmt.Errorf("read response: %w", errRead)
	}
	elapsed := d.now().Sub(started)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(raw), errorBodyLimit))
	}

	var parsed completionResponse
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("malformed response body: %w", errUnmarshal)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("response missing completion text")
	}

	return &Outcome{
		Text:              parsed.Choices[0].Message.Content,
		ModelID:           candidate.Model.ID,
		ModelName:         candidate.Model.Name,
		ProviderName:      candidate.ProviderName,
		PromptTokens:      parsed.Usage.PromptTokens,
		CompletionTokens:  parsed.Usage.CompletionTokens,
		TotalTokens:       parsed.Usage.TotalTokens,
		ElapsedMs:         elapsed.Milliseconds(),
		UpstreamRequestID: parsed.ID,
	}, nil
}

// truncate caps a string at limit bytes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
