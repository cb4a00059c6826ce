// Package discovery probes upstream providers: it lists the models a
// provider exposes and verifies that a credential is accepted.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	defaultProbeTimeout = 15 * time.Second
	modelsSuffix        = "/models"
	errorBodyLimit      = 1024
)

// staticModelTables lists known models for vendors without a listing API.
var staticModelTables = map[string][]string{
	"zhipu": {
		"glm-4",
		"glm-4-air",
		"glm-4-flash",
		"glm-4-plus",
		"glm-4.5",
		"glm-4.5-air",
	},
}

// Probe is one discovery request against an upstream provider.
type Probe struct {
	ProviderName string
	BaseURL      string
	Credential   string
}

// Adapter performs model discovery and connectivity checks.
type Adapter struct {
	client *http.Client
}

// NewAdapter constructs an Adapter with the given probe timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Adapter{client: &http.Client{Timeout: timeout}}
}

// modelsResponse is the subset of the model-listing response we read.
type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// FetchModels returns the sorted model identifiers a provider exposes.
// Vendors without a listing API are served from a static table without a
// network call.
func (a *Adapter) FetchModels(ctx context.Context, probe Probe) ([]string, error) {
	name := strings.ToLower(strings.TrimSpace(probe.ProviderName))
	if static, ok := staticModelTables[name]; ok {
		out := make([]string, len(static))
		copy(out, static)
		return out, nil
	}

	endpoint := listEndpoint(name, probe.BaseURL)
	if endpoint == "" {
		return nil, fmt.Errorf("discovery: no base url configured")
	}
	if strings.TrimSpace(probe.Credential) == "" {
		return nil, fmt.Errorf("discovery: credential is missing")
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if errReq != nil {
		return nil, fmt.Errorf("discovery: build request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+probe.Credential)

	resp, errDo := a.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("discovery: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return nil, fmt.Errorf("discovery: read response: %w", errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("discovery: unexpected status %d: %s", resp.StatusCode, truncate(string(raw)))
	}

	var parsed modelsResponse
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("discovery: malformed response body: %w", errUnmarshal)
	}

	names := make([]string, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			continue
		}
		names = append(names, id)
	}
	sort.Strings(names)
	return names, nil
}

// TestConnection verifies that a provider accepts the supplied credential.
// For vendors served from a static table only the base URL is checked, since
// they expose no cheap authenticated probe endpoint.
func (a *Adapter) TestConnection(ctx context.Context, probe Probe) error {
	name := strings.ToLower(strings.TrimSpace(probe.ProviderName))
	if _, ok := staticModelTables[name]; ok {
		if strings.TrimSpace(probe.BaseURL) == "" {
			return fmt.Errorf("discovery: no base url configured")
		}
		return nil
	}
	_, err := a.FetchModels(ctx, probe)
	return err
}

// listEndpoint derives the model-listing URL from a configured base URL.
// A base URL that already carries a version segment is used as-is; otherwise
// the conventional v1 segment is inserted. DeepSeek serves its listing
// directly under the API root.
func listEndpoint(providerName, baseURL string) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return ""
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, modelsSuffix) {
		return base
	}
	if providerName == "deepseek" || strings.HasSuffix(base, "/v1") {
		return base + modelsSuffix
	}
	return base + "/v1" + modelsSuffix
}

func truncate(s string) string {
	if len(s) <= errorBodyLimit {
		return s
	}
	return s[:errorBodyLimit]
}
