package dispatch

import (
	"regexp"
	"strings"

	"github.com/liurenlab/oracleops/internal/models"
)

// RequestShape is the provider-adjusted form of one completion request:
// the effective model identifier plus any rewritten parameters.
type RequestShape struct {
	Model           string
	MaxTokens       *int
	ReasoningEffort string
}

// quirkFunc adjusts a request shape for one provider's conventions.
type quirkFunc func(shape RequestShape) RequestShape

// Zhipu rejects completion token counts outside a fixed range.
const (
	zhipuMinTokens = 1
	zhipuMaxTokens = 8192
)

// providerQuirks maps a provider slug to its request adjustment. Adding a
// provider with non-standard conventions means adding one entry here.
var providerQuirks = map[string]quirkFunc{
	"zhipu": func(shape RequestShape) RequestShape {
		if shape.MaxTokens == nil {
			return shape
		}
		clamped := *shape.MaxTokens
		if clamped < zhipuMinTokens {
			clamped = zhipuMinTokens
		}
		if clamped > zhipuMaxTokens {
			clamped = zhipuMaxTokens
		}
		shape.MaxTokens = &clamped
		return shape
	},
}

// reasoningSuffixRe matches model names carrying a reasoning-effort suffix,
// e.g. "o3-mini-high" or "gpt-5-medium".
var reasoningSuffixRe = regexp.MustCompile(`^(.+)-(low|medium|high)$`)

// ShapeRequest derives the effective request shape for a candidate: the
// reasoning-effort suffix is split off into a separate field, then the
// provider's quirk entry (when present) adjusts the result.
func ShapeRequest(providerName, modelName string, params models.ModelParameters) RequestShape {
	shape := RequestShape{
		Model:     strings.TrimSpace(modelName),
		MaxTokens: params.MaxTokens,
	}

	if m := reasoningSuffixRe.FindStringSubmatch(shape.Model); m != nil {
		shape.Model = m[1]
		shape.ReasoningEffort = m[2]
	}

	if quirk, ok := providerQuirks[strings.ToLower(strings.TrimSpace(providerName))]; ok {
		shape = quirk(shape)
	}
	return shape
}
