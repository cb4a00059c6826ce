package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/dispatch"
	"github.com/liurenlab/oracleops/internal/divination"
	internalsettings "github.com/liurenlab/oracleops/internal/settings"
)

// InterpretHandler serves divination interpretation requests.
type InterpretHandler struct {
	dispatcher      *dispatch.Dispatcher
	defaultLanguage string
}

// NewInterpretHandler constructs an interpret handler.
func NewInterpretHandler(dispatcher *dispatch.Dispatcher, defaultLanguage string) *InterpretHandler {
	return &InterpretHandler{dispatcher: dispatcher, defaultLanguage: defaultLanguage}
}

// palaceRequest is one palace in the interpret payload.
type palaceRequest struct {
	Hexagram string `json:"hexagram"`
	Element  string `json:"element"`
	Spirit   string `json:"spirit"`
}

// interpretRequest captures the interpret payload.
type interpretRequest struct {
	Query    string        `json:"query"`
	Sky      palaceRequest `json:"sky"`
	Earth    palaceRequest `json:"earth"`
	Human    palaceRequest `json:"human"`
	Language string        `json:"language"`
}

// Interpret composes the prompt for a divination result and dispatches it
// to the configured model fleet.
func (h *InterpretHandler) Interpret(c *gin.Context) {
	var body interpretRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Sky.Hexagram) == "" ||
		strings.TrimSpace(body.Earth.Hexagram) == "" ||
		strings.TrimSpace(body.Human.Hexagram) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "all three palaces are required"})
		return
	}

	result := divination.Result{
		Query: strings.TrimSpace(body.Query),
		Sky:   divination.Palace{Hexagram: body.Sky.Hexagram, Element: body.Sky.Element, Spirit: body.Sky.Spirit},
		Earth: divination.Palace{Hexagram: body.Earth.Hexagram, Element: body.Earth.Element, Spirit: body.Earth.Spirit},
		Human: divination.Palace{Hexagram: body.Human.Hexagram, Element: body.Human.Element, Spirit: body.Human.Spirit},
	}

	outcome, errDispatch := h.dispatcher.Dispatch(c.Request.Context(), result, dispatch.Options{
		OutputLanguage: h.outputLanguage(body.Language),
	})
	if errDispatch != nil {
		var allFailed *dispatch.AllFailedError
		switch {
		case errors.Is(errDispatch, dispatch.ErrNoActiveModel):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active model available"})
		case errors.As(errDispatch, &allFailed):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":  "all models failed",
				"errors": allFailed.Errors,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interpretation": outcome.Text,
		"model":          outcome.ModelName,
		"provider":       outcome.ProviderName,
		"usage": gin.H{
			"prompt_tokens":     outcome.PromptTokens,
			"completion_tokens": outcome.CompletionTokens,
			"total_tokens":      outcome.TotalTokens,
		},
		"elapsed_ms": outcome.ElapsedMs,
	})
}

// outputLanguage picks the request language, the settings default, or the
// configured fallback, in that order.
func (h *InterpretHandler) outputLanguage(requested string) string {
	if lang := strings.TrimSpace(requested); lang != "" {
		return lang
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.DefaultOutputLanguageKey); ok {
		var lang string
		if errUnmarshal := json.Unmarshal(raw, &lang); errUnmarshal == nil {
			if lang = strings.TrimSpace(lang); lang != "" {
				return lang
			}
		}
	}
	return h.defaultLanguage
}
