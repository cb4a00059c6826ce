package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/models"
	"gorm.io/gorm"
)

// UsageHandler serves dispatch usage analytics.
type UsageHandler struct {
	db *gorm.DB // Database handle for usage logs.
}

// NewUsageHandler constructs a usage handler.
func NewUsageHandler(db *gorm.DB) *UsageHandler {
	return &UsageHandler{db: db}
}

const (
	defaultUsagePageSize = 50
	maxUsagePageSize     = 500
)

// List returns usage rows newest first with optional filters and paging.
func (h *UsageHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.UsageLog{})

	if provider := strings.TrimSpace(c.Query("provider")); provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if model := strings.TrimSpace(c.Query("model")); model != "" {
		q = q.Where("model = ?", model)
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		if status != models.UsageStatusSuccess && status != models.UsageStatusFailed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		q = q.Where("status = ?", status)
	}
	if since, ok := parseTimeQuery(c, "since"); !ok {
		return
	} else if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if until, ok := parseTimeQuery(c, "until"); !ok {
		return
	} else if !until.IsZero() {
		q = q.Where("created_at < ?", until)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	page, pageSize := parsePaging(c)
	var rows []models.UsageLog
	if errFind := q.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list usage failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatUsageLog(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"usage":     out,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// usageSummaryRow is the aggregate scan target for Summary.
type usageSummaryRow struct {
	Provider      string
	Model         string
	Requests      int64
	Failures      int64
	TotalTokens   int64
	AvgLatencyMs  float64
	LastRequested time.Time
}

// Summary aggregates usage per provider and model inside a time window.
func (h *UsageHandler) Summary(c *gin.Context) {
	since, ok := parseTimeQuery(c, "since")
	if !ok {
		return
	}
	if since.IsZero() {
		since = time.Now().UTC().AddDate(0, 0, -7)
	}

	var rows []usageSummaryRow
	if errFind := h.db.WithContext(c.Request.Context()).
		Model(&models.UsageLog{}).
		Select("provider, model, COUNT(*) AS requests, "+
			"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failures, "+
			"SUM(total_tokens) AS total_tokens, "+
			"AVG(latency_ms) AS avg_latency_ms, "+
			"MAX(created_at) AS last_requested",
			models.UsageStatusFailed).
		Where("created_at >= ?", since).
		Group("provider").
		Group("model").
		Order("requests DESC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"provider":       row.Provider,
			"model":          row.Model,
			"requests":       row.Requests,
			"failures":       row.Failures,
			"total_tokens":   row.TotalTokens,
			"avg_latency_ms": row.AvgLatencyMs,
			"last_requested": row.LastRequested,
		})
	}
	c.JSON(http.StatusOK, gin.H{"summary": out, "since": since})
}

// formatUsageLog shapes a usage row for API responses.
func formatUsageLog(row *models.UsageLog) gin.H {
	return gin.H{
		"id":                  row.ID,
		"provider":            row.Provider,
		"model":               row.Model,
		"model_config_id":     row.ModelConfigID,
		"prompt_tokens":       row.PromptTokens,
		"completion_tokens":   row.CompletionTokens,
		"total_tokens":        row.TotalTokens,
		"latency_ms":          row.LatencyMs,
		"status":              row.Status,
		"error":               row.Error,
		"upstream_request_id": row.UpstreamRequestID,
		"created_at":          row.CreatedAt,
	}
}

// parseTimeQuery parses an optional RFC3339 query parameter, writing the
// error response on failure.
func parseTimeQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, true
	}
	parsed, errParse := time.Parse(time.RFC3339, raw)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " timestamp"})
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// parsePaging reads page/page_size query parameters with sane bounds.
func parsePaging(c *gin.Context) (int, int) {
	page := 1
	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		if parsed, errParse := strconv.Atoi(raw); errParse == nil && parsed > 0 {
			page = parsed
		}
	}
	pageSize := defaultUsagePageSize
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		if parsed, errParse := strconv.Atoi(raw); errParse == nil && parsed > 0 {
			pageSize = parsed
		}
	}
	if pageSize > maxUsagePageSize {
		pageSize = maxUsagePageSize
	}
	return page, pageSize
}
