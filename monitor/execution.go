package monitor

import (
	"time"

	"github.com/brandlens/brandlens/mention"
)

// ExecutionStatus is the lifecycle state of a query execution
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// Execution is one attempt to run one query against one provider.
// Created when dispatch begins; closed exactly once on completion or
// failure and immutable after that.
type Execution struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	QueryID          string          `json:"query_id,omitempty"`
	QueryText        string          `json:"query_text"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model,omitempty"`
	Status           ExecutionStatus `json:"status"`
	ResponseText     string          `json:"response_text,omitempty"`
	MentionCount     int             `json:"mention_count"`
	CacheHit         bool            `json:"cache_hit"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	DurationMs       int64           `json:"duration_ms"`
	Error            string          `json:"error,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// BrandMention is one detected occurrence of a tracked name, persisted
// with its sentiment. Immutable once written.
type BrandMention struct {
	ID             string       `json:"id"`
	ExecutionID    string       `json:"execution_id"`
	ProjectID      string       `json:"project_id"`
	Provider       string       `json:"provider"`
	MatchedName    string       `json:"matched_name"`
	Type           mention.Type `json:"type"`
	Context        string       `json:"context"`
	Competitors    []string     `json:"competitors"`
	Features       []string     `json:"features"`
	Position       int          `json:"position"`
	SentimentLabel string       `json:"sentiment_label"`
	SentimentScore float64      `json:"sentiment_score"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Summary aggregates the mentions of one execution
type Summary struct {
	TotalMentions      int            `json:"total_mentions"`
	SentimentBreakdown map[string]int `json:"sentiment_breakdown"`
}

// Summarize builds a Summary over a mention set
func Summarize(mentions []*BrandMention) Summary {
	breakdown := map[string]int{
		mention.LabelPositive: 0,
		mention.LabelNeutral:  0,
		mention.LabelNegative: 0,
	}
	for _, m := range mentions {
		breakdown[m.SentimentLabel]++
	}
	return Summary{
		TotalMentions:      len(mentions),
		SentimentBreakdown: breakdown,
	}
}

// Project is the brand-monitoring unit: one tracked brand plus its
// competitors and queries, owned by a tenant
type Project struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	BrandName string    `json:"brand_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrackedQuery is a saved natural-language question run against providers
type TrackedQuery struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	QueryText string    `json:"query_text"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Competitor is a rival brand name tracked alongside the project's own
type Competitor struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
