package models

// Values of PipelineResult.ServiceUsed.
const (
	ServiceGenAI        = "genai"
	ServiceFallback     = "fallback"
	ServiceBlocked      = "blocked"
	ServiceRateLimited  = "rate_limited"
	ServiceInvalidInput = "invalid_input"
)

// Degradation markers recorded in PipelineResult.Degraded.
const (
	DegradedIntentKeyword = "intent:keyword"
	DegradedSearchCatalog = "search:catalog"
	DegradedContextMemory = "context:memory"
	DegradedContextSave   = "context:save_failed"
	DegradedReplyTemplate = "reply:template"
	DegradedTurnTimeout   = "turn:timeout"
)

// PipelineResult is returned to the transport for every turn.
// ReplyText is never empty.
type PipelineResult struct {
	TurnID          string           `json:"turnId"`
	ReplyText       string           `json:"replyText"`
	Success         bool             `json:"success"`
	Intent          string           `json:"intent"`
	Confidence      float64          `json:"confidence"`
	Language        string           `json:"language"`
	Recommendations []Recommendation `json:"recommendations"`
	ServiceUsed     string           `json:"serviceUsed"`
	ContextUpdated  bool             `json:"contextUpdated"`
	Degraded        []string         `json:"degraded,omitempty"`
	DurationMs      int64            `json:"durationMs"`
}
