// internal/workers/ai-conversation/handle-chat-turn/models.go
package handlechatturn

import "retail-chat-workers/internal/models"

// Input are the process variables a chat turn job starts from.
type Input struct {
	Text       string `json:"text"`
	UserID     string `json:"userId"`
	Platform   string `json:"platform"`
	FormatHint string `json:"formatHint"`
}

type Output struct {
	ChatResult models.PipelineResult `json:"chatResult"`
	ReplyText  string                `json:"replyText"`
	Blocked    bool                  `json:"blocked"`
}
