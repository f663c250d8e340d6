// internal/workers/ai-conversation/handle-chat-turn/config.go
package handlechatturn

import (
	"time"

	"retail-chat-workers/internal/common/config"
)

type Config struct {
	// Timeout bounds the whole job; the pipeline enforces its own turn budget inside it.
	Timeout       time.Duration
	MaxJobsActive int
}

// LoadConfig reads the worker entry, falling back to the defaults.
func LoadConfig(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)
	out := &Config{
		Timeout:       config.GetDuration(wc.Timeout),
		MaxJobsActive: wc.MaxJobsActive,
	}
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	if out.MaxJobsActive <= 0 {
		out.MaxJobsActive = 5
	}
	return out
}
