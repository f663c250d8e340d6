// internal/workers/ai-conversation/handle-chat-turn/handler.go
package handlechatturn

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "retail-chat-workers/internal/common/errors"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/common/metrics"
	"retail-chat-workers/internal/common/observability"
	"retail-chat-workers/internal/models"
)

const TaskType = "handle-chat-turn"

// TurnHandler runs one message through the chat pipeline.
type TurnHandler interface {
	HandleTurn(ctx context.Context, msg models.InboundMessage) models.PipelineResult
}

type Handler struct {
	config   *Config
	pipeline TurnHandler
	errors   *apperrors.ErrorHandler
	obs      *observability.Observability
	logger   logger.Logger
}

func NewHandler(cfg *Config, pipeline TurnHandler, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   cfg,
		pipeline: pipeline,
		errors:   apperrors.NewErrorHandler(log),
		obs:      obs,
		logger:   log,
	}
}

// Handle completes every job that carries a readable message; the pipeline
// itself never fails a turn. Unreadable variables throw INVALID_INPUT.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := ParseInput(job.Variables)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
		h.obs.RecordJobProcessed(ctx, "failed")
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	output := h.Execute(ctx, input)
	h.completeJob(ctx, client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.obs.RecordJobProcessed(ctx, "completed")
	h.obs.RecordJobDuration(ctx, time.Since(start), "completed")
}

// ParseInput decodes job variables. Missing fields are left to the
// pipeline, which answers them with an invalid-input reply.
func ParseInput(variables string) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidInputError("job variables are not a JSON object: " + err.Error())
	}
	return &input, nil
}

// Execute runs the pipeline for input outside of a job.
func (h *Handler) Execute(ctx context.Context, input *Input) *Output {
	res := h.pipeline.HandleTurn(ctx, models.InboundMessage{
		Text:       input.Text,
		UserID:     input.UserID,
		Platform:   input.Platform,
		FormatHint: input.FormatHint,
		ReceivedAt: time.Now().UTC(),
	})

	h.logger.Info("turn handled", map[string]interface{}{
		"turnId":      res.TurnID,
		"serviceUsed": res.ServiceUsed,
		"durationMs":  res.DurationMs,
	})

	return &Output{
		ChatResult: res,
		ReplyText:  res.ReplyText,
		Blocked:    res.ServiceUsed == models.ServiceBlocked,
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}
