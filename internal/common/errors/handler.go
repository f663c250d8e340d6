// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler turns a failed chat turn job into a Zeebe fail or throw
// command. Chat turns degrade instead of failing, so in practice only
// malformed job variables and worker panics reach it.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// JobOutcome is what HandleJobError does with a job.
type JobOutcome struct {
	Throw   bool
	Retries int
}

// Decide fails the job with a retry budget when the code is retryable and
// the job has retries left, and throws a BPMN error otherwise. The budget
// never exceeds what the job still has.
func Decide(code ErrorCode, remaining int32) JobOutcome {
	budget := GetRetryCount(code)
	if budget <= 0 || remaining <= 0 {
		return JobOutcome{Throw: true}
	}
	if int(remaining) < budget {
		budget = int(remaining)
	}
	return JobOutcome{Retries: budget}
}

func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	outcome := Decide(stdErr.Code, job.Retries)

	h.log(job, stdErr, bpmnErr, outcome)

	vars := errorVariables(bpmnErr)
	if outcome.Throw {
		cmd := client.NewThrowErrorCommand().
			JobKey(job.Key).
			ErrorCode(bpmnErr.Code).
			ErrorMessage(bpmnErr.Message)
		if vars != "" {
			if withVars, err := cmd.VariablesFromString(vars); err == nil {
				_, _ = withVars.Send(ctx)
				return
			}
		}
		_, _ = cmd.Send(ctx)
		return
	}

	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(outcome.Retries)).
		ErrorMessage(bpmnErr.Message)
	if vars != "" {
		if withVars, err := cmd.VariablesFromString(vars); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

func normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", errDetails(err), false, err)
}

// errorVariables is the JSON object set on the process, or "" when there is
// nothing to set.
func errorVariables(bpmnErr *BPMNError) string {
	vars := bpmnErr.ToErrorVariables()
	if len(vars) == 0 {
		return ""
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return ""
	}
	return string(data)
}

// jobUserID pulls userId out of the job variables for log correlation.
func jobUserID(job entities.Job) string {
	var vars struct {
		UserID string `json:"userId"`
	}
	if job.Variables == "" || json.Unmarshal([]byte(job.Variables), &vars) != nil {
		return ""
	}
	return vars.UserID
}

func (h *ErrorHandler) log(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, outcome JobOutcome) {
	fields := map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"processInstanceKey": job.ProcessInstanceKey,
		"errorCode":          string(stdErr.Code),
		"bpmnErrorCode":      bpmnErr.Code,
		"errorCategory":      GetErrorCategory(stdErr.Code),
		"details":            stdErr.Details,
		"thrown":             outcome.Throw,
		"retries":            outcome.Retries,
	}
	if userID := jobUserID(job); userID != "" {
		fields["userId"] = userID
	}

	if GetErrorCategory(stdErr.Code) == "INPUT" {
		h.logger.Warn("Chat turn job rejected", fields)
		return
	}
	h.logger.Error("Chat turn job failed", fields)
}
