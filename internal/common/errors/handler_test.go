package errors

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		remaining int32
		want      JobOutcome
	}{
		{"invalid input throws", ErrCodeInvalidInput, 3, JobOutcome{Throw: true}},
		{"upstream retries", ErrCodeSearchUnavailable, 5, JobOutcome{Retries: 3}},
		{"budget capped by remaining", ErrCodeExternalService, 2, JobOutcome{Retries: 2}},
		{"no retries left throws", ErrCodeContextStoreUnavailable, 0, JobOutcome{Throw: true}},
		{"timeout retries once", ErrCodeTimeout, 3, JobOutcome{Retries: 1}},
		{"internal throws", ErrCodeInternal, 3, JobOutcome{Throw: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.code, tt.remaining))
		})
	}
}

func TestNormalize(t *testing.T) {
	typed := NewLLMTimeoutError(2 * time.Second)
	assert.Same(t, typed, normalize(typed))

	plain := normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)
}

func TestErrorVariables(t *testing.T) {
	vars := errorVariables(ConvertToBPMNError(NewInvalidInputError("text is required")))
	assert.Contains(t, vars, `"errorCode"`)
	assert.Contains(t, vars, "INVALID_INPUT")
}

func TestJobUserID(t *testing.T) {
	tests := []struct {
		name string
		vars string
		want string
	}{
		{"present", `{"text":"hi","userId":"u-42"}`, "u-42"},
		{"missing", `{"text":"hi"}`, ""},
		{"not json", `{`, ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, Variables: tt.vars}}
			assert.Equal(t, tt.want, jobUserID(job))
		})
	}
}
