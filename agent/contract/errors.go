package contract

import (
	"context"
	"errors"
)

var (
	ErrConfig             = errors.New("invalid configuration")
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrAuthRejected       = errors.New("provider rejected credentials")
	ErrRateLimited        = errors.New("provider rate limited")
	ErrModelInvoke        = errors.New("model invoke failed")
	ErrUpstreamDisconnect = errors.New("provider stream disconnected")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrInvalidToolInput   = errors.New("invalid tool input")
	ErrToolExecution      = errors.New("tool execution failed")
	ErrToolTimeout        = errors.New("tool timed out")
	ErrStepLimitExceeded  = errors.New("tool step limit exceeded")
	ErrSchemaValidation   = errors.New("model response violates schema")
	ErrTurnTimeout        = errors.New("turn timed out")
	ErrCanceled           = errors.New("turn canceled")
	ErrPromptMissing      = errors.New("required prompt is missing")
)

// ErrorCode is the stable wire identifier of a taxonomy error.
type ErrorCode string

const (
	CodeConfig             ErrorCode = "config_error"
	CodeInvalidRequest     ErrorCode = "invalid_request"
	CodeNotFound           ErrorCode = "not_found"
	CodeAuthRejected       ErrorCode = "auth_rejected"
	CodeRateLimited        ErrorCode = "rate_limited"
	CodeUpstream           ErrorCode = "upstream_error"
	CodeUpstreamDisconnect ErrorCode = "upstream_disconnect"
	CodeUnknownTool        ErrorCode = "unknown_tool"
	CodeInvalidToolInput   ErrorCode = "invalid_tool_input"
	CodeToolExecution      ErrorCode = "tool_execution_error"
	CodeToolTimeout        ErrorCode = "tool_timeout"
	CodeStepLimitExceeded  ErrorCode = "step_limit_exceeded"
	CodeSchemaValidation   ErrorCode = "schema_validation_error"
	CodeTurnTimeout        ErrorCode = "turn_timeout"
	CodeCanceled           ErrorCode = "canceled"
	CodeInternal           ErrorCode = "internal_error"
)

type taxonomyEntry struct {
	err     error
	code    ErrorCode
	message string
}

// Order matters: the first match wins when an error wraps several sentinels.
var taxonomy = []taxonomyEntry{
	{ErrTurnTimeout, CodeTurnTimeout, "The assistant took too long to answer. Please try again."},
	{ErrCanceled, CodeCanceled, "The conversation turn was canceled."},
	{ErrAuthRejected, CodeAuthRejected, "The assistant is temporarily unavailable because its model provider rejected our credentials. Please contact the business administrator."},
	{ErrRateLimited, CodeRateLimited, "The assistant is receiving too many requests right now. Please wait a moment and try again."},
	{ErrUpstreamDisconnect, CodeUpstreamDisconnect, "The connection to the model provider was interrupted. Please try again."},
	{ErrStepLimitExceeded, CodeStepLimitExceeded, "The assistant could not finish its answer. Please rephrase your question."},
	{ErrSchemaValidation, CodeSchemaValidation, "The model returned a result in an unexpected format."},
	{ErrInvalidToolInput, CodeInvalidToolInput, "The tool was called with invalid input."},
	{ErrToolTimeout, CodeToolTimeout, "The tool did not respond in time."},
	{ErrUnknownTool, CodeUnknownTool, "The requested tool does not exist."},
	{ErrToolExecution, CodeToolExecution, "The tool failed to run."},
	{ErrNotFound, CodeNotFound, "The requested business was not found."},
	{ErrValidation, CodeInvalidRequest, "The request is invalid."},
	{ErrConfig, CodeConfig, "The service is misconfigured."},
	{ErrModelInvoke, CodeUpstream, "The model provider returned an error. Please try again later."},
}

// CodeOf maps err onto the error taxonomy. Bare context errors are
// reported as turn timeout or cancellation.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, e := range taxonomy {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTurnTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	}
	return CodeInternal
}

// PublicMessage returns a client-safe description of err. Raw upstream
// error bodies are never included.
func PublicMessage(err error) string {
	code := CodeOf(err)
	for _, e := range taxonomy {
		if e.code == code {
			return e.message
		}
	}
	return "Something went wrong. Please try again later."
}
