package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

// eino-ext surfaces upstream failures as formatted strings.
var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// ClassifyRequestError maps an error returned before any chunk arrived.
func ClassifyRequestError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if status := statusOf(err); status != 0 {
		return classifyStatus(status, err)
	}
	return fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
}

// ClassifyStreamError maps an error that interrupted an open stream.
func ClassifyStreamError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if status := statusOf(err); status != 0 {
		return classifyStatus(status, err)
	}
	return fmt.Errorf("%w: %v", contractx.ErrUpstreamDisconnect, err)
}

func statusOf(err error) int {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	if m := statusPattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	return 0
}

func classifyStatus(status int, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status=%d: %v", contractx.ErrAuthRejected, status, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: status=%d: %v", contractx.ErrRateLimited, status, err)
	default:
		return fmt.Errorf("%w: status=%d: %v", contractx.ErrModelInvoke, status, err)
	}
}
