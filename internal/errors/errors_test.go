package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NetworkError
		expected string
	}{
		{"status with detail", NewStatusError("fetch customers", 500, "Internal server error"), "fetch customers: HTTP 500: Internal server error"},
		{"status only", NewStatusError("fetch summary", 502, ""), "fetch summary: HTTP 502"},
		{"transport", NewNetworkError("fetch summary", stderrors.New("connection refused")), "fetch summary: connection refused"},
		{"empty", &NetworkError{Op: "fetch"}, "fetch: request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNetworkErrorUnwrap(t *testing.T) {
	base := stderrors.New("boom")
	err := fmt.Errorf("loading: %w", NewNetworkError("fetch", base))

	assert.ErrorIs(t, err, base)
	assert.True(t, IsNetworkFailure(err))
	assert.Equal(t, 0, StatusCode(err))
}

func TestMalformedIsNetworkFailure(t *testing.T) {
	err := NewMalformedResponseError("fetch summary", stderrors.New("unexpected EOF"))

	assert.True(t, IsNetworkFailure(err))
	assert.True(t, IsMalformedResponse(err))
	assert.Contains(t, err.Error(), "malformed response")
}

func TestClassification(t *testing.T) {
	notFound := NewNotFoundError("customer", "CUST404")
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNetworkFailure(notFound))
	assert.Equal(t, `customer "CUST404" not found`, notFound.Error())

	input := NewUserInputError("please select a %s file", "JSON")
	assert.True(t, IsUserInput(input))
	assert.Equal(t, "please select a JSON file", input.Error())

	job := &TerminalJobError{Total: 10, Processed: 10, Succeeded: 7, Failed: 3}
	assert.True(t, IsTerminalJob(job))
	assert.Equal(t, "processing failed after 10/10 records (7 succeeded, 3 failed)", job.Error())

	assert.Equal(t, 404, StatusCode(fmt.Errorf("wrapped: %w", NewStatusError("op", 404, ""))))
}
