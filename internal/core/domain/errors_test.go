package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrFileTooLarge", ErrFileTooLarge},
		{"ErrNotProvisioned", ErrNotProvisioned},
		{"ErrTransport", ErrTransport},
		{"ErrBrokerUnavailable", ErrBrokerUnavailable},
		{"ErrStageFailed", ErrStageFailed},
		{"ErrTaskTimeLimit", ErrTaskTimeLimit},
		{"ErrDimensionMismatch", ErrDimensionMismatch},
		{"ErrEmbeddingFailed", ErrEmbeddingFailed},
		{"ErrNoRelevantDocuments", ErrNoRelevantDocuments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrNoRelevantDocuments_Message(t *testing.T) {
	assert.Equal(t, "no relevant documents found", ErrNoRelevantDocuments.Error())
}

func TestErrors_WrappedMatch(t *testing.T) {
	wrapped := fmt.Errorf("%w: openai: status 502", ErrTransport)

	assert.True(t, errors.Is(wrapped, ErrTransport))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func TestContractViolation_Error(t *testing.T) {
	cv := ContractViolation{Component: "ollama embedding", Reason: "model not set"}
	assert.Equal(t, "ollama embedding: model not set", cv.Error())
}
