package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    string
		message string
		status  int
	}{
		{
			name:    "vocabulary lookup with issue",
			err:     VocabularyLookup(errors.New("missing 99"), "Unknown symbol \"99\"."),
			kind:    "vocabulary_lookup",
			message: "Unknown symbol \"99\".",
			status:  http.StatusBadRequest,
		},
		{
			name:    "model load default message",
			err:     ModelLoad(errors.New("open model.json"), ""),
			kind:    "model_load",
			message: "The melody model is not available.",
			status:  http.StatusServiceUnavailable,
		},
		{
			name:    "render",
			err:     Render(errors.New("exit status 1"), ""),
			kind:    "render",
			message: "The score or audio could not be rendered.",
			status:  http.StatusInternalServerError,
		},
		{
			name:    "invalid input",
			err:     NewInvalidInput("Melody length must be between 100 and 1000."),
			kind:    "invalid_input",
			message: "Melody length must be between 100 and 1000.",
			status:  http.StatusBadRequest,
		},
		{
			name:    "untagged error",
			err:     errors.New("boom"),
			kind:    "internal",
			message: "Something went wrong.",
			status:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := Kind(tt.err)
			assert.Equal(t, tt.kind, string(kind))
			assert.Equal(t, tt.message, Message(tt.err))
			assert.Equal(t, tt.status, StatusCode(kind))
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Render(nil, "ignored"))
	assert.Equal(t, "", string(Kind(nil)))
	assert.Equal(t, "", Message(nil))
}

func TestKindSurvivesFurtherWrapping(t *testing.T) {
	err := fmt.Errorf("generate: %w", ModelInference(errors.New("bad shape"), ""))
	assert.Equal(t, KindModelInference, Kind(err))
}
