package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
)

const maxErrorBodyBytes = 512

// RemoteModel queries a TensorFlow Serving REST endpoint
type RemoteModel struct {
	baseURL    string
	name       string
	outputSize int
	client     *http.Client
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// NewRemoteModel creates a client for <baseURL>/v1/models/<name>
func NewRemoteModel(baseURL, name string, outputSize int, client *http.Client) *RemoteModel {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteModel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		name:       name,
		outputSize: outputSize,
		client:     client,
	}
}

// Name returns the served model name
func (m *RemoteModel) Name() string { return m.name }

// OutputSize returns the expected number of classes
func (m *RemoteModel) OutputSize() int { return m.outputSize }

func (m *RemoteModel) modelURL() string {
	return fmt.Sprintf("%s/v1/models/%s", m.baseURL, m.name)
}

// Ping checks that the model is available on the serving endpoint
func (m *RemoteModel) Ping(ctx context.Context) error {
	if m.baseURL == "" || m.name == "" {
		return apperrors.ModelLoad(fmt.Errorf("remote model needs a URL and a name"), "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.modelURL(), nil)
	if err != nil {
		return apperrors.ModelLoad(err, "")
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return apperrors.ModelLoad(fmt.Errorf("reach model server: %w", err), "")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return apperrors.ModelLoad(fmt.Errorf("model status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), "")
	}
	return nil
}

// Predict posts a single instance and returns its prediction
func (m *RemoteModel) Predict(ctx context.Context, input [][]float64) ([]float64, error) {
	payload, err := json.Marshal(predictRequest{Instances: [][][]float64{input}})
	if err != nil {
		return nil, apperrors.ModelInference(err, "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.modelURL()+":predict", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.ModelInference(err, "")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperrors.ModelInference(fmt.Errorf("predict request: %w", err), "")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, apperrors.ModelInference(fmt.Errorf("predict status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), "")
	}

	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.ModelInference(fmt.Errorf("decode prediction: %w", err), "")
	}
	if decoded.Error != "" {
		return nil, apperrors.ModelInference(fmt.Errorf("model server: %s", decoded.Error), "")
	}
	if len(decoded.Predictions) != 1 {
		return nil, apperrors.ModelInference(fmt.Errorf("expected 1 prediction, got %d", len(decoded.Predictions)), "")
	}
	return decoded.Predictions[0], nil
}
