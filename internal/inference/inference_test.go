package inference

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyWeights is a one-unit LSTM over a two-symbol vocabulary. Only the cell
// candidate gate has non-zero pre-activations, so every other gate sits at 0.5.
func tinyWeights() WeightsFile {
	return WeightsFile{
		Name:      "tiny",
		InputSize: 2,
		Layers: []LayerWeights{
			{
				Type:            "lstm",
				Units:           1,
				Kernel:          [][]float64{{0, 0, 2, 0}, {0, 0, 0, 0}},
				RecurrentKernel: [][]float64{{0, 0, 0, 0}},
				Bias:            []float64{0, 0, 1, 0},
			},
			{
				Type:       "dense",
				Units:      2,
				Activation: "softmax",
				Kernel:     [][]float64{{1, -1}},
				Bias:       []float64{0, 0},
			},
		},
	}
}

func expectedTinyOutput(candidates ...float64) []float64 {
	cell := 0.0
	for _, pre := range candidates {
		cell = 0.5*cell + 0.5*math.Tanh(pre)
	}
	h := 0.5 * math.Tanh(cell)
	return Softmax([]float64{h, -h})
}

func TestLSTMModel_Predict(t *testing.T) {
	model, err := NewLSTMModel(tinyWeights())
	require.NoError(t, err)
	assert.Equal(t, 2, model.OutputSize())
	assert.Equal(t, 2, model.InputSize())
	assert.Equal(t, "tiny", model.Name())

	tests := []struct {
		name       string
		input      [][]float64
		candidates []float64
	}{
		{name: "symbol 1", input: [][]float64{{0, 1}}, candidates: []float64{1}},
		{name: "symbol 0", input: [][]float64{{1, 0}}, candidates: []float64{3}},
		{name: "two steps", input: [][]float64{{1, 0}, {0, 1}}, candidates: []float64{3, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probs, err := model.Predict(context.Background(), tt.input)
			require.NoError(t, err)
			expected := expectedTinyOutput(tt.candidates...)
			require.Len(t, probs, 2)
			assert.InDelta(t, expected[0], probs[0], 1e-12)
			assert.InDelta(t, expected[1], probs[1], 1e-12)
			assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-12)
		})
	}
}

func TestLSTMModel_PredictErrors(t *testing.T) {
	model, err := NewLSTMModel(tinyWeights())
	require.NoError(t, err)

	_, err = model.Predict(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelInference, apperrors.Kind(err))

	_, err = model.Predict(context.Background(), [][]float64{{1, 0, 0}})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelInference, apperrors.Kind(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = model.Predict(ctx, [][]float64{{1, 0}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLSTMModel_BadShapes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *WeightsFile)
	}{
		{name: "kernel rows", mutate: func(w *WeightsFile) { w.Layers[0].Kernel = w.Layers[0].Kernel[:1] }},
		{name: "bias length", mutate: func(w *WeightsFile) { w.Layers[0].Bias = []float64{0} }},
		{name: "no dense layer", mutate: func(w *WeightsFile) { w.Layers = w.Layers[:1] }},
		{name: "unknown layer", mutate: func(w *WeightsFile) { w.Layers[1].Type = "conv1d" }},
		{name: "unknown activation", mutate: func(w *WeightsFile) { w.Layers[1].Activation = "gelu" }},
		{name: "zero input", mutate: func(w *WeightsFile) { w.InputSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := tinyWeights()
			tt.mutate(&weights)
			_, err := NewLSTMModel(weights)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindModelLoad, apperrors.Kind(err))
		})
	}
}

func TestLoad_LSTMFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu_model.json")
	data, err := json.Marshal(tinyWeights())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	model, err := Load(context.Background(), Options{Backend: BackendLSTM, Path: path, VocabularySize: 2})
	require.NoError(t, err)
	assert.Equal(t, "tiny", model.Name())

	_, err = Load(context.Background(), Options{Backend: BackendLSTM, Path: path, VocabularySize: 3})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelLoad, apperrors.Kind(err))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(context.Background(), Options{Backend: "onnx"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelLoad, apperrors.Kind(err))

	_, err = Load(context.Background(), Options{Backend: BackendLSTM, Path: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelLoad, apperrors.Kind(err))

	// three output classes match the vocabulary but the input is two wide
	weights := tinyWeights()
	weights.Layers[1].Units = 3
	weights.Layers[1].Kernel = [][]float64{{1, -1, 0}}
	weights.Layers[1].Bias = []float64{0, 0, 0}
	path := filepath.Join(t.TempDir(), "narrow.json")
	data, err := json.Marshal(weights)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = Load(context.Background(), Options{Backend: BackendLSTM, Path: path, VocabularySize: 3})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelLoad, apperrors.Kind(err))
	assert.Contains(t, err.Error(), "input features")
}

func TestRemoteModel(t *testing.T) {
	var received predictRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/models/melody":
			_, _ = w.Write([]byte(`{"model_version_status":[{"state":"AVAILABLE"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/models/melody:predict":
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"predictions": [[0.1, 0.7, 0.2]]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	model, err := Load(context.Background(), Options{
		Backend:        BackendRemote,
		URL:            server.URL + "/",
		Name:           "melody",
		VocabularySize: 3,
		HTTPClient:     server.Client(),
	})
	require.NoError(t, err)

	probs, err := model.Predict(context.Background(), [][]float64{{1, 0, 0}, {0, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.7, 0.2}, probs)
	require.Len(t, received.Instances, 1)
	assert.Equal(t, [][]float64{{1, 0, 0}, {0, 1, 0}}, received.Instances[0])
}

func TestRemoteModel_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := Load(context.Background(), Options{Backend: BackendRemote, URL: server.URL, Name: "melody", HTTPClient: server.Client()})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelLoad, apperrors.Kind(err))

	remote := NewRemoteModel(server.URL, "melody", 3, server.Client())
	_, err = remote.Predict(context.Background(), [][]float64{{1, 0, 0}})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelInference, apperrors.Kind(err))
}

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float64{1, 2, 3})
	total := 0.0
	for _, p := range probs {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-12)
	assert.Greater(t, probs[2], probs[1])
	assert.Nil(t, Softmax(nil))
}

func TestUnavailable(t *testing.T) {
	model := Unavailable("melody", errors.New("weights missing"))
	assert.Equal(t, "melody", model.Name())

	_, err := model.Predict(context.Background(), [][]float64{{1}})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindModelLoad, apperrors.Kind(err))
	assert.Contains(t, err.Error(), "weights missing")
}
