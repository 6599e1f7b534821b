package inference

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
)

// Model is a pretrained next-symbol classifier.
// Implementations are read-only after loading and safe for concurrent use.
type Model interface {
	// Predict takes a one-hot matrix of shape (steps, vocabulary size) and
	// returns a probability distribution over the vocabulary
	Predict(ctx context.Context, input [][]float64) ([]float64, error)

	// OutputSize returns the length of the probability vector
	OutputSize() int

	// Name identifies the model in logs and traces
	Name() string
}

// Supported backends
const (
	BackendLSTM   = "lstm"
	BackendRemote = "remote"
)

const defaultRemoteTimeout = 30 * time.Second

// inputSized is implemented by models that know their one-hot input width
type inputSized interface {
	InputSize() int
}

// Options selects and configures a model backend
type Options struct {
	Backend string
	// Path of the exported LSTM weights (lstm backend)
	Path string
	// Base URL of a TensorFlow Serving REST endpoint (remote backend)
	URL string
	// Model name on the serving endpoint
	Name string
	// VocabularySize the model must produce probabilities for
	VocabularySize int
	HTTPClient     *http.Client
}

// Load opens the configured backend once. The returned model is meant to be
// held for the lifetime of the process.
func Load(ctx context.Context, opts Options) (Model, error) {
	var (
		model Model
		err   error
	)

	switch strings.ToLower(opts.Backend) {
	case "", BackendLSTM:
		model, err = LoadLSTM(opts.Path)
	case BackendRemote:
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: defaultRemoteTimeout}
		}
		remote := NewRemoteModel(opts.URL, opts.Name, opts.VocabularySize, client)
		if err = remote.Ping(ctx); err == nil {
			model = remote
		}
	default:
		err = apperrors.ModelLoad(fmt.Errorf("unknown model backend %q (allowed: lstm, remote)", opts.Backend), "")
	}
	if err != nil {
		return nil, err
	}

	if opts.VocabularySize > 0 && model.OutputSize() != opts.VocabularySize {
		return nil, apperrors.ModelLoad(
			fmt.Errorf("model %s outputs %d classes, vocabulary has %d symbols", model.Name(), model.OutputSize(), opts.VocabularySize),
			"The melody model does not match the vocabulary.")
	}
	if sized, ok := model.(inputSized); ok && opts.VocabularySize > 0 && sized.InputSize() != opts.VocabularySize {
		return nil, apperrors.ModelLoad(
			fmt.Errorf("model %s expects %d input features, vocabulary has %d symbols", model.Name(), sized.InputSize(), opts.VocabularySize),
			"The melody model does not match the vocabulary.")
	}
	return model, nil
}

type unavailableModel struct {
	name string
	err  error
}

// Unavailable returns a model whose every prediction fails with err, so a
// server whose model failed to load keeps running and answers 503
func Unavailable(name string, err error) Model {
	if apperrors.Kind(err) != apperrors.KindModelLoad {
		err = apperrors.ModelLoad(err, "")
	}
	return &unavailableModel{name: name, err: err}
}

func (m *unavailableModel) Predict(context.Context, [][]float64) ([]float64, error) {
	return nil, m.err
}

func (m *unavailableModel) OutputSize() int { return 0 }

func (m *unavailableModel) Name() string { return m.name }
