package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"gonum.org/v1/gonum/mat"
)

// Layer types understood in exported weight files
const (
	layerLSTM  = "lstm"
	layerDense = "dense"
)

// WeightsFile is the JSON export of a Keras Sequential model made of LSTM
// layers followed by Dense layers. Matrices keep the Keras layout:
// kernel is (inputs, 4*units) with gates ordered input, forget, cell, output.
type WeightsFile struct {
	Name      string         `json:"name"`
	InputSize int            `json:"input_size"`
	Layers    []LayerWeights `json:"layers"`
}

// LayerWeights holds the parameters of one layer
type LayerWeights struct {
	Type            string      `json:"type"`
	Units           int         `json:"units"`
	Activation      string      `json:"activation,omitempty"`
	Kernel          [][]float64 `json:"kernel"`
	RecurrentKernel [][]float64 `json:"recurrent_kernel,omitempty"`
	Bias            []float64   `json:"bias"`
}

type lstmLayer struct {
	units     int
	kernel    *mat.Dense // inputs x 4*units
	recurrent *mat.Dense // units x 4*units
	bias      *mat.VecDense
}

type denseLayer struct {
	kernel     *mat.Dense // inputs x units
	bias       *mat.VecDense
	activation string
}

// LSTMModel runs the forward pass of an exported LSTM classifier in process
type LSTMModel struct {
	name       string
	inputSize  int
	outputSize int
	recurrent  []lstmLayer
	dense      []denseLayer
}

// LoadLSTM reads exported weights from path
func LoadLSTM(path string) (*LSTMModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.ModelLoad(fmt.Errorf("open model weights: %w", err), "")
	}
	defer f.Close()

	var weights WeightsFile
	if err := json.NewDecoder(f).Decode(&weights); err != nil {
		return nil, apperrors.ModelLoad(fmt.Errorf("decode model weights %s: %w", path, err), "")
	}
	if weights.Name == "" {
		weights.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return NewLSTMModel(weights)
}

// NewLSTMModel validates shapes and builds the network
func NewLSTMModel(weights WeightsFile) (*LSTMModel, error) {
	if weights.InputSize <= 0 {
		return nil, apperrors.ModelLoad(fmt.Errorf("input_size must be positive, got %d", weights.InputSize), "")
	}

	m := &LSTMModel{name: weights.Name, inputSize: weights.InputSize}
	width := weights.InputSize

	for i, layer := range weights.Layers {
		switch strings.ToLower(layer.Type) {
		case layerLSTM:
			if len(m.dense) > 0 {
				return nil, shapeError(i, "lstm layer after dense layer")
			}
			built, err := buildLSTM(layer, width)
			if err != nil {
				return nil, shapeError(i, err.Error())
			}
			m.recurrent = append(m.recurrent, built)
			width = layer.Units

		case layerDense:
			if len(m.recurrent) == 0 {
				return nil, shapeError(i, "dense layer before any lstm layer")
			}
			built, err := buildDense(layer, width)
			if err != nil {
				return nil, shapeError(i, err.Error())
			}
			m.dense = append(m.dense, built)
			width = layer.Units

		default:
			return nil, shapeError(i, fmt.Sprintf("unsupported layer type %q", layer.Type))
		}
	}

	if len(m.dense) == 0 {
		return nil, apperrors.ModelLoad(fmt.Errorf("model has no dense output layer"), "")
	}
	m.outputSize = width
	return m, nil
}

func shapeError(layer int, msg string) error {
	return apperrors.ModelLoad(fmt.Errorf("layer %d: %s", layer, msg), "The melody model file is malformed.")
}

func buildLSTM(layer LayerWeights, inputs int) (lstmLayer, error) {
	if layer.Units <= 0 {
		return lstmLayer{}, fmt.Errorf("units must be positive")
	}
	gates := 4 * layer.Units
	kernel, err := denseFromRows(layer.Kernel, inputs, gates)
	if err != nil {
		return lstmLayer{}, fmt.Errorf("kernel: %w", err)
	}
	recurrent, err := denseFromRows(layer.RecurrentKernel, layer.Units, gates)
	if err != nil {
		return lstmLayer{}, fmt.Errorf("recurrent_kernel: %w", err)
	}
	if len(layer.Bias) != gates {
		return lstmLayer{}, fmt.Errorf("bias has %d values, want %d", len(layer.Bias), gates)
	}
	return lstmLayer{
		units:     layer.Units,
		kernel:    kernel,
		recurrent: recurrent,
		bias:      mat.NewVecDense(gates, append([]float64(nil), layer.Bias...)),
	}, nil
}

func buildDense(layer LayerWeights, inputs int) (denseLayer, error) {
	if layer.Units <= 0 {
		return denseLayer{}, fmt.Errorf("units must be positive")
	}
	kernel, err := denseFromRows(layer.Kernel, inputs, layer.Units)
	if err != nil {
		return denseLayer{}, fmt.Errorf("kernel: %w", err)
	}
	if len(layer.Bias) != layer.Units {
		return denseLayer{}, fmt.Errorf("bias has %d values, want %d", len(layer.Bias), layer.Units)
	}
	activation := strings.ToLower(layer.Activation)
	switch activation {
	case "", "linear", "softmax", "relu":
	default:
		return denseLayer{}, fmt.Errorf("unsupported activation %q", layer.Activation)
	}
	return denseLayer{
		kernel:     kernel,
		bias:       mat.NewVecDense(layer.Units, append([]float64(nil), layer.Bias...)),
		activation: activation,
	}, nil
}

func denseFromRows(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("has %d rows, want %d", len(rows), r)
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

// Name returns the model name
func (m *LSTMModel) Name() string { return m.name }

// OutputSize returns the number of classes
func (m *LSTMModel) OutputSize() int { return m.outputSize }

// InputSize returns the one-hot width the model expects
func (m *LSTMModel) InputSize() int { return m.inputSize }

// Predict runs the network over the input steps and returns the output of the
// last step
func (m *LSTMModel) Predict(ctx context.Context, input [][]float64) ([]float64, error) {
	if len(input) == 0 {
		return nil, apperrors.ModelInference(fmt.Errorf("empty input sequence"), "")
	}

	seq := make([]*mat.VecDense, len(input))
	for i, row := range input {
		if len(row) != m.inputSize {
			return nil, apperrors.ModelInference(
				fmt.Errorf("step %d has width %d, model expects %d", i, len(row), m.inputSize), "")
		}
		seq[i] = mat.NewVecDense(m.inputSize, append([]float64(nil), row...))
	}

	for _, layer := range m.recurrent {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq = layer.forward(seq)
	}

	out := seq[len(seq)-1]
	for _, layer := range m.dense {
		out = layer.forward(out)
	}
	return out.RawVector().Data, nil
}

func (l lstmLayer) forward(seq []*mat.VecDense) []*mat.VecDense {
	u := l.units
	h := mat.NewVecDense(u, nil)
	c := mat.NewVecDense(u, nil)
	z := mat.NewVecDense(4*u, nil)
	rec := mat.NewVecDense(4*u, nil)

	outputs := make([]*mat.VecDense, len(seq))
	for t, x := range seq {
		z.MulVec(l.kernel.T(), x)
		rec.MulVec(l.recurrent.T(), h)
		z.AddVec(z, rec)
		z.AddVec(z, l.bias)

		next := mat.NewVecDense(u, nil)
		for j := 0; j < u; j++ {
			in := sigmoid(z.AtVec(j))
			forget := sigmoid(z.AtVec(u + j))
			cand := math.Tanh(z.AtVec(2*u + j))
			out := sigmoid(z.AtVec(3*u + j))

			cell := forget*c.AtVec(j) + in*cand
			c.SetVec(j, cell)
			next.SetVec(j, out*math.Tanh(cell))
		}
		h = next
		outputs[t] = next
	}
	return outputs
}

func (l denseLayer) forward(x *mat.VecDense) *mat.VecDense {
	_, units := l.kernel.Dims()
	out := mat.NewVecDense(units, nil)
	out.MulVec(l.kernel.T(), x)
	out.AddVec(out, l.bias)

	switch l.activation {
	case "softmax":
		probs := Softmax(out.RawVector().Data)
		return mat.NewVecDense(units, probs)
	case "relu":
		for i := 0; i < units; i++ {
			if out.AtVec(i) < 0 {
				out.SetVec(i, 0)
			}
		}
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Softmax converts logits into probabilities
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	probs := make([]float64, len(logits))
	total := 0.0
	for i, v := range logits {
		probs[i] = math.Exp(v - maxVal)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}
