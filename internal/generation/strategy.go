package generation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
)

// Strategy picks the next symbol id from a probability distribution
type Strategy interface {
	Select(probs []float64) int
	Name() string
}

// Strategy names accepted in requests
const (
	StrategyGreedy = "greedy"
	StrategyTopK   = "top_k"
)

// Greedy always takes the most probable symbol. Ties go to the lowest index.
type Greedy struct{}

// Name returns "greedy"
func (Greedy) Name() string { return StrategyGreedy }

// Select returns the argmax of probs
func (Greedy) Select(probs []float64) int {
	return Argmax(probs)
}

// Argmax returns the index of the strictly highest value, the first one on ties
func Argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// TopK samples among the k most probable symbols after temperature scaling
type TopK struct {
	k           int
	temperature float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTopK creates a sampling strategy. k <= 0 keeps every symbol;
// temperature <= 0 falls back to 1.
func NewTopK(k int, temperature float64, seed int64) *TopK {
	if temperature <= 0 {
		temperature = 1
	}
	return &TopK{k: k, temperature: temperature, rng: rand.New(rand.NewSource(seed))}
}

// Name returns "top_k"
func (s *TopK) Name() string { return StrategyTopK }

// Select draws an index from the rescaled distribution
func (s *TopK) Select(probs []float64) int {
	n := len(probs)
	if n == 0 {
		return 0
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	k := s.k
	if k <= 0 || k > n {
		k = n
	}
	idx = idx[:k]

	weights := make([]float64, k)
	total := 0.0
	for i, j := range idx {
		weights[i] = math.Pow(math.Max(probs[j], 0), 1/s.temperature)
		total += weights[i]
	}
	if total <= 0 {
		return idx[0]
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	for i, w := range weights {
		r -= w
		if r <= 0 {
			return idx[i]
		}
	}
	return idx[k-1]
}

// StrategyOptions selects and parameterizes a strategy by name
type StrategyOptions struct {
	Name        string
	TopK        int
	Temperature float64
	Seed        int64
}

// NewStrategy builds the named strategy. An empty name means greedy.
func NewStrategy(opts StrategyOptions) (Strategy, error) {
	switch opts.Name {
	case "", StrategyGreedy:
		return Greedy{}, nil
	case StrategyTopK:
		return NewTopK(opts.TopK, opts.Temperature, opts.Seed), nil
	default:
		return nil, apperrors.NewInvalidInput(fmt.Sprintf("Unknown decoding strategy %q. Use %q or %q.", opts.Name, StrategyGreedy, StrategyTopK))
	}
}
