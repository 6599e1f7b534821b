package music

import (
	"fmt"
	"math"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
)

// DefaultSeed is the phrase new sessions start with: C D E F G as quarter
// notes, in the same step form Append produces
const DefaultSeed = "60 _ _ _ 62 _ _ _ 64 _ _ _ 65 _ _ _ 67 _ _ _ "

// AcceptedDurations are the quarter lengths offered by the duration dropdown
var AcceptedDurations = []float64{
	0.25, // 16th note
	0.5,  // 8th note
	0.75,
	1.0, // quarter note
	1.5,
	2, // half note
	3,
	4, // whole note
}

// IsAcceptedDuration reports whether d is one of AcceptedDurations
func IsAcceptedDuration(d float64) bool {
	for _, accepted := range AcceptedDurations {
		if d == accepted {
			return true
		}
	}
	return false
}

// SeedEditor appends pitch/duration pairs to a seed in time-step form.
// It holds no seed itself; callers keep the seed in their own session.
type SeedEditor struct {
	symbolsByName map[string]string
	quantum       float64
}

// NewSeedEditor builds an editor from the vocabulary pitch choices
func NewSeedEditor(vocab *Vocabulary, quantum float64) *SeedEditor {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	choices := vocab.PitchChoices()
	byName := make(map[string]string, len(choices))
	for _, choice := range choices {
		byName[choice.Name] = choice.Symbol
	}
	return &SeedEditor{symbolsByName: byName, quantum: quantum}
}

// Append adds the symbol for pitchName followed by enough sustains for the
// symbol to span floor(duration/quantum) steps. Durations are not checked
// against AcceptedDurations here.
func (e *SeedEditor) Append(seed, pitchName string, duration float64) (string, error) {
	symbol, ok := e.Symbol(pitchName)
	if !ok {
		return seed, apperrors.VocabularyLookup(
			fmt.Errorf("pitch name %q not in vocabulary", pitchName),
			fmt.Sprintf("Unknown pitch %q.", pitchName))
	}

	var b strings.Builder
	b.WriteString(seed)
	b.WriteString(symbol)
	b.WriteString(" ")

	if duration > e.quantum {
		steps := int(math.Floor(duration / e.quantum))
		for i := 1; i < steps; i++ {
			b.WriteString(Sustain)
			b.WriteString(" ")
		}
	}
	return b.String(), nil
}

// Clear returns the empty seed
func (e *SeedEditor) Clear() string {
	return ""
}

// Symbol returns the vocabulary symbol for a pitch name
func (e *SeedEditor) Symbol(pitchName string) (string, bool) {
	symbol, ok := e.symbolsByName[pitchName]
	return symbol, ok
}
