package music

import (
	"fmt"
	"strconv"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/models"
)

const (
	// DefaultQuantum is the quarter length of one time step (a sixteenth note)
	DefaultQuantum = 0.25
	// DefaultVelocity matches the velocity notation tools assume when none is set
	DefaultVelocity = 90
)

// ReconstructOptions controls how symbols are collapsed into note events
type ReconstructOptions struct {
	Quantum  float64
	Velocity int
	// FlushTrailing emits the last pending symbol at the end of input.
	// When false the last symbol is only emitted if something follows it.
	FlushTrailing bool
}

// Reconstruction is the note event stream decoded from a symbol sequence
type Reconstruction struct {
	Events []models.NoteEvent
	// Dropped counts trailing symbols that were not emitted
	Dropped int
}

// TotalBeats returns the length of the event stream in quarter notes
func (r *Reconstruction) TotalBeats() float64 {
	if len(r.Events) == 0 {
		return 0
	}
	return r.Events[len(r.Events)-1].EndBeats()
}

// Reconstruct collapses pitch/rest symbols and their following sustains into
// events. Each sustain extends the preceding symbol by one quantum.
func Reconstruct(symbols []string, opts ReconstructOptions) (*Reconstruction, error) {
	if opts.Quantum <= 0 {
		opts.Quantum = DefaultQuantum
	}
	if opts.Velocity <= 0 {
		opts.Velocity = DefaultVelocity
	}

	result := &Reconstruction{Events: make([]models.NoteEvent, 0, len(symbols)/2)}
	var pending string
	hasPending := false
	steps := 1
	offset := 0.0

	emit := func(symbol string) error {
		event, err := newEvent(symbol, offset, float64(steps)*opts.Quantum, opts.Velocity)
		if err != nil {
			return err
		}
		result.Events = append(result.Events, event)
		offset = event.EndBeats()
		steps = 1
		return nil
	}

	for i, symbol := range symbols {
		isLast := i+1 == len(symbols)
		// A sustain in last position closes the pending symbol instead of
		// extending it, unless trailing flush is on.
		if symbol == Sustain && (!isLast || opts.FlushTrailing) {
			steps++
			continue
		}

		if hasPending {
			if err := emit(pending); err != nil {
				return nil, err
			}
		}
		pending = symbol
		hasPending = true
	}

	if hasPending && pending != Sustain {
		if opts.FlushTrailing {
			if err := emit(pending); err != nil {
				return nil, err
			}
		} else {
			result.Dropped = 1
		}
	}

	return result, nil
}

func newEvent(symbol string, offset, duration float64, velocity int) (models.NoteEvent, error) {
	if symbol == Rest {
		return models.NoteEvent{Rest: true, StartBeats: offset, DurationBeats: duration}, nil
	}
	if !isDigits(symbol) {
		return models.NoteEvent{}, apperrors.InvalidInput(
			fmt.Errorf("symbol %q is not a pitch or rest", symbol),
			fmt.Sprintf("Melody symbol %q cannot be turned into a note.", symbol))
	}
	pitch, err := strconv.Atoi(symbol)
	if err != nil {
		return models.NoteEvent{}, apperrors.InvalidInput(err, fmt.Sprintf("Melody symbol %q is not a valid pitch.", symbol))
	}
	return models.NoteEvent{
		MidiNoteNumber: pitch,
		Velocity:       velocity,
		StartBeats:     offset,
		DurationBeats:  duration,
	}, nil
}
