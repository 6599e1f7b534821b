package render

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Conceptual-Machines/melody-api/internal/models"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// MIDI file defaults
const (
	DefaultTicksPerQuarter = 480
	DefaultBPM             = 120.0
	DefaultProgram         = 0
)

// MIDIWriter writes note events as a single-track standard MIDI file
type MIDIWriter struct {
	TicksPerQuarter uint16
	BPM             float64
	Channel         uint8
	Program         uint8
	TrackName       string
}

// NewMIDIWriter returns a writer with 480 ticks per quarter at 120 bpm in 4/4
func NewMIDIWriter() *MIDIWriter {
	return &MIDIWriter{
		TicksPerQuarter: DefaultTicksPerQuarter,
		BPM:             DefaultBPM,
		Program:         DefaultProgram,
		TrackName:       "Melody",
	}
}

// Ticks converts a length in quarter notes to ticks
func (w *MIDIWriter) Ticks(beats float64) uint32 {
	if beats <= 0 {
		return 0
	}
	return uint32(math.Round(beats * float64(w.TicksPerQuarter)))
}

// Write encodes events to out. Rests only advance time.
func (w *MIDIWriter) Write(out io.Writer, events []models.NoteEvent) error {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(w.TicksPerQuarter)

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(w.TrackName))
	tr.Add(0, smf.MetaMeter(4, 4))
	tr.Add(0, smf.MetaTempo(w.BPM))
	tr.Add(0, gomidi.ProgramChange(w.Channel, w.Program))

	var pending uint32
	for _, ev := range events {
		length := w.Ticks(ev.DurationBeats)
		if ev.Rest {
			pending += length
			continue
		}
		if ev.MidiNoteNumber < 0 || ev.MidiNoteNumber > 127 {
			return fmt.Errorf("pitch %d outside MIDI range", ev.MidiNoteNumber)
		}
		velocity := ev.Velocity
		if velocity <= 0 || velocity > 127 {
			velocity = 90
		}
		key := uint8(ev.MidiNoteNumber)
		tr.Add(pending, gomidi.NoteOn(w.Channel, key, uint8(velocity)))
		tr.Add(length, gomidi.NoteOff(w.Channel, key))
		pending = 0
	}
	tr.Close(pending)

	if err := s.Add(tr); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	if _, err := s.WriteTo(out); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

// WriteFile writes events to path
func (w *MIDIWriter) WriteFile(path string, events []models.NoteEvent) error {
	var buf bytes.Buffer
	if err := w.Write(&buf, events); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
