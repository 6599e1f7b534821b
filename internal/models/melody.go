package models

import "strconv"

// NoteEvent represents a single note or rest of a generated melody
type NoteEvent struct {
	MidiNoteNumber int     `json:"midiNoteNumber"`
	Rest           bool    `json:"rest,omitempty"`
	Velocity       int     `json:"velocity"`
	StartBeats     float64 `json:"startBeats"`
	DurationBeats  float64 `json:"durationBeats"` // quarter length
}

// Symbol returns the vocabulary symbol that starts this event
func (e NoteEvent) Symbol() string {
	if e.Rest {
		return "r"
	}
	return strconv.Itoa(e.MidiNoteNumber)
}

// EndBeats returns the offset at which the event stops sounding
func (e NoteEvent) EndBeats() float64 {
	return e.StartBeats + e.DurationBeats
}
