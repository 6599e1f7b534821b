package models

import (
	"time"
)

// Generation statuses
const (
	GenerationStatusSucceeded = "succeeded"
	GenerationStatusFailed    = "failed"
)

// Stop reasons reported by the decoder
const (
	StopReasonEndMarker = "end_marker"
	StopReasonLength    = "length"
)

// Generation records one melody generation request
type Generation struct {
	ID              string    `gorm:"primarykey;size:36" json:"id"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	SessionID       string    `gorm:"index;size:64" json:"session_id"`
	UserID          string    `gorm:"index;size:64" json:"user_id,omitempty"`
	RequestID       string    `gorm:"size:36" json:"request_id,omitempty"`
	ModelName       string    `json:"model_name"`
	Strategy        string    `json:"strategy"`
	Seed            string    `gorm:"type:text" json:"seed"`
	RequestedLength int       `gorm:"not null" json:"requested_length"`
	GeneratedSteps  int       `json:"generated_steps"`
	EventCount      int       `json:"event_count"`
	DroppedEvents   int       `json:"dropped_events"`
	StopReason      string    `json:"stop_reason,omitempty"`
	Symbols         string    `gorm:"type:text" json:"symbols,omitempty"`
	MIDIPath        string    `json:"midi_path,omitempty"`
	MusicXMLPath    string    `json:"musicxml_path,omitempty"`
	ImagePath       string    `json:"image_path,omitempty"`
	AudioPath       string    `json:"audio_path,omitempty"`
	Status          string    `gorm:"index;not null" json:"status"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	DurationMS      int       `json:"duration_ms"`
}
