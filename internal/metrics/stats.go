package metrics

import (
	"context"
	"time"
)

// GenerationStats describes one finished generation request
type GenerationStats struct {
	Model         string
	Strategy      string
	Duration      time.Duration
	Success       bool
	Steps         int
	Events        int
	DroppedEvents int
	StopReason    string
	ErrorKind     string
}

// GenerationRecorder receives generation metrics
type GenerationRecorder interface {
	RecordGeneration(ctx context.Context, stats GenerationStats)
}

// Multi fans a generation out to several recorders
type Multi []GenerationRecorder

// RecordGeneration forwards stats to every non-nil recorder
func (m Multi) RecordGeneration(ctx context.Context, stats GenerationStats) {
	for _, r := range m {
		if r != nil {
			r.RecordGeneration(ctx, stats)
		}
	}
}
