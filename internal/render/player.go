package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/models"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Player sends note events to a MIDI output port in real time.
// A driver must be registered by the caller (for example rtmididrv).
type Player struct {
	send    func(gomidi.Message) error
	port    string
	bpm     float64
	channel uint8
}

// OutPorts lists the names of available MIDI output ports
func OutPorts() []string {
	var names []string
	for _, port := range gomidi.GetOutPorts() {
		names = append(names, port.String())
	}
	return names
}

// OpenPlayer opens the first output port whose name contains portName
func OpenPlayer(portName string, bpm float64) (*Player, error) {
	for _, port := range gomidi.GetOutPorts() {
		if !strings.Contains(port.String(), portName) {
			continue
		}
		send, err := gomidi.SendTo(port)
		if err != nil {
			return nil, fmt.Errorf("open MIDI port %s: %w", port.String(), err)
		}
		return NewPlayer(send, port.String(), bpm), nil
	}
	return nil, fmt.Errorf("no MIDI output port matching %q", portName)
}

// NewPlayer wraps an existing sender
func NewPlayer(send func(gomidi.Message) error, port string, bpm float64) *Player {
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	return &Player{send: send, port: port, bpm: bpm}
}

// Port returns the name of the output port
func (p *Player) Port() string {
	return p.port
}

func (p *Player) beatDuration(beats float64) time.Duration {
	return time.Duration(beats * float64(time.Minute) / p.bpm)
}

// Play blocks until every event has sounded or ctx is done
func (p *Player) Play(ctx context.Context, events []models.NoteEvent) error {
	for _, ev := range events {
		wait := p.beatDuration(ev.DurationBeats)
		if ev.Rest {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		key := uint8(ev.MidiNoteNumber)
		velocity := uint8(ev.Velocity)
		if velocity == 0 {
			velocity = 90
		}
		if err := p.send(gomidi.NoteOn(p.channel, key, velocity)); err != nil {
			return fmt.Errorf("send note on: %w", err)
		}
		err := sleep(ctx, wait)
		if offErr := p.send(gomidi.NoteOff(p.channel, key)); offErr != nil && err == nil {
			err = fmt.Errorf("send note off: %w", offErr)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
