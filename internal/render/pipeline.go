package render

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/models"
)

// DefaultBaseName is the file stem of every artifact
const DefaultBaseName = "melody"

// Artifacts lists the files written for one melody. Image and Audio are
// empty when the corresponding tool is disabled.
type Artifacts struct {
	Dir      string `json:"-"`
	MIDI     string `json:"midi"`
	MusicXML string `json:"musicxml"`
	Image    string `json:"image,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// Links are the URLs artifacts are served under
type Links struct {
	MIDI     string `json:"midi"`
	MusicXML string `json:"musicxml"`
	Image    string `json:"image,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// Links maps each artifact to prefix/<dir name>/<file name>
func (a *Artifacts) Links(prefix string) Links {
	link := func(file string) string {
		if file == "" {
			return ""
		}
		return path.Join(prefix, filepath.Base(a.Dir), filepath.Base(file))
	}
	return Links{
		MIDI:     link(a.MIDI),
		MusicXML: link(a.MusicXML),
		Image:    link(a.Image),
		Audio:    link(a.Audio),
	}
}

// Pipeline writes MIDI and MusicXML, then runs the engraver and synthesizer
type Pipeline struct {
	midi     *MIDIWriter
	score    *MusicXMLWriter
	engraver Engraver
	synth    Synthesizer
	baseName string
}

// NewPipeline creates a pipeline. A nil engraver or synth skips that step.
func NewPipeline(midi *MIDIWriter, score *MusicXMLWriter, engraver Engraver, synth Synthesizer) *Pipeline {
	if midi == nil {
		midi = NewMIDIWriter()
	}
	if score == nil {
		score = NewMusicXMLWriter()
	}
	return &Pipeline{midi: midi, score: score, engraver: engraver, synth: synth, baseName: DefaultBaseName}
}

// Render writes all artifacts for events into dir. On failure the directory
// is removed and a render error returned.
func (p *Pipeline) Render(ctx context.Context, events []models.NoteEvent, dir string) (*Artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Render(fmt.Errorf("create %s: %w", dir, err), "")
	}

	artifacts, err := p.render(ctx, events, dir)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn("Failed to remove artifact directory", logger.Fields{"dir": dir, "error": rmErr.Error()})
		}
		return nil, err
	}
	return artifacts, nil
}

func (p *Pipeline) render(ctx context.Context, events []models.NoteEvent, dir string) (*Artifacts, error) {
	a := &Artifacts{
		Dir:      dir,
		MIDI:     filepath.Join(dir, p.baseName+".mid"),
		MusicXML: filepath.Join(dir, p.baseName+".musicxml"),
	}

	if err := p.midi.WriteFile(a.MIDI, events); err != nil {
		return nil, apperrors.Render(err, "The melody could not be written as MIDI.")
	}
	if err := p.score.WriteFile(a.MusicXML, events); err != nil {
		return nil, apperrors.Render(err, "The melody could not be written as a score.")
	}

	if p.engraver != nil {
		image, err := p.engraver.Engrave(ctx, a.MusicXML, filepath.Join(dir, p.baseName+".png"))
		if err != nil {
			return nil, apperrors.Render(err, "The score image could not be engraved.")
		}
		a.Image = image
	}

	if p.synth != nil {
		audio := filepath.Join(dir, p.baseName+".wav")
		if err := p.synth.Synthesize(ctx, a.MIDI, audio); err != nil {
			return nil, apperrors.Render(err, "The audio could not be synthesized.")
		}
		a.Audio = audio
	}

	return a, nil
}
