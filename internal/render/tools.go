package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Engraver turns a MusicXML score into an image and returns the image path
type Engraver interface {
	Engrave(ctx context.Context, musicXMLPath, imagePath string) (string, error)
}

// Synthesizer turns a MIDI file into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, midiPath, audioPath string) error
}

// MuseScore engraves scores with the MuseScore command line
type MuseScore struct {
	bin    string
	runner *Runner
}

// NewMuseScore creates an engraver running bin (usually mscore3)
func NewMuseScore(bin string, runner *Runner) *MuseScore {
	return &MuseScore{bin: bin, runner: runner}
}

// Engrave runs `mscore -o <png> <musicxml>`. MuseScore appends the page number
// to PNG output, so the first page is returned.
func (m *MuseScore) Engrave(ctx context.Context, musicXMLPath, imagePath string) (string, error) {
	if _, err := m.runner.Run(ctx, m.bin, "-o", imagePath, musicXMLPath); err != nil {
		return "", err
	}

	for _, candidate := range []string{FirstPagePath(imagePath), imagePath} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s produced no image for %s", m.bin, filepath.Base(musicXMLPath))
}

// FirstPagePath returns the path MuseScore writes page one of a PNG export to
func FirstPagePath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + "-1" + ext
}

// FluidSynth renders MIDI files through a SoundFont
type FluidSynth struct {
	bin        string
	soundfont  string
	sampleRate int
	runner     *Runner
}

// NewFluidSynth creates a synthesizer running bin with the given SoundFont
func NewFluidSynth(bin, soundfont string, sampleRate int, runner *Runner) *FluidSynth {
	return &FluidSynth{bin: bin, soundfont: soundfont, sampleRate: sampleRate, runner: runner}
}

// Synthesize runs `fluidsynth -ni <sf2> <mid> -F <wav> -r <rate>`
func (f *FluidSynth) Synthesize(ctx context.Context, midiPath, audioPath string) error {
	if _, err := os.Stat(f.soundfont); err != nil {
		return fmt.Errorf("soundfont %s: %w", f.soundfont, err)
	}

	args := []string{"-ni", f.soundfont, midiPath, "-F", audioPath, "-r", strconv.Itoa(f.sampleRate)}
	if _, err := f.runner.Run(ctx, f.bin, args...); err != nil {
		return err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("%s produced no audio: %w", f.bin, err)
	}
	return nil
}
