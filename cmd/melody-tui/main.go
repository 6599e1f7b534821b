// Command melody-tui edits a seed and generates melodies in the terminal,
// optionally previewing them on a MIDI output port.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/Conceptual-Machines/melody-api/internal/generation"
	"github.com/Conceptual-Machines/melody-api/internal/inference"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/Conceptual-Machines/melody-api/internal/render"
	"github.com/Conceptual-Machines/melody-api/pkg/embedded"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

const logFileName = "melody-tui.log"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	// The alternate screen owns stdout; logs go to a file next to the artifacts
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.OutputDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vocab, source, err := music.LoadVocabularyWithFallback(cfg.VocabPath, embedded.DefaultVocabularyJSON)
	if err != nil {
		return err
	}
	logger.Info("Vocabulary loaded", logger.Fields{"source": source, "size": vocab.Size()})

	model, err := inference.Load(ctx, inference.Options{
		Backend:        cfg.ModelBackend,
		Path:           cfg.ModelPath,
		URL:            cfg.ModelURL,
		Name:           cfg.ModelName,
		VocabularySize: vocab.Size(),
	})
	if err != nil {
		return err
	}

	runner := render.NewRunner(cfg.RenderTimeout, "")
	var (
		engraver render.Engraver
		synth    render.Synthesizer
	)
	if cfg.ScoreImageEnabled() {
		engraver = render.NewMuseScore(cfg.MuseScoreBin, runner)
	}
	if cfg.AudioEnabled() {
		synth = render.NewFluidSynth(cfg.FluidSynthBin, cfg.SoundfontPath, cfg.SampleRate, runner)
	}

	service := generation.NewService(
		generation.NewDecoder(vocab, model, cfg.SequenceLength),
		render.NewPipeline(nil, nil, engraver, synth),
		generation.ServiceConfig{
			ModelName:     cfg.ModelName,
			Quantum:       cfg.StepDuration,
			FlushTrailing: cfg.FlushTrailingNote,
			MinLength:     cfg.MinLength,
			MaxLength:     cfg.MaxLength,
			OutputDir:     cfg.OutputDir,
		},
	)

	var player previewer
	if cfg.MIDIOutPort != "" {
		defer gomidi.CloseDriver()
		p, err := render.OpenPlayer(cfg.MIDIOutPort, render.DefaultBPM)
		if err != nil {
			logger.Warn("MIDI preview disabled", logger.Fields{"error": err.Error(), "ports": render.OutPorts()})
		} else {
			player = p
		}
	}

	m := newModel(ctx, service, player, modelOptions{
		vocab:         vocab,
		quantum:       cfg.StepDuration,
		minLength:     cfg.MinLength,
		maxLength:     cfg.MaxLength,
		defaultLength: cfg.DefaultLength,
		sessionID:     uuid.New().String(),
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
