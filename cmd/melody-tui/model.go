package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/generation"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const lengthStep = 50

type generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

type previewer interface {
	Play(ctx context.Context, events []models.NoteEvent) error
	Port() string
}

type generatedMsg struct {
	result *generation.Result
	err    error
}

type playedMsg struct{ err error }

type model struct {
	ctx       context.Context
	editor    *music.SeedEditor
	generator generator
	player    previewer // nil without MIDI_OUT_PORT
	sessionID string

	pitches  []music.PitchChoice
	pitchIdx int
	durIdx   int

	seed      string
	length    int
	minLength int
	maxLength int

	generating bool
	playing    bool
	result     *generation.Result
	status     string
	err        string
	quitting   bool
}

type modelOptions struct {
	vocab         *music.Vocabulary
	quantum       float64
	minLength     int
	maxLength     int
	defaultLength int
	sessionID     string
}

func newModel(ctx context.Context, gen generator, player previewer, opts modelOptions) model {
	pitches := opts.vocab.PitchChoices()
	m := model{
		ctx:       ctx,
		editor:    music.NewSeedEditor(opts.vocab, opts.quantum),
		generator: gen,
		player:    player,
		sessionID: opts.sessionID,
		pitches:   pitches,
		seed:      music.DefaultSeed,
		length:    opts.defaultLength,
		minLength: opts.minLength,
		maxLength: opts.maxLength,
	}
	// start on middle C and a quarter note
	for i, p := range pitches {
		if p.Symbol == "60" {
			m.pitchIdx = i
		}
	}
	for i, d := range music.AcceptedDurations {
		if d == 1.0 {
			m.durIdx = i
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) generate() tea.Cmd {
	req := generation.Request{
		Seed:      m.seed,
		Length:    m.length,
		Strategy:  generation.Greedy{},
		SessionID: m.sessionID,
	}
	ctx, gen := m.ctx, m.generator
	return func() tea.Msg {
		result, err := gen.Generate(ctx, req)
		return generatedMsg{result: result, err: err}
	}
}

func (m model) play() tea.Cmd {
	ctx, player, events := m.ctx, m.player, m.result.Events
	return func() tea.Msg {
		return playedMsg{err: player.Play(ctx, events)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.err = ""
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "left", "h":
			m.pitchIdx = (m.pitchIdx + len(m.pitches) - 1) % len(m.pitches)

		case "right", "l":
			m.pitchIdx = (m.pitchIdx + 1) % len(m.pitches)

		case "up", "k":
			m.durIdx = (m.durIdx + 1) % len(music.AcceptedDurations)

		case "down", "j":
			m.durIdx = (m.durIdx + len(music.AcceptedDurations) - 1) % len(music.AcceptedDurations)

		case "a", "enter":
			seed, err := m.editor.Append(m.seed, m.pitches[m.pitchIdx].Name, music.AcceptedDurations[m.durIdx])
			if err != nil {
				m.err = apperrors.Message(err)
				break
			}
			m.seed = seed

		case "c":
			m.seed = m.editor.Clear()

		case "[", "-":
			m.length = max(m.minLength, m.length-lengthStep)

		case "]", "+", "=":
			m.length = min(m.maxLength, m.length+lengthStep)

		case "g":
			if m.generating {
				break
			}
			m.generating = true
			m.status = "Generating..."
			return m, m.generate()

		case "p":
			if m.player == nil || m.result == nil || m.playing {
				break
			}
			m.playing = true
			m.status = "Playing on " + m.player.Port()
			return m, m.play()
		}

	case generatedMsg:
		m.generating = false
		if msg.err != nil {
			m.status = ""
			m.err = apperrors.Message(msg.err)
			return m, nil
		}
		m.result = msg.result
		m.status = fmt.Sprintf("Generated %d steps, files in %s", msg.result.Generated, msg.result.Artifacts.Dir)

	case playedMsg:
		m.playing = false
		m.status = ""
		if msg.err != nil {
			m.err = msg.err.Error()
		}
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	seedStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(72)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("melody-tui"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("pitch    "))
	b.WriteString(valueStyle.Render(m.pitches[m.pitchIdx].Name))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("duration "))
	b.WriteString(valueStyle.Render(strconv.FormatFloat(music.AcceptedDurations[m.durIdx], 'f', -1, 64)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("length   "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d steps", m.length)))
	b.WriteString("\n\n")

	seed := m.seed
	if strings.TrimSpace(seed) == "" {
		seed = "(empty)"
	}
	b.WriteString(seedStyle.Render(seed))
	b.WriteString("\n")

	if m.result != nil {
		b.WriteString(labelStyle.Render("melody"))
		b.WriteString("\n")
		b.WriteString(seedStyle.Render(m.result.Melody()))
		b.WriteString("\n")
		if m.result.DroppedEvents > 0 {
			b.WriteString(labelStyle.Render("the unfinished final note was left out"))
			b.WriteString("\n")
		}
	}

	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	if m.err != "" {
		b.WriteString(errorStyle.Render(m.err))
		b.WriteString("\n")
	}

	help := "←/→ pitch  ↑/↓ duration  a add  c clear  [/] length  g generate  q quit"
	if m.player != nil {
		help = "←/→ pitch  ↑/↓ duration  a add  c clear  [/] length  g generate  p play  q quit"
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(help))
	return b.String()
}
