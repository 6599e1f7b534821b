package main

import (
	"context"
	"errors"
	"testing"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/generation"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/Conceptual-Machines/melody-api/internal/render"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	requests []generation.Request
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &generation.Result{
		ID:        "gen-1",
		Seed:      req.Seed,
		Symbols:   []string{"60", "_", "62"},
		Generated: 1,
		Events:    []models.NoteEvent{{MidiNoteNumber: 60, DurationBeats: 0.5}},
		Artifacts: &render.Artifacts{Dir: "output/gen-1"},
	}, nil
}

type fakePlayer struct{ played int }

func (f *fakePlayer) Play(context.Context, []models.NoteEvent) error {
	f.played++
	return nil
}

func (f *fakePlayer) Port() string { return "fake" }

func testModel(t *testing.T, gen generator, player previewer) model {
	t.Helper()
	vocab, err := music.ParseVocabulary([]byte(`{"60": 0, "_": 1, "62": 2, "r": 3, "/": 4}`))
	require.NoError(t, err)
	return newModel(context.Background(), gen, player, modelOptions{
		vocab:         vocab,
		quantum:       0.25,
		minLength:     100,
		maxLength:     1000,
		defaultLength: 500,
		sessionID:     "tui-session",
	})
}

func press(t *testing.T, m model, keys ...string) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, key := range keys {
		var msg tea.KeyMsg
		switch key {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}
		next, c := m.Update(msg)
		m, cmd = next.(model), c
	}
	return m, cmd
}

func TestModel_EditSeed(t *testing.T) {
	m := testModel(t, &fakeGenerator{}, nil)
	assert.Equal(t, music.DefaultSeed, m.seed)
	assert.Equal(t, "C4", m.pitches[m.pitchIdx].Name)

	m, _ = press(t, m, "c")
	assert.Equal(t, "", m.seed)

	// quarter note on middle C is four steps
	m, _ = press(t, m, "a")
	assert.Equal(t, "60 _ _ _ ", m.seed)

	// D4 as a sixteenth note is a single step
	m, _ = press(t, m, "right", "j", "j", "j", "a")
	assert.Equal(t, "60 _ _ _ 62 ", m.seed)
}

func TestModel_Length(t *testing.T) {
	m := testModel(t, &fakeGenerator{}, nil)
	m, _ = press(t, m, "]", "]")
	assert.Equal(t, 600, m.length)

	for i := 0; i < 20; i++ {
		m, _ = press(t, m, "[")
	}
	assert.Equal(t, 100, m.length)
}

func TestModel_Generate(t *testing.T) {
	gen := &fakeGenerator{}
	m := testModel(t, gen, nil)

	m, cmd := press(t, m, "g")
	require.NotNil(t, cmd)
	assert.True(t, m.generating)

	// a second press while running is ignored
	_, again := press(t, m, "g")
	assert.Nil(t, again)

	msg := cmd()
	next, _ := m.Update(msg)
	m = next.(model)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, music.DefaultSeed, gen.requests[0].Seed)
	assert.Equal(t, 500, gen.requests[0].Length)
	assert.Equal(t, "tui-session", gen.requests[0].SessionID)
	assert.False(t, m.generating)
	require.NotNil(t, m.result)
	assert.Contains(t, m.View(), "60 _ 62")
}

func TestModel_GenerateError(t *testing.T) {
	gen := &fakeGenerator{err: apperrors.NewInvalidInput("The seed melody is empty. Add at least one note.")}
	m := testModel(t, gen, nil)

	m, cmd := press(t, m, "c", "g")
	next, _ := m.Update(cmd())
	m = next.(model)

	assert.Nil(t, m.result)
	assert.Equal(t, "The seed melody is empty. Add at least one note.", m.err)
	assert.Contains(t, m.View(), "seed melody is empty")
}

func TestModel_Play(t *testing.T) {
	player := &fakePlayer{}
	m := testModel(t, &fakeGenerator{}, player)

	// nothing to play yet
	_, cmd := press(t, m, "p")
	assert.Nil(t, cmd)

	m, cmd = press(t, m, "g")
	next, _ := m.Update(cmd())
	m = next.(model)

	m, cmd = press(t, m, "p")
	require.NotNil(t, cmd)
	assert.True(t, m.playing)

	next, _ = m.Update(cmd())
	m = next.(model)
	assert.False(t, m.playing)
	assert.Equal(t, 1, player.played)
}

func TestModel_PlayError(t *testing.T) {
	m := testModel(t, &fakeGenerator{}, &fakePlayer{})
	m.playing = true
	next, _ := m.Update(playedMsg{err: errors.New("port closed")})
	m = next.(model)
	assert.False(t, m.playing)
	assert.Equal(t, "port closed", m.err)
}

func TestModel_Quit(t *testing.T) {
	m := testModel(t, &fakeGenerator{}, nil)
	m, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}
