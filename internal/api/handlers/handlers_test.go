package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/generation"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/Conceptual-Machines/melody-api/internal/render"
	"github.com/Conceptual-Machines/melody-api/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVocabularyJSON = `{"60": 0, "_": 1, "62": 2, "r": 3, "64": 4, "/": 5}`

type fakeGenerator struct {
	requests []generation.Request
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	dir := "/srv/output/gen-1"
	return &generation.Result{
		ID:            "gen-1",
		Seed:          req.Seed,
		Symbols:       []string{"60", "_", "62"},
		Generated:     1,
		StopReason:    models.StopReasonLength,
		Events:        []models.NoteEvent{{MidiNoteNumber: 60, Velocity: 90, DurationBeats: 0.5}},
		DroppedEvents: 1,
		Artifacts: &render.Artifacts{
			Dir:      dir,
			MIDI:     dir + "/melody.mid",
			MusicXML: dir + "/melody.musicxml",
			Image:    dir + "/melody-1.png",
		},
	}, nil
}

func (f *fakeGenerator) LengthRange() (int, int) { return 100, 1000 }

type fakeHistory struct {
	generations []models.Generation
	filters     []services.HistoryFilter
	err         error
}

func (f *fakeHistory) List(_ context.Context, filter services.HistoryFilter) ([]models.Generation, error) {
	f.filters = append(f.filters, filter)
	return f.generations, f.err
}

func (f *fakeHistory) Get(_ context.Context, id string, filter services.HistoryFilter) (*models.Generation, error) {
	f.filters = append(f.filters, filter)
	for _, g := range f.generations {
		if g.ID == id && g.SessionID == filter.SessionID {
			return &g, nil
		}
	}
	return nil, services.ErrGenerationNotFound
}

func (f *fakeHistory) Stats(context.Context, services.HistoryFilter) (*services.Stats, error) {
	return &services.Stats{Total: int64(len(f.generations)), Succeeded: int64(len(f.generations))}, nil
}

type testServer struct {
	router    *gin.Engine
	generator *fakeGenerator
}

func newTestServer(t *testing.T, history HistoryStore) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	vocab, err := music.ParseVocabulary([]byte(testVocabularyJSON))
	require.NoError(t, err)

	gen := &fakeGenerator{}
	seeds := NewSeedHandler(music.NewSeedEditor(vocab, 0.25))
	generations := NewGenerationHandler(gen, history, 500)
	vocabulary := NewVocabularyHandler(vocab, 64, 100, 1000, 500)

	router := gin.New()
	router.Use(middleware.NewSeedSessions("test-secret-0123456789abcdef", false).Middleware(), middleware.NoAuth())
	router.GET("/vocabulary", vocabulary.GetVocabulary)
	router.GET("/seed", seeds.GetSeed)
	router.POST("/seed/symbols", seeds.AppendSymbol)
	router.DELETE("/seed", seeds.ClearSeed)
	router.POST("/generations", generations.Generate)
	router.GET("/generations", generations.ListGenerations)
	router.GET("/generations/:id", generations.GetGeneration)

	return &testServer{router: router, generator: gen}
}

// client replays the session cookie like a browser would
type client struct {
	server  *testServer
	cookies []*http.Cookie
}

func (s *testServer) client() *client {
	return &client{server: s}
}

func (c *client) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	c.server.router.ServeHTTP(w, req)

	if set := w.Result().Cookies(); len(set) > 0 {
		// the last Set-Cookie wins, as in a browser
		c.cookies = []*http.Cookie{set[len(set)-1]}
	}
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestVocabularyHandler(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.client().do(t, http.MethodGet, "/vocabulary", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[VocabularyResponse](t, w)
	assert.Equal(t, 6, resp.Size)
	assert.Equal(t, []music.PitchChoice{
		{Name: "Rest", Symbol: "r"},
		{Name: "C4", Symbol: "60"},
		{Name: "D4", Symbol: "62"},
		{Name: "E4", Symbol: "64"},
	}, resp.Pitches)
	assert.Equal(t, music.AcceptedDurations, resp.Durations)
	assert.Equal(t, music.DefaultSeed, resp.DefaultSeed)
	assert.Equal(t, 100, resp.MinLength)
	assert.Equal(t, 1000, resp.MaxLength)
}

func TestSeedHandler_AppendAndClear(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.client()

	w := c.do(t, http.MethodGet, "/seed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, music.DefaultSeed, decode[SeedResponse](t, w).Seed)

	w = c.do(t, http.MethodDelete, "/seed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", decode[SeedResponse](t, w).Seed)

	w = c.do(t, http.MethodPost, "/seed/symbols", `{"pitch": "C4", "duration": 1}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SeedResponse](t, w)
	assert.Equal(t, "60 _ _ _ ", resp.Seed)
	assert.Equal(t, 4, resp.Steps)

	w = c.do(t, http.MethodPost, "/seed/symbols", `{"pitch": "Rest", "duration": 0.5}`)
	require.Equal(t, http.StatusOK, w.Code)

	// the seed survives across requests
	w = c.do(t, http.MethodGet, "/seed", "")
	assert.Equal(t, "60 _ _ _ r _ ", decode[SeedResponse](t, w).Seed)
}

func TestSeedHandler_SessionsAreIsolated(t *testing.T) {
	s := newTestServer(t, nil)
	alice, bob := s.client(), s.client()

	alice.do(t, http.MethodGet, "/seed", "")
	bob.do(t, http.MethodGet, "/seed", "")

	alice.do(t, http.MethodDelete, "/seed", "")
	alice.do(t, http.MethodPost, "/seed/symbols", `{"pitch": "E4", "duration": 0.25}`)

	assert.Equal(t, "64 ", decode[SeedResponse](t, alice.do(t, http.MethodGet, "/seed", "")).Seed)
	assert.Equal(t, music.DefaultSeed, decode[SeedResponse](t, bob.do(t, http.MethodGet, "/seed", "")).Seed)
}

func TestSeedHandler_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind string
	}{
		{name: "missing pitch", body: `{"duration": 1}`, kind: "invalid_input"},
		{name: "unsupported duration", body: `{"pitch": "C4", "duration": 0.3}`, kind: "invalid_input"},
		{name: "unknown pitch", body: `{"pitch": "C9", "duration": 1}`, kind: "vocabulary_lookup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			c := s.client()
			w := c.do(t, http.MethodPost, "/seed/symbols", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.kind, resp.Error)
			assert.NotEmpty(t, resp.Message)

			// a rejected edit leaves the seed alone
			assert.Equal(t, music.DefaultSeed, decode[SeedResponse](t, c.do(t, http.MethodGet, "/seed", "")).Seed)
		})
	}
}

func TestSeedHandler_TooLong(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.client()

	var w *httptest.ResponseRecorder
	for i := 0; i < maxSeedLength; i++ {
		w = c.do(t, http.MethodPost, "/seed/symbols", `{"pitch": "C4", "duration": 4}`)
		if w.Code != http.StatusOK {
			break
		}
	}
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.LessOrEqual(t, len(decode[SeedResponse](t, c.do(t, http.MethodGet, "/seed", "")).Seed), maxSeedLength)
}

func TestGenerationHandler_UsesSessionSeed(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.client()
	c.do(t, http.MethodDelete, "/seed", "")
	c.do(t, http.MethodPost, "/seed/symbols", `{"pitch": "D4", "duration": 0.5}`)

	w := c.do(t, http.MethodPost, "/generations", `{"length": 200}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, s.generator.requests, 1)
	req := s.generator.requests[0]
	assert.Equal(t, "62 _ ", req.Seed)
	assert.Equal(t, 200, req.Length)
	assert.Equal(t, generation.StrategyGreedy, req.Strategy.Name())
	assert.NotEmpty(t, req.SessionID)
	assert.Empty(t, req.UserID)

	resp := decode[GenerateResponse](t, w)
	assert.Equal(t, "gen-1", resp.ID)
	assert.Equal(t, "60 _ 62", resp.Melody)
	assert.Equal(t, 1, resp.DroppedEvents)
	assert.Equal(t, "/output/gen-1/melody.mid", resp.Artifacts.MIDI)
	assert.Equal(t, "/output/gen-1/melody-1.png", resp.Artifacts.Image)
	assert.Empty(t, resp.Artifacts.Audio)
}

func TestGenerationHandler_RequestOptions(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.client().do(t, http.MethodPost, "/generations",
		`{"seed": "60 _ 64 ", "strategy": "top_k", "top_k": 3, "temperature": 0.8, "sampling_seed": 7}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := s.generator.requests[0]
	assert.Equal(t, "60 _ 64 ", req.Seed)
	assert.Equal(t, 500, req.Length)
	assert.Equal(t, generation.StrategyTopK, req.Strategy.Name())
}

func TestGenerationHandler_UnknownStrategy(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.client().do(t, http.MethodPost, "/generations", `{"strategy": "beam"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.generator.requests)
}

func TestGenerationHandler_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{name: "invalid input", err: apperrors.NewInvalidInput("Length must be between 100 and 1000 steps."), status: http.StatusBadRequest, kind: "invalid_input"},
		{name: "vocabulary lookup", err: apperrors.VocabularyLookup(errors.New("symbol \"99\""), ""), status: http.StatusBadRequest, kind: "vocabulary_lookup"},
		{name: "model load", err: apperrors.ModelLoad(errors.New("no weights"), ""), status: http.StatusServiceUnavailable, kind: "model_load"},
		{name: "model inference", err: apperrors.ModelInference(errors.New("shape"), ""), status: http.StatusInternalServerError, kind: "model_inference"},
		{name: "render", err: apperrors.Render(errors.New("mscore crashed"), "The score image could not be engraved."), status: http.StatusInternalServerError, kind: "render"},
		{name: "untagged", err: errors.New("boom"), status: http.StatusInternalServerError, kind: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.generator.err = tt.err

			w := s.client().do(t, http.MethodPost, "/generations", `{}`)
			require.Equal(t, tt.status, w.Code)

			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.kind, resp.Error)
			assert.Equal(t, apperrors.Message(tt.err), resp.Message)
		})
	}
}

func TestGenerationHandler_HistoryDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.client().do(t, http.MethodGet, "/generations", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[map[string]any](t, w)
	assert.Equal(t, false, resp["enabled"])
	assert.Empty(t, resp["generations"])

	w = s.client().do(t, http.MethodGet, "/generations/abc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerationHandler_History(t *testing.T) {
	history := &fakeHistory{}
	s := newTestServer(t, history)
	c := s.client()

	// establish the session before seeding history for it
	c.do(t, http.MethodGet, "/seed", "")
	c.do(t, http.MethodGet, "/generations", "")
	require.NotEmpty(t, history.filters)
	sessionID := history.filters[0].SessionID
	require.NotEmpty(t, sessionID)

	history.generations = []models.Generation{{
		ID:           "gen-7",
		SessionID:    sessionID,
		Status:       models.GenerationStatusSucceeded,
		MIDIPath:     "/srv/output/gen-7/melody.mid",
		MusicXMLPath: "/srv/output/gen-7/melody.musicxml",
	}}

	w := c.do(t, http.MethodGet, "/generations?limit=500", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistoryPageSize, history.filters[len(history.filters)-1].Limit)

	var list struct {
		Enabled     bool            `json:"enabled"`
		Generations []HistoryItem   `json:"generations"`
		Stats       *services.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.True(t, list.Enabled)
	require.Len(t, list.Generations, 1)
	assert.Equal(t, "gen-7", list.Generations[0].ID)
	require.NotNil(t, list.Generations[0].Artifacts)
	assert.Equal(t, "/output/gen-7/melody.musicxml", list.Generations[0].Artifacts.MusicXML)
	assert.Equal(t, int64(1), list.Stats.Total)

	w = c.do(t, http.MethodGet, "/generations/gen-7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gen-7", decode[HistoryItem](t, w).ID)

	// another visitor cannot read it
	w = s.client().do(t, http.MethodGet, "/generations/gen-7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(t, http.MethodGet, "/generations?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set("session_id", "s1")
	c.Set("user_id_str", "anonymous")

	sessionID, userID := requestIdentity(c)
	assert.Equal(t, "s1", sessionID)
	assert.Empty(t, userID)

	c.Set("user_id_str", "user-42")
	_, userID = requestIdentity(c)
	assert.Equal(t, "user-42", userID)
}
