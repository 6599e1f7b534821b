package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apimiddleware "github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/Conceptual-Machines/melody-api/internal/generation"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/Conceptual-Machines/melody-api/internal/render"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	outputDir string
	seeds     []string
	err       error
}

func (s *stubGenerator) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	s.seeds = append(s.seeds, req.Seed)
	if s.err != nil {
		return nil, s.err
	}
	dir := filepath.Join(s.outputDir, "gen-1")
	return &generation.Result{
		ID:         "gen-1",
		Seed:       req.Seed,
		Symbols:    []string{"60", "_", "62"},
		Generated:  1,
		StopReason: models.StopReasonEndMarker,
		Events:     []models.NoteEvent{{MidiNoteNumber: 60, DurationBeats: 0.5}},
		Artifacts: &render.Artifacts{
			Dir:      dir,
			MIDI:     filepath.Join(dir, "melody.mid"),
			MusicXML: filepath.Join(dir, "melody.musicxml"),
			Audio:    filepath.Join(dir, "melody.wav"),
		},
	}, nil
}

func (s *stubGenerator) LengthRange() (int, int) { return 100, 1000 }

func newTestRouter(t *testing.T) (*gin.Engine, *stubGenerator, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	outputDir := t.TempDir()
	cfg := &config.Config{
		AuthMode:       "none",
		ModelName:      "melody",
		SequenceLength: 64,
		StepDuration:   0.25,
		MinLength:      100,
		MaxLength:      1000,
		DefaultLength:  500,
		OutputDir:      outputDir,
	}
	vocab, err := music.ParseVocabulary([]byte(`{"60": 0, "_": 1, "62": 2, "r": 3, "/": 4}`))
	require.NoError(t, err)

	gen := &stubGenerator{outputDir: outputDir}
	router := SetupRouter(Dependencies{
		Config:     cfg,
		Version:    "test",
		Vocabulary: vocab,
		Generator:  gen,
		Sessions:   apimiddleware.NewSeedSessions("router-test-secret", false),
	})
	return router, gen, outputDir
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func lastCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[len(cookies)-1]
}

func formRequest(path string, values url.Values, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestRouter_Health(t *testing.T) {
	router, _, _ := newTestRouter(t)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"disabled"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_HomePage(t *testing.T) {
	router, _, _ := newTestRouter(t)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, `<option value="C4">C4</option>`)
	assert.Contains(t, body, `<option value="Rest">Rest</option>`)
	assert.Contains(t, body, `<option value="0.75">0.75</option>`)
	assert.Contains(t, body, `min="100"`)
	assert.Contains(t, body, `max="1000"`)
	assert.Contains(t, body, strings.TrimSpace(music.DefaultSeed))
}

func TestRouter_HTMXSeedFlow(t *testing.T) {
	router, gen, _ := newTestRouter(t)

	w := serve(router, formRequest("/htmx/seed/clear", url.Values{}, nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookie := lastCookie(t, w)
	assert.Contains(t, w.Body.String(), "0 steps")

	w = serve(router, formRequest("/htmx/seed/symbols", url.Values{"pitch": {"D4"}, "duration": {"0.5"}}, cookie))
	require.Equal(t, http.StatusOK, w.Code)
	cookie = lastCookie(t, w)
	assert.Contains(t, w.Body.String(), "62 _ ")
	assert.Contains(t, w.Body.String(), "2 steps")

	w = serve(router, formRequest("/htmx/seed/symbols", url.Values{"pitch": {"D4"}, "duration": {"0.3"}}, cookie))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `class="error"`)

	w = serve(router, formRequest("/htmx/generate", url.Values{"length": {"200"}}, cookie))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"62 _ "}, gen.seeds)

	body := w.Body.String()
	assert.Contains(t, body, `src="/output/gen-1/melody.wav"`)
	assert.Contains(t, body, `href="/output/gen-1/melody.mid"`)
	assert.Contains(t, body, "stopped at the end marker")
	assert.NotContains(t, body, "<img")
}

func TestRouter_HTMXGenerateError(t *testing.T) {
	router, gen, _ := newTestRouter(t)
	gen.err = apperrors.ModelLoad(assert.AnError, "")

	w := serve(router, formRequest("/htmx/generate", url.Values{}, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "The melody model is not available.")
}

func TestRouter_ServesArtifactsAndStatic(t *testing.T) {
	router, _, outputDir := newTestRouter(t)
	require.NoError(t, os.MkdirAll(filepath.Join(outputDir, "gen-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "gen-1", "melody.mid"), []byte("MThd"), 0o644))

	w := serve(router, httptest.NewRequest(http.MethodGet, "/output/gen-1/melody.mid", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MThd", w.Body.String())

	w = serve(router, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ".container")
}

func TestRouter_APIv1(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/vocabulary", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"default_length":500`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generations", strings.NewReader(`{"length": 150}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"midi":"/output/gen-1/melody.mid"`)

	w = serve(router, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
