package templates

import (
	"bytes"
	"context"
	"testing"

	"github.com/Conceptual-Machines/melody-api/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedBox_EscapesAndCounts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SeedBox("60 _ <script> ", "bad & wrong").Render(context.Background(), &buf))

	html := buf.String()
	assert.Contains(t, html, "60 _ &lt;script&gt; ")
	assert.Contains(t, html, "3 steps")
	assert.Contains(t, html, "bad &amp; wrong")
	assert.NotContains(t, html, "<script>")
}

func TestSeedBox_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SeedBox("", "").Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "0 steps")
	assert.NotContains(t, buf.String(), `class="error"`)
}

func TestResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Result(ResultData{
		ID:            "gen-1",
		Melody:        "60 _ 62",
		Steps:         1,
		Events:        2,
		DroppedEvents: 1,
		StopReason:    "length",
		Links: render.Links{
			MIDI:     "/output/gen-1/melody.mid",
			MusicXML: "/output/gen-1/melody.musicxml",
			Image:    "/output/gen-1/melody-1.png",
		},
	}).Render(context.Background(), &buf))

	html := buf.String()
	assert.Contains(t, html, `data-generation-id="gen-1"`)
	assert.Contains(t, html, `src="/output/gen-1/melody-1.png"`)
	assert.NotContains(t, html, "<audio")
	assert.Contains(t, html, "1 step, 2 notes and rests")
	assert.Contains(t, html, "unfinished final note")
	assert.NotContains(t, html, "end marker")
}

func TestHome_WrapsLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Home(HomeData{
		Durations:     []float64{0.25, 1},
		MinLength:     100,
		MaxLength:     1000,
		DefaultLength: 500,
	}).Render(context.Background(), &buf))

	html := buf.String()
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, `<option value="1" selected>1</option>`)
	assert.Contains(t, html, `value="500"`)
	assert.Contains(t, html, "</html>")
}

func TestErrorMessage_Escapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ErrorMessage(`Pitch "<C9>" is unknown.`).Render(context.Background(), &buf))
	assert.Equal(t, `<div class="error" role="alert">Pitch &#34;&lt;C9&gt;&#34; is unknown.</div>`, buf.String())
}

func TestHome_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	assert.ErrorIs(t, Home(HomeData{}).Render(ctx, &buf), context.Canceled)
	assert.Empty(t, buf.String())
}
