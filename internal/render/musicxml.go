package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Conceptual-Machines/melody-api/internal/models"
)

const musicXMLDoctype = `<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 3.1 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">` + "\n"

// MusicXMLWriter writes note events as a single-part score in 4/4
type MusicXMLWriter struct {
	// Divisions per quarter note. Every event length must be a multiple of 1/Divisions.
	Divisions int
	Title     string
	PartName  string
}

// NewMusicXMLWriter returns a writer at sixteenth-note resolution
func NewMusicXMLWriter() *MusicXMLWriter {
	return &MusicXMLWriter{Divisions: 4, Title: "Melody", PartName: "Melody"}
}

type scorePartwise struct {
	XMLName  xml.Name    `xml:"score-partwise"`
	Version  string      `xml:"version,attr"`
	Work     xmlWork     `xml:"work"`
	PartList xmlPartList `xml:"part-list"`
	Parts    []xmlPart   `xml:"part"`
}

type xmlWork struct {
	Title string `xml:"work-title"`
}

type xmlPartList struct {
	ScoreParts []xmlScorePart `xml:"score-part"`
}

type xmlScorePart struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"part-name"`
}

type xmlPart struct {
	ID       string       `xml:"id,attr"`
	Measures []xmlMeasure `xml:"measure"`
}

type xmlMeasure struct {
	Number     int            `xml:"number,attr"`
	Attributes *xmlAttributes `xml:"attributes,omitempty"`
	Notes      []xmlNote      `xml:"note"`
}

type xmlAttributes struct {
	Divisions int     `xml:"divisions"`
	Key       xmlKey  `xml:"key"`
	Time      xmlTime `xml:"time"`
	Clef      xmlClef `xml:"clef"`
}

type xmlKey struct {
	Fifths int `xml:"fifths"`
}

type xmlTime struct {
	Beats    int `xml:"beats"`
	BeatType int `xml:"beat-type"`
}

type xmlClef struct {
	Sign string `xml:"sign"`
	Line int    `xml:"line"`
}

type xmlNote struct {
	Pitch     *xmlPitch     `xml:"pitch,omitempty"`
	Rest      *xmlRest      `xml:"rest,omitempty"`
	Duration  int           `xml:"duration"`
	Ties      []xmlTie      `xml:"tie"`
	Type      string        `xml:"type,omitempty"`
	Dots      []xmlEmpty    `xml:"dot"`
	Notations *xmlNotations `xml:"notations,omitempty"`
}

type xmlPitch struct {
	Step   string `xml:"step"`
	Alter  int    `xml:"alter,omitempty"`
	Octave int    `xml:"octave"`
}

type xmlRest struct {
	Measure string `xml:"measure,attr,omitempty"`
}

type xmlTie struct {
	Type string `xml:"type,attr"`
}

type xmlNotations struct {
	Tied []xmlTie `xml:"tied"`
}

type xmlEmpty struct{}

// pitch spelling matching the note names shown in the UI
var pitchSpelling = [12]struct {
	step  string
	alter int
}{
	{"C", 0}, {"C", 1}, {"D", 0}, {"E", -1}, {"E", 0}, {"F", 0},
	{"F", 1}, {"G", 0}, {"G", 1}, {"A", 0}, {"B", -1}, {"B", 0},
}

// noteValue is a notatable length in quarter notes
type noteValue struct {
	quarters float64
	name     string
	dots     int
}

// longest first so decomposition is greedy
var noteValues = []noteValue{
	{4, "whole", 0},
	{3, "half", 1},
	{2, "half", 0},
	{1.5, "quarter", 1},
	{1, "quarter", 0},
	{0.75, "eighth", 1},
	{0.5, "eighth", 0},
	{0.375, "16th", 1},
	{0.25, "16th", 0},
	{0.125, "32nd", 0},
}

type notePart struct {
	divisions int
	name      string
	dots      int
}

// decompose splits a length in divisions into notatable parts. Leftover
// divisions that match no value become a single untyped part.
func (w *MusicXMLWriter) decompose(length int) []notePart {
	var parts []notePart
	for length > 0 {
		matched := false
		for _, v := range noteValues {
			d := v.quarters * float64(w.Divisions)
			if d != math.Trunc(d) || d < 1 {
				continue
			}
			if int(d) <= length {
				parts = append(parts, notePart{divisions: int(d), name: v.name, dots: v.dots})
				length -= int(d)
				matched = true
				break
			}
		}
		if !matched {
			parts = append(parts, notePart{divisions: length})
			length = 0
		}
	}
	return parts
}

// Write encodes events as MusicXML. Notes crossing a barline are split and tied;
// the last measure is padded with rests.
func (w *MusicXMLWriter) Write(out io.Writer, events []models.NoteEvent) error {
	if w.Divisions <= 0 {
		return fmt.Errorf("divisions must be positive")
	}
	measureLength := 4 * w.Divisions

	var measures []xmlMeasure
	current := xmlMeasure{Number: 1, Attributes: w.attributes()}
	position := 0

	flush := func() {
		measures = append(measures, current)
		current = xmlMeasure{Number: current.Number + 1}
		position = 0
	}

	for _, ev := range events {
		remaining := int(math.Round(ev.DurationBeats * float64(w.Divisions)))
		if remaining <= 0 {
			continue
		}

		var parts []notePart
		offset := position
		for remaining > 0 {
			chunk := remaining
			if space := measureLength - offset; chunk > space {
				chunk = space
			}
			parts = append(parts, w.decompose(chunk)...)
			offset = (offset + chunk) % measureLength
			remaining -= chunk
		}

		for i, part := range parts {
			current.Notes = append(current.Notes, w.note(ev, part, i > 0, i < len(parts)-1))
			position += part.divisions
			if position == measureLength {
				flush()
			}
		}
	}

	if position > 0 {
		for _, part := range w.decompose(measureLength - position) {
			current.Notes = append(current.Notes, w.note(models.NoteEvent{Rest: true}, part, false, false))
		}
		flush()
	}
	if len(measures) == 0 {
		current.Notes = append(current.Notes, xmlNote{
			Rest:     &xmlRest{Measure: "yes"},
			Duration: measureLength,
		})
		measures = append(measures, current)
	}

	score := scorePartwise{
		Version:  "3.1",
		Work:     xmlWork{Title: w.Title},
		PartList: xmlPartList{ScoreParts: []xmlScorePart{{ID: "P1", Name: w.PartName}}},
		Parts:    []xmlPart{{ID: "P1", Measures: measures}},
	}

	if _, err := io.WriteString(out, xml.Header+musicXMLDoctype); err != nil {
		return err
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(score); err != nil {
		return fmt.Errorf("encode musicxml: %w", err)
	}
	return enc.Flush()
}

// WriteFile writes events to path
func (w *MusicXMLWriter) WriteFile(path string, events []models.NoteEvent) error {
	var buf bytes.Buffer
	if err := w.Write(&buf, events); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (w *MusicXMLWriter) attributes() *xmlAttributes {
	return &xmlAttributes{
		Divisions: w.Divisions,
		Time:      xmlTime{Beats: 4, BeatType: 4},
		Clef:      xmlClef{Sign: "G", Line: 2},
	}
}

func (w *MusicXMLWriter) note(ev models.NoteEvent, part notePart, tiedFrom, tiedTo bool) xmlNote {
	n := xmlNote{Duration: part.divisions, Type: part.name}
	for i := 0; i < part.dots; i++ {
		n.Dots = append(n.Dots, xmlEmpty{})
	}

	if ev.Rest {
		n.Rest = &xmlRest{}
		return n
	}

	spelling := pitchSpelling[((ev.MidiNoteNumber%12)+12)%12]
	n.Pitch = &xmlPitch{Step: spelling.step, Alter: spelling.alter, Octave: ev.MidiNoteNumber/12 - 1}

	var tied []xmlTie
	if tiedFrom {
		n.Ties = append(n.Ties, xmlTie{Type: "stop"})
		tied = append(tied, xmlTie{Type: "stop"})
	}
	if tiedTo {
		n.Ties = append(n.Ties, xmlTie{Type: "start"})
		tied = append(tied, xmlTie{Type: "start"})
	}
	if len(tied) > 0 {
		n.Notations = &xmlNotations{Tied: tied}
	}
	return n
}
