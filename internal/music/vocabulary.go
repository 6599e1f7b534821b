package music

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
)

// Reserved symbols
const (
	Sustain   = "_"
	Rest      = "r"
	EndMarker = "/"

	// RestName is the pitch name shown for the rest symbol
	RestName = "Rest"
)

// Vocabulary maps music symbols to the integer ids the model was trained on.
// It is immutable after loading and safe for concurrent use.
type Vocabulary struct {
	ids     map[string]int
	symbols []string
}

// LoadVocabulary reads a JSON object of symbol -> id from path
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ModelLoad(fmt.Errorf("read vocabulary %s: %w", path, err), "The melody vocabulary could not be loaded.")
	}
	return ParseVocabulary(data)
}

// DefaultVocabularyFile is looked up in the working directory when no path is configured
const DefaultVocabularyFile = "mapping.json"

// LoadVocabularyWithFallback reads path when set, otherwise DefaultVocabularyFile
// when it exists, otherwise parses fallback. The returned source names what was read.
func LoadVocabularyWithFallback(path string, fallback []byte) (*Vocabulary, string, error) {
	if path == "" {
		if _, err := os.Stat(DefaultVocabularyFile); err == nil {
			path = DefaultVocabularyFile
		}
	}
	if path != "" {
		vocab, err := LoadVocabulary(path)
		return vocab, path, err
	}
	vocab, err := ParseVocabulary(fallback)
	return vocab, "embedded", err
}

// ParseVocabulary decodes a JSON vocabulary. Ids must be unique and cover 0..n-1
// so that an index into the model output is a symbol id.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var mapping map[string]int
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, apperrors.ModelLoad(fmt.Errorf("decode vocabulary: %w", err), "The melody vocabulary is not valid JSON.")
	}
	return NewVocabulary(mapping)
}

// NewVocabulary builds a vocabulary from a symbol -> id mapping
func NewVocabulary(mapping map[string]int) (*Vocabulary, error) {
	if len(mapping) == 0 {
		return nil, apperrors.ModelLoad(fmt.Errorf("vocabulary is empty"), "The melody vocabulary is empty.")
	}

	symbols := make([]string, len(mapping))
	seen := make([]bool, len(mapping))
	ids := make(map[string]int, len(mapping))
	for symbol, id := range mapping {
		if id < 0 || id >= len(mapping) {
			return nil, apperrors.ModelLoad(
				fmt.Errorf("symbol %q has id %d outside 0..%d", symbol, id, len(mapping)-1),
				"The melody vocabulary has non-contiguous ids.")
		}
		if seen[id] {
			return nil, apperrors.ModelLoad(
				fmt.Errorf("id %d assigned to %q and %q", id, symbols[id], symbol),
				"The melody vocabulary has duplicate ids.")
		}
		seen[id] = true
		symbols[id] = symbol
		ids[symbol] = id
	}

	return &Vocabulary{ids: ids, symbols: symbols}, nil
}

// Size returns the number of symbols
func (v *Vocabulary) Size() int {
	return len(v.symbols)
}

// ID returns the id of symbol
func (v *Vocabulary) ID(symbol string) (int, bool) {
	id, ok := v.ids[symbol]
	return id, ok
}

// Symbol returns the symbol for id
func (v *Vocabulary) Symbol(id int) (string, bool) {
	if id < 0 || id >= len(v.symbols) {
		return "", false
	}
	return v.symbols[id], true
}

// Encode converts a whitespace-separated symbol string to ids.
// Unknown symbols fail; there is no fallback token.
func (v *Vocabulary) Encode(symbols string) ([]int, error) {
	fields := strings.Fields(symbols)
	ids := make([]int, 0, len(fields))
	for _, symbol := range fields {
		id, ok := v.ids[symbol]
		if !ok {
			return nil, apperrors.VocabularyLookup(
				fmt.Errorf("symbol %q not in vocabulary", symbol),
				fmt.Sprintf("Unknown melody symbol %q.", symbol))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PitchChoice is one entry of the pitch dropdown
type PitchChoice struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// PitchChoices lists the rest followed by every pitch symbol in id order
func (v *Vocabulary) PitchChoices() []PitchChoice {
	choices := []PitchChoice{{Name: RestName, Symbol: Rest}}
	for _, symbol := range v.symbols {
		if !isDigits(symbol) {
			continue
		}
		pitch, _ := strconv.Atoi(symbol)
		choices = append(choices, PitchChoice{Name: NoteName(pitch), Symbol: symbol})
	}
	return choices
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var pitchClassNames = [12]string{"C", "C#", "D", "E-", "E", "F", "F#", "G", "G#", "A", "B-", "B"}

// NoteName returns the name with octave of a MIDI pitch, e.g. 60 -> "C4", 70 -> "B-4"
func NoteName(pitch int) string {
	octave := pitch/12 - 1
	return fmt.Sprintf("%s%d", pitchClassNames[((pitch%12)+12)%12], octave)
}
