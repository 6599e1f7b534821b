package embedded

import (
	"embed"
	"io/fs"
)

// DefaultVocabularyJSON is used when no VOCAB_PATH is configured and
// ./mapping.json does not exist
//
//go:embed data/mapping.json
var DefaultVocabularyJSON []byte

//go:embed static
var staticFiles embed.FS

// Static returns the stylesheet and other files served under /static
func Static() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
