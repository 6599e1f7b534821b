package apperrors

import (
	"errors"
	"net/http"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Error kinds surfaced to API clients
const (
	KindVocabularyLookup ftag.Kind = "vocabulary_lookup"
	KindModelLoad        ftag.Kind = "model_load"
	KindModelInference   ftag.Kind = "model_inference"
	KindRender           ftag.Kind = "render"
	KindInvalidInput     ftag.Kind = "invalid_input"
	KindStorage          ftag.Kind = "storage"
	KindInternal         ftag.Kind = "internal"
)

var defaultMessages = map[ftag.Kind]string{
	KindVocabularyLookup: "The melody contains a symbol the model does not know.",
	KindModelLoad:        "The melody model is not available.",
	KindModelInference:   "The melody model failed while generating.",
	KindRender:           "The score or audio could not be rendered.",
	KindInvalidInput:     "The request is invalid.",
	KindStorage:          "The generation history could not be saved.",
	KindInternal:         "Something went wrong.",
}

// VocabularyLookup tags err as a failed symbol or pitch lookup
func VocabularyLookup(err error, issue string) error {
	return wrap(err, KindVocabularyLookup, "vocabulary lookup failed", issue)
}

// ModelLoad tags err as a model loading failure
func ModelLoad(err error, issue string) error {
	return wrap(err, KindModelLoad, "model load failed", issue)
}

// ModelInference tags err as a failure while querying the model
func ModelInference(err error, issue string) error {
	return wrap(err, KindModelInference, "model inference failed", issue)
}

// Render tags err as a score writing, engraving or synthesis failure
func Render(err error, issue string) error {
	return wrap(err, KindRender, "render failed", issue)
}

// InvalidInput tags err as bad user input
func InvalidInput(err error, issue string) error {
	return wrap(err, KindInvalidInput, "invalid input", issue)
}

// Storage tags err as a persistence failure
func Storage(err error, issue string) error {
	return wrap(err, KindStorage, "storage failed", issue)
}

// NewInvalidInput builds an invalid input error from a user-facing message
func NewInvalidInput(issue string) error {
	return InvalidInput(errors.New(issue), issue)
}

func wrap(err error, kind ftag.Kind, internal, issue string) error {
	if err == nil {
		return nil
	}
	if issue == "" {
		issue = defaultMessages[kind]
	}
	return fault.Wrap(err, ftag.With(kind), fmsg.WithDesc(internal, issue))
}

// Kind returns the classification of err, KindInternal when untagged
func Kind(err error) ftag.Kind {
	if err == nil {
		return ""
	}
	kind := ftag.Get(err)
	if _, known := defaultMessages[kind]; !known {
		return KindInternal
	}
	return kind
}

// Message returns the user-facing message for err
func Message(err error) string {
	if err == nil {
		return ""
	}
	if issue := fmsg.GetIssue(err); issue != "" {
		return issue
	}
	return defaultMessages[Kind(err)]
}

// StatusCode maps an error kind to the HTTP status returned to clients
func StatusCode(kind ftag.Kind) int {
	switch kind {
	case KindInvalidInput, KindVocabularyLookup:
		return http.StatusBadRequest
	case KindModelLoad:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
