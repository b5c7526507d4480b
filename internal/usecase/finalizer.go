package usecase

import (
	"strings"

	"tutorvoice/internal/ports"
)

type transcriptFinalizer struct {
	rules ports.TranscriptRules
}

func newTranscriptFinalizer(rules ports.TranscriptRules) transcriptFinalizer {
	return transcriptFinalizer{rules: rules}
}

// Finalize applies transcript rules to a completed utterance. On a rules
// failure the trimmed raw text is returned alongside the error so the caller
// can still surface what the student said.
func (f transcriptFinalizer) Finalize(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" || f.rules == nil {
		return text, nil
	}
	transformed, err := f.rules.Apply(text)
	if err != nil {
		return text, err
	}
	return strings.TrimSpace(transformed), nil
}
