package usecase

import (
	"strings"
)

// transcriptAggregator tracks the latest user utterance and the assistant
// reply being streamed for it. It is owned by the session goroutine.
type transcriptAggregator struct {
	lastTranscript string
	response       strings.Builder
	responseOpen   bool
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// SetTranscript records a completed utterance. The next response delta starts
// a fresh reply.
func (a *transcriptAggregator) SetTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.lastTranscript = text
	a.responseOpen = false
}

// AddResponseDelta appends delta to the open reply and returns the reply so far.
func (a *transcriptAggregator) AddResponseDelta(delta string) string {
	if !a.responseOpen {
		a.response.Reset()
		a.responseOpen = true
	}
	a.response.WriteString(delta)
	return a.response.String()
}

func (a *transcriptAggregator) EndResponse() {
	a.responseOpen = false
}

func (a *transcriptAggregator) LastTranscript() string {
	return a.lastTranscript
}

func (a *transcriptAggregator) ResponseText() string {
	return strings.TrimSpace(a.response.String())
}
