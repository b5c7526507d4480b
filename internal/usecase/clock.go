package usecase

import (
	"time"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/ports"
)

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}

type noopMetrics struct{}

func (noopMetrics) StateTransition(domain.SessionState, domain.SessionState) {}
func (noopMetrics) ReconnectScheduled(int, time.Duration)                    {}
func (noopMetrics) FrameSent()                                               {}
func (noopMetrics) FrameDropped()                                            {}
func (noopMetrics) FramePlayed()                                             {}
func (noopMetrics) VoiceError(domain.ErrorKind, bool)                        {}
func (noopMetrics) Fallback(string)                                          {}
func (noopMetrics) SessionOpened()                                           {}
func (noopMetrics) SessionClosed()                                           {}
