package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"tutorvoice/internal/bootstrap"
	"tutorvoice/internal/config"
	"tutorvoice/internal/domain"
	"tutorvoice/internal/usecase"
)

const (
	eventState      = "tutorvoice:state"
	eventTranscript = "tutorvoice:transcript"
	eventResponse   = "tutorvoice:response"
	eventLevel      = "tutorvoice:level"
	eventError      = "tutorvoice:error"
	eventFallback   = "tutorvoice:fallback"
)

var errNoTranscript = errors.New("no transcript yet")

// App is the Wails application root.
type App struct {
	ctx context.Context

	services   bootstrap.Services
	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error

	clipboard func(ctx context.Context, text string) error
	emit      func(ctx context.Context, name string, data ...interface{})
}

func NewApp() *App {
	return &App{
		clipboard: runtime.ClipboardSetText,
		emit:      runtime.EventsEmit,
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.VoiceError(domain.NewVoiceError(domain.ErrorKindUnknown, "startup failed", err))
		return
	}

	a.services = services
	a.cfg = services.Config
	a.controller = services.Controller
	a.StateChanged(domain.SessionStateIdle)
}

func (a *App) shutdown(_ context.Context) {
	a.services.Close()
}

// Connect opens the voice session.
func (a *App) Connect() (domain.Status, error) {
	return a.run(func(ctx context.Context) error { return a.controller.Connect(ctx) })
}

// Disconnect ends the voice session.
func (a *App) Disconnect() (domain.Status, error) {
	return a.run(func(ctx context.Context) error { return a.controller.Disconnect(ctx) })
}

// StartListening opens the microphone.
func (a *App) StartListening() (domain.Status, error) {
	return a.run(func(ctx context.Context) error { return a.controller.StartListening(ctx) })
}

// StopListening closes the microphone and commits the utterance.
func (a *App) StopListening() (domain.Status, error) {
	return a.run(func(ctx context.Context) error { return a.controller.StopListening(ctx) })
}

// SendText sends a typed message.
func (a *App) SendText(text string) (domain.Status, error) {
	return a.run(func(ctx context.Context) error { return a.controller.SendText(ctx, text) })
}

// SetVoice selects the assistant voice.
func (a *App) SetVoice(voice string) (domain.Status, error) {
	return a.run(func(ctx context.Context) error { return a.controller.SetVoice(ctx, voice) })
}

// ClearError dismisses the current error.
func (a *App) ClearError() (domain.Status, error) {
	return a.run(func(ctx context.Context) error { return a.controller.ClearError(ctx) })
}

// CopyLastTranscript writes the last final transcript to the clipboard.
func (a *App) CopyLastTranscript() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(a.controller.Status().LastTranscript)
	if text == "" {
		return "", errNoTranscript
	}
	if err := a.clipboard(a.ctx, text); err != nil {
		return "", fmt.Errorf("clipboard write failed: %w", err)
	}
	return text, nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		st := domain.Status{State: domain.SessionStateIdle}
		if a.bootErr != nil {
			st.State = domain.SessionStateErrored
			st.Error = domain.NewVoiceError(domain.ErrorKindUnknown, a.bootErr.Error(), a.bootErr)
		}
		return st
	}
	return a.controller.Status()
}

// GetCapability reports whether voice can run here.
func (a *App) GetCapability() domain.CapabilityReport {
	if a.controller == nil {
		return domain.CapabilityReport{Supported: false, Reason: "application is not initialized"}
	}
	return a.controller.Capability()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":     "OpenAI Realtime",
		"model":        a.cfg.Realtime.Model,
		"voice":        a.cfg.Realtime.Voice,
		"rulesFile":    a.cfg.Rules.Path,
		"audioBackend": a.cfg.Audio.Backend,
		"audioInput":   a.cfg.Audio.InputDevice,
		"audioOutput":  a.cfg.Audio.OutputDevice,
	}
}

func (a *App) run(op func(ctx context.Context) error) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := op(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) send(name string, payload any) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

// StateChanged emits session lifecycle updates to the frontend.
func (a *App) StateChanged(state domain.SessionState) {
	a.send(eventState, map[string]string{
		"state":   string(state),
		"message": stateMessage(state),
	})
}

// Transcript emits the user's recognized speech.
func (a *App) Transcript(text string, isFinal bool) {
	a.send(eventTranscript, map[string]any{"text": text, "final": isFinal})
}

// ResponseText emits assistant text as it streams in.
func (a *App) ResponseText(delta string) {
	a.send(eventResponse, map[string]string{"delta": delta})
}

// Level emits the microphone loudness meter.
func (a *App) Level(level float64) {
	a.send(eventLevel, level)
}

// VoiceError emits errors to the UI.
func (a *App) VoiceError(err *domain.VoiceError) {
	if err == nil {
		return
	}
	detail := err.Message
	if err.Err != nil {
		detail = err.Err.Error()
	}
	a.send(eventError, map[string]any{
		"kind":        string(err.Kind),
		"message":     errorMessage(err.Kind, detail),
		"detail":      detail,
		"recoverable": err.Recoverable,
	})
}

// Fallback tells the UI to switch to text-only tutoring.
func (a *App) Fallback(reason string) {
	a.send(eventFallback, map[string]string{"reason": reason})
}

func stateMessage(state domain.SessionState) string {
	switch state {
	case domain.SessionStateIdle:
		return "Voice off"
	case domain.SessionStateConnecting:
		return "Connecting..."
	case domain.SessionStateConnected:
		return "Connected"
	case domain.SessionStateListening:
		return "Listening"
	case domain.SessionStateSpeaking:
		return "Tutor speaking"
	case domain.SessionStateReconnecting:
		return "Connection lost. Reconnecting..."
	case domain.SessionStateErrored:
		return "Something went wrong"
	case domain.SessionStateFallback:
		return "Voice unavailable; using text"
	default:
		return ""
	}
}

func errorMessage(kind domain.ErrorKind, detail string) string {
	switch kind {
	case domain.ErrorKindMicDenied:
		return "Microphone access denied"
	case domain.ErrorKindMicNotFound:
		return "No microphone found"
	case domain.ErrorKindConnection:
		return "Connection problem"
	case domain.ErrorKindAPI:
		return "Tutor service error"
	case domain.ErrorKindTimeout:
		return "No speech detected"
	case domain.ErrorKindUnsupported:
		return "Voice is not supported here"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
