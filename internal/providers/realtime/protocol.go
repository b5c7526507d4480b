package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tutorvoice/internal/audio"
	"tutorvoice/internal/domain"
)

// Wire tags sent by the server.
const (
	EventSessionReady          = "session.ready"
	EventSessionCreated        = "session.created"
	EventSessionUpdated        = "session.updated"
	EventSpeechStarted         = "input_audio_buffer.speech_started"
	EventSpeechStopped         = "input_audio_buffer.speech_stopped"
	EventTranscriptionComplete = "conversation.item.input_audio_transcription.completed"
	EventAudioTranscriptDelta  = "response.audio_transcript.delta"
	EventTextDelta             = "response.text.delta"
	EventAudioDelta            = "response.audio.delta"
	EventAudioDone             = "response.audio.done"
	EventError                 = "error"
)

// Wire tags sent by the client.
const (
	EventInputAudioAppend   = "input_audio_buffer.append"
	EventInputAudioCommit   = "input_audio_buffer.commit"
	EventConversationCreate = "conversation.item.create"
	EventResponseCreate     = "response.create"
	EventSessionUpdate      = "session.update"
)

var ErrUnsupportedMessage = errors.New("message type cannot be sent")

// ClientEvent is the envelope shared by all client events.
type ClientEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

// HandshakeEvent is the first frame sent after the socket opens.
type HandshakeEvent struct {
	Voice string `json:"voice"`
}

type SessionUpdateEvent struct {
	ClientEvent
	Session SessionVoiceConfig `json:"session"`
}

type SessionVoiceConfig struct {
	Voice string `json:"voice"`
}

type InputAudioBufferAppendEvent struct {
	ClientEvent
	Audio string `json:"audio"`
}

type ConversationItemCreateEvent struct {
	ClientEvent
	Item ConversationItem `json:"item"`
}

type ConversationItem struct {
	Type    string                `json:"type"`
	Role    string                `json:"role"`
	Content []ConversationContent `json:"content"`
}

type ConversationContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerEvent is decoded once to read the tag, then into the tag's payload.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

type transcriptEvent struct {
	Transcript string `json:"transcript"`
}

type deltaEvent struct {
	Delta string `json:"delta"`
}

type errorEvent struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type sessionUpdatedEvent struct {
	Session struct {
		Voice string `json:"voice"`
	} `json:"session"`
}

// EncodeClientMessage serializes msg into one or more wire frames. SendText
// produces a conversation item followed by a response request.
func EncodeClientMessage(msg domain.ControlMessage) ([][]byte, error) {
	var events []any
	switch msg.Type {
	case domain.MessageHandshake:
		events = append(events, HandshakeEvent{Voice: msg.Voice})
	case domain.MessageSetVoice:
		events = append(events, SessionUpdateEvent{
			ClientEvent: newClientEvent(EventSessionUpdate),
			Session:     SessionVoiceConfig{Voice: msg.Voice},
		})
	case domain.MessageAppendAudio:
		events = append(events, InputAudioBufferAppendEvent{
			ClientEvent: newClientEvent(EventInputAudioAppend),
			Audio:       audio.EncodePCM16(msg.Frame.Samples),
		})
	case domain.MessageCommitAudio:
		events = append(events, newClientEvent(EventInputAudioCommit))
	case domain.MessageSendText:
		events = append(events,
			ConversationItemCreateEvent{
				ClientEvent: newClientEvent(EventConversationCreate),
				Item: ConversationItem{
					Type:    "message",
					Role:    "user",
					Content: []ConversationContent{{Type: "input_text", Text: msg.Text}},
				},
			},
			newClientEvent(EventResponseCreate),
		)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessage, msg.Type)
	}

	frames := make([][]byte, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", msg.Type, err)
		}
		frames = append(frames, payload)
	}
	return frames, nil
}

func newClientEvent(eventType string) ClientEvent {
	return ClientEvent{EventID: "evt_" + uuid.NewString(), Type: eventType}
}

// DecodeServerMessage parses one inbound frame. Unrecognized tags decode to an
// Unknown message rather than an error.
func DecodeServerMessage(data []byte) (domain.ControlMessage, error) {
	var base ServerEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return domain.ControlMessage{}, fmt.Errorf("failed to parse server event: %w", err)
	}

	switch base.Type {
	case EventSessionReady, EventSessionCreated:
		return domain.SessionReady(), nil
	case EventSessionUpdated:
		var event sessionUpdatedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return domain.ControlMessage{}, fmt.Errorf("failed to parse %s: %w", base.Type, err)
		}
		return domain.SessionUpdated(event.Session.Voice), nil
	case EventSpeechStarted:
		return domain.SpeechStarted(), nil
	case EventSpeechStopped:
		return domain.SpeechStopped(), nil
	case EventTranscriptionComplete:
		var event transcriptEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return domain.ControlMessage{}, fmt.Errorf("failed to parse %s: %w", base.Type, err)
		}
		return domain.TranscriptCompleted(strings.TrimSpace(event.Transcript)), nil
	case EventAudioTranscriptDelta, EventTextDelta:
		var event deltaEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return domain.ControlMessage{}, fmt.Errorf("failed to parse %s: %w", base.Type, err)
		}
		return domain.ResponseTextDelta(event.Delta), nil
	case EventAudioDelta:
		var event deltaEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return domain.ControlMessage{}, fmt.Errorf("failed to parse %s: %w", base.Type, err)
		}
		samples, err := audio.DecodePCM16(event.Delta)
		if err != nil {
			return domain.ControlMessage{}, fmt.Errorf("failed to decode %s: %w", base.Type, err)
		}
		return domain.ResponseAudioDelta(domain.AudioFrame{Samples: samples}), nil
	case EventAudioDone:
		return domain.ResponseAudioDone(), nil
	case EventError:
		var event errorEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return domain.ControlMessage{}, fmt.Errorf("failed to parse %s: %w", base.Type, err)
		}
		message := strings.TrimSpace(event.Error.Message)
		if message == "" {
			message = "speech service returned an unknown error"
		}
		return domain.ServerError(message), nil
	default:
		return domain.UnknownMessage(base.Type), nil
	}
}
