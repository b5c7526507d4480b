package domain

// MessageType tags a ControlMessage.
type MessageType string

// Inbound message types.
const (
	MessageSessionReady        MessageType = "session_ready"
	MessageSessionUpdated      MessageType = "session_updated"
	MessageSpeechStarted       MessageType = "speech_started"
	MessageSpeechStopped       MessageType = "speech_stopped"
	MessageTranscriptCompleted MessageType = "transcript_completed"
	MessageResponseTextDelta   MessageType = "response_text_delta"
	MessageResponseAudioDelta  MessageType = "response_audio_delta"
	MessageResponseAudioDone   MessageType = "response_audio_done"
	MessageServerError         MessageType = "server_error"
	MessageUnknown             MessageType = "unknown"
)

// Outbound message types.
const (
	MessageHandshake   MessageType = "handshake"
	MessageSetVoice    MessageType = "set_voice"
	MessageAppendAudio MessageType = "append_audio"
	MessageCommitAudio MessageType = "commit_audio"
	MessageSendText    MessageType = "send_text"
)

// InboundMessageTypes lists every type the dispatcher can receive.
var InboundMessageTypes = []MessageType{
	MessageSessionReady,
	MessageSessionUpdated,
	MessageSpeechStarted,
	MessageSpeechStopped,
	MessageTranscriptCompleted,
	MessageResponseTextDelta,
	MessageResponseAudioDelta,
	MessageResponseAudioDone,
	MessageServerError,
	MessageUnknown,
}

// ControlMessage is one protocol message in either direction. Only the
// payload fields relevant to Type are set.
type ControlMessage struct {
	Type  MessageType
	Text  string
	Voice string
	Frame AudioFrame
	// Tag holds the raw wire tag for unknown inbound messages.
	Tag string
}

func SessionReady() ControlMessage { return ControlMessage{Type: MessageSessionReady} }

func SessionUpdated(voice string) ControlMessage {
	return ControlMessage{Type: MessageSessionUpdated, Voice: voice}
}

func SpeechStarted() ControlMessage { return ControlMessage{Type: MessageSpeechStarted} }

func SpeechStopped() ControlMessage { return ControlMessage{Type: MessageSpeechStopped} }

func TranscriptCompleted(text string) ControlMessage {
	return ControlMessage{Type: MessageTranscriptCompleted, Text: text}
}

func ResponseTextDelta(text string) ControlMessage {
	return ControlMessage{Type: MessageResponseTextDelta, Text: text}
}

func ResponseAudioDelta(frame AudioFrame) ControlMessage {
	return ControlMessage{Type: MessageResponseAudioDelta, Frame: frame}
}

func ResponseAudioDone() ControlMessage { return ControlMessage{Type: MessageResponseAudioDone} }

func ServerError(message string) ControlMessage {
	return ControlMessage{Type: MessageServerError, Text: message}
}

func UnknownMessage(tag string) ControlMessage {
	return ControlMessage{Type: MessageUnknown, Tag: tag}
}

func Handshake(voice string) ControlMessage {
	return ControlMessage{Type: MessageHandshake, Voice: voice}
}

func SetVoice(voice string) ControlMessage {
	return ControlMessage{Type: MessageSetVoice, Voice: voice}
}

func AppendAudio(frame AudioFrame) ControlMessage {
	return ControlMessage{Type: MessageAppendAudio, Frame: frame}
}

func CommitAudio() ControlMessage { return ControlMessage{Type: MessageCommitAudio} }

func SendText(text string) ControlMessage {
	return ControlMessage{Type: MessageSendText, Text: text}
}
