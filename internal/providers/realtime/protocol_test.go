package realtime

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorvoice/internal/audio"
	"tutorvoice/internal/domain"
)

func decodeFrame(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(frame, &out))
	return out
}

func TestEncodeHandshake(t *testing.T) {
	t.Parallel()

	frames, err := EncodeClientMessage(domain.Handshake("alloy"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"voice":"alloy"}`, string(frames[0]))
}

func TestEncodeSetVoice(t *testing.T) {
	t.Parallel()

	frames, err := EncodeClientMessage(domain.SetVoice("verse"))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	event := decodeFrame(t, frames[0])
	assert.Equal(t, EventSessionUpdate, event["type"])
	assert.Equal(t, map[string]any{"voice": "verse"}, event["session"])
	assert.True(t, strings.HasPrefix(event["event_id"].(string), "evt_"))
}

func TestEncodeAppendAudio(t *testing.T) {
	t.Parallel()

	frame := domain.AudioFrame{Seq: 3, Samples: []int16{1, -1, 32767}}
	frames, err := EncodeClientMessage(domain.AppendAudio(frame))
	require.NoError(t, err)

	event := decodeFrame(t, frames[0])
	assert.Equal(t, EventInputAudioAppend, event["type"])
	assert.Equal(t, audio.EncodePCM16(frame.Samples), event["audio"])
}

func TestEncodeCommitAudio(t *testing.T) {
	t.Parallel()

	frames, err := EncodeClientMessage(domain.CommitAudio())
	require.NoError(t, err)
	event := decodeFrame(t, frames[0])
	assert.Equal(t, EventInputAudioCommit, event["type"])
}

func TestEncodeSendTextProducesItemThenResponse(t *testing.T) {
	t.Parallel()

	frames, err := EncodeClientMessage(domain.SendText("what is a noun?"))
	require.NoError(t, err)
	require.Len(t, frames, 2)

	item := decodeFrame(t, frames[0])
	assert.Equal(t, EventConversationCreate, item["type"])
	assert.Equal(t, map[string]any{
		"type": "message",
		"role": "user",
		"content": []any{
			map[string]any{"type": "input_text", "text": "what is a noun?"},
		},
	}, item["item"])

	response := decodeFrame(t, frames[1])
	assert.Equal(t, EventResponseCreate, response["type"])
}

func TestEncodeRejectsInboundTypes(t *testing.T) {
	t.Parallel()

	_, err := EncodeClientMessage(domain.SpeechStarted())
	assert.ErrorIs(t, err, ErrUnsupportedMessage)
}

func TestDecodeServerMessages(t *testing.T) {
	t.Parallel()

	pcm := audio.EncodePCM16([]int16{100, -100})
	cases := []struct {
		name string
		raw  string
		want domain.ControlMessage
	}{
		{"ready", `{"type":"session.ready"}`, domain.SessionReady()},
		{"created", `{"type":"session.created","session":{}}`, domain.SessionReady()},
		{"updated", `{"type":"session.updated","session":{"voice":"sage"}}`, domain.SessionUpdated("sage")},
		{"speech started", `{"type":"input_audio_buffer.speech_started","audio_start_ms":10}`, domain.SpeechStarted()},
		{"speech stopped", `{"type":"input_audio_buffer.speech_stopped"}`, domain.SpeechStopped()},
		{"transcript", `{"type":"conversation.item.input_audio_transcription.completed","transcript":" hello there \n"}`, domain.TranscriptCompleted("hello there")},
		{"audio transcript delta", `{"type":"response.audio_transcript.delta","delta":"Hi"}`, domain.ResponseTextDelta("Hi")},
		{"text delta", `{"type":"response.text.delta","delta":" there"}`, domain.ResponseTextDelta(" there")},
		{"audio delta", `{"type":"response.audio.delta","delta":"` + pcm + `"}`, domain.ResponseAudioDelta(domain.AudioFrame{Samples: []int16{100, -100}})},
		{"audio done", `{"type":"response.audio.done"}`, domain.ResponseAudioDone()},
		{"error", `{"type":"error","error":{"type":"invalid_request_error","message":"bad voice"}}`, domain.ServerError("bad voice")},
		{"error without message", `{"type":"error","error":{}}`, domain.ServerError("speech service returned an unknown error")},
		{"unknown", `{"type":"rate_limits.updated"}`, domain.UnknownMessage("rate_limits.updated")},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeServerMessage([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeServerMessageErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodeServerMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeServerMessage([]byte(`{"type":"response.audio.delta","delta":"AA=="}`))
	assert.ErrorIs(t, err, audio.ErrOddByteCount)
}
