package usecase

import (
	"tutorvoice/internal/domain"
)

// inboundTransitions maps a server message to the state changes it causes.
// Pairs that are absent leave the state alone.
var inboundTransitions = map[domain.MessageType]map[domain.SessionState]domain.SessionState{
	domain.MessageSessionReady: {
		domain.SessionStateConnecting: domain.SessionStateConnected,
	},
	domain.MessageSpeechStarted: {
		domain.SessionStateConnected: domain.SessionStateListening,
	},
	domain.MessageSpeechStopped: {
		domain.SessionStateListening: domain.SessionStateConnected,
	},
	domain.MessageResponseAudioDelta: {
		domain.SessionStateConnected: domain.SessionStateSpeaking,
		domain.SessionStateListening: domain.SessionStateSpeaking,
	},
	domain.MessageResponseAudioDone: {
		domain.SessionStateSpeaking: domain.SessionStateConnected,
	},
}

// nextState returns the state after msg arrives in current and whether it
// differs. A server error moves any state to Errored.
func nextState(current domain.SessionState, msg domain.MessageType) (domain.SessionState, bool) {
	if msg == domain.MessageServerError {
		return domain.SessionStateErrored, current != domain.SessionStateErrored
	}
	if next, ok := inboundTransitions[msg][current]; ok {
		return next, next != current
	}
	return current, false
}

func (c *SessionController) handleInbound(s *activeSession, gen uint64, msg domain.ControlMessage) {
	if c.active != s || !s.current(gen) {
		log.Debug("discarding message from superseded transport", "type", string(msg.Type))
		return
	}

	next, moved := nextState(c.currentState(), msg.Type)

	switch msg.Type {
	case domain.MessageSessionReady:
		s.ready = true
		s.attempts = 0
		s.backoff.Reset()
		c.publish(func(st *domain.Status) { st.ReconnectAttempts = 0 })
		log.Info("voice session ready", "session", s.id, "state", string(c.currentState()))
	case domain.MessageSessionUpdated:
		s.confirmedVoice = msg.Voice
		log.Debug("voice session updated", "voice", msg.Voice)
	case domain.MessageSpeechStarted:
		c.monitor.Cancel()
	case domain.MessageTranscriptCompleted:
		c.deliverTranscript(s, msg.Text)
	case domain.MessageResponseTextDelta:
		reply := s.aggregator.AddResponseDelta(msg.Text)
		c.publish(func(st *domain.Status) { st.ResponseText = reply })
		c.events.ResponseText(msg.Text)
	case domain.MessageResponseAudioDone:
		s.aggregator.EndResponse()
		if s.playback != nil && s.playback.Failed() {
			s.playback.Close()
			s.playback = nil
		}
	case domain.MessageUnknown:
		log.Debug("ignoring unrecognized server event", "tag", msg.Tag)
		return
	}

	if moved {
		c.setState(next)
	}

	switch msg.Type {
	case domain.MessageResponseAudioDelta:
		if c.currentState() == domain.SessionStateSpeaking {
			s.inboundSeq++
			msg.Frame.Seq = s.inboundSeq
			c.playFrame(s, msg.Frame)
		} else {
			log.Debug("discarding audio delta outside speaking", "state", string(c.currentState()))
		}
	case domain.MessageServerError:
		c.raise(domain.NewVoiceError(domain.ErrorKindAPI, msg.Text, nil))
	}
}

func (c *SessionController) deliverTranscript(s *activeSession, raw string) {
	text, err := c.finalizer.Finalize(raw)
	if err != nil {
		log.Warn("transcript rules failed, using raw text", "err", err)
	}
	if text == "" {
		return
	}
	s.aggregator.SetTranscript(text)
	c.publish(func(st *domain.Status) {
		st.LastTranscript = text
		st.ResponseText = ""
	})
	c.events.Transcript(text, true)
}
