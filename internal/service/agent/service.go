// Package agent sequences the voice-chat pipeline: normalize, transcribe,
// record, generate, record, synthesize. Each external stage degrades to a
// fixed substitute on failure so every request that carries decodable audio
// reaches a response.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/voice-relay/internal/audio"
	"github.com/zhouzirui/voice-relay/internal/metrics"
	"github.com/zhouzirui/voice-relay/internal/model/chat"
	"github.com/zhouzirui/voice-relay/internal/service/session"
)

// User-visible substitutes recorded in history when a stage degrades.
const (
	TranscriptFallback = "(Sorry, I couldn't transcribe that.)"
	ReplyFallback      = "I'm having trouble connecting right now. Please try again in a moment."
)

// Fatal input errors; everything else is absorbed by stage-local fallbacks.
var (
	ErrNoAudio          = errors.New("no audio data received")
	ErrUndecodableAudio = errors.New("audio payload could not be decoded")
)

// Transcriber converts audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

// Dialogue generates the assistant reply from session history.
type Dialogue interface {
	Generate(ctx context.Context, history []chat.Message) (string, error)
}

// Synthesizer converts reply text into an audio reference.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (string, error)
}

// Service is the chat orchestrator. Provider fields may be nil when their
// credentials were absent at startup; a nil provider degrades the same way a
// failing one does.
type Service struct {
	sessions    session.Store
	transcriber Transcriber
	dialogue    Dialogue
	synthesizer Synthesizer
	processor   *audio.Processor
	store       *audio.Store
	metrics     *metrics.Metrics
	log         *logrus.Logger
}

// NewService wires the pipeline dependencies.
func NewService(
	sessions session.Store,
	transcriber Transcriber,
	dialogue Dialogue,
	synthesizer Synthesizer,
	processor *audio.Processor,
	store *audio.Store,
	m *metrics.Metrics,
	log *logrus.Logger,
) *Service {
	return &Service{
		sessions:    sessions,
		transcriber: transcriber,
		dialogue:    dialogue,
		synthesizer: synthesizer,
		processor:   processor,
		store:       store,
		metrics:     m,
		log:         log,
	}
}

// Chat runs one request through the pipeline. Only an empty payload or an
// undecodable container aborts the request; every other failure is absorbed
// and substituted so the response always carries a transcript and a reply.
func (s *Service) Chat(ctx context.Context, sessionID string, audioData []byte, voiceID string) (chat.Result, error) {
	s.metrics.ChatRequests.Inc()
	start := time.Now()
	defer func() {
		s.metrics.ChatDuration.Observe(time.Since(start).Seconds())
	}()

	if len(audioData) == 0 {
		s.metrics.ChatFailures.Inc()
		return chat.Result{}, ErrNoAudio
	}

	normalized, err := s.processor.Normalize(ctx, audioData)
	if err != nil {
		s.metrics.ChatFailures.Inc()
		return chat.Result{}, fmt.Errorf("%w: %v", ErrUndecodableAudio, err)
	}

	transcript := s.transcribeStage(ctx, sessionID, normalized)
	s.record(ctx, sessionID, chat.RoleUser, transcript)

	reply := s.generateStage(ctx, sessionID)
	s.record(ctx, sessionID, chat.RoleAssistant, reply)

	audioURL := s.synthesizeStage(ctx, sessionID, reply, voiceID)

	return chat.Result{
		SessionID:  sessionID,
		Transcript: transcript,
		LLMText:    reply,
		AudioURL:   audioURL,
	}, nil
}

// History returns the session's recorded messages.
func (s *Service) History(ctx context.Context, sessionID string) []chat.Message {
	return s.sessions.History(ctx, sessionID)
}

// ClearHistory drops the session's messages; unknown sessions succeed.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) {
	s.sessions.Clear(ctx, sessionID)
}

func (s *Service) record(ctx context.Context, sessionID, role, content string) {
	if err := s.sessions.Append(ctx, sessionID, chat.Message{Role: role, Content: content}); err != nil {
		s.log.WithFields(logrus.Fields{"session": sessionID, "role": role}).
			WithError(err).Warn("failed to record message")
	}
}

func (s *Service) transcribeStage(ctx context.Context, sessionID string, audioData []byte) string {
	if s.transcriber == nil {
		s.metrics.TranscribeFallbacks.Inc()
		s.log.WithField("session", sessionID).Warn("transcription unavailable, using placeholder")
		return TranscriptFallback
	}

	text, err := s.transcriber.Transcribe(ctx, audioData)
	if err != nil {
		s.metrics.TranscribeFallbacks.Inc()
		s.log.WithField("session", sessionID).WithError(err).Error("transcription failed")
		return TranscriptFallback
	}
	return text
}

func (s *Service) generateStage(ctx context.Context, sessionID string) string {
	if s.dialogue == nil {
		s.metrics.DialogueFallbacks.Inc()
		s.log.WithField("session", sessionID).Warn("dialogue unavailable, using apology reply")
		return ReplyFallback
	}

	reply, err := s.dialogue.Generate(ctx, s.sessions.History(ctx, sessionID))
	if err != nil {
		s.metrics.DialogueFallbacks.Inc()
		s.log.WithField("session", sessionID).WithError(err).Error("dialogue generation failed")
		return ReplyFallback
	}
	return reply
}

func (s *Service) synthesizeStage(ctx context.Context, sessionID, reply, voiceID string) string {
	if s.synthesizer != nil {
		audioURL, err := s.synthesizer.Synthesize(ctx, reply, voiceID)
		if err == nil {
			return audioURL
		}
		s.log.WithField("session", sessionID).WithError(err).Error("speech synthesis failed")
	} else {
		s.log.WithField("session", sessionID).Warn("speech synthesis unavailable")
	}
	s.metrics.SynthesisFallbacks.Inc()

	if !s.processor.Available() {
		// Text-only reply; the response still succeeds.
		return ""
	}

	tone, err := audio.FallbackTone()
	if err != nil {
		s.log.WithField("session", sessionID).WithError(err).Error("tone generation failed")
		return ""
	}
	url, err := s.store.Save(tone, "wav")
	if err != nil {
		s.log.WithField("session", sessionID).WithError(err).Error("tone persistence failed")
		return ""
	}
	s.metrics.ToneFallbacks.Inc()
	return url
}
