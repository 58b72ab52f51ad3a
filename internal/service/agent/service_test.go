package agent

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/voice-relay/internal/audio"
	"github.com/zhouzirui/voice-relay/internal/metrics"
	"github.com/zhouzirui/voice-relay/internal/model/chat"
	"github.com/zhouzirui/voice-relay/internal/service/session"
)

type fakeTranscriber struct {
	text     string
	err      error
	gotAudio []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioData []byte) (string, error) {
	f.gotAudio = audioData
	return f.text, f.err
}

type fakeDialogue struct {
	reply      string
	err        error
	gotHistory []chat.Message
}

func (f *fakeDialogue) Generate(_ context.Context, history []chat.Message) (string, error) {
	f.gotHistory = history
	return f.reply, f.err
}

type fakeSynthesizer struct {
	url      string
	err      error
	gotText  string
	gotVoice string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text, voiceID string) (string, error) {
	f.gotText = text
	f.gotVoice = voiceID
	return f.url, f.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(t *testing.T, transcriber Transcriber, dialogue Dialogue, synthesizer Synthesizer, ffmpegPath string) (*Service, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := audio.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}

	svc := NewService(
		session.NewMemoryStore(),
		transcriber,
		dialogue,
		synthesizer,
		audio.NewProcessor(ffmpegPath),
		store,
		metrics.New(prometheus.NewRegistry()),
		quietLogger(),
	)
	return svc, dir
}

func TestChatSuccess(t *testing.T) {
	transcriber := &fakeTranscriber{text: "hello there"}
	dialogue := &fakeDialogue{reply: "hi, how can I help?"}
	synthesizer := &fakeSynthesizer{url: "/static/reply_abc.mp3"}
	svc, _ := newTestService(t, transcriber, dialogue, synthesizer, "")

	result, err := svc.Chat(context.Background(), "s1", []byte("audio-bytes"), "en-US-ken")
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}

	if result.SessionID != "s1" || result.Transcript != "hello there" ||
		result.LLMText != "hi, how can I help?" || result.AudioURL != "/static/reply_abc.mp3" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if string(transcriber.gotAudio) != "audio-bytes" {
		t.Fatalf("transcriber received %q", transcriber.gotAudio)
	}
	if synthesizer.gotText != "hi, how can I help?" || synthesizer.gotVoice != "en-US-ken" {
		t.Fatalf("synthesizer received %q / %q", synthesizer.gotText, synthesizer.gotVoice)
	}

	history := svc.History(context.Background(), "s1")
	if len(history) != 2 {
		t.Fatalf("unexpected history length: %d", len(history))
	}
	if history[0].Role != chat.RoleUser || history[0].Content != "hello there" {
		t.Fatalf("unexpected user turn: %+v", history[0])
	}
	if history[1].Role != chat.RoleAssistant || history[1].Content != "hi, how can I help?" {
		t.Fatalf("unexpected assistant turn: %+v", history[1])
	}
}

func TestChatDialogueSeesLatestUserTurn(t *testing.T) {
	dialogue := &fakeDialogue{reply: "reply"}
	svc, _ := newTestService(t, &fakeTranscriber{text: "question"}, dialogue, &fakeSynthesizer{}, "")

	if _, err := svc.Chat(context.Background(), "s1", []byte("a"), ""); err != nil {
		t.Fatalf("Chat err: %v", err)
	}

	if len(dialogue.gotHistory) != 1 || dialogue.gotHistory[0].Content != "question" {
		t.Fatalf("dialogue must see the transcript it is replying to, got %+v", dialogue.gotHistory)
	}
}

func TestChatEmptyAudio(t *testing.T) {
	svc, _ := newTestService(t, &fakeTranscriber{}, &fakeDialogue{}, &fakeSynthesizer{}, "")

	if _, err := svc.Chat(context.Background(), "s1", nil, ""); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if history := svc.History(context.Background(), "s1"); len(history) != 0 {
		t.Fatalf("no messages may be recorded for a rejected request, got %d", len(history))
	}
}

func TestChatTranscriptionFailure(t *testing.T) {
	dialogue := &fakeDialogue{reply: "reply"}
	svc, _ := newTestService(t, &fakeTranscriber{err: errors.New("boom")}, dialogue, &fakeSynthesizer{url: "u"}, "")

	result, err := svc.Chat(context.Background(), "s1", []byte("a"), "")
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}

	if result.Transcript != TranscriptFallback {
		t.Fatalf("unexpected transcript: %q", result.Transcript)
	}
	if len(dialogue.gotHistory) != 1 || dialogue.gotHistory[0].Content != TranscriptFallback {
		t.Fatalf("dialogue must still run on the placeholder, got %+v", dialogue.gotHistory)
	}
}

func TestChatDialogueFailure(t *testing.T) {
	synthesizer := &fakeSynthesizer{url: "u"}
	svc, _ := newTestService(t, &fakeTranscriber{text: "hi"}, &fakeDialogue{err: errors.New("down")}, synthesizer, "")

	result, err := svc.Chat(context.Background(), "s1", []byte("a"), "")
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}

	if result.LLMText != ReplyFallback {
		t.Fatalf("unexpected reply: %q", result.LLMText)
	}
	if synthesizer.gotText != ReplyFallback {
		t.Fatalf("fallback reply must still be voiced, got %q", synthesizer.gotText)
	}
	if history := svc.History(context.Background(), "s1"); history[1].Content != ReplyFallback {
		t.Fatalf("fallback reply must be recorded, got %+v", history[1])
	}
}

func TestChatAllProvidersAbsent(t *testing.T) {
	svc, _ := newTestService(t, nil, nil, nil, "")

	result, err := svc.Chat(context.Background(), "s1", []byte("a"), "")
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}

	if result.Transcript != TranscriptFallback || result.LLMText != ReplyFallback {
		t.Fatalf("unexpected degraded result: %+v", result)
	}
	if result.AudioURL != "" {
		t.Fatalf("without processing the tone cannot be produced, got %q", result.AudioURL)
	}
	if history := svc.History(context.Background(), "s1"); len(history) != 2 {
		t.Fatalf("degraded turns must still be recorded, got %d", len(history))
	}
}

func TestSynthesizeStageToneFallback(t *testing.T) {
	svc, dir := newTestService(t, nil, nil, &fakeSynthesizer{err: errors.New("quota")}, "/usr/bin/ffmpeg")

	url := svc.synthesizeStage(context.Background(), "s1", "reply", "")

	if !strings.HasPrefix(url, "/static/reply_") || !strings.HasSuffix(url, ".wav") {
		t.Fatalf("expected tone file reference, got %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/static/")))
	if err != nil {
		t.Fatalf("tone file missing: %v", err)
	}
	if samples, rate, err := audio.DecodeWAV(data); err != nil || rate != 16000 || len(samples) == 0 {
		t.Fatalf("tone file is not a playable WAV: %v", err)
	}
}

func TestChatMultipleTurnsOrdered(t *testing.T) {
	transcriber := &fakeTranscriber{text: "first"}
	dialogue := &fakeDialogue{reply: "reply-1"}
	svc, _ := newTestService(t, transcriber, dialogue, &fakeSynthesizer{}, "")

	ctx := context.Background()
	if _, err := svc.Chat(ctx, "s1", []byte("a"), ""); err != nil {
		t.Fatalf("Chat err: %v", err)
	}
	transcriber.text = "second"
	dialogue.reply = "reply-2"
	if _, err := svc.Chat(ctx, "s1", []byte("b"), ""); err != nil {
		t.Fatalf("Chat err: %v", err)
	}

	history := svc.History(ctx, "s1")
	want := []string{"first", "reply-1", "second", "reply-2"}
	if len(history) != len(want) {
		t.Fatalf("unexpected history length: %d", len(history))
	}
	for i, content := range want {
		if history[i].Content != content {
			t.Fatalf("history[%d] = %q, want %q", i, history[i].Content, content)
		}
	}

	svc.ClearHistory(ctx, "s1")
	if remaining := svc.History(ctx, "s1"); len(remaining) != 0 {
		t.Fatalf("expected cleared history, got %d messages", len(remaining))
	}
}
