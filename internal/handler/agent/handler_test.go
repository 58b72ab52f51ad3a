package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/voice-relay/internal/model/chat"
	agentService "github.com/zhouzirui/voice-relay/internal/service/agent"
)

type fakeService struct {
	result     chat.Result
	err        error
	history    []chat.Message
	gotSession string
	gotAudio   []byte
	gotVoice   string
	cleared    string
}

func (f *fakeService) Chat(_ context.Context, sessionID string, audioData []byte, voiceID string) (chat.Result, error) {
	f.gotSession = sessionID
	f.gotAudio = audioData
	f.gotVoice = voiceID
	return f.result, f.err
}

func (f *fakeService) History(_ context.Context, sessionID string) []chat.Message {
	f.gotSession = sessionID
	return f.history
}

func (f *fakeService) ClearHistory(_ context.Context, sessionID string) {
	f.cleared = sessionID
}

func newTestRouter(svc Service) http.Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)

	r := chi.NewRouter()
	New(svc, log).RegisterRoutes(r)
	return r
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "recording.webm")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("part write err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer close err: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestHandleChat(t *testing.T) {
	svc := &fakeService{result: chat.Result{
		SessionID:  "s1",
		Transcript: "hello",
		LLMText:    "hi there",
		AudioURL:   "/static/reply_abc.mp3",
	}}
	router := newTestRouter(svc)

	body, contentType := multipartBody(t, "file", []byte("audio-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/agent/chat/s1?voiceId=en-US-ken", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if svc.gotSession != "s1" || svc.gotVoice != "en-US-ken" || string(svc.gotAudio) != "audio-bytes" {
		t.Fatalf("service received session=%q voice=%q audio=%q", svc.gotSession, svc.gotVoice, svc.gotAudio)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if payload["session_id"] != "s1" || payload["transcript"] != "hello" ||
		payload["llm_text"] != "hi there" || payload["audio_url"] != "/static/reply_abc.mp3" {
		t.Fatalf("unexpected response payload: %v", payload)
	}
}

func TestHandleChatMissingFile(t *testing.T) {
	router := newTestRouter(&fakeService{})

	body, contentType := multipartBody(t, "upload", []byte("audio"))
	req := httptest.NewRequest(http.MethodPost, "/agent/chat/s1", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestHandleChatPipelineErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty audio", agentService.ErrNoAudio, http.StatusBadRequest},
		{"undecodable audio", agentService.ErrUndecodableAudio, http.StatusBadRequest},
		{"internal failure", errors.New("session store exploded"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&fakeService{err: tc.err})

			body, contentType := multipartBody(t, "file", []byte("audio"))
			req := httptest.NewRequest(http.MethodPost, "/agent/chat/s1", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("got status %d, want %d", rec.Code, tc.wantStatus)
			}
			var payload map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil || payload["error"] == "" {
				t.Fatalf("expected error payload, got %s", rec.Body.String())
			}
		})
	}
}

func TestHandleHistory(t *testing.T) {
	svc := &fakeService{history: []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "hi"},
	}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/agent/history/s9", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload struct {
		SessionID string         `json:"session_id"`
		Messages  []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if payload.SessionID != "s9" || len(payload.Messages) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleHistoryUnknownSessionIsEmptyList(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/agent/history/unknown", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if string(payload["messages"]) != "[]" {
		t.Fatalf("expected empty JSON array, got %s", payload["messages"])
	}
}

func TestHandleClearHistory(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/agent/history/s3", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if svc.cleared != "s3" {
		t.Fatalf("expected clear for s3, got %q", svc.cleared)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if payload["cleared"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}
