// Package agent exposes the voice-chat HTTP surface: one multipart chat
// endpoint plus session history management.
package agent

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/voice-relay/internal/model/chat"
	agentService "github.com/zhouzirui/voice-relay/internal/service/agent"
	"github.com/zhouzirui/voice-relay/pkg/utils"
)

// maxUploadBytes bounds a single recording upload.
const maxUploadBytes = 25 << 20

// Service is implemented by the agent orchestrator.
type Service interface {
	Chat(ctx context.Context, sessionID string, audioData []byte, voiceID string) (chat.Result, error)
	History(ctx context.Context, sessionID string) []chat.Message
	ClearHistory(ctx context.Context, sessionID string)
}

// Handler serves the agent routes.
type Handler struct {
	svc Service
	log *logrus.Logger
}

// New creates the agent handler.
func New(svc Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes wires the agent endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agent/history/{sessionID}", h.handleHistory)
	r.Delete("/agent/history/{sessionID}", h.handleClearHistory)
	r.Post("/agent/chat/{sessionID}", h.handleChat)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages := h.svc.History(r.Context(), sessionID)
	if messages == nil {
		messages = []chat.Message{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	h.svc.ClearHistory(r.Context(), sessionID)

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"cleared":    true,
	})
}

// handleChat accepts a multipart recording under the "file" field, runs the
// pipeline and returns the transcript, reply and audio reference.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	voiceID := r.URL.Query().Get("voiceId")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read uploaded audio")
		return
	}

	result, err := h.svc.Chat(r.Context(), sessionID, audioData, voiceID)
	if err != nil {
		switch {
		case errors.Is(err, agentService.ErrNoAudio):
			utils.RespondError(w, http.StatusBadRequest, "no audio data received")
		case errors.Is(err, agentService.ErrUndecodableAudio):
			utils.RespondError(w, http.StatusBadRequest, "audio payload could not be decoded")
		default:
			h.log.WithField("session", sessionID).WithError(err).Error("chat pipeline failed")
			utils.RespondError(w, http.StatusInternalServerError, "chat failed")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}
