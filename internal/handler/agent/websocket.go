package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler runs the chat pipeline over a live connection: clients
// stream audio frames, the final frame triggers one pipeline pass and the
// transcript, reply and audio reference come back as events.
type WebSocketHandler struct {
	svc      Service
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the live connection handler.
func NewWebSocketHandler(svc Service, log *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes wires the live endpoint.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/agent/live/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioFrame carries one recording chunk; AudioData is base64 on the wire.
type AudioFrame struct {
	AudioData  []byte `json:"audioData"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// ConfigFrame adjusts per-connection settings.
type ConfigFrame struct {
	Voice string `json:"voice"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID string
	voice     string
	buffer    bytes.Buffer
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.log.WithField("session", sessionID).Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(ctx, conn)

	state := &connectionState{sessionID: sessionID}

	h.sendInfo(conn, sessionID, map[string]any{"type": "connected"})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.WithField("session", sessionID).WithError(err).Warn("websocket read error")
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readDeadline))

			if msg.SessionID != "" && msg.SessionID != sessionID {
				h.sendError(conn, "session mismatch")
				continue
			}

			h.handleMessage(ctx, conn, state, &msg)
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioFrame(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigFrame(conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioFrame(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var frame AudioFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if len(frame.AudioData) > 0 {
		state.buffer.Write(frame.AudioData)
		h.log.WithFields(logrus.Fields{
			"session": state.sessionID,
			"chunk":   frame.ChunkIndex,
			"total":   state.buffer.Len(),
		}).Debug("buffered audio frame")
	}

	if frame.IsFinal {
		h.processBufferedAudio(ctx, conn, state)
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	audioData := make([]byte, state.buffer.Len())
	copy(audioData, state.buffer.Bytes())
	state.buffer.Reset()

	if len(audioData) == 0 {
		h.sendError(conn, "no audio data received")
		return
	}

	result, err := h.svc.Chat(ctx, state.sessionID, audioData, state.voice)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type": "transcript",
		"text": result.Transcript,
	})
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type": "reply",
		"text": result.LLMText,
	})
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":     "audio",
		"audioUrl": result.AudioURL,
		"isFinal":  true,
	})
}

func (h *WebSocketHandler) handleConfigFrame(conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigFrame
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	if cfg.Voice != "" {
		state.voice = cfg.Voice
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":  "config",
		"voice": state.voice,
	})
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.log.WithError(err).Warn("websocket write failed")
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.log.WithError(err).Warn("websocket write failed")
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
