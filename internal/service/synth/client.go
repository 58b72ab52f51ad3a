// Package synth wraps the text-to-speech provider. Long replies are split
// into provider-sized chunks; with local audio processing the chunk audio is
// downloaded, stitched and persisted, otherwise the first chunk's remote URL
// is returned as-is.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/voice-relay/internal/audio"
	"github.com/zhouzirui/voice-relay/internal/metrics"
	"github.com/zhouzirui/voice-relay/pkg/textsplit"
)

const defaultBaseURL = "https://api.murf.ai"

// ErrNoCredential reports that the provider key was not configured.
var ErrNoCredential = errors.New("synthesis credential missing")

// Config carries the provider settings.
type Config struct {
	APIKey       string
	DefaultVoice string
	Timeout      time.Duration
}

// Client talks to the text-to-speech provider over HTTP.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	processor  *audio.Processor
	store      *audio.Store
	metrics    *metrics.Metrics
	log        *logrus.Logger
}

// NewClient builds a synthesis client. The processor decides whether chunk
// audio is stitched locally or the first remote URL is passed through.
func NewClient(cfg Config, processor *audio.Processor, store *audio.Store, m *metrics.Metrics, log *logrus.Logger) *Client {
	return &Client{
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		processor:  processor,
		store:      store,
		metrics:    m,
		log:        log,
	}
}

type generateRequest struct {
	VoiceID    string `json:"voiceId"`
	Text       string `json:"text"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
	Style      string `json:"style"`
}

// generateResponse mirrors the provider payload; the audio URL has been
// observed under several field names, checked in fixed priority order.
type generateResponse struct {
	AudioFile string `json:"audioFile"`
	AudioURL  string `json:"audioUrl"`
	Data      struct {
		AudioFile string `json:"audioFile"`
	} `json:"data"`
}

func (r generateResponse) audioURL() string {
	switch {
	case r.AudioFile != "":
		return r.AudioFile
	case r.AudioURL != "":
		return r.AudioURL
	default:
		return r.Data.AudioFile
	}
}

// Synthesize converts text into one audio reference. With local processing
// every chunk is synthesized, downloaded and stitched into a persisted file;
// without it only the first chunk's remote URL is returned and any further
// chunks are dropped (documented degradation, logged for visibility).
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	parts := textsplit.Split(text, textsplit.DefaultLimit)
	if c.metrics != nil {
		c.metrics.SynthesisChunks.Observe(float64(len(parts)))
	}

	voice := strings.TrimSpace(voiceID)
	if voice == "" {
		voice = c.cfg.DefaultVoice
	}

	if !c.processor.Available() {
		if len(parts) > 1 {
			c.log.WithFields(logrus.Fields{
				"chunks":  len(parts),
				"dropped": len(parts) - 1,
			}).Warn("no local stitching; returning first synthesis chunk only")
		}
		return c.generateURL(ctx, parts[0], voice)
	}

	downloads := make([][]byte, 0, len(parts))
	for _, part := range parts {
		url, err := c.generateURL(ctx, part, voice)
		if err != nil {
			return "", err
		}
		data, err := c.download(ctx, url)
		if err != nil {
			return "", err
		}
		downloads = append(downloads, data)
	}

	stitched, err := c.processor.Stitch(ctx, downloads)
	if err != nil {
		return "", err
	}

	return c.store.Save(stitched, "mp3")
}

// generateURL issues one provider call and extracts the remote audio URL.
func (c *Client) generateURL(ctx context.Context, text, voice string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNoCredential
	}

	payload, err := json.Marshal(generateRequest{
		VoiceID:    voice,
		Text:       text,
		Format:     "mp3",
		SampleRate: 24000,
		Style:      "Conversational",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read synthesis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("synthesis failed %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse synthesis response: %w", err)
	}

	url := parsed.audioURL()
	if url == "" {
		return "", fmt.Errorf("synthesis response missing audio URL: %s", strings.TrimSpace(string(body)))
	}
	return url, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio download failed %d: %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded audio: %w", err)
	}
	return data, nil
}
