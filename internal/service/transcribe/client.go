// Package transcribe wraps the speech-to-text provider. The provider takes an
// uploaded audio blob, queues a transcript job and exposes its status for
// polling; the whole sequence counts as one attempt — there is no retry.
package transcribe

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
)

const defaultBaseURL = "https://api.assemblyai.com/v2"

var (
	// ErrNoCredential reports that the provider key was not configured.
	ErrNoCredential = errors.New("transcription credential missing")
	// ErrEmptyTranscript reports a completed job with no recognized text.
	ErrEmptyTranscript = errors.New("transcription returned empty text")
)

// Client talks to the speech-to-text provider over HTTP.
type Client struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
}

// NewClient builds a transcription client. The timeout bounds each HTTP call;
// the caller's context bounds the overall job.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		pollInterval: time.Second,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe uploads the audio bytes, starts a transcript job and polls it to
// completion. Returns the recognized text, or an error the orchestrator maps
// to the user-visible placeholder.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoCredential
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data to transcribe")
	}

	audioURL, err := c.upload(ctx, audio)
	if err != nil {
		return "", err
	}

	job, err := c.createTranscript(ctx, audioURL)
	if err != nil {
		return "", err
	}

	text, err := c.awaitTranscript(ctx, job.ID)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (c *Client) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("audio upload failed: %w", err)
	}
	if resp.UploadURL == "" {
		return "", fmt.Errorf("upload response missing upload_url")
	}
	return resp.UploadURL, nil
}

func (c *Client) createTranscript(ctx context.Context, audioURL string) (*transcriptJob, error) {
	payload, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var job transcriptJob
	if err := c.do(req, &job); err != nil {
		return nil, fmt.Errorf("transcript job creation failed: %w", err)
	}
	if job.ID == "" {
		return nil, fmt.Errorf("transcript response missing job id")
	}
	return &job, nil
}

func (c *Client) awaitTranscript(ctx context.Context, jobID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+jobID, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create poll request: %w", err)
		}
		req.Header.Set("Authorization", c.apiKey)

		var job transcriptJob
		if err := c.do(req, &job); err != nil {
			return "", fmt.Errorf("transcript poll failed: %w", err)
		}

		switch job.Status {
		case "completed":
			return job.Text, nil
		case "error":
			return "", fmt.Errorf("transcription failed: %s", job.Error)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}
