// Package audio provides local audio processing for the relay: inbound
// normalization, chunk stitching, fallback tone synthesis and persisted
// audio files. Processing is delegated to an ffmpeg binary probed once at
// startup; when the binary is absent every call degrades the way the
// pipeline documents.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrProcessingUnavailable reports that no ffmpeg binary was found at startup.
var ErrProcessingUnavailable = errors.New("local audio processing unavailable")

// runnerFunc executes the ffmpeg binary. Swappable in tests.
type runnerFunc func(ctx context.Context, path string, args []string, stdin []byte) ([]byte, error)

// Processor converts inbound audio to the canonical transcription format and
// stitches synthesized chunks. A Processor built with an empty path reports
// the capability as absent; the flag never changes per request.
type Processor struct {
	ffmpegPath string
	run        runnerFunc
}

// NewProcessor builds a Processor around the given ffmpeg binary path. An
// empty path yields a pass-through processor.
func NewProcessor(ffmpegPath string) *Processor {
	return &Processor{
		ffmpegPath: ffmpegPath,
		run:        runCommand,
	}
}

// Available reports whether local audio processing can run.
func (p *Processor) Available() bool {
	return p != nil && p.ffmpegPath != ""
}

// Normalize converts raw audio into mono 16 kHz WAV. The container is
// auto-detected first; browser recorders frequently produce webm, so a failed
// detection is retried once with the webm demuxer forced. When processing is
// unavailable the raw bytes pass through unchanged. Both decode attempts
// failing is a fatal error for the request.
func (p *Processor) Normalize(ctx context.Context, raw []byte) ([]byte, error) {
	if !p.Available() {
		return raw, nil
	}

	out, err := p.run(ctx, p.ffmpegPath, normalizeArgs(""), raw)
	if err == nil {
		return out, nil
	}

	out, retryErr := p.run(ctx, p.ffmpegPath, normalizeArgs("webm"), raw)
	if retryErr == nil {
		return out, nil
	}

	return nil, fmt.Errorf("audio decode failed: %w (webm retry: %v)", err, retryErr)
}

func normalizeArgs(inputFormat string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if inputFormat != "" {
		args = append(args, "-f", inputFormat)
	}
	args = append(args, "-i", "pipe:0", "-ac", "1", "-ar", "16000", "-f", "wav", "pipe:1")
	return args
}

// Stitch concatenates mp3 chunks into one mp3 stream, preserving order.
func (p *Processor) Stitch(ctx context.Context, parts [][]byte) ([]byte, error) {
	if !p.Available() {
		return nil, ErrProcessingUnavailable
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no audio parts to stitch")
	}
	if len(parts) == 1 {
		return append([]byte(nil), parts[0]...), nil
	}

	dir, err := os.MkdirTemp("", "relay-stitch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create stitch workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	var list strings.Builder
	for i, part := range parts {
		name := filepath.Join(dir, fmt.Sprintf("part_%03d.mp3", i))
		if err := os.WriteFile(name, part, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write stitch part %d: %w", i, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", name)
	}

	listPath := filepath.Join(dir, "parts.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write stitch list: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", "-f", "mp3", "pipe:1",
	}
	out, err := p.run(ctx, p.ffmpegPath, args, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to stitch audio: %w", err)
	}
	return out, nil
}

func runCommand(ctx context.Context, path string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)

	var stdout, stderr bytes.Buffer
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %s", path, msg)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stdout.Bytes(), nil
}
