// voicecheck exercises the configured speech providers from the command line:
// transcribe a local recording, synthesize a text, or emit the fallback tone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/voice-relay/internal/audio"
	"github.com/zhouzirui/voice-relay/internal/config"
	"github.com/zhouzirui/voice-relay/internal/logger"
	"github.com/zhouzirui/voice-relay/internal/metrics"
	"github.com/zhouzirui/voice-relay/internal/service/synth"
	"github.com/zhouzirui/voice-relay/internal/service/transcribe"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: no .env file, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	mode := flag.String("mode", "", "check mode: stt, tts or tone")
	audioPath := flag.String("audio", "", "input audio file for stt mode")
	text := flag.String("text", "This is a synthesis check.", "input text for tts mode")
	voice := flag.String("voice", "", "voice ID for tts mode, defaults to the configured voice")
	outputPath := flag.String("out", "", "output file for tts/tone mode")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")

	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "stt":
		runSTT(ctx, cfg, *audioPath)
	case "tts":
		runTTS(ctx, cfg, *text, *voice, *outputPath)
	case "tone":
		runTone(*outputPath)
	default:
		flag.Usage()
		log.Fatal("specify -mode=stt, -mode=tts or -mode=tone")
	}
}

func runSTT(ctx context.Context, cfg *config.Config, audioPath string) {
	if cfg.Speech.TranscribeKey == "" {
		log.Fatal("ASSEMBLYAI_API_KEY is not configured")
	}
	if audioPath == "" {
		log.Fatal("stt mode needs -audio with a recording path")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("failed to read audio file: %v", err)
	}

	client := transcribe.NewClient(cfg.Speech.TranscribeKey, cfg.Speech.Timeout)

	log.Printf("transcribing %s (%d bytes)", audioPath, len(data))
	text, err := client.Transcribe(ctx, data)
	if err != nil {
		log.Fatalf("transcription failed: %v", err)
	}

	log.Printf("transcript: %q", text)
}

func runTTS(ctx context.Context, cfg *config.Config, text, voice, outputPath string) {
	if cfg.Speech.SynthKey == "" {
		log.Fatal("MURF_API_KEY is not configured")
	}

	store, err := audio.NewStore(cfg.Media.StaticDir)
	if err != nil {
		log.Fatalf("failed to prepare static directory: %v", err)
	}

	client := synth.NewClient(synth.Config{
		APIKey:       cfg.Speech.SynthKey,
		DefaultVoice: cfg.Speech.SynthVoice,
		Timeout:      cfg.Speech.Timeout,
	}, audio.NewProcessor(cfg.Media.FFmpegPath), store, metrics.New(prometheus.NewRegistry()), logger.New())

	log.Printf("synthesizing %d characters", len(text))
	url, err := client.Synthesize(ctx, text, voice)
	if err != nil {
		log.Fatalf("synthesis failed: %v", err)
	}

	log.Printf("audio reference: %s", url)
	if outputPath != "" {
		log.Printf("note: -out is ignored in tts mode, the file already lives under %s", cfg.Media.StaticDir)
	}
}

func runTone(outputPath string) {
	tone, err := audio.FallbackTone()
	if err != nil {
		log.Fatalf("tone generation failed: %v", err)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tone-%d.wav", time.Now().Unix())
	}

	if err := os.WriteFile(outputPath, tone, 0o644); err != nil {
		log.Fatalf("failed to write tone file: %v", err)
	}

	log.Printf("wrote fallback tone to %s (%d bytes)", outputPath, len(tone))
}
