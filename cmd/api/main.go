package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/voice-relay/internal/audio"
	"github.com/zhouzirui/voice-relay/internal/config"
	"github.com/zhouzirui/voice-relay/internal/handler"
	"github.com/zhouzirui/voice-relay/internal/logger"
	"github.com/zhouzirui/voice-relay/internal/metrics"
	agentservice "github.com/zhouzirui/voice-relay/internal/service/agent"
	"github.com/zhouzirui/voice-relay/internal/service/dialogue"
	"github.com/zhouzirui/voice-relay/internal/service/session"
	"github.com/zhouzirui/voice-relay/internal/service/synth"
	"github.com/zhouzirui/voice-relay/internal/service/transcribe"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New()

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	processor := audio.NewProcessor(cfg.Media.FFmpegPath)
	if processor.Available() {
		log.WithField("ffmpeg", cfg.Media.FFmpegPath).Info("local audio processing enabled")
	} else {
		log.Warn("ffmpeg not found; audio passes through unnormalized and replies are not stitched")
	}

	store, err := audio.NewStore(cfg.Media.StaticDir)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare static audio directory")
	}

	var transcriber agentservice.Transcriber
	if cfg.Speech.TranscribeKey != "" {
		transcriber = transcribe.NewClient(cfg.Speech.TranscribeKey, cfg.Speech.Timeout)
		log.Info("transcription service initialized")
	} else {
		log.Warn("transcription credential missing; transcripts degrade to the placeholder")
	}

	var dialogueSvc agentservice.Dialogue
	if cfg.AI.Enabled() {
		svc, err := dialogue.NewService(ctx, cfg.AI)
		if err != nil {
			log.WithError(err).Warn("failed to initialize dialogue service; replies degrade to the apology")
		} else {
			dialogueSvc = svc
			log.Info("dialogue service initialized")
		}
	} else {
		log.Warn("model credential missing; replies degrade to the apology")
	}

	var synthesizer agentservice.Synthesizer
	if cfg.Speech.SynthKey != "" {
		synthesizer = synth.NewClient(synth.Config{
			APIKey:       cfg.Speech.SynthKey,
			DefaultVoice: cfg.Speech.SynthVoice,
			Timeout:      cfg.Speech.Timeout,
		}, processor, store, m, log)
		log.Info("synthesis service initialized")
	} else {
		log.Warn("synthesis credential missing; replies degrade to the fallback tone")
	}

	agentSvc := agentservice.NewService(
		session.NewMemoryStore(),
		transcriber,
		dialogueSvc,
		synthesizer,
		processor,
		store,
		m,
		log,
	)

	router := handler.NewRouter(agentSvc, cfg.Media.StaticDir, log)

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logrus.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", serverCfg.Addr).Info("voice relay listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
