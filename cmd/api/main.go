package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zhouzirui/moodmic/backend/internal/audio"
	"github.com/zhouzirui/moodmic/backend/internal/config"
	"github.com/zhouzirui/moodmic/backend/internal/handler"
	"github.com/zhouzirui/moodmic/backend/internal/metrics"
	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
	"github.com/zhouzirui/moodmic/backend/internal/service/analysis"
	chatService "github.com/zhouzirui/moodmic/backend/internal/service/chat"
	"github.com/zhouzirui/moodmic/backend/internal/service/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	client, err := analysis.NewClient(analysis.Config{
		Endpoint: cfg.Analysis.URL,
		Token:    cfg.Analysis.Token,
	})
	if err != nil {
		log.Fatalf("failed to create analysis client: %v", err)
	}
	log.Printf("analysis service endpoint: %s", cfg.Analysis.URL)

	store := chatService.NewStore()
	store.Subscribe(func(s chat.Snapshot) {
		m.SetHistories(len(s.Histories))
	})

	recorder := audio.NewController(cfg.Capture.NewDevice(), cfg.Capture.NewDecoder())
	log.Printf("capture command: %v (%d Hz, %d ch, %s), wav mode %s",
		cfg.Capture.Command, cfg.Capture.SampleRate, cfg.Capture.Channels, cfg.Capture.Format, cfg.Capture.WAVChannelMode)

	orchestrator := pipeline.NewOrchestrator(recorder, client, store, pipeline.Options{
		WAVChannels: cfg.Capture.WAVChannels(),
		Metrics:     m,
	})

	router := handler.NewRouter(store, orchestrator, registry)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("MoodMic backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
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
