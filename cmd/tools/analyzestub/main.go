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

	"github.com/cloudwego/eino/components/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/moodmic/backend/internal/config"
	"github.com/zhouzirui/moodmic/backend/internal/handler/analyze"
	emotionService "github.com/zhouzirui/moodmic/backend/internal/service/emotion"
	"github.com/zhouzirui/moodmic/backend/internal/service/reply"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var chatModel model.ChatModel
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to create chat model: %v", err)
			log.Println("continuing with canned replies - 请检查 Ark 模型相关环境变量")
			chatModel = nil
		} else {
			log.Printf("Ark chat model %s initialized", cfg.AI.Model)
		}
	} else {
		log.Println("Ark 凭证未配置，使用关键词情绪识别与固定回复")
	}

	classifier, err := emotionService.NewService(ctx, chatModel, emotionService.Config{Enabled: cfg.AI.EmotionLLMEnabled})
	if err != nil {
		log.Fatalf("failed to initialize emotion service: %v", err)
	}
	if classifier.Enabled() {
		log.Println("Emotion classifier service enabled")
	}

	responder, err := reply.NewService(ctx, chatModel)
	if err != nil {
		log.Fatalf("failed to initialize reply service: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	analyze.New(classifier, responder, cfg.Stub.Transcript).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Stub.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("analysis stub listening on %s (POST /analyze_audio)", cfg.Stub.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}
}
