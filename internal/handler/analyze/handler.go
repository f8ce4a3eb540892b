package analyze

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodmic/backend/internal/analysis/emotion"
	"github.com/zhouzirui/moodmic/backend/internal/audio"
	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
	"github.com/zhouzirui/moodmic/backend/pkg/utils"
)

const maxUploadBytes = 32 << 20

// loudLevel 中性语句的 RMS 超过该值时视为激动
const loudLevel = 0.3

// Classifier 根据转写文本识别情绪
type Classifier interface {
	Classify(ctx context.Context, transcription string) emotion.Decision
}

// Responder 生成回复文本
type Responder interface {
	Generate(ctx context.Context, transcription string, decision emotion.Decision) string
}

// Handler 本地分析服务的处理器，模拟远端的 /analyze_audio 接口
type Handler struct {
	classifier Classifier
	responder  Responder
	transcript string
}

// New 创建分析处理器。transcript 非空时作为默认转写文本。
func New(classifier Classifier, responder Responder, transcript string) *Handler {
	return &Handler{classifier: classifier, responder: responder, transcript: strings.TrimSpace(transcript)}
}

// RegisterRoutes 注册分析路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze_audio", h.handleAnalyze)
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	clip, err := inspect(data)
	if err != nil {
		log.Printf("[analyze] rejected %s (%d bytes): %v", header.Filename, len(data), err)
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	transcription := strings.TrimSpace(r.FormValue("transcript"))
	if transcription == "" {
		transcription = h.transcript
	}
	if transcription == "" {
		transcription = fmt.Sprintf("I recorded %.1f seconds of audio.", clip.seconds)
	}

	decision := h.classifier.Classify(r.Context(), transcription)
	if decision.Emotion == emotion.Neutral && clip.level >= loudLevel {
		decision = emotion.Decision{Emotion: emotion.Excited, Scale: 4}
	}

	response := h.responder.Generate(r.Context(), transcription, decision)

	log.Printf("[analyze] %s: %.2fs rate=%d channels=%d level=%.3f emotion=%s",
		header.Filename, clip.seconds, clip.sampleRate, clip.channels, clip.level, decision.Emotion)

	utils.RespondJSON(w, http.StatusOK, chat.AnalysisResult{
		Transcription:  transcription,
		Emotion:        string(decision.Emotion),
		GeminiResponse: response,
	})
}

type clipInfo struct {
	sampleRate int
	channels   int
	seconds    float64
	level      float64
}

// inspect 校验 16 位 PCM WAV 上传文件并计算其 RMS
func inspect(data []byte) (clipInfo, error) {
	header, _, err := audio.ParseWAV(data)
	if err != nil {
		return clipInfo{}, fmt.Errorf("invalid wav: %w", err)
	}

	pcm, err := audio.WAVDecoder{}.Decode(data, int(header.SampleRate), int(header.NumChannels))
	if err != nil {
		return clipInfo{}, err
	}

	var sum float64
	var count int
	for ch := 0; ch < pcm.NumChannels(); ch++ {
		for _, s := range pcm.Channel(ch) {
			sum += float64(s) * float64(s)
			count++
		}
	}

	return clipInfo{
		sampleRate: pcm.SampleRate(),
		channels:   pcm.NumChannels(),
		seconds:    pcm.Duration().Seconds(),
		level:      math.Sqrt(sum / float64(count)),
	}, nil
}
