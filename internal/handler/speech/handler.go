package speech

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodmic/backend/internal/audio"
	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
	"github.com/zhouzirui/moodmic/backend/internal/service/analysis"
	"github.com/zhouzirui/moodmic/backend/internal/service/pipeline"
	"github.com/zhouzirui/moodmic/backend/pkg/utils"
)

const maxUploadBytes = 32 << 20

// Pipeline 抽象录音与提交流程，便于测试与替换实现
type Pipeline interface {
	StartRecording(ctx context.Context) error
	StopAndSubmit(ctx context.Context) (*chat.Message, error)
	SubmitUpload(ctx context.Context, filename, mimeType string, data []byte) (*chat.Message, error)
	Status() pipeline.Status
}

// Handler 录音与上传的HTTP处理器
type Handler struct {
	pipeline Pipeline
}

// New 创建语音处理器
func New(p Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// RegisterRoutes 注册录音与上传路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/recording", func(rec chi.Router) {
		rec.Post("/start", h.handleStart)
		rec.Post("/stop", h.handleStop)
		rec.Get("/state", h.handleState)
	})
	r.Post("/upload", h.handleUpload)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.StartRecording(r.Context()); err != nil {
		h.respondPipelineError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, h.pipeline.Status())
}

// handleStop 停止录音并等待分析结果
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	msg, err := h.pipeline.StopAndSubmit(r.Context())
	if err != nil {
		h.respondPipelineError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleState(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.pipeline.Status())
}

// handleUpload 直接提交用户上传的 WAV 文件
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile(analysis.FieldName)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	msg, err := h.pipeline.SubmitUpload(r.Context(), header.Filename, mimeType, data)
	if err != nil {
		h.respondPipelineError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, msg)
}

func (h *Handler) respondPipelineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[speech] pipeline error: %v", err)
	}
	utils.RespondError(w, status, pipeline.UserMessage(err))
}

// StatusFor 把流水线错误映射为 HTTP 状态码
func StatusFor(err error) int {
	var (
		permErr       *audio.PermissionError
		fileTypeErr   *pipeline.FileTypeError
		captureErr    *pipeline.CaptureError
		httpErr       *analysis.HTTPError
		validationErr *analysis.ValidationError
	)
	switch {
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, audio.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &fileTypeErr):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &permErr):
		return http.StatusForbidden
	case errors.As(err, &captureErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &httpErr), errors.As(err, &validationErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
