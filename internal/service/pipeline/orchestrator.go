package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/moodmic/backend/internal/audio"
	"github.com/zhouzirui/moodmic/backend/internal/metrics"
	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
	"github.com/zhouzirui/moodmic/backend/internal/service/analysis"
)

// Recorder 是流水线的录音端
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*audio.PCMBuffer, error)
	State() audio.State
}

// Analyzer 把 WAV 数据提交给分析服务
type Analyzer interface {
	Analyze(ctx context.Context, wav []byte) (*chat.AnalysisResult, error)
}

// SessionStore 接收分析完成的消息
type SessionStore interface {
	AppendMessage(result chat.AnalysisResult) chat.Message
}

// Status 是界面渲染麦克风按钮和错误提示所需的状态
type Status struct {
	Recording string `json:"recording"`
	Busy      bool   `json:"busy"`
	LastError string `json:"lastError,omitempty"`
}

// Options 调整 Orchestrator 的行为
type Options struct {
	// WAVChannels 是写入 WAV 头的声道数。1 为精确的单声道文件，2 复现旧版声明为立体声的布局。
	WAVChannels int
	Metrics     *metrics.Metrics
	// StopTimeout 限制等待录音设备刷出最后一段数据的时间，默认 10 秒。
	StopTimeout time.Duration
}

const defaultStopTimeout = 10 * time.Second

// Orchestrator 串联录音、编码、分析与会话存储，同一时间最多只有一个提交在进行。
//
// 提交一旦开始就会跑到成功或失败为止：调用方的 context 只传递其中的值，不传递取消。
type Orchestrator struct {
	recorder    Recorder
	analyzer    Analyzer
	store       SessionStore
	wavChannels int
	stopTimeout time.Duration
	metrics     *metrics.Metrics

	// gate 让“检查 busy 并开始录音”与“占用 busy”互斥
	gate sync.Mutex
	busy atomic.Bool

	mu      sync.Mutex
	lastErr string
	subs    map[int]func(Status)
	nextSub int
}

// NewOrchestrator 创建流水线
func NewOrchestrator(recorder Recorder, analyzer Analyzer, store SessionStore, opts Options) *Orchestrator {
	channels := opts.WAVChannels
	if channels <= 0 {
		channels = 1
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	return &Orchestrator{
		recorder:    recorder,
		analyzer:    analyzer,
		store:       store,
		wavChannels: channels,
		stopTimeout: stopTimeout,
		metrics:     opts.Metrics,
		subs:        make(map[int]func(Status)),
	}
}

// StartRecording 开始录音。有提交未完成时拒绝。
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.gate.Lock()
	defer o.gate.Unlock()

	if o.busy.Load() {
		return ErrBusy
	}

	if err := o.recorder.Start(ctx); err != nil {
		log.Printf("[pipeline] failed to start recording: %v", err)
		o.fail(err)
		return err
	}

	o.metrics.RecordingStarted()
	o.notify()
	return nil
}

// StopAndSubmit 停止录音，编码为 WAV 后提交，并把结果追加到会话存储。
func (o *Orchestrator) StopAndSubmit(ctx context.Context) (*chat.Message, error) {
	if !o.acquire() {
		return nil, ErrBusy
	}
	defer o.release()
	o.clearError()

	ctx = context.WithoutCancel(ctx)
	stopCtx, cancel := context.WithTimeout(ctx, o.stopTimeout)
	pcm, err := o.recorder.Stop(stopCtx)
	cancel()
	if err != nil {
		log.Printf("[pipeline] failed to stop recording: %v", err)
		o.fail(err)
		return nil, err
	}
	if pcm == nil {
		err := &CaptureError{Err: errNoAudio}
		log.Printf("[pipeline] %v", err)
		o.metrics.CaptureFailed("no_audio")
		o.fail(err)
		return nil, err
	}
	o.metrics.RecordingDecoded(pcm.Duration())

	wav, err := audio.EncodeWAV(pcm.Channel(0), pcm.SampleRate(), o.wavChannels)
	if err != nil {
		err = &CaptureError{Err: fmt.Errorf("encode wav: %w", err)}
		o.metrics.CaptureFailed("encode")
		o.fail(err)
		return nil, err
	}

	return o.submit(ctx, metrics.SourceRecording, wav)
}

// SubmitUpload 原样提交用户上传的文件。最先检查 MIME 类型，类型不对的文件不会发到网络上。
func (o *Orchestrator) SubmitUpload(ctx context.Context, filename, mimeType string, data []byte) (*chat.Message, error) {
	if mimeType != RequiredMIME {
		err := &FileTypeError{Filename: filename, MIMEType: mimeType}
		log.Printf("[pipeline] rejected upload: %v", err)
		o.metrics.SubmissionRejected(metrics.SourceUpload, "file_type")
		o.fail(err)
		return nil, err
	}

	if !o.acquire() {
		return nil, ErrBusy
	}
	defer o.release()
	o.clearError()
	ctx = context.WithoutCancel(ctx)

	if len(data) == 0 {
		err := &CaptureError{Err: analysis.ErrEmptyAudio}
		o.metrics.SubmissionRejected(metrics.SourceUpload, "empty")
		o.fail(err)
		return nil, err
	}

	log.Printf("[pipeline] submitting upload %q (%d bytes)", filename, len(data))
	return o.submit(ctx, metrics.SourceUpload, data)
}

func (o *Orchestrator) submit(ctx context.Context, source string, wav []byte) (*chat.Message, error) {
	o.notify()
	o.metrics.SubmissionStarted(len(wav))
	start := time.Now()

	result, err := o.analyzer.Analyze(ctx, wav)
	if err != nil {
		log.Printf("[pipeline] %s submission failed: %v", source, err)
		o.metrics.SubmissionFinished(source, outcome(err), time.Since(start))
		o.fail(err)
		return nil, err
	}
	o.metrics.SubmissionFinished(source, "ok", time.Since(start))

	msg := o.store.AppendMessage(*result)
	log.Printf("[pipeline] appended message %s emotion=%s", msg.ID, msg.Emotion)
	return &msg, nil
}

// Busy 返回是否有提交未完成
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Status 返回当前流水线状态
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	lastErr := o.lastErr
	o.mu.Unlock()

	return Status{
		Recording: o.recorder.State().String(),
		Busy:      o.busy.Load(),
		LastError: lastErr,
	}
}

// Subscribe 注册状态变化回调，返回的函数用于取消订阅
func (o *Orchestrator) Subscribe(fn func(Status)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) acquire() bool {
	o.gate.Lock()
	defer o.gate.Unlock()
	return o.busy.CompareAndSwap(false, true)
}

func (o *Orchestrator) release() {
	o.busy.Store(false)
	o.notify()
}

func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	o.lastErr = UserMessage(err)
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) clearError() {
	o.mu.Lock()
	o.lastErr = ""
	o.mu.Unlock()
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	fns := make([]func(Status), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	status := o.Status()
	for _, fn := range fns {
		fn(status)
	}
}

func outcome(err error) string {
	var (
		httpErr       *analysis.HTTPError
		validationErr *analysis.ValidationError
	)
	switch {
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.As(err, &validationErr):
		return "invalid_response"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport_error"
	}
}
