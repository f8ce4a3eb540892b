package pipeline

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/moodmic/backend/internal/audio"
	"github.com/zhouzirui/moodmic/backend/internal/service/analysis"
)

// ErrBusy 上一次提交尚未完成
var ErrBusy = errors.New("a submission is already in progress")

// RequiredMIME 唯一接受的上传类型
const RequiredMIME = "audio/wav"

// CaptureError 录音结束但没有可用的音频
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed: %v", e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// FileTypeError 上传文件的 MIME 类型不是 audio/wav
type FileTypeError struct {
	Filename string
	MIMEType string
}

func (e *FileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %q for %q: want %s", e.MIMEType, e.Filename, RequiredMIME)
}

var errNoAudio = errors.New("recording produced no audio")

// UserMessage 把流水线的任意错误转换为展示给用户的一句提示
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		permErr       *audio.PermissionError
		fileTypeErr   *FileTypeError
		captureErr    *CaptureError
		httpErr       *analysis.HTTPError
		validationErr *analysis.ValidationError
	)
	switch {
	case errors.Is(err, ErrBusy):
		return "Still processing the previous recording. Please wait."
	case errors.As(err, &fileTypeErr):
		return "Please upload a WAV file only."
	case errors.As(err, &permErr):
		return "Failed to start recording. Please check your microphone permissions."
	case errors.Is(err, analysis.ErrEmptyAudio):
		return "No audio data received"
	case errors.As(err, &captureErr):
		return "Failed to capture audio. Please try again."
	case errors.As(err, &httpErr):
		return fmt.Sprintf("Failed to process audio: %d %s", httpErr.StatusCode, httpErr.Status)
	case errors.As(err, &validationErr):
		return "Invalid response format from server"
	case errors.Is(err, audio.ErrInvalidTransition):
		return "An error occurred with the microphone. Please try again."
	default:
		return "Failed to process the audio. Please try again."
	}
}
