package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
)

// ValidationError reports a response that does not match the expected schema.
type ValidationError struct {
	Missing []string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid response format from server: %v", e.Err)
	}
	return fmt.Sprintf("invalid response format from server: missing %s", strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var errNotObject = errors.New("response is not a JSON object")

// DecodeResult parses and validates a service response. All three fields must be
// present, strings, and non-empty.
func DecodeResult(body []byte) (*chat.AnalysisResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if raw == nil {
		return nil, &ValidationError{Err: errNotObject}
	}

	var (
		result  chat.AnalysisResult
		missing []string
	)
	fields := []struct {
		name string
		dst  *string
	}{
		{"transcription", &result.Transcription},
		{"emotion", &result.Emotion},
		{"gemini_response", &result.GeminiResponse},
	}
	for _, f := range fields {
		value, ok := raw[f.name]
		if !ok {
			missing = append(missing, f.name)
			continue
		}
		if err := json.Unmarshal(value, f.dst); err != nil || *f.dst == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}
	return &result, nil
}
