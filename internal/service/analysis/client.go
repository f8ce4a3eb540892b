package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"

	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
)

const (
	// FieldName is the multipart field that carries the audio file.
	FieldName = "file"
	// Filename is the name sent with every submission, captured or uploaded.
	Filename = "recording.wav"

	maxErrorBody = 64 << 10
)

// ErrEmptyAudio is returned when Analyze is called with no bytes.
var ErrEmptyAudio = errors.New("no audio data received")

// HTTPError reports a non-2xx response from the analysis service.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("failed to process audio: %d %s", e.StatusCode, e.Status)
}

// Config contains analysis client configuration.
type Config struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
}

// Client submits WAV audio to the remote analysis service.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a client. Without an explicit HTTPClient it uses one with a
// cookie jar and no timeout: requests run until the caller's context ends.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

// Analyze posts wav as a multipart form and returns the validated result.
// Non-2xx responses yield *HTTPError, malformed bodies *ValidationError.
func (c *Client) Analyze(ctx context.Context, wav []byte) (*chat.AnalysisResult, error) {
	if len(wav) == 0 {
		return nil, ErrEmptyAudio
	}

	body, contentType, err := createMultipartBody(wav)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Printf("[analysis] submitting %d bytes to %s", len(wav), c.endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Printf("[analysis] server error %d: %s", resp.StatusCode, errBody)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(errBody),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return DecodeResult(respBody)
}

func createMultipartBody(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldName, Filename))
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
