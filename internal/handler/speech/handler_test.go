package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodmic/backend/internal/audio"
	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
	"github.com/zhouzirui/moodmic/backend/internal/service/analysis"
	"github.com/zhouzirui/moodmic/backend/internal/service/pipeline"
)

type fakePipeline struct {
	startErr   error
	stopMsg    *chat.Message
	stopErr    error
	uploadName string
	uploadMIME string
	uploadData []byte
	uploadErr  error
}

func (f *fakePipeline) StartRecording(context.Context) error { return f.startErr }

func (f *fakePipeline) StopAndSubmit(context.Context) (*chat.Message, error) {
	return f.stopMsg, f.stopErr
}

func (f *fakePipeline) SubmitUpload(_ context.Context, filename, mimeType string, data []byte) (*chat.Message, error) {
	f.uploadName, f.uploadMIME, f.uploadData = filename, mimeType, data
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &chat.Message{ID: "m1", Transcription: "uploaded"}, nil
}

func (f *fakePipeline) Status() pipeline.Status {
	return pipeline.Status{Recording: "recording"}
}

func setupRouter(p Pipeline) *chi.Mux {
	r := chi.NewRouter()
	New(p).RegisterRoutes(r)
	return r
}

func uploadRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="clip.wav"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart err: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadPassesFileThrough(t *testing.T) {
	fake := &fakePipeline{}
	r := setupRouter(fake)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "audio/wav", []byte("RIFFdata")))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if fake.uploadName != "clip.wav" || fake.uploadMIME != "audio/wav" || string(fake.uploadData) != "RIFFdata" {
		t.Fatalf("unexpected upload: %q %q %q", fake.uploadName, fake.uploadMIME, fake.uploadData)
	}
}

func TestUploadWrongTypeReturns415(t *testing.T) {
	fake := &fakePipeline{uploadErr: &pipeline.FileTypeError{Filename: "clip.wav", MIMEType: "audio/plain"}}
	r := setupRouter(fake)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "audio/plain", []byte("x")))

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.Code)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "Please upload a WAV file only." {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestUploadMissingFile(t *testing.T) {
	r := setupRouter(&fakePipeline{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("other", "value")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStopReturnsMessage(t *testing.T) {
	fake := &fakePipeline{stopMsg: &chat.Message{ID: "m1", Transcription: "hi", Response: "hello"}}
	r := setupRouter(fake)

	req := httptest.NewRequest(http.MethodPost, "/recording/stop", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got map[string]any
	json.NewDecoder(resp.Body).Decode(&got)
	if got["gemini_response"] != "hello" {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestStartAndStopErrors(t *testing.T) {
	cases := []struct {
		name   string
		fake   *fakePipeline
		path   string
		status int
	}{
		{"busy", &fakePipeline{startErr: pipeline.ErrBusy}, "/recording/start", http.StatusConflict},
		{"permission", &fakePipeline{startErr: &audio.PermissionError{Err: errors.New("denied")}}, "/recording/start", http.StatusForbidden},
		{"capture", &fakePipeline{stopErr: &pipeline.CaptureError{Err: errors.New("empty")}}, "/recording/stop", http.StatusUnprocessableEntity},
		{"upstream", &fakePipeline{stopErr: &analysis.HTTPError{StatusCode: 500, Status: "Internal Server Error"}}, "/recording/stop", http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(tc.fake)
			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestStateReturnsStatus(t *testing.T) {
	r := setupRouter(&fakePipeline{})

	req := httptest.NewRequest(http.MethodGet, "/recording/state", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var status pipeline.Status
	json.NewDecoder(resp.Body).Decode(&status)
	if status.Recording != "recording" {
		t.Fatalf("unexpected status %+v", status)
	}
}
