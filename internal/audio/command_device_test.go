package audio

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandDeviceRecorderExitIsPermissionError(t *testing.T) {
	requireShell(t)
	device := &CommandDevice{
		Command:    []string{"sh", "-c", "echo 'audio open error: Permission denied' >&2; exit 1"},
		SampleRate: 16000,
		Channels:   1,
	}

	stream, err := device.Open(context.Background())
	if stream != nil {
		stream.Close()
		t.Fatal("expected no stream")
	}
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected *PermissionError, got %v", err)
	}
	if permErr.Device != "sh" {
		t.Errorf("device: got %q", permErr.Device)
	}
	if !strings.Contains(err.Error(), "Permission denied") {
		t.Errorf("expected recorder stderr in error, got %q", err.Error())
	}
}

func TestControllerStaysIdleWhenRecorderExits(t *testing.T) {
	requireShell(t)
	device := &CommandDevice{
		Command:    []string{"sh", "-c", "exit 1"},
		SampleRate: 16000,
		Channels:   1,
	}
	c := NewController(device, RawPCMDecoder{})

	err := c.Start(context.Background())
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected *PermissionError, got %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
}

func TestCommandDeviceStreamsOutputUntilStopped(t *testing.T) {
	requireShell(t)
	device := &CommandDevice{
		Command:    []string{"sh", "-c", "printf abcd; exec sleep 5"},
		SampleRate: 16000,
		Channels:   1,
	}
	c := NewController(device, RawPCMDecoder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.State() != StateRecording {
		t.Fatalf("expected recording, got %s", c.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pcm, err := c.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if pcm == nil || pcm.Len() != 2 {
		t.Fatalf("expected 2 frames from 4 bytes, got %v", pcm)
	}
}

func TestCommandDeviceShortRecordingIsNotAnError(t *testing.T) {
	requireShell(t)
	device := &CommandDevice{
		Command:    []string{"sh", "-c", "printf abcd"},
		SampleRate: 16000,
		Channels:   1,
	}

	stream, err := device.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	var data []byte
	for ev := range stream.Events() {
		switch ev.Type {
		case EventChunk:
			data = append(data, ev.Data...)
		case EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if string(data) != "abcd" {
		t.Fatalf("got %q want %q", data, "abcd")
	}
}

func TestCommandDeviceSilentRecorderStartsAfterTimeout(t *testing.T) {
	requireShell(t)
	device := &CommandDevice{
		Command:      []string{"sh", "-c", "exec sleep 5"},
		SampleRate:   16000,
		Channels:     1,
		StartTimeout: 50 * time.Millisecond,
	}

	stream, err := device.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tail := &tailBuffer{limit: 4}
	tail.Write([]byte("abc"))
	tail.Write([]byte("defg"))
	if got := tail.String(); got != "defg" {
		t.Fatalf("got %q want %q", got, "defg")
	}
}
