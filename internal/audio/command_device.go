package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultChunkBytes   = 4096
	defaultStartTimeout = 2 * time.Second
	stderrTailBytes     = 512
)

// CommandDevice captures through an external recorder (arecord, sox, ffmpeg) that
// writes the encoded stream to stdout. Open starts the process and Stop interrupts it
// so it can flush its last buffer.
type CommandDevice struct {
	Command    []string
	SampleRate int
	Channels   int
	ChunkBytes int
	// StartTimeout bounds the wait for the first output; a recorder still silent
	// after it is assumed to be recording.
	StartTimeout time.Duration
}

// Open starts the recorder and waits for its first output or its exit, whichever
// comes first. A recorder that cannot start, or that exits before producing any
// output, yields *PermissionError carrying the exit error and the tail of stderr.
func (d *CommandDevice) Open(ctx context.Context) (Stream, error) {
	if len(d.Command) == 0 {
		return nil, &PermissionError{Err: errors.New("no capture command configured")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.SampleRate <= 0 || d.Channels <= 0 {
		return nil, fmt.Errorf("invalid capture format: rate=%d channels=%d", d.SampleRate, d.Channels)
	}

	chunkBytes := d.ChunkBytes
	if chunkBytes <= 0 {
		chunkBytes = defaultChunkBytes
	}
	startTimeout := d.StartTimeout
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}

	// not CommandContext: the recorder outlives the request that started it
	cmd := exec.Command(d.Command[0], d.Command[1:]...)
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = io.MultiWriter(os.Stderr, stderr)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &PermissionError{Device: d.Command[0], Err: err}
	}

	s := &commandStream{
		cmd:        cmd,
		stdout:     stdout,
		sampleRate: d.SampleRate,
		channels:   d.Channels,
		events:     make(chan Event, 16),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.readLoop(chunkBytes)

	timer := time.NewTimer(startTimeout)
	defer timer.Stop()

	select {
	case <-s.ready:
	case <-s.done:
		select {
		case <-s.ready:
		default:
			// exited before producing any output
			return nil, &PermissionError{Device: d.Command[0], Err: startError(s.waitErr, stderr.String())}
		}
	case <-timer.C:
		log.Printf("[capture] recorder produced no output within %s, assuming it is recording", startTimeout)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	log.Printf("[capture] recorder started pid=%d cmd=%q", cmd.Process.Pid, d.Command)
	return s, nil
}

func startError(waitErr error, stderr string) error {
	if waitErr == nil {
		waitErr = errors.New("recorder exited before producing audio")
	}
	if tail := strings.TrimSpace(stderr); tail != "" {
		return fmt.Errorf("%w: %s", waitErr, tail)
	}
	return waitErr
}

type commandStream struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	sampleRate int
	channels   int
	events     chan Event
	ready      chan struct{}
	readyOnce  sync.Once
	done       chan struct{}
	waitErr    error // valid once done is closed
	stopped    atomic.Bool
	closeOnce  sync.Once
}

func (s *commandStream) SampleRate() int      { return s.sampleRate }
func (s *commandStream) Channels() int        { return s.channels }
func (s *commandStream) Events() <-chan Event { return s.events }

func (s *commandStream) readLoop(chunkBytes int) {
	defer close(s.done)
	defer close(s.events)

	buf := make([]byte, chunkBytes)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			s.readyOnce.Do(func() { close(s.ready) })
			s.events <- Event{Type: EventChunk, Data: append([]byte(nil), buf[:n]...)}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.events <- Event{Type: EventError, Err: fmt.Errorf("read recorder output: %w", err)}
			}
			break
		}
	}

	s.waitErr = s.cmd.Wait()
	if s.waitErr != nil && !s.stopped.Load() {
		s.events <- Event{Type: EventError, Err: fmt.Errorf("recorder exited: %w", s.waitErr)}
	}
	s.events <- Event{Type: EventStopped}
}

// Stop interrupts the recorder, which exits after flushing what it buffered.
func (s *commandStream) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to interrupt recorder: %w", err)
	}
	return nil
}

// Close kills the recorder if it is still running and waits for the reader to finish.
// Any undelivered events are drained.
func (s *commandStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
		select {
		case <-s.done:
			return
		default:
		}
		if killErr := s.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = fmt.Errorf("failed to kill recorder: %w", killErr)
		}
		for range s.events {
		}
		<-s.done
	})
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
