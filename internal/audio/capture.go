package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// State is the capture controller's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when Start or Stop is called from a state that
// does not allow it.
var ErrInvalidTransition = errors.New("invalid capture state transition")

// Controller records one session at a time from a Device.
//
// Idle -(Start)-> Recording -(Stop)-> Finalizing -(decoded)-> Idle
//
// Device events for a session are consumed by a single goroutine, so chunks are kept
// in capture order. The stream is released on every path out of Finalizing.
type Controller struct {
	device  Device
	decoder Decoder

	mu      sync.Mutex
	state   State
	opening bool
	session *recordingSession
}

type recordingSession struct {
	stream     Stream
	sampleRate int
	channels   int
	startedAt  time.Time
	chunks     [][]byte
	done       chan struct{}
}

// NewController creates a controller that captures from device and decodes with decoder.
func NewController(device Device, decoder Decoder) *Controller {
	return &Controller{device: device, decoder: decoder}
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the device and begins a new recording session. It is only valid
// while Idle; otherwise it fails immediately with ErrInvalidTransition. A device that
// cannot be opened yields *PermissionError and the controller stays Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.opening {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("start while %s: %w", state, ErrInvalidTransition)
	}
	c.opening = true
	c.mu.Unlock()

	stream, err := c.device.Open(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false

	if err != nil {
		var permErr *PermissionError
		if errors.As(err, &permErr) {
			return err
		}
		return &PermissionError{Err: err}
	}

	session := &recordingSession{
		stream:     stream,
		sampleRate: stream.SampleRate(),
		channels:   stream.Channels(),
		startedAt:  time.Now(),
		done:       make(chan struct{}),
	}
	c.session = session
	c.state = StateRecording
	go c.consume(session)

	log.Printf("[capture] recording started rate=%d channels=%d", session.sampleRate, session.channels)
	return nil
}

// consume drains the stream's events until the device reports it has stopped.
func (c *Controller) consume(session *recordingSession) {
	defer close(session.done)

	for ev := range session.stream.Events() {
		switch ev.Type {
		case EventChunk:
			if len(ev.Data) == 0 {
				continue
			}
			c.mu.Lock()
			if c.session == session && (c.state == StateRecording || c.state == StateFinalizing) {
				session.chunks = append(session.chunks, ev.Data)
			}
			c.mu.Unlock()
		case EventError:
			log.Printf("[capture] device error: %v", ev.Err)
		case EventStopped:
			log.Printf("[capture] device stopped after %s", time.Since(session.startedAt).Round(time.Millisecond))
		}
	}
}

// Stop ends the current recording and returns its decoded PCM.
//
// Stop while Idle is a no-op returning (nil, nil). A recording with no captured
// chunks, or one that fails to decode, also yields (nil, nil); decode failures are
// logged rather than returned. Stop while another Stop is finalizing returns
// ErrInvalidTransition. The controller is back in Idle when Stop returns.
func (c *Controller) Stop(ctx context.Context) (*PCMBuffer, error) {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return nil, nil
	case StateFinalizing:
		c.mu.Unlock()
		return nil, fmt.Errorf("stop while %s: %w", StateFinalizing, ErrInvalidTransition)
	}
	session := c.session
	c.state = StateFinalizing
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.session = nil
		c.state = StateIdle
		c.mu.Unlock()
	}()

	return c.finalize(ctx, session)
}

func (c *Controller) finalize(ctx context.Context, session *recordingSession) (*PCMBuffer, error) {
	release := sync.OnceFunc(func() {
		if err := session.stream.Close(); err != nil {
			log.Printf("[capture] failed to release stream: %v", err)
		}
	})
	defer release()

	if err := session.stream.Stop(); err != nil {
		log.Printf("[capture] failed to stop device: %v", err)
	}

	select {
	case <-session.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release()

	c.mu.Lock()
	chunks := session.chunks
	session.chunks = nil
	c.mu.Unlock()

	if len(chunks) == 0 {
		log.Printf("[capture] recording stopped before any audio was captured")
		return nil, nil
	}

	container := bytes.Join(chunks, nil)
	pcm, err := c.decoder.Decode(container, session.sampleRate, session.channels)
	if err != nil {
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			err = &DecodeError{Format: "container", Err: err}
		}
		log.Printf("[capture] discarding recording (%d bytes): %v", len(container), err)
		return nil, nil
	}

	log.Printf("[capture] decoded %d frames (%s) from %d chunks", pcm.Len(), pcm.Duration().Round(time.Millisecond), len(chunks))
	return pcm, nil
}
