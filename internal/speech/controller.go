// Package speech turns a listening session into a transcript. The Controller
// owns the Idle/Listening state; engines do the actual recognition.
package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	apierrors "github.com/diogo/checkin/internal/errors"
)

// State is the capture state
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	default:
		return "idle"
	}
}

// Result is one recognition update. Interim results replace each other until
// a final result commits the segment.
type Result struct {
	Text  string
	Final bool
}

// Engine is a speech recognition backend
type Engine interface {
	// Available reports whether the engine can capture at all
	Available() bool
	// Start begins continuous recognition, reporting through onResult
	// until Stop. onResult may be called from any goroutine.
	Start(ctx context.Context, onResult func(Result)) error
	// Stop ends recognition. Pending finals are delivered before it returns.
	Stop() error
}

// Controller accumulates a transcript across one listening session
type Controller struct {
	engine Engine
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	stopping bool
	session  uint64
	finals   []string
	interim  string
	cancel   context.CancelFunc
	onUpdate func(string)
}

// NewController creates a Controller. A nil engine makes every Start fail
// with ErrCaptureUnavailable.
func NewController(engine Engine, logger zerolog.Logger) *Controller {
	return &Controller{
		engine: engine,
		logger: logger.With().Str("component", "speech").Logger(),
	}
}

// OnUpdate registers a callback that receives the live transcript after each
// recognition update. It runs on the engine's goroutine.
func (c *Controller) OnUpdate(fn func(transcript string)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Available reports whether Start can succeed
func (c *Controller) Available() bool {
	return c.engine != nil && c.engine.Available()
}

// Start begins listening. Capture continues until Stop.
func (c *Controller) Start() error {
	if !c.Available() {
		return apierrors.ErrCaptureUnavailable
	}

	c.mu.Lock()
	if c.state == Listening {
		c.mu.Unlock()
		return apierrors.ErrAlreadyListening
	}
	c.state = Listening
	c.session++
	session := c.session
	c.finals = nil
	c.interim = ""
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.engine.Start(ctx, func(r Result) { c.handle(session, r) }); err != nil {
		cancel()
		c.mu.Lock()
		if c.session == session {
			c.state = Idle
			c.cancel = nil
		}
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("engine failed to start")
		return fmt.Errorf("%w: %w", apierrors.ErrCaptureUnavailable, err)
	}

	c.logger.Debug().Msg("listening")
	return nil
}

// Stop ends listening and returns the trimmed transcript. The buffer is
// cleared whatever the outcome.
func (c *Controller) Stop() (string, error) {
	c.mu.Lock()
	if c.state != Listening || c.stopping {
		c.mu.Unlock()
		return "", apierrors.ErrNotListening
	}
	c.stopping = true
	c.mu.Unlock()

	if err := c.engine.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("engine stop failed")
	}

	c.mu.Lock()
	transcript := c.transcriptLocked()
	c.state = Idle
	c.stopping = false
	c.session++
	c.finals = nil
	c.interim = ""
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.logger.Debug().Int("chars", len(transcript)).Msg("stopped listening")
	return transcript, nil
}

// Transcript returns the live transcript: committed finals plus the current
// interim. Empty while Idle.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Listening {
		return ""
	}
	return c.transcriptLocked()
}

// State returns the capture state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) handle(session uint64, r Result) {
	c.mu.Lock()
	if c.session != session || c.state != Listening {
		c.mu.Unlock()
		return
	}
	text := strings.TrimSpace(r.Text)
	if r.Final {
		if text != "" {
			c.finals = append(c.finals, text)
		}
		c.interim = ""
	} else {
		c.interim = text
	}
	live := c.transcriptLocked()
	fn := c.onUpdate
	c.mu.Unlock()

	if fn != nil {
		fn(live)
	}
}

func (c *Controller) transcriptLocked() string {
	parts := c.finals
	if c.interim != "" {
		parts = append(append([]string(nil), c.finals...), c.interim)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
