// Package conversation holds the check-in transcript and drives one turn at
// a time: user message, backend request, assistant reply or fallback.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/diogo/checkin/internal/api"
	apierrors "github.com/diogo/checkin/internal/errors"
	"github.com/diogo/checkin/internal/models"
)

// Transport sends one check-in
type Transport interface {
	CheckIn(ctx context.Context, creds api.Credentials, message string) (*models.CheckInResponse, error)
}

// Player starts audio playback and returns immediately
type Player interface {
	Play(payload string)
}

// Recorder persists messages as they are appended
type Recorder interface {
	Record(msg models.Message) error
}

// Core is the conversation state machine. Only one check-in is in flight at a
// time; the message sequence is append-only.
type Core struct {
	transport Transport
	creds     api.Credentials
	player    Player
	recorder  Recorder
	timeout   time.Duration
	logger    zerolog.Logger
	onChange  func()

	mu         sync.Mutex
	messages   []models.Message
	processing bool
	cancel     context.CancelFunc
}

// Option configures a Core
type Option func(*Core)

// WithPlayer plays reply audio
func WithPlayer(p Player) Option {
	return func(c *Core) {
		c.player = p
	}
}

// WithRecorder records every appended message
func WithRecorder(r Recorder) Option {
	return func(c *Core) {
		c.recorder = r
	}
}

// WithTimeout bounds each check-in request. Zero means no deadline beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Core) {
		c.timeout = d
	}
}

// WithOnChange registers a callback invoked after every state change. It
// runs on the submitting goroutine.
func WithOnChange(fn func()) Option {
	return func(c *Core) {
		c.onChange = fn
	}
}

// New creates a Core. creds is read each time a request is built.
func New(transport Transport, creds api.Credentials, logger zerolog.Logger, opts ...Option) *Core {
	c := &Core{
		transport: transport,
		creds:     creds,
		logger:    logger.With().Str("component", "conversation").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit runs one check-in turn for transcript. It returns ErrEmptyTranscript
// or ErrBusy when the turn is rejected without any change. Backend failures
// are absorbed into a fallback reply and Submit returns nil.
func (c *Core) Submit(ctx context.Context, transcript string) error {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return apierrors.ErrEmptyTranscript
	}

	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return apierrors.ErrBusy
	}
	user := models.UserMessage(text)
	c.messages = append(c.messages, user)
	c.processing = true

	reqCtx, cancel := c.requestContext(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.record(user)
	c.notify()

	start := time.Now()
	resp, err := c.transport.CheckIn(reqCtx, c.creds, text)
	if err == nil && resp == nil {
		err = apierrors.NewParseError("empty check-in response", "")
	}

	var reply models.Message
	if err != nil {
		reply = models.FallbackMessage()
		c.logger.Error().
			Err(fmt.Errorf("%w: %w", apierrors.ErrCheckInFailed, err)).
			Bool("timeout", apierrors.IsTimeout(err)).
			Int("status", apierrors.StatusCode(err)).
			Dur("elapsed", time.Since(start)).
			Msg("check-in failed")
	} else {
		reply = models.AssistantMessage(resp)
		ev := c.logger.Info().
			Dur("elapsed", time.Since(start)).
			Bool("audio", reply.HasAudio())
		if reply.MoodScore != nil {
			ev = ev.Float64("mood_score", *reply.MoodScore)
		}
		ev.Msg("check-in complete")
	}

	c.mu.Lock()
	c.messages = append(c.messages, reply)
	c.processing = false
	c.cancel = nil
	c.mu.Unlock()

	c.record(reply)
	if reply.HasAudio() && c.player != nil {
		c.player.Play(reply.Audio)
	}
	c.notify()
	return nil
}

func (c *Core) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Cancel aborts the in-flight check-in, which then completes with the
// fallback reply. It reports whether a request was in flight.
func (c *Core) Cancel() bool {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	c.logger.Info().Msg("check-in cancelled")
	return true
}

// Messages returns a copy of the conversation
func (c *Core) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages
func (c *Core) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Processing reports whether a check-in is in flight
func (c *Core) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// LastAssistant returns the most recent assistant message
func (c *Core) LastAssistant() (models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == models.RoleAssistant {
			return c.messages[i], true
		}
	}
	return models.Message{}, false
}

func (c *Core) record(msg models.Message) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(msg); err != nil {
		c.logger.Warn().Err(err).Msg("failed to record message")
	}
}

func (c *Core) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
