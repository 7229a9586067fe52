// Package playback plays the audio attached to assistant replies.
package playback

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog"

	apierrors "github.com/diogo/checkin/internal/errors"
)

// Sink starts playing a 16-bit little-endian stereo PCM stream and returns
// without waiting for it to finish
type Sink interface {
	Start(pcm io.Reader, sampleRate int) error
}

// DecodeFunc turns an encoded payload into PCM and its sample rate
type DecodeFunc func(r io.Reader) (io.Reader, int, error)

// DecodeMP3 decodes MP3 to 16-bit LE stereo PCM
func DecodeMP3(r io.Reader) (io.Reader, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	return dec, dec.SampleRate(), nil
}

// Adapter decodes inline payloads and hands them to a Sink. Each call starts
// a new stream; earlier streams are neither stopped nor mixed deliberately.
type Adapter struct {
	sink   Sink
	decode DecodeFunc
	logger zerolog.Logger

	mu   sync.Mutex
	last string
}

// Option configures an Adapter
type Option func(*Adapter)

// WithDecoder replaces the MP3 decoder
func WithDecoder(fn DecodeFunc) Option {
	return func(a *Adapter) {
		a.decode = fn
	}
}

// New creates an Adapter. A nil sink makes Play a no-op.
func New(sink Sink, logger zerolog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		sink:   sink,
		decode: DecodeMP3,
		logger: logger.With().Str("component", "playback").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether a sink is attached
func (a *Adapter) Enabled() bool {
	return a != nil && a.sink != nil
}

// Play starts playback of a base64 payload. Failures are logged, never
// returned.
func (a *Adapter) Play(payload string) {
	if !a.Enabled() || strings.TrimSpace(payload) == "" {
		return
	}

	a.mu.Lock()
	a.last = payload
	a.mu.Unlock()

	if err := a.start(payload); err != nil {
		a.logger.Warn().Err(err).Int("payload_len", len(payload)).Msg("playback failed")
	}
}

// Replay plays the most recent payload again. It reports false when there is
// nothing to replay.
func (a *Adapter) Replay() bool {
	if !a.Enabled() {
		return false
	}
	a.mu.Lock()
	last := a.last
	a.mu.Unlock()
	if last == "" {
		return false
	}
	a.Play(last)
	return true
}

func (a *Adapter) start(payload string) error {
	raw, err := DecodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", apierrors.ErrPlaybackFailed, err)
	}

	pcm, rate, err := a.decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: decode audio: %w", apierrors.ErrPlaybackFailed, err)
	}

	if err := a.sink.Start(pcm, rate); err != nil {
		return fmt.Errorf("%w: %w", apierrors.ErrPlaybackFailed, err)
	}
	a.logger.Debug().Int("bytes", len(raw)).Int("sample_rate", rate).Msg("playback started")
	return nil
}

// DecodePayload decodes standard base64, tolerating a data: URI prefix and
// missing padding
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URI")
		}
		payload = payload[idx+1:]
	}
	if payload == "" {
		return nil, fmt.Errorf("empty audio payload")
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 audio: %w", err)
		}
	}
	return raw, nil
}
