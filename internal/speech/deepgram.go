package speech

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/diogo/checkin/internal/audio"
)

const (
	DefaultDeepgramEndpoint = "wss://api.deepgram.com/v1/listen"

	deepgramSendBuffer      = 256
	deepgramFinalizeTimeout = time.Second
	deepgramDrainTimeout    = 2 * time.Second
)

// DeepgramConfig configures the streaming recognizer
type DeepgramConfig struct {
	APIKey     string
	Endpoint   string // defaults to DefaultDeepgramEndpoint
	Model      string
	Language   string
	SampleRate int
	Device     *audio.DeviceInfo

	// FinalizeTimeout bounds the wait for the server to flush after Stop
	FinalizeTimeout time.Duration
}

// DeepgramEngine streams microphone PCM to Deepgram over a websocket
type DeepgramEngine struct {
	cfg    DeepgramConfig
	audio  audio.Context
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu      sync.Mutex
	stream  *deepgramStream
	dropped int
}

type deepgramStream struct {
	conn    *websocket.Conn
	capture audio.Capture

	feedMu  sync.Mutex
	feeding bool
	sendCh  chan []byte

	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	closingMu sync.Mutex
	closing   bool
}

// NewDeepgramEngine creates an engine reading from audioCtx. A nil audioCtx or
// an empty API key makes the engine unavailable.
func NewDeepgramEngine(cfg DeepgramConfig, audioCtx audio.Context, logger zerolog.Logger) *DeepgramEngine {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultDeepgramEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = deepgramFinalizeTimeout
	}
	return &DeepgramEngine{
		cfg:    cfg,
		audio:  audioCtx,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With().Str("component", "deepgram").Logger(),
	}
}

func (d *DeepgramEngine) Available() bool {
	return d.cfg.APIKey != "" && d.audio != nil
}

func (d *DeepgramEngine) listenURL() (string, error) {
	endpoint, err := url.Parse(d.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("model", d.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	if d.cfg.Language != "" {
		q.Set("language", d.cfg.Language)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (d *DeepgramEngine) Start(ctx context.Context, onResult func(Result)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return fmt.Errorf("deepgram stream already running")
	}

	target, err := d.listenURL()
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s := &deepgramStream{
		conn:      conn,
		sendCh:    make(chan []byte, deepgramSendBuffer),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
		feeding:   true,
	}

	capture, err := d.audio.NewCapture(d.cfg.Device, audio.CaptureConfig{
		SampleRate: uint32(d.cfg.SampleRate),
		Channels:   1,
	}, func(data []byte, _ uint32) {
		d.feed(s, data)
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("open microphone: %w", err)
	}
	s.capture = capture

	go d.runSender(s)
	go d.runReceiver(s, onResult)

	if err := capture.Start(); err != nil {
		capture.Close()
		d.shutdown(s)
		return fmt.Errorf("start microphone: %w", err)
	}

	d.stream = s
	d.logger.Debug().Str("model", d.cfg.Model).Int("sample_rate", d.cfg.SampleRate).Msg("stream opened")
	return nil
}

// feed runs on the audio driver's thread; it never blocks
func (d *DeepgramEngine) feed(s *deepgramStream, data []byte) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if !s.feeding {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	select {
	case s.sendCh <- chunk:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
	}
}

func (d *DeepgramEngine) runSender(s *deepgramStream) {
	defer close(s.sendDone)
	for chunk := range s.sendCh {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			d.logger.Warn().Err(err).Msg("send audio failed")
			for range s.sendCh {
			}
			return
		}
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`)); err != nil {
		d.logger.Warn().Err(err).Msg("send finalize failed")
	}
}

func (d *DeepgramEngine) runReceiver(s *deepgramStream, onResult func(Result)) {
	defer close(s.recvDone)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.closingMu.Lock()
			closing := s.closing
			s.closingMu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				d.logger.Warn().Err(err).Msg("stream receive failed")
			}
			s.finalizedOnce.Do(func() { close(s.finalized) })
			return
		}

		result, ok, fromFinalize := parseDeepgramMessage(data)
		if ok && onResult != nil {
			onResult(result)
		}
		if fromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}
	}
}

// parseDeepgramMessage extracts a Result from a "Results" message. Metadata
// and other message types report ok=false.
func parseDeepgramMessage(data []byte) (result Result, ok bool, fromFinalize bool) {
	if !gjson.ValidBytes(data) {
		return Result{}, false, false
	}
	msg := gjson.ParseBytes(data)
	if msg.Get("type").String() != "Results" {
		return Result{}, false, false
	}

	fromFinalize = msg.Get("from_finalize").Bool()
	final := msg.Get("is_final").Bool() || msg.Get("speech_final").Bool() || fromFinalize
	text := msg.Get("channel.alternatives.0.transcript").String()
	return Result{Text: text, Final: final}, true, fromFinalize
}

// Stop halts the microphone, flushes the stream and waits (bounded) for the
// last finals
func (d *DeepgramEngine) Stop() error {
	d.mu.Lock()
	s := d.stream
	d.stream = nil
	dropped := d.dropped
	d.dropped = 0
	d.mu.Unlock()

	if s == nil {
		return nil
	}

	s.capture.Stop()
	s.capture.Close()

	s.feedMu.Lock()
	s.feeding = false
	close(s.sendCh)
	s.feedMu.Unlock()
	<-s.sendDone

	select {
	case <-s.finalized:
	case <-time.After(d.cfg.FinalizeTimeout):
		d.logger.Warn().Msg("finalize timeout")
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		d.logger.Debug().Err(err).Msg("send close stream failed")
	}

	select {
	case <-s.recvDone:
	case <-time.After(deepgramDrainTimeout):
		d.logger.Warn().Msg("stream receiver drain timeout")
	}

	d.shutdown(s)
	if dropped > 0 {
		d.logger.Warn().Int("chunks", dropped).Msg("dropped audio chunks")
	}
	d.logger.Debug().Msg("stream closed")
	return nil
}

// shutdown closes the connection and waits for the goroutines
func (d *DeepgramEngine) shutdown(s *deepgramStream) {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.feedMu.Lock()
	if s.feeding {
		s.feeding = false
		close(s.sendCh)
	}
	s.feedMu.Unlock()

	_ = s.conn.Close()
	<-s.sendDone
	<-s.recvDone
}
