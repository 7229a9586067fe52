package playback

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

const (
	otoChannels   = 2
	otoBufferSize = 100 * time.Millisecond
	otoPollEvery  = 50 * time.Millisecond
)

// OtoSink plays PCM on the default output device. The device context is
// created on first use and bound to that sample rate for the process.
type OtoSink struct {
	logger zerolog.Logger

	mu      sync.Mutex
	ctx     *oto.Context
	rate    int
	players map[*oto.Player]struct{}
}

func NewOtoSink(logger zerolog.Logger) *OtoSink {
	return &OtoSink{
		logger:  logger.With().Str("component", "oto").Logger(),
		players: make(map[*oto.Player]struct{}),
	}
}

func (s *OtoSink) context(sampleRate int) (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		if sampleRate != s.rate {
			s.logger.Warn().Int("want", sampleRate).Int("have", s.rate).Msg("sample rate differs from output device")
		}
		return s.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: otoChannels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   otoBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init audio output: %w", err)
	}
	<-ready

	s.ctx = ctx
	s.rate = sampleRate
	return ctx, nil
}

func (s *OtoSink) Start(pcm io.Reader, sampleRate int) error {
	ctx, err := s.context(sampleRate)
	if err != nil {
		return err
	}

	player := ctx.NewPlayer(pcm)
	player.Play()

	s.mu.Lock()
	s.players[player] = struct{}{}
	s.mu.Unlock()

	go func() {
		for player.IsPlaying() {
			time.Sleep(otoPollEvery)
		}
		if err := player.Err(); err != nil {
			s.logger.Warn().Err(err).Msg("player error")
		}
		s.release(player)
	}()
	return nil
}

func (s *OtoSink) release(player *oto.Player) {
	s.mu.Lock()
	_, ok := s.players[player]
	delete(s.players, player)
	s.mu.Unlock()
	if ok {
		_ = player.Close()
	}
}

// Close stops every player still running
func (s *OtoSink) Close() {
	s.mu.Lock()
	players := make([]*oto.Player, 0, len(s.players))
	for p := range s.players {
		players = append(players, p)
	}
	s.mu.Unlock()

	for _, p := range players {
		p.Pause()
		s.release(p)
	}
}
