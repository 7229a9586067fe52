package audio

import (
	"sync"
	"time"
)

const fakeChunkFrames = 320 // 20ms at 16kHz

// FakeContext replays an in-memory PCM buffer instead of a microphone
type FakeContext struct {
	PCM      []byte
	Interval time.Duration // delay between chunks; zero feeds as fast as possible

	mu       sync.Mutex
	captures []*FakeCapture
	OpenErr  error
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{PCM: pcm}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig, callback DataCallback) (Capture, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	channels := int(config.Channels)
	if channels == 0 {
		channels = 1
	}
	c := &FakeCapture{
		pcm:       f.PCM,
		interval:  f.Interval,
		frameSize: BytesPerSample * channels,
		cb:        callback,
	}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Captures returns every capture opened so far
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

// FakeCapture feeds its buffer once per Start, then goes quiet
type FakeCapture struct {
	pcm       []byte
	interval  time.Duration
	frameSize int
	cb        DataCallback

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	started bool
	closed  bool
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	f.started = true
	f.stopCh = make(chan struct{})
	f.done = make(chan struct{})

	go f.feed(f.stopCh, f.done)
	return nil
}

func (f *FakeCapture) feed(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	chunkBytes := fakeChunkFrames * f.frameSize
	for pos := 0; pos < len(f.pcm); {
		select {
		case <-stop:
			return
		default:
		}
		end := min(pos+chunkBytes, len(f.pcm))
		chunk := make([]byte, end-pos)
		copy(chunk, f.pcm[pos:end])
		f.cb(chunk, uint32(len(chunk)/f.frameSize))
		pos = end

		if f.interval > 0 {
			select {
			case <-stop:
				return
			case <-time.After(f.interval):
			}
		}
	}
}

// Stop waits for the feeder to exit, so no callback runs after it returns
func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	close(f.stopCh)
	done := f.done
	f.mu.Unlock()
	<-done
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Closed reports whether Close was called
func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
