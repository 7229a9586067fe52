// Package audio captures 16-bit PCM from the microphone.
package audio

// BytesPerSample is the width of one S16 sample
const BytesPerSample = 2

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context enumerates input devices and opens captures on them
type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig, callback DataCallback) (Capture, error)
	Close()
}

// Capture is an opened input device. The callback runs on the driver's
// thread and must not block.
type Capture interface {
	Start() error
	Stop()
	Close()
}
