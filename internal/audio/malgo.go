package audio

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/gen2brain/malgo"
)

// malgoContext is the microphone backend on every platform miniaudio supports
type malgoContext struct {
	ctx *malgo.AllocatedContext
}

// NewContext initialises the platform audio backend
func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo init: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

// deviceKey encodes a device ID as hex, dropping the zero padding
func deviceKey(id malgo.DeviceID) string {
	return hex.EncodeToString(bytes.TrimRight(id[:], "\x00"))
}

func parseDeviceKey(key string) (malgo.DeviceID, error) {
	var id malgo.DeviceID
	raw, err := hex.DecodeString(key)
	if err != nil {
		return id, fmt.Errorf("invalid device ID %q: %w", key, err)
	}
	if len(raw) > len(id) {
		return id, fmt.Errorf("invalid device ID %q: %d bytes, max %d", key, len(raw), len(id))
	}
	copy(id[:], raw)
	return id, nil
}

// captureConfig maps a capture request onto a miniaudio S16 capture device
func captureConfig(device *DeviceInfo, cfg CaptureConfig) (malgo.DeviceConfig, error) {
	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = max(cfg.Channels, 1)
	dc.SampleRate = cfg.SampleRate

	if device != nil && device.ID != "" {
		id, err := parseDeviceKey(device.ID)
		if err != nil {
			return dc, err
		}
		dc.Capture.DeviceID = id.Pointer()
	}
	return dc, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{ID: deviceKey(info.ID), Name: info.Name()})
	}
	return devices, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, cfg CaptureConfig, callback DataCallback) (Capture, error) {
	dc, err := captureConfig(device, cfg)
	if err != nil {
		return nil, err
	}

	dev, err := malgo.InitDevice(m.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			callback(input, frames)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("malgo device: %w", err)
	}
	return &malgoCapture{dev: dev}, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	dev *malgo.Device
}

func (c *malgoCapture) Start() error {
	if err := c.dev.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	return nil
}

func (c *malgoCapture) Stop() {
	_ = c.dev.Stop()
}

func (c *malgoCapture) Close() {
	c.dev.Uninit()
}
