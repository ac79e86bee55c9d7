// Package miniaudio records from the default microphone and plays to the
// default speakers using malgo.
package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
)

const (
	channels = 1
	format   = malgo.FormatS16
)

// Device owns a malgo context. Each Record or Play call opens its own
// device on it.
type Device struct {
	audioContext *malgo.AllocatedContext
}

func Open() (*Device, error) {
	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &Device{audioContext: audioContext}, nil
}

func (d *Device) Close() error {
	err := d.audioContext.Uninit()
	d.audioContext.Free()
	return err
}

// Record captures mono linear16 audio at sampleRate until maxDuration worth
// of samples arrived or ctx is done, whichever comes first.
func (d *Device) Record(ctx context.Context, sampleRate int, maxDuration time.Duration) ([]int16, error) {
	ctx, span := tracer.Start(ctx, "record")
	defer span.End()

	buffer := newCaptureBuffer(int(time.Duration(sampleRate) * maxDuration / time.Second))
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(sampleRate)
	config.Capture.Format = format
	config.Capture.Channels = channels
	config.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(d.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}
			buffer.write(input[:n])
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}
	select {
	case <-buffer.full:
	case <-ctx.Done():
	}
	if err := device.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop capture device: %w", err)
	}

	samples := buffer.samples()
	logger.InfoContext(ctx, "recorded audio", "samples", len(samples), "sample_rate", sampleRate)
	return samples, nil
}

// Play blocks until every sample was handed to the speakers or ctx is done.
func (d *Device) Play(ctx context.Context, samples []int16, sampleRate int) error {
	ctx, span := tracer.Start(ctx, "play")
	defer span.End()

	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	queue := newPlaybackQueue(pcm)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(sampleRate)
	config.Playback.Format = format
	config.Playback.Channels = channels
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(sampleRate / 10) // ~100ms of audio
	config.Periods = 4

	device, err := malgo.InitDevice(d.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) { queue.fill(output) },
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	defer device.Stop()

	select {
	case <-queue.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
