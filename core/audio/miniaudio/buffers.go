package miniaudio

import (
	"encoding/binary"
	"sync"
)

// captureBuffer collects samples from the device callback up to limit.
type captureBuffer struct {
	mu    sync.Mutex
	buf   []int16
	limit int

	full     chan struct{}
	fullOnce sync.Once
}

func newCaptureBuffer(limit int) *captureBuffer {
	return &captureBuffer{buf: make([]int16, 0, limit), limit: limit, full: make(chan struct{})}
}

func (b *captureBuffer) write(pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i+1 < len(pcm) && len(b.buf) < b.limit; i += 2 {
		b.buf = append(b.buf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	if len(b.buf) >= b.limit {
		b.fullOnce.Do(func() { close(b.full) })
	}
}

func (b *captureBuffer) samples() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int16(nil), b.buf...)
}

// playbackQueue hands queued PCM to the device callback and signals once
// it ran dry.
type playbackQueue struct {
	mu  sync.Mutex
	pcm []byte

	drained     chan struct{}
	drainedOnce sync.Once
}

func newPlaybackQueue(pcm []byte) *playbackQueue {
	return &playbackQueue{pcm: pcm, drained: make(chan struct{})}
}

// fill copies the next chunk into out and pads the rest with silence.
func (q *playbackQueue) fill(out []byte) {
	q.mu.Lock()
	n := copy(out, q.pcm)
	q.pcm = q.pcm[n:]
	empty := len(q.pcm) == 0
	q.mu.Unlock()

	clear(out[n:])
	if empty {
		q.drainedOnce.Do(func() { close(q.drained) })
	}
}
