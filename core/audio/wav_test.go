package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeWAV(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1200}

	data, err := EncodeWAV(samples, 24000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != wavHeaderSize+len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", wavHeaderSize+len(samples)*2, len(data))
	}

	got, sampleRate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sampleRate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", sampleRate)
	}
	if diff := cmp.Diff(samples, got); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file at all")); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}

func TestSilence(t *testing.T) {
	silence := Silence(16000, 200*time.Millisecond)
	if len(silence) != 3200 {
		t.Fatalf("expected 3200 samples, got %d", len(silence))
	}
	for i, s := range silence {
		if s != 0 {
			t.Fatalf("expected zero sample at %d, got %d", i, s)
		}
	}
}

func TestEncodingInfoDurations(t *testing.T) {
	info := GetDefaultEncodingInfo()
	if got := info.BytesInDuration(time.Second); got != 48000 {
		t.Fatalf("expected 48000 bytes, got %d", got)
	}
	if got := info.Duration(12000); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %s", got)
	}
}
