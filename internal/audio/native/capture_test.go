//go:build native

package native

import (
	"errors"
	"testing"

	"tutorvoice/internal/ports"
)

func TestDownmixAveragesChannels(t *testing.T) {
	got := downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestClassifyDeviceError(t *testing.T) {
	if err := classifyDeviceError(errors.New("Permission denied")); !errors.Is(err, ports.ErrMicrophoneDenied) {
		t.Fatalf("expected denied, got %v", err)
	}
	if err := classifyDeviceError(errors.New("No device available")); !errors.Is(err, ports.ErrMicrophoneNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := classifyDeviceError(errors.New("boom")); errors.Is(err, ports.ErrMicrophoneNotFound) || errors.Is(err, ports.ErrMicrophoneDenied) {
		t.Fatalf("unexpected classification %v", err)
	}
}

func TestSinkRejectsWritesAfterClose(t *testing.T) {
	s := &sink{closed: true}
	if err := s.Write([]float32{0.1}); !errors.Is(err, errSinkClosed) {
		t.Fatalf("expected errSinkClosed, got %v", err)
	}
}
