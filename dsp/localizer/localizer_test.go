package localizer

import (
	"math"
	"math/rand"
	"testing"
)

func TestNewValidatesParams(t *testing.T) {
	if _, err := New(0, 1024, 20); err == nil {
		t.Error("expected error for zero sample_rate")
	}
	if _, err := New(44100, 0, 20); err == nil {
		t.Error("expected error for zero frame_length")
	}
	if _, err := New(44100, 1024, 20); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}

func TestProcessRequiresStereo(t *testing.T) {
	l, err := New(44100, 256, 20)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	mono := make([]float32, 256)
	if _, err := l.Process([][]float32{mono}); err == nil {
		t.Error("expected error for non-stereo input")
	}
}

// TestProcessDetectsDelay builds a broadband signal, delays the second
// channel by a known number of samples, and checks the estimated angle has
// the expected sign and size: a signal arriving first at channel 0 (delayed
// at channel 1) should localize toward positive angles.
func TestProcessDetectsDelay(t *testing.T) {
	const sampleRate = 44100
	const frameLen = 512
	const distance = 20.0

	l, err := New(sampleRate, frameLen, distance)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	n := frameLen * 4
	signal := make([]float32, n)
	for i := range signal {
		signal[i] = float32(rng.Float64()*2 - 1)
	}

	delaySamples := 3
	left := make([]float32, n)
	right := make([]float32, n)
	copy(left, signal)
	for i := range right {
		if i-delaySamples >= 0 {
			right[i] = signal[i-delaySamples]
		}
	}

	var angle float64
	for off := 0; off+frameLen <= n; off += frameLen {
		angle, err = l.Process([][]float32{left[off : off+frameLen], right[off : off+frameLen]})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	if math.Abs(angle) < 1e-6 {
		t.Errorf("expected a non-trivial angle for a delayed source, got %v", angle)
	}
	if angle < -math.Pi/2 || angle > math.Pi/2 {
		t.Errorf("angle %v outside [-pi/2, pi/2]", angle)
	}

	// The cross-correlation peak should land at (close to) the injected
	// delay: channel 1 lags channel 0 by delaySamples, so the estimated
	// angle should match asin(delaySamples/sampleRate * vSound/distance).
	const vSound = 34400.0
	wantITD := float64(delaySamples) / sampleRate * vSound / distance
	wantAngle := math.Asin(wantITD)
	if math.Abs(angle-wantAngle) > 0.05 {
		t.Errorf("angle = %v, want close to %v (recovered delay should match injected delay of %d samples)", angle, wantAngle, delaySamples)
	}
}

// TestProcessIdenticalChannelsZeroAngle checks the boundary case spec.md §8
// calls out: identical left/right channels (zero TDoA) should localize to
// (close to) broadside, angle == 0.
func TestProcessIdenticalChannelsZeroAngle(t *testing.T) {
	const sampleRate = 44100
	const frameLen = 512
	const distance = 20.0

	l, err := New(sampleRate, frameLen, distance)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rng := rand.New(rand.NewSource(2))
	signal := make([]float32, frameLen*4)
	for i := range signal {
		signal[i] = float32(rng.Float64()*2 - 1)
	}

	var angle float64
	for off := 0; off+frameLen <= len(signal); off += frameLen {
		frame := signal[off : off+frameLen]
		angle, err = l.Process([][]float32{frame, frame})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	if math.Abs(angle) > 1e-9 {
		t.Errorf("identical channels should localize to angle 0, got %v", angle)
	}
}
