package bandpass

import (
	"math"
	"math/rand"
	"testing"
)

func TestNewValidatesParams(t *testing.T) {
	tests := []struct {
		name                             string
		sampleRate, channels, lo, hi uint32
		wantErr                          bool
	}{
		{"valid", 44100, 1, 1000, 4000, false},
		{"zero sample rate", 0, 1, 1000, 4000, true},
		{"zero channels", 44100, 0, 1000, 4000, true},
		{"min >= max", 44100, 1, 4000, 1000, true},
		{"max above nyquist", 44100, 1, 1000, 40000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.sampleRate, tt.channels, tt.lo, tt.hi)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d,%d,%d,%d) error = %v, wantErr %v", tt.sampleRate, tt.channels, tt.lo, tt.hi, err, tt.wantErr)
			}
		})
	}
}

func TestProcessIsStableOnWhiteNoise(t *testing.T) {
	bp, err := New(44100, 1, 1000, 4000)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	const n = 1_000_000
	chunk := make([]float32, 1000)

	for i := 0; i < n/len(chunk); i++ {
		for j := range chunk {
			chunk[j] = float32(rng.Float64()*2 - 1)
		}
		bp.Process([][]float32{chunk})
		for _, v := range chunk {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("unbounded output at sample block %d: %v", i, v)
			}
			if math.Abs(float64(v)) > 100 {
				t.Fatalf("output grew unbounded at block %d: %v", i, v)
			}
		}
	}
}

func TestChannelsIndependent(t *testing.T) {
	bp, err := New(44100, 2, 1000, 4000)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if bp.Channels() != 2 {
		t.Errorf("Channels() = %d, want 2", bp.Channels())
	}

	a := []float32{1, 0, 0, 0}
	b := []float32{0, 0, 0, 0}
	bp.Process([][]float32{a, b})

	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
		}
	}
	if !allZero {
		t.Errorf("channel 1 affected by channel 0's impulse: %v", b)
	}
}
