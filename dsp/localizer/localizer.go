// Package localizer estimates the direction of arrival of a stereo signal
// via time-difference-of-arrival (TDoA) cross-correlation.
package localizer

import (
	"math"

	"github.com/sdroege/whistler"
)

// vSound is the speed of sound in cm/s used to convert time delay to angle.
const vSound = 34400.0

// Localizer holds the 2N-sample ring buffers (N pre-samples, N current) for
// each of the two channels it was constructed for.
type Localizer struct {
	sampleRate uint32
	frameLen   uint32
	distance   float64
	maxRange   int

	input [2][]float32 // each len 2*frameLen
}

// New builds a Localizer for stereo frames of frameLen samples at
// sampleRate, with microphones distance centimeters apart. Fails with
// whistler.InvalidParam on a zero sample rate or frame length.
func New(sampleRate, frameLen uint32, distance float64) (*Localizer, error) {
	if sampleRate == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "localizer.New", errStr("sample_rate must be > 0"))
	}
	if frameLen == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "localizer.New", errStr("frame_length must be > 0"))
	}

	maxRange := 1 + int(math.Ceil(distance*float64(sampleRate)/vSound))
	if maxRange > int(frameLen)/2 {
		return nil, whistler.NewError(whistler.InvalidParam, "localizer.New", errStr("distance is too large for frame_length at this sample_rate: the cross-correlation search range must fit within half a frame"))
	}

	l := &Localizer{
		sampleRate: sampleRate,
		frameLen:   frameLen,
		distance:   distance,
		maxRange:   maxRange,
	}
	l.input[0] = make([]float32, 2*frameLen)
	l.input[1] = make([]float32, 2*frameLen)
	return l, nil
}

type errStr string

func (e errStr) Error() string { return string(e) }

// Process localizes a new stereo frame (exactly two channels of
// l.FrameLength() samples each), returning an arrival angle in radians
// within [-pi/2, pi/2].
func (l *Localizer) Process(in [][]float32) (float64, error) {
	if len(in) != 2 {
		return 0, whistler.NewError(whistler.Unsupported, "localizer.Process", errStr("localizer requires exactly 2 channels"))
	}

	n := int(l.frameLen)
	for c := 0; c < 2; c++ {
		copy(l.input[c][:n], l.input[c][n:])
		copy(l.input[c][n:], in[c])
	}

	maxRange := l.maxRange
	best := -maxRange
	var bestVal float64 = math.Inf(-1)

	half := n / 2
	for k := -maxRange; k < maxRange; k++ {
		var sum float64
		for j := 0; j < n; j++ {
			a := float64(l.input[0][j+half])
			b := float64(l.input[1][j+half+k])
			sum += a * b
		}
		if sum > bestVal {
			bestVal = sum
			best = k
		}
	}

	itd := float64(best) / float64(l.sampleRate) * vSound / l.distance
	if itd > 1.0 {
		itd = 1.0
	} else if itd < -1.0 {
		itd = -1.0
	}
	return math.Asin(itd), nil
}

// FrameLength returns the frame length this Localizer was built for.
func (l *Localizer) FrameLength() uint32 { return l.frameLen }
