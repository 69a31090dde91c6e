// Package identifier orchestrates the per-frame detection pipeline:
// deinterleave and mix down, silence gate, optional band-pass, MFCC
// extraction, classification and/or localization, and rolling-average
// smoothing of the result.
package identifier

import (
	"fmt"
	"math"

	"github.com/sdroege/whistler"
	"github.com/sdroege/whistler/classifier"
	"github.com/sdroege/whistler/dsp/bandpass"
	"github.com/sdroege/whistler/dsp/extractor"
	"github.com/sdroege/whistler/dsp/localizer"
	"github.com/sdroege/whistler/pattern"
)

// Mode selects which of classification and localization Process performs.
type Mode int

const (
	// ModeClassify runs the feature vector through the classifier.
	ModeClassify Mode = 1 << iota
	// ModeLocalize runs the stereo cross-correlation localizer. Requires
	// the Identifier to have been constructed with exactly 2 channels.
	ModeLocalize
)

const historyLen = 10
const silenceRMS = 1e-4

// Identifier holds the per-channel planar buffers, mono mixdown buffer,
// and rolling score/angle history an instance accumulates across calls to
// Process. Not safe for concurrent use; distinct instances share no state.
type Identifier struct {
	sampleRate uint32
	frameLen   uint32
	nchannels  int

	extractor  *extractor.Extractor
	localizer  *localizer.Localizer
	classifier *classifier.Classifier

	bandpassMulti *bandpass.Bandpass // nchannels-wide, nil if no band configured
	bandpassMono  *bandpass.Bandpass // 1-wide, nil if no band configured

	input [][]float32 // nchannels x frameLen, reused scratch
	mono  []float32   // frameLen, reused scratch

	scoreHistory [historyLen]float64
	angleHistory [historyLen]float64
}

// New builds an Identifier for interleaved frames of frameLength samples
// across nchannels channels at sampleRate, using pat's classifier and
// frequency band. distance is the microphone spacing in centimeters, used
// by the localizer when nchannels == 2. Fails with
// whistler.IncompatiblePattern if pat's sample rate disagrees with
// sampleRate, unless pat is rate-agnostic (sample rate stamped as 0).
func New(sampleRate, frameLength uint32, nchannels int, distanceCm float64, pat *pattern.Pattern) (*Identifier, error) {
	if sampleRate == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "identifier.New", fmt.Errorf("sample_rate must be > 0"))
	}
	if frameLength == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "identifier.New", fmt.Errorf("frame_length must be > 0"))
	}
	if nchannels <= 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "identifier.New", fmt.Errorf("nchannels must be > 0"))
	}
	if pat == nil {
		return nil, whistler.NewError(whistler.InvalidParam, "identifier.New", fmt.Errorf("pattern must not be nil"))
	}
	if pat.SampleRate() != 0 && pat.SampleRate() != sampleRate {
		return nil, whistler.NewError(whistler.IncompatiblePattern, "identifier.New", fmt.Errorf("pattern sample rate %d does not match %d", pat.SampleRate(), sampleRate))
	}

	minFreq, maxFreq := pat.MinFreq(), pat.MaxFreq()

	var bpMulti, bpMono *bandpass.Bandpass
	if minFreq != 0 && maxFreq != 0 {
		var err error
		bpMulti, err = bandpass.New(sampleRate, uint32(nchannels), minFreq, maxFreq)
		if err != nil {
			return nil, err
		}
		bpMono, err = bandpass.New(sampleRate, 1, minFreq, maxFreq)
		if err != nil {
			return nil, err
		}
	}

	ext, err := extractor.New(sampleRate, frameLength, minFreq, maxFreq)
	if err != nil {
		return nil, err
	}

	var loc *localizer.Localizer
	if nchannels == 2 {
		loc, err = localizer.New(sampleRate, frameLength, distanceCm)
		if err != nil {
			return nil, err
		}
	}

	cls, err := classifier.NewFromPattern(pat.ClassifierName(), pat)
	if err != nil {
		return nil, err
	}

	id := &Identifier{
		sampleRate:    sampleRate,
		frameLen:      frameLength,
		nchannels:     nchannels,
		extractor:     ext,
		localizer:     loc,
		classifier:    cls,
		bandpassMulti: bpMulti,
		bandpassMono:  bpMono,
		mono:          make([]float32, frameLength),
	}
	id.input = make([][]float32, nchannels)
	for c := range id.input {
		id.input[c] = make([]float32, frameLength)
	}
	for i := range id.scoreHistory {
		id.scoreHistory[i] = 0.5
	}
	return id, nil
}

// FrameLength returns the frame length this Identifier was built for.
func (id *Identifier) FrameLength() uint32 { return id.frameLen }

// Process deinterleaves and classifies/localizes one frame of
// id.FrameLength()*nchannels interleaved samples, returning the
// history-smoothed result. On a frame whose mixed-down RMS is at or below
// the silence threshold, it returns a zeroed Result without updating the
// rolling history, so silent stretches do not wash out a recent detection.
func (id *Identifier) Process(interleaved []float32, mode Mode) (whistler.Result, error) {
	if len(interleaved) != int(id.frameLen)*id.nchannels {
		return whistler.Result{}, whistler.NewError(whistler.InvalidParam, "Identifier.Process",
			fmt.Errorf("expected %d interleaved samples, got %d", int(id.frameLen)*id.nchannels, len(interleaved)))
	}
	if mode&ModeLocalize != 0 && id.localizer == nil {
		return whistler.Result{}, whistler.NewError(whistler.Unsupported, "Identifier.Process",
			fmt.Errorf("localization requires an identifier constructed with 2 channels"))
	}

	if !id.preprocess(interleaved) {
		return whistler.Result{}, nil
	}

	vec := id.extractor.Process(id.mono)

	var res whistler.Result
	if mode&ModeClassify != 0 {
		res.Score = id.classifier.Process(vec)
	}
	if mode&ModeLocalize != 0 {
		angle, err := id.localizer.Process(id.input)
		if err != nil {
			return whistler.Result{}, err
		}
		res.Angle = angle
	}

	id.smooth(&res)
	return res, nil
}

// preprocess deinterleaves interleaved into id.input/id.mono, computes the
// mono RMS, and reports whether the frame is loud enough to continue
// processing. When true, it also applies the configured band-pass filters
// in place.
func (id *Identifier) preprocess(interleaved []float32) bool {
	n := int(id.frameLen)
	var rms float64

	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < id.nchannels; c++ {
			s := interleaved[i*id.nchannels+c]
			id.input[c][i] = s
			sum += s
		}
		m := sum / float32(id.nchannels)
		id.mono[i] = m
		rms += float64(m) * float64(m)
	}
	rms = math.Sqrt(rms / float64(n))

	if rms <= silenceRMS {
		return false
	}

	if id.bandpassMulti != nil {
		id.bandpassMulti.Process(id.input)
		id.bandpassMono.Process([][]float32{id.mono})
	}
	return true
}

func (id *Identifier) smooth(res *whistler.Result) {
	copy(id.scoreHistory[:historyLen-1], id.scoreHistory[1:])
	id.scoreHistory[historyLen-1] = res.Score
	var scoreAvg float64
	for _, v := range id.scoreHistory {
		scoreAvg += v
	}
	res.Score = scoreAvg / historyLen

	copy(id.angleHistory[:historyLen-1], id.angleHistory[1:])
	id.angleHistory[historyLen-1] = res.Angle
	var angleAvg float64
	for _, v := range id.angleHistory {
		angleAvg += v
	}
	res.Angle = angleAvg / historyLen
}
