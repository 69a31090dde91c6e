// Package learner accumulates labeled feature vectors across one or more
// training sequences and drives a classifier.Learn call to produce a
// persisted Pattern, with WHSL state-file checkpointing so a long labeling
// session can be resumed across runs.
package learner

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sdroege/whistler"
	"github.com/sdroege/whistler/classifier"
	"github.com/sdroege/whistler/dsp/bandpass"
	"github.com/sdroege/whistler/dsp/extractor"
	"github.com/sdroege/whistler/pattern"
)

const magic = "WHSL"
const recordSize = 4 + 32*4 // label (i32) + 32 mfcc floats (f32)

// Learner collects {label, feature vector} samples across one or more
// sequences (delimited by FinishSequence) for later use by
// GeneratePattern. It is not safe for concurrent use.
type Learner struct {
	extractor  *extractor.Extractor
	classifier *classifier.Classifier
	bandpass   *bandpass.Bandpass // nil if no band configured

	minFreq    uint32
	maxFreq    uint32
	sampleRate uint32

	vals []whistler.ResultValue
}

// New builds a Learner for frameLength-sample mono frames at sampleRate,
// restricted to [minFreq, maxFreq) (both zero selects the full band, and
// disables bandpass filtering). classifierName selects the registered
// topology to train; if pattern is non-nil its weights seed the classifier
// instead of a random initialization, and its band/sample-rate/classifier
// name must agree with the arguments given here.
func New(classifierName string, sampleRate, frameLength, minFreq, maxFreq uint32, pat *pattern.Pattern) (*Learner, error) {
	if sampleRate == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "learner.New", fmt.Errorf("sample_rate must be > 0"))
	}
	if frameLength == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "learner.New", fmt.Errorf("frame_length must be > 0"))
	}
	if !(minFreq == 0 && maxFreq == 0) && minFreq >= maxFreq {
		return nil, whistler.NewError(whistler.InvalidParam, "learner.New", fmt.Errorf("min_freq must be < max_freq"))
	}
	if maxFreq > sampleRate/2 {
		return nil, whistler.NewError(whistler.InvalidParam, "learner.New", fmt.Errorf("max_freq must be <= sample_rate/2"))
	}

	if pat != nil {
		if pat.MinFreq() != minFreq || pat.MaxFreq() != maxFreq {
			return nil, whistler.NewError(whistler.IncompatiblePattern, "learner.New", fmt.Errorf("pattern frequency band does not match"))
		}
		if pat.SampleRate() != sampleRate {
			return nil, whistler.NewError(whistler.IncompatiblePattern, "learner.New", fmt.Errorf("pattern sample rate does not match"))
		}
		if classifierName != "" && classifierName != pat.ClassifierName() {
			return nil, whistler.NewError(whistler.IncompatiblePattern, "learner.New", fmt.Errorf("pattern classifier name does not match"))
		}
		classifierName = pat.ClassifierName()
	}
	if classifierName == "" {
		classifierName = "WhsNNClassifier_32_32_32_1"
	}

	ext, err := extractor.New(sampleRate, frameLength, minFreq, maxFreq)
	if err != nil {
		return nil, err
	}

	var cls *classifier.Classifier
	if pat != nil {
		cls, err = classifier.NewFromPattern(classifierName, pat)
	} else {
		cls, err = classifier.New(classifierName)
	}
	if err != nil {
		return nil, err
	}

	var bp *bandpass.Bandpass
	if minFreq != 0 && maxFreq != 0 {
		bp, err = bandpass.New(sampleRate, 1, minFreq, maxFreq)
		if err != nil {
			return nil, err
		}
	}

	return &Learner{
		extractor:  ext,
		classifier: cls,
		bandpass:   bp,
		minFreq:    minFreq,
		maxFreq:    maxFreq,
		sampleRate: sampleRate,
	}, nil
}

// Process extracts the feature vector for frame and appends it with label
// to the accumulated sample list. A negative label is ignored (no sample
// is appended), matching the "label < 0 skip" rule shared with Classifier.Learn.
func (l *Learner) Process(label int32, frame []float32) error {
	if frame == nil {
		return whistler.NewError(whistler.InvalidParam, "Learner.Process", fmt.Errorf("frame must not be nil"))
	}
	if label < 0 {
		return nil
	}

	in := make([]float32, len(frame))
	copy(in, frame)
	if l.bandpass != nil {
		l.bandpass.Process([][]float32{in})
	}

	vec := l.extractor.Process(in)
	l.vals = append(l.vals, whistler.ResultValue{Label: label, Vec: vec})
	return nil
}

// FinishSequence appends a synthetic separator sample marking the boundary
// between this sequence and the next. Callers must invoke it between
// independent training clips fed to the same Learner.
func (l *Learner) FinishSequence() {
	l.vals = append(l.vals, whistler.ResultValue{Label: whistler.SeparatorLabel})
}

// SampleCount returns the number of samples accumulated so far, including
// separators.
func (l *Learner) SampleCount() int { return len(l.vals) }

// SequenceCount returns the number of completed sequences, i.e. the number
// of separators appended via FinishSequence.
func (l *Learner) SequenceCount() int {
	n := 0
	for _, v := range l.vals {
		if v.IsSeparator() {
			n++
		}
	}
	return n
}

// GeneratePattern trains the classifier over all accumulated samples until
// targetRate accuracy is reached, stamping this Learner's frequency band
// and sample rate into the resulting Pattern.
func (l *Learner) GeneratePattern(targetRate float64) (*pattern.Pattern, error) {
	pat, err := l.classifier.Learn(l.vals, targetRate, l.minFreq, l.maxFreq, l.sampleRate)
	if err != nil {
		return nil, err
	}
	return pat, nil
}

// SaveState implicitly calls FinishSequence, then writes the accumulated
// samples to path in WHSL format.
func (l *Learner) SaveState(path string) error {
	l.FinishSequence()

	f, err := os.Create(path)
	if err != nil {
		return whistler.NewError(whistler.Io, "Learner.SaveState", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := l.encode(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return whistler.NewError(whistler.Io, "Learner.SaveState", err)
	}
	return nil
}

func (l *Learner) encode(w io.Writer) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return whistler.NewError(whistler.Io, "Learner.SaveState", err)
	}
	dataSize := uint32(len(l.vals) * recordSize)
	for _, v := range []uint32{l.minFreq, l.maxFreq, l.sampleRate, dataSize} {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return whistler.NewError(whistler.Io, "Learner.SaveState", err)
		}
	}
	for _, v := range l.vals {
		if err := binary.Write(w, binary.BigEndian, v.Label); err != nil {
			return whistler.NewError(whistler.Io, "Learner.SaveState", err)
		}
		for _, m := range v.Vec {
			if err := binary.Write(w, binary.BigEndian, float32(m)); err != nil {
				return whistler.NewError(whistler.Io, "Learner.SaveState", err)
			}
		}
	}
	return nil
}

// NewFromState reads a WHSL file at path, reconstitutes the accumulated
// sample list, and builds a Learner around it. If sampleRate == 0, the
// sample rate recorded in the file is used. pat, if non-nil, must agree
// with the file's frequency band and sample rate (Incompatible* otherwise);
// classifierName, if non-empty, selects the topology (defaulting to
// pat's, or the registry default).
func NewFromState(classifierName string, sampleRate, frameLength uint32, path string, pat *pattern.Pattern) (*Learner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, whistler.NewError(whistler.Io, "learner.NewFromState", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, whistler.NewError(whistler.InvalidFormat, "learner.NewFromState", fmt.Errorf("short read of magic: %w", err))
	}
	if string(gotMagic[:]) != magic {
		return nil, whistler.NewError(whistler.InvalidFormat, "learner.NewFromState", fmt.Errorf("bad magic %q", gotMagic))
	}

	var minFreq, maxFreq, fileSampleRate, dataSize uint32
	for _, v := range []*uint32{&minFreq, &maxFreq, &fileSampleRate, &dataSize} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return nil, whistler.NewError(whistler.InvalidFormat, "learner.NewFromState", fmt.Errorf("short read of header: %w", err))
		}
	}
	if dataSize%recordSize != 0 {
		return nil, whistler.NewError(whistler.InvalidFormat, "learner.NewFromState", fmt.Errorf("data_size %d not a multiple of %d", dataSize, recordSize))
	}

	if sampleRate == 0 {
		sampleRate = fileSampleRate
	}
	if pat != nil {
		if pat.MinFreq() != minFreq || pat.MaxFreq() != maxFreq {
			return nil, whistler.NewError(whistler.IncompatiblePattern, "learner.NewFromState", fmt.Errorf("pattern frequency band does not match state file"))
		}
		if pat.SampleRate() != sampleRate {
			return nil, whistler.NewError(whistler.IncompatiblePattern, "learner.NewFromState", fmt.Errorf("pattern sample rate does not match"))
		}
	} else if fileSampleRate != sampleRate {
		return nil, whistler.NewError(whistler.IncompatiblePattern, "learner.NewFromState", fmt.Errorf("state file sample rate %d does not match requested %d", fileSampleRate, sampleRate))
	}

	l, err := New(classifierName, sampleRate, frameLength, minFreq, maxFreq, pat)
	if err != nil {
		return nil, err
	}

	n := int(dataSize / recordSize)
	vals := make([]whistler.ResultValue, 0, n)
	for i := 0; i < n; i++ {
		var label int32
		if err := binary.Read(r, binary.BigEndian, &label); err != nil {
			return nil, whistler.NewError(whistler.InvalidFormat, "learner.NewFromState", fmt.Errorf("short read of record %d label: %w", i, err))
		}
		var vec whistler.FeatureVector
		for j := range vec {
			var m float32
			if err := binary.Read(r, binary.BigEndian, &m); err != nil {
				return nil, whistler.NewError(whistler.InvalidFormat, "learner.NewFromState", fmt.Errorf("short read of record %d mfcc %d: %w", i, j, err))
			}
			vec[j] = float64(m)
		}
		vals = append(vals, whistler.ResultValue{Label: label, Vec: vec})
	}
	l.vals = vals

	return l, nil
}
