// Package extractor computes 32-dimensional MFCC feature vectors from a
// fixed-size frame of audio: Hamming window, real FFT, log-magnitude
// spectrum, mel binning, and DCT decorrelation.
package extractor

import (
	"math"

	"github.com/sdroege/whistler"
	"gonum.org/v1/gonum/dsp/fourier"
)

const numBins = 32

// Extractor is a pure function of (frame, sampleRate, minFreq, maxFreq)
// plus its precomputed Hamming window; it holds no per-call state, so a
// single instance may be reused across frames (but not across goroutines).
type Extractor struct {
	sampleRate uint32
	frameLen   uint32
	minFreq    uint32
	maxFreq    uint32

	window []float64
	fft    *fourier.FFT

	// scratch buffers, reused across Process calls to keep the hot path
	// allocation-free.
	windowed []float64
	spectrum []float64
}

// New builds an Extractor for frameLen-sample frames (a power of two in
// [128, 4096]) at sampleRate, band-limited to [minFreq, maxFreq) for mel
// binning purposes (minFreq == 0 && maxFreq == 0 selects the full band).
func New(sampleRate, frameLen, minFreq, maxFreq uint32) (*Extractor, error) {
	if sampleRate == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "extractor.New", errStr("sample_rate must be > 0"))
	}
	if frameLen < 128 || frameLen > 4096 || frameLen&(frameLen-1) != 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "extractor.New", errStr("frame_length must be a power of two in [128, 4096]"))
	}

	return &Extractor{
		sampleRate: sampleRate,
		frameLen:   frameLen,
		minFreq:    minFreq,
		maxFreq:    maxFreq,
		window:     NewHammingWindow(int(frameLen)),
		fft:        fourier.NewFFT(int(frameLen)),
		windowed:   make([]float64, frameLen),
		spectrum:   make([]float64, frameLen/2+1),
	}, nil
}

type errStr string

func (e errStr) Error() string { return string(e) }

// NewHammingWindow precomputes an n-sample Hamming window. Exported so
// callers can verify an Extractor's window is built once at construction
// and reused across Process calls rather than recomputed per frame.
func NewHammingWindow(n int) []float64 {
	window := make([]float64, n)
	for i := range window {
		window[i] = 0.53836 - 0.46164*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return window
}

// FrameLength returns the frame length this Extractor was built for.
func (e *Extractor) FrameLength() uint32 { return e.frameLen }

// Process computes the MFCC vector for one frame of e.FrameLength() samples.
func (e *Extractor) Process(frame []float32) whistler.FeatureVector {
	for i, s := range frame {
		e.windowed[i] = float64(s) * e.window[i]
	}

	coeffs := e.fft.Coefficients(nil, e.windowed)

	n := float64(e.frameLen)
	for k := range e.spectrum {
		re := real(coeffs[k])
		im := imag(coeffs[k])
		mag2 := re*re + im*im
		if mag2 != 0.0 {
			e.spectrum[k] = clamp(math.Log10(math.Sqrt(mag2/(n*n))), -500.0, math.MaxFloat64)
		} else {
			e.spectrum[k] = -500.0
		}
	}

	bins := e.melBins()

	var mfcc whistler.FeatureVector
	dct(bins, mfcc[:])
	return mfcc
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mel(f float64) float64 {
	return 1127.014048 * math.Log(1+f/700.0)
}

// melBins sequentially assigns FFT bins 0..frameLen/2 into 32 mel buckets,
// averaging the accumulated log-magnitudes in each bucket.
func (e *Extractor) melBins() []float64 {
	sr := float64(e.sampleRate)
	n := float64(e.frameLen)
	nyquist := e.frameLen / 2

	var startM float64
	if e.minFreq > 0 {
		startM = mel(clamp(float64(e.minFreq)-sr/n, 0, sr/2))
	}
	var stopM float64
	if e.maxFreq > 0 {
		stopM = mel(clamp(float64(e.maxFreq)+sr/n, 0, sr/2))
	} else {
		stopM = mel(sr / 2)
	}
	step := (stopM - startM) / float64(numBins)

	bins := make([]float64, numBins)
	i := 0
	for bin := 0; bin < numBins; bin++ {
		threshold := startM + step*float64(bin+1)
		count := 0
		for i <= int(nyquist) {
			freq := (float64(i) * (sr / 2)) / float64(nyquist)
			if mel(freq) > threshold {
				break
			}
			bins[bin] += e.spectrum[i]
			count++
			i++
		}
		if count != 0 {
			bins[bin] /= float64(count)
		}
	}
	return bins
}

// dct applies the Ooura-style DCT-II (ddct with isgn=-1): out[k] = 2 *
// sum_j in[j] * cos(pi*(2j+1)*k / (2n)).
func dct(in, out []float64) {
	n := len(in)
	for k := 0; k < n; k++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += in[j] * math.Cos(math.Pi*float64(2*j+1)*float64(k)/float64(2*n))
		}
		out[k] = 2 * sum
	}
}
