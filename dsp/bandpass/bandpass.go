// Package bandpass implements the eighth-order Chebyshev type-I band-pass
// IIR filter used to constrain incoming audio to the whistle-relevant band
// before feature extraction.
//
// Design follows "The Scientist and Engineer's Guide to DSP", ch. 20: each
// pair of poles becomes a biquad via the bilinear Z-transform, biquads are
// cascaded by polynomial multiplication, the cascade is substituted from
// low-pass-at-unity to band-pass, and the result is normalized to unity
// gain at the band's center frequency.
package bandpass

import (
	"math"
	"math/cmplx"

	"github.com/sdroege/whistler"
)

const poles = 8 // fixed per spec; eighth-order cascade of four biquads

// Bandpass holds the cascaded direct-form-I IIR coefficients and one circular delay line per channel.
type Bandpass struct {
	a []float64 // feed-forward coefficients, len poles+1
	b []float64 // feed-back coefficients, len poles+1

	channels []channelState
}

type channelState struct {
	x    []float64 // input delay line, len poles+1
	xPos int
	y    []float64 // output delay line, len poles+1
	yPos int
}

// New builds a Bandpass for the given sample rate, channel count and
// [minFreq, maxFreq) band. It fails with whistler.InvalidParam if
// sampleRate == 0, channels == 0, or the band is not 0 <= minFreq <
// maxFreq <= sampleRate/2.
func New(sampleRate, channels, minFreq, maxFreq uint32) (*Bandpass, error) {
	if sampleRate == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "bandpass.New", errInvalid("sample_rate must be > 0"))
	}
	if channels == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "bandpass.New", errInvalid("channels must be >= 1"))
	}
	if !(minFreq < maxFreq && maxFreq <= sampleRate/2) {
		return nil, whistler.NewError(whistler.InvalidParam, "bandpass.New", errInvalid("min_freq < max_freq <= sample_rate/2 required"))
	}

	a, b := designCascade(float64(sampleRate), float64(minFreq), float64(maxFreq))

	bp := &Bandpass{
		a:        a,
		b:        b,
		channels: make([]channelState, channels),
	}
	for i := range bp.channels {
		bp.channels[i] = channelState{
			x: make([]float64, poles+1),
			y: make([]float64, poles+1),
		}
	}
	return bp, nil
}

type invalidParamErr string

func (e invalidParamErr) Error() string { return string(e) }
func errInvalid(msg string) error      { return invalidParamErr(msg) }

// designCascade computes the final a/b coefficient arrays (length poles+1
// each) for a poles-order Chebyshev type-I band-pass filter, 0dB ripple.
func designCascade(sampleRate, minFreq, maxFreq float64) (a, b []float64) {
	np := poles / 4 // number of biquads

	// a/b accumulate the cascade in a 5-wide window [i-4..i], seeded with
	// a[4]=b[4]=1 representing the identity transfer function.
	acc := make([]float64, poles+5)
	bcc := make([]float64, poles+5)
	acc[4] = 1.0
	bcc[4] = 1.0

	for p := 1; p <= np; p++ {
		a0, a1, a2, a3, a4, b1, b2, b3, b4 := biquadCoefficients(p, np, minFreq, maxFreq, sampleRate)

		ta := make([]float64, poles+5)
		tb := make([]float64, poles+5)
		copy(ta, acc)
		copy(tb, bcc)

		for i := 4; i < poles+5; i++ {
			acc[i] = a0*ta[i] + a1*ta[i-1] + a2*ta[i-2] + a3*ta[i-3] + a4*ta[i-4]
			bcc[i] = tb[i] - b1*tb[i-1] - b2*tb[i-2] - b3*tb[i-3] - b4*tb[i-4]
		}
	}

	a = make([]float64, poles+1)
	b = make([]float64, poles+1)
	for i := 0; i <= poles; i++ {
		a[i] = acc[i+4]
		b[i] = -bcc[i+4]
	}
	b[0] = 0 // the current output has no feedback term

	w0 := 2 * math.Pi * (minFreq / sampleRate)
	w1 := 2 * math.Pi * (maxFreq / sampleRate)
	wc := (w0 + w1) / 2
	gain := evaluateGain(a, b, complex(math.Cos(wc), math.Sin(wc)))
	for i := range a {
		a[i] /= gain
	}
	return a, b
}

// biquadCoefficients computes the five feed-forward and four feed-back
// band-pass coefficients for the p-th pole pair of an np-biquad Chebyshev
// type-I (0dB ripple) low-pass-at-unity design, substituted to a band-pass
// around [minFreq, maxFreq].
func biquadCoefficients(p, np int, minFreq, maxFreq, sampleRate float64) (a0, a1, a2, a3, a4, b1, b2, b3, b4 float64) {
	angle := (math.Pi / 2.0) * float64(2*p-1) / float64(2*np)
	rp := -math.Sin(angle)
	ip := math.Cos(angle)

	// 0dB ripple: no ellipse warp, pole stays on the unit circle (type-I
	// with ripple==0 degenerates to a Butterworth pole placement).

	t := 2.0 * math.Tan(0.5)
	m := rp*rp + ip*ip
	d := 4.0 - 4.0*rp*t + m*t*t

	x0 := (t * t) / d
	x1 := 2.0 * x0
	x2 := x0
	y1 := (8.0 - 2.0*m*t*t) / d
	y2 := (-4.0 - 4.0*rp*t - m*t*t) / d

	w0 := 2.0 * math.Pi * (minFreq / sampleRate)
	w1 := 2.0 * math.Pi * (maxFreq / sampleRate)

	a := math.Cos((w1+w0)/2.0) / math.Cos((w1-w0)/2.0)
	bcoef := math.Tan(0.5) / math.Tan((w1-w0)/2.0)

	alpha := (2.0 * a * bcoef) / (1.0 + bcoef)
	beta := (bcoef - 1.0) / (bcoef + 1.0)

	dd := 1.0 + beta*(y1-beta*y2)

	a0 = (x0 + beta*(-x1+beta*x2)) / dd
	a1 = (alpha * (-2.0*x0 + x1 + beta*x1 - 2.0*beta*x2)) / dd
	a2 = (-x1 - beta*beta*x1 + 2.0*beta*(x0+x2) + alpha*alpha*(x0-x1+x2)) / dd
	a3 = (alpha * (x1 + beta*(-2.0*x0+x1) - 2.0*x2)) / dd
	a4 = (beta*(beta*x0-x1) + x2) / dd
	b1 = (alpha * (2.0 + y1 + beta*y1 - 2.0*beta*y2)) / dd
	b2 = (-y1 - beta*beta*y1 - alpha*alpha*(1.0+y1-y2) + 2.0*beta*(-1.0+y2)) / dd
	b3 = (alpha * (y1 + beta*(2.0+y1) - 2.0*y2)) / dd
	b4 = (-beta*beta - beta*y1 + y2) / dd
	return
}

// evaluateGain evaluates |H(z)| for z on the unit circle via Horner-style
// complex polynomial evaluation of the a (numerator) and b (denominator,
// already sign-flipped to difference-equation form) coefficients.
func evaluateGain(a, b []float64, z complex128) float64 {
	var num, den complex128
	for i := len(a) - 1; i >= 0; i-- {
		num = num*z + complex(a[i], 0)
	}
	for i := len(b) - 1; i >= 0; i-- {
		den = den*z - complex(b[i], 0)
	}
	den += 1
	return cmplx.Abs(num / den)
}

// Process filters channels x frames of samples in place. Arithmetic is
// carried out in double precision even though the buffers are float32, per
// the runtime contract; the circular-buffer head advances after the new
// input sample is consumed so the next call sees it as history.
func (bp *Bandpass) Process(in [][]float32) {
	for c := range in {
		ctx := &bp.channels[c]
		for j, x0 := range in[c] {
			in[c][j] = float32(bp.step(ctx, float64(x0)))
		}
	}
}

func (bp *Bandpass) step(ctx *channelState, x0 float64) float64 {
	val := bp.a[0] * x0

	j := ctx.xPos
	for i := 1; i < len(bp.a); i++ {
		val += bp.a[i] * ctx.x[j]
		j--
		if j < 0 {
			j = len(bp.a) - 1
		}
	}

	j = ctx.yPos
	for i := 1; i < len(bp.b); i++ {
		val += bp.b[i] * ctx.y[j]
		j--
		if j < 0 {
			j = len(bp.b) - 1
		}
	}

	ctx.xPos++
	if ctx.xPos > len(bp.a)-1 {
		ctx.xPos = 0
	}
	ctx.x[ctx.xPos] = x0

	ctx.yPos++
	if ctx.yPos > len(bp.b)-1 {
		ctx.yPos = 0
	}
	ctx.y[ctx.yPos] = val

	return val
}

// Channels returns the number of channels this filter was constructed for.
func (bp *Bandpass) Channels() int { return len(bp.channels) }
