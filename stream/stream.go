// Package stream adapts a push-based byte stream (as delivered by a
// buffer-oriented host) into fixed-size float32 frames dispatched to a
// callback, tracking a monotonically advancing timestamp and handling
// stream-reset events.
package stream

import (
	"encoding/binary"
	"math"

	"github.com/sdroege/whistler"
)

// FrameFunc is called once per dispatched frame, with the frame's
// timestamp in seconds and its decoded float32 samples (interleaved, if
// channels > 1).
type FrameFunc func(timestamp float64, frame []float32) error

// Adapter accumulates pushed bytes and, once enough have arrived, decodes
// and dispatches fixed-size frames in FIFO order. It is not safe for
// concurrent use.
type Adapter struct {
	sampleRate uint32
	frameLen   uint32
	channels   int
	wantBytes  int

	buf       []byte
	timestamp float64

	onFrame FrameFunc
}

// New builds an Adapter that decodes little-endian float32 samples,
// dispatching frames of frameLen*channels samples (wantBytes =
// 4*frameLen*channels) to onFrame as they become available. sampleRate
// drives the per-frame timestamp advance of frameLen/sampleRate seconds.
func New(sampleRate, frameLen uint32, channels int, onFrame FrameFunc) (*Adapter, error) {
	if sampleRate == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "stream.New", errStr("sample_rate must be > 0"))
	}
	if frameLen == 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "stream.New", errStr("frame_length must be > 0"))
	}
	if channels <= 0 {
		return nil, whistler.NewError(whistler.InvalidParam, "stream.New", errStr("channels must be > 0"))
	}
	if onFrame == nil {
		return nil, whistler.NewError(whistler.InvalidParam, "stream.New", errStr("onFrame must not be nil"))
	}

	return &Adapter{
		sampleRate: sampleRate,
		frameLen:   frameLen,
		channels:   channels,
		wantBytes:  4 * int(frameLen) * channels,
		onFrame:    onFrame,
	}, nil
}

type errStr string

func (e errStr) Error() string { return string(e) }

// Push appends newly arrived bytes to the adapter's internal buffer and
// dispatches as many complete frames as are now available, in order.
func (a *Adapter) Push(data []byte) error {
	a.buf = append(a.buf, data...)

	for len(a.buf) >= a.wantBytes {
		frame := make([]float32, int(a.frameLen)*a.channels)
		for i := range frame {
			bits := binary.LittleEndian.Uint32(a.buf[4*i : 4*i+4])
			frame[i] = math.Float32frombits(bits)
		}

		if err := a.onFrame(a.timestamp, frame); err != nil {
			return err
		}

		a.timestamp += float64(a.frameLen) / float64(a.sampleRate)
		a.buf = a.buf[a.wantBytes:]
	}
	return nil
}

// Reset clears any partially-accumulated bytes and resets the timestamp to
// zero, for a stream-reset (seek/discontinuity) event. The caller is
// responsible for reconstructing its Identifier/Learner before the next
// Push, since any state carried in bandpass delay lines or rolling
// histories is no longer valid across the discontinuity.
func (a *Adapter) Reset() {
	a.buf = a.buf[:0]
	a.timestamp = 0
}

// WantBytes returns the number of bytes Push needs accumulated before it
// dispatches the next frame.
func (a *Adapter) WantBytes() int { return a.wantBytes }
