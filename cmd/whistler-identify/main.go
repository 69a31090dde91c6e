// Command whistler-identify drives a WAV file through an Identifier frame
// by frame and prints one JSON line per frame, for manual smoke-testing
// outside of a streaming host.
//
// Usage: whistler-identify -pattern PATTERN.whsp INPUT.wav
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sdroege/whistler/identifier"
	"github.com/sdroege/whistler/pattern"
	"github.com/sdroege/whistler/stream"
)

const frameLength = 2048

type frameResult struct {
	T     float64 `json:"t"`
	Score float64 `json:"score"`
	Angle float64 `json:"angle"`
}

func main() {
	patternPath := flag.String("pattern", "", "path to a WHSP pattern file")
	distance := flag.Float64("mic-distance-cm", 20.0, "stereo microphone spacing, in centimeters")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: whistler-identify -pattern PATTERN.whsp INPUT.wav")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *patternPath == "" || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*patternPath, flag.Arg(0), *distance); err != nil {
		log.Fatalf("[IDENTIFY] %v", err)
	}
}

func run(patternPath, wavPath string, distanceCm float64) error {
	pat, err := pattern.Load(patternPath)
	if err != nil {
		return fmt.Errorf("loading pattern: %w", err)
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", wavPath, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s is not a valid wav file", wavPath)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", wavPath, err)
	}

	sampleRate := uint32(buf.Format.SampleRate)
	channels := buf.Format.NumChannels

	id, err := identifier.New(sampleRate, frameLength, channels, distanceCm, pat)
	if err != nil {
		return fmt.Errorf("constructing identifier: %w", err)
	}

	mode := identifier.ModeClassify
	if channels == 2 {
		mode |= identifier.ModeLocalize
	}

	enc := json.NewEncoder(os.Stdout)

	adapter, err := stream.New(sampleRate, frameLength, channels, func(t float64, frame []float32) error {
		res, err := id.Process(frame, mode)
		if err != nil {
			return err
		}
		return enc.Encode(frameResult{T: t, Score: res.Score, Angle: res.Angle})
	})
	if err != nil {
		return fmt.Errorf("constructing stream adapter: %w", err)
	}

	return pushAll(adapter, buf)
}

// pushAll feeds buf's normalized samples through adapter as little-endian
// float32 bytes, matching the wire format stream.Adapter expects.
func pushAll(adapter *stream.Adapter, buf *audio.IntBuffer) error {
	data := make([]byte, 4*len(buf.Data))
	for i, s := range buf.Data {
		f := normalize(s, buf.SourceBitDepth)
		binary.LittleEndian.PutUint32(data[4*i:4*i+4], math.Float32bits(f))
	}
	return adapter.Push(data)
}

func normalize(sample int, bitDepth int) float32 {
	switch bitDepth {
	case 32:
		return float32(sample) / float32(0x7FFFFFFF)
	case 24:
		return float32(sample) / float32(0x7FFFFF)
	case 16:
		return float32(sample) / float32(0x7FFF)
	case 8:
		return float32(sample) / float32(0x7F)
	default:
		return 0
	}
}
