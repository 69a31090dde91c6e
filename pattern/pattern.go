// Package pattern implements the WHSP persisted-model file format: a
// classifier's serialized weights plus the frequency band and sample rate
// it was trained for.
package pattern

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sdroege/whistler"
)

const magic = "WHSP"

// Pattern is an immutable holder for a classifier's serialized weights and
// the metadata needed to verify it is compatible with a given runtime
// configuration. Once loaded or returned from a Classifier's Learn, it is
// never mutated; New deep-copies classifierData so the caller's buffer can
// be reused or discarded freely.
type Pattern struct {
	classifierName string
	minFreq        uint32
	maxFreq        uint32
	sampleRate     uint32
	classifierData []byte
}

// New builds a Pattern from a classifier name and its serialized weight
// data. The data is copied so the caller may reuse its buffer.
func New(classifierName string, minFreq, maxFreq, sampleRate uint32, classifierData []byte) *Pattern {
	data := make([]byte, len(classifierData))
	copy(data, classifierData)
	return &Pattern{
		classifierName: classifierName,
		minFreq:        minFreq,
		maxFreq:        maxFreq,
		sampleRate:     sampleRate,
		classifierData: data,
	}
}

// ClassifierName returns the exact topology name string this pattern was
// serialized for (e.g. "WhsNNClassifier_32_32_1").
func (p *Pattern) ClassifierName() string { return p.classifierName }

// MinFreq returns the lower edge of the band this pattern was trained for.
func (p *Pattern) MinFreq() uint32 { return p.minFreq }

// MaxFreq returns the upper edge of the band this pattern was trained for.
func (p *Pattern) MaxFreq() uint32 { return p.maxFreq }

// SampleRate returns the sample rate this pattern was trained at.
func (p *Pattern) SampleRate() uint32 { return p.sampleRate }

// ClassifierData returns the opaque weight blob, as a soft sanity check
// keyed by the caller's expected classifier name: it fails with
// whistler.IncompatiblePattern if name does not match the pattern's own
// classifier name.
func (p *Pattern) ClassifierData(name string) ([]byte, error) {
	if name != p.classifierName {
		return nil, whistler.NewError(whistler.IncompatiblePattern, "Pattern.ClassifierData",
			fmt.Errorf("pattern is for classifier %q, not %q", p.classifierName, name))
	}
	data := make([]byte, len(p.classifierData))
	copy(data, p.classifierData)
	return data, nil
}

// Load reads a Pattern from a WHSP file at path.
func Load(path string) (*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, whistler.NewError(whistler.Io, "pattern.Load", err)
	}
	return Decode(bytes.NewReader(data))
}

// Save writes p to path in WHSP format.
func (p *Pattern) Save(path string) error {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return whistler.NewError(whistler.Io, "Pattern.Save", err)
	}
	return nil
}

// Encode writes p's WHSP representation to w.
func (p *Pattern) Encode(w io.Writer) error {
	nameBytes := append([]byte(p.classifierName), 0)

	if _, err := w.Write([]byte(magic)); err != nil {
		return whistler.NewError(whistler.Io, "Pattern.Encode", err)
	}
	for _, v := range []uint32{p.minFreq, p.maxFreq, p.sampleRate, uint32(len(nameBytes))} {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return whistler.NewError(whistler.Io, "Pattern.Encode", err)
		}
	}
	if _, err := w.Write(nameBytes); err != nil {
		return whistler.NewError(whistler.Io, "Pattern.Encode", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(p.classifierData))); err != nil {
		return whistler.NewError(whistler.Io, "Pattern.Encode", err)
	}
	if _, err := w.Write(p.classifierData); err != nil {
		return whistler.NewError(whistler.Io, "Pattern.Encode", err)
	}
	return nil
}

// Decode reads a Pattern's WHSP representation from r.
func Decode(r io.Reader) (*Pattern, error) {
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, whistler.NewError(whistler.InvalidFormat, "pattern.Decode", fmt.Errorf("short read of magic: %w", err))
	}
	if string(gotMagic[:]) != magic {
		return nil, whistler.NewError(whistler.InvalidFormat, "pattern.Decode", fmt.Errorf("bad magic %q", gotMagic))
	}

	var minFreq, maxFreq, sampleRate, nameLen uint32
	for _, v := range []*uint32{&minFreq, &maxFreq, &sampleRate, &nameLen} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return nil, whistler.NewError(whistler.InvalidFormat, "pattern.Decode", fmt.Errorf("short read of header: %w", err))
		}
	}
	if nameLen == 0 {
		return nil, whistler.NewError(whistler.InvalidFormat, "pattern.Decode", fmt.Errorf("name_len must be > 0"))
	}

	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return nil, whistler.NewError(whistler.InvalidFormat, "pattern.Decode", fmt.Errorf("short read of classifier name: %w", err))
	}
	name := string(bytes.TrimRight(nameBytes, "\x00"))

	var dataLen uint32
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return nil, whistler.NewError(whistler.InvalidFormat, "pattern.Decode", fmt.Errorf("short read of data_len: %w", err))
	}
	if dataLen == 0 {
		return nil, whistler.NewError(whistler.InvalidFormat, "pattern.Decode", fmt.Errorf("data_len must be > 0"))
	}

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, whistler.NewError(whistler.InvalidFormat, "pattern.Decode", fmt.Errorf("short read of classifier data: %w", err))
	}

	return &Pattern{
		classifierName: name,
		minFreq:        minFreq,
		maxFreq:        maxFreq,
		sampleRate:     sampleRate,
		classifierData: data,
	}, nil
}
