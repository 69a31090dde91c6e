// Package traininglabels parses and writes the WHST ASCII training-label
// file format: a header line followed by one LABEL=START,STOP record per
// line, sorted and non-overlapping.
package traininglabels

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sdroege/whistler"
)

const header = "WHST"

// SkipLabel is the label value excluded from Save (spec-reserved "don't
// train on this span" marker).
const SkipLabel int32 = -1

// Load reads a WHST file at path, returning its records in file order.
// Fails with whistler.InvalidFormat if the header is missing, a line is
// malformed, a record has start > stop, or records are not sorted so that
// the previous record's stop <= the next record's start.
func Load(path string) ([]whistler.TrainingLabel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, whistler.NewError(whistler.Io, "traininglabels.Load", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses WHST records from r.
func Decode(r io.Reader) ([]whistler.TrainingLabel, error) {
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		return nil, whistler.NewError(whistler.InvalidFormat, "traininglabels.Decode", fmt.Errorf("empty file, expected %q header", header))
	}
	if sc.Text() != header {
		return nil, whistler.NewError(whistler.InvalidFormat, "traininglabels.Decode", fmt.Errorf("bad header %q", sc.Text()))
	}

	var records []whistler.TrainingLabel
	var prevStop uint64
	have := false

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}

		eq := strings.IndexByte(line, '=')
		comma := strings.IndexByte(line, ',')
		if eq < 0 || comma < 0 || comma < eq {
			return nil, whistler.NewError(whistler.InvalidFormat, "traininglabels.Decode", fmt.Errorf("malformed record %q", line))
		}

		label, err := strconv.ParseInt(line[:eq], 10, 32)
		if err != nil {
			return nil, whistler.NewError(whistler.InvalidFormat, "traininglabels.Decode", fmt.Errorf("malformed label in %q: %w", line, err))
		}
		start, err := strconv.ParseUint(line[eq+1:comma], 10, 64)
		if err != nil {
			return nil, whistler.NewError(whistler.InvalidFormat, "traininglabels.Decode", fmt.Errorf("malformed start in %q: %w", line, err))
		}
		stop, err := strconv.ParseUint(line[comma+1:], 10, 64)
		if err != nil {
			return nil, whistler.NewError(whistler.InvalidFormat, "traininglabels.Decode", fmt.Errorf("malformed stop in %q: %w", line, err))
		}

		if start > stop {
			return nil, whistler.NewError(whistler.InvalidFormat, "traininglabels.Decode", fmt.Errorf("record %q has start > stop", line))
		}
		if have && prevStop > start {
			return nil, whistler.NewError(whistler.InvalidFormat, "traininglabels.Decode", fmt.Errorf("record %q overlaps previous record (prev stop %d)", line, prevStop))
		}

		records = append(records, whistler.TrainingLabel{Label: int32(label), StartSample: start, StopSample: stop})
		prevStop = stop
		have = true
	}
	if err := sc.Err(); err != nil {
		return nil, whistler.NewError(whistler.Io, "traininglabels.Decode", err)
	}

	return records, nil
}

// Save writes records to path in WHST format, skipping any record whose
// label equals SkipLabel.
func Save(path string, records []whistler.TrainingLabel) error {
	f, err := os.Create(path)
	if err != nil {
		return whistler.NewError(whistler.Io, "traininglabels.Save", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := Encode(w, records); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return whistler.NewError(whistler.Io, "traininglabels.Save", err)
	}
	return nil
}

// Encode writes records to w in WHST format, skipping any record whose
// label equals SkipLabel.
func Encode(w io.Writer, records []whistler.TrainingLabel) error {
	if _, err := fmt.Fprintln(w, header); err != nil {
		return whistler.NewError(whistler.Io, "traininglabels.Encode", err)
	}
	for _, r := range records {
		if r.Label == SkipLabel {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d=%d,%d\n", r.Label, r.StartSample, r.StopSample); err != nil {
			return whistler.NewError(whistler.Io, "traininglabels.Encode", err)
		}
	}
	return nil
}
