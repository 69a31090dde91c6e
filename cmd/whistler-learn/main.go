// Command whistler-learn trains a classifier from a saved learner state
// file and writes the resulting pattern.
//
// Usage: whistler-learn [CLASSIFIER] RATE IN-FILE OUT-FILE
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/sdroege/whistler/learner"
	"github.com/sdroege/whistler/pattern"
)

const usage = "usage: whistler-learn [-frame-length N] [CLASSIFIER] RATE IN-FILE OUT-FILE"

// defaultFrameLength is used to reconstruct the Extractor embedded in the
// Learner; the WHSL state file does not itself record a frame length, so
// training-time replays of a previously recorded session must agree with
// whatever length produced it.
const defaultFrameLength = 2048

func main() {
	frameLength := flag.Uint("frame-length", defaultFrameLength, "frame length used to record IN-FILE")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	os.Exit(run(*frameLength, flag.Args()))
}

func run(frameLength uint, args []string) int {
	var classifierName, rateArg, inFile, outFile string

	switch len(args) {
	case 3:
		rateArg, inFile, outFile = args[0], args[1], args[2]
	case 4:
		classifierName, rateArg, inFile, outFile = args[0], args[1], args[2], args[3]
	default:
		fmt.Fprintln(os.Stderr, usage)
		return -1
	}

	rate, err := strconv.ParseFloat(rateArg, 64)
	if err != nil || rate < 0 || rate > 1 {
		log.Printf("[LEARN] invalid rate %q: must be a float in [0, 1]", rateArg)
		return -4
	}

	var existing *pattern.Pattern
	if p, err := pattern.Load(outFile); err == nil {
		existing = p
		if classifierName == "" {
			classifierName = p.ClassifierName()
		}
	}

	l, err := learner.NewFromState(classifierName, 0, uint32(frameLength), inFile, existing)
	if err != nil {
		log.Printf("[LEARN] failed to load learner state from %s: %v", inFile, err)
		return -2
	}

	pat, err := l.GeneratePattern(rate)
	if err != nil {
		log.Printf("[LEARN] failed to generate pattern at target rate %v: %v", rate, err)
		return -3
	}

	if err := pat.Save(outFile); err != nil {
		log.Printf("[LEARN] failed to save pattern to %s: %v", outFile, err)
		return -3
	}

	log.Printf("[LEARN] trained %q on %d samples, saved to %s", pat.ClassifierName(), l.SampleCount(), outFile)
	return 0
}
