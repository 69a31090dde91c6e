package identifier

import (
	"testing"

	"github.com/sdroege/whistler"
	"github.com/sdroege/whistler/classifier"
	"github.com/sdroege/whistler/pattern"
)

func testPattern(t *testing.T, sampleRate uint32) *pattern.Pattern {
	t.Helper()
	c, err := classifier.NewSeeded("WhsNNClassifier_32_16_1", 1)
	if err != nil {
		t.Fatalf("NewSeeded failed: %v", err)
	}
	var vec whistler.FeatureVector
	pat, err := c.Learn([]whistler.ResultValue{{Label: 0, Vec: vec}}, 0.0, 0, 0, sampleRate)
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	return pat
}

func TestNewRejectsSampleRateMismatch(t *testing.T) {
	pat := testPattern(t, 44100)
	if _, err := New(8000, 256, 1, 20, pat); err == nil {
		t.Fatal("expected IncompatiblePattern error for mismatched sample rate")
	}
}

func TestNewAcceptsRateAgnosticPattern(t *testing.T) {
	pat := testPattern(t, 0)
	if _, err := New(8000, 256, 1, 20, pat); err != nil {
		t.Fatalf("New rejected a rate-agnostic (sample_rate == 0) pattern: %v", err)
	}
}

func TestSilentFrameFastPath(t *testing.T) {
	pat := testPattern(t, 44100)
	id, err := New(44100, 256, 1, 20, pat)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	silent := make([]float32, 256)
	res, err := id.Process(silent, ModeClassify)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Score != 0 || res.Angle != 0 {
		t.Errorf("silent frame result = %+v, want zero Result", res)
	}
}

func TestSilentFramesDoNotWashOutHistory(t *testing.T) {
	pat := testPattern(t, 44100)
	id, err := New(44100, 256, 1, 20, pat)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	loud := make([]float32, 256)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 0.8
		} else {
			loud[i] = -0.8
		}
	}

	// Warm up the 10-entry rolling history entirely with the loud frame's
	// raw score, so the smoothed output stabilizes at that value.
	var res whistler.Result
	var err2 error
	for i := 0; i < historyLen; i++ {
		res, err2 = id.Process(loud, ModeClassify)
		if err2 != nil {
			t.Fatalf("Process failed: %v", err2)
		}
	}
	wantScore := res.Score

	silent := make([]float32, 256)
	for i := 0; i < 10; i++ {
		if _, err2 = id.Process(silent, ModeClassify); err2 != nil {
			t.Fatalf("Process failed: %v", err2)
		}
	}

	// Silent frames return a zeroed Result (not the smoothed history), but
	// the rolling history itself must be untouched: the same loud frame
	// processed again should reproduce the pre-silence smoothed score.
	res, err2 = id.Process(loud, ModeClassify)
	if err2 != nil {
		t.Fatalf("Process failed: %v", err2)
	}
	if res.Score != wantScore {
		t.Errorf("history was washed out by silent frames: got %v, want %v", res.Score, wantScore)
	}
}

func TestLocalizeRequiresStereo(t *testing.T) {
	pat := testPattern(t, 44100)
	id, err := New(44100, 256, 1, 20, pat)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	loud := make([]float32, 256)
	loud[0] = 1
	if _, err := id.Process(loud, ModeLocalize); err == nil {
		t.Fatal("expected error requesting localization on a mono identifier")
	}
}
