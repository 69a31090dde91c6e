package classifier

import (
	"math"
	"testing"

	"github.com/sdroege/whistler"
)

func TestNewUnknownTopology(t *testing.T) {
	if _, err := New("NoSuchTopology"); err == nil {
		t.Fatal("expected error for unknown topology")
	}
}

func TestForwardIsDeterministic(t *testing.T) {
	c, err := NewSeeded("WhsNNClassifier_32_16_1", 42)
	if err != nil {
		t.Fatalf("NewSeeded failed: %v", err)
	}

	var vec whistler.FeatureVector
	for i := range vec {
		vec[i] = float64(i) / 32.0
	}

	a := c.Process(vec)
	b := c.Process(vec)
	if a != b {
		t.Errorf("Process not deterministic: %v != %v", a, b)
	}
	if math.IsNaN(a) || a <= 0 || a >= 1 {
		t.Errorf("Process output %v not in (0,1)", a)
	}
}

func TestFromPatternRoundtrip(t *testing.T) {
	c1, err := NewSeeded("WhsNNClassifier_32_16_1", 7)
	if err != nil {
		t.Fatalf("NewSeeded failed: %v", err)
	}

	var vals []whistler.ResultValue
	var vec whistler.FeatureVector
	for i := range vec {
		vec[i] = 0.1 * float64(i)
	}
	vals = append(vals, whistler.ResultValue{Label: 1, Vec: vec})

	pat, err := c1.Learn(vals, 0.0, 0, 0, 44100)
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}

	c2, err := NewFromPattern("WhsNNClassifier_32_16_1", pat)
	if err != nil {
		t.Fatalf("NewFromPattern failed: %v", err)
	}

	want := c1.Process(vec)
	got := c2.Process(vec)
	if math.Abs(want-got) > 1e-6 {
		t.Errorf("reconstructed classifier output %v, want %v", got, want)
	}
}

func TestLearnRejectsAllNegativeLabels(t *testing.T) {
	c, err := New("WhsNNClassifier_32_16_1")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	vals := []whistler.ResultValue{{Label: whistler.SeparatorLabel}}
	if _, err := c.Learn(vals, 0.9, 0, 0, 44100); err == nil {
		t.Fatal("expected error when no labeled samples are given")
	}
}

func TestLearnConverges(t *testing.T) {
	c, err := NewSeeded("WhsNNClassifier_32_16_1", 1)
	if err != nil {
		t.Fatalf("NewSeeded failed: %v", err)
	}

	var zero, one whistler.FeatureVector
	for i := range one {
		one[i] = 1.0
	}

	vals := []whistler.ResultValue{
		{Label: 0, Vec: zero},
		{Label: 1, Vec: one},
	}

	pat, err := c.Learn(vals, 1.0, 0, 0, 44100)
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}

	trained, err := NewFromPattern("WhsNNClassifier_32_16_1", pat)
	if err != nil {
		t.Fatalf("NewFromPattern failed: %v", err)
	}

	if out := trained.Process(zero); out >= 0.5 {
		t.Errorf("trained classifier on zero-labeled sample = %v, want < 0.5", out)
	}
	if out := trained.Process(one); out < 0.5 {
		t.Errorf("trained classifier on one-labeled sample = %v, want >= 0.5", out)
	}
}

func TestRegisterTopology(t *testing.T) {
	RegisterTopology("test_custom_topology", []int{8}, 1e-2)
	if _, err := New("test_custom_topology"); err != nil {
		t.Errorf("registered topology rejected: %v", err)
	}
}
