package whistler

import (
	"errors"
	"testing"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(InvalidParam, "test.Op", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}

	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("errors.As failed to find *Error")
	}
	if werr.Kind != InvalidParam {
		t.Errorf("Kind = %v, want %v", werr.Kind, InvalidParam)
	}
	if werr.Op != "test.Op" {
		t.Errorf("Op = %q, want %q", werr.Op, "test.Op")
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{InvalidParam, "InvalidParam"},
		{InvalidFormat, "InvalidFormat"},
		{Io, "Io"},
		{IncompatiblePattern, "IncompatiblePattern"},
		{Unsupported, "Unsupported"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%v.String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}

func TestSeparatorLabel(t *testing.T) {
	rv := ResultValue{Label: SeparatorLabel}
	if !rv.IsSeparator() {
		t.Error("ResultValue with SeparatorLabel should report IsSeparator() == true")
	}

	normal := ResultValue{Label: 1}
	if normal.IsSeparator() {
		t.Error("ResultValue with a non-negative label should not report IsSeparator()")
	}
}

func TestFeatureVectorCopiesByValue(t *testing.T) {
	var a FeatureVector
	a[0] = 1.0
	b := a
	b[0] = 2.0

	if a[0] == b[0] {
		t.Error("FeatureVector assignment should copy by value, not alias")
	}
}
