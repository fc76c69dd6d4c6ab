package lights

import (
	"strconv"
	"strings"
	"testing"
)

func TestEncodeDutyCycle(t *testing.T) {
	tests := []struct {
		brightness int
		want       string
	}{
		{0, "0,0,0,0,0,0,0,0"},
		{255, "0,12,25,37,50,72,85,100"},
		{128, "0,6,12,18,25,36,42,50"},
		{1, "0,0,0,0,0,0,0,0"},
	}
	for _, tt := range tests {
		if got := EncodeDutyCycle(tt.brightness); got != tt.want {
			t.Errorf("EncodeDutyCycle(%d) = %q, want %q", tt.brightness, got, tt.want)
		}
	}
}

func TestEncodeDutyCycle_AllBrightness(t *testing.T) {
	for b := 0; b <= 255; b++ {
		encoded := EncodeDutyCycle(b)
		if strings.HasSuffix(encoded, ",") {
			t.Fatalf("EncodeDutyCycle(%d) has trailing separator: %q", b, encoded)
		}
		terms := strings.Split(encoded, ",")
		if len(terms) != RampSize {
			t.Fatalf("EncodeDutyCycle(%d) has %d terms, want %d", b, len(terms), RampSize)
		}

		prev := -1
		for i, term := range terms {
			v, err := strconv.Atoi(term)
			if err != nil {
				t.Fatalf("EncodeDutyCycle(%d) term %d = %q is not an integer", b, i, term)
			}
			if want := brightnessRamp[i] * b / 255; v != want {
				t.Errorf("EncodeDutyCycle(%d) term %d = %d, want %d", b, i, v, want)
			}
			if v < prev {
				t.Errorf("EncodeDutyCycle(%d) decreases at term %d", b, i)
			}
			prev = v
		}
	}
}
