// ABOUTME: Tests for sample value helpers
// ABOUTME: Covers 16-bit widening, bit depth scaling and clamping
package audio

import "testing"

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected int32
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"negative", -100, -100 << 8},
		{"max", 32767, 32767 << 8},
		{"min", -32768, -32768 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SampleFromInt16(tt.input); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
			if back := SampleToInt16(SampleFromInt16(tt.input)); back != tt.input {
				t.Errorf("round trip: expected %d, got %d", tt.input, back)
			}
		})
	}
}

func TestScaleToBitDepth(t *testing.T) {
	tests := []struct {
		name     string
		sample   int32
		depth    int
		expected int32
	}{
		{"16 bit", 1000, 16, 1000 << 8},
		{"24 bit", 1000, 24, 1000},
		{"32 bit", 1000 << 8, 32, 1000},
		{"8 bit negative", -3, 8, -3 << 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScaleToBitDepth(tt.sample, tt.depth); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestClamp24(t *testing.T) {
	if Clamp24(Max24Bit+10) != Max24Bit {
		t.Error("expected clamp to max")
	}
	if Clamp24(Min24Bit-10) != Min24Bit {
		t.Error("expected clamp to min")
	}
	if Clamp24(42) != 42 {
		t.Error("expected passthrough")
	}
}
