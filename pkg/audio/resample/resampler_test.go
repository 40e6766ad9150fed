// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation and fixed-size frame filling
package resample

import (
	"testing"
)

func ramp(n int, step int32) []int32 {
	in := make([]int32, n)
	for i := range in {
		in[i] = int32(i) * step
	}
	return in
}

func TestResampleDirections(t *testing.T) {
	tests := []struct {
		name    string
		in, out int
	}{
		{"upsample", 44100, 48000},
		{"downsample", 48000, 44100},
		{"halve", 44100, 22050},
		{"large ratio down", 192000, 48000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.in, tt.out, 2)
			input := ramp(200, 100)
			expected := int(float64(len(input)) * float64(tt.out) / float64(tt.in))
			output := make([]int32, expected)

			n := r.Resample(input, output)
			if n == 0 {
				t.Fatal("resampler produced no output")
			}
			if n < expected-10 || n > expected {
				t.Errorf("expected ~%d samples, got %d", expected, n)
			}
		})
	}
}

func TestResampleSameRate(t *testing.T) {
	r := New(48000, 48000, 1)
	input := ramp(100, 10)
	output := make([]int32, len(input))

	n := r.Resample(input, output)
	for i := 0; i < n; i++ {
		if output[i] != input[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, input[i], output[i])
		}
	}
}

func TestResampleKeepsChannelsApart(t *testing.T) {
	r := New(44100, 22050, 2)
	input := make([]int32, 40)
	for i := 0; i < 20; i++ {
		input[i*2] = 1000
		input[i*2+1] = -1000
	}
	output := make([]int32, 20)

	n := r.Resample(input, output)
	for i := 0; i < n/2; i++ {
		if output[i*2] != 1000 || output[i*2+1] != -1000 {
			t.Fatalf("frame %d mixed channels: %d %d", i, output[i*2], output[i*2+1])
		}
	}
}

func TestFillHoldsLastFrame(t *testing.T) {
	r := New(8000, 16000, 1)
	input := []int32{0, 10, 20, 30}
	output := make([]int32, 12)

	r.Fill(input, output)
	if output[len(output)-1] != 30 {
		t.Errorf("expected held value 30, got %d", output[len(output)-1])
	}
	if output[0] != 0 || output[1] != 5 {
		t.Errorf("expected interpolation 0,5 got %d,%d", output[0], output[1])
	}
}

func TestResampleEmptyInput(t *testing.T) {
	r := New(44100, 48000, 2)
	if n := r.Resample(nil, make([]int32, 100)); n != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", n)
	}
}

func TestMatchesAndReset(t *testing.T) {
	r := New(44100, 22050, 2)
	if !r.Matches(44100, 22050, 2) || r.Matches(44100, 22050, 1) {
		t.Error("matches reported wrong parameters")
	}
	r.Resample(ramp(10, 1), make([]int32, 4))
	r.Reset()
	if r.position != 0 || r.lastSample[0] != 0 {
		t.Error("reset left state behind")
	}
}
