// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Used by the layered encoder when it steps down the quality ladder
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastSample []int32 // one sample per channel
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastSample: make([]int32, channels),
	}
}

// Matches reports whether the resampler converts between these parameters
func (r *Resampler) Matches(inputRate, outputRate, channels int) bool {
	return r.inputRate == inputRate && r.outputRate == outputRate && r.channels == channels
}

// Resample converts input samples to output sample rate using linear interpolation.
// Both buffers are interleaved. Returns output samples written.
func (r *Resampler) Resample(input []int32, output []int32) int {
	if len(input) == 0 {
		return 0
	}

	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels

	outIdx := 0
	for outIdx < outputFrames {
		inputIdx := int(r.position)
		if inputIdx >= inputFrames-1 {
			break
		}

		frac := r.position - float64(inputIdx)
		for ch := 0; ch < r.channels; ch++ {
			s1 := input[inputIdx*r.channels+ch]
			s2 := input[(inputIdx+1)*r.channels+ch]
			output[outIdx*r.channels+ch] = int32(float64(s1)*(1.0-frac) + float64(s2)*frac)
		}

		outIdx++
		r.position += r.ratio
	}

	// keep the fractional part for the next chunk
	r.position -= float64(int(r.position))

	copy(r.lastSample, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	return outIdx * r.channels
}

// Fill resamples input into exactly len(output) samples. When interpolation
// runs out of input the final input frame is held.
func (r *Resampler) Fill(input []int32, output []int32) {
	n := r.Resample(input, output)
	for i := n; i < len(output); i++ {
		output[i] = r.lastSample[i%r.channels]
	}
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	for i := range r.lastSample {
		r.lastSample[i] = 0
	}
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	return int(float64(inputFrames)/r.ratio) * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	return int(float64(outputFrames)*r.ratio) * r.channels
}
