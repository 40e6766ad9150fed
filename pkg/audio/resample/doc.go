// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Example:
//
//	r := resample.New(44100, 22050, 2)
//	r.Fill(frameIn, frameOut) // frameOut is always filled completely
package resample
