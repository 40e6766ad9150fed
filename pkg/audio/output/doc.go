// ABOUTME: Audio output package for playing decoded frames
// ABOUTME: Oto device output plus a sink adapting layered frames
// Package output plays decoded audio.
//
// Oto drives the system device through oto. Sink adapts the frames rendered
// by a layered decoder to any Output, converting each frame to the device
// format:
//
//	out := output.NewOto()
//	sink := output.NewSink(out, 48000, 2)
//	dec := layered.NewDecoder(layered.DecoderConfig{Sink: sink})
package output
