// ABOUTME: Audio fundamentals package providing quality levels and PCM layouts
// ABOUTME: Shared by the layered codec, sources and outputs
// Package audio provides the quality ladder, stream error codes and packed
// PCM layouts used by the layered codec.
//
// Samples are carried as int32 in 24-bit range. Pack narrows them to the
// 8, 12 or 16 bit wire layouts; Unpack widens them back.
//
// Example:
//
//	q := audio.QualityFor(44100, 16, 2)
//	buf := make([]byte, q.FrameBytes(25))
//	n, err := audio.Pack(samples, q.Bits(), q.Channels(), buf)
package audio
