// ABOUTME: Packed PCM layouts for 8, 12 and 16 bit samples
// ABOUTME: Converts between 24-bit range int32 samples and wire bytes
package audio

import "fmt"

// PackedSize returns the byte length of frames sample frames at the given layout.
// 12-bit audio packs sample pairs, so an odd frame count rounds up.
func PackedSize(frames, bits, channels int) int {
	switch bits {
	case 8:
		return frames * channels
	case 12:
		return (frames + 1) / 2 * 3 * channels
	case 16:
		return frames * channels * 2
	}
	return 0
}

// Pack writes interleaved samples into dst using the layout for bits.
// Returns bytes written.
func Pack(samples []int32, bits, channels int, dst []byte) (int, error) {
	if channels < 1 || len(samples)%channels != 0 {
		return 0, fmt.Errorf("%w: %d samples for %d channels", ErrBadPCMLength, len(samples), channels)
	}
	frames := len(samples) / channels
	size := PackedSize(frames, bits, channels)
	if size == 0 && frames > 0 {
		return 0, fmt.Errorf("%w: %d bits", ErrUnknownQuality, bits)
	}
	if len(dst) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBadPCMLength, size, len(dst))
	}

	switch bits {
	case 8:
		for i, s := range samples {
			dst[i] = byte(int8(s >> 16))
		}
	case 16:
		for i, s := range samples {
			v := int16(s >> 8)
			dst[i*2] = byte(v)
			dst[i*2+1] = byte(v >> 8)
		}
	case 12:
		out := 0
		for f := 0; f < frames; f += 2 {
			for ch := 0; ch < channels; ch++ {
				a := int16(samples[f*channels+ch] >> 12)
				var b int16
				if f+1 < frames {
					b = int16(samples[(f+1)*channels+ch] >> 12)
				}
				dst[out] = byte(a >> 4)
				dst[out+1] = byte(b >> 4)
				dst[out+2] = byte(a&0x0F)<<4 | byte(b&0x0F)
				out += 3
			}
		}
	}
	return size, nil
}

// Unpack decodes packed bytes into interleaved 24-bit range samples.
// Returns samples written; trailing bytes that do not form a whole unit are ignored.
func Unpack(data []byte, bits, channels int, dst []int32) int {
	n := 0
	switch bits {
	case 8:
		for i := 0; i < len(data) && n < len(dst); i++ {
			dst[n] = int32(int8(data[i])) << 16
			n++
		}
	case 16:
		for i := 0; i+1 < len(data) && n < len(dst); i += 2 {
			v := int16(uint16(data[i]) | uint16(data[i+1])<<8)
			dst[n] = SampleFromInt16(v)
			n++
		}
	case 12:
		group := 3 * channels
		for g := 0; g+group <= len(data) && n+2*channels <= len(dst); g += group {
			for ch := 0; ch < channels; ch++ {
				b := data[g+ch*3 : g+ch*3+3]
				a := int16(int8(b[0]))<<4 | int16(b[2]>>4)
				c := int16(int8(b[1]))<<4 | int16(b[2]&0x0F)
				dst[n+ch] = int32(a) << 12
				dst[n+channels+ch] = int32(c) << 12
			}
			n += 2 * channels
		}
	}
	return n
}

// RemixChannels converts interleaved samples between mono and stereo.
// Stereo to mono averages, mono to stereo duplicates. Returns samples written.
func RemixChannels(in []int32, inChannels int, out []int32, outChannels int) int {
	frames := len(in) / inChannels
	if max := len(out) / outChannels; frames > max {
		frames = max
	}
	for f := 0; f < frames; f++ {
		switch {
		case inChannels == outChannels:
			copy(out[f*outChannels:(f+1)*outChannels], in[f*inChannels:(f+1)*inChannels])
		case outChannels == 1:
			var sum int64
			for ch := 0; ch < inChannels; ch++ {
				sum += int64(in[f*inChannels+ch])
			}
			out[f] = int32(sum / int64(inChannels))
		default:
			for ch := 0; ch < outChannels; ch++ {
				out[f*outChannels+ch] = in[f*inChannels+ch%inChannels]
			}
		}
	}
	return frames * outChannels
}
