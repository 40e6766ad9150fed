// ABOUTME: Quality ladder for layered streaming
// ABOUTME: Fixed ordered set of sample rate / bit depth / channel levels
package audio

import "fmt"

// ByteOrder of multi-byte PCM samples on the wire
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (b ByteOrder) String() string {
	if b == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// Quality is one level of the quality ladder. Values are immutable; use
// Increment/Decrement to move between levels. The zero value means "unset".
type Quality struct {
	level int
	set   bool
}

type qualityLevel struct {
	sampleRate int
	bits       int
	channels   int
}

// levels is ordered by ascending bytes per second.
var levels = []qualityLevel{
	{8000, 8, 1},
	{11025, 8, 1},
	{16000, 8, 1},
	{16000, 12, 1},
	{22050, 12, 1},
	{22050, 8, 2},
	{22050, 12, 2},
	{32000, 12, 2},
	{32000, 16, 2},
	{44100, 16, 2},
	{48000, 16, 2},
}

// LowestQuality returns the bottom of the ladder
func LowestQuality() Quality { return Quality{level: 0, set: true} }

// HighestQuality returns the top of the ladder
func HighestQuality() Quality { return Quality{level: len(levels) - 1, set: true} }

// Levels returns every ladder level in ascending order
func Levels() []Quality {
	out := make([]Quality, len(levels))
	for i := range levels {
		out[i] = Quality{level: i, set: true}
	}
	return out
}

// QualityAt returns the level with the given index
func QualityAt(level int) (Quality, error) {
	if level < 0 || level >= len(levels) {
		return Quality{}, fmt.Errorf("%w: level %d", ErrUnknownQuality, level)
	}
	return Quality{level: level, set: true}, nil
}

// QualityFor returns the highest level whose rate, bits and channels do not
// exceed the given capability. Falls back to the lowest level.
func QualityFor(sampleRate, bits, channels int) Quality {
	best := 0
	for i, l := range levels {
		if l.sampleRate <= sampleRate && l.bits <= bits && l.channels <= channels {
			best = i
		}
	}
	return Quality{level: best, set: true}
}

// LookupQuality finds the exact level matching a wire header
func LookupQuality(sampleRate, bits, channels int) (Quality, bool) {
	for i, l := range levels {
		if l.sampleRate == sampleRate && l.bits == bits && l.channels == channels {
			return Quality{level: i, set: true}, true
		}
	}
	return Quality{}, false
}

// IsZero reports an unset quality
func (q Quality) IsZero() bool { return !q.set }

func (q Quality) Level() int      { return q.level }
func (q Quality) SampleRate() int { return levels[q.level].sampleRate }
func (q Quality) Bits() int       { return levels[q.level].bits }
func (q Quality) Channels() int   { return levels[q.level].channels }

// ByteOrder is fixed for every level
func (q Quality) ByteOrder() ByteOrder { return LittleEndian }

// BytesPerSecond of packed PCM at this level
func (q Quality) BytesPerSecond() int {
	l := levels[q.level]
	return l.sampleRate * l.channels * l.bits / 8
}

// FrameBytes is the packed size of one frame when frameRate frames make a second
func (q Quality) FrameBytes(frameRate int) int {
	return PackedSize(q.SampleRate()/frameRate, q.Bits(), q.Channels())
}

// IsLowest reports whether no lower level exists
func (q Quality) IsLowest() bool { return q.level == 0 }

// Decrement moves down n levels, stopping at the lowest
func (q Quality) Decrement(n int) Quality {
	l := q.level - n
	if l < 0 {
		l = 0
	}
	if l >= len(levels) {
		l = len(levels) - 1
	}
	return Quality{level: l, set: true}
}

// Increment moves up n levels, stopping at the highest
func (q Quality) Increment(n int) Quality {
	return q.Decrement(-n)
}

// Compare returns -1, 0 or 1
func (q Quality) Compare(other Quality) int {
	switch {
	case q.level < other.level:
		return -1
	case q.level > other.level:
		return 1
	}
	return 0
}

// Min returns the lower of two levels
func Min(a, b Quality) Quality {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}

func (q Quality) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", q.SampleRate(), q.Bits(), q.Channels())
}
