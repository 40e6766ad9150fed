// ABOUTME: Quality policy for the layered encoder
// ABOUTME: Picks the highest ladder level whose estimated bandwidth fits the ceilings
package layered

import "github.com/Resonate-Protocol/layercast/pkg/audio"

// CalculateLayers is the number of planes a quality uses
func CalculateLayers(q audio.Quality) int {
	layers := 1
	if q.Channels() > 1 {
		layers = 2
	}
	if q.Bits() >= 16 {
		layers *= 2
	} else if q.Bits() >= 12 {
		layers++
	}
	return layers
}

// TransportLayers is the number of RTP streams a quality uses
func TransportLayers(q audio.Quality) int {
	if l := CalculateLayers(q); l < MaxLayers {
		return l
	}
	return MaxLayers
}

// Bandwidth is an estimate in bytes per second
type Bandwidth struct {
	Total  int
	Layers [MaxLayers]int
}

// Limits are bandwidth ceilings in bytes per second; zero means unlimited
type Limits struct {
	Total  int
	Layers [MaxLayers]int
}

// Allows reports whether b fits every ceiling
func (l Limits) Allows(b Bandwidth) bool {
	if l.Total > 0 && b.Total > l.Total {
		return false
	}
	for i := 0; i < MaxLayers; i++ {
		if l.Layers[i] > 0 && b.Layers[i] > l.Layers[i] {
			return false
		}
	}
	return true
}

// Min combines two sets of ceilings, keeping the tighter of each
func (l Limits) Min(o Limits) Limits {
	out := Limits{Total: minLimit(l.Total, o.Total)}
	for i := range out.Layers {
		out.Layers[i] = minLimit(l.Layers[i], o.Layers[i])
	}
	return out
}

func minLimit(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	}
	return b
}

// PacketParams describe packetization for the estimate
type PacketParams struct {
	// HeaderSize is the per-packet overhead counted against bandwidth
	HeaderSize int
	// MaxPacketSize bounds a layered packet including its header
	MaxPacketSize int
}

// DefaultPacketParams counts the layered header plus RTP/UDP/IP
func DefaultPacketParams() PacketParams {
	return PacketParams{
		HeaderSize:    HeaderSize + TransportOverhead,
		MaxPacketSize: DefaultMaxPacketSize,
	}
}

// fragmentCount is how many packets each plane of a frame needs
func fragmentCount(t tier, frameBytes, maxPacketSize int) int {
	groups := frameBytes / t.groupBytes
	perFragment := (maxPacketSize - HeaderSize) / t.maxUnit()
	if perFragment <= 0 || groups == 0 {
		return 0
	}
	return (groups + perFragment - 1) / perFragment
}

// EstimateBandwidth estimates bytes per second on each layer at quality q,
// including packet headers and the metadata allowance on layer 0
func EstimateBandwidth(q audio.Quality, params PacketParams) Bandwidth {
	var b Bandwidth
	t, ok := tierFor(q.Bits(), q.Channels())
	if !ok {
		return b
	}

	frameBytes := q.FrameBytes(FrameRate)
	groups := frameBytes / t.groupBytes
	fragments := fragmentCount(t, frameBytes, params.MaxPacketSize)

	for p := PlaneLU; p < NumPlanes; p++ {
		u := t.unit(p)
		if u == 0 {
			continue
		}
		layer := PlaneLayer(p, q)
		b.Layers[layer] += FrameRate * (groups*u + fragments*params.HeaderSize)
	}

	metadata := 2 * (params.HeaderSize + MetadataSize)
	b.Layers[0] += metadata

	for _, l := range b.Layers {
		b.Total += l
	}
	return b
}

// CalculateQualityForLimits starts from the user's choice lowered by
// decrementSteps, caps it at what the input provides, then steps down until
// the estimate fits the limits or the ladder bottoms out
func CalculateQualityForLimits(user, input audio.Quality, limits Limits, decrementSteps int, params PacketParams) audio.Quality {
	q := audio.Min(user.Decrement(decrementSteps), input)
	for !q.IsLowest() && !limits.Allows(EstimateBandwidth(q, params)) {
		q = q.Decrement(1)
	}
	return q
}
