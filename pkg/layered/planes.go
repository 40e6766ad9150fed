// ABOUTME: Byte-plane tier table for the layered codec
// ABOUTME: Splits packed PCM into LU/RU/LL/RL planes and joins them back
package layered

import "github.com/Resonate-Protocol/layercast/pkg/audio"

// Plane is one byte plane of a frame
type Plane int

const (
	PlaneLU Plane = iota
	PlaneRU
	PlaneLL
	PlaneRL
	NumPlanes
)

// Flags are the header bits naming a plane
func (p Plane) Flags() Flags {
	switch p {
	case PlaneLU:
		return FlagLeft | FlagUpper
	case PlaneRU:
		return FlagRight | FlagUpper
	case PlaneLL:
		return FlagLeft | FlagLower
	case PlaneRL:
		return FlagRight | FlagLower
	}
	return 0
}

func (p Plane) String() string {
	switch p {
	case PlaneLU:
		return "LU"
	case PlaneRU:
		return "RU"
	case PlaneLL:
		return "LL"
	case PlaneRL:
		return "RL"
	}
	return "?"
}

// planeForFlags maps header flags back to a plane
func planeForFlags(f Flags) (Plane, bool) {
	for p := PlaneLU; p < NumPlanes; p++ {
		if p.Flags() == f {
			return p, true
		}
	}
	return 0, false
}

// tier describes how one group of packed bytes spreads over the planes.
// layout[p] lists, in plane order, the byte offsets within a group that
// plane p carries.
type tier struct {
	groupBytes int
	layout     [NumPlanes][]int
}

var (
	tier8Mono    = tier{1, [NumPlanes][]int{{0}, nil, nil, nil}}
	tier8Stereo  = tier{2, [NumPlanes][]int{{0}, {1}, nil, nil}}
	tier12Mono   = tier{3, [NumPlanes][]int{{0, 1}, nil, {2}, nil}}
	tier12Stereo = tier{6, [NumPlanes][]int{{0, 1}, {3, 4}, {2, 5}, nil}}
	tier16Mono   = tier{2, [NumPlanes][]int{{1}, nil, {0}, nil}}
	tier16Stereo = tier{4, [NumPlanes][]int{{1}, {3}, {0}, {2}}}
)

// tierFor selects the split for a bit depth; ≤8, 9..12 and ≥13 bits form the three tiers
func tierFor(bits, channels int) (tier, bool) {
	stereo := channels == 2
	if channels != 1 && channels != 2 {
		return tier{}, false
	}
	switch {
	case bits <= 0:
		return tier{}, false
	case bits <= 8:
		if stereo {
			return tier8Stereo, true
		}
		return tier8Mono, true
	case bits <= 12:
		if stereo {
			return tier12Stereo, true
		}
		return tier12Mono, true
	case bits <= 16:
		if stereo {
			return tier16Stereo, true
		}
		return tier16Mono, true
	}
	return tier{}, false
}

// unit is the bytes plane p carries per group
func (t tier) unit(p Plane) int { return len(t.layout[p]) }

// maxUnit is the widest plane's bytes per group
func (t tier) maxUnit() int {
	m := 0
	for p := PlaneLU; p < NumPlanes; p++ {
		if u := t.unit(p); u > m {
			m = u
		}
	}
	return m
}

// split appends each plane's bytes of frame to planes[p]
func (t tier) split(frame []byte, planes *[NumPlanes][]byte) {
	groups := len(frame) / t.groupBytes
	for p := PlaneLU; p < NumPlanes; p++ {
		planes[p] = planes[p][:0]
	}
	for g := 0; g < groups; g++ {
		base := g * t.groupBytes
		for p := PlaneLU; p < NumPlanes; p++ {
			for _, idx := range t.layout[p] {
				planes[p] = append(planes[p], frame[base+idx])
			}
		}
	}
}

// join writes groups groups into dst from the plane slices. Missing bytes
// (nil plane or short slice) are written as zero.
func (t tier) join(dst []byte, src [NumPlanes][]byte, groups int) {
	for g := 0; g < groups; g++ {
		base := g * t.groupBytes
		for p := PlaneLU; p < NumPlanes; p++ {
			u := t.unit(p)
			for k, idx := range t.layout[p] {
				pos := g*u + k
				if pos < len(src[p]) {
					dst[base+idx] = src[p][pos]
				} else {
					dst[base+idx] = 0
				}
			}
		}
	}
}

// PlaneLayer is the transport layer carrying plane p at quality q
func PlaneLayer(p Plane, q audio.Quality) int {
	layer := 0
	switch p {
	case PlaneRU:
		layer = 1
	case PlaneLL:
		if q.Channels() > 1 {
			layer = 2
		} else {
			layer = 1
		}
	case PlaneRL:
		layer = 2
	}
	if max := TransportLayers(q) - 1; layer > max {
		layer = max
	}
	return layer
}
