// ABOUTME: Decoder-side frame nodes ordered by stream position
// ABOUTME: Holds fragments per plane and rebuilds frames with cross-plane repair
package layered

import (
	"github.com/google/btree"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

// frameNode gathers every fragment received for one position
type frameNode struct {
	position    uint64
	maxPosition uint64
	sampleRate  int
	bits        int
	channels    int
	errorCode   audio.ErrorCode
	frameSize   int
	planes      [NumPlanes]map[uint16][]byte
	maxIndex    int
}

func newFrameNode(p *Packet) *frameNode {
	n := &frameNode{
		position:    p.Position,
		maxPosition: p.MaxPosition,
		sampleRate:  p.SampleRate,
		bits:        p.Bits,
		channels:    p.Channels,
		maxIndex:    -1,
	}
	if p.SampleRate >= FrameRate {
		n.frameSize = audio.PackedSize(p.SampleRate/FrameRate, p.Bits, p.Channels)
	}
	if n.frameSize > MaxFrameSize {
		n.frameSize = MaxFrameSize
	}
	return n
}

// add stores a copy of data; false when (plane, index) is already held
func (n *frameNode) add(p Plane, index uint16, data []byte) bool {
	if n.planes[p] == nil {
		n.planes[p] = make(map[uint16][]byte)
	}
	if _, dup := n.planes[p][index]; dup {
		return false
	}
	n.planes[p][index] = append([]byte(nil), data...)
	if int(index) > n.maxIndex {
		n.maxIndex = int(index)
	}
	return true
}

func (n *frameNode) fragmentCount() int {
	c := 0
	for _, m := range n.planes {
		c += len(m)
	}
	return c
}

// frameSet orders nodes by position
type frameSet struct {
	tree *btree.BTreeG[*frameNode]
}

func newFrameSet() *frameSet {
	return &frameSet{
		tree: btree.NewG(8, func(a, b *frameNode) bool { return a.position < b.position }),
	}
}

func (s *frameSet) get(position uint64) (*frameNode, bool) {
	return s.tree.Get(&frameNode{position: position})
}

func (s *frameSet) getOrCreate(p *Packet) *frameNode {
	if n, ok := s.get(p.Position); ok {
		return n
	}
	n := newFrameNode(p)
	s.tree.ReplaceOrInsert(n)
	return n
}

func (s *frameSet) len() int { return s.tree.Len() }

// spread is the distance between the oldest and newest positions
func (s *frameSet) spread() uint64 {
	lo, ok := s.tree.Min()
	if !ok {
		return 0
	}
	hi, _ := s.tree.Max()
	return hi.position - lo.position
}

func (s *frameSet) popMin() (*frameNode, bool) {
	return s.tree.DeleteMin()
}

func (s *frameSet) clear() { s.tree.Clear(false) }

type fetchState int

const (
	fetchMissing fetchState = iota
	fetchPresent
	fetchRepaired
)

// fetchResult tells whether a plane slice arrived, was borrowed from
// another plane, or is missing
type fetchResult struct {
	state fetchState
	from  Plane
	data  []byte
}

func (n *frameNode) fetch(p Plane, index uint16) fetchResult {
	if d, ok := n.planes[p][index]; ok {
		return fetchResult{state: fetchPresent, from: p, data: d}
	}
	return fetchResult{state: fetchMissing}
}

// fetchOr returns p's slice, or fallback's original slice as a repair
func (n *frameNode) fetchOr(p, fallback Plane, index uint16) fetchResult {
	if r := n.fetch(p, index); r.state == fetchPresent {
		return r
	}
	if d, ok := n.planes[fallback][index]; ok {
		return fetchResult{state: fetchRepaired, from: fallback, data: d}
	}
	return fetchResult{state: fetchMissing}
}

// slice fetches every plane of one fragment index with cross-plane repair.
// Lower planes are only borrowed when the matching upper plane was itself
// borrowed, keeping a repaired channel consistent.
func (n *frameNode) slice(t tier, index uint16) [NumPlanes]fetchResult {
	var r [NumPlanes]fetchResult
	r[PlaneLU] = n.fetchOr(PlaneLU, PlaneRU, index)
	if t.unit(PlaneRU) > 0 {
		r[PlaneRU] = n.fetchOr(PlaneRU, PlaneLU, index)
	}
	if t.unit(PlaneLL) > 0 {
		r[PlaneLL] = n.fetch(PlaneLL, index)
		if r[PlaneLL].state == fetchMissing && r[PlaneLU].state == fetchRepaired {
			r[PlaneLL] = n.fetchOr(PlaneLL, PlaneRL, index)
		}
	}
	if t.unit(PlaneRL) > 0 {
		r[PlaneRL] = n.fetch(PlaneRL, index)
		if r[PlaneRL].state == fetchMissing && r[PlaneRU].state == fetchRepaired {
			r[PlaneRL] = n.fetchOr(PlaneRL, PlaneLL, index)
		}
	}
	return r
}

// groupsIn is the group count a fragment index covers across its planes
func groupsIn(t tier, r [NumPlanes]fetchResult) int {
	g := 0
	for p := PlaneLU; p < NumPlanes; p++ {
		u := t.unit(p)
		if u == 0 || r[p].state == fetchMissing {
			continue
		}
		if c := len(r[p].data) / u; c > g {
			g = c
		}
	}
	return g
}

// stride is the group count of a full fragment. Every fragment but the last
// is full, so the widest non-final fragment gives it; failing that, the last
// fragment fills the remainder of the nominal frame.
func (n *frameNode) stride(t tier) int {
	s := 0
	for i := 0; i < n.maxIndex; i++ {
		if g := groupsIn(t, n.slice(t, uint16(i))); g > s {
			s = g
		}
	}
	if s > 0 || n.maxIndex < 0 {
		return s
	}
	last := groupsIn(t, n.slice(t, uint16(n.maxIndex)))
	if total := n.frameSize / t.groupBytes; n.maxIndex > 0 && total > last {
		return (total - last) / n.maxIndex
	}
	return last
}

// reconstructResult summarizes one rebuilt frame
type reconstructResult struct {
	size     int
	produced int
	repaired int
	aborted  bool
}

// reconstruct rebuilds the frame into dst. Fragments land at index × stride
// so a wholly lost fragment leaves silence in place.
func (n *frameNode) reconstruct(dst []byte) reconstructResult {
	var res reconstructResult
	t, ok := tierFor(n.bits, n.channels)
	if !ok {
		return res
	}

	size := n.frameSize
	if size > len(dst) {
		size = len(dst)
	}
	clear(dst)
	res.size = size

	stride := n.stride(t)
	var src [NumPlanes][]byte
	for i := 0; i <= n.maxIndex; i++ {
		r := n.slice(t, uint16(i))
		g := groupsIn(t, r)
		if g == 0 {
			continue
		}
		offset := i * stride * t.groupBytes
		end := offset + g*t.groupBytes
		if end > len(dst) {
			res.aborted = true
			break
		}
		for p := PlaneLU; p < NumPlanes; p++ {
			src[p] = r[p].data
			if r[p].state == fetchRepaired {
				res.repaired++
			}
		}
		t.join(dst[offset:end], src, g)
		if end > res.produced {
			res.produced = end
		}
	}

	if res.produced > res.size {
		res.size = res.produced
	}
	return res
}
