// ABOUTME: RTP and RTCP framing for layered packets
// ABOUTME: One RTP stream per transport layer, told apart by payload type
package layered

import (
	"fmt"
	"math/rand"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// PayloadTypeBase is the dynamic payload type of layer 0; layer n uses base+n
const PayloadTypeBase uint8 = 96

// LayerForPayloadType maps an RTP payload type to a transport layer
func LayerForPayloadType(pt uint8) (int, bool) {
	if pt < PayloadTypeBase || pt >= PayloadTypeBase+MaxLayers {
		return 0, false
	}
	return int(pt - PayloadTypeBase), true
}

// TimestampFor converts a stream position in nanoseconds to RTP timestamp units
func TimestampFor(position uint64) uint32 {
	return uint32(position / 1000 * TimestampClockRate / 1_000_000)
}

// Packetizer wraps layered packets in RTP, keeping one SSRC and sequence
// counter per layer. Not safe for concurrent use.
type Packetizer struct {
	ssrcs [MaxLayers]uint32
	seqs  [MaxLayers]uint16
	buf   []byte
}

// NewPacketizer picks random SSRCs and starting sequence numbers
func NewPacketizer() *Packetizer {
	p := &Packetizer{buf: make([]byte, DefaultMaxPacketSize*2)}
	for i := range p.ssrcs {
		for p.ssrcs[i] == 0 {
			p.ssrcs[i] = rand.Uint32()
		}
		p.seqs[i] = uint16(rand.Uint32())
	}
	return p
}

// SSRC of a layer
func (p *Packetizer) SSRC(layer int) uint32 { return p.ssrcs[layer] }

// LayerForSSRC finds which layer an SSRC belongs to
func (p *Packetizer) LayerForSSRC(ssrc uint32) (int, bool) {
	for i, s := range p.ssrcs {
		if s == ssrc {
			return i, true
		}
	}
	return 0, false
}

// Packetize returns the RTP encoding of pkt. The result is a fresh slice.
func (p *Packetizer) Packetize(pkt *Packet) ([]byte, error) {
	if pkt.Layer < 0 || pkt.Layer >= MaxLayers {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLayer, pkt.Layer)
	}
	if cap(p.buf) < pkt.Size() {
		p.buf = make([]byte, pkt.Size())
	}
	n, err := pkt.MarshalTo(p.buf[:pkt.Size()])
	if err != nil {
		return nil, err
	}

	rp := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         pkt.IsMetadata(),
			PayloadType:    PayloadTypeBase + uint8(pkt.Layer),
			SequenceNumber: p.seqs[pkt.Layer],
			Timestamp:      TimestampFor(pkt.Position),
			SSRC:           p.ssrcs[pkt.Layer],
		},
		Payload: p.buf[:n],
	}
	raw, err := rp.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP: %w", err)
	}
	p.seqs[pkt.Layer]++
	return raw, nil
}

// MarshalReceiverReport builds an RTCP receiver report from the reporter's SSRC
func MarshalReceiverReport(ssrc uint32, reports []rtcp.ReceptionReport) ([]byte, error) {
	return rtcp.Marshal([]rtcp.Packet{&rtcp.ReceiverReport{
		SSRC:    ssrc,
		Reports: reports,
	}})
}
