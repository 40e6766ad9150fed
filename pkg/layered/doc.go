// ABOUTME: Layered redundant audio codec over RTP
// ABOUTME: Encoder splits PCM frames into byte planes, decoder repairs and reorders them
// Package layered implements a redundancy-based audio codec for RTP.
//
// Each PCM frame is split into up to four byte planes: left upper (LU),
// right upper (RU), left lower (LL) and right lower (RL). Upper planes carry
// the most significant bytes, so a receiver missing a lower plane still plays
// a coarser signal, and a receiver missing one channel's upper plane borrows
// the other channel's. Planes are sent on up to three RTP streams (layers) so
// that the quality policy can shed layers under bandwidth pressure.
//
// The encoder side:
//
//	enc, err := layered.NewEncoder(layered.EncoderConfig{Source: src})
//	for {
//	    if err := enc.PrepareNextFrame(); err != nil { break }
//	    for pkt, ok := enc.GetNextPacket(1200); ok; pkt, ok = enc.GetNextPacket(1200) {
//	        raw, _ := packetizer.Packetize(pkt)
//	        conn.Write(raw)
//	    }
//	}
//
// The decoder side feeds raw RTP into Receive and renders through a Sink on
// its own timer:
//
//	dec := layered.NewDecoder(layered.DecoderConfig{Sink: out})
//	dec.Start(ctx)
//	dec.Receive(raw)
package layered
