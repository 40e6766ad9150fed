// ABOUTME: TUI update helpers for server
// ABOUTME: Converts engine and receiver state into a TUI status
package server

import (
	"time"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

// tuiStatus snapshots the engine and receivers for display
func (s *Server) tuiStatus() ServerStatus {
	st := ServerStatus{
		Name:    s.config.Name,
		RTPPort: s.config.RTPPort,
	}

	if s.audioEngine != nil {
		stream := s.audioEngine.Stream()
		st.Title = stream.Title
		if stream.Artist != "" {
			st.Title = stream.Artist + " - " + stream.Title
		}
		if q, ok := audio.LookupQuality(stream.SampleRate, stream.Bits, stream.Channels); ok {
			st.Quality = q.String()
		}
		st.Layers = stream.Layers
		st.Position = time.Duration(stream.PositionMs) * time.Millisecond
		st.Duration = time.Duration(stream.DurationMs) * time.Millisecond
		st.Suspended = stream.Suspended
	}

	for _, r := range s.receivers.Snapshot() {
		info := ReceiverInfo{Addr: r.Addr}
		for _, l := range r.Layers {
			if l.Layer < len(info.Loss) {
				info.Loss[l.Layer] = l.FractionLost
				info.Limits[l.Layer] = l.BytesPerSecond
			}
		}
		st.Receivers = append(st.Receivers, info)
	}
	return st
}

// updateTUI sends current server state to the TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.tuiStatus())
}
