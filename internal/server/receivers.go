// ABOUTME: Receiver sessions kept alive by RTCP receiver reports
// ABOUTME: Each session carries its own loss adapted per-layer ceilings
package server

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/internal/protocol"
	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

// Receiver is one player that reported in
type Receiver struct {
	ID       string
	Addr     *net.UDPAddr
	SSRC     uint32
	LastSeen time.Time
	Jitter   uint32
	Loss     [layered.MaxLayers]float64
	Limits   layered.Limits
}

// LayerUsage describes current and top-quality bandwidth for adaptation
type LayerUsage struct {
	Current layered.Bandwidth
	Full    layered.Bandwidth
}

// Registry tracks receivers by address
type Registry struct {
	mu        sync.RWMutex
	receivers map[string]*Receiver
	timeout   time.Duration
	adapt     Adaptation
	clock     layered.Clock
	log       *logrus.Entry
}

// NewRegistry creates a registry expiring receivers silent for timeout
func NewRegistry(timeout time.Duration, adapt Adaptation, clock layered.Clock) *Registry {
	if clock == nil {
		clock = layered.MonotonicClock{}
	}
	return &Registry{
		receivers: make(map[string]*Receiver),
		timeout:   timeout,
		adapt:     adapt,
		clock:     clock,
		log:       logrus.WithField("component", "receivers"),
	}
}

// HandleReport registers or refreshes the sender of rr and adapts its
// ceilings. layerOf maps a reported SSRC to its transport layer. Reports
// about unknown SSRCs are ignored; layers left out of the report count as
// loss free. Returns the session and whether it is new.
func (r *Registry) HandleReport(addr *net.UDPAddr, rr *rtcp.ReceiverReport, layerOf func(uint32) (int, bool), usage LayerUsage) (Receiver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := addr.String()
	rcv, ok := r.receivers[key]
	if !ok {
		rcv = &Receiver{
			ID:   uuid.New().String(),
			Addr: addr,
			SSRC: rr.SSRC,
		}
		r.receivers[key] = rcv
		r.log.WithFields(logrus.Fields{
			"id":   rcv.ID,
			"addr": key,
		}).Info("Receiver joined")
	}
	rcv.LastSeen = r.clock.Now()

	var loss [layered.MaxLayers]float64
	var jitter uint32
	for _, report := range rr.Reports {
		layer, known := layerOf(report.SSRC)
		if !known {
			continue
		}
		loss[layer] = float64(report.FractionLost) / 256
		if report.Jitter > jitter {
			jitter = report.Jitter
		}
	}
	rcv.Loss = loss
	rcv.Jitter = jitter

	for layer := range rcv.Limits.Layers {
		before := rcv.Limits.Layers[layer]
		after := r.adapt.adjust(before, usage.Current.Layers[layer], usage.Full.Layers[layer], loss[layer])
		if after != before {
			r.log.WithFields(logrus.Fields{
				"id":    rcv.ID,
				"layer": layer,
				"loss":  loss[layer],
				"from":  before,
				"to":    after,
			}).Debug("Layer ceiling adapted")
		}
		rcv.Limits.Layers[layer] = after
	}

	return *rcv, !ok
}

// Remove drops the receiver at addr, as after an RTCP goodbye
func (r *Registry) Remove(addr *net.UDPAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rcv, ok := r.receivers[addr.String()]
	if ok {
		delete(r.receivers, addr.String())
		r.log.WithField("id", rcv.ID).Info("Receiver left")
	}
	return ok
}

// Expire drops receivers silent for longer than the timeout
func (r *Registry) Expire() []Receiver {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	var expired []Receiver
	for key, rcv := range r.receivers {
		if now.Sub(rcv.LastSeen) > r.timeout {
			expired = append(expired, *rcv)
			delete(r.receivers, key)
			r.log.WithFields(logrus.Fields{
				"id":   rcv.ID,
				"addr": key,
			}).Info("Receiver timed out")
		}
	}
	return expired
}

// Addrs returns every live receiver address
func (r *Registry) Addrs() []*net.UDPAddr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make([]*net.UDPAddr, 0, len(r.receivers))
	for _, rcv := range r.receivers {
		addrs = append(addrs, rcv.Addr)
	}
	return addrs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.receivers)
}

// Limits combines every receiver's ceilings, keeping the tightest per layer
func (r *Registry) Limits() layered.Limits {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out layered.Limits
	for _, rcv := range r.receivers {
		out = out.Min(rcv.Limits)
	}
	return out
}

// WorstLoss is the highest loss any receiver reported per layer
func (r *Registry) WorstLoss() [layered.MaxLayers]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var worst [layered.MaxLayers]float64
	for _, rcv := range r.receivers {
		for i, l := range rcv.Loss {
			if l > worst[i] {
				worst[i] = l
			}
		}
	}
	return worst
}

// Snapshot describes receivers for the status feed, ordered by address
func (r *Registry) Snapshot() []protocol.ReceiverStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.ReceiverStatus, 0, len(r.receivers))
	for key, rcv := range r.receivers {
		st := protocol.ReceiverStatus{
			ID:       rcv.ID,
			Addr:     key,
			LastSeen: rcv.LastSeen,
			Jitter:   rcv.Jitter,
		}
		for layer := range rcv.Limits.Layers {
			st.Layers = append(st.Layers, protocol.LayerLimit{
				Layer:          layer,
				BytesPerSecond: rcv.Limits.Layers[layer],
				FractionLost:   rcv.Loss[layer],
			})
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
