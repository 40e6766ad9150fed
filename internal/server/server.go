// ABOUTME: Main server implementation for layercast
// ABOUTME: Streams layered RTP over UDP, tracks receivers via RTCP, serves status and metrics over HTTP
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/internal/config"
	"github.com/Resonate-Protocol/layercast/internal/discovery"
	"github.com/Resonate-Protocol/layercast/internal/metrics"
	"github.com/Resonate-Protocol/layercast/internal/protocol"
	"github.com/Resonate-Protocol/layercast/internal/version"
	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/audio/source"
	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

// housekeeping runs receiver expiry, status pushes and TUI refresh
const housekeepingPeriod = time.Second

// Config holds server configuration
type Config struct {
	Name            string
	RTPPort         int
	StatusPort      int
	Source          string // file path or URL; empty streams a test tone
	Loop            bool
	Quality         audio.Quality
	Limits          layered.Limits
	DecrementSteps  int
	MaxPacketSize   int
	ReceiverTimeout time.Duration
	Adaptation      Adaptation
	EnableMDNS      bool
	UseTUI          bool
}

// ConfigFrom converts a loaded config file
func ConfigFrom(c *config.ServerConfig) Config {
	return Config{
		Name:            c.Name,
		RTPPort:         c.RTPPort,
		StatusPort:      c.StatusPort,
		Source:          c.Source,
		Loop:            c.Loop,
		Quality:         c.Quality.Quality(),
		Limits:          c.Limits.Limits(),
		DecrementSteps:  c.DecrementSteps,
		MaxPacketSize:   c.MaxPacketSize,
		ReceiverTimeout: c.ReceiverTimeout,
		Adaptation: Adaptation{
			Enabled:      c.Adaptation.Enabled,
			DecreaseLoss: c.Adaptation.DecreaseLoss,
			IncreaseLoss: c.Adaptation.IncreaseLoss,
		},
		EnableMDNS: c.MDNS,
		UseTUI:     c.TUI,
	}
}

// Server represents the layercast server
type Server struct {
	config   Config
	serverID string

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	conn      *net.UDPConn
	receivers *Registry

	promRegistry *prometheus.Registry
	metrics      *metrics.ServerMetrics

	audioEngine *AudioEngine
	source      source.AudioSource

	// status websocket clients
	clients   map[string]*statusClient
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	tui       *ServerTUI
	startTime time.Time

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup

	log *logrus.Entry
}

// New creates a new server instance
func New(cfg Config) *Server {
	if cfg.ReceiverTimeout <= 0 {
		cfg.ReceiverTimeout = 5 * time.Second
	}
	reg := prometheus.NewRegistry()

	return &Server{
		config:   cfg,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// status is read-only and meant for the local network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		receivers:    NewRegistry(cfg.ReceiverTimeout, cfg.Adaptation, nil),
		promRegistry: reg,
		metrics:      metrics.NewServerMetrics(reg),
		clients:      make(map[string]*statusClient),
		startTime:    time.Now(),
		stopChan:     make(chan struct{}),
		log:          logrus.WithField("component", "server"),
	}
}

// ID is the server's random identity, advertised over mDNS
func (s *Server) ID() string { return s.serverID }

// Start starts the server and blocks until Stop, a TUI quit or an HTTP failure
func (s *Server) Start() error {
	if s.config.UseTUI {
		s.tui = NewServerTUI()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.config.Name, s.config.RTPPort); err != nil {
				s.log.WithError(err).Warn("TUI exited with error")
			}
		}()
		time.Sleep(100 * time.Millisecond)
	}

	s.log.WithFields(logrus.Fields{
		"name": s.config.Name,
		"id":   s.serverID,
	}).Info("Server starting")

	src, err := source.Open(s.config.Source, source.Options{Loop: s.config.Loop})
	if err != nil {
		s.abortStart()
		return fmt.Errorf("failed to open source: %w", err)
	}
	s.source = src
	defer src.Close()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.config.RTPPort})
	if err != nil {
		s.abortStart()
		return fmt.Errorf("failed to listen on UDP %d: %w", s.config.RTPPort, err)
	}
	s.conn = conn

	if err := s.setupEngine(); err != nil {
		conn.Close()
		s.abortStart()
		return err
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.RTPPort,
			StatusPort:  s.config.StatusPort,
			ServerID:    s.serverID,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.WithError(err).Warn("Failed to start mDNS advertisement")
		}
	}

	s.runBackground()

	errChan := make(chan error, 1)
	if s.config.StatusPort > 0 {
		s.routes()
		addr := fmt.Sprintf(":%d", s.config.StatusPort)
		s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
		s.log.WithField("addr", addr).Info("Status server listening")
		go func() {
			if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
				errChan <- err
			}
		}()
	}

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		s.log.Info("Server shutting down")
	case <-tuiQuitChan:
		s.log.Info("TUI quit requested, shutting down")
	case err := <-errChan:
		s.log.WithError(err).Error("HTTP server error")
		serverErr = err
	}

	s.shutdown()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// abortStart undoes what Start set up before failing
func (s *Server) abortStart() {
	if s.tui != nil {
		s.tui.Stop()
	}
	s.wg.Wait()
}

// setupEngine builds the audio engine around the opened source and socket
func (s *Server) setupEngine() error {
	engine, err := NewAudioEngine(EngineConfig{
		Source:         s.source,
		Quality:        s.config.Quality,
		Limits:         s.config.Limits,
		DecrementSteps: s.config.DecrementSteps,
		MaxPacketSize:  s.config.MaxPacketSize,
		Writer:         s.conn,
		Receivers:      s.receivers,
		Metrics:        s.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create audio engine: %w", err)
	}
	s.audioEngine = engine
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
}

// runBackground starts the engine, the RTCP reader and housekeeping
func (s *Server) runBackground() {
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.audioEngine.Start()
	}()
	go func() {
		defer s.wg.Done()
		s.readRTCP()
	}()
	go func() {
		defer s.wg.Done()
		s.housekeeping()
	}()
}

func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.Stop()

	if s.tui != nil {
		s.tui.Stop()
	}

	s.audioEngine.Stop()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.closeStatusClients()

	// unblocks readRTCP
	s.conn.Close()

	s.wg.Wait()
	s.log.Info("Server stopped cleanly")
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShutdown
}

// readRTCP handles receiver reports and goodbyes arriving on the RTP socket
func (s *Server) readRTCP() {
	buf := make([]byte, 1500)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.shuttingDown() {
				return
			}
			s.log.WithError(err).Warn("UDP read failed")
			continue
		}
		s.handleRTCP(addr, buf[:n])
	}
}

func (s *Server) handleRTCP(addr *net.UDPAddr, data []byte) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		s.log.WithError(err).WithField("addr", addr.String()).Debug("Ignoring non-RTCP datagram")
		return
	}

	changed := false
	for _, p := range pkts {
		switch p := p.(type) {
		case *rtcp.ReceiverReport:
			_, joined := s.receivers.HandleReport(addr, p, s.audioEngine.LayerForSSRC, s.audioEngine.Usage())
			changed = changed || joined
		case *rtcp.Goodbye:
			changed = s.receivers.Remove(addr) || changed
		}
	}

	if changed {
		s.metrics.SetReceivers(s.receivers.Len())
		s.updateTUI()
	}
}

// housekeeping expires silent receivers and pushes status once a second
func (s *Server) housekeeping() {
	ticker := time.NewTicker(housekeepingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.receivers.Expire()
			s.metrics.SetReceivers(s.receivers.Len())
			for layer, loss := range s.receivers.WorstLoss() {
				s.metrics.SetReportedLoss(layer, loss)
			}
			s.broadcastStatus()
			s.updateTUI()
		case <-s.stopChan:
			return
		}
	}
}

// Status builds the snapshot pushed to status clients
func (s *Server) Status() protocol.ServerStatus {
	st := protocol.ServerStatus{
		ServerID:  s.serverID,
		Receivers: s.receivers.Snapshot(),
	}
	if s.audioEngine != nil {
		st.Stream = s.audioEngine.Stream()
	}
	return st
}

func (s *Server) hello() protocol.ServerHello {
	return protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  version.Version,
		RTPPort:  s.config.RTPPort,
	}
}
