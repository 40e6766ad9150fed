// ABOUTME: Entry point for the layercast player
// ABOUTME: Finds a server, decodes its layered stream and plays it through oto
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Resonate-Protocol/layercast/internal/client"
	"github.com/Resonate-Protocol/layercast/internal/config"
	"github.com/Resonate-Protocol/layercast/internal/metrics"
	"github.com/Resonate-Protocol/layercast/internal/player"
	"github.com/Resonate-Protocol/layercast/internal/ui"
	"github.com/Resonate-Protocol/layercast/internal/version"
	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/audio/output"
)

// The device runs at the top of the quality ladder; lower levels are converted up
const (
	deviceRate     = 48000
	deviceChannels = 2
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to YAML config file",
		EnvVars: []string{"LAYERCAST_PLAYER_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "server",
		Usage: "server host:port (skip mDNS)",
	},
	&cli.IntFlag{
		Name:  "buffer-frames",
		Usage: "frames buffered before rendering",
	},
	&cli.IntFlag{
		Name:  "volume",
		Usage: "initial volume 0-100",
	},
	&cli.StringFlag{
		Name:  "status",
		Usage: "server status feed host:port, found via mDNS when browsing",
	},
	&cli.DurationFlag{
		Name:  "discover-timeout",
		Usage: "how long to browse for a server",
		Value: 10 * time.Second,
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "serve decoder metrics on this address, empty disables",
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "log file path",
	},
	&cli.BoolFlag{
		Name:  "debug",
		Usage: "enable debug logging",
	},
	&cli.BoolFlag{
		Name:  "no-tui",
		Usage: "disable the TUI and stream logs to stdout",
	},
}

func main() {
	app := &cli.App{
		Name:    "layercast-player",
		Usage:   "play a layered redundant audio stream",
		Version: version.Version,
		Flags:   baseFlags,
		Action:  startPlayer,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func applyFlags(c *cli.Context, conf *config.PlayerConfig) {
	if c.IsSet("server") {
		conf.Server = c.String("server")
	}
	if c.IsSet("buffer-frames") {
		conf.FrameBufferSize = c.Int("buffer-frames")
	}
	if c.IsSet("volume") {
		conf.Volume = c.Int("volume")
	}
	if c.IsSet("log-file") {
		conf.Logging.File = c.String("log-file")
	}
	if c.Bool("debug") {
		conf.Logging.Level = "debug"
	}
	if c.Bool("no-tui") {
		conf.TUI = false
	}
}

func startPlayer(c *cli.Context) error {
	conf, err := config.LoadPlayer(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, conf)
	if err := conf.Validate(); err != nil {
		return err
	}

	closer, err := config.SetupLogging(conf.Logging, !conf.TUI)
	if err != nil {
		return err
	}
	defer closer.Close()

	log := logrus.WithField("component", "main")

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.WithField("signal", sig).Info("Shutting down gracefully")
			cancel()
		case <-ctx.Done():
		}
	}()

	serverAddr := conf.Server
	serverName := serverAddr
	statusAddr := c.String("status")
	if serverAddr == "" {
		log.Info("No server given, browsing via mDNS")
		info, err := player.Discover(ctx, c.Duration("discover-timeout"))
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		serverAddr = info.Addr()
		serverName = info.Name
		if info.StatusPort > 0 && statusAddr == "" {
			statusAddr = net.JoinHostPort(info.Host, strconv.Itoa(info.StatusPort))
		}
		log.WithFields(logrus.Fields{"name": info.Name, "addr": serverAddr}).Info("Found server")
	}

	out := output.NewOto()
	out.SetVolume(conf.Volume)
	sink := output.NewSink(out, deviceRate, deviceChannels)
	defer sink.Close()

	var tuiProg *tea.Program
	var volumeCtrl *ui.VolumeControl
	if conf.TUI {
		volumeCtrl = ui.NewVolumeControl()
		tuiProg = ui.Run(volumeCtrl, conf.Volume)
	}

	p, err := player.New(player.Config{
		ServerAddr:      serverAddr,
		FrameBufferSize: conf.FrameBufferSize,
		TimerPeriod:     conf.TimerPeriod,
		ReportInterval:  conf.ReportInterval,
		OnStatus: func(st player.Status) {
			if tuiProg != nil {
				tuiProg.Send(statusMsg(st))
			}
		},
	}, sink)
	if err != nil {
		return err
	}

	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		metrics.RegisterDecoderStats(reg, p.Decoder().Stats)
		go serveMetrics(addr, reg, log)
	}

	errChan := make(chan error, 1)
	go func() { errChan <- p.Run(ctx) }()

	if tuiProg != nil {
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.WithError(err).Error("TUI exited with error")
			}
			cancel()
		}()
		go handleVolume(ctx, volumeCtrl, out, cancel)
		go tuiProg.Send(ui.StatusMsg{ServerName: serverName})
		if statusAddr != "" {
			go followStatus(ctx, statusAddr, tuiProg, log)
		}
	}

	err = <-errChan
	if tuiProg != nil {
		tuiProg.Quit()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// handleVolume applies TUI volume changes to the output until ctx ends
func handleVolume(ctx context.Context, ctrl *ui.VolumeControl, out output.VolumeControl, cancel context.CancelFunc) {
	for {
		select {
		case v := <-ctrl.Changes:
			out.SetVolume(v.Volume)
			out.SetMuted(v.Muted)
		case <-ctrl.Quit:
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// followStatus shows the server's own name once its status feed answers
func followStatus(ctx context.Context, addr string, prog *tea.Program, log *logrus.Entry) {
	feed := client.NewClient(client.Config{ServerAddr: addr})
	if err := feed.Connect(ctx); err != nil {
		log.WithError(err).Warn("Status feed unavailable")
		return
	}
	defer feed.Close()
	prog.Send(ui.StatusMsg{ServerName: feed.Hello().Name})

	for {
		select {
		case st := <-feed.Status:
			log.WithField("receivers", len(st.Receivers)).Debug("Server status")
		case <-feed.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func statusMsg(st player.Status) ui.StatusMsg {
	connected := st.Stats.Received > 0
	msg := ui.StatusMsg{
		Connected:  &connected,
		SampleRate: st.Format.SampleRate,
		Bits:       st.Format.Bits,
		Channels:   st.Format.Channels,
		Layers:     st.Layers,
		Title:      st.Metadata.Title,
		Artist:     st.Metadata.Artist,
		Comment:    st.Metadata.Comment,
		Position:   st.Position,
		Duration:   st.MaxPosition,
		Stats:      &st.Stats,
		Buffered:   st.Buffered,
	}
	if st.ErrorCode != audio.NoError {
		msg.ErrorCode = st.ErrorCode.String()
	}
	return msg
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.WithField("addr", addr).Info("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server failed")
	}
}
