// ABOUTME: Entry point for the layercast server
// ABOUTME: Loads config, applies CLI overrides and runs the RTP server
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Resonate-Protocol/layercast/internal/config"
	"github.com/Resonate-Protocol/layercast/internal/server"
	"github.com/Resonate-Protocol/layercast/internal/version"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to YAML config file",
		EnvVars: []string{"LAYERCAST_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "name",
		Usage: "server friendly name (default: hostname-layercast)",
	},
	&cli.IntFlag{
		Name:  "port",
		Usage: "UDP port for RTP and RTCP",
	},
	&cli.IntFlag{
		Name:  "status-port",
		Usage: "HTTP port for /status and /metrics, 0 disables",
	},
	&cli.StringFlag{
		Name:  "audio",
		Usage: "MP3/FLAC file or HTTP MP3 stream; a test tone when empty",
	},
	&cli.BoolFlag{
		Name:  "loop",
		Usage: "restart the audio file when it ends",
	},
	&cli.IntFlag{
		Name:  "decrement-steps",
		Usage: "start the quality policy this many levels below the ceiling",
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
		Name:  "no-mdns",
		Usage: "disable mDNS advertisement",
	},
	&cli.BoolFlag{
		Name:  "no-tui",
		Usage: "disable the TUI and stream logs to stdout",
	},
}

func main() {
	app := &cli.App{
		Name:    "layercast-server",
		Usage:   "stream layered redundant audio over RTP",
		Version: version.Version,
		Flags:   baseFlags,
		Action:  startServer,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlags overrides config values with flags the user set
func applyFlags(c *cli.Context, conf *config.ServerConfig) {
	if c.IsSet("name") {
		conf.Name = c.String("name")
	}
	if c.IsSet("port") {
		conf.RTPPort = c.Int("port")
	}
	if c.IsSet("status-port") {
		conf.StatusPort = c.Int("status-port")
	}
	if c.IsSet("audio") {
		conf.Source = c.String("audio")
	}
	if c.IsSet("loop") {
		conf.Loop = c.Bool("loop")
	}
	if c.IsSet("decrement-steps") {
		conf.DecrementSteps = c.Int("decrement-steps")
	}
	if c.IsSet("log-file") {
		conf.Logging.File = c.String("log-file")
	}
	if c.Bool("debug") {
		conf.Logging.Level = "debug"
	}
	if c.Bool("no-mdns") {
		conf.MDNS = false
	}
	if c.Bool("no-tui") {
		conf.TUI = false
	}
}

func startServer(c *cli.Context) error {
	conf, err := config.LoadServer(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, conf)
	if err := conf.Validate(); err != nil {
		return err
	}

	if !c.IsSet("name") && conf.Name == config.DefaultServerConfig().Name {
		if hostname, err := os.Hostname(); err == nil {
			conf.Name = hostname + "-layercast"
		}
	}

	closer, err := config.SetupLogging(conf.Logging, !conf.TUI)
	if err != nil {
		return err
	}
	defer closer.Close()

	log := logrus.WithField("component", "main")
	log.WithFields(logrus.Fields{
		"name":    conf.Name,
		"port":    conf.RTPPort,
		"version": version.Version,
	}).Info("Starting layercast server")

	srv := server.New(server.ConfigFrom(conf))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithField("signal", sig).Info("Shutting down gracefully")
		srv.Stop()
	}()

	return srv.Start()
}
