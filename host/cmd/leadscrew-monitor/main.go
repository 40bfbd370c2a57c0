package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"leadscrew/config"
	"leadscrew/host/device"
	"leadscrew/host/monitor"
	"leadscrew/host/serial"
)

var (
	devicePath = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud       = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	listen     = flag.String("listen", ":8080", "HTTP listen address for /ws, /status and /metrics")
	natsURL    = flag.String("nats", "", "NATS server URL; empty disables publishing")
	interval   = flag.Duration("interval", monitor.DefaultInterval, "Status poll interval")
	configPath = flag.String("config", "", "Machine config whose fingerprint the device should carry")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Fatal("bad -log-level")
	}
	log.SetLevel(level)

	if err := run(); err != nil {
		log.WithError(err).Fatal("monitor stopped")
	}
}

func run() error {
	logger := log.WithField("device", *devicePath)

	var fingerprint uint32
	if *configPath != "" {
		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		fingerprint = cfg.FingerprintCRC()
		logger.WithField("fingerprint", fingerprint).Info("machine config loaded")
	}

	serialCfg := serial.DefaultConfig(*devicePath)
	serialCfg.Baud = *baud
	client, err := device.Dial(serialCfg, device.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	opts := monitor.Options{
		Interval:    *interval,
		Fingerprint: fingerprint,
		Logger:      logger,
	}
	if *natsURL != "" {
		nc, err := monitor.ConnectNATS(*natsURL, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		opts.Publisher = nc
		logger.WithField("subject", monitor.StatusSubject).Info("publishing to nats")
	}

	hub := monitor.NewHub(logger)
	defer hub.Close()
	metrics := monitor.NewMetrics(prometheus.DefaultRegisterer, "")
	mon := monitor.New(client, hub, metrics, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mon.Handler(prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("listen", *listen).Info("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server failed")
			stop()
		}
	}()

	err = mon.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.WithError(serr).Warn("http shutdown")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
