//go:build linux && !tinygo

// Command leadscrew-linux runs the lead screw on a Linux board: encoder
// and stepper on GPIO character device lines, the display on /dev/i2c-N
// and the status link on a serial port (a UART or USB gadget).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"leadscrew/config"
	"leadscrew/core"
	"leadscrew/display"
	"leadscrew/host/serial"
	"leadscrew/lathe"
)

var (
	configPath = flag.String("config", "", "Machine config (JSON); empty uses the reference machine")
	linkDevice = flag.String("link", "", "Serial device carrying the status link; empty disables it")
	linkBaud   = flag.Int("baud", 115200, "Link baud rate")
	noLCD      = flag.Bool("no-lcd", false, "Run without the character display")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

// maxIdle bounds the main loop sleep so the clock keeps up with edges
const maxIdle = time.Millisecond

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Fatal("bad -log-level")
	}
	log.SetLevel(level)

	if err := run(); err != nil {
		log.WithError(err).Fatal("leadscrew stopped")
	}
}

func loadConfig() (*config.MachineConfig, error) {
	if *configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFile(*configPath)
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.WithField("chip", cfg.Pins.Chip)

	core.SetDebugWriter(func(msg string) { logger.Debug(msg) })
	core.SetDebugEnabled(log.IsLevelEnabled(log.DebugLevel))
	core.RegisterConstant("MCU", "linux")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
	core.RegisterConstant("CONFIG_CRC", cfg.FingerprintCRC())
	core.ClearTimers()
	core.TimerInit()

	engineCfg := cfg.EngineConfig()
	lathe.RegisterCommands(engineCfg, cfg.Link.StatusIntervalMS)

	gpio := newChipGPIO(cfg.Pins.Chip)
	defer gpio.Close()

	backend := newLineBackend(cfg.Pins.Chip)
	if err := backend.Init(uint8(config.MustPin(cfg.Pins.Step)), uint8(config.MustPin(cfg.Pins.Dir)),
		cfg.InvertStep, cfg.InvertDir); err != nil {
		return err
	}
	defer backend.Close()

	enable := config.MustPin(cfg.Pins.Enable)
	buttons, err := cfg.ButtonPins()
	if err != nil {
		return err
	}
	opts := lathe.Options{
		Engine:           engineCfg,
		PulsePeriodUS:    cfg.PulsePeriodUS,
		StatusIntervalMS: cfg.Link.StatusIntervalMS,
		Backend:          backend,
		GPIO:             gpio,
		Enable:           &enable,
		Buttons:          &buttons,
		Cols:             cfg.LCD.Cols,
		Rows:             cfg.LCD.Rows,
	}
	if !*noLCD {
		bus, err := openI2C(cfg.LCD.I2CBus)
		if err != nil {
			return err
		}
		defer bus.Close()
		lcd, err := display.NewLCD(bus, cfg.LCD.Address, cfg.LCD.Cols, cfg.LCD.Rows)
		if err != nil {
			return err
		}
		opts.Screen = lcd
	}

	l, err := lathe.New(opts)
	if err != nil {
		return err
	}

	enc, err := newEncoder(cfg.Pins.Chip, config.MustPin(cfg.Pins.EncoderA), config.MustPin(cfg.Pins.EncoderB),
		l.OnEncoderEdge)
	if err != nil {
		return err
	}
	defer enc.Close()

	var lk *link
	if *linkDevice != "" {
		serialCfg := serial.DefaultConfig(*linkDevice)
		serialCfg.Baud = *linkBaud
		port, err := serial.Open(serialCfg)
		if err != nil {
			return err
		}
		lk = newLink(port, logger.WithField("link", *linkDevice))
		defer lk.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	clock := func() {
		core.SetTime(uint32(time.Since(start) / time.Microsecond))
	}
	clock()
	l.Start()
	defer l.Stop()

	logger.WithFields(log.Fields{
		"steps_per_turn": engineCfg.StepsPerTurn,
		"num":            cfg.Numerator,
		"den":            cfg.Denominator,
		"mode":           engineCfg.Mode,
		"link":           *linkDevice != "",
		"lcd":            opts.Screen != nil,
	}).Info("lead screw running")

	idle := time.NewTimer(maxIdle)
	defer idle.Stop()
	for {
		clock()
		if lk != nil {
			lk.Service()
		}
		core.ProcessTimers()
		l.Service()

		wait := maxIdle
		if wake, ok := core.NextWakeTime(); ok {
			if d := int32(wake - core.GetTime()); d <= 0 {
				continue
			} else if us := time.Duration(d) * time.Microsecond; us < wait {
				wait = us
			}
		}
		idle.Reset(wait)

		var rx <-chan []byte
		if lk != nil {
			rx = lk.rx
		}
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case chunk, ok := <-rx:
			if !ok {
				logger.Warn("link closed, running without it")
				lk.Close()
				lk = nil
				break
			}
			lk.buffer(chunk)
		case <-idle.C:
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
	}
}
