package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"leadscrew/config"
	"leadscrew/sim"
)

var (
	segments   = flag.String("segments", "600:2s,0:500ms,-600:2s", "Spindle profile as rpm:duration pairs")
	events     = flag.String("events", "", "Operator actions as action@time, e.g. latch@1s,ratio=2/3@3s")
	configPath = flag.String("config", "", "Machine config to take the engine parameters from")
	numerator  = flag.Uint("num", 0, "Ratio numerator (overrides the config)")
	denom      = flag.Uint("den", 0, "Ratio denominator (overrides the config)")
	periodUS   = flag.Uint("period-us", 0, "Minimum step period in microseconds")
	sampleUS   = flag.Uint("sample-us", 10000, "Trace sample interval in microseconds")
	plotPath   = flag.String("plot", "", "Write a PNG plot of the trace to this path")
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

	sc, err := scenario()
	if err != nil {
		log.WithError(err).Fatal("bad scenario")
	}

	start := time.Now()
	res, err := sim.Run(sc)
	if err != nil {
		log.WithError(err).Fatal("simulation failed")
	}

	log.WithFields(log.Fields{
		"simulated": time.Duration(res.DurationUS) * time.Microsecond,
		"elapsed":   time.Since(start).Round(time.Millisecond),
		"edges":     res.Edges,
		"steps":     res.Steps,
		"reversals": res.Reversals,
		"position":  res.Position,
		"max_lag":   res.MaxLag,
	}).Info("run complete")
	log.WithFields(log.Fields{
		"angle":       res.Final.Angle,
		"revolutions": res.Final.Revolutions,
		"required":    res.Final.Required,
		"actual":      res.Final.Actual,
		"lag":         res.Final.Lag,
		"rpm":         res.Final.RPM,
		"mode":        res.Final.Mode,
		"limited":     res.Final.Limited,
	}).Info("final state")

	if *plotPath != "" {
		if err := sim.Plot(res.Trace, *plotPath); err != nil {
			log.WithError(err).Fatal("plot")
		}
		log.WithField("path", *plotPath).Info("plot written")
	}
}

func scenario() (sim.Scenario, error) {
	var sc sim.Scenario

	if *configPath != "" {
		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			return sc, err
		}
		sc.Engine = cfg.EngineConfig()
		sc.PulsePeriodUS = cfg.PulsePeriodUS
	}
	if *numerator > 0 || *denom > 0 {
		if sc.Engine.StepsPerTurn == 0 {
			sc.Engine = config.DefaultConfig().EngineConfig()
		}
		if *numerator > 255 || *denom > 255 {
			return sc, fmt.Errorf("ratio %d/%d: terms must fit in 0..255", *numerator, *denom)
		}
		if *numerator > 0 {
			sc.Engine.Numerator = uint8(*numerator)
		}
		if *denom > 0 {
			sc.Engine.Denominator = uint8(*denom)
		}
	}
	if *periodUS > 0 {
		sc.PulsePeriodUS = uint32(*periodUS)
	}
	sc.SampleUS = uint32(*sampleUS)

	var err error
	if sc.Segments, err = parseSegments(*segments); err != nil {
		return sc, err
	}
	if sc.Events, err = parseEvents(*events); err != nil {
		return sc, err
	}
	return sc, nil
}

// parseSegments reads "rpm:duration" pairs separated by commas
func parseSegments(s string) ([]sim.Segment, error) {
	var out []sim.Segment
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		rpmText, durText, ok := strings.Cut(field, ":")
		if !ok {
			return nil, fmt.Errorf("segment %q: want rpm:duration", field)
		}
		rpm, err := strconv.ParseInt(rpmText, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", field, err)
		}
		d, err := time.ParseDuration(durText)
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", field, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("segment %q: negative duration", field)
		}
		out = append(out, sim.Segment{RPM: int32(rpm), DurationUS: uint64(d / time.Microsecond)})
	}
	return out, nil
}

// parseEvents reads "action@time" items; ratio takes "ratio=N/D@time"
func parseEvents(s string) ([]sim.Event, error) {
	var out []sim.Event
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		what, at, ok := strings.Cut(field, "@")
		if !ok {
			return nil, fmt.Errorf("event %q: want action@time", field)
		}
		d, err := time.ParseDuration(at)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", field, err)
		}
		ev := sim.Event{AtUS: uint64(d / time.Microsecond)}

		name, arg, _ := strings.Cut(what, "=")
		switch name {
		case "latch":
			ev.Action = sim.ActionLatch
		case "reset":
			ev.Action = sim.ActionReset
		case "toggle-mode", "mode":
			ev.Action = sim.ActionToggleMode
		case "ratio":
			ev.Action = sim.ActionRatio
			numText, denText, ok := strings.Cut(arg, "/")
			if !ok {
				return nil, fmt.Errorf("event %q: want ratio=N/D", field)
			}
			num, err := strconv.ParseUint(numText, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("event %q: %w", field, err)
			}
			den, err := strconv.ParseUint(denText, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("event %q: %w", field, err)
			}
			ev.Numerator, ev.Denominator = uint8(num), uint8(den)
		default:
			return nil, fmt.Errorf("event %q: unknown action %q", field, name)
		}
		out = append(out, ev)
	}
	return out, nil
}
