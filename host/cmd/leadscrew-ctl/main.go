package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"leadscrew/engine"
	"leadscrew/host/device"
	"leadscrew/host/serial"
)

var (
	devicePath = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud       = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	logLevel   = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Fatal("bad -log-level")
	}
	log.SetLevel(level)

	cfg := serial.DefaultConfig(*devicePath)
	cfg.Baud = *baud
	client, err := device.Dial(cfg, device.Options{Logger: log.WithField("device", *devicePath)})
	if err != nil {
		log.WithError(err).Fatal("connect")
	}
	defer client.Close()

	fmt.Printf("Connected to %s (%s)\n", *devicePath, client.Dictionary().Version)
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	// One-shot mode: the remaining arguments are a single command
	if flag.NArg() > 0 {
		if err := execute(client, flag.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "quit", "exit", "q":
			return
		case "help", "?":
			printHelp()
			continue
		}
		if err := execute(client, parts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func execute(client *device.Client, parts []string) error {
	switch parts[0] {
	case "status":
		s, err := client.Status()
		if err != nil {
			return err
		}
		printStatus(s)
	case "ratio":
		if len(parts) != 2 {
			return fmt.Errorf("usage: ratio NUM/DEN")
		}
		num, den, err := parseRatio(parts[1])
		if err != nil {
			return err
		}
		return client.SetRatio(num, den)
	case "mode":
		if len(parts) != 2 {
			return fmt.Errorf("usage: mode left|right")
		}
		m, ok := engine.ParseMode(parts[1])
		if !ok {
			return fmt.Errorf("unknown mode %q", parts[1])
		}
		return client.SetMode(m)
	case "latch":
		return client.LatchLimit()
	case "reset":
		return client.ResetSync()
	case "timing":
		return client.DumpTiming()
	case "enable", "disable":
		return client.SetDriverEnabled(parts[0] == "enable")
	case "estop":
		return client.EmergencyStop()
	case "clear":
		return client.ClearShutdown()
	case "config":
		state, err := client.Config()
		if err != nil {
			return err
		}
		fmt.Printf("configured=%v crc=0x%08x shutdown=%v\n", state.Configured, state.CRC, state.Shutdown)
	case "dict":
		printDictionary(client.Dictionary())
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", parts[0])
	}
	return nil
}

// parseRatio accepts "NUM/DEN" or a bare numerator
func parseRatio(s string) (uint8, uint8, error) {
	numText, denText, found := strings.Cut(s, "/")
	if !found {
		denText = "1"
	}
	num, err := strconv.ParseUint(numText, 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("numerator %q: %w", numText, err)
	}
	den, err := strconv.ParseUint(denText, 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("denominator %q: %w", denText, err)
	}
	return uint8(num), uint8(den), nil
}

func printStatus(s device.Status) {
	fmt.Printf("spindle:  angle %d  revolutions %d  %d rpm\n", s.Angle, s.Revolutions, s.RPM)
	fmt.Printf("carriage: required %d  actual %d  lag %d\n", s.Required, s.Actual, s.Lag)
	fmt.Printf("ratio:    %d/%d  mode %s", s.Numerator, s.Denominator, s.Mode)
	if s.PendingMode != s.Mode {
		fmt.Printf(" (-> %s)", s.PendingMode)
	}
	fmt.Println()
	if s.Limited {
		fmt.Printf("limit:    revolution %d\n", s.Limit)
	}
}

func printDictionary(d *device.Dictionary) {
	fmt.Printf("Version: %s\nBuild: %s\n", d.Version, d.BuildVersions)

	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("Config:")
	for _, k := range keys {
		fmt.Printf("  %s = %s\n", k, d.Config[k])
	}

	fmt.Printf("Commands (%d):\n", len(d.Commands))
	for name, id := range d.Commands {
		fmt.Printf("  [%d] %s\n", id, name)
	}
	fmt.Printf("Responses (%d):\n", len(d.Responses))
	for name, id := range d.Responses {
		fmt.Printf("  [%d] %s\n", id, name)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  status         - Show spindle and carriage state")
	fmt.Println("  ratio N/D      - Set the gear ratio (carriage must be at rest)")
	fmt.Println("  mode left|right - Set the direction mode for the next turn")
	fmt.Println("  latch          - Latch the travel limit one turn ahead")
	fmt.Println("  reset          - Re-zero synchronization")
	fmt.Println("  timing         - Dump the device timing ring")
	fmt.Println("  enable/disable - Switch the stepper driver on or off")
	fmt.Println("  estop          - Emergency stop")
	fmt.Println("  clear          - Clear a shutdown")
	fmt.Println("  config         - Show the configuration checksum")
	fmt.Println("  dict           - Print the dictionary")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}
