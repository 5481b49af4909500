// Command beacon turns a 12-key or 8x8-pad MIDI controller into a
// controller for the natural harmonic series, driving Surge XT with exact
// frequencies over OSC and broadcasting state for the visualizer.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlterMundi/NaturalHarmony/internal/broadcast"
	"github.com/AlterMundi/NaturalHarmony/internal/engine"
	"github.com/AlterMundi/NaturalHarmony/internal/midibridge"
	"github.com/AlterMundi/NaturalHarmony/internal/surge"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before
// initLogger is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Tunables --------------------

// controlRate is the fixed control-tick rate in Hz. Decoupled from any
// audio sample rate; each tick is O(active voices) and non-blocking.
const controlRate = 1000

// -------------------- Main --------------------

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	listPorts := flag.Bool("list-ports", false, "list available MIDI input ports and exit")
	midiPort := flag.String("midi", "", "substring to match in MIDI input port names")
	f1 := flag.Float64("f1", 54.0, "initial fundamental frequency in Hz")
	f1Min := flag.Float64("f1-min", 27.5, "lower bound for f1 modulation in Hz")
	f1Max := flag.Float64("f1-max", 220.0, "upper bound for f1 modulation in Hz")
	vibratoDepth := flag.Float64("vibrato-depth", 0, "vibrato depth in cents (0 disables)")
	surgeHost := flag.String("surge-host", "127.0.0.1", "Surge XT OSC host")
	surgePort := flag.Int("surge-port", 53280, "Surge XT OSC port")
	doBroadcast := flag.Bool("broadcast", false, "broadcast state to the visualizer")
	broadcastHost := flag.String("broadcast-host", "127.0.0.1", "visualizer OSC host")
	broadcastPort := flag.Int("broadcast-port", 9001, "visualizer OSC port")
	padMode := flag.Bool("pad", false, "start in pad mode (8x8 grid) instead of keyboard mode")
	flag.Parse()

	initLogger(*debug)

	cfg := engine.DefaultConfig()
	cfg.InitialF1 = *f1
	cfg.F1Min = *f1Min
	cfg.F1Max = *f1Max
	cfg.VibratoDepthCents = *vibratoDepth
	if *padMode {
		cfg.InitialMode = engine.ModePad
	}

	logger.Info("beacon starting",
		"f1_hz", cfg.InitialF1,
		"f1_range", fmt.Sprintf("%g-%g", cfg.F1Min, cfg.F1Max),
		"mode", cfg.InitialMode.String(),
		"surge", fmt.Sprintf("%s:%d", *surgeHost, *surgePort),
		"broadcast", *doBroadcast,
		"control_rate_hz", controlRate,
	)

	synth := surge.New(*surgeHost, *surgePort, logger)
	defer synth.Close()

	emitters := []engine.Emitter{synth}
	if *doBroadcast {
		bc := broadcast.New(*broadcastHost, *broadcastPort, logger)
		defer bc.Close()
		emitters = append(emitters, bc)
	}

	eng := engine.New(cfg, engine.Fanout(emitters...), logger)

	watcher, err := midibridge.NewWatcher(eng, *midiPort, logger)
	if err != nil {
		logger.Error("midi watcher init failed", "err", err)
		os.Exit(1)
	}
	defer watcher.Close()

	if *listPorts {
		ports := watcher.ListPorts()
		fmt.Println("Available MIDI input ports:")
		for i, p := range ports {
			fmt.Printf("  [%d] %s\n", i, p)
		}
		if len(ports) == 0 {
			fmt.Println("  (none)")
		}
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("running – waiting for MIDI device")

	ticker := time.NewTicker(time.Second / controlRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			eng.Tick(dt)
			watcher.Tick() // self-limited to one rescan per second
		case s := <-sig:
			logger.Info("beacon stopping", "signal", s.String())
			eng.Panic()
			synth.AllNotesOff()
			return
		}
	}
}
