// Command vgasim runs the scanline driver against simulated hardware.
//
// Subcommand timing prints the video mode, run simulates frames and
// checks the outputs, monitor prints the diagnostics reports of a
// running target and view shows the simulated raster in a window.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"rasterline.org/audio"
	"rasterline.org/diag"
	"rasterline.org/driver/sim"
	"rasterline.org/input"
	"rasterline.org/internal/golden"
	"rasterline.org/pattern"
	"rasterline.org/scanout"
	"rasterline.org/timing"
)

var (
	timingCmd  = flag.NewFlagSet("timing", flag.ExitOnError)
	runCmd     = flag.NewFlagSet("run", flag.ExitOnError)
	monitorCmd = flag.NewFlagSet("monitor", flag.ExitOnError)
	viewCmd    = flag.NewFlagSet("view", flag.ExitOnError)

	frames      = runCmd.Int("frames", 2, "number of frames to simulate")
	runPattern  = runCmd.String("pattern", "bars", "line content ("+strings.Join(pattern.Names, ", ")+")")
	pngOut      = runCmd.String("png", "", "write the last frame to a PNG file")
	wavOut      = runCmd.String("wav", "", "write the audio output to a WAV file")
	goldenFile  = runCmd.String("golden", "", "compare the last frame with a golden file")
	update      = runCmd.Bool("update", false, "update the golden file")
	runAudio    = runCmd.String("audio", "", "play a WAV or MP3 file")
	budget      = runCmd.Duration("budget", 0, "count line handlers slower than budget as overruns")
	clearDelay  = runCmd.Int("clearlatency", 1, "transfer complete flag clear latency")
	statsServer = runCmd.String("statsview", "", "serve runtime statistics at address")
	runGamepad  = runCmd.String("gamepad", "virtual", "gamepad (virtual, pi)")

	device = monitorCmd.String("dev", "", "serial device")
	baud   = monitorCmd.Int("baud", diag.DefaultBaud, "serial baud rate")

	viewPattern = viewCmd.String("pattern", "card", "line content ("+strings.Join(pattern.Names, ", ")+")")
	viewAudio   = viewCmd.String("audio", "", "play a WAV or MP3 file")
	viewScale   = viewCmd.Int("scale", 1, "window scale")
	viewGamepad = viewCmd.String("gamepad", "virtual", "gamepad (virtual, pi)")
)

func main() {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	if len(os.Args) <= 1 {
		fmt.Fprintf(os.Stderr, "vgasim: specify 'timing', 'run', 'monitor' or 'view' command\n")
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch cmd := os.Args[1]; cmd {
	case "timing":
		timingCmd.Parse(args)
		err = printTiming(os.Stdout, timing.VGA640x480)
	case "run":
		runCmd.Parse(args)
		err = run()
	case "monitor":
		monitorCmd.Parse(args)
		err = monitor()
	case "view":
		viewCmd.Parse(args)
		err = view()
	default:
		fmt.Fprintf(os.Stderr, "vgasim: unknown command: %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vgasim: %v\n", err)
		os.Exit(2)
	}
}

func printTiming(w io.Writer, m timing.Mode) error {
	if err := m.Validate(); err != nil {
		return err
	}
	fmt.Fprintf(w, "mode %s\n", m.Name)
	fmt.Fprintf(w, "line: %d ticks at %.3f MHz, %.3f kHz\n", m.LinePeriod, float64(m.TimerClock)/1e6, m.LineFrequency()/1e3)
	fmt.Fprintf(w, "hsync: %d ticks\n", m.HSyncWidth)
	fmt.Fprintf(w, "pixels: %d at %.3f MHz from tick %d to %d\n", m.VisiblePixels, m.PixelClock()/1e6, m.TriggerOffset, m.TriggerOffset+m.StreamTicks())
	fmt.Fprintf(w, "frame: %d lines at %.3f Hz\n", m.TotalLines(), m.RefreshRate())
	for _, r := range []struct {
		region timing.Region
		lines  int
	}{
		{timing.Visible, m.VisibleLines},
		{timing.FrontPorch, m.FrontPorchLines},
		{timing.Sync, m.SyncLines},
		{timing.BackPorch, m.BackPorchLines},
	} {
		fmt.Fprintf(w, "  %-11s %3d lines\n", r.region, r.lines)
	}
	fmt.Fprintf(w, "vsync: lines [%d,%d)\n", m.VSyncStart(), m.VSyncEnd())
	fmt.Fprintf(w, "input: lines [%d,%d)\n", m.InputFirstLine, m.InputFirstLine+m.InputLines)
	return nil
}

// machine is a driver wired to simulated hardware and collaborators.
type machine struct {
	mode    timing.Mode
	hw      *sim.Hardware
	driver  *scanout.Driver
	gamepad *input.Gamepad
	// pad is the software gamepad, or nil if gamepad is wired to
	// real pins.
	pad    *input.Virtual
	player *audio.Player
}

// openGamepad returns the gamepad named kind, or nil for the
// software gamepad.
func openGamepad(kind string) (*input.Gamepad, error) {
	switch kind {
	case "", "virtual":
		return nil, nil
	case "pi":
		return input.OpenPi()
	default:
		return nil, fmt.Errorf("unknown gamepad: %q", kind)
	}
}

// newMachine wires a driver to simulated hardware. A nil gamepad is
// replaced by a software gamepad.
func newMachine(m timing.Mode, c sim.Config, prod scanout.Producer, sink audio.Sink, gamepad *input.Gamepad) (*machine, error) {
	mach := &machine{
		mode:    m,
		hw:      sim.New(c),
		gamepad: gamepad,
		player:  audio.NewPlayer(sink),
	}
	if gamepad == nil {
		mach.pad = new(input.Virtual)
		mach.gamepad = mach.pad.Gamepad()
	}
	d, err := scanout.New(mach.hw, scanout.Config{
		Mode:     m,
		Producer: prod,
		Input:    mach.gamepad.Step,
		Audio:    mach.player.Tick,
	})
	if err != nil {
		return nil, err
	}
	mach.driver = d
	mach.hw.SetInterrupts(d.HandleLine, d.HandleTransferComplete)
	d.Start()
	return mach, nil
}

// Frame simulates the line periods of a frame.
func (m *machine) Frame() error {
	return m.hw.Run(m.mode.TotalLines())
}

func loadClip(path string, rate float64) (audio.Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return audio.LoadWAV(f, rate)
	case ".mp3":
		return audio.LoadMP3(f, rate)
	default:
		return nil, fmt.Errorf("%s: unknown audio format", path)
	}
}

func run() error {
	if *statsServer != "" {
		go func() {
			viewer.SetConfiguration(viewer.WithAddr(*statsServer))
			statsview.New().Start()
		}()
		log.Printf("vgasim: statistics at http://%s/debug/statsview", *statsServer)
	}
	m := timing.VGA640x480
	prod, err := pattern.ByName(*runPattern, m.VisiblePixels, m.VisibleLines)
	if err != nil {
		return err
	}
	pad, err := openGamepad(*runGamepad)
	if err != nil {
		return err
	}
	rec := new(audio.Recorder)
	mach, err := newMachine(m, sim.Config{ClearLatency: *clearDelay, Budget: *budget}, prod, rec, pad)
	if err != nil {
		return err
	}
	if *runAudio != "" {
		clip, err := loadClip(*runAudio, m.LineFrequency())
		if err != nil {
			return err
		}
		mach.player.Play(clip, false)
	}
	start := time.Now()
	for range *frames {
		if err := mach.Frame(); err != nil {
			return err
		}
	}
	wall := time.Since(start)
	hw, d := mach.hw, mach.driver
	s := d.Stats()
	log.Printf("vgasim: %d frames, %d lines, %v simulated in %v", s.Frame, hw.Periods(), hw.Elapsed(), wall)
	log.Printf("vgasim: worst line %d took %v", s.MaxLine, time.Duration(s.MaxLineCycles))
	if f := hw.Faults(); f.Total() > 0 {
		log.Printf("vgasim: faults: %+v", f)
	}
	if err := mach.gamepad.Err(); err != nil {
		return fmt.Errorf("gamepad: %w", err)
	}
	if b := mach.gamepad.State(); b != 0 {
		log.Printf("vgasim: buttons %s", buttonNames(b))
	}
	img := hw.Capture()
	log.Printf("vgasim: frame digest %s", golden.Digest(img))
	if *pngOut != "" {
		f, err := os.Create(*pngOut)
		if err != nil {
			return err
		}
		if err := golden.WritePNG(f, img); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if *wavOut != "" {
		f, err := os.Create(*wavOut)
		if err != nil {
			return err
		}
		if err := rec.WriteWAV(f, int(m.LineFrequency()+.5)); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if *goldenFile != "" {
		if err := golden.CompareFrame(*goldenFile, *update, "", img); err != nil {
			return err
		}
	}
	if f := hw.Faults(); f.Total() > 0 {
		return fmt.Errorf("%d faults", f.Total())
	}
	return nil
}

func monitor() error {
	port, err := diag.Open(*device, *baud)
	if err != nil {
		return err
	}
	defer port.Close()
	for {
		rep, err := port.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fmt.Println(rep)
		if rep.Overrun() {
			log.Printf("vgasim: line %d overran its period", rep.MaxLine)
		}
		if rep.Buttons != 0 {
			log.Printf("vgasim: buttons %s", buttonNames(input.State(rep.Buttons)))
		}
	}
}

func buttonNames(s input.State) string {
	var pressed []string
	for b := input.Button(0); b < 16; b++ {
		if s.Pressed(b) {
			pressed = append(pressed, b.String())
		}
	}
	return strings.Join(pressed, " ")
}
