package main

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/ebiten/v2"

	"rasterline.org/audio"
	"rasterline.org/driver/sim"
	"rasterline.org/image/rgb444"
	"rasterline.org/input"
	"rasterline.org/pattern"
	"rasterline.org/timing"
)

const viewSampleRate = 48000

var keymap = []struct {
	key    ebiten.Key
	button input.Button
}{
	{ebiten.KeyArrowUp, input.Up},
	{ebiten.KeyArrowDown, input.Down},
	{ebiten.KeyArrowLeft, input.Left},
	{ebiten.KeyArrowRight, input.Right},
	{ebiten.KeyX, input.A},
	{ebiten.KeyZ, input.B},
	{ebiten.KeyS, input.X},
	{ebiten.KeyA, input.Y},
	{ebiten.KeyQ, input.L},
	{ebiten.KeyW, input.R},
	{ebiten.KeyEnter, input.Start},
	{ebiten.KeyShiftRight, input.Select},
}

// window shows the simulated raster.
type window struct {
	mach   *machine
	line   *lineSound
	tex    *ebiten.Image
	pixels []byte
}

func view() error {
	m := timing.VGA640x480
	prod, err := pattern.ByName(*viewPattern, m.VisiblePixels, m.VisibleLines)
	if err != nil {
		return err
	}
	pad, err := openGamepad(*viewGamepad)
	if err != nil {
		return err
	}
	snd := &lineSound{rate: m.LineFrequency()}
	mach, err := newMachine(m, sim.Config{}, prod, snd, pad)
	if err != nil {
		return err
	}
	if *viewAudio != "" {
		clip, err := loadClip(*viewAudio, m.LineFrequency())
		if err != nil {
			return err
		}
		mach.player.Play(clip, true)
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   viewSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return err
	}
	<-ready
	player := ctx.NewPlayer(snd)
	player.Play()
	defer player.Close()

	ebiten.SetWindowTitle("vgasim " + m.Name)
	ebiten.SetWindowSize(*viewScale*m.VisiblePixels, *viewScale*m.VisibleLines)
	v := &window{
		mach:   mach,
		line:   snd,
		pixels: make([]byte, 4*m.VisiblePixels*m.VisibleLines),
	}
	return ebiten.RunGame(v)
}

func (v *window) Update() error {
	if v.mach.pad != nil {
		var s input.State
		for _, k := range keymap {
			if ebiten.IsKeyPressed(k.key) {
				s |= 1 << k.button
			}
		}
		v.mach.pad.Press(s)
	}
	if err := v.mach.Frame(); err != nil {
		return err
	}
	v.line.flush()
	return nil
}

func (v *window) Draw(screen *ebiten.Image) {
	img := v.mach.hw.Capture()
	if v.tex == nil {
		v.tex = ebiten.NewImage(img.Rect.Dx(), img.Rect.Dy())
	}
	toRGBA(v.pixels, img)
	v.tex.WritePixels(v.pixels)
	screen.DrawImage(v.tex, nil)
}

func (v *window) Layout(outW, outH int) (int, int) {
	return v.mach.mode.VisiblePixels, v.mach.mode.VisibleLines
}

func toRGBA(dst []byte, img *rgb444.Image) {
	i := 0
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for _, c := range img.Row(y) {
			r, g, b := rgb444.ToRGB888(c)
			dst[i], dst[i+1], dst[i+2], dst[i+3] = r, g, b, 0xff
			i += 4
		}
	}
}

// lineSound collects line rate samples and plays them at the output
// sample rate.
type lineSound struct {
	rate float64

	frame []uint8

	mu      sync.Mutex
	pending []float32
}

func (s *lineSound) Sample(v uint8) {
	s.frame = append(s.frame, v)
}

// flush queues the samples of a frame for playback.
func (s *lineSound) flush() {
	data := make([]float32, len(s.frame))
	for i, v := range s.frame {
		data[i] = float32(int(v)-audio.Silence) / 128
	}
	s.frame = s.frame[:0]
	clip := audio.Resample(data, s.rate, viewSampleRate)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range clip {
		s.pending = append(s.pending, float32(int(v)-audio.Silence)/128)
	}
	// Drop audio lagging more than a few frames.
	if limit := viewSampleRate / 10; len(s.pending) > limit {
		s.pending = s.pending[len(s.pending)-limit:]
	}
}

func (s *lineSound) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(p) / 4
	for i := range n {
		var v float32
		if i < len(s.pending) {
			v = s.pending[i]
		}
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	s.pending = s.pending[min(n, len(s.pending)):]
	return n * 4, nil
}
