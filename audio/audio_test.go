package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestPlayer(t *testing.T) {
	var rec Recorder
	p := NewPlayer(&rec)
	p.Tick()
	p.Play(Clip{1, 2, 3}, false)
	for range 5 {
		p.Tick()
	}
	want := []uint8{Silence, 1, 2, 3, Silence, Silence}
	if !slices.Equal(rec.Samples, want) {
		t.Errorf("played %v, want %v", rec.Samples, want)
	}
	if p.Playing() {
		t.Error("player still playing after the clip ended")
	}
	if p.Played() != 3 {
		t.Errorf("%d samples played", p.Played())
	}
}

func TestPlayerLoop(t *testing.T) {
	var got []uint8
	p := NewPlayer(SinkFunc(func(v uint8) { got = append(got, v) }))
	p.Play(Clip{1, 2, 3}, true)
	for range 7 {
		p.Tick()
	}
	if want := []uint8{1, 2, 3, 1, 2, 3, 1}; !slices.Equal(got, want) {
		t.Errorf("played %v, want %v", got, want)
	}
	p.Stop()
	p.Tick()
	if got[len(got)-1] != Silence {
		t.Error("stopped player not silent")
	}
	// An empty looping clip must not spin.
	p.Play(nil, true)
	p.Tick()
	if p.Playing() {
		t.Error("empty clip playing")
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		data     []float32
		from, to float64
		want     Clip
	}{
		{[]float32{0, -1, 0.5}, 100, 100, Clip{128, 0, 192}},
		{[]float32{0, 1}, 1, 2, Clip{128, 192, 255, 255}},
		{[]float32{0, 1, 0, -1}, 2, 1, Clip{128, 128}},
		{nil, 1, 1, nil},
	}
	for _, test := range tests {
		got := Resample(test.data, test.from, test.to)
		if !slices.Equal(got, test.want) {
			t.Errorf("Resample(%v, %v, %v) = %v, want %v", test.data, test.from, test.to, got, test.want)
		}
	}
}

func TestWAV(t *testing.T) {
	rec := &Recorder{Samples: []uint8{0x80, 0x00, 0xff, 0x40, 0x81}}
	name := filepath.Join(t.TempDir(), "line.wav")
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.WriteWAV(f, 31469); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	clip, err := LoadWAV(bytes.NewReader(data), 31469)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(clip, Clip(rec.Samples)) {
		t.Errorf("loaded %v, want %v", clip, rec.Samples)
	}
}

func TestInvalidFiles(t *testing.T) {
	junk := bytes.Repeat([]byte{0x55}, 64)
	if _, err := LoadWAV(bytes.NewReader(junk), 1000); err == nil {
		t.Error("junk loaded as wav")
	}
	if _, err := LoadMP3(bytes.NewReader(nil), 1000); err == nil {
		t.Error("empty stream loaded as mp3")
	}
}
