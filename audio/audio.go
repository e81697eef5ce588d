// Package audio plays sound one sample per video line. Samples are
// unsigned 8-bit values, centered at [Silence], as expected by a PWM or
// resistor ladder DAC refreshed from the line interrupt.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Silence is the sample value of no output.
const Silence = 0x80

// Clip is a sequence of samples at the line rate.
type Clip []uint8

// Sink receives a sample every line.
type Sink interface {
	Sample(v uint8)
}

// SinkFunc adapts a function to a [Sink].
type SinkFunc func(v uint8)

func (f SinkFunc) Sample(v uint8) {
	f(v)
}

type playback struct {
	clip Clip
	loop bool
	pos  int
}

// Player feeds a sink from the line interrupt.
type Player struct {
	sink    Sink
	current atomic.Pointer[playback]
	played  atomic.Uint32
}

func NewPlayer(sink Sink) *Player {
	return &Player{sink: sink}
}

// Play replaces the playing clip with c.
func (p *Player) Play(c Clip, loop bool) {
	p.current.Store(&playback{clip: c, loop: loop})
}

// Stop silences the player.
func (p *Player) Stop() {
	p.current.Store(nil)
}

// Playing reports whether a clip is playing.
func (p *Player) Playing() bool {
	return p.current.Load() != nil
}

// Played returns the number of clip samples sent to the sink.
func (p *Player) Played() uint32 {
	return p.played.Load()
}

// Tick sends the next sample to the sink. It is meant to be called
// once per line.
func (p *Player) Tick() {
	pb := p.current.Load()
	if pb == nil {
		p.sink.Sample(Silence)
		return
	}
	if pb.pos == len(pb.clip) {
		if !pb.loop || len(pb.clip) == 0 {
			p.current.CompareAndSwap(pb, nil)
			p.sink.Sample(Silence)
			return
		}
		pb.pos = 0
	}
	p.sink.Sample(pb.clip[pb.pos])
	pb.pos++
	p.played.Add(1)
}

// Resample converts mono samples in [-1, 1] at rate from to a clip at
// rate to, interpolating linearly.
func Resample(data []float32, from, to float64) Clip {
	if len(data) == 0 || from <= 0 || to <= 0 {
		return nil
	}
	n := int(float64(len(data)) * to / from)
	c := make(Clip, n)
	step := from / to
	for i := range c {
		pos := float64(i) * step
		j := int(pos)
		v := float64(data[j])
		if j+1 < len(data) {
			frac := pos - float64(j)
			v += (float64(data[j+1]) - v) * frac
		}
		c[i] = quantize(v)
	}
	return c
}

func quantize(v float64) uint8 {
	s := math.Round(v*128) + Silence
	return uint8(max(0, min(255, s)))
}

// LoadWAV decodes the first channel of a WAV stream and resamples it
// to rate.
func LoadWAV(r io.ReadSeeker, rate float64) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("audio: not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: wav: %w", err)
	}
	chans := int(dec.NumChans)
	if chans == 0 || dec.BitDepth == 0 {
		return nil, errors.New("audio: wav: no channels")
	}
	scale := float32(int(1) << (dec.BitDepth - 1))
	// 8-bit samples are unsigned.
	var bias float32
	if dec.BitDepth == 8 {
		bias = scale
	}
	data := make([]float32, 0, len(buf.Data)/chans)
	for i := 0; i < len(buf.Data); i += chans {
		data = append(data, (float32(buf.Data[i])-bias)/scale)
	}
	return Resample(data, float64(dec.SampleRate), rate), nil
}

// LoadMP3 decodes the left channel of an MP3 stream and resamples it
// to rate.
func LoadMP3(r io.Reader, rate float64) (Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("audio: mp3: %w", err)
	}
	// The stream is always 16-bit little endian stereo.
	var data []float32
	chunk := make([]byte, 4096)
	for {
		n, err := io.ReadFull(dec, chunk)
		for i := 0; i+1 < n; i += 4 {
			s := int16(uint16(chunk[i]) | uint16(chunk[i+1])<<8)
			data = append(data, float32(s)/32768)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("audio: mp3: %w", err)
		}
	}
	return Resample(data, float64(dec.SampleRate()), rate), nil
}

// Recorder is a sink recording its samples.
type Recorder struct {
	Samples []uint8
}

func (r *Recorder) Sample(v uint8) {
	r.Samples = append(r.Samples, v)
}

// WriteWAV encodes the recorded samples as a 16-bit mono WAV stream
// at rate.
func (r *Recorder) WriteWAV(w io.WriteSeeker, rate int) error {
	const depth = 16
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, len(r.Samples)),
		SourceBitDepth: depth,
	}
	for i, s := range r.Samples {
		buf.Data[i] = (int(s) - Silence) << 8
	}
	enc := wav.NewEncoder(w, rate, depth, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: wav: %w", err)
	}
	return nil
}
