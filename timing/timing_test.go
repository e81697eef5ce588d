package timing

import (
	"math"
	"strings"
	"testing"
)

func TestVGA(t *testing.T) {
	m := VGA640x480
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if got, want := m.TotalLines(), 524; got != want {
		t.Errorf("total lines %d, want %d", got, want)
	}
	if got, want := m.VSyncStart(), 490; got != want {
		t.Errorf("vsync start %d, want %d", got, want)
	}
	if got, want := m.VSyncEnd(), 492; got != want {
		t.Errorf("vsync end %d, want %d", got, want)
	}
	// The line period must be the largest whole tick count not
	// exceeding the nominal 31.46875 kHz period.
	const hfreq = 31468.75
	if got, want := m.LinePeriod, uint32(float64(m.TimerClock)/hfreq); got != want {
		t.Errorf("line period %d, want %d", got, want)
	}
	if f := m.LineFrequency(); math.Abs(f-hfreq) > 10 {
		t.Errorf("line frequency %.2f Hz, want about %.2f Hz", f, hfreq)
	}
	if f := m.RefreshRate(); f < 59.9 || f > 60.1 {
		t.Errorf("refresh rate %.3f Hz", f)
	}
	if f := m.PixelClock(); math.Abs(f-25.142857e6) > 1 {
		t.Errorf("pixel clock %.0f Hz", f)
	}
	if got, want := m.StreamTicks(), uint32(2244); got != want {
		t.Errorf("stream ticks %d, want %d", got, want)
	}
}

func TestRegion(t *testing.T) {
	m := VGA640x480
	tests := []struct {
		line int
		want Region
	}{
		{0, Visible},
		{479, Visible},
		{480, FrontPorch},
		{489, FrontPorch},
		{490, Sync},
		{491, Sync},
		{492, BackPorch},
		{523, BackPorch},
	}
	for _, test := range tests {
		if got := m.Region(test.line); got != test.want {
			t.Errorf("Region(%d) = %v, want %v", test.line, got, test.want)
		}
	}
	counts := make(map[Region]int)
	for l := range m.TotalLines() {
		counts[m.Region(l)]++
	}
	if counts[Visible] != m.VisibleLines || counts[FrontPorch] != m.FrontPorchLines ||
		counts[Sync] != m.SyncLines || counts[BackPorch] != m.BackPorchLines {
		t.Errorf("region line counts %v", counts)
	}
}

func TestInputWindow(t *testing.T) {
	m := VGA640x480
	n := 0
	for l := range m.TotalLines() {
		if m.InInputWindow(l) {
			if m.Region(l) == Visible {
				t.Errorf("input sampled on visible line %d", l)
			}
			n++
		}
	}
	if n != m.InputLines {
		t.Errorf("%d input lines, want %d", n, m.InputLines)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *Mode)
		err    string
	}{
		{"ZeroPeriod", func(m *Mode) { m.LinePeriod = 0 }, "zero line period"},
		{"ZeroDivisor", func(m *Mode) { m.PixelClockDiv = 0 }, "divisor"},
		{"NoSync", func(m *Mode) { m.SyncLines = 0 }, "no sync lines"},
		{"NoPorches", func(m *Mode) { m.FrontPorchLines, m.BackPorchLines, m.InputLines = 0, 0, 0 }, "blanking"},
		{"WideHSync", func(m *Mode) { m.HSyncWidth = m.LinePeriod }, "hsync width"},
		{"EarlyTrigger", func(m *Mode) { m.TriggerOffset = m.HSyncWidth }, "before hsync end"},
		{"LongLine", func(m *Mode) { m.VisiblePixels = 800 }, "after period"},
		{"VisibleInput", func(m *Mode) { m.InputFirstLine = 470 }, "visible line"},
		{"LongInput", func(m *Mode) { m.InputLines = 100 }, "exceeds"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := VGA640x480
			test.modify(&m)
			err := m.Validate()
			if err == nil {
				t.Fatal("invalid mode accepted")
			}
			if !strings.Contains(err.Error(), test.err) {
				t.Errorf("error %q doesn't mention %q", err, test.err)
			}
		})
	}
}
