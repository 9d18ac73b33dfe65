package cmm

import (
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func claude() Color { return Color8(42, 37, 34) }

func TestTransformer_Classify(t *testing.T) {
	tr := NewTransformer(claude(), DefaultParams())
	tests := []struct {
		name string
		in   Color
		want Action
	}{
		{"white", Color{1, 1, 1}, ActionBackground},
		{"just above cutoff", Color{0.961, 0.5, 0.2}, ActionBackground},
		{"at cutoff", Color{0.96, 0.96, 0.96}, ActionKeep},
		{"mid gray", Color{0.5, 0.5, 0.5}, ActionKeep},
		{"below half", Color{0.49, 0.1, 0.1}, ActionBrighten},
		{"black", Color{}, ActionBrighten},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Classify(tt.in); got != tt.want {
				t.Fatalf("Classify(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTransformer_ApplyBackground(t *testing.T) {
	tr := NewTransformer(claude(), DefaultParams())
	a, c := tr.Apply(Color{1, 1, 1})
	if a != ActionBackground || c != claude() {
		t.Fatalf("got %v %v", a, c)
	}
	got := tr.Operands(c)
	want := []string{"0.1647", "0.1451", "0.1333"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("operands = %v, want %v", got, want)
		}
	}
}

func TestTransformer_BrightenBlack(t *testing.T) {
	tr := NewTransformer(Color{}, DefaultParams())
	_, c := tr.Apply(Color{})
	if !near(c.R, 0.4) || !near(c.G, 0.4) || !near(c.B, 0.4) {
		t.Fatalf("black -> %v, want 0.4 gray", c)
	}
}

func TestTransformer_BrightenKeepsHueAndSaturation(t *testing.T) {
	tr := NewTransformer(Color{}, DefaultParams())
	in := Color{0.3, 0.1, 0.2}
	a, out := tr.Apply(in)
	if a != ActionBrighten {
		t.Fatalf("action = %v", a)
	}
	hi, ho := RGBToHSV(in), RGBToHSV(out)
	if !near(hi.H, ho.H) || !near(hi.S, ho.S) {
		t.Fatalf("hue/sat changed: %+v -> %+v", hi, ho)
	}
	if want := 0.4 + 0.3*0.6; !near(ho.V, want) {
		t.Fatalf("value = %v, want %v", ho.V, want)
	}
}

func TestTransformer_ApplyComponents(t *testing.T) {
	tr := NewTransformer(claude(), DefaultParams())
	tests := []struct {
		space Space
		comps []float64
		want  Action
	}{
		{Gray, []float64{0.5}, ActionKeep},
		{CMYK, []float64{0, 0, 0, 0.5}, ActionKeep},
		{CMYK, []float64{0, 0, 0, 0}, ActionBackground},
		{RGB, []float64{0, 0, 0}, ActionBrighten},
	}
	for _, tt := range tests {
		a, _, err := tr.ApplyComponents(tt.space, tt.comps)
		if err != nil {
			t.Fatalf("%v %v: %v", tt.space, tt.comps, err)
		}
		if a != tt.want {
			t.Fatalf("%v %v: action %v, want %v", tt.space, tt.comps, a, tt.want)
		}
	}
	if _, _, err := tr.ApplyComponents(RGB, []float64{1}); err == nil {
		t.Fatalf("expected component count error")
	}
}

func TestTransformer_PixelStaysInSpace(t *testing.T) {
	tr := NewTransformer(Color{}, DefaultParams())
	out, ok := tr.Pixel(Gray, []float64{1})
	if !ok || len(out) != 1 || !near(out[0], 0) {
		t.Fatalf("gray white -> %v %v", out, ok)
	}
	out, ok = tr.Pixel(CMYK, []float64{0, 0, 0, 1})
	if !ok || len(out) != 4 || !near(out[3], 0.6) {
		t.Fatalf("cmyk black -> %v %v", out, ok)
	}
	in := []float64{0.6}
	out, ok = tr.Pixel(Gray, in)
	if ok || &out[0] != &in[0] {
		t.Fatalf("mid gray should be kept")
	}
}
