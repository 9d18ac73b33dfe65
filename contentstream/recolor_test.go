package contentstream

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/wudi/pdfdark/cmm"
)

func claudeProcessor() Processor {
	return NewColorProcessor(cmm.NewTransformer(cmm.Color8(42, 37, 34), cmm.DefaultParams()))
}

func TestColorProcessor_Rewrites(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"white fill", "1 1 1 rg 0 0 100 100 re f", "0.1647 0.1451 0.1333 rg 0 0 100 100 re f"},
		{"white stroke gray", "1 G 0 0 m 10 10 l S", "0.1647 0.1451 0.1333 RG 0 0 m 10 10 l S"},
		{"black text", "BT 0 g (x) Tj ET", "BT 0.4 0.4 0.4 rg (x) Tj ET"},
		{"cmyk black", "0 0 0 1 k", "0.4 0.4 0.4 rg"},
		{"cmyk white stroke", "0 0 0 0 K", "0.1647 0.1451 0.1333 RG"},
		{"mid tones kept", "0.5 0.6 0.7 rg 0.8 G", "0.5 0.6 0.7 rg 0.8 G"},
		{"comment kept", "% head\n1 g", "% head\n0.1647 0.1451 0.1333 rg"},
		{"sc after rewrite", "/DeviceGray cs 1 sc 0.7 sc 0.7 sc", "/DeviceGray cs 0.1647 0.1451 0.1333 rg 0.7 g 0.7 sc"},
		{"rgb scn", "/DeviceRGB CS 0 0 0 SCN", "/DeviceRGB CS 0.4 0.4 0.4 RG"},
		{"q restores space", "0.7 g q 1 g Q 0.7 sc", "0.7 g q 0.1647 0.1451 0.1333 rg Q 0.7 sc"},
		{"no restore without Q", "0.7 g q 1 g 0.7 sc Q", "0.7 g q 0.1647 0.1451 0.1333 rg 0.7 g Q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := claudeProcessor().Process([]byte(tt.in), NewGraphicsState())
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if string(res.Data) != tt.want {
				t.Fatalf("got  %q\nwant %q", res.Data, tt.want)
			}
			if len(res.Warnings) != 0 {
				t.Fatalf("unexpected warnings: %v", res.Warnings)
			}
		})
	}
}

func TestColorProcessor_RGBGrid(t *testing.T) {
	p := claudeProcessor()
	bg := strings.Join(cmm.NewTransformer(cmm.Color8(42, 37, 34), cmm.DefaultParams()).Operands(cmm.Color8(42, 37, 34)), " ") + " rg"
	for r := 0; r <= 10; r++ {
		for g := 0; g <= 10; g++ {
			for b := 0; b <= 10; b++ {
				in := cmm.Color{R: float64(r) / 10, G: float64(g) / 10, B: float64(b) / 10}
				src := strings.Join([]string{fmtGrid(in.R), fmtGrid(in.G), fmtGrid(in.B), "rg"}, " ")
				res, err := p.Process([]byte(src), nil)
				if err != nil {
					t.Fatalf("%s: %v", src, err)
				}
				got := string(res.Data)
				v := in.Value()
				switch {
				case v > 0.96:
					if got != bg || res.Rewrites != 1 {
						t.Fatalf("%s: got %q (%d rewrites), want %q", src, got, res.Rewrites, bg)
					}
				case v >= 0.5:
					if got != src || res.Rewrites != 0 {
						t.Fatalf("%s: got %q (%d rewrites), want it untouched", src, got, res.Rewrites)
					}
				default:
					out := parseRG(t, got)
					before, after := cmm.RGBToHSV(in), cmm.RGBToHSV(out)
					if math.Abs(after.V-(0.4+0.6*v)) > 1e-3 {
						t.Fatalf("%s -> %q: value %.4f, want %.4f", src, got, after.V, 0.4+0.6*v)
					}
					if math.Abs(after.S-before.S) > 1e-3 {
						t.Fatalf("%s -> %q: saturation %.4f, want %.4f", src, got, after.S, before.S)
					}
					if before.S > 0 {
						dh := math.Abs(after.H - before.H)
						if dh > 180 {
							dh = 360 - dh
						}
						if dh > 0.5 {
							t.Fatalf("%s -> %q: hue %.2f, want %.2f", src, got, after.H, before.H)
						}
					}
				}
			}
		}
	}
}

func fmtGrid(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func parseRG(t *testing.T, s string) cmm.Color {
	t.Helper()
	f := strings.Fields(s)
	if len(f) != 4 || f[3] != "rg" {
		t.Fatalf("not an rg operator: %q", s)
	}
	var c [3]float64
	for i := range c {
		v, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			t.Fatalf("operand %q: %v", f[i], err)
		}
		c[i] = v
	}
	return cmm.Color{R: c[0], G: c[1], B: c[2]}
}

func TestColorProcessor_UnchangedStreamAliasesInput(t *testing.T) {
	in := []byte("q 0.6 g 0 0 10 10 re f Q")
	res, err := claudeProcessor().Process(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed() || &res.Data[0] != &in[0] {
		t.Fatalf("expected untouched input, got %q", res.Data)
	}
}

func TestColorProcessor_Deterministic(t *testing.T) {
	in := []byte("0.1 0.2 0.3 rg 1 1 1 RG 0 0 0 0.9 k")
	a, _ := claudeProcessor().Process(in, nil)
	b, _ := claudeProcessor().Process(in, nil)
	if !bytes.Equal(a.Data, b.Data) {
		t.Fatalf("outputs differ: %q vs %q", a.Data, b.Data)
	}
}

func TestColorProcessor_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		check  func(error) bool
		offset int64
	}{
		{"pattern", "/Pattern cs /P0 scn", func(err error) bool {
			var e *cmm.UnsupportedColorSpaceError
			return errors.As(err, &e) && e.Name == "Pattern"
		}, 12},
		{"named space", "/CS0 CS 0.3 SC", func(err error) bool {
			var e *cmm.UnsupportedColorSpaceError
			return errors.As(err, &e) && e.Name == "CS0"
		}, 8},
		{"short rg", "1 1 rg", func(err error) bool {
			var e *OperandError
			return errors.As(err, &e) && e.Op == "rg"
		}, 0},
		{"name operand", "/X g", func(err error) bool {
			var e *OperandError
			return errors.As(err, &e) && e.Op == "g"
		}, 0},
		{"unbalanced Q", "Q", func(err error) bool { return errors.Is(err, ErrStateUnderflow) }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := claudeProcessor().Process([]byte(tt.in), nil)
			if err != nil {
				t.Fatal(err)
			}
			if string(res.Data) != tt.in {
				t.Fatalf("stream changed: %q", res.Data)
			}
			if len(res.Warnings) != 1 || !tt.check(res.Warnings[0].Err) {
				t.Fatalf("warnings = %v", res.Warnings)
			}
			if res.Warnings[0].Offset != tt.offset {
				t.Fatalf("offset = %d, want %d", res.Warnings[0].Offset, tt.offset)
			}
		})
	}
}

func TestColorProcessor_ParseErrorKeepsStream(t *testing.T) {
	in := []byte("1 g (open")
	res, err := claudeProcessor().Process(in, nil)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if !bytes.Equal(res.Data, in) || res.Changed() {
		t.Fatalf("stream should be unchanged, got %q", res.Data)
	}
}

func TestColorProcessor_InlineImageVerbatim(t *testing.T) {
	payload := "\xff\xff EI \xff"
	in := "1 g BI /W 6 /H 1 /CS /G /BPC 8 /L 6 ID " + payload + " EI 0 g"
	res, err := claudeProcessor().Process([]byte(in), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "0.1647 0.1451 0.1333 rg BI /W 6 /H 1 /CS /G /BPC 8 /L 6 ID " + payload + " EI 0.4 0.4 0.4 rg"
	if string(res.Data) != want {
		t.Fatalf("got  %q\nwant %q", res.Data, want)
	}
}

func TestColorProcessor_SharedStateAcrossStreams(t *testing.T) {
	p := claudeProcessor()
	gs := NewGraphicsState()
	if _, err := p.Process([]byte("q /DeviceGray cs 1 sc"), gs); err != nil {
		t.Fatal(err)
	}
	res, err := p.Process([]byte("0.7 sc Q 0.7 sc"), gs)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(res.Data), "0.7 g Q 0.7 sc"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if err := gs.Restore(); !errors.Is(err, ErrStateUnderflow) {
		t.Fatalf("q left on the stack: %v", err)
	}
}
