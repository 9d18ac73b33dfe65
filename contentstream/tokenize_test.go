package contentstream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ops(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind.String() + ":" + t.Op
	}
	return out
}

func TestTokenize_PartitionsStream(t *testing.T) {
	inputs := []string{
		"",
		"   \n",
		"q 1 0 0 1 72 720 cm BT /F1 12 Tf (Hello \\(world\\)) Tj ET Q",
		"% comment\n0 0 100 100 re f\n",
		"[(A) -120 (B)] TJ <</MCID 3>> BDC EMC 1 g 0 0",
		"/GS0 gs<48656c6c6f>Tj",
		"BI /W 2 /H 1 /CS /G /BPC 8 ID \x00\xff\nEI Q",
	}
	for _, in := range inputs {
		tokens, err := Tokenize([]byte(in))
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", in, err)
		}
		pos := 0
		var joined []byte
		for i, tok := range tokens {
			if tok.Start != pos {
				t.Fatalf("%q: token %d starts at %d, want %d", in, i, tok.Start, pos)
			}
			if tok.Body < tok.Start || tok.End < tok.Body {
				t.Fatalf("%q: token %d has bad range %d/%d/%d", in, i, tok.Start, tok.Body, tok.End)
			}
			joined = append(joined, in[tok.Start:tok.End]...)
			pos = tok.End
		}
		if pos != len(in) || string(joined) != in {
			t.Fatalf("%q: tokens cover %q", in, joined)
		}
	}
}

func TestTokenize_Operators(t *testing.T) {
	src := "q [(A) 3] TJ 1 0.5 .25 rg 0 0"
	tokens, err := Tokenize([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"operator:q", "operator:TJ", "operator:rg", "bypass:"}
	if diff := cmp.Diff(want, ops(tokens)); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
	rg := tokens[2]
	if len(rg.Operands) != 3 {
		t.Fatalf("rg operands = %d", len(rg.Operands))
	}
	if v, _ := rg.Operands[2].Number(); v != 0.25 {
		t.Fatalf("third operand = %v", v)
	}
	if got := src[rg.Operands[0].Start:rg.Operands[0].End]; got != "1" {
		t.Fatalf("operand text = %q", got)
	}
	if n := len(tokens[3].Operands); n != 2 {
		t.Fatalf("dangling operands = %d, want 2", n)
	}
	if arr := tokens[1].Operands[0]; src[arr.Start:arr.End] != "[(A) 3]" {
		t.Fatalf("array operand range = %q", src[arr.Start:arr.End])
	}
}

func TestTokenize_InlineImageDeclaredLength(t *testing.T) {
	payload := "A EI B"
	src := "q BI /W 6 /H 1 /CS /G /BPC 8 /L 6 ID " + payload + "\nEI Q"
	tokens, err := Tokenize([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"operator:q", "bypass:BI", "operator:Q"}, ops(tokens)); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
	img := tokens[1].Image
	if img == nil {
		t.Fatalf("missing inline image")
	}
	if got := src[img.DataStart:img.DataEnd]; got != payload {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
	if w, _ := img.Dict.Lookup("W"); w == nil {
		t.Fatalf("dictionary not recorded")
	}
}

func TestTokenize_InlineImageComputedSize(t *testing.T) {
	payload := "A EI B"
	src := "BI /W 6 /H 1 /CS /G /BPC 8 ID " + payload + "\nEI 0 g"
	tokens, err := Tokenize([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 2 || tokens[0].Image == nil {
		t.Fatalf("tokens = %v", ops(tokens))
	}
	img := tokens[0].Image
	if got := src[img.DataStart:img.DataEnd]; got != payload+"\n" {
		t.Fatalf("payload = %q", got)
	}
}

func TestTokenize_ParseErrors(t *testing.T) {
	for _, tt := range []struct {
		in     string
		offset int64
	}{
		{"(unterminated rg", 0},
		{"q (abc", 2},
		{"1 g ] f", 4},
		{"[1 2", 0},
		{"0 g [1 2", 4},
		{"<</A 1", 0},
		{"BI /W 1 /H 1 ID xyz", 0},
		{"<4142", 0},
		{"1 g ) f", 4},
		{"} 0 g", 0},
		{"0 > 1", 2},
	} {
		_, err := Tokenize([]byte(tt.in))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Tokenize(%q) err = %v, want *ParseError", tt.in, err)
		}
		if pe.Offset != tt.offset {
			t.Fatalf("Tokenize(%q) offset = %d, want %d", tt.in, pe.Offset, tt.offset)
		}
	}
}

func TestRebuild_NoRewritesIsIdentity(t *testing.T) {
	src := []byte("%PS\n q 0.5 0.5 0.5 rg\r\n(x) Tj BI /W 1 /H 1 /BPC 8 /CS /G ID \x80 EI  Q  ")
	tokens, err := Tokenize(src)
	if err != nil {
		t.Fatal(err)
	}
	if got := Rebuild(src, tokens, nil); !bytes.Equal(got, src) {
		t.Fatalf("rebuild = %q, want %q", got, src)
	}
}

func TestRebuild_InsertsSeparator(t *testing.T) {
	src := []byte("1 g")
	tokens := []Token{
		{Kind: KindBypass, Start: 0, Body: 0, End: 0},
		{Kind: KindOperator, Op: "g", Start: 0, Body: 0, End: 3},
	}
	got := Rebuild(src, tokens, map[int]Rewrite{1: {Operands: []string{"0"}, Op: "g"}})
	if string(got) != " 0 g" {
		t.Fatalf("rebuild = %q", got)
	}
}
