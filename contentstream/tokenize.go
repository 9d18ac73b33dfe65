package contentstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfdark/cmm"
	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/scanner"
)

// Kind tells operator tokens from byte ranges copied through untouched.
type Kind int

const (
	KindOperator Kind = iota
	KindBypass
)

func (k Kind) String() string {
	if k == KindBypass {
		return "bypass"
	}
	return "operator"
}

// Operand is one operand of an operator with its source byte range.
type Operand struct {
	Start, End int
	Value      raw.Object
}

// Number returns the operand as a float when it is numeric.
func (o Operand) Number() (float64, bool) { return raw.NumberValue(o.Value) }

// Name returns the operand as a name when it is one.
func (o Operand) Name() (string, bool) {
	if n, ok := o.Value.(raw.NameObj); ok {
		return n.Val, true
	}
	return "", false
}

// InlineImage describes a BI ... ID <data> EI block.
type InlineImage struct {
	Dict               *raw.DictObj
	DataStart, DataEnd int
}

// Token is one operator with its operands, or a bypass range. The ranges
// of consecutive tokens are contiguous: Start is the end of the previous
// token, Body the first significant byte, End one past the operator.
type Token struct {
	Kind     Kind
	Op       string
	Operands []Operand
	Start    int
	Body     int
	End      int
	Image    *InlineImage
}

var errUnterminatedImage = errors.New("unterminated inline image")

// Tokenize splits a content stream into tokens that partition data
// exactly. It does not recover: any lexical failure is a *ParseError.
func Tokenize(data []byte) ([]Token, error) {
	t := &tokenizer{data: data, s: scanner.NewBytes(data, scanner.Config{Content: true})}
	return t.run()
}

type tokenizer struct {
	data []byte
	s    scanner.Scanner
}

// next returns the next scanner token. A lexical error is reported at
// the first byte of the construct that failed, not where the scan
// stopped.
func (t *tokenizer) next() (scanner.Token, error) {
	at := t.skipSpace(int(t.s.Position()))
	tok, err := t.s.Next()
	if err != nil && err != io.EOF {
		return tok, &ParseError{Offset: int64(at), Err: err}
	}
	return tok, err
}

// atEnd reports whether err means the data ran out, including the
// scanner's own complaint about an array left open at EOF.
func (t *tokenizer) atEnd(err error) bool {
	if err == io.EOF {
		return true
	}
	var pe *ParseError
	return errors.As(err, &pe) && pe.Offset >= int64(len(t.data))
}

// skipSpace returns the offset of the first byte at or after p that is
// neither white space nor part of a comment.
func (t *tokenizer) skipSpace(p int) int {
	for p < len(t.data) {
		c := t.data[p]
		if c == '%' {
			for p < len(t.data) && t.data[p] != '\n' && t.data[p] != '\r' {
				p++
			}
			continue
		}
		if !scanner.IsWhitespace(c) {
			break
		}
		p++
	}
	return p
}

func (t *tokenizer) run() ([]Token, error) {
	var (
		out   []Token
		ops   []Operand
		start = 0
		body  = -1
	)
	for {
		tok, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if body < 0 {
			body = int(tok.Pos)
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case ")", "{", "}", ">":
				return nil, &ParseError{Offset: tok.Pos, Err: fmt.Errorf("unexpected %q", tok.Str)}
			}
			cur := Token{Kind: KindOperator, Op: tok.Str, Operands: ops, Start: start, Body: body, End: int(tok.End)}
			if tok.Str == "BI" {
				img, end, err := t.inlineImage(tok.Pos)
				if err != nil {
					return nil, err
				}
				cur = Token{Kind: KindBypass, Op: "BI", Start: start, Body: body, End: end, Image: img}
			}
			out = append(out, cur)
			ops, start, body = nil, cur.End, -1
			continue
		}
		v, err := t.object(tok)
		if err != nil {
			return nil, err
		}
		ops = append(ops, Operand{Start: int(tok.Pos), End: int(t.s.Position()), Value: v})
	}
	if start < len(t.data) {
		if body < 0 {
			body = len(t.data)
		}
		out = append(out, Token{Kind: KindBypass, Operands: ops, Start: start, Body: body, End: len(t.data)})
	}
	return out, nil
}

// object converts a scanner token into a value, consuming the rest of an
// array or dictionary.
func (t *tokenizer) object(tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case scanner.TokenName:
		return raw.NameLiteral(tok.Str), nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenArray:
		arr := raw.NewArray()
		for {
			item, err := t.next()
			if t.atEnd(err) {
				return nil, &ParseError{Offset: tok.Pos, Err: errors.New("unclosed array")}
			}
			if err != nil {
				return nil, err
			}
			if item.Type == scanner.TokenKeyword && item.Str == "]" {
				return arr, nil
			}
			v, err := t.object(item)
			if err != nil {
				return nil, err
			}
			arr.Append(v)
		}
	case scanner.TokenDict:
		d := raw.Dict()
		for {
			key, err := t.next()
			if t.atEnd(err) {
				return nil, &ParseError{Offset: tok.Pos, Err: errors.New("unclosed dictionary")}
			}
			if err != nil {
				return nil, err
			}
			if key.Type == scanner.TokenKeyword && key.Str == ">>" {
				return d, nil
			}
			if key.Type != scanner.TokenName {
				return nil, &ParseError{Offset: key.Pos, Err: errors.New("dictionary key is not a name")}
			}
			val, err := t.next()
			if t.atEnd(err) {
				return nil, &ParseError{Offset: tok.Pos, Err: errors.New("dictionary value missing")}
			}
			if err != nil {
				return nil, err
			}
			v, err := t.object(val)
			if err != nil {
				return nil, err
			}
			d.KV[key.Str] = v
		}
	}
	return nil, &ParseError{Offset: tok.Pos, Err: errors.New("unexpected " + tok.Str)}
}

// inlineImage reads the inline dictionary after BI, which starts at
// begin, then the payload through EI. It returns the end offset of the
// block.
func (t *tokenizer) inlineImage(begin int64) (*InlineImage, int, error) {
	unterminated := &ParseError{Offset: begin, Err: errUnterminatedImage}
	d := raw.Dict()
	for !t.atID() {
		key, err := t.next()
		if err == io.EOF {
			return nil, 0, unterminated
		}
		if err != nil {
			return nil, 0, err
		}
		if key.Type != scanner.TokenName {
			return nil, 0, &ParseError{Offset: key.Pos, Err: errors.New("inline image key is not a name")}
		}
		val, err := t.next()
		if err == io.EOF {
			return nil, 0, unterminated
		}
		if err != nil {
			return nil, 0, err
		}
		v, err := t.object(val)
		if err != nil {
			return nil, 0, err
		}
		d.KV[key.Str] = v
	}
	length, minScan := inlineExtent(d)
	t.s.SetNextInlineImage(length, minScan)
	tok, err := t.next()
	if err == io.EOF || (err == nil && tok.Type != scanner.TokenInlineImage) {
		return nil, 0, unterminated
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Offset = begin
		}
		return nil, 0, err
	}
	dataStart := int(tok.Pos) + 3
	return &InlineImage{Dict: d, DataStart: dataStart, DataEnd: dataStart + len(tok.Bytes)}, int(tok.End), nil
}

// atID reports whether the next significant bytes are the ID keyword.
func (t *tokenizer) atID() bool {
	p := t.skipSpace(int(t.s.Position()))
	if p+2 > len(t.data) || t.data[p] != 'I' || t.data[p+1] != 'D' {
		return false
	}
	return p+2 == len(t.data) || scanner.IsDelimiter(t.data[p+2])
}

// inlineExtent returns the declared payload length (-1 when absent) and,
// for unfiltered images with a known geometry, the raw sample size the
// EI search starts from.
func inlineExtent(d *raw.DictObj) (int64, int64) {
	for _, k := range []string{"L", "Length"} {
		if v, ok := d.Lookup(k); ok {
			if n, ok := raw.NumberValue(v); ok && n >= 0 {
				return int64(n), 0
			}
		}
	}
	if lookup(d, "F", "Filter") != nil {
		return -1, 0
	}
	w, okW := number(lookup(d, "W", "Width"))
	h, okH := number(lookup(d, "H", "Height"))
	if !okW || !okH || w <= 0 || h <= 0 {
		return -1, 0
	}
	ncomp, bpc := 0, 0
	if b, ok := lookup(d, "IM", "ImageMask").(raw.BoolObj); ok && b.V {
		ncomp, bpc = 1, 1
	} else {
		if v, ok := number(lookup(d, "BPC", "BitsPerComponent")); ok {
			bpc = int(v)
		}
		switch cs := lookup(d, "CS", "ColorSpace").(type) {
		case raw.NameObj:
			if cs.Val == "I" || cs.Val == "Indexed" {
				ncomp = 1
			} else {
				ncomp = cmm.SpaceFromName(cs.Val).Components()
			}
		case *raw.ArrayObj:
			if first, ok := cs.Get(0); ok {
				if n, ok := first.(raw.NameObj); ok && (n.Val == "I" || n.Val == "Indexed") {
					ncomp = 1
				}
			}
		}
	}
	if ncomp == 0 || bpc <= 0 {
		return -1, 0
	}
	row := (int64(w)*int64(ncomp)*int64(bpc) + 7) / 8
	return -1, row * int64(h)
}

func lookup(d *raw.DictObj, short, long string) raw.Object {
	if v, ok := d.Lookup(short); ok {
		return v
	}
	if v, ok := d.Lookup(long); ok {
		return v
	}
	return nil
}

func number(o raw.Object) (float64, bool) {
	if o == nil {
		return 0, false
	}
	return raw.NumberValue(o)
}
