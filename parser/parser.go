package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/wudi/pdfdark/filters"
	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/recovery"
	"github.com/wudi/pdfdark/scanner"
)

// ErrNotPDF is returned when the input carries no %PDF- header.
var ErrNotPDF = errors.New("not a PDF file: missing %PDF- header")

// Config controls document parsing.
type Config struct {
	// Recovery receives recoverable syntax errors. Nil fails on the first one.
	Recovery recovery.Strategy
	Scanner  scanner.Config
	Limits   filters.Limits
	MaxDepth int
}

// DocumentParser builds a raw.Document by scanning every "n g obj"
// definition in file order. Later definitions replace earlier ones, which
// is how incremental updates supersede objects. Cross-reference data is
// not needed because the whole file is rewritten on output.
type DocumentParser struct {
	cfg      Config
	pipeline *filters.Pipeline
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 64
	}
	cfg.Scanner.Recovery = cfg.Recovery
	cfg.Scanner.Content = false
	return &DocumentParser{cfg: cfg, pipeline: filters.NewDefaultPipeline(cfg.Limits)}
}

var headerRE = regexp.MustCompile(`%PDF-(\d\.\d)`)

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	m := headerRE.FindSubmatch(head)
	if m == nil {
		return nil, ErrNotPDF
	}
	doc := raw.NewDocument()
	doc.Version = string(m[1])

	s := scanner.NewBytes(data, p.cfg.Scanner)
	tr := &tokenReader{s: s, p: p, doc: doc}
	var trailers []*raw.DictObj
	var objStms []raw.ObjectRef

	for n := 0; ; n++ {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := tr.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if rerr := p.recover(err, recovery.Location{ByteOffset: s.Position(), Component: "parser"}); rerr != nil {
				return nil, rerr
			}
			continue
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := tr.parseObject(0)
			if d, ok := obj.(*raw.DictObj); ok && err == nil {
				trailers = append(trailers, d)
			}
			continue
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		ref, ok, err := tr.objectHeader(tok)
		if err != nil {
			break
		}
		if !ok {
			continue
		}
		if rc, ok := s.(interface{ SetRecoveryLocation(recovery.Location) }); ok {
			rc.SetRecoveryLocation(recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser"})
		}
		obj, err := tr.parseIndirect()
		if err != nil {
			loc := recovery.Location{ByteOffset: tok.Pos, ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser"}
			if rerr := p.recover(fmt.Errorf("parse object %d %d: %w", ref.Num, ref.Gen, err), loc); rerr != nil {
				return nil, rerr
			}
			continue
		}
		if st, ok := obj.(*raw.StreamObj); ok {
			switch typ, _ := st.Dict.NameValue("Type"); typ {
			case "XRef":
				trailers = append(trailers, st.Dict)
				continue
			case "ObjStm":
				objStms = append(objStms, ref)
			}
		}
		doc.Objects[ref] = obj
	}

	for _, ref := range objStms {
		st, _ := doc.Objects[ref].(*raw.StreamObj)
		delete(doc.Objects, ref)
		if err := p.expandObjectStream(ctx, doc, st); err != nil {
			loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser:objstm"}
			if rerr := p.recover(err, loc); rerr != nil {
				return nil, rerr
			}
		}
	}
	if len(doc.Objects) == 0 {
		return nil, errors.New("no objects found")
	}

	doc.Trailer = mergeTrailers(trailers)
	if _, ok := doc.Trailer.Lookup("Encrypt"); ok {
		doc.Encrypted = true
	}
	if err := p.ensureRoot(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *DocumentParser) recover(err error, loc recovery.Location) error {
	if p.cfg.Recovery == nil {
		return err
	}
	switch p.cfg.Recovery.OnError(nil, err, loc) {
	case recovery.ActionFix, recovery.ActionSkip, recovery.ActionWarn:
		return nil
	}
	return err
}

// mergeTrailers folds trailer dictionaries newest first, so keys from
// the latest update win and older sections fill in what is missing.
func mergeTrailers(trailers []*raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	for i := len(trailers) - 1; i >= 0; i-- {
		for k, v := range trailers[i].KV {
			switch k {
			case "Root", "Info", "ID", "Encrypt":
				if _, ok := out.KV[k]; !ok {
					out.KV[k] = v
				}
			}
		}
	}
	return out
}

// ensureRoot checks the trailer's /Root and falls back to the last
// catalog dictionary in the file.
func (p *DocumentParser) ensureRoot(doc *raw.Document) error {
	if root, ok := doc.Trailer.Lookup("Root"); ok {
		if cat, ok := doc.ResolveDict(root); ok {
			if _, ok := cat.Lookup("Pages"); ok {
				return nil
			}
		}
	}
	var found *raw.ObjectRef
	for _, ref := range doc.Refs() {
		d, ok := doc.Objects[ref].(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := d.NameValue("Type"); typ == "Catalog" {
			r := ref
			found = &r
		}
	}
	if found == nil {
		return errors.New("document catalog not found")
	}
	doc.Trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: *found})
	return p.recover(errors.New("trailer missing /Root, using catalog "+found.String()), recovery.Location{ObjectNum: found.Num, Component: "parser:trailer"})
}

type tokenReader struct {
	s   scanner.Scanner
	p   *DocumentParser
	doc *raw.Document
	buf []scanner.Token
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) {
	r.buf = append(r.buf, tok)
}

// objectHeader checks for "<num> <gen> obj" after a leading integer. On
// mismatch the consumed tokens are pushed back so "1 2 0 obj" is not lost.
func (r *tokenReader) objectHeader(numTok scanner.Token) (raw.ObjectRef, bool, error) {
	genTok, err := r.next()
	if err != nil {
		return raw.ObjectRef{}, false, err
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		r.unread(genTok)
		return raw.ObjectRef{}, false, nil
	}
	kwTok, err := r.next()
	if err != nil {
		return raw.ObjectRef{}, false, err
	}
	if kwTok.Type != scanner.TokenKeyword || kwTok.Str != "obj" {
		r.unread(kwTok)
		r.unread(genTok)
		return raw.ObjectRef{}, false, nil
	}
	return raw.ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}, true, nil
}

// parseIndirect reads an object body, its optional stream payload and the
// closing endobj.
func (r *tokenReader) parseIndirect() (raw.Object, error) {
	obj, err := r.parseObject(0)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok && len(r.buf) == 0 {
		r.s.SetNextStreamLength(r.streamLength(dict))
		tok, err := r.next()
		r.s.SetNextStreamLength(-1)
		if err == nil {
			if tok.Type == scanner.TokenStream {
				obj = raw.NewStream(dict, tok.Bytes)
			} else {
				r.unread(tok)
			}
		}
	}
	if t, err := r.next(); err == nil {
		if t.Type != scanner.TokenKeyword || t.Str != "endobj" {
			r.unread(t)
		}
	}
	return obj, nil
}

// streamLength returns the direct or already-parsed /Length, or -1.
func (r *tokenReader) streamLength(dict *raw.DictObj) int64 {
	o, ok := dict.Lookup("Length")
	if !ok {
		return -1
	}
	if n, ok := r.doc.Resolve(o).(raw.NumberObj); ok && n.IsInt && n.I >= 0 {
		return n.I
	}
	return -1
}

func (r *tokenReader) parseObject(depth int) (raw.Object, error) {
	if depth > r.p.cfg.MaxDepth {
		return nil, errors.New("object nesting too deep")
	}
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	return r.objectFrom(tok, depth)
}

func (r *tokenReader) objectFrom(tok scanner.Token, depth int) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: bytes.Clone(tok.Bytes), Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case scanner.TokenArray:
		return r.parseArray(depth + 1)
	case scanner.TokenDict:
		return r.parseDict(depth + 1)
	}
	return nil, fmt.Errorf("unexpected %v token at offset %d", tok.Type, tok.Pos)
}

func (r *tokenReader) parseArray(depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := r.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		item, err := r.objectFrom(tok, depth)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *tokenReader) parseDict(depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := r.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name in dict, got %v at offset %d", tok.Type, tok.Pos)
		}
		val, err := r.parseObject(depth)
		if err != nil {
			return nil, err
		}
		// null-valued entries are equivalent to absent ones
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(raw.NameObj{Val: tok.Str}, val)
	}
}
