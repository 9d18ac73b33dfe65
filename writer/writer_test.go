package writer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfdark/filters"
	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/parser"
)

func sampleDoc() *raw.Document {
	doc := raw.NewDocument()
	doc.Version = "1.5"
	catalog := raw.Dict()
	catalog.KV["Type"] = raw.NameLiteral("Catalog")
	catalog.KV["Pages"] = raw.Ref(2, 0)
	pages := raw.Dict()
	pages.KV["Type"] = raw.NameLiteral("Pages")
	pages.KV["Kids"] = raw.NewArray(raw.Ref(3, 0))
	pages.KV["Count"] = raw.NumberInt(1)
	page := raw.Dict()
	page.KV["Type"] = raw.NameLiteral("Page")
	page.KV["Parent"] = raw.Ref(2, 0)
	page.KV["MediaBox"] = raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberFloat(595.5), raw.NumberInt(842))
	page.KV["Contents"] = raw.Ref(4, 0)
	page.KV["A b#"] = raw.Str([]byte("x(y)\\z\n\xff"))
	doc.Objects[raw.ObjectRef{Num: 1}] = catalog
	doc.Objects[raw.ObjectRef{Num: 2}] = pages
	doc.Objects[raw.ObjectRef{Num: 3}] = page
	doc.Objects[raw.ObjectRef{Num: 4}] = raw.NewStream(raw.Dict(), []byte("0.4 g 0 0 10 10 re f"))
	doc.Objects[raw.ObjectRef{Num: 6}] = raw.HexStr([]byte{0xde, 0xad})
	doc.Trailer.KV["Root"] = raw.Ref(1, 0)
	return doc
}

func write(t *testing.T, doc *raw.Document, cfg Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := New(cfg).Write(context.Background(), doc, &buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func TestWrite_RoundTrip(t *testing.T) {
	out := write(t, sampleDoc(), Config{})
	if !bytes.HasPrefix(out, []byte("%PDF-1.5\n")) {
		t.Fatalf("header = %q", out[:16])
	}
	if !bytes.Contains(out, []byte("0000000000 65535 f \n")) || !bytes.HasSuffix(out, []byte("%%EOF\n")) {
		t.Fatalf("missing xref or EOF marker")
	}
	back, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(back.Objects) != 5 {
		t.Fatalf("objects = %d", len(back.Objects))
	}
	page := back.Objects[raw.ObjectRef{Num: 3}].(*raw.DictObj)
	s, _ := page.Lookup("A b#")
	if diff := cmp.Diff([]byte("x(y)\\z\n\xff"), s.(raw.StringObj).Bytes); diff != "" {
		t.Fatalf("string mismatch (-want +got):\n%s", diff)
	}
	mb, _ := page.Lookup("MediaBox")
	if v, _ := raw.NumberValue(mb.(*raw.ArrayObj).Items[2]); v != 595.5 {
		t.Fatalf("MediaBox width = %v", v)
	}
	stream := back.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	names, params := filters.ExtractFilters(stream.Dict)
	if diff := cmp.Diff([]string{"FlateDecode"}, names); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}
	data, err := filters.NewDefaultPipeline(filters.Limits{}).Decode(context.Background(), stream.Data, names, params)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "0.4 g 0 0 10 10 re f" {
		t.Fatalf("content = %q", data)
	}
	if _, ok := back.Trailer.Lookup("ID"); !ok {
		t.Fatalf("trailer has no ID")
	}
}

func TestWrite_Deterministic(t *testing.T) {
	a := write(t, sampleDoc(), Config{})
	b := write(t, sampleDoc(), Config{})
	if !bytes.Equal(a, b) {
		t.Fatalf("output differs between runs")
	}
}

func TestWrite_DoesNotModifyDocument(t *testing.T) {
	doc := sampleDoc()
	write(t, doc, Config{})
	s := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if _, ok := s.Dict.Lookup("Filter"); ok || string(s.Data) != "0.4 g 0 0 10 10 re f" {
		t.Fatalf("stream modified: %v %q", s.Dict.KV, s.Data)
	}
}

func TestWrite_Uncompressed(t *testing.T) {
	out := write(t, sampleDoc(), Config{Compression: -1})
	if !bytes.Contains(out, []byte("<</Length 20>>\nstream\n0.4 g 0 0 10 10 re f\nendstream")) {
		t.Fatalf("stream not written verbatim:\n%s", out)
	}
}

func TestWrite_KeepsPermanentID(t *testing.T) {
	doc := sampleDoc()
	doc.Trailer.KV["ID"] = raw.NewArray(raw.HexStr([]byte{1, 2}), raw.HexStr([]byte{3, 4}))
	out := write(t, doc, Config{})
	if !bytes.Contains(out, []byte("/ID [<0102> <")) {
		t.Fatalf("first ID not kept:\n%s", out[bytes.Index(out, []byte("trailer")):])
	}
}

func TestWrite_NoRoot(t *testing.T) {
	doc := sampleDoc()
	delete(doc.Trailer.KV, "Root")
	if err := New(Config{}).Write(context.Background(), doc, &bytes.Buffer{}); err != ErrNoRoot {
		t.Fatalf("err = %v", err)
	}
}

func TestPDFNameLiteral(t *testing.T) {
	for in, want := range map[string]string{
		"Type":      "/Type",
		"A b":       "/A#20b",
		"x#y":       "/x#23y",
		"p(q)":      "/p#28q#29",
		"\xe9t\xe9": "/#E9t#E9",
	} {
		if got := pdfNameLiteral(in); got != want {
			t.Fatalf("pdfNameLiteral(%q) = %q, want %q", in, got, want)
		}
	}
	if got := string(escapeLiteralString([]byte("a\x01"))); !strings.HasPrefix(got, "(a\\001") {
		t.Fatalf("escape = %q", got)
	}
}
