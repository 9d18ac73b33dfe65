package convert

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfdark/cmm"
	"github.com/wudi/pdfdark/contentstream"
	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/ir/semantic"
	"github.com/wudi/pdfdark/observability"
	"github.com/wudi/pdfdark/raster"
	"github.com/wudi/pdfdark/recovery"
	"github.com/wudi/pdfdark/theme"
	"github.com/wudi/pdfdark/writer"
)

// buildPDF writes a one-page document whose page draws content. Object 5
// is a form drawing "0 g", objects 6 and 7 are identical gray images.
func buildPDF(t *testing.T, content string) []byte {
	t.Helper()
	doc := raw.NewDocument()
	set := func(n int, obj raw.Object) { doc.Objects[raw.ObjectRef{Num: n}] = obj }

	catalog := raw.Dict()
	catalog.KV["Type"] = raw.NameLiteral("Catalog")
	catalog.KV["Pages"] = raw.Ref(2, 0)
	set(1, catalog)

	pages := raw.Dict()
	pages.KV["Type"] = raw.NameLiteral("Pages")
	pages.KV["Kids"] = raw.NewArray(raw.Ref(3, 0))
	pages.KV["Count"] = raw.NumberInt(1)
	set(2, pages)

	xobjs := raw.Dict()
	xobjs.KV["Fm1"] = raw.Ref(5, 0)
	xobjs.KV["Im1"] = raw.Ref(6, 0)
	xobjs.KV["Im2"] = raw.Ref(7, 0)
	res := raw.Dict()
	res.KV["XObject"] = xobjs
	page := raw.Dict()
	page.KV["Type"] = raw.NameLiteral("Page")
	page.KV["MediaBox"] = raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(200), raw.NumberInt(100))
	page.KV["Resources"] = res
	page.KV["Contents"] = raw.Ref(4, 0)
	set(3, page)
	set(4, raw.NewStream(raw.Dict(), []byte(content)))

	form := raw.Dict()
	form.KV["Subtype"] = raw.NameLiteral("Form")
	set(5, raw.NewStream(form, []byte("0 g")))
	for _, n := range []int{6, 7} {
		img := raw.Dict()
		img.KV["Subtype"] = raw.NameLiteral("Image")
		img.KV["Width"] = raw.NumberInt(2)
		img.KV["Height"] = raw.NumberInt(1)
		img.KV["BitsPerComponent"] = raw.NumberInt(8)
		img.KV["ColorSpace"] = raw.NameLiteral("DeviceGray")
		set(n, raw.NewStream(img, []byte{255, 0}))
	}
	doc.Trailer.KV["Root"] = raw.Ref(1, 0)

	var buf bytes.Buffer
	if err := writer.New(writer.Config{}).Write(context.Background(), doc, &buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func reopen(t *testing.T, data []byte) *semantic.Document {
	t.Helper()
	d, err := semantic.Open(context.Background(), data, semantic.Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	return d
}

func streamData(t *testing.T, s *semantic.Stream) string {
	t.Helper()
	data, err := s.Data()
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	return string(data)
}

func TestConvert_RewritesPage(t *testing.T) {
	c := New(Config{NoUnderlay: true})
	res, err := c.Convert(context.Background(), buildPDF(t, "1 1 1 rg 0 0 100 100 re f"), "claude")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings: %v", res.Warnings)
	}
	d := reopen(t, res.Data)
	p := d.Pages()[0]
	if got := streamData(t, p.ContentStreams()[0]); got != "0.1647 0.1451 0.1333 rg 0 0 100 100 re f" {
		t.Fatalf("content = %q", got)
	}
	if got := streamData(t, p.FormObjects()[0]); got != "0.4 0.4 0.4 rg" {
		t.Fatalf("form = %q", got)
	}
	for _, img := range p.ImageObjects() {
		buf, err := img.Decode()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if diff := cmp.Diff([]byte{38, 102}, buf.Data); diff != "" {
			t.Fatalf("image %v (-want +got):\n%s", img.ID(), diff)
		}
	}
	want := Stats{Pages: 1, Streams: 2, Rewrites: 2, Forms: 1, Images: 2, ImagesRecolored: 2, ImagesShared: 1}
	got := res.Stats
	got.Objects, got.OutputBytes = 0, 0
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}
	if res.Stats.Objects != 7 || res.Stats.OutputBytes != int64(len(res.Data)) {
		t.Fatalf("objects %d, bytes %d", res.Stats.Objects, res.Stats.OutputBytes)
	}
}

func TestConvert_Underlay(t *testing.T) {
	res, err := New(Config{}).Convert(context.Background(), buildPDF(t, "0.7 g"), "Claude")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	streams := reopen(t, res.Data).Pages()[0].ContentStreams()
	if len(streams) != 2 {
		t.Fatalf("contents = %d", len(streams))
	}
	if got := streamData(t, streams[0]); got != "q 0.1647 0.1451 0.1333 rg 0 0 200 100 re f Q\n" {
		t.Fatalf("underlay = %q", got)
	}
	if got := streamData(t, streams[1]); got != "0.7 g" {
		t.Fatalf("content = %q", got)
	}
}

func TestConvert_Deterministic(t *testing.T) {
	in := buildPDF(t, "q 0 0 1 RG 1 g 0.2 0.3 0.1 0 k Q")
	c := New(Config{Workers: 4})
	a, err := c.Convert(context.Background(), in, "midnight")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	b, err := New(Config{Workers: 1}).Convert(context.Background(), in, "midnight")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Fatalf("outputs differ")
	}
}

func TestConvert_ParseErrorKeepsStream(t *testing.T) {
	res, err := New(Config{NoUnderlay: true}).Convert(context.Background(), buildPDF(t, "1 g (unterminated"), "classic")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings: %v", res.Warnings)
	}
	w := res.Warnings[0]
	var perr *contentstream.ParseError
	if w.Kind != recovery.KindParse || w.Location.Page != 1 || w.Location.ObjectNum != 4 || !errors.As(w.Err, &perr) {
		t.Fatalf("warning = %v", w)
	}
	if got := streamData(t, reopen(t, res.Data).Pages()[0].ContentStreams()[0]); got != "1 g (unterminated" {
		t.Fatalf("content = %q", got)
	}
}

func TestConvert_FatalErrors(t *testing.T) {
	c := New(Config{})
	pdf := buildPDF(t, "1 g")

	_, err := c.Convert(context.Background(), pdf, "neon")
	var cerr *ConversionError
	var terr *theme.UnknownThemeError
	if !errors.As(err, &cerr) || cerr.Kind != KindUnknownTheme || !errors.As(err, &terr) || terr.ID != "neon" {
		t.Fatalf("unknown theme: err = %v", err)
	}

	_, err = c.Convert(context.Background(), []byte("hello"), "classic")
	if !errors.As(err, &cerr) || cerr.Kind != KindInvalidDocument {
		t.Fatalf("invalid: err = %v", err)
	}

	encrypted := append(append([]byte(nil), pdf...), []byte("trailer\n<< /Root 1 0 R /Encrypt 4 0 R >>\n")...)
	_, err = c.Convert(context.Background(), encrypted, "classic")
	if !errors.As(err, &cerr) || cerr.Kind != KindEncrypted {
		t.Fatalf("encrypted: err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Convert(ctx, pdf, "classic")
	if !errors.As(err, &cerr) || cerr.Kind != KindCanceled || !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled: err = %v", err)
	}
}

type fakeDoc struct{ pages []*fakePage }

func (d *fakeDoc) Pages() []Page {
	out := make([]Page, len(d.pages))
	for i, p := range d.pages {
		out[i] = p
	}
	return out
}

func (d *fakeDoc) Save(w io.Writer) error {
	_, err := io.WriteString(w, "%PDF-fake")
	return err
}

type fakePage struct {
	n         int
	streams   []Stream
	images    []Image
	underlays []string
}

func (p *fakePage) Number() int                  { return p.n }
func (p *fakePage) MediaBox() semantic.Rectangle { return semantic.Rectangle{URX: 100, URY: 50} }
func (p *fakePage) ContentStreams() []Stream     { return p.streams }
func (p *fakePage) ImageObjects() []Image        { return p.images }
func (p *fakePage) FormObjects() []Stream        { return nil }
func (p *fakePage) AddUnderlay(data []byte)      { p.underlays = append(p.underlays, string(data)) }

type fakeStream struct {
	ref  raw.ObjectRef
	data []byte
	err  error
	set  []byte
}

func (s *fakeStream) ID() raw.ObjectRef     { return s.ref }
func (s *fakeStream) Data() ([]byte, error) { return s.data, s.err }
func (s *fakeStream) SetData(data []byte)   { s.set = data }

type fakeImage struct {
	ref     raw.ObjectRef
	digest  [32]byte
	err     error
	panics  bool
	decodes *atomic.Int32
	encoded *raster.PixelBuffer
}

func (i *fakeImage) ID() raw.ObjectRef { return i.ref }
func (i *fakeImage) Digest() [32]byte  { return i.digest }

func (i *fakeImage) Decode() (*raster.PixelBuffer, error) {
	if i.decodes != nil {
		i.decodes.Add(1)
	}
	if i.panics {
		panic("corrupt image")
	}
	if i.err != nil {
		return nil, i.err
	}
	return &raster.PixelBuffer{Width: 1, Height: 1, Channels: 3, BitsPerComponent: 8, Space: cmm.RGB, Data: []byte{255, 255, 255}}, nil
}

func (i *fakeImage) Encode(buf *raster.PixelBuffer) error {
	i.encoded = buf
	return nil
}

func fakeOpener(doc *fakeDoc) Opener {
	return func(context.Context, []byte, OpenEnv) (Document, error) { return doc, nil }
}

func TestConvert_UnitWarnings(t *testing.T) {
	shared := &fakeStream{ref: raw.ObjectRef{Num: 10}, data: []byte("0 g")}
	broken := &fakeStream{ref: raw.ObjectRef{Num: 11}, err: errors.New("bad flate")}
	decodes := new(atomic.Int32)
	good := &fakeImage{ref: raw.ObjectRef{Num: 20}, digest: [32]byte{1}, decodes: decodes}
	twin := &fakeImage{ref: raw.ObjectRef{Num: 21}, digest: [32]byte{1}, decodes: decodes}
	failing := &fakeImage{ref: raw.ObjectRef{Num: 22}, digest: [32]byte{2}, err: errors.New("truncated")}
	panicking := &fakeImage{ref: raw.ObjectRef{Num: 23}, digest: [32]byte{3}, panics: true}
	doc := &fakeDoc{pages: []*fakePage{
		{n: 1, streams: []Stream{shared, broken}, images: []Image{good, failing}},
		{n: 2, streams: []Stream{shared}, images: []Image{twin, panicking}},
	}}

	res, err := New(Config{Opener: fakeOpener(doc)}).Convert(context.Background(), nil, "classic")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if string(res.Data) != "%PDF-fake" {
		t.Fatalf("data = %q", res.Data)
	}
	if string(shared.set) != "0.4 0.4 0.4 rg" {
		t.Fatalf("shared stream = %q", shared.set)
	}
	if n := decodes.Load(); n != 1 {
		t.Fatalf("identical images decoded %d times", n)
	}
	if good.encoded == nil || twin.encoded == nil || good.encoded != twin.encoded {
		t.Fatalf("identical images did not share a result")
	}
	if diff := cmp.Diff([]byte{0, 0, 0}, good.encoded.Data); diff != "" {
		t.Fatalf("recoloured (-want +got):\n%s", diff)
	}
	if failing.encoded != nil || panicking.encoded != nil {
		t.Fatalf("failed images were encoded")
	}

	type summary struct {
		Kind recovery.Kind
		Page int
		Obj  int
	}
	var got []summary
	for _, w := range res.Warnings {
		got = append(got, summary{w.Kind, w.Location.Page, w.Location.ObjectNum})
	}
	want := []summary{
		{recovery.KindStreamDecode, 1, 11},
		{recovery.KindImageDecode, 1, 22},
		{recovery.KindImageDecode, 2, 23},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("warnings (-want +got):\n%s", diff)
	}
	var ierr *ImageDecodeError
	if !errors.As(res.Warnings[1].Err, &ierr) || ierr.ObjectID.Num != 22 {
		t.Fatalf("image warning = %v", res.Warnings[1].Err)
	}
	for _, p := range doc.pages {
		if diff := cmp.Diff([]string{"q 0 0 0 rg 0 0 100 50 re f Q\n"}, p.underlays); diff != "" {
			t.Fatalf("page %d underlay (-want +got):\n%s", p.n, diff)
		}
	}
}

func TestConvert_PanicReachesEveryCopy(t *testing.T) {
	first := &fakeImage{ref: raw.ObjectRef{Num: 30}, digest: [32]byte{9}, panics: true}
	second := &fakeImage{ref: raw.ObjectRef{Num: 31}, digest: [32]byte{9}, panics: true}
	doc := &fakeDoc{pages: []*fakePage{
		{n: 1, images: []Image{first}},
		{n: 2, images: []Image{second}},
	}}
	res, err := New(Config{Opener: fakeOpener(doc), Workers: 1}).Convert(context.Background(), nil, "classic")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if first.encoded != nil || second.encoded != nil {
		t.Fatalf("panicking images were encoded")
	}
	var got []int
	for _, w := range res.Warnings {
		var ierr *ImageDecodeError
		if w.Kind != recovery.KindImageDecode || !errors.As(w.Err, &ierr) {
			t.Fatalf("warning = %+v", w)
		}
		got = append(got, ierr.ObjectID.Num)
	}
	if diff := cmp.Diff([]int{30, 31}, got); diff != "" {
		t.Fatalf("image warnings (-want +got):\n%s", diff)
	}
}

type recordingTracer struct {
	mu    sync.Mutex
	names map[string]int
}

func (r *recordingTracer) StartSpan(ctx context.Context, name string) (context.Context, observability.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name]++
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

func TestConvert_Spans(t *testing.T) {
	tr := &recordingTracer{names: make(map[string]int)}
	if _, err := New(Config{Tracer: tr}).Convert(context.Background(), buildPDF(t, "1 g"), "claude"); err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := map[string]int{
		observability.SpanConvert: 1,
		observability.SpanOpen:    1,
		observability.SpanPage:    1,
		observability.SpanForm:    1,
		observability.SpanImage:   2,
		observability.SpanWrite:   1,
	}
	if diff := cmp.Diff(want, tr.names); diff != "" {
		t.Fatalf("spans (-want +got):\n%s", diff)
	}
}

func TestIdent_ComputesOnce(t *testing.T) {
	c := newIdent[int, int]()
	var calls atomic.Int32
	var wg sync.WaitGroup
	hits := make([]bool, 16)
	for i := range hits {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, hit := c.Do(7, func() int { calls.Add(1); return 42 })
			if v != 42 {
				t.Errorf("value = %d", v)
			}
			hits[i] = hit
		}(i)
	}
	wg.Wait()
	if calls.Load() != 1 || c.Len() != 1 {
		t.Fatalf("calls = %d, entries = %d", calls.Load(), c.Len())
	}
	misses := 0
	for _, h := range hits {
		if !h {
			misses++
		}
	}
	if misses != 1 {
		t.Fatalf("misses = %d", misses)
	}
}

func TestRunUnits_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	done := make([]bool, 50)
	runUnits(context.Background(), 3, len(done), func(_ context.Context, i int) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		done[i] = true
		running.Add(-1)
	})
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d", peak.Load())
	}
	for i, ok := range done {
		if !ok {
			t.Fatalf("unit %d skipped", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	runUnits(ctx, 2, 5, func(context.Context, int) { ran = true })
	if ran {
		t.Fatalf("units ran after cancellation")
	}
}

func TestConversionError(t *testing.T) {
	err := &ConversionError{Kind: KindAssembly, Err: errors.New("disk full")}
	if err.Error() != "convert: Assembly: disk full" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if ErrorKind(99).String() != "ErrorKind(99)" {
		t.Fatalf("unknown kind = %q", ErrorKind(99).String())
	}
}
