// Package convert turns a PDF into its dark-theme rendition. Page content
// streams, form XObjects and images are independent units run on a
// bounded worker pool; their results are applied in page order and the
// whole file is written again.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/wudi/pdfdark/cmm"
	"github.com/wudi/pdfdark/contentstream"
	"github.com/wudi/pdfdark/filters"
	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/ir/semantic"
	"github.com/wudi/pdfdark/observability"
	"github.com/wudi/pdfdark/parser"
	"github.com/wudi/pdfdark/raster"
	"github.com/wudi/pdfdark/recovery"
	"github.com/wudi/pdfdark/theme"
)

type Config struct {
	// Workers bounds the units processed at once. Zero means GOMAXPROCS.
	Workers int
	// Params tune the colour transform. The zero value means
	// cmm.DefaultParams.
	Params cmm.Params
	Raster raster.Options
	// NoUnderlay disables the background rectangle painted beneath each
	// page.
	NoUnderlay bool
	// JPEGQuality applies to re-encoded DCT images.
	JPEGQuality int
	Limits      filters.Limits

	Logger   observability.Logger
	Tracer   observability.Tracer
	Registry theme.Registry
	Opener   Opener
}

// Converter is safe for concurrent use; every Convert call has its own
// state.
type Converter struct {
	cfg Config
}

func New(cfg Config) *Converter {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Params == (cmm.Params{}) {
		cfg.Params = cmm.DefaultParams()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.Registry == nil {
		// The built-in themes always validate.
		cfg.Registry, _ = theme.NewRegistry()
	}
	if cfg.Opener == nil {
		cfg.Opener = SemanticOpener(semantic.Config{
			Parser:      parser.Config{Limits: cfg.Limits},
			JPEGQuality: cfg.JPEGQuality,
		})
	}
	return &Converter{cfg: cfg}
}

// Themes lists the themes Convert accepts.
func (c *Converter) Themes() []theme.Theme { return c.cfg.Registry.List() }

type Stats struct {
	Pages int
	// Streams is the number of content and form streams rewritten.
	Streams  int
	Rewrites int
	Forms    int
	// Images counts distinct image objects; ImagesShared those whose
	// result came from an identical image processed earlier.
	Images          int
	ImagesRecolored int
	ImagesShared    int
	Objects         int
	OutputBytes     int64
}

type Result struct {
	Data     []byte
	Warnings []recovery.Warning
	Stats    Stats
}

// conversionContext is the state of one Convert call.
type conversionContext struct {
	cfg      Config
	theme    theme.Theme
	tr       *cmm.Transformer
	proc     contentstream.Processor
	warnings *recovery.Collector
	images   *ident[[32]byte, imageOutcome]
	log      observability.Logger
	tracer   observability.Tracer
	written  writeCounter
}

type streamOutcome struct {
	stream   Stream
	data     []byte
	rewrites int
}

type pageOutcome struct {
	streams []streamOutcome
}

type imageOutcome struct {
	buf     *raster.PixelBuffer
	changed bool
	shared  bool
	err     error
}

type formUnit struct {
	stream Stream
	page   int
}

type imageUnit struct {
	image Image
	page  int
}

// writeCounter tallies the objects the writer emits.
type writeCounter struct {
	objects atomic.Int64
	bytes   atomic.Int64
}

func (w *writeCounter) AfterWrite(_ raw.ObjectRef, _ raw.Object, n int64) {
	w.objects.Add(1)
	w.bytes.Add(n)
}

// Convert rewrites pdf for the theme named themeID. Either the complete
// output is returned or a *ConversionError; never a partial document.
func (c *Converter) Convert(ctx context.Context, pdf []byte, themeID string) (res *Result, err error) {
	start := time.Now()
	ctx, span := c.cfg.Tracer.StartSpan(ctx, observability.SpanConvert)
	span.SetTag("theme", themeID)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	th, err := c.cfg.Registry.Lookup(themeID)
	if err != nil {
		return nil, &ConversionError{Kind: KindUnknownTheme, Err: err}
	}
	cc := &conversionContext{
		cfg:      c.cfg,
		theme:    th,
		tr:       cmm.NewTransformer(th.Background, c.cfg.Params),
		warnings: recovery.NewCollector(),
		images:   newIdent[[32]byte, imageOutcome](),
		log:      c.cfg.Logger.With(observability.String("theme", th.ID)),
		tracer:   c.cfg.Tracer,
	}
	cc.proc = contentstream.NewColorProcessor(cc.tr)
	cc.log.Info("conversion started", observability.Int("bytes", len(pdf)))

	doc, err := cc.open(ctx, pdf)
	if err != nil {
		cc.log.Warn("conversion failed", observability.Error("error", err))
		return nil, err
	}
	res, err = cc.run(ctx, doc)
	if err != nil {
		cc.log.Warn("conversion failed", observability.Error("error", err))
		return nil, err
	}
	for _, w := range res.Warnings {
		cc.log.Warn("conversion warning",
			observability.String("kind", string(w.Kind)),
			observability.String("location", w.Location.String()),
			observability.Int("count", w.Count),
			observability.Error("error", w.Err))
	}
	cc.log.Info("conversion finished",
		observability.Int("pages", res.Stats.Pages),
		observability.Int("streams", res.Stats.Streams),
		observability.Int("images", res.Stats.Images),
		observability.Int("warnings", len(res.Warnings)),
		observability.Int64("output_bytes", res.Stats.OutputBytes),
		observability.Any("elapsed", time.Since(start)))
	return res, nil
}

func (cc *conversionContext) open(ctx context.Context, pdf []byte) (Document, error) {
	ctx, span := cc.tracer.StartSpan(ctx, observability.SpanOpen)
	defer span.Finish()
	doc, err := cc.cfg.Opener(ctx, pdf, OpenEnv{Recovery: cc.warnings, Interceptor: &cc.written})
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, semantic.ErrEncrypted):
		err = &ConversionError{Kind: KindEncrypted, Err: err}
	case ctx.Err() != nil:
		err = &ConversionError{Kind: KindCanceled, Err: ctx.Err()}
	default:
		err = &ConversionError{Kind: KindInvalidDocument, Err: err}
	}
	span.SetError(err)
	return nil, err
}

func (cc *conversionContext) run(ctx context.Context, doc Document) (*Result, error) {
	pages := doc.Pages()
	forms, images := plan(pages)

	pageOut := make([]pageOutcome, len(pages))
	formOut := make([]streamOutcome, len(forms))
	imageOut := make([]imageOutcome, len(images))
	nPages, nForms := len(pages), len(forms)
	runUnits(ctx, cc.cfg.Workers, nPages+nForms+len(images), func(ctx context.Context, i int) {
		switch {
		case i < nPages:
			p := pages[i]
			cc.guard(recovery.KindParse, recovery.Location{Page: p.Number(), Component: "page"}, func() {
				pageOut[i] = cc.page(ctx, p)
			})
		case i < nPages+nForms:
			u := forms[i-nPages]
			cc.guard(recovery.KindParse, location(u.page, u.stream.ID(), "form"), func() {
				formOut[i-nPages] = cc.form(ctx, u)
			})
		default:
			u := images[i-nPages-nForms]
			cc.guard(recovery.KindImageDecode, location(u.page, u.image.ID(), "image"), func() {
				imageOut[i-nPages-nForms] = cc.image(ctx, u)
			})
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, &ConversionError{Kind: KindCanceled, Err: err}
	}

	st := Stats{Pages: nPages, Forms: nForms, Images: len(images)}
	data, err := cc.assemble(ctx, doc, pages, pageOut, formOut, images, imageOut, &st)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, &ConversionError{Kind: KindCanceled, Err: cerr}
		}
		return nil, &ConversionError{Kind: KindAssembly, Err: err}
	}
	st.Objects = int(cc.written.objects.Load())
	st.OutputBytes = int64(len(data))
	return &Result{Data: data, Warnings: cc.warnings.Warnings(), Stats: st}, nil
}

// plan lists the distinct forms and images of the document, each tagged
// with the first page that uses it.
func plan(pages []Page) ([]formUnit, []imageUnit) {
	var (
		forms      []formUnit
		images     []imageUnit
		seenForm   = make(map[raw.ObjectRef]bool)
		seenImages = make(map[raw.ObjectRef]bool)
	)
	for _, p := range pages {
		for _, f := range p.FormObjects() {
			if !seenForm[f.ID()] {
				seenForm[f.ID()] = true
				forms = append(forms, formUnit{stream: f, page: p.Number()})
			}
		}
		for _, img := range p.ImageObjects() {
			if !seenImages[img.ID()] {
				seenImages[img.ID()] = true
				images = append(images, imageUnit{image: img, page: p.Number()})
			}
		}
	}
	return forms, images
}

// guard turns a panicking unit into a warning; the unit's result is then
// left at its zero value.
func (cc *conversionContext) guard(kind recovery.Kind, loc recovery.Location, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			cc.warnings.Add(kind, loc, fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

func location(page int, ref raw.ObjectRef, component string) recovery.Location {
	return recovery.Location{Page: page, ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: component}
}

// page transforms the content streams of p in order through one
// graphics state.
func (cc *conversionContext) page(ctx context.Context, p Page) pageOutcome {
	_, span := cc.tracer.StartSpan(ctx, observability.SpanPage)
	span.SetTag("page", p.Number())
	defer span.Finish()
	state := contentstream.NewGraphicsState()
	var out pageOutcome
	for _, s := range p.ContentStreams() {
		if so, ok := cc.stream(s, state, location(p.Number(), s.ID(), "contentstream")); ok {
			out.streams = append(out.streams, so)
		}
	}
	return out
}

func (cc *conversionContext) form(ctx context.Context, u formUnit) streamOutcome {
	_, span := cc.tracer.StartSpan(ctx, observability.SpanForm)
	span.SetTag("object", u.stream.ID().String())
	defer span.Finish()
	so, _ := cc.stream(u.stream, contentstream.NewGraphicsState(), location(u.page, u.stream.ID(), "form"))
	return so
}

// stream runs the colour processor over one stream. ok is false when the
// stream could not be read at all.
func (cc *conversionContext) stream(s Stream, state *contentstream.GraphicsState, loc recovery.Location) (so streamOutcome, ok bool) {
	data, err := s.Data()
	if err != nil {
		cc.warnings.Add(recovery.KindStreamDecode, loc, &StreamDecodeError{ObjectID: s.ID(), Err: err})
		return streamOutcome{}, false
	}
	res, err := cc.proc.Process(data, state)
	if err != nil {
		var perr *contentstream.ParseError
		if errors.As(err, &perr) {
			loc.ByteOffset = perr.Offset
		}
		cc.warnings.Add(recovery.KindParse, loc, err)
		return streamOutcome{stream: s}, true
	}
	for _, w := range res.Warnings {
		l := loc
		l.ByteOffset = w.Offset
		cc.warnings.Add(warningKind(w.Err), l, w.Err)
	}
	so = streamOutcome{stream: s, rewrites: res.Rewrites}
	if res.Changed() {
		so.data = res.Data
	}
	return so, true
}

func warningKind(err error) recovery.Kind {
	var cs *cmm.UnsupportedColorSpaceError
	if errors.As(err, &cs) {
		return recovery.KindUnsupportedColorSpace
	}
	return recovery.KindOperand
}

// image recolours u's samples. Images with the same digest share one
// result.
func (cc *conversionContext) image(ctx context.Context, u imageUnit) imageOutcome {
	_, span := cc.tracer.StartSpan(ctx, observability.SpanImage)
	span.SetTag("object", u.image.ID().String())
	defer span.Finish()
	out, hit := cc.images.Do(u.image.Digest(), func() (res imageOutcome) {
		// The outcome is shared by every image with this digest, so a
		// panic has to be recorded in it rather than left to guard.
		defer func() {
			if r := recover(); r != nil {
				res = imageOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		buf, err := u.image.Decode()
		if err != nil {
			return imageOutcome{err: err}
		}
		recolored, st, err := raster.Recolor(buf, cc.tr, cc.cfg.Raster)
		if err != nil {
			return imageOutcome{err: err}
		}
		return imageOutcome{buf: recolored, changed: st.Changed > 0}
	})
	out.shared = hit
	if out.err != nil {
		err := &ImageDecodeError{ObjectID: u.image.ID(), Err: out.err}
		span.SetError(err)
		cc.warnings.Add(recovery.KindImageDecode, location(u.page, u.image.ID(), "image"), err)
	}
	return out
}

// assemble applies the unit results in page order, adds the underlays
// and writes the file. A stream shared by several pages keeps the result
// of the first page.
func (cc *conversionContext) assemble(ctx context.Context, doc Document, pages []Page, pageOut []pageOutcome,
	formOut []streamOutcome, images []imageUnit, imageOut []imageOutcome, st *Stats) ([]byte, error) {
	_, span := cc.tracer.StartSpan(ctx, observability.SpanWrite)
	defer span.Finish()

	applied := make(map[raw.ObjectRef]bool)
	apply := func(so streamOutcome) {
		if so.stream == nil || applied[so.stream.ID()] {
			return
		}
		applied[so.stream.ID()] = true
		if so.data != nil {
			so.stream.SetData(so.data)
			st.Streams++
			st.Rewrites += so.rewrites
		}
	}
	for _, po := range pageOut {
		for _, so := range po.streams {
			apply(so)
		}
	}
	for _, so := range formOut {
		apply(so)
	}
	for i, out := range imageOut {
		if out.shared {
			st.ImagesShared++
		}
		if out.buf == nil || !out.changed {
			continue
		}
		if err := images[i].image.Encode(out.buf); err != nil {
			return nil, fmt.Errorf("image %v: %w", images[i].image.ID(), err)
		}
		st.ImagesRecolored++
	}
	if !cc.cfg.NoUnderlay {
		for _, p := range pages {
			p.AddUnderlay(cc.underlay(p.MediaBox()))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		span.SetError(err)
		return nil, err
	}
	return buf.Bytes(), nil
}

// underlay paints box in the theme background.
func (cc *conversionContext) underlay(box semantic.Rectangle) []byte {
	prec := cc.tr.Params().Precision
	f := func(v float64) string { return cmm.FormatNumber(v, prec) }
	bg := cc.theme.Background
	return fmt.Appendf(nil, "q %s %s %s rg %s %s %s %s re f Q\n",
		f(bg.R), f(bg.G), f(bg.B), f(box.LLX), f(box.LLY), f(box.Width()), f(box.Height()))
}
