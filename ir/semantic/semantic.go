// Package semantic presents a parsed document as pages with content
// streams, form XObjects and image XObjects that can be rewritten in
// place and saved.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wudi/pdfdark/filters"
	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/parser"
	"github.com/wudi/pdfdark/writer"
)

var (
	ErrEncrypted = errors.New("document is encrypted")
	ErrNoPages   = errors.New("document has no page tree")
)

type Config struct {
	Parser parser.Config
	Writer writer.Config
	// JPEGQuality is used when a DCT-encoded image is re-encoded.
	JPEGQuality int
	// Interceptors observe the objects written by Save.
	Interceptors []writer.Interceptor
}

// Document is an opened file. Streams and images handed out by its pages
// write through to the underlying objects.
type Document struct {
	raw      *raw.Document
	cfg      Config
	pipeline *filters.Pipeline
	pages    []*Page

	mu      sync.Mutex
	nextNum int
	images  map[raw.ObjectRef]*Image
	streams map[raw.ObjectRef]*Stream
}

// Rectangle is a PDF rectangle normalised so LL is the lower-left corner.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// Open parses data and builds the page list.
func Open(ctx context.Context, data []byte, cfg Config) (*Document, error) {
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}
	rd, err := parser.NewDocumentParser(cfg.Parser).Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if rd.Encrypted {
		return nil, ErrEncrypted
	}
	d := &Document{
		raw:      rd,
		cfg:      cfg,
		pipeline: filters.NewDefaultPipeline(cfg.Parser.Limits),
		images:   make(map[raw.ObjectRef]*Image),
		streams:  make(map[raw.ObjectRef]*Stream),
	}
	for ref := range rd.Objects {
		d.nextNum = max(d.nextNum, ref.Num+1)
	}
	root, ok := rd.ResolveDict(rd.Trailer.KV["Root"])
	if !ok {
		return nil, ErrNoPages
	}
	pagesObj, ok := root.Lookup("Pages")
	if !ok {
		return nil, ErrNoPages
	}
	d.pages = d.parsePages(pagesObj, inheritedPageProps{}, make(map[raw.ObjectRef]bool))
	for i, p := range d.pages {
		p.number = i + 1
	}
	return d, nil
}

// Raw returns the underlying objects.
func (d *Document) Pages() []*Page { return d.pages }

// Save writes the whole document to w.
func (d *Document) Save(w io.Writer) error {
	b := writer.NewBuilder(d.cfg.Writer)
	for _, ic := range d.cfg.Interceptors {
		b.WithInterceptor(ic)
	}
	return b.Build().Write(context.Background(), d.raw, w)
}

// add stores a new object under a fresh number.
func (d *Document) add(obj raw.Object) raw.ObjectRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref := raw.ObjectRef{Num: d.nextNum}
	d.nextNum++
	d.raw.Objects[ref] = obj
	return ref
}

// decode applies the byte filters of a stream dictionary.
func (d *Document) decode(dict *raw.DictObj, data []byte) ([]byte, error) {
	names, params := filters.ExtractFilters(dict)
	if len(names) == 0 {
		return data, nil
	}
	return d.pipeline.Decode(context.Background(), data, names, params)
}

func (d *Document) stream(ref raw.ObjectRef, obj *raw.StreamObj) *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.streams[ref]; ok {
		return s
	}
	s := &Stream{doc: d, ref: ref, obj: obj}
	d.streams[ref] = s
	return s
}

func (d *Document) image(ref raw.ObjectRef, obj *raw.StreamObj) *Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	if img, ok := d.images[ref]; ok {
		return img
	}
	img := &Image{doc: d, ref: ref, obj: obj, digest: raw.Digest(obj)}
	d.images[ref] = img
	return img
}

// Stream is an indirect stream object: a page content stream or a form
// XObject.
type Stream struct {
	doc *Document
	ref raw.ObjectRef
	obj *raw.StreamObj
}

func (s *Stream) ID() raw.ObjectRef { return s.ref }

// Data returns the stream decoded through its filters.
func (s *Stream) Data() ([]byte, error) { return s.doc.decode(s.obj.Dict, s.obj.Data) }

// SetData replaces the stream with unfiltered data; the writer compresses it.
func (s *Stream) SetData(data []byte) {
	s.obj.Data = data
	for _, k := range []string{"Filter", "DecodeParms", "DL"} {
		s.obj.Dict.Delete(k)
	}
}
