package convert

import (
	"context"
	"io"

	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/ir/semantic"
	"github.com/wudi/pdfdark/raster"
	"github.com/wudi/pdfdark/recovery"
	"github.com/wudi/pdfdark/writer"
)

// Document is an opened PDF the converter rewrites in place.
type Document interface {
	Pages() []Page
	Save(w io.Writer) error
}

type Page interface {
	Number() int
	MediaBox() semantic.Rectangle
	ContentStreams() []Stream
	ImageObjects() []Image
	FormObjects() []Stream
	AddUnderlay(data []byte)
}

type Stream interface {
	ID() raw.ObjectRef
	Data() ([]byte, error)
	SetData(data []byte)
}

type Image interface {
	ID() raw.ObjectRef
	Digest() [32]byte
	Decode() (*raster.PixelBuffer, error)
	Encode(buf *raster.PixelBuffer) error
}

// OpenEnv carries the per-conversion hooks an Opener wires into the
// document.
type OpenEnv struct {
	// Recovery receives recoverable syntax problems.
	Recovery recovery.Strategy
	// Interceptor observes every object written by Save.
	Interceptor writer.Interceptor
}

// Opener parses data into a Document. Encrypted input must fail with
// semantic.ErrEncrypted.
type Opener func(ctx context.Context, data []byte, env OpenEnv) (Document, error)

// SemanticOpener opens documents with the semantic package.
func SemanticOpener(cfg semantic.Config) Opener {
	return func(ctx context.Context, data []byte, env OpenEnv) (Document, error) {
		c := cfg
		c.Parser.Recovery = env.Recovery
		if env.Interceptor != nil {
			c.Interceptors = append(append([]writer.Interceptor(nil), cfg.Interceptors...), env.Interceptor)
		}
		d, err := semantic.Open(ctx, data, c)
		if err != nil {
			return nil, err
		}
		return semanticDoc{d}, nil
	}
}

type semanticDoc struct{ d *semantic.Document }

func (s semanticDoc) Save(w io.Writer) error { return s.d.Save(w) }

func (s semanticDoc) Pages() []Page {
	pages := s.d.Pages()
	out := make([]Page, len(pages))
	for i, p := range pages {
		out[i] = semanticPage{p}
	}
	return out
}

type semanticPage struct{ p *semantic.Page }

func (s semanticPage) Number() int                  { return s.p.Number() }
func (s semanticPage) MediaBox() semantic.Rectangle { return s.p.MediaBox }
func (s semanticPage) AddUnderlay(data []byte)      { s.p.AddUnderlay(data) }
func (s semanticPage) ContentStreams() []Stream     { return streams(s.p.ContentStreams()) }
func (s semanticPage) FormObjects() []Stream        { return streams(s.p.FormObjects()) }

func (s semanticPage) ImageObjects() []Image {
	imgs := s.p.ImageObjects()
	out := make([]Image, len(imgs))
	for i, img := range imgs {
		out[i] = img
	}
	return out
}

func streams(in []*semantic.Stream) []Stream {
	out := make([]Stream, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
