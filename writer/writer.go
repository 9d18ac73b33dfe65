// Package writer serializes a raw document as a complete, freshly
// cross-referenced PDF file.
package writer

import (
	"context"
	"io"

	"github.com/wudi/pdfdark/ir/raw"
)

type Config struct {
	// Compression is the Flate level for streams written without a
	// filter; zero selects the default level and a negative value leaves
	// them uncompressed.
	Compression int
	// Version overrides the header version; empty keeps the document's.
	Version string
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes each object as it is written.
type Interceptor interface {
	AfterWrite(ref raw.ObjectRef, obj raw.Object, bytesWritten int64)
}

type WriterBuilder struct {
	cfg          Config
	interceptors []Interceptor
}

func NewBuilder(cfg Config) *WriterBuilder { return &WriterBuilder{cfg: cfg} }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) Build() Writer { return &impl{cfg: b.cfg, interceptors: b.interceptors} }

// New returns a writer with no interceptors.
func New(cfg Config) Writer { return NewBuilder(cfg).Build() }
