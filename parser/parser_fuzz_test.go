package parser

import (
	"context"
	"testing"

	"github.com/wudi/pdfdark/recovery"
)

func FuzzParse(f *testing.F) {
	f.Add(buildClassicPDF())
	f.Add([]byte("%PDF-1.4\n1 0 obj << /Type /Catalog /Pages [ >> endobj"))
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = NewDocumentParser(Config{Recovery: recovery.NewCollector()}).Parse(context.Background(), data)
	})
}
