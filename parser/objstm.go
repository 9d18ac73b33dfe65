package parser

import (
	"context"
	"fmt"

	"github.com/wudi/pdfdark/filters"
	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/scanner"
)

// expandObjectStream adds the objects compressed in an /ObjStm. Objects
// already defined at top level are kept, since a plain definition is
// normally the newer one.
func (p *DocumentParser) expandObjectStream(ctx context.Context, doc *raw.Document, st *raw.StreamObj) error {
	if st == nil {
		return nil
	}
	n, _ := raw.NumberValue(lookup(st.Dict, "N"))
	first, _ := raw.NumberValue(lookup(st.Dict, "First"))
	names, params := filters.ExtractFilters(st.Dict)
	data, err := p.pipeline.Decode(ctx, st.Data, names, params)
	if err != nil {
		return fmt.Errorf("decode object stream: %w", err)
	}
	if int(first) > len(data) || n < 0 {
		return fmt.Errorf("object stream header out of range (First %d, %d bytes)", int(first), len(data))
	}

	hdr := scanner.NewBytes(data[:int(first)], scanner.Config{Content: true})
	type entry struct{ num, off int }
	entries := make([]entry, 0, int(n))
	for i := 0; i < int(n); i++ {
		a, err1 := hdr.Next()
		b, err2 := hdr.Next()
		if err1 != nil || err2 != nil || !a.IsInt || !b.IsInt {
			return fmt.Errorf("object stream header truncated after %d entries", i)
		}
		entries = append(entries, entry{num: int(a.Int), off: int(b.Int)})
	}

	body := data[int(first):]
	for _, e := range entries {
		ref := raw.ObjectRef{Num: e.num}
		if _, exists := doc.Objects[ref]; exists {
			continue
		}
		if e.off < 0 || e.off >= len(body) {
			return fmt.Errorf("object %d offset %d outside object stream", e.num, e.off)
		}
		s := scanner.NewBytes(body[e.off:], p.cfg.Scanner)
		tr := &tokenReader{s: s, p: p, doc: doc}
		obj, err := tr.parseObject(0)
		if err != nil {
			return fmt.Errorf("object %d in object stream: %w", e.num, err)
		}
		doc.Objects[ref] = obj
	}
	return nil
}

func lookup(d *raw.DictObj, key string) raw.Object {
	o, _ := d.Lookup(key)
	return o
}
