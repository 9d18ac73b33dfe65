package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfdark/filters"
	"github.com/wudi/pdfdark/ir/raw"
)

var ErrNoRoot = errors.New("document has no /Root")

type impl struct {
	cfg          Config
	interceptors []Interceptor
}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	writeObject(&buf, obj)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

// Write emits every object of doc in object-number order followed by a
// classic xref table and trailer. Output depends only on the document.
func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer) error {
	root, ok := doc.Trailer.Lookup("Root")
	if !ok {
		return ErrNoRoot
	}
	version := w.cfg.Version
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = "1.7"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)
	refs := doc.Refs()
	offsets := make(map[int]int64, len(refs))
	gens := make(map[int]int, len(refs))
	maxNum := 0
	for i, ref := range refs {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		obj, err := w.prepare(ctx, doc.Objects[ref])
		if err != nil {
			return fmt.Errorf("object %v: %w", ref, err)
		}
		start := int64(buf.Len())
		offsets[ref.Num], gens[ref.Num] = start, ref.Gen
		serialized, err := w.SerializeObject(ref, obj)
		if err != nil {
			return err
		}
		buf.Write(serialized)
		for _, ic := range w.interceptors {
			ic.AfterWrite(ref, obj, int64(len(serialized)))
		}
		maxNum = max(maxNum, ref.Num)
	}

	sum := blake2b.Sum256(buf.Bytes())
	id := sum[:16]
	first := id
	if ids, ok := doc.Trailer.Lookup("ID"); ok {
		if arr, ok := ids.(*raw.ArrayObj); ok && arr.Len() == 2 {
			if s, ok := arr.Items[0].(raw.StringObj); ok && len(s.Bytes) > 0 {
				first = s.Bytes
			}
		}
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", maxNum+1)
	for n := 1; n <= maxNum; n++ {
		if off, ok := offsets[n]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, gens[n])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := raw.Dict()
	trailer.KV["Size"] = raw.NumberInt(int64(maxNum + 1))
	trailer.KV["Root"] = root
	if info, ok := doc.Trailer.Lookup("Info"); ok {
		trailer.KV["Info"] = info
	}
	trailer.KV["ID"] = raw.NewArray(raw.HexStr(first), raw.HexStr(id))
	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

// prepare returns the object as written: streams get a direct /Length and
// unfiltered streams are compressed. doc itself is not modified.
func (w *impl) prepare(ctx context.Context, obj raw.Object) (raw.Object, error) {
	s, ok := obj.(*raw.StreamObj)
	if !ok {
		return obj, nil
	}
	dict := raw.Dict()
	if s.Dict != nil {
		dict = s.Dict.Clone()
	}
	data := s.Data
	if _, filtered := dict.Lookup("Filter"); !filtered && w.cfg.Compression >= 0 && len(data) > 0 {
		enc, err := filters.NewFlateEncoder(w.cfg.Compression).Encode(ctx, data, nil)
		if err != nil {
			return nil, err
		}
		data = enc
		dict.KV["Filter"] = raw.NameLiteral("FlateDecode")
		dict.Delete("DecodeParms")
	}
	dict.KV["Length"] = raw.NumberInt(int64(len(data)))
	return raw.NewStream(dict, data), nil
}
