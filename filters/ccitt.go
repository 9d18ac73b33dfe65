package filters

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"

	"github.com/wudi/pdfdark/ir/raw"
)

// DecodeCCITT expands CCITTFaxDecode data into 1-bit samples, rows padded
// to a byte, 0 meaning black unless BlackIs1 is set. rows is the image
// height used when the parameters carry no Rows entry.
func DecodeCCITT(data []byte, params raw.Dictionary, rows int, limits Limits) ([]byte, error) {
	columns := intParam(params, "Columns", 1728)
	if r := intParam(params, "Rows", 0); r > 0 {
		rows = r
	}
	if rows <= 0 {
		rows = ccitt.AutoDetectHeight
	}
	sf := ccitt.Group3
	if intParam(params, "K", 0) < 0 {
		sf = ccitt.Group4
	}
	opts := &ccitt.Options{
		Align:  boolParam(params, "EncodedByteAlign"),
		Invert: boolParam(params, "BlackIs1"),
	}
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, columns, rows, opts)
	if limits.MaxDecompressedSize > 0 {
		r = io.LimitReader(r, limits.MaxDecompressedSize+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ccitt: %w", err)
	}
	if limits.MaxDecompressedSize > 0 && int64(len(out)) > limits.MaxDecompressedSize {
		return nil, fmt.Errorf("ccitt: output exceeds %d bytes", limits.MaxDecompressedSize)
	}
	return out, nil
}

func boolParam(params raw.Dictionary, key string) bool {
	if params == nil {
		return false
	}
	v, ok := params.Get(raw.NameLiteral(key))
	if !ok {
		return false
	}
	b, ok := v.(raw.BoolObj)
	return ok && b.V
}
