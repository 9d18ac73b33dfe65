package filters

import (
	"bytes"
	"context"
	"io"

	"github.com/hhrutter/lzw"

	"github.com/wudi/pdfdark/ir/raw"
)

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func NewLZWDecoder() Decoder    { return lzwDecoder{} }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	rc := lzw.NewReader(bytes.NewReader(in), earlyChange(params))
	defer rc.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, rc); err != nil && out.Len() == 0 {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

// earlyChange reads /EarlyChange, which defaults to 1.
func earlyChange(params raw.Dictionary) bool {
	return intParam(params, "EarlyChange", 1) == 1
}
