package semantic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfdark/cmm"
	"github.com/wudi/pdfdark/filters"
	"github.com/wudi/pdfdark/ir/raw"
	"github.com/wudi/pdfdark/raster"
)

// ErrUnsupportedImage is returned for encodings whose samples cannot be
// recovered: JPX, JBIG2 and CMYK JPEG.
var ErrUnsupportedImage = errors.New("unsupported image encoding")

// Image is an image XObject.
type Image struct {
	doc    *Document
	ref    raw.ObjectRef
	obj    *raw.StreamObj
	digest [32]byte
}

func (img *Image) ID() raw.ObjectRef { return img.ref }

// Digest identifies the image by content so identical copies stored as
// separate objects share one result.
func (img *Image) Digest() [32]byte { return img.digest }

// Decode returns the image samples.
func (img *Image) Decode() (*raster.PixelBuffer, error) {
	d := img.doc
	dict := img.obj.Dict
	width := d.intValue(dict, "Width", 0)
	height := d.intValue(dict, "Height", 0)
	if err := filters.ValidateImageBounds(width, height); err != nil {
		return nil, err
	}
	buf := &raster.PixelBuffer{
		Width:            width,
		Height:           height,
		BitsPerComponent: d.intValue(dict, "BitsPerComponent", 8),
	}
	csObj, _ := dict.Lookup("ColorSpace")
	if err := img.colorSpace(buf, csObj); err != nil {
		return nil, err
	}
	if buf.Palette == nil {
		buf.Decode = d.numbers(dict.KV["Decode"], 2*buf.Channels)
	}

	names, params, codec := img.filters()
	codecParams := img.codecParams()
	data := img.obj.Data
	if len(names) > 0 {
		var err error
		if data, err = d.pipeline.Decode(context.Background(), data, names, params); err != nil {
			return nil, err
		}
	}
	switch codec {
	case "":
		buf.Data = data
	case "DCTDecode":
		if err := decodeJPEG(buf, data); err != nil {
			return nil, err
		}
	case "CCITTFaxDecode":
		if buf.Palette != nil || buf.Channels != 1 {
			return nil, fmt.Errorf("%w: CCITT in %v", ErrUnsupportedImage, buf.Space)
		}
		bits, err := filters.DecodeCCITT(data, codecParams, height, d.cfg.Parser.Limits)
		if err != nil {
			return nil, err
		}
		buf.BitsPerComponent = 1
		buf.Data = bits
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, codec)
	}
	return buf, nil
}

// Encode stores buf as the image's new samples. Indexed images only get
// their lookup table replaced; a palette on an image that had none makes
// it Indexed over its old colour space.
func (img *Image) Encode(buf *raster.PixelBuffer) error {
	dict := img.obj.Dict
	if buf.Palette != nil {
		lookup := raw.HexStr(append([]byte(nil), buf.Palette.Entries...))
		cs, ok := dict.Lookup("ColorSpace")
		if !ok {
			return fmt.Errorf("image %v: no color space", img.ref)
		}
		if arr, ok := img.doc.raw.ResolveArray(cs); ok && isIndexed(arr) {
			items := append([]raw.Object(nil), arr.Items...)
			items[3] = lookup
			dict.KV["ColorSpace"] = raw.NewArray(items...)
			return nil
		}
		dict.KV["ColorSpace"] = raw.NewArray(raw.NameLiteral("Indexed"), cs,
			raw.NumberInt(int64(buf.Palette.Len()-1)), lookup)
		dict.Delete("Decode")
		if _, _, codec := img.filters(); codec != "" {
			img.obj.Data = buf.Data
			for _, k := range []string{"Filter", "DecodeParms", "DL"} {
				dict.Delete(k)
			}
		}
		return nil
	}
	if buf.Decode != nil {
		items := make([]raw.Object, len(buf.Decode))
		for i, v := range buf.Decode {
			items[i] = raw.NumberFloat(v)
		}
		dict.KV["Decode"] = raw.NewArray(items...)
	}
	if _, _, codec := img.filters(); codec == "DCTDecode" && buf.BitsPerComponent == 8 {
		data, err := encodeJPEG(buf, img.doc.cfg.JPEGQuality)
		if err != nil {
			return err
		}
		img.obj.Data = data
		dict.KV["Filter"] = raw.NameLiteral("DCTDecode")
		dict.Delete("DecodeParms")
		dict.Delete("DL")
		return nil
	}
	img.obj.Data = buf.Data
	for _, k := range []string{"Filter", "DecodeParms", "DL"} {
		dict.Delete(k)
	}
	return nil
}

func isIndexed(arr *raw.ArrayObj) bool {
	if arr.Len() != 4 {
		return false
	}
	n, ok := arr.Items[0].(raw.NameObj)
	return ok && (n.Val == "Indexed" || n.Val == "I")
}

// codecParams returns the decode parameters of the trailing image codec.
func (img *Image) codecParams() raw.Dictionary {
	names, params := filters.ExtractFilters(img.obj.Dict)
	if n := len(names); n > 0 && len(params) == n {
		return params[n-1]
	}
	return nil
}

// filters splits the stream filters into byte filters and a trailing
// image codec.
func (img *Image) filters() ([]string, []raw.Dictionary, string) {
	names, params := filters.ExtractFilters(img.obj.Dict)
	return filters.SplitImageCodec(names, params)
}

func (img *Image) colorSpace(buf *raster.PixelBuffer, obj raw.Object) error {
	space, err := img.doc.baseSpace(obj)
	if err == nil {
		buf.Space, buf.Channels = space, space.Components()
		return nil
	}
	arr, ok := img.doc.raw.ResolveArray(obj)
	if !ok || !isIndexed(arr) {
		return err
	}
	base, err := img.doc.baseSpace(arr.Items[1])
	if err != nil {
		return err
	}
	hival, _ := raw.NumberValue(img.doc.raw.Resolve(arr.Items[2]))
	var lookup []byte
	switch v := img.doc.raw.Resolve(arr.Items[3]).(type) {
	case raw.StringObj:
		lookup = v.Bytes
	case *raw.StreamObj:
		if lookup, err = img.doc.decode(v.Dict, v.Data); err != nil {
			return fmt.Errorf("indexed lookup: %w", err)
		}
	default:
		return fmt.Errorf("indexed lookup of type %s", v.Type())
	}
	if n := (int(hival) + 1) * base.Components(); n >= 0 && len(lookup) > n {
		lookup = lookup[:n]
	}
	buf.Space = base
	buf.Channels = 1
	buf.Palette = &raster.Palette{Base: base, Entries: append([]byte(nil), lookup...)}
	return nil
}

// baseSpace maps a non-indexed colour space onto a device space. ICC and
// CIE-based spaces are approximated by the device space with the same
// number of components.
func (d *Document) baseSpace(obj raw.Object) (cmm.Space, error) {
	switch v := d.raw.Resolve(obj).(type) {
	case raw.NameObj:
		if s := cmm.SpaceFromName(v.Val); s != cmm.Unsupported {
			return s, nil
		}
		return cmm.Unsupported, &cmm.UnsupportedColorSpaceError{Name: v.Val}
	case *raw.ArrayObj:
		if v.Len() == 0 {
			break
		}
		family, _ := v.Items[0].(raw.NameObj)
		switch family.Val {
		case "CalRGB":
			return cmm.RGB, nil
		case "CalGray":
			return cmm.Gray, nil
		case "ICCBased":
			if v.Len() < 2 {
				break
			}
			profile, ok := d.raw.ResolveDict(v.Items[1])
			if !ok {
				break
			}
			if alt, ok := profile.Lookup("Alternate"); ok {
				if s, err := d.baseSpace(alt); err == nil {
					return s, nil
				}
			}
			switch d.intValue(profile, "N", 0) {
			case 1:
				return cmm.Gray, nil
			case 3:
				return cmm.RGB, nil
			case 4:
				return cmm.CMYK, nil
			}
		}
		return cmm.Unsupported, &cmm.UnsupportedColorSpaceError{Name: family.Val}
	}
	return cmm.Unsupported, &cmm.UnsupportedColorSpaceError{Name: fmt.Sprint(obj)}
}

func (d *Document) intValue(dict *raw.DictObj, key string, def int) int {
	obj, ok := dict.Lookup(key)
	if !ok {
		return def
	}
	if n, ok := raw.NumberValue(d.raw.Resolve(obj)); ok {
		return int(n)
	}
	return def
}

// numbers reads an array of exactly n numbers, or nil.
func (d *Document) numbers(obj raw.Object, n int) []float64 {
	if obj == nil {
		return nil
	}
	arr, ok := d.raw.ResolveArray(obj)
	if !ok || arr.Len() != n {
		return nil
	}
	out := make([]float64, n)
	for i, item := range arr.Items {
		v, ok := raw.NumberValue(d.raw.Resolve(item))
		if !ok {
			return nil
		}
		out[i] = v
	}
	return out
}

func decodeJPEG(buf *raster.PixelBuffer, data []byte) error {
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("jpeg: %w", err)
	}
	b := src.Bounds()
	buf.Width, buf.Height, buf.BitsPerComponent = b.Dx(), b.Dy(), 8
	buf.Palette = nil
	switch m := src.(type) {
	case *image.Gray:
		buf.Space, buf.Channels = cmm.Gray, 1
		buf.Data = make([]byte, 0, b.Dx()*b.Dy())
		for y := 0; y < b.Dy(); y++ {
			off := y * m.Stride
			buf.Data = append(buf.Data, m.Pix[off:off+b.Dx()]...)
		}
	case *image.CMYK:
		return fmt.Errorf("%w: CMYK JPEG", ErrUnsupportedImage)
	default:
		rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
		buf.Space, buf.Channels = cmm.RGB, 3
		buf.Data = make([]byte, 0, 3*b.Dx()*b.Dy())
		for i := 0; i < len(rgba.Pix); i += 4 {
			buf.Data = append(buf.Data, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
		}
	}
	if buf.Decode != nil && len(buf.Decode) != 2*buf.Channels {
		buf.Decode = nil
	}
	return nil
}

func encodeJPEG(buf *raster.PixelBuffer, quality int) ([]byte, error) {
	var m image.Image
	rect := image.Rect(0, 0, buf.Width, buf.Height)
	switch buf.Space {
	case cmm.Gray:
		g := image.NewGray(rect)
		copy(g.Pix, buf.Data)
		m = g
	case cmm.RGB:
		rgba := image.NewRGBA(rect)
		for i, j := 0, 0; j+2 < len(buf.Data) && i < len(rgba.Pix); i, j = i+4, j+3 {
			rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2], rgba.Pix[i+3] = buf.Data[j], buf.Data[j+1], buf.Data[j+2], 0xff
		}
		m = rgba
	default:
		return nil, fmt.Errorf("%w: JPEG in %v", ErrUnsupportedImage, buf.Space)
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, m, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
