package raster

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfdark/cmm"
)

// classMap is a downscaled brightness classification of an image. Cells
// whose averaged colour is clearly background let their pixels skip the
// exact transform.
type classMap struct {
	w, h   int
	width  int
	height int
	bpc    int
	bg     cmm.Color
	cells  []bool
}

func newClassMap(b *PixelBuffer, tr *cmm.Transformer, opts Options) *classMap {
	src := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	dec := newDecoder(b)
	ns := b.Samples()
	samples := make([]uint16, b.Width*ns)
	comps := make([]float64, b.Channels)
	rowLen := b.RowBytes()
	for y := 0; y < b.Height; y++ {
		unpackRow(samples, b.Data[y*rowLen:(y+1)*rowLen], b.BitsPerComponent)
		for x := 0; x < b.Width; x++ {
			for c := range comps {
				comps[c] = dec.value(c, samples[x*ns+c])
			}
			rgb, err := cmm.ToRGB(b.Space, comps)
			if err != nil {
				continue
			}
			r, g, bl := rgb.RGB8()
			src.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: bl, A: 0xff})
		}
	}

	mw, mh := b.Width, b.Height
	if side := max(mw, mh); side > opts.ClassMapMaxDim {
		mw = max(1, mw*opts.ClassMapMaxDim/side)
		mh = max(1, mh*opts.ClassMapMaxDim/side)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, mw, mh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	cutoff := tr.Params().BackgroundCutoff + opts.ClassMapMargin
	m := &classMap{w: mw, h: mh, width: b.Width, height: b.Height, bpc: b.BitsPerComponent, bg: tr.Background(), cells: make([]bool, mw*mh)}
	for i := range m.cells {
		px := dst.Pix[i*4 : i*4+3]
		v := float64(max(px[0], px[1], px[2])) / 255
		m.cells[i] = v > cutoff
	}
	return m
}

func (m *classMap) bright(x, y int) bool {
	cx := x * m.w / m.width
	cy := y * m.h / m.height
	return m.cells[cy*m.w+cx]
}

// background packs the theme background as samples of space.
func (m *classMap) background(dec decoder, space cmm.Space) uint64 {
	comps := cmm.FromRGB(space, m.bg)
	px := make([]uint16, len(comps))
	for c, v := range comps {
		px[c], _ = dec.sample(c, v)
	}
	return pack(px, m.bpc)
}
