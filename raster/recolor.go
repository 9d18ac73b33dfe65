package raster

import (
	"github.com/wudi/pdfdark/cmm"
)

// Options tune Recolor. The zero value is the exact per-pixel transform.
type Options struct {
	// ClassMapMaxDim enables the classification map when positive: the
	// image is downscaled so its larger side is at most this many cells.
	ClassMapMaxDim int
	// ClassMapMinPixels is the smallest image the map is used for.
	ClassMapMinPixels int
	// ClassMapMargin is added to the background cutoff for map cells.
	ClassMapMargin float64
}

// Stats counts the work done by Recolor.
type Stats struct {
	Pixels         int
	Changed        int
	PaletteEntries int
	// Mapped is the number of pixels set from the classification map
	// without an exact transform.
	Mapped int
}

// Recolor applies tr to every colour of buf and returns a new buffer of
// the same shape. buf is not modified. Indexed images only have their
// palette transformed; gray images below 8 bits keep their samples and
// get a new Decode array or palette.
func Recolor(buf *PixelBuffer, tr *cmm.Transformer, opts Options) (*PixelBuffer, Stats, error) {
	if err := buf.Validate(); err != nil {
		return nil, Stats{}, err
	}
	out := buf.Clone()
	if out.Palette != nil {
		return out, recolorPalette(out.Palette, tr), nil
	}
	if out.Channels == 1 && out.BitsPerComponent < 8 && !out.Alpha {
		return out, recolorLevels(out, tr), nil
	}
	var cells *classMap
	if opts.ClassMapMaxDim > 0 && buf.Width*buf.Height >= opts.ClassMapMinPixels {
		cells = newClassMap(buf, tr, opts)
	}
	return out, recolorPixels(out, tr, cells), nil
}

func recolorPalette(p *Palette, tr *cmm.Transformer) Stats {
	n := p.Base.Components()
	comps := make([]float64, n)
	st := Stats{PaletteEntries: p.Len()}
	for i := 0; i < p.Len(); i++ {
		entry := p.Entries[i*n : (i+1)*n]
		for c := range comps {
			comps[c] = float64(entry[c]) / 255
		}
		res, ok := tr.Pixel(p.Base, comps)
		if !ok {
			continue
		}
		for c, v := range res {
			entry[c] = byte(min(max(v, 0), 1)*255 + 0.5)
		}
		st.Changed++
	}
	return st
}

// recolorLevels transforms the few levels of a low bit depth gray image
// and leaves its samples alone, since rounding the results back to 1, 2
// or 4 bits merges distinct levels. A 1-bit image gets a new Decode
// array; deeper ones become Indexed over the same space with one 8-bit
// palette entry per level.
func recolorLevels(b *PixelBuffer, tr *cmm.Transformer) Stats {
	dec := newDecoder(b)
	n := 1 << b.BitsPerComponent
	levels := make([]float64, n)
	moved := make([]bool, n)
	for s := range levels {
		v := dec.value(0, uint16(s))
		levels[s] = v
		if res, ok := tr.Pixel(b.Space, []float64{v}); ok {
			levels[s], moved[s] = res[0], true
		}
	}
	st := Stats{Pixels: b.Width * b.Height}
	samples := make([]uint16, b.Width)
	rowLen := b.RowBytes()
	for y := 0; y < b.Height; y++ {
		unpackRow(samples, b.Data[y*rowLen:(y+1)*rowLen], b.BitsPerComponent)
		for _, s := range samples {
			if moved[s] {
				st.Changed++
			}
		}
	}
	if st.Changed == 0 {
		return st
	}
	if b.BitsPerComponent == 1 {
		b.Decode = levels
		return st
	}
	entries := make([]byte, n)
	for i, v := range levels {
		entries[i] = byte(min(max(v, 0), 1)*255 + 0.5)
	}
	b.Palette = &Palette{Base: b.Space, Entries: entries}
	b.Decode = nil
	st.PaletteEntries = n
	return st
}

// pixelCache memoises the transform of packed sample tuples. Small
// tuples use a table, larger ones a map.
type pixelCache struct {
	table  []uint64
	filled []bool
	m      map[uint64]uint64
}

func newPixelCache(bits int) *pixelCache {
	if bits <= 16 {
		return &pixelCache{table: make([]uint64, 1<<bits), filled: make([]bool, 1<<bits)}
	}
	return &pixelCache{m: make(map[uint64]uint64)}
}

func (c *pixelCache) get(k uint64) (uint64, bool) {
	if c.table != nil {
		return c.table[k], c.filled[k]
	}
	v, ok := c.m[k]
	return v, ok
}

func (c *pixelCache) put(k, v uint64) {
	if c.table != nil {
		c.table[k], c.filled[k] = v, true
		return
	}
	c.m[k] = v
}

func recolorPixels(b *PixelBuffer, tr *cmm.Transformer, cells *classMap) Stats {
	var (
		st      = Stats{Pixels: b.Width * b.Height}
		nc      = b.Channels
		ns      = b.Samples()
		bpc     = b.BitsPerComponent
		rowLen  = b.RowBytes()
		samples = make([]uint16, b.Width*ns)
		comps   = make([]float64, nc)
		dec     = newDecoder(b)
		cache   = newPixelCache(nc * bpc)
	)
	transform := func(px []uint16) uint64 {
		for c := range comps {
			comps[c] = dec.value(c, px[c])
		}
		res, ok := tr.Pixel(b.Space, comps)
		if !ok {
			return pack(px[:nc], bpc)
		}
		out := make([]uint16, nc)
		for c, v := range res {
			s, ok := dec.sample(c, v)
			if !ok {
				s = px[c]
			}
			out[c] = s
		}
		return pack(out, bpc)
	}
	var bg uint64
	if cells != nil {
		bg = cells.background(dec, b.Space)
	}
	for y := 0; y < b.Height; y++ {
		row := b.Data[y*rowLen : (y+1)*rowLen]
		unpackRow(samples, row, bpc)
		dirty := false
		for x := 0; x < b.Width; x++ {
			px := samples[x*ns : x*ns+nc]
			key := pack(px, bpc)
			var val uint64
			if cells != nil && cells.bright(x, y) {
				val = bg
				st.Mapped++
			} else if v, ok := cache.get(key); ok {
				val = v
			} else {
				val = transform(px)
				cache.put(key, val)
			}
			if val != key {
				unpack(px, val, bpc)
				st.Changed++
				dirty = true
			}
		}
		if dirty {
			packRow(row, samples, bpc)
		}
	}
	return st
}

func pack(px []uint16, bpc int) uint64 {
	var k uint64
	for _, s := range px {
		k = k<<bpc | uint64(s)
	}
	return k
}

func unpack(px []uint16, k uint64, bpc int) {
	mask := uint64(1)<<bpc - 1
	for i := len(px) - 1; i >= 0; i-- {
		px[i] = uint16(k & mask)
		k >>= bpc
	}
}
