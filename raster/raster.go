// Package raster recolours decoded image samples for a dark theme.
package raster

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfdark/cmm"
)

var ErrInvalidBuffer = errors.New("invalid pixel buffer")

// Palette is the lookup table of an Indexed image: one entry per index,
// Base.Components() bytes per entry.
type Palette struct {
	Base    cmm.Space
	Entries []byte
}

func (p *Palette) Len() int {
	n := p.Base.Components()
	if n == 0 {
		return 0
	}
	return len(p.Entries) / n
}

// PixelBuffer holds decoded samples. Rows start on byte boundaries. With
// Alpha set each pixel carries one extra trailing sample that is never
// changed. Indexed images have a Palette and a single index channel.
type PixelBuffer struct {
	Width, Height    int
	Channels         int
	BitsPerComponent int
	Space            cmm.Space
	Alpha            bool
	Palette          *Palette
	// Decode maps samples to component values, two numbers per colour
	// channel; nil means [0 1] for each.
	Decode []float64
	Data   []byte
}

// Samples is the number of samples per pixel, alpha included.
func (b *PixelBuffer) Samples() int {
	if b.Alpha {
		return b.Channels + 1
	}
	return b.Channels
}

// RowBytes is the byte length of one row.
func (b *PixelBuffer) RowBytes() int {
	return (b.Width*b.Samples()*b.BitsPerComponent + 7) / 8
}

// Clone returns a deep copy of b.
func (b *PixelBuffer) Clone() *PixelBuffer {
	c := *b
	c.Data = append([]byte(nil), b.Data...)
	c.Decode = append([]float64(nil), b.Decode...)
	if b.Palette != nil {
		c.Palette = &Palette{Base: b.Palette.Base, Entries: append([]byte(nil), b.Palette.Entries...)}
	}
	return &c
}

// Validate checks that the buffer is self-consistent.
func (b *PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	switch b.BitsPerComponent {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("%w: %d bits per component", ErrInvalidBuffer, b.BitsPerComponent)
	}
	if b.Palette != nil {
		if b.Channels != 1 || b.Palette.Base == cmm.Unsupported {
			return fmt.Errorf("%w: indexed image with %d channels over %v", ErrInvalidBuffer, b.Channels, b.Palette.Base)
		}
	} else if b.Space == cmm.Unsupported || b.Channels != b.Space.Components() {
		return fmt.Errorf("%w: %d channels in %v", ErrInvalidBuffer, b.Channels, b.Space)
	}
	if b.Decode != nil && len(b.Decode) != 2*b.Channels {
		return fmt.Errorf("%w: decode array has %d entries", ErrInvalidBuffer, len(b.Decode))
	}
	if need := b.RowBytes() * b.Height; len(b.Data) < need {
		return fmt.Errorf("%w: %d bytes of sample data, need %d", ErrInvalidBuffer, len(b.Data), need)
	}
	return nil
}

// unpackRow reads n samples of bpc bits from row into dst.
func unpackRow(dst []uint16, row []byte, bpc int) {
	switch bpc {
	case 8:
		for i := range dst {
			dst[i] = uint16(row[i])
		}
	case 16:
		for i := range dst {
			dst[i] = uint16(row[2*i])<<8 | uint16(row[2*i+1])
		}
	default:
		mask := uint16(1)<<bpc - 1
		perByte := 8 / bpc
		for i := range dst {
			shift := 8 - bpc*(i%perByte+1)
			dst[i] = uint16(row[i/perByte]>>shift) & mask
		}
	}
}

// packRow writes samples back into row. Padding bits at the end of the
// row keep their value.
func packRow(row []byte, src []uint16, bpc int) {
	switch bpc {
	case 8:
		for i, v := range src {
			row[i] = byte(v)
		}
	case 16:
		for i, v := range src {
			row[2*i], row[2*i+1] = byte(v>>8), byte(v)
		}
	default:
		mask := byte(1)<<bpc - 1
		perByte := 8 / bpc
		for i, v := range src {
			shift := 8 - bpc*(i%perByte+1)
			j := i / perByte
			row[j] = row[j]&^(mask<<shift) | (byte(v)&mask)<<shift
		}
	}
}

// decoder converts between samples and component values.
type decoder struct {
	max    float64
	ranges []float64
}

func newDecoder(b *PixelBuffer) decoder {
	d := decoder{max: float64(uint32(1)<<b.BitsPerComponent - 1), ranges: b.Decode}
	if d.ranges == nil {
		d.ranges = make([]float64, 2*b.Channels)
		for i := 0; i < b.Channels; i++ {
			d.ranges[2*i+1] = 1
		}
	}
	return d
}

func (d decoder) value(ch int, s uint16) float64 {
	lo, hi := d.ranges[2*ch], d.ranges[2*ch+1]
	return lo + float64(s)*(hi-lo)/d.max
}

func (d decoder) sample(ch int, v float64) (uint16, bool) {
	lo, hi := d.ranges[2*ch], d.ranges[2*ch+1]
	if hi == lo {
		return 0, false
	}
	s := (v - lo) / (hi - lo) * d.max
	switch {
	case s <= 0:
		return 0, true
	case s >= d.max:
		return uint16(d.max), true
	}
	return uint16(s + 0.5), true
}
