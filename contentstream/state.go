package contentstream

import "github.com/wudi/pdfdark/cmm"

// Paint tracks the colour space of one paint (fill or stroke). Source is
// the space the stream selected; Emitted is the space of the last colour
// operator actually written, which differs after a rewrite to rg/RG.
type Paint struct {
	Source  cmm.Space
	Emitted cmm.Space
	// Name is the colour space operand of the last cs/CS.
	Name string
}

func devicePaint(s cmm.Space) Paint { return Paint{Source: s, Emitted: s, Name: s.String()} }

// GraphicsState is the part of the PDF graphics state the colour
// transform needs, with the q/Q stack.
type GraphicsState struct {
	Fill   Paint
	Stroke Paint
	stack  []savedState
}

type savedState struct{ fill, stroke Paint }

// NewGraphicsState returns the initial state: both paints in DeviceGray.
func NewGraphicsState() *GraphicsState {
	return &GraphicsState{Fill: devicePaint(cmm.Gray), Stroke: devicePaint(cmm.Gray)}
}

func (gs *GraphicsState) Save() {
	gs.stack = append(gs.stack, savedState{gs.Fill, gs.Stroke})
}

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return ErrStateUnderflow
	}
	gs.Fill, gs.Stroke = gs.stack[n-1].fill, gs.stack[n-1].stroke
	gs.stack = gs.stack[:n-1]
	return nil
}

func (gs *GraphicsState) paint(stroke bool) *Paint {
	if stroke {
		return &gs.Stroke
	}
	return &gs.Fill
}
