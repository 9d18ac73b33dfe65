package contentstream

import (
	"fmt"
	"strings"

	"github.com/wudi/pdfdark/cmm"
)

// NewColorProcessor returns a processor that maps every device colour
// operator through tr.
func NewColorProcessor(tr *cmm.Transformer) Processor {
	p := NewProcessor()
	RegisterColorHandlers(p, tr)
	return p
}

// RegisterColorHandlers installs the colour and state operators on p.
func RegisterColorHandlers(p Processor, tr *cmm.Transformer) {
	for _, stroke := range []bool{false, true} {
		for _, s := range []cmm.Space{cmm.Gray, cmm.RGB, cmm.CMYK} {
			p.RegisterHandler(deviceOp(s, stroke), deviceColor{tr: tr, space: s, stroke: stroke})
		}
		sc := setColor{tr: tr, stroke: stroke}
		if stroke {
			p.RegisterHandler("CS", setSpace{stroke: true})
			p.RegisterHandler("SC", sc)
			p.RegisterHandler("SCN", sc)
		} else {
			p.RegisterHandler("cs", setSpace{})
			p.RegisterHandler("sc", sc)
			p.RegisterHandler("scn", sc)
		}
	}
	p.RegisterHandler("q", HandlerFunc(func(ec *ExecutionContext, _ []Operand) error {
		ec.State.Save()
		return nil
	}))
	p.RegisterHandler("Q", HandlerFunc(func(ec *ExecutionContext, _ []Operand) error {
		if err := ec.State.Restore(); err != nil {
			ec.Warn(&OperandError{Op: "Q", Err: err})
		}
		return nil
	}))
}

func deviceOp(s cmm.Space, stroke bool) string {
	var op string
	switch s {
	case cmm.Gray:
		op = "g"
	case cmm.RGB:
		op = "rg"
	case cmm.CMYK:
		op = "k"
	}
	if stroke {
		return strings.ToUpper(op)
	}
	return op
}

// numbers returns exactly n numeric operands.
func numbers(ops []Operand, n int) ([]float64, error) {
	if len(ops) != n {
		return nil, fmt.Errorf("want %d operands, got %d", n, len(ops))
	}
	out := make([]float64, n)
	for i, o := range ops {
		v, ok := o.Number()
		if !ok {
			return nil, fmt.Errorf("operand %d is a %s, not a number", i, o.Value.Type())
		}
		out[i] = v
	}
	return out, nil
}

// recolor applies tr to comps and rewrites the token when the colour
// changes. It reports whether a rewrite happened.
func recolor(ec *ExecutionContext, tr *cmm.Transformer, paint *Paint, comps []float64, stroke bool) bool {
	act, c, err := tr.ApplyComponents(paint.Source, comps)
	if err != nil || act == cmm.ActionKeep {
		return false
	}
	ec.Rewrite(Rewrite{Operands: tr.Operands(c), Op: deviceOp(cmm.RGB, stroke)})
	paint.Emitted = cmm.RGB
	return true
}

// deviceColor handles g, rg, k and their stroking forms.
type deviceColor struct {
	tr     *cmm.Transformer
	space  cmm.Space
	stroke bool
}

func (h deviceColor) Handle(ec *ExecutionContext, ops []Operand) error {
	paint := ec.State.paint(h.stroke)
	*paint = devicePaint(h.space)
	comps, err := numbers(ops, h.space.Components())
	if err != nil {
		ec.Warn(&OperandError{Op: ec.Token().Op, Err: err})
		return nil
	}
	recolor(ec, h.tr, paint, comps, h.stroke)
	return nil
}

// setSpace handles cs and CS.
type setSpace struct{ stroke bool }

func (h setSpace) Handle(ec *ExecutionContext, ops []Operand) error {
	var name string
	if len(ops) == 1 {
		name, _ = ops[0].Name()
	}
	if name == "" {
		ec.Warn(&OperandError{Op: ec.Token().Op, Err: fmt.Errorf("want one name operand")})
		name = "?"
	}
	s := cmm.SpaceFromName(name)
	*ec.State.paint(h.stroke) = Paint{Source: s, Emitted: s, Name: name}
	return nil
}

// setColor handles sc, scn and their stroking forms. In a device space
// they are transformed like the device operators. A kept colour whose
// emitted space no longer matches its source is written with the source
// device operator so it keeps meaning what it said.
type setColor struct {
	tr     *cmm.Transformer
	stroke bool
}

func (h setColor) Handle(ec *ExecutionContext, ops []Operand) error {
	paint := ec.State.paint(h.stroke)
	if paint.Source == cmm.Unsupported {
		ec.Warn(&cmm.UnsupportedColorSpaceError{Name: paint.Name})
		return nil
	}
	comps, err := numbers(ops, paint.Source.Components())
	if err != nil {
		ec.Warn(&OperandError{Op: ec.Token().Op, Err: err})
		return nil
	}
	if recolor(ec, h.tr, paint, comps, h.stroke) || paint.Emitted == paint.Source {
		return nil
	}
	text := make([]string, len(ops))
	for i, o := range ops {
		text[i] = ec.Text(o)
	}
	ec.Rewrite(Rewrite{Operands: text, Op: deviceOp(paint.Source, h.stroke)})
	paint.Emitted = paint.Source
	return nil
}
