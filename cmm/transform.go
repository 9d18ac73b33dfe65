package cmm

// Params are the classification thresholds of the dark transform.
type Params struct {
	// BackgroundCutoff: colours with value above it become the theme background.
	BackgroundCutoff float64
	// Colours with value below BrightenBelow are lifted to
	// BrightenFloor + value*BrightenScale.
	BrightenBelow float64
	BrightenFloor float64
	BrightenScale float64
	// Precision is the number of decimals written for rewritten operands.
	Precision int
}

func DefaultParams() Params {
	return Params{
		BackgroundCutoff: 0.96,
		BrightenBelow:    0.5,
		BrightenFloor:    0.4,
		BrightenScale:    0.6,
		Precision:        4,
	}
}

// Action is the decision taken for one colour.
type Action int

const (
	ActionKeep Action = iota
	ActionBackground
	ActionBrighten
)

func (a Action) String() string {
	switch a {
	case ActionBackground:
		return "background"
	case ActionBrighten:
		return "brighten"
	}
	return "keep"
}

// Transformer maps colours onto a dark theme. It is immutable and safe
// for concurrent use.
type Transformer struct {
	bg     Color
	params Params
}

func NewTransformer(background Color, p Params) *Transformer {
	if p.Precision <= 0 {
		p.Precision = DefaultParams().Precision
	}
	return &Transformer{bg: background, params: p}
}

func (t *Transformer) Background() Color { return t.bg }
func (t *Transformer) Params() Params    { return t.params }

// Classify decides what happens to an RGB colour.
func (t *Transformer) Classify(c Color) Action {
	v := c.Value()
	switch {
	case v > t.params.BackgroundCutoff:
		return ActionBackground
	case v < t.params.BrightenBelow:
		return ActionBrighten
	}
	return ActionKeep
}

// Apply returns the action for c and the replacement colour. For
// ActionKeep the input is returned unchanged.
func (t *Transformer) Apply(c Color) (Action, Color) {
	switch a := t.Classify(c); a {
	case ActionBackground:
		return a, t.bg
	case ActionBrighten:
		hsv := RGBToHSV(c)
		hsv.V = t.params.BrightenFloor + hsv.V*t.params.BrightenScale
		return a, HSVToRGB(hsv)
	default:
		return a, c
	}
}

// ApplyComponents normalises device components and applies the transform.
func (t *Transformer) ApplyComponents(space Space, comps []float64) (Action, Color, error) {
	c, err := ToRGB(space, comps)
	if err != nil {
		return ActionKeep, Color{}, err
	}
	a, out := t.Apply(c)
	return a, out, nil
}

// Pixel transforms components and expresses the result in the input
// space, as raster data must keep its colour space. ok is false when the
// colour is kept.
func (t *Transformer) Pixel(space Space, comps []float64) ([]float64, bool) {
	a, c, err := t.ApplyComponents(space, comps)
	if err != nil || a == ActionKeep {
		return comps, false
	}
	return FromRGB(space, c), true
}

// Operands formats c as the three operands of an rg/RG operator.
func (t *Transformer) Operands(c Color) []string {
	p := t.params.Precision
	return []string{FormatNumber(c.R, p), FormatNumber(c.G, p), FormatNumber(c.B, p)}
}
