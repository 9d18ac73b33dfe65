package recovery

import "fmt"

type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

// Location pins a recoverable condition to a place in the document.
// Page is 1-based; zero means the condition is not tied to a page.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Page       int
	Component  string
}

func (l Location) String() string {
	s := l.Component
	if l.Page > 0 {
		s += fmt.Sprintf(" page %d", l.Page)
	}
	if l.ObjectNum > 0 {
		s += fmt.Sprintf(" object %d %d", l.ObjectNum, l.ObjectGen)
	}
	if l.ByteOffset > 0 {
		s += fmt.Sprintf(" offset %d", l.ByteOffset)
	}
	return s
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

type Context interface{ Done() <-chan struct{} }

// Kind classifies non-fatal conditions reported during a conversion.
type Kind string

const (
	KindParse                 Kind = "ParseError"
	KindUnsupportedColorSpace Kind = "UnsupportedColorSpace"
	KindImageDecode           Kind = "ImageDecodeError"
	KindStreamDecode          Kind = "StreamDecodeError"
	KindOperand               Kind = "OperandError"
	KindSyntax                Kind = "SyntaxError"
)
