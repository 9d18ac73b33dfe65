package contentstream

import (
	"errors"
	"fmt"
)

// ParseError reports a lexical failure at a byte offset. The stream it
// came from cannot be transformed.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("content stream offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// OperandError reports an operator whose operands do not fit it. The
// token is left unchanged.
type OperandError struct {
	Op  string
	Err error
}

func (e *OperandError) Error() string { return fmt.Sprintf("operator %s: %v", e.Op, e.Err) }
func (e *OperandError) Unwrap() error { return e.Err }

var ErrStateUnderflow = errors.New("unbalanced Q operator")
