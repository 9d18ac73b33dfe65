package convert

import (
	"fmt"

	"github.com/wudi/pdfdark/ir/raw"
)

// ErrorKind classifies a failed conversion.
type ErrorKind int

const (
	KindUnknownTheme ErrorKind = iota + 1
	KindInvalidDocument
	KindEncrypted
	KindAssembly
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnknownTheme:
		return "UnknownTheme"
	case KindInvalidDocument:
		return "InvalidDocument"
	case KindEncrypted:
		return "Encrypted"
	case KindAssembly:
		return "Assembly"
	case KindCanceled:
		return "Canceled"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ConversionError is returned when no output could be produced.
type ConversionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ConversionError) Error() string { return fmt.Sprintf("convert: %s: %v", e.Kind, e.Err) }
func (e *ConversionError) Unwrap() error { return e.Err }

// ImageDecodeError reports an image left unchanged because its samples
// could not be read or recoloured.
type ImageDecodeError struct {
	ObjectID raw.ObjectRef
	Err      error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("image %v: %v", e.ObjectID, e.Err)
}
func (e *ImageDecodeError) Unwrap() error { return e.Err }

// StreamDecodeError reports a content stream whose filters failed.
type StreamDecodeError struct {
	ObjectID raw.ObjectRef
	Err      error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("stream %v: %v", e.ObjectID, e.Err)
}
func (e *StreamDecodeError) Unwrap() error { return e.Err }
